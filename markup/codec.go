// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package markup

import "strings"

// Values and properties are escaped with different entity sets. A value
// only needs to avoid markup delimiters, while a property must also survive
// quoting and whitespace normalization. Peers rely on this asymmetry, so a
// value containing `"` is sent verbatim.
var (
	valueEncoder = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	valueDecoder = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
	)
	propertyEncoder = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
		"\t", "&#x9;",
		"\n", "&#xA;",
		"\r", "&#xD;",
	)
	propertyDecoder = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&#x9;", "\t",
		"&#xA;", "\n",
		"&#xD;", "\r",
	)
)

// EncodeValue escapes s for use as the scalar value of a node.
func EncodeValue(s string) string { return valueEncoder.Replace(s) }

// DecodeValue reverses [EncodeValue].
func DecodeValue(s string) string { return valueDecoder.Replace(s) }

// EncodeProperty escapes s for use as a quoted property value.
func EncodeProperty(s string) string { return propertyEncoder.Replace(s) }

// DecodeProperty reverses [EncodeProperty].
func DecodeProperty(s string) string { return propertyDecoder.Replace(s) }
