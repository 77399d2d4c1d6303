// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package markup

import "strings"

// String renders n in canonical compact form, with no whitespace between
// elements. This is the form exchanged between peers.
func (n *Node) String() string {
	var sb strings.Builder
	n.writeCompact(&sb)
	return sb.String()
}

// Indent renders n with one element per line. Each line is indented by level
// tabs plus one more tab per level of nesting. The result does not end with
// a newline.
func (n *Node) Indent(level int) string {
	var sb strings.Builder
	n.writeIndent(&sb, level)
	return sb.String()
}

// HTML renders n like Indent, but escaped for display inside an HTML page:
// markup delimiters are entity-escaped, indentation uses non-breaking
// spaces, and lines are separated by <br/> tags.
func (n *Node) HTML(level int) string { return htmlLines(n.Indent(level)) }

// String renders the nodes of ns in canonical compact form.
func (ns NodeList) String() string {
	var sb strings.Builder
	for _, n := range ns {
		n.writeCompact(&sb)
	}
	return sb.String()
}

// Indent renders the nodes of ns one after another as by [Node.Indent].
func (ns NodeList) Indent(level int) string {
	var sb strings.Builder
	for i, n := range ns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		n.writeIndent(&sb, level)
	}
	return sb.String()
}

// HTML renders the nodes of ns as by [Node.HTML].
func (ns NodeList) HTML(level int) string { return htmlLines(ns.Indent(level)) }

func (n *Node) writeOpen(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(n.tag)
	for _, k := range n.keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(EncodeProperty(n.props[k]))
		sb.WriteByte('"')
	}
}

func (n *Node) writeClose(sb *strings.Builder) {
	sb.WriteString("</")
	sb.WriteString(n.tag)
	sb.WriteByte('>')
}

func (n *Node) isLeaf() bool { return len(n.order) == 0 }

func (n *Node) writeCompact(sb *strings.Builder) {
	n.writeOpen(sb)
	if n.isLeaf() && n.value == "" {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	sb.WriteString(EncodeValue(n.value))
	for c := range n.All() {
		c.writeCompact(sb)
	}
	n.writeClose(sb)
}

func (n *Node) writeIndent(sb *strings.Builder, level int) {
	tabs := strings.Repeat("\t", level)
	sb.WriteString(tabs)
	n.writeOpen(sb)
	if n.isLeaf() {
		if n.value == "" {
			sb.WriteString(" />")
			return
		}
		sb.WriteByte('>')
		sb.WriteString(EncodeValue(n.value))
		n.writeClose(sb)
		return
	}
	sb.WriteByte('>')
	sb.WriteString(EncodeValue(n.value))
	for c := range n.All() {
		sb.WriteByte('\n')
		c.writeIndent(sb, level+1)
	}
	sb.WriteByte('\n')
	sb.WriteString(tabs)
	n.writeClose(sb)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

const htmlTab = "&nbsp;&nbsp;&nbsp;&nbsp;"

func htmlLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		body := strings.TrimLeft(line, "\t")
		depth := len(line) - len(body)
		lines[i] = strings.Repeat(htmlTab, depth) + htmlEscaper.Replace(body)
	}
	return strings.Join(lines, "<br/>\n")
}
