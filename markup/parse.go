// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package markup

import (
	"io"
	"strings"
)

// Parse parses text as a single document and returns its root node.  Leading
// and trailing whitespace, a leading "<?...?>" declaration, and comments
// outside the root are ignored. Any other content after the root element is
// an error. Errors have concrete type *ParseError.
func Parse(text string) (*Node, error) {
	s := &scanner{input: text}
	if err := s.skipMisc(); err != nil {
		return nil, err
	}
	if s.Len() == 0 {
		return nil, s.fail("no root element")
	}
	root, err := s.element()
	if err != nil {
		return nil, err
	}
	if err := s.skipMisc(); err != nil {
		return nil, err
	}
	if s.Len() != 0 {
		return nil, s.fail("unexpected content after root element")
	}
	return root, nil
}

// ParsePrefix parses a single complete element from the front of data, and
// returns the node along with the number of bytes consumed, including any
// leading whitespace. Content following the element is not examined.
//
// If data ends before an element is complete, ParsePrefix reports a
// *ParseError for which [Incomplete] is true; the caller may retry once
// more data is available.
func ParsePrefix(data []byte) (*Node, int, error) {
	s := &scanner{input: string(data)}
	if err := s.skipMisc(); err != nil {
		return nil, 0, err
	}
	if s.Len() == 0 {
		return nil, 0, s.short()
	}
	n, err := s.element()
	if err != nil {
		return nil, 0, err
	}
	return n, s.Offset(), nil
}

// A scanner consumes document text from the front of its input.
type scanner struct {
	input  string
	offset int // of the next unconsumed byte
}

// Len reports the number of unconsumed input bytes.
func (s *scanner) Len() int { return len(s.input) - s.offset }

// Offset reports the offset of the next unconsumed input byte.
func (s *scanner) Offset() int { return s.offset }

// Rest returns the unconsumed input.
func (s *scanner) Rest() string { return s.input[s.offset:] }

func (s *scanner) fail(msg string) error {
	return &ParseError{Offset: s.offset, Msg: msg}
}

func (s *scanner) short() error {
	return &ParseError{Offset: s.offset, Msg: "incomplete element", Err: io.ErrUnexpectedEOF}
}

// consume advances past lit if the input begins with it.
func (s *scanner) consume(lit string) bool {
	if strings.HasPrefix(s.Rest(), lit) {
		s.offset += len(lit)
		return true
	}
	return false
}

func (s *scanner) skipSpace() {
	for s.offset < len(s.input) && isSpace(s.input[s.offset]) {
		s.offset++
	}
}

// skipMisc skips whitespace, declarations, and comments.
func (s *scanner) skipMisc() error {
	for {
		s.skipSpace()
		switch {
		case strings.HasPrefix(s.Rest(), "<?"):
			if err := s.skipPast("?>"); err != nil {
				return err
			}
		case strings.HasPrefix(s.Rest(), "<!--"):
			if err := s.skipPast("-->"); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *scanner) skipPast(end string) error {
	i := strings.Index(s.Rest(), end)
	if i < 0 {
		return s.short()
	}
	s.offset += i + len(end)
	return nil
}

// name scans a tag or property name. It returns "" if the input does not
// begin with a name character.
func (s *scanner) name() string {
	start := s.offset
	for s.offset < len(s.input) && isNameByte(s.input[s.offset]) {
		s.offset++
	}
	return s.input[start:s.offset]
}

// element parses one element beginning at the current offset.
func (s *scanner) element() (*Node, error) {
	if !s.consume("<") {
		return nil, s.fail("expected '<'")
	}
	tag := s.name()
	if s.Len() == 0 {
		return nil, s.short()
	} else if tag == "" {
		return nil, s.fail("missing tag name")
	}
	n := New(tag)

	// Properties, up to the end of the opening tag.
	for {
		s.skipSpace()
		if s.Len() == 0 {
			return nil, s.short()
		}
		if s.consume("/>") {
			return n, nil
		} else if s.consume(">") {
			break
		} else if s.Rest() == "/" {
			return nil, s.short()
		}
		if err := s.property(n); err != nil {
			return nil, err
		}
	}

	// Content, up to the matching close tag.
	var text strings.Builder
	for {
		i := strings.IndexByte(s.Rest(), '<')
		if i < 0 {
			return nil, s.short()
		}
		text.WriteString(s.input[s.offset : s.offset+i])
		s.offset += i

		switch {
		case strings.HasPrefix(s.Rest(), "</"):
			at := s.offset
			s.offset += 2
			end := s.name()
			s.skipSpace()
			if s.Len() == 0 {
				return nil, s.short()
			} else if end != tag {
				s.offset = at
				return nil, s.fail("mismatched close tag </" + end + "> for <" + tag + ">")
			} else if !s.consume(">") {
				return nil, s.fail("malformed close tag for <" + tag + ">")
			}
			setContent(n, text.String())
			return n, nil

		case strings.HasPrefix(s.Rest(), "<!--"):
			if err := s.skipPast("-->"); err != nil {
				return nil, err
			}

		case len(s.Rest()) < len("<!--") && strings.HasPrefix("<!--", s.Rest()):
			return nil, s.short()

		default:
			c, err := s.element()
			if err != nil {
				return nil, err
			}
			n.Push(c)
		}
	}
}

// setContent records the text content of n. Beside children, the text
// segments are joined and trimmed of surrounding whitespace.
func setContent(n *Node, text string) {
	if n.NumChildren() != 0 {
		text = strings.Trim(text, " \t\r\n")
	}
	n.value = DecodeValue(text)
}

// property parses one key='value' or key="value" pair into n.
func (s *scanner) property(n *Node) error {
	key := s.name()
	if s.Len() == 0 {
		return s.short()
	} else if key == "" {
		return s.fail("invalid property name")
	}
	s.skipSpace()
	if s.Len() == 0 {
		return s.short()
	} else if !s.consume("=") {
		return s.fail("missing '=' after property " + key)
	}
	s.skipSpace()
	if s.Len() == 0 {
		return s.short()
	}
	quote := s.input[s.offset]
	if quote != '"' && quote != '\'' {
		return s.fail("unquoted value for property " + key)
	}
	s.offset++
	end := strings.IndexByte(s.Rest(), quote)
	if end < 0 {
		return s.short()
	}
	if n.HasProperty(key) {
		return s.fail("duplicate property " + key)
	}
	n.SetProperty(key, DecodeProperty(s.input[s.offset:s.offset+end]))
	s.offset += end + 1
	return nil
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

func isNameByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '/', '>', '<', '=', '"', '\'':
		return false
	}
	return true
}
