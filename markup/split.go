// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package markup

type splitState uint8

const (
	inText     splitState = iota
	inTagStart            // after '<'
	inOpenTag             // inside an opening tag
	inSlash               // after '/' in an opening tag
	inQuote               // inside a quoted property value
	inCloseTag            // inside a closing tag
	inComment             // after "<!"
	inDecl                // after "<?"
)

// A Splitter follows the nesting of elements in input that arrives in pieces,
// and reports when a complete top-level element may be ready for
// [ParsePrefix]. Scanning each piece once lets a reader avoid re-parsing a
// large message every time more of it arrives.
//
// A Splitter does not validate its input. Where it sees something that
// cannot begin a well-formed element, it reports a boundary so the parser
// can diagnose the problem. The zero value is ready for use.
type Splitter struct {
	state splitState
	depth int
	quote byte
	marks int // trailing '-' in a comment, or a trailing '?' in a declaration
}

// Reset discards the state of s.
func (s *Splitter) Reset() { *s = Splitter{} }

// Write scans the next piece of input, and reports whether a top-level
// element ended within it, or whether it contains input the parser should
// examine.
func (s *Splitter) Write(p []byte) bool {
	var found bool
	for _, b := range p {
		if s.step(b) {
			found = true
		}
	}
	return found
}

func (s *Splitter) step(b byte) bool {
	switch s.state {
	case inText:
		if b == '<' {
			s.state = inTagStart
		} else if s.depth == 0 && !isSpace(b) {
			return true
		}

	case inTagStart:
		switch b {
		case '/':
			s.state = inCloseTag
		case '!':
			s.state, s.marks = inComment, 0
		case '?':
			s.state, s.marks = inDecl, 0
		default:
			s.state = inOpenTag
			return !isNameByte(b)
		}

	case inOpenTag:
		switch b {
		case '"', '\'':
			s.state, s.quote = inQuote, b
		case '/':
			s.state = inSlash
		case '>':
			s.depth++
			s.state = inText
		}

	case inSlash:
		if b != '>' {
			s.state = inOpenTag
			s.step(b)
			return true
		}
		s.state = inText
		return s.depth == 0

	case inQuote:
		if b == s.quote {
			s.state = inOpenTag
		}

	case inCloseTag:
		if b == '>' {
			s.state = inText
			if s.depth--; s.depth <= 0 {
				s.depth = 0
				return true
			}
		}

	case inComment:
		if b == '>' && s.marks >= 2 {
			s.state = inText
		} else if b == '-' {
			s.marks++
		} else {
			s.marks = 0
		}

	case inDecl:
		if b == '>' && s.marks > 0 {
			s.state = inText
		} else if b == '?' {
			s.marks = 1
		} else {
			s.marks = 0
		}
	}
	return false
}
