package pyvalue

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/internal/result"
)

// Token descriptions used in syntax errors.
const (
	tokString     = "String"
	tokDict       = "Dict"
	tokList       = "List"
	tokTuple      = "Tuple"
	tokNone       = "None"
	tokQuote      = "quote"
	tokValueOpen  = "'Value('"
	tokErrorOpen  = "'Error('"
	tokEndOfInput = "end of input"
)

var elementTokens = []string{tokString, tokDict, tokList, tokTuple, tokNone}

// SyntaxError describes the first point at which a reply stopped matching
// the grammar.
type SyntaxError struct {
	// Offset is the byte offset into the (whitespace-trimmed) reply.
	Offset int
	// Expected lists the tokens that would have been accepted at Offset.
	Expected []string
	// Found is the character at Offset, or "" at end of input.
	Found string
}

func (e *SyntaxError) Error() string {
	found := tokEndOfInput
	if e.Found != "" {
		found = strconv.Quote(e.Found)
	}
	if len(e.Expected) == 1 {
		return fmt.Sprintf("expected %s at offset %d, found %s", e.Expected[0], e.Offset, found)
	}
	return fmt.Sprintf("expected one of %s at offset %d, found %s", strings.Join(e.Expected, ", "), e.Offset, found)
}

// Parse decodes a helper reply.
//
// A Value(...) reply or a bare None yields Ok. An Error(...) reply yields an
// Err whose message is the remote message verbatim (code REMOTE_ERROR). Any
// input that does not fully match yields an Err with code PARSE_ERROR whose
// message describes the first expected token; trailing input is never
// ignored.
func Parse(text string) result.Result[Value] {
	p := &parser{src: strings.TrimSpace(text)}
	return p.reply()
}

// ParseValue decodes a bare literal (the part inside Value(...)).
func ParseValue(text string) (Value, error) {
	p := &parser{src: strings.TrimSpace(text)}
	v, err := p.element()
	if err != nil {
		return nil, err
	}
	if err := p.end(); err != nil {
		return nil, err
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) reply() result.Result[Value] {
	switch {
	case p.hasPrefix("None"):
		p.pos += len("None")
		if err := p.end(); err != nil {
			return parseFailure(err)
		}
		return result.Ok[Value](None{})

	case p.atQuote():
		quote := p.src[p.pos]
		p.pos++
		switch {
		case p.hasPrefix("Value("):
			p.pos += len("Value(")
			v, err := p.element()
			if err != nil {
				return parseFailure(err)
			}
			if err := p.closeReply(quote); err != nil {
				return parseFailure(err)
			}
			return result.Ok(v)

		case p.hasPrefix("Error("):
			p.pos += len("Error(")
			if !p.atQuote() {
				return parseFailure(p.fail(tokString))
			}
			msg, err := p.str()
			if err != nil {
				return parseFailure(err)
			}
			if err := p.closeReply(quote); err != nil {
				return parseFailure(err)
			}
			return result.FromError[Value](errors.RemoteError(msg))

		case p.hasPrefix("None"):
			p.pos += len("None")
			if err := p.expect(quote); err != nil {
				return parseFailure(err)
			}
			if err := p.end(); err != nil {
				return parseFailure(err)
			}
			return result.Ok[Value](None{})

		default:
			return parseFailure(p.fail(tokValueOpen, tokErrorOpen, tokNone))
		}

	default:
		return parseFailure(p.fail(tokNone, tokQuote))
	}
}

// closeReply consumes `)`, the outer quote and requires end of input.
func (p *parser) closeReply(quote byte) error {
	if err := p.expect(')'); err != nil {
		return err
	}
	if err := p.expect(quote); err != nil {
		return err
	}
	return p.end()
}

func (p *parser) element() (Value, error) {
	if p.pos >= len(p.src) {
		return nil, p.fail(elementTokens...)
	}
	switch c := p.src[p.pos]; {
	case c == '\'' || c == '"':
		s, err := p.str()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case c == '[':
		items, err := p.sequence(']', false)
		if err != nil {
			return nil, err
		}
		return List(items), nil
	case c == '(':
		items, err := p.sequence(')', true)
		if err != nil {
			return nil, err
		}
		return Tuple(items), nil
	case c == '{':
		return p.dict()
	case p.hasPrefix("None"):
		p.pos += len("None")
		return None{}, nil
	}
	return nil, p.fail(elementTokens...)
}

// sequence parses the elements of a list or tuple; the opening bracket is
// at p.pos. A one-element tuple may carry Python's trailing comma.
func (p *parser) sequence(closer byte, tuple bool) ([]Value, error) {
	p.pos++
	p.skipSpace()

	items := []Value{}
	if p.consume(closer) {
		return items, nil
	}

	for {
		v, err := p.element()
		if err != nil {
			return nil, err
		}
		items = append(items, v)

		p.skipSpace()
		if p.consume(',') {
			p.skipSpace()
			if tuple && len(items) == 1 && p.consume(closer) {
				return items, nil
			}
			continue
		}
		if p.consume(closer) {
			return items, nil
		}
		return nil, p.fail(quoteToken(','), quoteToken(closer))
	}
}

func (p *parser) dict() (Value, error) {
	p.pos++
	p.skipSpace()

	m := Mapping{}
	if p.consume('}') {
		return m, nil
	}

	for {
		if !p.atQuote() {
			return nil, p.fail(tokString)
		}
		key, err := p.str()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		p.skipSpace()

		v, err := p.element()
		if err != nil {
			return nil, err
		}
		m = append(m, Entry{Key: key, Value: v})

		p.skipSpace()
		if p.consume(',') {
			p.skipSpace()
			continue
		}
		if p.consume('}') {
			return m, nil
		}
		return nil, p.fail(quoteToken(','), quoteToken('}'))
	}
}

// str parses a quoted string starting at p.pos. The content runs up to the
// next occurrence of the opening quote; nothing is unescaped.
func (p *parser) str() (string, error) {
	quote := p.src[p.pos]
	start := p.pos + 1
	n := strings.IndexByte(p.src[start:], quote)
	if n < 0 {
		p.pos = len(p.src)
		return "", p.fail(quoteToken(quote))
	}
	p.pos = start + n + 1
	return p.src[start : start+n], nil
}

func (p *parser) expect(c byte) error {
	if p.consume(c) {
		return nil
	}
	return p.fail(quoteToken(c))
}

func (p *parser) end() error {
	if p.pos != len(p.src) {
		return p.fail(tokEndOfInput)
	}
	return nil
}

func (p *parser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) atQuote() bool {
	return p.pos < len(p.src) && (p.src[p.pos] == '\'' || p.src[p.pos] == '"')
}

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.src[p.pos:], s)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) fail(expected ...string) *SyntaxError {
	e := &SyntaxError{Offset: p.pos, Expected: expected}
	if p.pos < len(p.src) {
		r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
		e.Found = string(r)
	}
	return e
}

func quoteToken(c byte) string {
	if c == '\'' {
		return `"'"`
	}
	return "'" + string(c) + "'"
}

func parseFailure(err error) result.Result[Value] {
	return result.FromError[Value](errors.ParseFailed(err))
}
