package pyvalue

import (
	"fmt"
	"strings"
)

// Repr renders v the way Python's repr() renders the equivalent literal:
// ", " between items, ": " inside dicts, a trailing comma on one-element
// tuples. Each string is delimited by a single quote unless it contains
// one, in which case a double quote is used. A string containing both
// quote characters cannot be represented and is an error.
func Repr(v Value) (string, error) {
	var sb strings.Builder
	if err := writeRepr(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// EncodeValue wraps v in the Value(...) reply form using the given outer quote.
func EncodeValue(v Value, quote byte) (string, error) {
	if err := checkQuote(quote); err != nil {
		return "", err
	}
	inner, err := Repr(v)
	if err != nil {
		return "", err
	}
	return string(quote) + "Value(" + inner + ")" + string(quote), nil
}

// EncodeError wraps message in the Error(...) reply form using the given outer quote.
func EncodeError(message string, quote byte) (string, error) {
	if err := checkQuote(quote); err != nil {
		return "", err
	}
	inner, err := Repr(String(message))
	if err != nil {
		return "", err
	}
	return string(quote) + "Error(" + inner + ")" + string(quote), nil
}

// EncodeNone returns the unwrapped None reply.
func EncodeNone() string {
	return "None"
}

func writeRepr(sb *strings.Builder, v Value) error {
	switch v := v.(type) {
	case None:
		sb.WriteString("None")
	case String:
		q, err := quoteFor(string(v))
		if err != nil {
			return err
		}
		sb.WriteByte(q)
		sb.WriteString(string(v))
		sb.WriteByte(q)
	case List:
		return writeItems(sb, '[', ']', v, false)
	case Tuple:
		return writeItems(sb, '(', ')', v, len(v) == 1)
	case Mapping:
		sb.WriteByte('{')
		for i, e := range v {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := writeRepr(sb, String(e.Key)); err != nil {
				return err
			}
			sb.WriteString(": ")
			if err := writeRepr(sb, e.Value); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode %T", v)
	}
	return nil
}

func writeItems(sb *strings.Builder, open, closer byte, items []Value, trailingComma bool) error {
	sb.WriteByte(open)
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		if err := writeRepr(sb, item); err != nil {
			return err
		}
	}
	if trailingComma {
		sb.WriteByte(',')
	}
	sb.WriteByte(closer)
	return nil
}

func quoteFor(s string) (byte, error) {
	if !strings.ContainsRune(s, '\'') {
		return '\'', nil
	}
	if !strings.ContainsRune(s, '"') {
		return '"', nil
	}
	return 0, fmt.Errorf("string %q contains both quote characters", s)
}

func checkQuote(q byte) error {
	if q != '\'' && q != '"' {
		return fmt.Errorf("invalid outer quote %q", q)
	}
	return nil
}
