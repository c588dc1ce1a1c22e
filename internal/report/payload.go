package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidPayload is returned for a non-empty body that is not valid JSON
var ErrInvalidPayload = errors.New("invalid JSON payload")

// Payload is a parsed answers document. Objects keep the order in which keys
// first appeared; a repeated key keeps its first position and its last value.
type Payload struct {
	root any
}

type object struct {
	keys   []string
	values map[string]any
}

func (o *object) set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// ParsePayload parses the request body as a single JSON value.
// An empty body is the empty object.
func ParsePayload(body []byte) (Payload, error) {
	if len(body) == 0 {
		return Payload{root: &object{values: map[string]any{}}}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	root, err := decodeValue(dec)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("trailing data after top-level value")
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return Payload{root: root}, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &object{values: map[string]any{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return tok, nil
	}
}

// Indent renders the payload with two-space indentation, the layout of
// JSON.stringify(value, null, 2).
func (p Payload) Indent() string {
	var sb strings.Builder
	writeValue(&sb, p.root, "")
	return sb.String()
}

func writeValue(sb *strings.Builder, v any, indent string) {
	inner := indent + "  "

	switch t := v.(type) {
	case *object:
		if len(t.keys) == 0 {
			sb.WriteString("{}")
			return
		}
		sb.WriteString("{\n")
		for i, key := range t.keys {
			if i > 0 {
				sb.WriteString(",\n")
			}
			sb.WriteString(inner)
			writeString(sb, key)
			sb.WriteString(": ")
			writeValue(sb, t.values[key], inner)
		}
		sb.WriteString("\n" + indent + "}")
	case []any:
		if len(t) == 0 {
			sb.WriteString("[]")
			return
		}
		sb.WriteString("[\n")
		for i, item := range t {
			if i > 0 {
				sb.WriteString(",\n")
			}
			sb.WriteString(inner)
			writeValue(sb, item, inner)
		}
		sb.WriteString("\n" + indent + "]")
	case string:
		writeString(sb, t)
	case json.Number:
		sb.WriteString(formatNumber(t))
	case bool:
		sb.WriteString(strconv.FormatBool(t))
	default:
		sb.WriteString("null")
	}
}

func writeString(sb *strings.Builder, s string) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // a string always encodes
	sb.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// formatNumber prints a number as a double in shortest form, plain between
// 1e-6 and 1e21 and with an unpadded exponent outside that range.
func formatNumber(n json.Number) string {
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return n.String()
	}
	if math.IsInf(f, 0) {
		return "null"
	}
	if f == 0 {
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	return mantissa + "e" + sign + digits
}
