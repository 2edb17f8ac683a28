package stap

import (
	"fmt"
	"strings"

	"tracesig/pkg/models"
)

// ParseArgs decodes a raw argument blob into a positional mapping
// (p0, p1, ...). The blob is consumed left to right; each element's
// terminating delimiter is chosen by inspecting its first character so
// nested arrays and structs are not split internally. Malformed input
// yields best-effort partial results, never an error.
func ParseArgs(blob string) models.Args {
	args := models.Args{}
	n := 0
	for blob != "" {
		blob = strings.TrimLeft(blob, ", ")
		if blob == "" {
			break
		}
		var arg string
		arg, blob, _ = strings.Cut(blob, argDelim(blob))
		args[fmt.Sprintf("p%d", n)] = parseArg(arg)
		n++
	}
	return args
}

// argDelim picks the delimiter that terminates the element starting at
// the head of s.
func argDelim(s string) string {
	switch {
	case isArray(s):
		return "]"
	case isStruct(s):
		return "}"
	default:
		return ", "
	}
}

func parseArg(s string) any {
	switch {
	case isArray(s):
		return parseSeq(strings.TrimPrefix(s, "["))
	case isStruct(s):
		return parseStruct(s)
	case isQuoted(s):
		return unescape(strings.Trim(s, `"`))
	default:
		return s
	}
}

// parseSeq decodes the body of an array (opening bracket already removed)
// element by element, honoring nested delimiters.
func parseSeq(body string) models.List {
	out := models.List{}
	for body != "" {
		body = strings.TrimLeft(body, ", ")
		if body == "" {
			break
		}
		var el string
		el, body, _ = strings.Cut(body, argDelim(body))
		out = append(out, parseArg(el))
	}
	return out
}

func parseStruct(s string) any {
	body := strings.TrimPrefix(s, "{")

	// Unnamed fields decode as a plain array.
	if !strings.Contains(body, "=") {
		return parseSeq(body)
	}

	var st models.Struct
	for body != "" {
		var key string
		key, body, _ = strings.Cut(body, "=")
		delim := argDelim(body)
		if delim != ", " {
			// Nested value: consume its closing delimiter plus the
			// following field separator in one cut.
			delim += ", "
		}
		var val string
		val, body, _ = strings.Cut(body, delim)
		st = append(st, models.Field{Name: key, Value: parseArg(val)})
	}
	return st
}

func isArray(s string) bool {
	return strings.HasPrefix(s, "[") && !strings.HasPrefix(s, "[/*")
}

func isStruct(s string) bool {
	return strings.HasPrefix(s, "{")
}

func isQuoted(s string) bool {
	return strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)
}

// unescape decodes C-style escape sequences. Unknown escapes are kept
// verbatim.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'v':
			b.WriteByte('\v')
		case 'f':
			b.WriteByte('\f')
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case '\\', '"', '\'':
			b.WriteByte(e)
		case 'x':
			if i+2 < len(s) {
				if hi, lo := hexVal(s[i+1]), hexVal(s[i+2]); hi >= 0 && lo >= 0 {
					b.WriteByte(byte(hi<<4 | lo))
					i += 2
					continue
				}
			}
			b.WriteString(`\x`)
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := int(e - '0')
			for n := 0; n < 2 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; n++ {
				i++
				v = v<<3 | int(s[i]-'0')
			}
			b.WriteByte(byte(v))
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	return b.String()
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

// FormatArg renders a decoded argument back into trace syntax. Opaque
// scalars round-trip unchanged; decoded strings render bare.
func FormatArg(v any) string {
	switch val := v.(type) {
	case models.List:
		parts := make([]string, 0, len(val))
		for _, el := range val {
			parts = append(parts, FormatArg(el))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case models.Struct:
		parts := make([]string, 0, len(val))
		for _, f := range val {
			parts = append(parts, f.Name+"="+FormatArg(f.Value))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
