package exprlang

import (
	"fmt"
	"strings"
)

// ValidateTemplate extracts every {{ expr }} span in s and validates the
// embedded expression with the same rules as ValidateExpression. Called at
// task-definition time (spec §4.1).
func ValidateTemplate(s string) error {
	spans, err := extractSpans(s)
	if err != nil {
		return err
	}
	for _, sp := range spans {
		if err := ValidateExpression(sp.expr); err != nil {
			return err
		}
	}
	return nil
}

// Render substitutes every {{ expr }} span in template with the stringified
// result of evaluating expr against ctx. A template with no "{{" / "}}"
// renders to itself unchanged (spec §8 property 6).
func Render(template string, ctx Context) (string, error) {
	spans, err := extractSpans(template)
	if err != nil {
		return "", err
	}
	if len(spans) == 0 {
		return template, nil
	}
	var b strings.Builder
	cursor := 0
	for _, sp := range spans {
		b.WriteString(template[cursor:sp.start])
		v, err := Evaluate(sp.expr, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(stringify(v))
		cursor = sp.end
	}
	b.WriteString(template[cursor:])
	return b.String(), nil
}

type span struct {
	start, end int // byte offsets in the source string; end is just past the closing "}}"
	expr       string
}

// extractSpans finds every "{{ ... }}" region. Braces do not nest (the
// embedded text is a single expression, not a sub-template), so a plain
// scan for the next "}}" after each "{{" is sufficient and matches the
// "must itself be a valid Expression" contract in spec §4.1 — there is no
// pipeline or control-flow syntax to parse, only one expression per span.
func extractSpans(s string) ([]span, error) {
	var out []span
	i := 0
	for {
		start := strings.Index(s[i:], "{{")
		if start < 0 {
			break
		}
		start += i
		end := strings.Index(s[start+2:], "}}")
		if end < 0 {
			return nil, wrapSyntax(fmt.Errorf("unterminated {{ at offset %d", start))
		}
		end += start + 2
		out = append(out, span{
			start: start,
			end:   end + 2,
			expr:  strings.TrimSpace(s[start+2 : end]),
		})
		i = end + 2
	}
	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
