package exprlang

import "strings"

// promptExpressionPrefix marks a prompt step string as "evaluate the rest
// as an expression whose value is the prompt" (spec §4.1).
const promptExpressionPrefix = "$_ "

// SplitPromptExpression reports whether s begins with the "$_ " prompt
// expression prefix and, if so, returns the remaining expression text.
func SplitPromptExpression(s string) (expr string, ok bool) {
	if !strings.HasPrefix(s, promptExpressionPrefix) {
		return "", false
	}
	return s[len(promptExpressionPrefix):], true
}
