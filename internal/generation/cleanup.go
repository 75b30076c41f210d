package generation

import (
	"regexp"
	"strings"
)

var (
	fenceLine    = regexp.MustCompile("(?m)^[ \\t]*```[a-zA-Z]*[ \\t]*$\\n?")
	boldMarkup   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	excessBlanks = regexp.MustCompile(`\n{3,}`)
)

// Cleanup strips markup a model leaves behind and collapses blank lines
func Cleanup(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = fenceLine.ReplaceAllString(text, "")
	text = boldMarkup.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "**", "")
	text = excessBlanks.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
