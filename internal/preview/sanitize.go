package preview

import "strings"

const (
	scriptTerminator  = "</script>"
	escapedTerminator = `<\/script>`
)

// Sanitize neutralises every literal closing script tag so embedded content
// cannot end the surrounding block early. Matching is case-sensitive.
func Sanitize(content string) string {
	return strings.ReplaceAll(content, scriptTerminator, escapedTerminator)
}
