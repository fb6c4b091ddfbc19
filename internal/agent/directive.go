package agent

import (
	"regexp"
	"strings"
)

// Directive is an embedded tool invocation extracted from a reasoning reply.
type Directive struct {
	Name  string
	Input string
}

// Replies embed at most one directive of the form <tool>name:input</tool>;
// only the first match counts.
var directivePattern = regexp.MustCompile(`(?s)<tool>\s*([A-Za-z0-9_-]+)\s*:(.*?)</tool>`)

// ParseDirective scans reply text for a tool directive. It is a pure
// function: no tool lookup, no side effects.
func ParseDirective(text string) (Directive, bool) {
	match := directivePattern.FindStringSubmatch(text)
	if match == nil {
		return Directive{}, false
	}
	return Directive{
		Name:  match[1],
		Input: strings.TrimSpace(match[2]),
	}, true
}
