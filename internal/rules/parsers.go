// Parser registry. Rules name parsers by string; implementations register
// themselves here at init time, the compiled-in replacement for loading
// parser code from a directory at runtime.
package rules

import (
	"strings"
	"sync"

	"alerta/internal/alert"
)

// ParserFunc mutates an alert in place before a rule's field mutators run.
// Returning an error skips the parser's effect but not the rule's.
type ParserFunc func(*alert.Alert) error

var (
	parsersMu sync.RWMutex
	parsers   = map[string]ParserFunc{}
)

// RegisterParser makes fn available to rules under name, replacing any
// previous registration.
func RegisterParser(name string, fn ParserFunc) {
	parsersMu.Lock()
	defer parsersMu.Unlock()
	parsers[name] = fn
}

func lookupParser(name string) (ParserFunc, bool) {
	parsersMu.RLock()
	defer parsersMu.RUnlock()
	fn, ok := parsers[name]
	return fn, ok
}

func init() {
	RegisterParser("resource-shortname", shortnameParser)
}

// shortnameParser strips the domain part from a fully qualified resource
// name, so "web01.eu.example.com" correlates with "web01".
func shortnameParser(a *alert.Alert) error {
	if host, _, found := strings.Cut(a.Resource, "."); found {
		a.Resource = host
	}
	return nil
}
