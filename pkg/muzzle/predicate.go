package muzzle

import "strings"

// DefaultInstrumentationPackage is the package prefix of agent
// instrumentation classes.
const DefaultInstrumentationPackage = "io.opentelemetry.javaagent.instrumentation."

// HelperClassPredicate decides which classes belong to the instrumentation
// rather than to the library it instruments.
type HelperClassPredicate struct {
	prefixes []string
	extra    func(className string) bool
}

// NewHelperClassPredicate matches classes under any of prefixes, or
// accepted by extra when it is not nil. No prefixes selects
// DefaultInstrumentationPackage.
func NewHelperClassPredicate(prefixes []string, extra func(className string) bool) *HelperClassPredicate {
	if len(prefixes) == 0 {
		prefixes = []string{DefaultInstrumentationPackage}
	}
	return &HelperClassPredicate{prefixes: prefixes, extra: extra}
}

// IsHelperClass reports whether className is an instrumentation class.
func (p *HelperClassPredicate) IsHelperClass(className string) bool {
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(className, prefix) {
			return true
		}
	}
	return p.extra != nil && p.extra(className)
}
