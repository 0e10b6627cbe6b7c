// Package collector derives muzzle references from compiled instrumentation
// classes. It walks the advice class and every instrumentation class it
// reaches, recording the library classes, fields and methods they use.
package collector

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/daimatz/gomuzzle/pkg/classpath"
	"github.com/daimatz/gomuzzle/pkg/muzzle"
)

// Collector accumulates references over one or more entry points. It is
// not safe for concurrent use.
type Collector struct {
	loader    *classpath.Loader
	predicate *muzzle.HelperClassPredicate
	logger    *slog.Logger

	references map[string]*muzzle.Reference
	order      []string
	visited    map[string]bool

	// helper super class graph: helper -> helper super types
	helpers    []string
	superEdges map[string][]string
}

// An Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger. By default slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// New creates a collector reading instrumentation classes from loader. A nil
// predicate selects muzzle.DefaultInstrumentationPackage.
func New(loader *classpath.Loader, predicate *muzzle.HelperClassPredicate, opts ...Option) *Collector {
	if predicate == nil {
		predicate = muzzle.NewHelperClassPredicate(nil, nil)
	}
	c := &Collector{
		loader:     loader,
		predicate:  predicate,
		references: make(map[string]*muzzle.Reference),
		visited:    make(map[string]bool),
		superEdges: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// CollectFromAdvice collects references starting at an advice class. The
// advice class is inlined into library code, so its own shape is not
// required; only what it uses is.
func (c *Collector) CollectFromAdvice(className string) error {
	return c.visitClasses([]string{className}, true)
}

// CollectFromHelper collects references starting at a helper class, which
// is injected as is.
func (c *Collector) CollectFromHelper(className string) error {
	return c.visitClasses([]string{className}, false)
}

var (
	awsSDKV2ServiceInterceptorSPI = regexp.MustCompile(`^software/amazon/awssdk/services/\w+(/\w+)?/execution\.interceptors$`)
	awsSDKV1ServiceInterceptorSPI = regexp.MustCompile(`^com/amazonaws/services/\w+(/\w+)?/request\.handler2s$`)
)

// IsSPIFile reports whether a helper resource lists service implementations
// that get loaded reflectively.
func IsSPIFile(resource string) bool {
	return strings.HasPrefix(resource, "META-INF/services/") ||
		resource == "software/amazon/awssdk/global/handlers/execution.interceptors" ||
		resource == "com/amazonaws/global/handlers/request.handler2s" ||
		awsSDKV2ServiceInterceptorSPI.MatchString(resource) ||
		awsSDKV1ServiceInterceptorSPI.MatchString(resource)
}

// CollectFromResource collects references from the implementations listed
// in an SPI resource. Other resources are ignored.
func (c *Collector) CollectFromResource(resource string) error {
	if !IsSPIFile(resource) {
		return nil
	}
	data, err := c.loader.Resource(resource)
	if err != nil {
		return fmt.Errorf("reading resource %s: %w", resource, err)
	}
	var impls []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		impls = append(impls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading resource %s: %w", resource, err)
	}
	return c.visitClasses(impls, false)
}

func (c *Collector) visitClasses(start []string, advice bool) error {
	queue := slices.Clone(start)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if c.visited[name] {
			continue
		}
		c.visited[name] = true

		cf, err := c.loader.LoadClass(name)
		if err != nil {
			return fmt.Errorf("collecting references from %s: %w", name, err)
		}
		v := newClassVisitor(c.predicate, advice)
		if err := v.visit(cf); err != nil {
			return fmt.Errorf("collecting references from %s: %w", name, err)
		}
		for _, refName := range v.order {
			if !c.visited[refName] && c.predicate.IsHelperClass(refName) {
				queue = append(queue, refName)
			}
			if err := c.addReference(v.refs[refName]); err != nil {
				return err
			}
		}
		c.collectHelperClasses(advice, name, v.helperClasses, v.helperSupers)
		c.logger.Debug("collected references", "class", name, "advice", advice, "references", len(v.order))

		advice = false
	}
	return nil
}

func (c *Collector) addReference(ref *muzzle.Reference) error {
	existing, ok := c.references[ref.ClassName]
	if !ok {
		c.references[ref.ClassName] = ref
		c.order = append(c.order, ref.ClassName)
		return nil
	}
	merged, err := existing.Merge(ref)
	if err != nil {
		return err
	}
	c.references[ref.ClassName] = merged
	return nil
}

func (c *Collector) collectHelperClasses(advice bool, className string, helpers, helperSupers []string) {
	for _, h := range helpers {
		c.helpers = appendUnique(c.helpers, h)
	}
	if advice {
		return
	}
	for _, super := range helperSupers {
		c.helpers = appendUnique(c.helpers, className)
		c.superEdges[className] = appendUnique(c.superEdges[className], super)
	}
}

// References returns the collected references in the order their classes
// were first seen.
func (c *Collector) References() []*muzzle.Reference {
	refs := make([]*muzzle.Reference, 0, len(c.order))
	for _, name := range c.order {
		if ref, ok := c.references[name]; ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Reference returns the collected reference for a class.
func (c *Collector) Reference(className string) (*muzzle.Reference, bool) {
	ref, ok := c.references[className]
	return ref, ok
}

// HelperClassNames returns the instrumentation classes met during
// collection, in the order they were first seen.
func (c *Collector) HelperClassNames() []string {
	return slices.Clone(c.helpers)
}

// SortedHelperClasses returns the helper classes ordered so that every
// class comes after the helper classes it extends or implements. Classes in
// a cycle are left out.
func (c *Collector) SortedHelperClasses() []string {
	// in-degree counts the helper super types still to be emitted
	pending := make(map[string]int, len(c.helpers))
	subtypes := make(map[string][]string)
	for _, h := range c.helpers {
		pending[h] = len(c.superEdges[h])
		for _, super := range c.superEdges[h] {
			subtypes[super] = append(subtypes[super], h)
		}
	}

	var ready []string
	for _, h := range c.helpers {
		if pending[h] == 0 {
			ready = append(ready, h)
		}
	}
	sorted := make([]string, 0, len(c.helpers))
	for len(ready) > 0 {
		h := ready[0]
		ready = ready[1:]
		sorted = append(sorted, h)
		for _, sub := range subtypes[h] {
			pending[sub]--
			if pending[sub] == 0 {
				ready = append(ready, sub)
			}
		}
	}
	return sorted
}

// Prune drops references to instrumentation classes, which are injected
// together with the advice and so always match. Helper classes that extend
// library types are kept, because the library type must still provide what
// they override; only their inheritable methods remain.
func (c *Collector) Prune() {
	participating := c.helpersInLibrarySuperType()
	order := c.order[:0]
	for _, name := range c.order {
		ref := c.references[name]
		switch {
		case c.providedByLibrary(name):
			order = append(order, name)
		case participating[name]:
			c.references[name] = withInheritableMethods(ref)
			order = append(order, name)
		default:
			delete(c.references, name)
		}
	}
	c.order = order
}

func withInheritableMethods(ref *muzzle.Reference) *muzzle.Reference {
	pruned := *ref
	pruned.Methods = nil
	for _, m := range ref.Methods {
		if m.Name == "<init>" || slices.Contains(m.Flags, muzzle.FlagPrivate) || slices.Contains(m.Flags, muzzle.FlagStatic) {
			continue
		}
		pruned.Methods = append(pruned.Methods, m)
	}
	return &pruned
}

func (c *Collector) providedByLibrary(className string) bool {
	return !c.predicate.IsHelperClass(className)
}

func (c *Collector) helpersInLibrarySuperType() map[string]bool {
	participating := make(map[string]bool)
	for _, name := range c.order {
		if c.predicate.IsHelperClass(name) && c.hasLibrarySuperType(name, make(map[string]bool)) {
			c.addHelperSuperTypes(name, participating)
		}
	}
	return participating
}

func (c *Collector) addHelperSuperTypes(className string, into map[string]bool) {
	if className == "" || !c.predicate.IsHelperClass(className) || into[className] {
		return
	}
	ref, ok := c.references[className]
	if !ok {
		return
	}
	into[className] = true
	c.addHelperSuperTypes(ref.SuperName, into)
	for _, iface := range ref.Interfaces {
		c.addHelperSuperTypes(iface, into)
	}
}

func (c *Collector) hasLibrarySuperType(typeName string, seen map[string]bool) bool {
	if typeName == "" || strings.HasPrefix(typeName, "java.") || seen[typeName] {
		return false
	}
	seen[typeName] = true
	if c.providedByLibrary(typeName) {
		return true
	}
	ref, ok := c.references[typeName]
	if !ok {
		return false
	}
	if c.hasLibrarySuperType(ref.SuperName, seen) {
		return true
	}
	for _, iface := range ref.Interfaces {
		if c.hasLibrarySuperType(iface, seen) {
			return true
		}
	}
	return false
}
