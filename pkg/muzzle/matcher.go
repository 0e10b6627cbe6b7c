package muzzle

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/daimatz/gomuzzle/pkg/classfile"
	"github.com/daimatz/gomuzzle/pkg/classpath"
	"github.com/daimatz/gomuzzle/pkg/typepool"
	"github.com/daimatz/gomuzzle/pkg/weakcache"
)

// ReferenceMatcher checks a set of References against class loaders.
type ReferenceMatcher struct {
	references       []*Reference
	byName           map[string]*Reference
	helperClassNames map[string]struct{}
	predicate        *HelperClassPredicate
	strategy         typepool.Strategy
	bootstrap        *classpath.Loader
	logger           *slog.Logger
	metrics          MetricsRecorder
	tracer           trace.Tracer

	cache *weakcache.Cache[classpath.Loader, bool]
}

// An Option configures a ReferenceMatcher.
type Option func(*ReferenceMatcher)

// WithHelperClassPredicate replaces the predicate that tells instrumentation
// classes from library classes.
func WithHelperClassPredicate(p *HelperClassPredicate) Option {
	return func(m *ReferenceMatcher) { m.predicate = p }
}

// WithPoolStrategy sets where type pools come from. By default every
// matching pass parses classes afresh.
func WithPoolStrategy(s typepool.Strategy) Option {
	return func(m *ReferenceMatcher) { m.strategy = s }
}

// WithBootstrapProxy sets the loader used in place of a nil loader. By
// default it is classpath.BootstrapProxy().
func WithBootstrapProxy(l *classpath.Loader) Option {
	return func(m *ReferenceMatcher) { m.bootstrap = l }
}

// WithLogger sets the logger. By default slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(m *ReferenceMatcher) { m.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r MetricsRecorder) Option {
	return func(m *ReferenceMatcher) { m.metrics = r }
}

// NewReferenceMatcher creates a matcher for references. helperClassNames
// are the instrumentation classes that get injected alongside them. When
// two references name the same class, they are merged.
func NewReferenceMatcher(helperClassNames []string, references []*Reference, opts ...Option) *ReferenceMatcher {
	m := &ReferenceMatcher{
		byName:           make(map[string]*Reference, len(references)),
		helperClassNames: make(map[string]struct{}, len(helperClassNames)),
		strategy:         typepool.SimpleStrategy{},
		metrics:          noopMetrics{},
		cache:            weakcache.New[classpath.Loader, bool](),
	}
	for _, name := range helperClassNames {
		m.helperClassNames[name] = struct{}{}
	}
	for _, ref := range references {
		existing, ok := m.byName[ref.ClassName]
		if !ok {
			m.byName[ref.ClassName] = ref
			m.references = append(m.references, ref)
			continue
		}
		// same class name, cannot fail
		merged, _ := existing.Merge(ref)
		m.byName[ref.ClassName] = merged
		for i, r := range m.references {
			if r == existing {
				m.references[i] = merged
			}
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.predicate == nil {
		m.predicate = NewHelperClassPredicate(nil, nil)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.tracer == nil {
		m.tracer = defaultTracer()
	}
	return m
}

// References returns the references the matcher checks.
func (m *ReferenceMatcher) References() []*Reference {
	return m.references
}

// Matches reports whether every reference is satisfied by loader's class
// path. The result is cached per loader instance; a nil loader stands for
// the bootstrap loader.
func (m *ReferenceMatcher) Matches(loader *classpath.Loader) bool {
	loader = m.effectiveLoader(loader)
	matched, loaded := m.cache.GetOrCompute(loader, func() bool {
		start := time.Now()
		ok := m.doesMatch(loader)
		m.metrics.MatchEvaluated(ok, time.Since(start))
		m.logger.Debug("muzzle match computed",
			"loader", loader.String(),
			"matched", ok,
			"duration", time.Since(start))
		return ok
	})
	if loaded {
		m.metrics.CacheHit()
	} else {
		m.metrics.CacheMiss()
	}
	return matched
}

// doesMatch stops at the first mismatch.
func (m *ReferenceMatcher) doesMatch(loader *classpath.Loader) bool {
	pool := m.strategy.TypePool(loader)
	for _, ref := range m.references {
		if mismatches := m.checkMatch(ref, pool, loader); len(mismatches) > 0 {
			m.logger.Debug("muzzle mismatch",
				"loader", loader.String(),
				"reference", ref.ClassName,
				"mismatch", mismatches[0].String())
			return false
		}
	}
	return true
}

// MismatchedReferenceSources returns every mismatch between the references
// and loader's class path. Nothing is cached.
func (m *ReferenceMatcher) MismatchedReferenceSources(loader *classpath.Loader) []Mismatch {
	loader = m.effectiveLoader(loader)
	pool := m.strategy.TypePool(loader)

	var mismatches []Mismatch
	for _, ref := range m.references {
		found := m.checkMatch(ref, pool, loader)
		for _, mm := range found {
			m.metrics.MismatchFound(mismatchKind(mm))
		}
		mismatches = append(mismatches, found...)
	}
	return mismatches
}

func (m *ReferenceMatcher) effectiveLoader(loader *classpath.Loader) *classpath.Loader {
	if loader != nil {
		return loader
	}
	if m.bootstrap != nil {
		return m.bootstrap
	}
	return classpath.BootstrapProxy()
}

// checkMatch never fails: errors and panics become mismatches.
func (m *ReferenceMatcher) checkMatch(ref *Reference, pool typepool.TypePool, loader *classpath.Loader) (result []Mismatch) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			result = []Mismatch{&ReferenceCheckError{Err: err, Reference: ref, Loader: loader}}
		}
	}()

	mismatches, err := m.checkReference(ref, pool)
	if err == nil {
		return mismatches
	}
	var unresolved *typepool.UnresolvedTypeError
	if errors.As(err, &unresolved) {
		return []Mismatch{&MissingClass{mismatchSources: ref.Sources, ClassName: unresolved.Name}}
	}
	return []Mismatch{&ReferenceCheckError{Err: err, Reference: ref, Loader: loader}}
}

func (m *ReferenceMatcher) checkReference(ref *Reference, pool typepool.TypePool) ([]Mismatch, error) {
	_, isHelper := m.helperClassNames[ref.ClassName]
	if m.predicate.IsHelperClass(ref.ClassName) {
		if !isHelper {
			return []Mismatch{NewMissingClass(ref)}, nil
		}
		return m.checkHelperClassMatch(ref, pool)
	}
	if isHelper {
		// shipped with the instrumentation, nothing to check against
		return nil, nil
	}

	res := pool.Describe(ref.ClassName)
	typ, err := res.Resolve()
	if err != nil {
		var unresolved *typepool.UnresolvedTypeError
		if errors.As(err, &unresolved) {
			return []Mismatch{NewMissingClass(ref)}, nil
		}
		return nil, err
	}
	return checkThirdPartyTypeMatch(ref, typ)
}

// checkHelperClassMatch verifies that a helper class implements every
// abstract method of its hierarchy and that the fields it uses without
// declaring exist somewhere in that hierarchy.
func (m *ReferenceMatcher) checkHelperClassMatch(helper *Reference, pool typepool.TypePool) ([]Mismatch, error) {
	var mismatches []Mismatch
	wrapper := newHelperTypeFactory(pool, m.byName).fromReference(helper)

	var undeclared []HelperField
	for _, f := range helper.Fields {
		hf := HelperField{Name: f.Name, Descriptor: f.Type}
		if !f.Declared && !containsField(undeclared, hf) {
			undeclared = append(undeclared, hf)
		}
	}
	if len(undeclared) > 0 {
		available := make(map[HelperField]struct{})
		if err := collectFields(wrapper, available); err != nil {
			return nil, err
		}
		for _, f := range undeclared {
			if _, ok := available[f]; !ok {
				mismatches = append(mismatches, &MissingField{
					mismatchSources: helper.Sources,
					ClassName:       helper.ClassName,
					FieldName:       f.Name,
					Descriptor:      f.Descriptor,
				})
			}
		}
	}

	if !wrapper.HasSuperTypes() || wrapper.IsAbstract() {
		return mismatches, nil
	}

	var abstractMethods []HelperMethod
	seenAbstract := make(map[memberKey]struct{})
	plainMethods := make(map[memberKey]struct{})
	err := collectMethods(wrapper, func(hm HelperMethod) {
		if !hm.Abstract {
			plainMethods[hm.key()] = struct{}{}
			return
		}
		if _, ok := seenAbstract[hm.key()]; !ok {
			seenAbstract[hm.key()] = struct{}{}
			abstractMethods = append(abstractMethods, hm)
		}
	})
	if err != nil {
		return nil, err
	}
	for _, am := range abstractMethods {
		if _, ok := plainMethods[am.key()]; ok {
			continue
		}
		mismatches = append(mismatches, &MissingMethod{
			mismatchSources: helper.Sources,
			ClassName:       am.DeclaringClass,
			MethodName:      am.Name,
			Descriptor:      am.Descriptor,
		})
	}
	return mismatches, nil
}

func containsField(fields []HelperField, f HelperField) bool {
	for _, existing := range fields {
		if existing == f {
			return true
		}
	}
	return false
}

func collectFields(t HelperType, into map[HelperField]struct{}) error {
	for _, f := range t.Fields() {
		into[f] = struct{}{}
	}
	supers, err := t.SuperTypes()
	if err != nil {
		return err
	}
	for _, st := range supers {
		if err := collectFields(st, into); err != nil {
			return err
		}
	}
	return nil
}

// collectMethods walks the hierarchy depth first, class before interfaces.
func collectMethods(t HelperType, visit func(HelperMethod)) error {
	for _, hm := range t.Methods() {
		visit(hm)
	}
	supers, err := t.SuperTypes()
	if err != nil {
		return err
	}
	for _, st := range supers {
		if err := collectMethods(st, visit); err != nil {
			return err
		}
	}
	return nil
}

func checkThirdPartyTypeMatch(ref *Reference, typ *typepool.TypeDescription) ([]Mismatch, error) {
	var mismatches []Mismatch

	modifiers := typ.ActualModifiers()
	for _, flag := range ref.Flags {
		if !flag.Matches(modifiers) {
			mismatches = append(mismatches, &MissingFlag{
				mismatchSources: ref.Sources,
				Description:     ref.ClassName,
				Expected:        flag,
				Found:           modifiers,
			})
		}
	}

	for _, field := range ref.Fields {
		found, err := findField(field, typ)
		if err != nil {
			return nil, err
		}
		if found == nil {
			mismatches = append(mismatches, &MissingField{
				mismatchSources: field.Sources,
				ClassName:       ref.ClassName,
				FieldName:       field.Name,
				Descriptor:      field.Type,
			})
			continue
		}
		for _, flag := range field.Flags {
			if !flag.Matches(found.Modifiers) {
				mismatches = append(mismatches, &MissingFlag{
					mismatchSources: field.Sources,
					Description:     ref.ClassName + "#" + field.Name + classfile.DescriptorInternalName(field.Type),
					Expected:        flag,
					Found:           found.Modifiers,
				})
			}
		}
	}

	for _, method := range ref.Methods {
		found, err := findMethod(method, typ)
		if err != nil {
			return nil, err
		}
		if found == nil {
			mismatches = append(mismatches, &MissingMethod{
				mismatchSources: method.Sources,
				ClassName:       ref.ClassName,
				MethodName:      method.Name,
				Descriptor:      method.Descriptor,
			})
			continue
		}
		for _, flag := range method.Flags {
			if !flag.Matches(found.Modifiers) {
				mismatches = append(mismatches, &MissingFlag{
					mismatchSources: method.Sources,
					Description:     ref.ClassName + "#" + method.Name + method.Descriptor,
					Expected:        flag,
					Found:           found.Modifiers,
				})
			}
		}
	}
	return mismatches, nil
}

// fieldTypeMatches accepts equal descriptors and a primitive descriptor code
// against its Java keyword ("I" and "int").
func fieldTypeMatches(refType, descriptor string) bool {
	if refType == descriptor {
		return true
	}
	if name, ok := classfile.PrimitiveName(descriptor); ok && name == refType {
		return true
	}
	if name, ok := classfile.PrimitiveName(refType); ok && name == descriptor {
		return true
	}
	return false
}

// findField searches declared fields, then the super class, then each
// interface. This is a static approximation of JVM field resolution.
func findField(field Field, typ *typepool.TypeDescription) (*typepool.FieldDescription, error) {
	for _, fd := range typ.DeclaredFields() {
		if fd.Name == field.Name && fieldTypeMatches(field.Type, fd.Descriptor) {
			return &fd, nil
		}
	}
	super, err := typ.SuperClass()
	if err != nil {
		return nil, err
	}
	if super != nil {
		found, err := findField(field, super)
		if err != nil || found != nil {
			return found, err
		}
	}
	ifaces, err := typ.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		found, err := findField(field, iface)
		if err != nil || found != nil {
			return found, err
		}
	}
	return nil, nil
}

// findMethod has the same search order as findField and needs an exact
// name and descriptor match.
func findMethod(method Method, typ *typepool.TypeDescription) (*typepool.MethodDescription, error) {
	for _, md := range typ.DeclaredMethods() {
		if md.Name == method.Name && md.Descriptor == method.Descriptor {
			return &md, nil
		}
	}
	super, err := typ.SuperClass()
	if err != nil {
		return nil, err
	}
	if super != nil {
		found, err := findMethod(method, super)
		if err != nil || found != nil {
			return found, err
		}
	}
	ifaces, err := typ.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		found, err := findMethod(method, iface)
		if err != nil || found != nil {
			return found, err
		}
	}
	return nil, nil
}
