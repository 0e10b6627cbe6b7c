package muzzle

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/gomuzzle/pkg/classfile"
	"github.com/daimatz/gomuzzle/pkg/classpath"
)

func fooRef() *Reference {
	return NewReferenceBuilder("com.example.Foo").
		AddSource("com.example.Advice", 12).
		AddMethod(src("com.example.Advice", 14), nil, "bar", "()V").
		Build()
}

func TestEndToEndMissingMethod(t *testing.T) {
	loader := newLoader(t, "app", classfile.NewBuilder("com/example/Foo").
		Method(classfile.AccPublic, "baz", "()V"))

	m := newMatcher(nil, []*Reference{fooRef()})
	got := m.MismatchedReferenceSources(loader)

	require.Len(t, got, 1)
	missing, ok := got[0].(*MissingMethod)
	require.True(t, ok, "got %T", got[0])
	assert.Equal(t, "com.example.Foo", missing.ClassName)
	assert.Equal(t, "bar", missing.MethodName)
	assert.Equal(t, "()V", missing.Descriptor)
	assert.Equal(t, "com.example.Advice:14 Missing method com.example.Foo#bar()V", missing.String())
	assert.False(t, m.Matches(loader))
}

func TestEndToEndMissingClass(t *testing.T) {
	loader := newLoader(t, "empty")

	m := newMatcher(nil, []*Reference{fooRef()})
	got := m.MismatchedReferenceSources(loader)

	require.Len(t, got, 1, "no member checks after a missing class")
	assert.IsType(t, &MissingClass{}, got[0])
	assert.Equal(t, "com.example.Advice:12 Missing class com.example.Foo", got[0].String())
}

func TestEndToEndMatch(t *testing.T) {
	loader := newLoader(t, "app", classfile.NewBuilder("com/example/Foo").
		Method(classfile.AccPublic, "bar", "()V"))

	m := newMatcher(nil, []*Reference{fooRef()})
	assert.Empty(t, m.MismatchedReferenceSources(loader))
	assert.True(t, m.Matches(loader))
}

func abstractBase(methods ...string) *classfile.Builder {
	b := classfile.NewBuilder("com/example/AbstractBase").
		Access(classfile.AccPublic | classfile.AccAbstract | classfile.AccSuper)
	for _, name := range methods {
		b.Method(classfile.AccPublic|classfile.AccAbstract, name, "()V")
	}
	return b
}

func myHelper() *Reference {
	return NewReferenceBuilder(helperPackage+"MyHelper").
		AddSource(helperPackage+"MyHelper", 1).
		SetSuperName("com.example.AbstractBase").
		AddFlags(FlagNonFinal).
		AddMethod(src(helperPackage+"MyHelper", 5), []Flag{FlagPublic, FlagNonStatic, FlagNonFinal}, "doX", "()V").
		Build()
}

func TestHelperAbstractMethods(t *testing.T) {
	helper := myHelper()
	helpers := []string{helper.ClassName}

	v1 := newLoader(t, "v1", abstractBase("doX"))
	v2 := newLoader(t, "v2", abstractBase("doX", "doY"))

	m := newMatcher(helpers, []*Reference{helper})

	t.Run("version 1 passes", func(t *testing.T) {
		assert.Empty(t, m.MismatchedReferenceSources(v1))
		assert.True(t, m.Matches(v1))
	})

	t.Run("version 2 misses doY", func(t *testing.T) {
		got := m.MismatchedReferenceSources(v2)
		require.Len(t, got, 1)
		missing, ok := got[0].(*MissingMethod)
		require.True(t, ok, "got %T", got[0])
		assert.Equal(t, "com.example.AbstractBase", missing.ClassName)
		assert.Equal(t, "doY", missing.MethodName)
		if diff := cmp.Diff(helper.Sources, missing.Sources()); diff != "" {
			t.Errorf("mismatch must be attributed to the helper (-want +got):\n%s", diff)
		}
		assert.False(t, m.Matches(v2))
	})
}

func TestHelperAbstractMethodsDeduplicated(t *testing.T) {
	// doY is abstract on both the base class and an interface it implements.
	iface := classfile.NewBuilder("com/example/Doer").
		Access(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract).
		Method(classfile.AccPublic|classfile.AccAbstract, "doY", "()V")
	base := abstractBase("doX", "doY").Interfaces("com/example/Doer")
	loader := newLoader(t, "dedup", base, iface)

	helper := myHelper()
	got := newMatcher([]string{helper.ClassName}, []*Reference{helper}).MismatchedReferenceSources(loader)
	if diff := cmp.Diff([]string{"Missing method com.example.AbstractBase#doY()V"}, details(got)); diff != "" {
		t.Errorf("mismatches (-want +got):\n%s", diff)
	}
}

func TestHelperImplementedHigherUp(t *testing.T) {
	// An implementation anywhere in the hierarchy satisfies an abstract method.
	iface := classfile.NewBuilder("com/example/Doer").
		Access(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract).
		Method(classfile.AccPublic|classfile.AccAbstract, "doZ", "()V")
	base := classfile.NewBuilder("com/example/AbstractBase").
		Access(classfile.AccPublic|classfile.AccAbstract|classfile.AccSuper).
		Interfaces("com/example/Doer").
		Method(classfile.AccPublic|classfile.AccAbstract, "doX", "()V").
		Method(classfile.AccPublic, "doZ", "()V")
	loader := newLoader(t, "impl", base, iface)

	helper := myHelper()
	assert.Empty(t, newMatcher([]string{helper.ClassName}, []*Reference{helper}).MismatchedReferenceSources(loader))
}

func TestHelperTrivialPass(t *testing.T) {
	loader := newLoader(t, "empty")

	t.Run("no super types", func(t *testing.T) {
		helper := NewReferenceBuilder(helperPackage+"Standalone").
			AddMethod(nil, []Flag{FlagAbstract}, "run", "()V").
			Build()
		wrapper := newHelperTypeFactory(nil, nil).fromReference(helper)
		assert.False(t, wrapper.HasSuperTypes())
		assert.Empty(t, newMatcher([]string{helper.ClassName}, []*Reference{helper}).MismatchedReferenceSources(loader))
	})

	t.Run("abstract helper", func(t *testing.T) {
		helper := NewReferenceBuilder(helperPackage + "AbstractHelper").
			SetSuperName("com.example.Missing").
			AddFlags(FlagAbstract).
			Build()
		assert.Empty(t, newMatcher([]string{helper.ClassName}, []*Reference{helper}).MismatchedReferenceSources(loader))
	})
}

func TestHelperSuperTypeIsHelper(t *testing.T) {
	loader := newLoader(t, "v2", abstractBase("doX", "doY"))
	parent := NewReferenceBuilder(helperPackage+"ParentHelper").
		SetSuperName("com.example.AbstractBase").
		AddFlags(FlagAbstract).
		AddMethod(nil, []Flag{FlagPublic}, "doY", "()V").
		Build()
	child := NewReferenceBuilder(helperPackage+"ChildHelper").
		AddSource(helperPackage+"ChildHelper", 3).
		SetSuperName(parent.ClassName).
		AddMethod(nil, []Flag{FlagPublic}, "doX", "()V").
		Build()

	m := newMatcher([]string{parent.ClassName, child.ClassName}, []*Reference{parent, child})
	assert.Empty(t, m.MismatchedReferenceSources(loader))
}

func TestHelperUnresolvedSuperType(t *testing.T) {
	helper := myHelper()
	got := newMatcher([]string{helper.ClassName}, []*Reference{helper}).MismatchedReferenceSources(newLoader(t, "empty"))
	require.Len(t, got, 1)
	assert.Equal(t, "Missing class com.example.AbstractBase", got[0].Details())
	if diff := cmp.Diff(helper.Sources, got[0].Sources()); diff != "" {
		t.Errorf("sources (-want +got):\n%s", diff)
	}
}

func TestHelperUndeclaredFields(t *testing.T) {
	base := abstractBase("doX").
		Field(classfile.AccProtected, "count", "I").
		Field(classfile.AccPrivate, "secret", "I")
	loader := newLoader(t, "fields", base)

	helper := NewReferenceBuilder(helperPackage+"MyHelper").
		AddSource(helperPackage+"MyHelper", 1).
		SetSuperName("com.example.AbstractBase").
		AddMethod(nil, []Flag{FlagPublic}, "doX", "()V").
		AddField(nil, []Flag{FlagNonStatic}, "own", "J", true).
		AddField(nil, []Flag{FlagNonStatic}, "own", "J", false).
		AddField(nil, []Flag{FlagNonStatic}, "count", "I", false).
		AddField(nil, []Flag{FlagNonStatic}, "secret", "I", false).
		AddField(nil, []Flag{FlagNonStatic}, "gone", "Ljava/lang/String;", false).
		Build()

	got := newMatcher([]string{helper.ClassName}, []*Reference{helper}).MismatchedReferenceSources(loader)
	want := []string{
		"Missing field " + helperPackage + "MyHelper#secretI",
		"Missing field " + helperPackage + "MyHelper#goneLjava/lang/String;",
	}
	if diff := cmp.Diff(want, details(got)); diff != "" {
		t.Errorf("mismatches (-want +got):\n%s", diff)
	}
}

func TestHelperRegistration(t *testing.T) {
	loader := newLoader(t, "empty")

	t.Run("unregistered instrumentation class", func(t *testing.T) {
		ref := NewReferenceBuilder(helperPackage+"Unregistered").AddSource("x", 1).Build()
		got := newMatcher(nil, []*Reference{ref}).MismatchedReferenceSources(loader)
		require.Len(t, got, 1)
		assert.Equal(t, "x:1 Missing class "+helperPackage+"Unregistered", got[0].String())
	})

	t.Run("vendored helper is skipped", func(t *testing.T) {
		ref := NewReferenceBuilder("com.vendored.Util").
			AddMethod(nil, nil, "missing", "()V").
			Build()
		m := newMatcher([]string{"com.vendored.Util"}, []*Reference{ref})
		assert.Empty(t, m.MismatchedReferenceSources(loader))
	})

	t.Run("custom predicate", func(t *testing.T) {
		ref := NewReferenceBuilder("com.library.instrumentation.Helper").Build()
		predicate := NewHelperClassPredicate(nil, func(name string) bool {
			return strings.HasPrefix(name, "com.library.instrumentation.")
		})
		m := newMatcher(nil, []*Reference{ref}, WithHelperClassPredicate(predicate))
		assert.IsType(t, &MissingClass{}, m.MismatchedReferenceSources(loader)[0])
	})
}

func TestFieldLookupOrder(t *testing.T) {
	super := classfile.NewBuilder("com/example/S").
		Field(classfile.AccPrivate, "value", "I")
	sub := classfile.NewBuilder("com/example/T").
		Super("com/example/S").
		Interfaces("com/example/I").
		Field(classfile.AccPublic, "value", "I")
	iface := classfile.NewBuilder("com/example/I").
		Access(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract).
		Field(classfile.AccPublic|classfile.AccStatic|classfile.AccFinal, "CONSTANT", "Ljava/lang/String;")
	loader := newLoader(t, "order", super, sub, iface)

	t.Run("declared first", func(t *testing.T) {
		ref := NewReferenceBuilder("com.example.T").
			AddField(nil, []Flag{FlagPublic}, "value", "I", false).
			Build()
		assert.Empty(t, newMatcher(nil, []*Reference{ref}).MismatchedReferenceSources(loader))
	})

	t.Run("inherited from super class", func(t *testing.T) {
		ref := NewReferenceBuilder("com.example.S").
			AddField(src("Advice", 7), []Flag{FlagPublic}, "value", "I", false).
			Build()
		got := newMatcher(nil, []*Reference{ref}).MismatchedReferenceSources(loader)
		require.Len(t, got, 1)
		flag, ok := got[0].(*MissingFlag)
		require.True(t, ok, "found field with wrong flags must be MissingFlag, got %T", got[0])
		assert.Equal(t, "Advice:7 com.example.S#valueI requires flag PUBLIC found 2", flag.String())
	})

	t.Run("interface field", func(t *testing.T) {
		ref := NewReferenceBuilder("com.example.T").
			AddField(src("Advice", 9), []Flag{FlagStatic}, "CONSTANT", "Ljava/lang/String;", false).
			Build()
		assert.Empty(t, newMatcher(nil, []*Reference{ref}).MismatchedReferenceSources(loader))
	})

	t.Run("flag description uses internal name", func(t *testing.T) {
		ref := NewReferenceBuilder("com.example.T").
			AddField(nil, []Flag{FlagNonStatic}, "CONSTANT", "Ljava/lang/String;", false).
			Build()
		got := newMatcher(nil, []*Reference{ref}).MismatchedReferenceSources(loader)
		require.Len(t, got, 1)
		assert.Equal(t, "com.example.T#CONSTANTjava/lang/String requires flag NON_STATIC found 25", got[0].Details())
	})
}

func TestPrimitiveEquivalence(t *testing.T) {
	loader := newLoader(t, "prims", classfile.NewBuilder("com/example/Foo").
		Field(classfile.AccPublic, "count", "I"))

	tests := []struct {
		name    string
		typ     string
		matches bool
	}{
		{"descriptor", "I", true},
		{"keyword", "int", true},
		{"different primitive", "J", false},
		{"different keyword", "long", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := NewReferenceBuilder("com.example.Foo").
				AddField(nil, nil, "count", tt.typ, false).
				Build()
			got := newMatcher(nil, []*Reference{ref}).MismatchedReferenceSources(loader)
			if tt.matches {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.IsType(t, &MissingField{}, got[0])
		})
	}

	assert.True(t, fieldTypeMatches("I", "int"))
	assert.True(t, fieldTypeMatches("int", "I"))
	assert.False(t, fieldTypeMatches("I", "long"))
	assert.False(t, fieldTypeMatches("I", "J"))
}

func TestMethodLookup(t *testing.T) {
	iface := classfile.NewBuilder("com/example/Callback").
		Access(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract).
		Method(classfile.AccPublic|classfile.AccAbstract, "onEvent", "(Ljava/lang/Object;)V")
	base := classfile.NewBuilder("com/example/Base").
		Method(classfile.AccProtected, "helper", "()I")
	impl := classfile.NewBuilder("com/example/Impl").
		Super("com/example/Base").
		Interfaces("com/example/Callback").
		Access(classfile.AccPublic | classfile.AccAbstract | classfile.AccSuper)
	loader := newLoader(t, "methods", iface, base, impl)

	ref := NewReferenceBuilder("com.example.Impl").
		AddFlags(FlagAbstract, FlagNonInterface).
		AddMethod(nil, []Flag{FlagProtectedOrHigher, FlagNonStatic}, "helper", "()I").
		AddMethod(nil, []Flag{FlagPublic}, "onEvent", "(Ljava/lang/Object;)V").
		AddMethod(nil, []Flag{FlagPublic}, "hashCode", "()I").
		AddMethod(nil, nil, "helper", "()J").
		Build()

	got := newMatcher(nil, []*Reference{ref}).MismatchedReferenceSources(loader)
	if diff := cmp.Diff([]string{"Missing method com.example.Impl#helper()J"}, details(got)); diff != "" {
		t.Errorf("mismatches (-want +got):\n%s", diff)
	}
}

func TestClassFlags(t *testing.T) {
	loader := newLoader(t, "flags",
		classfile.NewBuilder("com/example/Foo"),
		classfile.NewBuilder("com/example/Outer$Hidden").
			Access(classfile.AccSuper).
			NestedIn("com/example/Outer", "Hidden", classfile.AccPrivate|classfile.AccStatic))

	ref := NewReferenceBuilder("com.example.Foo").
		AddSource("Advice", 3).
		AddFlags(FlagPublic, FlagInterface, FlagNonFinal).
		Build()
	got := newMatcher(nil, []*Reference{ref}).MismatchedReferenceSources(loader)
	if diff := cmp.Diff([]string{"com.example.Foo requires flag INTERFACE found 1"}, details(got)); diff != "" {
		t.Errorf("mismatches (-want +got):\n%s", diff)
	}

	nested := NewReferenceBuilder("com.example.Outer$Hidden").AddFlags(FlagPackageOrHigher).Build()
	got = newMatcher(nil, []*Reference{nested}).MismatchedReferenceSources(loader)
	if diff := cmp.Diff([]string{"com.example.Outer$Hidden requires flag PACKAGE_OR_HIGHER found 10"}, details(got)); diff != "" {
		t.Errorf("nested class mismatches (-want +got):\n%s", diff)
	}
}

func TestUnresolvedSuperClassBecomesMissingClass(t *testing.T) {
	loader := newLoader(t, "orphan", classfile.NewBuilder("com/example/Foo").Super("com/example/Gone"))

	got := newMatcher(nil, []*Reference{fooRef()}).MismatchedReferenceSources(loader)
	require.Len(t, got, 1)
	assert.Equal(t, "com.example.Advice:12 Missing class com.example.Gone", got[0].String())
}

func TestReferenceCheckError(t *testing.T) {
	loader := newLoader(t, "app")

	t.Run("panic", func(t *testing.T) {
		m := newMatcher(nil, []*Reference{fooRef()}, WithPoolStrategy(panickingStrategy{}))
		got := m.MismatchedReferenceSources(loader)
		require.Len(t, got, 1)
		checkErr, ok := got[0].(*ReferenceCheckError)
		require.True(t, ok, "got %T", got[0])
		assert.Same(t, loader, checkErr.Loader)
		assert.Contains(t, checkErr.Details(), "Failed to generate reference check for: Reference<com.example.Foo> on classloader Loader<app>")
		assert.Contains(t, checkErr.Details(), "pool exploded")
		assert.True(t, strings.HasPrefix(checkErr.String(), "<no-source> "))
		assert.False(t, m.Matches(loader))
	})

	t.Run("corrupt class file", func(t *testing.T) {
		broken := classpath.NewLoader("broken", nil,
			classpath.NewMemorySource("broken").Add("com.example.Foo", []byte{0xCA, 0xFE, 0xBA, 0xBE}))
		got := newMatcher(nil, []*Reference{fooRef()}).MismatchedReferenceSources(broken)
		require.Len(t, got, 1)
		checkErr, ok := got[0].(*ReferenceCheckError)
		require.True(t, ok, "got %T", got[0])
		assert.Error(t, checkErr.Err)
	})
}

func TestMismatchedReferenceSourcesIsComplete(t *testing.T) {
	loader := newLoader(t, "empty")
	refs := []*Reference{
		NewReferenceBuilder("com.example.A").Build(),
		NewReferenceBuilder("com.example.B").Build(),
	}
	got := newMatcher(nil, refs).MismatchedReferenceSources(loader)
	if diff := cmp.Diff([]string{"Missing class com.example.A", "Missing class com.example.B"}, details(got)); diff != "" {
		t.Errorf("mismatches (-want +got):\n%s", diff)
	}
}

func TestMatchesFailsFast(t *testing.T) {
	loader := newLoader(t, "empty")
	refs := []*Reference{
		NewReferenceBuilder("com.example.A").Build(),
		NewReferenceBuilder("com.example.B").Build(),
	}
	strategy := &countingStrategy{}
	m := newMatcher(nil, refs, WithPoolStrategy(strategy))
	assert.False(t, m.Matches(loader))
	assert.Equal(t, int32(1), strategy.describes.Load(), "the second reference must not be checked")
}

func TestMatchesIdempotent(t *testing.T) {
	loader := newLoader(t, "app", classfile.NewBuilder("com/example/Foo").
		Method(classfile.AccPublic, "bar", "()V"))
	strategy := &countingStrategy{}
	m := newMatcher(nil, []*Reference{fooRef()}, WithPoolStrategy(strategy))

	first := m.Matches(loader)
	describes := strategy.describes.Load()
	second := m.Matches(loader)

	assert.True(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), strategy.pools.Load())
	assert.Equal(t, describes, strategy.describes.Load(), "second call must be served from the cache")
}

func TestMatchesKeyedByLoaderIdentity(t *testing.T) {
	build := func(name string) *classpath.Loader {
		return newLoader(t, name, classfile.NewBuilder("com/example/Foo").
			Method(classfile.AccPublic, "bar", "()V"))
	}
	a, b := build("same"), build("same")
	strategy := &countingStrategy{}
	m := newMatcher(nil, []*Reference{fooRef()}, WithPoolStrategy(strategy))

	assert.True(t, m.Matches(a))
	assert.True(t, m.Matches(b))
	assert.Equal(t, int32(2), strategy.pools.Load(), "identical loaders are evaluated separately")

	missing := newLoader(t, "same")
	assert.False(t, m.Matches(missing))
	assert.True(t, m.Matches(a))
}

func TestMatchesNilLoaderUsesBootstrapProxy(t *testing.T) {
	bootstrap := newLoader(t, "bootstrap", classfile.NewBuilder("com/example/Foo").
		Method(classfile.AccPublic, "bar", "()V"))
	m := NewReferenceMatcher(nil, []*Reference{fooRef()},
		WithLogger(discardLogger), WithBootstrapProxy(bootstrap))
	assert.True(t, m.Matches(nil))
	assert.Empty(t, m.MismatchedReferenceSources(nil))
}

func TestMatchesConcurrent(t *testing.T) {
	loader := newLoader(t, "app", classfile.NewBuilder("com/example/Foo"))
	m := newMatcher(nil, []*Reference{fooRef()})

	var wg sync.WaitGroup
	results := make([]bool, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Matches(loader)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.False(t, r)
	}
}

func TestDuplicateReferencesAreMerged(t *testing.T) {
	loader := newLoader(t, "app", classfile.NewBuilder("com/example/Foo").
		Method(classfile.AccPublic, "bar", "()V"))
	other := NewReferenceBuilder("com.example.Foo").
		AddMethod(nil, nil, "qux", "()V").
		Build()

	m := newMatcher(nil, []*Reference{fooRef(), other})
	require.Len(t, m.References(), 1)
	assert.Equal(t, []string{"Missing method com.example.Foo#qux()V"}, details(m.MismatchedReferenceSources(loader)))
}

type recordingMetrics struct {
	mu         sync.Mutex
	hits       int
	misses     int
	evaluated  []bool
	mismatches []string
}

func (r *recordingMetrics) CacheHit()  { r.mu.Lock(); r.hits++; r.mu.Unlock() }
func (r *recordingMetrics) CacheMiss() { r.mu.Lock(); r.misses++; r.mu.Unlock() }
func (r *recordingMetrics) MatchEvaluated(matched bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluated = append(r.evaluated, matched)
}
func (r *recordingMetrics) MismatchFound(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mismatches = append(r.mismatches, kind)
}

func TestMetricsRecorder(t *testing.T) {
	loader := newLoader(t, "empty")
	rec := &recordingMetrics{}
	m := newMatcher(nil, []*Reference{fooRef()}, WithMetrics(rec))

	m.Matches(loader)
	m.Matches(loader)
	m.MismatchedReferenceSources(loader)

	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, []bool{false}, rec.evaluated)
	assert.Equal(t, []string{"missing_class"}, rec.mismatches)
}
