package muzzle

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceMerge(t *testing.T) {
	a := NewReferenceBuilder("com.example.Foo").
		AddSource("Advice", 1).
		AddFlags(FlagPublic).
		AddInterfaces("com.example.I").
		AddField(src("Advice", 2), []Flag{FlagNonStatic}, "count", "I", false).
		AddMethod(src("Advice", 3), []Flag{FlagPublic}, "bar", "()V").
		Build()
	b := NewReferenceBuilder("com.example.Foo").
		AddSource("Advice", 1).
		AddSource("Other", 9).
		SetSuperName("com.example.Base").
		AddFlags(FlagPublic, FlagNonFinal).
		AddInterfaces("com.example.I", "com.example.J").
		AddField(src("Other", 10), []Flag{FlagProtectedOrHigher}, "count", "I", true).
		AddMethod(src("Other", 11), nil, "baz", "()V").
		Build()

	merged, err := a.Merge(b)
	require.NoError(t, err)

	want := &Reference{
		ClassName:  "com.example.Foo",
		SuperName:  "com.example.Base",
		Interfaces: []string{"com.example.I", "com.example.J"},
		Flags:      []Flag{FlagPublic, FlagNonFinal},
		Fields: []Field{{
			Name:     "count",
			Type:     "I",
			Flags:    []Flag{FlagNonStatic, FlagProtectedOrHigher},
			Declared: true,
			Sources:  []Source{{"Advice", 2}, {"Other", 10}},
		}},
		Methods: []Method{
			{Name: "bar", Descriptor: "()V", Flags: []Flag{FlagPublic}, Sources: []Source{{"Advice", 3}}},
			{Name: "baz", Descriptor: "()V", Sources: []Source{{"Other", 11}}},
		},
		Sources: []Source{{"Advice", 1}, {"Other", 9}},
	}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("merged reference (-want +got):\n%s", diff)
	}

	// inputs are left untouched
	assert.Len(t, a.Methods, 1)
	assert.Empty(t, a.SuperName)
}

func TestReferenceMergeFirstSuperNameWins(t *testing.T) {
	a := &Reference{ClassName: "com.example.Foo", SuperName: "com.example.A"}
	b := &Reference{ClassName: "com.example.Foo", SuperName: "com.example.B"}
	merged, err := a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, "com.example.A", merged.SuperName)
}

func TestReferenceMergeIllegal(t *testing.T) {
	_, err := (&Reference{ClassName: "com.example.Foo"}).Merge(&Reference{ClassName: "com.example.Bar"})
	assert.ErrorIs(t, err, ErrIllegalMerge)

	_, err = Field{Name: "a", Type: "I"}.Merge(Field{Name: "a", Type: "J"})
	assert.ErrorIs(t, err, ErrIllegalMerge)

	_, err = Method{Name: "a", Descriptor: "()V"}.Merge(Method{Name: "b", Descriptor: "()V"})
	assert.ErrorIs(t, err, ErrIllegalMerge)
}

func TestReferenceBuilderMergesMembers(t *testing.T) {
	ref := NewReferenceBuilder("com.example.Foo").
		AddMethod(src("A", 1), []Flag{FlagStatic}, "run", "()V").
		AddMethod(src("A", 2), []Flag{FlagStatic, FlagPublic}, "run", "()V").
		AddMethod(nil, nil, "run", "(I)V").
		Build()

	require.Len(t, ref.Methods, 2)
	run, ok := ref.FindMethod("run", "()V")
	require.True(t, ok)
	assert.Equal(t, []Flag{FlagStatic, FlagPublic}, run.Flags)
	assert.Equal(t, []Source{{"A", 1}, {"A", 2}}, run.Sources)

	_, ok = ref.FindField("run", "I")
	assert.False(t, ok)
	assert.Equal(t, "Reference<com.example.Foo>", ref.String())
}

func TestMismatchFormatting(t *testing.T) {
	ref := NewReferenceBuilder("com.example.Foo").AddSource("Advice", 4).Build()

	tests := []struct {
		name     string
		mismatch Mismatch
		want     string
	}{
		{"missing class", NewMissingClass(ref), "Advice:4 Missing class com.example.Foo"},
		{"missing class without sources", NewMissingClass(&Reference{ClassName: "com.example.Foo"}), "<no-source> Missing class com.example.Foo"},
		{"missing field", &MissingField{mismatchSources: ref.Sources, ClassName: "com.example.Foo", FieldName: "count", Descriptor: "I"}, "Advice:4 Missing field com.example.Foo#countI"},
		{"missing method", &MissingMethod{ClassName: "com.example.Foo", MethodName: "bar", Descriptor: "(I)V"}, "<no-source> Missing method com.example.Foo#bar(I)V"},
		{"missing flag", &MissingFlag{mismatchSources: ref.Sources, Description: "com.example.Foo#bar()V", Expected: FlagStatic, Found: 1}, "Advice:4 com.example.Foo#bar()V requires flag STATIC found 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mismatch.String())
		})
	}
}
