package typepool

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/gomuzzle/pkg/classfile"
	"github.com/daimatz/gomuzzle/pkg/classpath"
)

type countingSource struct {
	classpath.Source
	opens atomic.Int32
}

func (s *countingSource) Open(resource string) ([]byte, error) {
	s.opens.Add(1)
	return s.Source.Open(resource)
}

func mustBytes(t *testing.T, b *classfile.Builder) []byte {
	t.Helper()
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func fixtureLoader(t *testing.T) (*classpath.Loader, *countingSource) {
	t.Helper()
	mem := classpath.NewMemorySource("fixtures")
	mem.Add("com.example.Base", mustBytes(t, classfile.NewBuilder("com/example/Base").
		Access(classfile.AccPublic|classfile.AccAbstract|classfile.AccSuper).
		Field(classfile.AccProtected, "count", "I").
		Method(classfile.AccPublic|classfile.AccAbstract, "doX", "()V")))
	mem.Add("com.example.Foo", mustBytes(t, classfile.NewBuilder("com/example/Foo").
		Super("com/example/Base").
		Interfaces("com/example/Marker").
		Method(classfile.AccPublic, "doX", "()V").
		Method(classfile.AccPublic, classfile.ConstructorName, "()V")))
	mem.Add("com.example.Marker", mustBytes(t, classfile.NewBuilder("com/example/Marker").
		Access(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract)))
	mem.Add("com.example.Orphan", mustBytes(t, classfile.NewBuilder("com/example/Orphan").
		Super("com/example/Gone")))
	mem.Add("com.example.Outer$Inner", mustBytes(t, classfile.NewBuilder("com/example/Outer$Inner").
		Access(classfile.AccSuper).
		NestedIn("com/example/Outer", "Inner", classfile.AccProtected|classfile.AccStatic)))
	src := &countingSource{Source: mem}
	return classpath.NewLoader("fixtures", nil, src), src
}

func TestPoolDescribe(t *testing.T) {
	loader, _ := fixtureLoader(t)
	pool := New(loader)

	t.Run("resolved type", func(t *testing.T) {
		res := pool.Describe("com.example.Foo")
		require.True(t, res.IsResolved())
		foo, err := res.Resolve()
		require.NoError(t, err)

		assert.Equal(t, "com.example.Foo", foo.Name())
		assert.Equal(t, "com.example.Base", foo.SuperClassName())
		assert.Equal(t, []string{"com.example.Marker"}, foo.InterfaceNames())
		assert.Equal(t, classfile.AccPublic, foo.ActualModifiers(), "ACC_SUPER must be stripped")
		require.Len(t, foo.DeclaredMethods(), 2)
		assert.True(t, foo.DeclaredMethods()[1].IsConstructor())

		base, err := foo.SuperClass()
		require.NoError(t, err)
		assert.Equal(t, "com.example.Base", base.Name())
		assert.True(t, base.IsAbstract())
		assert.Equal(t, []FieldDescription{{Name: "count", Descriptor: "I", Modifiers: classfile.AccProtected}}, base.DeclaredFields())

		ifaces, err := foo.Interfaces()
		require.NoError(t, err)
		require.Len(t, ifaces, 1)
		assert.True(t, ifaces[0].IsInterface())
	})

	t.Run("internal names are accepted", func(t *testing.T) {
		assert.True(t, pool.Describe("com/example/Foo").IsResolved())
	})

	t.Run("missing type", func(t *testing.T) {
		res := pool.Describe("com.example.Missing")
		assert.False(t, res.IsResolved())
		_, err := res.Resolve()
		var unresolved *UnresolvedTypeError
		require.ErrorAs(t, err, &unresolved)
		assert.Equal(t, "com.example.Missing", unresolved.Name)
		assert.True(t, strings.HasPrefix(err.Error(), UnresolvedTypeErrorPrefix))
		assert.True(t, errors.Is(err, classpath.ErrClassNotFound))
	})

	t.Run("missing super class", func(t *testing.T) {
		orphan, err := pool.Describe("com.example.Orphan").Resolve()
		require.NoError(t, err)
		_, err = orphan.SuperClass()
		assert.EqualError(t, err, "cannot resolve type description for com.example.Gone")
	})

	t.Run("object is built in", func(t *testing.T) {
		base, err := pool.Describe("com.example.Base").Resolve()
		require.NoError(t, err)
		obj, err := base.SuperClass()
		require.NoError(t, err)
		assert.Equal(t, ObjectClassName, obj.Name())
		assert.Empty(t, obj.SuperClassName())

		super, err := obj.SuperClass()
		assert.NoError(t, err)
		assert.Nil(t, super)
	})

	t.Run("nested class modifiers", func(t *testing.T) {
		inner, err := pool.Describe("com.example.Outer$Inner").Resolve()
		require.NoError(t, err)
		assert.Equal(t, classfile.AccProtected|classfile.AccStatic, inner.ActualModifiers())
	})

	t.Run("corrupt class file", func(t *testing.T) {
		broken := classpath.NewLoader("broken", nil,
			classpath.NewMemorySource("broken").Add("com.example.Bad", []byte{0xCA, 0xFE}))
		res := New(broken).Describe("com.example.Bad")
		assert.False(t, res.IsResolved())
		_, err := res.Resolve()
		require.Error(t, err)
		var unresolved *UnresolvedTypeError
		assert.False(t, errors.As(err, &unresolved))
	})
}

func TestPoolMemoizes(t *testing.T) {
	loader, src := fixtureLoader(t)
	pool := New(loader)

	pool.Describe("com.example.Foo")
	pool.Describe("com.example.Foo")
	pool.Describe("com.example.Missing")
	pool.Describe("com.example.Missing")
	assert.Equal(t, int32(2), src.opens.Load())
}

func TestCachingStrategy(t *testing.T) {
	loader, src := fixtureLoader(t)
	strategy := NewCachingStrategy(0)

	first := strategy.TypePool(loader)
	require.True(t, first.Describe("com.example.Foo").IsResolved())
	opens := src.opens.Load()

	second := strategy.TypePool(loader)
	require.True(t, second.Describe("com.example.Foo").IsResolved())
	assert.Equal(t, opens, src.opens.Load(), "second pool must reuse the shared resolution")
	assert.Equal(t, 1, strategy.Len())

	t.Run("keyed by loader identity", func(t *testing.T) {
		other, otherSrc := fixtureLoader(t)
		require.True(t, strategy.TypePool(other).Describe("com.example.Foo").IsResolved())
		assert.Equal(t, int32(1), otherSrc.opens.Load())
		assert.Equal(t, 2, strategy.Len())
	})

	t.Run("super types resolve through the strategy", func(t *testing.T) {
		foo, err := strategy.TypePool(loader).Describe("com.example.Foo").Resolve()
		require.NoError(t, err)
		base, err := foo.SuperClass()
		require.NoError(t, err)
		assert.Equal(t, "com.example.Base", base.Name())
	})

	t.Run("bounded", func(t *testing.T) {
		small := NewCachingStrategy(2)
		pool := small.TypePool(loader)
		for _, name := range []string{"com.example.Foo", "com.example.Base", "com.example.Marker"} {
			pool.Describe(name)
		}
		assert.Equal(t, 2, small.Len())
		small.Clear()
		assert.Equal(t, 0, small.Len())
	})
}
