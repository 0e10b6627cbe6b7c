package muzzle

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/gomuzzle/pkg/classfile"
	"github.com/daimatz/gomuzzle/pkg/classpath"
	"github.com/daimatz/gomuzzle/pkg/typepool"
)

const helperPackage = "io.opentelemetry.javaagent.instrumentation.test."

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newLoader builds a loader over synthesized classes. An empty bootstrap
// keeps the results independent of any JDK on the machine.
func newLoader(t *testing.T, name string, classes ...*classfile.Builder) *classpath.Loader {
	t.Helper()
	mem := classpath.NewMemorySource(name)
	for _, b := range classes {
		cf := b.ClassFile()
		internal, err := cf.ClassName()
		require.NoError(t, err)
		data, err := b.Bytes()
		require.NoError(t, err)
		mem.Add(classfile.BinaryName(internal), data)
	}
	return classpath.NewLoader(name, nil, mem)
}

// countingStrategy counts pools handed out and classes described.
type countingStrategy struct {
	pools     atomic.Int32
	describes atomic.Int32
}

func (s *countingStrategy) TypePool(loader *classpath.Loader) typepool.TypePool {
	s.pools.Add(1)
	return &countingPool{pool: typepool.New(loader), counter: &s.describes}
}

type countingPool struct {
	pool    *typepool.Pool
	counter *atomic.Int32
}

func (p *countingPool) Describe(name string) typepool.Resolution {
	p.counter.Add(1)
	return p.pool.Describe(name)
}

type panickingStrategy struct{}

func (panickingStrategy) TypePool(*classpath.Loader) typepool.TypePool { return panickingPool{} }

type panickingPool struct{}

func (panickingPool) Describe(string) typepool.Resolution { panic("pool exploded") }

func newMatcher(helpers []string, refs []*Reference, opts ...Option) *ReferenceMatcher {
	opts = append([]Option{
		WithLogger(discardLogger),
		WithBootstrapProxy(classpath.NewBootstrapProxy("")),
	}, opts...)
	return NewReferenceMatcher(helpers, refs, opts...)
}

func details(mismatches []Mismatch) []string {
	out := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		out = append(out, m.Details())
	}
	return out
}

func src(name string, line int) []Source {
	return []Source{{Name: name, Line: line}}
}
