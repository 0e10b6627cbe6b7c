package typepool

import (
	"errors"
	"fmt"
	"sync"
	"weak"

	"github.com/daimatz/gomuzzle/pkg/classfile"
	"github.com/daimatz/gomuzzle/pkg/classpath"
)

// UnresolvedTypeErrorPrefix starts the message of every UnresolvedTypeError.
const UnresolvedTypeErrorPrefix = "cannot resolve type description for "

// UnresolvedTypeError reports a type that is not on the class path.
type UnresolvedTypeError struct {
	Name string
}

func (e *UnresolvedTypeError) Error() string {
	return UnresolvedTypeErrorPrefix + e.Name
}

func (e *UnresolvedTypeError) Unwrap() error {
	return classpath.ErrClassNotFound
}

var errLoaderCollected = errors.New("typepool: class loader was garbage collected")

// TypePool describes classes by name.
type TypePool interface {
	Describe(name string) Resolution
}

// Strategy hands out the TypePool for a loader.
type Strategy interface {
	TypePool(loader *classpath.Loader) TypePool
}

// Resolution is the outcome of describing a class.
type Resolution struct {
	name string
	typ  *TypeDescription
	err  error
}

// Resolved wraps an existing description.
func Resolved(t *TypeDescription) Resolution {
	return Resolution{name: t.name, typ: t}
}

// Unresolved is the resolution of a class that does not exist.
func Unresolved(name string) Resolution {
	return Resolution{name: name}
}

// IsResolved reports whether the class exists and could be parsed.
func (r Resolution) IsResolved() bool { return r.typ != nil }

// Resolve returns the description, an *UnresolvedTypeError when the class
// does not exist, or the error met while reading it.
func (r Resolution) Resolve() (*TypeDescription, error) {
	if r.typ != nil {
		return r.typ, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, &UnresolvedTypeError{Name: r.name}
}

type resolutionCache interface {
	get(name string) (Resolution, bool)
	put(name string, r Resolution)
}

// Pool is a TypePool reading class files through a classpath.Loader.
type Pool struct {
	loader *classpath.Loader
	cache  resolutionCache
	// resolver is handed to descriptions for super type lookups.
	resolver TypePool
}

// New returns a pool for loader that remembers every resolution it makes.
func New(loader *classpath.Loader) *Pool {
	p := &Pool{
		loader: loader,
		cache:  &mapCache{entries: make(map[string]Resolution)},
	}
	p.resolver = p
	return p
}

// Loader returns the loader the pool reads from.
func (p *Pool) Loader() *classpath.Loader { return p.loader }

// Describe resolves a class by binary (java.lang.String) or internal
// (java/lang/String) name.
func (p *Pool) Describe(name string) Resolution {
	name = classfile.BinaryName(name)
	if r, ok := p.cache.get(name); ok {
		return r
	}
	r := p.load(name)
	p.cache.put(name, r)
	return r
}

func (p *Pool) load(name string) Resolution {
	cf, err := p.loader.LoadClass(name)
	if errors.Is(err, classpath.ErrClassNotFound) {
		if name == ObjectClassName {
			return Resolved(objectDescription(p.resolver))
		}
		return Unresolved(name)
	}
	if err != nil {
		return Resolution{name: name, err: err}
	}
	t, err := describeClassFile(cf, p.resolver)
	if err != nil {
		return Resolution{name: name, err: fmt.Errorf("describing %s: %w", name, err)}
	}
	if t.name != name {
		return Resolution{name: name, err: fmt.Errorf("class file for %s declares %s", name, t.name)}
	}
	return Resolved(t)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]Resolution
}

func (c *mapCache) get(name string) (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[name]
	return r, ok
}

func (c *mapCache) put(name string, r Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = r
}

// SimpleStrategy creates a fresh pool on every call. Nothing is shared
// between matching passes.
type SimpleStrategy struct{}

func (SimpleStrategy) TypePool(loader *classpath.Loader) TypePool {
	return New(loader)
}

// detachedPool resolves through a strategy without keeping the loader alive.
// Descriptions held by a shared cache use it for their super type lookups.
type detachedPool struct {
	loader   weak.Pointer[classpath.Loader]
	strategy Strategy
}

func (d *detachedPool) Describe(name string) Resolution {
	l := d.loader.Value()
	if l == nil {
		return Resolution{name: name, err: errLoaderCollected}
	}
	return d.strategy.TypePool(l).Describe(name)
}
