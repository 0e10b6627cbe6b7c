package classpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/daimatz/gomuzzle/pkg/classfile"
)

// Loader is the stand-in for a JVM class loader: a named set of class file
// sources with an optional parent. Loaders are compared by identity; two
// loaders over the same files are still distinct loaders. Parsed classes are
// cached per loader; LoadClass is safe for concurrent use.
type Loader struct {
	name    string
	parent  *Loader
	sources []Source

	mu      sync.Mutex
	classes map[string]*classfile.ClassFile
}

// NewLoader creates a loader that delegates to parent first.
func NewLoader(name string, parent *Loader, sources ...Source) *Loader {
	return &Loader{
		name:    name,
		parent:  parent,
		sources: sources,
		classes: make(map[string]*classfile.ClassFile),
	}
}

// NewLoaderFromPaths creates a loader over directories and archives.
func NewLoaderFromPaths(name string, parent *Loader, paths ...string) (*Loader, error) {
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		src, err := SourceFor(p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return NewLoader(name, parent, sources...), nil
}

// Name returns the loader name.
func (l *Loader) Name() string { return l.name }

// Parent returns the parent loader, nil for a root loader.
func (l *Loader) Parent() *Loader { return l.parent }

// Sources returns the loader's own sources.
func (l *Loader) Sources() []Source { return l.sources }

func (l *Loader) String() string {
	return fmt.Sprintf("Loader<%s>", l.name)
}

// Locate returns the class file bytes of a binary class name, asking the
// parent chain first.
func (l *Loader) Locate(className string) ([]byte, error) {
	data, err := l.Resource(classfile.ResourceName(className))
	if errors.Is(err, ErrClassNotFound) {
		return nil, fmt.Errorf("%s: class %s: %w", l, className, ErrClassNotFound)
	}
	return data, err
}

// Resource returns the bytes of any resource (com/example/Foo.class,
// META-INF/services/...), asking the parent chain first.
func (l *Loader) Resource(name string) ([]byte, error) {
	if l.parent != nil {
		data, err := l.parent.Resource(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	for _, src := range l.sources {
		data, err := src.Open(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: resource %s: %w", l, name, ErrClassNotFound)
}

// LoadClass locates and parses a class. The parsed class is cached and must
// not be modified by callers. Failures are not cached.
func (l *Loader) LoadClass(className string) (*classfile.ClassFile, error) {
	l.mu.Lock()
	cf, ok := l.classes[className]
	l.mu.Unlock()
	if ok {
		return cf, nil
	}

	data, err := l.Locate(className)
	if err != nil {
		return nil, err
	}
	cf, err = classfile.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing %s: %w", l, className, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.classes[className]; ok {
		return cached, nil
	}
	l.classes[className] = cf
	return cf, nil
}

var (
	bootstrapOnce  sync.Once
	bootstrapProxy *Loader
)

// BootstrapProxy returns the process-wide stand-in for the bootstrap class
// loader. It serves java.base.jmod when one can be found and is empty
// otherwise.
func BootstrapProxy() *Loader {
	bootstrapOnce.Do(func() {
		bootstrapProxy = NewBootstrapProxy(FindJmod())
	})
	return bootstrapProxy
}

// NewBootstrapProxy creates a bootstrap stand-in over the given jmod. An
// empty path yields a loader without sources.
func NewBootstrapProxy(jmodPath string) *Loader {
	if jmodPath == "" {
		return NewLoader("bootstrap", nil)
	}
	return NewLoader("bootstrap", nil, NewJarSource(jmodPath))
}

// FindJmod locates java.base.jmod: JAVA_BASE_JMOD, then JAVA_HOME, then the
// usual Linux JDK locations. Returns "" when nothing is found.
func FindJmod() string {
	// 1. Explicit env var
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	// 2. JAVA_HOME
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	// 3. Glob fallback
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}
