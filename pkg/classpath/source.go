package classpath

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/daimatz/gomuzzle/pkg/classfile"
)

// ErrClassNotFound is returned (wrapped) when no source carries a class.
var ErrClassNotFound = errors.New("class not found")

// Source yields class file bytes by resource name (com/example/Foo.class).
type Source interface {
	Open(resource string) ([]byte, error)
	String() string
}

// DirSource reads class files from a directory tree.
type DirSource struct {
	Dir string
}

// NewDirSource creates a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

func (s *DirSource) Open(resource string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, filepath.FromSlash(resource)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("dir %s: %s: %w", s.Dir, resource, ErrClassNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("dir %s: reading %s: %w", s.Dir, resource, err)
	}
	return data, nil
}

func (s *DirSource) String() string { return s.Dir }

// JarSource reads class files and other resources from a jar or a JDK jmod.
// Only the classes/ section of a jmod is served. The archive index is built
// on first use.
type JarSource struct {
	Path string

	once    sync.Once
	openErr error
	files   map[string]*zip.File
	mu      sync.Mutex
}

const jmodHeaderLen = 4

// NewJarSource creates a JarSource for a .jar, .zip or .jmod file.
func NewJarSource(path string) *JarSource {
	return &JarSource{Path: path}
}

func (s *JarSource) ensureIndex() error {
	s.once.Do(func() {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			s.openErr = fmt.Errorf("jar: opening %s: %w", s.Path, err)
			return
		}

		prefix := ""
		if bytes.HasPrefix(data, []byte("JM\x01\x00")) {
			data = data[jmodHeaderLen:] // Skip "JM\x01\x00" header
			prefix = "classes/"
		}

		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			s.openErr = fmt.Errorf("jar: opening zip %s: %w", s.Path, err)
			return
		}

		s.files = make(map[string]*zip.File, len(zr.File))
		for _, f := range zr.File {
			name, ok := strings.CutPrefix(f.Name, prefix)
			if !ok || name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			s.files[name] = f
		}
	})
	return s.openErr
}

func (s *JarSource) Open(resource string) ([]byte, error) {
	if err := s.ensureIndex(); err != nil {
		return nil, err
	}
	f, ok := s.files[resource]
	if !ok {
		return nil, fmt.Errorf("jar %s: %s: %w", s.Path, resource, ErrClassNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("jar %s: opening %s: %w", s.Path, resource, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("jar %s: reading %s: %w", s.Path, resource, err)
	}
	return data, nil
}

func (s *JarSource) String() string { return s.Path }

// MemorySource serves class files held in memory, keyed by resource name.
type MemorySource struct {
	Name string

	mu      sync.RWMutex
	classes map[string][]byte
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource(name string) *MemorySource {
	return &MemorySource{Name: name, classes: make(map[string][]byte)}
}

// Add registers class bytes under the resource name of a binary class name.
func (s *MemorySource) Add(className string, data []byte) *MemorySource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[classfile.ResourceName(className)] = data
	return s
}

// AddResource registers raw bytes under a resource path.
func (s *MemorySource) AddResource(resource string, data []byte) *MemorySource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[resource] = data
	return s
}

func (s *MemorySource) Open(resource string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.classes[resource]
	if !ok {
		return nil, fmt.Errorf("memory %s: %s: %w", s.Name, resource, ErrClassNotFound)
	}
	return data, nil
}

func (s *MemorySource) String() string { return "memory:" + s.Name }

// SourceFor picks a Source implementation from a path: directories become
// DirSources, everything else is treated as an archive.
func SourceFor(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("classpath entry %s: %w", path, err)
	}
	if info.IsDir() {
		return NewDirSource(path), nil
	}
	return NewJarSource(path), nil
}
