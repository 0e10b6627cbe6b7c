package muzzle

import (
	"strconv"
	"strings"

	"github.com/daimatz/gomuzzle/pkg/classpath"
)

// Mismatch is one incompatibility between a Reference and a class path.
type Mismatch interface {
	// Sources are the instrumentation locations the requirement came from.
	Sources() []Source
	// Details describes the mismatch without its sources.
	Details() string
	String() string
}

type mismatchSources []Source

func (s mismatchSources) Sources() []Source { return s }

func formatMismatch(m Mismatch) string {
	if srcs := m.Sources(); len(srcs) > 0 {
		return srcs[0].String() + " " + m.Details()
	}
	return "<no-source> " + m.Details()
}

// MissingClass is a required class absent from the class path.
type MissingClass struct {
	mismatchSources
	ClassName string
}

// NewMissingClass reports ref's own class as missing.
func NewMissingClass(ref *Reference) *MissingClass {
	return &MissingClass{mismatchSources: ref.Sources, ClassName: ref.ClassName}
}

func (m *MissingClass) Details() string { return "Missing class " + m.ClassName }
func (m *MissingClass) String() string  { return formatMismatch(m) }

// MissingField is a required field not found in the searched hierarchy.
type MissingField struct {
	mismatchSources
	ClassName  string
	FieldName  string
	Descriptor string
}

func (m *MissingField) Details() string {
	return "Missing field " + m.ClassName + "#" + m.FieldName + m.Descriptor
}
func (m *MissingField) String() string { return formatMismatch(m) }

// MissingMethod is a required method not found, or an abstract method a
// helper class leaves unimplemented.
type MissingMethod struct {
	mismatchSources
	ClassName  string
	MethodName string
	Descriptor string
}

func (m *MissingMethod) Details() string {
	return "Missing method " + m.ClassName + "#" + m.MethodName + m.Descriptor
}
func (m *MissingMethod) String() string { return formatMismatch(m) }

// MissingFlag is a class or member that exists but violates a modifier
// requirement. Found holds the actual access bits.
type MissingFlag struct {
	mismatchSources
	Description string
	Expected    Flag
	Found       int
}

func (m *MissingFlag) Details() string {
	return m.Description + " requires flag " + m.Expected.String() + " found " + strconv.Itoa(m.Found)
}
func (m *MissingFlag) String() string { return formatMismatch(m) }

// ReferenceCheckError is an unexpected failure while checking a reference.
// It counts as a mismatch.
type ReferenceCheckError struct {
	mismatchSources
	Err       error
	Reference *Reference
	Loader    *classpath.Loader
}

func (m *ReferenceCheckError) Details() string {
	var sb strings.Builder
	sb.WriteString("Failed to generate reference check for: ")
	sb.WriteString(m.Reference.String())
	sb.WriteString(" on classloader ")
	sb.WriteString(m.Loader.String())
	sb.WriteString("\n")
	sb.WriteString(m.Err.Error())
	return sb.String()
}
func (m *ReferenceCheckError) String() string { return formatMismatch(m) }

// mismatchKind names a mismatch variant for logs and metrics.
func mismatchKind(m Mismatch) string {
	switch m.(type) {
	case *MissingClass:
		return "missing_class"
	case *MissingField:
		return "missing_field"
	case *MissingMethod:
		return "missing_method"
	case *MissingFlag:
		return "missing_flag"
	case *ReferenceCheckError:
		return "reference_check_error"
	}
	return "unknown"
}
