package muzzle

import (
	"errors"
	"fmt"
	"slices"
)

// ErrIllegalMerge is returned when merging references or members that do not
// describe the same thing.
var ErrIllegalMerge = errors.New("illegal merge")

// Source is a location in instrumentation code that produced a requirement.
type Source struct {
	Name string
	Line int
}

func (s Source) String() string {
	return fmt.Sprintf("%s:%d", s.Name, s.Line)
}

// Field is a field the instrumentation reads or writes. Type is the field
// descriptor. Declared marks fields the referencing class declares itself.
type Field struct {
	Name     string
	Type     string
	Flags    []Flag
	Declared bool
	Sources  []Source
}

// Merge combines two references to the same field.
func (f Field) Merge(other Field) (Field, error) {
	if f.Name != other.Name || f.Type != other.Type {
		return Field{}, fmt.Errorf("%w: field %s%s != %s%s", ErrIllegalMerge, f.Name, f.Type, other.Name, other.Type)
	}
	return Field{
		Name:     f.Name,
		Type:     f.Type,
		Flags:    addFlags(slices.Clone(f.Flags), other.Flags...),
		Declared: f.Declared || other.Declared,
		Sources:  mergeSources(f.Sources, other.Sources),
	}, nil
}

func (f Field) String() string {
	return "FieldRef:" + f.Name + f.Type
}

// Method is a method the instrumentation calls or declares.
type Method struct {
	Name       string
	Descriptor string
	Flags      []Flag
	Sources    []Source
}

// Merge combines two references to the same method.
func (m Method) Merge(other Method) (Method, error) {
	if m.Name != other.Name || m.Descriptor != other.Descriptor {
		return Method{}, fmt.Errorf("%w: method %s%s != %s%s", ErrIllegalMerge, m.Name, m.Descriptor, other.Name, other.Descriptor)
	}
	return Method{
		Name:       m.Name,
		Descriptor: m.Descriptor,
		Flags:      addFlags(slices.Clone(m.Flags), other.Flags...),
		Sources:    mergeSources(m.Sources, other.Sources),
	}, nil
}

func (m Method) String() string {
	return m.Name + m.Descriptor
}

// Reference is the expected shape of one class. Class names are binary
// names (com.example.Foo). References are not modified once built.
type Reference struct {
	ClassName  string
	SuperName  string
	Interfaces []string
	Flags      []Flag
	Fields     []Field
	Methods    []Method
	Sources    []Source
}

func (r *Reference) String() string {
	return "Reference<" + r.ClassName + ">"
}

// Merge returns a new reference combining r and other, which must describe
// the same class.
func (r *Reference) Merge(other *Reference) (*Reference, error) {
	if r.ClassName != other.ClassName {
		return nil, fmt.Errorf("%w: %s != %s", ErrIllegalMerge, r, other)
	}
	superName := r.SuperName
	if superName == "" {
		superName = other.SuperName
	}
	fields, err := mergeMembers(r.Fields, other.Fields, fieldKey, Field.Merge)
	if err != nil {
		return nil, err
	}
	methods, err := mergeMembers(r.Methods, other.Methods, methodKey, Method.Merge)
	if err != nil {
		return nil, err
	}
	return &Reference{
		ClassName:  r.ClassName,
		SuperName:  superName,
		Interfaces: mergeStrings(r.Interfaces, other.Interfaces),
		Flags:      addFlags(slices.Clone(r.Flags), other.Flags...),
		Fields:     fields,
		Methods:    methods,
		Sources:    mergeSources(r.Sources, other.Sources),
	}, nil
}

// FindField returns the field with the given name and type.
func (r *Reference) FindField(name, typ string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name && f.Type == typ {
			return f, true
		}
	}
	return Field{}, false
}

// FindMethod returns the method with the given name and descriptor.
func (r *Reference) FindMethod(name, desc string) (Method, bool) {
	for _, m := range r.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m, true
		}
	}
	return Method{}, false
}

type memberKey struct {
	name string
	desc string
}

func fieldKey(f Field) memberKey   { return memberKey{f.Name, f.Type} }
func methodKey(m Method) memberKey { return memberKey{m.Name, m.Descriptor} }

func mergeMembers[T any](a, b []T, key func(T) memberKey, merge func(T, T) (T, error)) ([]T, error) {
	out := slices.Clone(a)
	pos := make(map[memberKey]int, len(out))
	for i, m := range out {
		pos[key(m)] = i
	}
	for _, m := range b {
		k := key(m)
		i, ok := pos[k]
		if !ok {
			pos[k] = len(out)
			out = append(out, m)
			continue
		}
		merged, err := merge(out[i], m)
		if err != nil {
			return nil, err
		}
		out[i] = merged
	}
	return out, nil
}

func mergeSources(a, b []Source) []Source {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func mergeStrings(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// ReferenceBuilder accumulates the parts of a Reference.
type ReferenceBuilder struct {
	ref *Reference
}

// NewReferenceBuilder starts a reference to className.
func NewReferenceBuilder(className string) *ReferenceBuilder {
	return &ReferenceBuilder{ref: &Reference{ClassName: className}}
}

func (b *ReferenceBuilder) SetSuperName(name string) *ReferenceBuilder {
	b.ref.SuperName = name
	return b
}

func (b *ReferenceBuilder) AddInterfaces(names ...string) *ReferenceBuilder {
	b.ref.Interfaces = mergeStrings(b.ref.Interfaces, names)
	return b
}

func (b *ReferenceBuilder) AddFlags(flags ...Flag) *ReferenceBuilder {
	b.ref.Flags = addFlags(b.ref.Flags, flags...)
	return b
}

func (b *ReferenceBuilder) AddSource(name string, line int) *ReferenceBuilder {
	b.ref.Sources = mergeSources(b.ref.Sources, []Source{{Name: name, Line: line}})
	return b
}

// AddField adds a field, merging with an existing field of the same name
// and type.
func (b *ReferenceBuilder) AddField(sources []Source, flags []Flag, name, typ string, declared bool) *ReferenceBuilder {
	f := Field{Name: name, Type: typ, Flags: addFlags(nil, flags...), Declared: declared, Sources: mergeSources(nil, sources)}
	// same key, cannot fail
	b.ref.Fields, _ = mergeMembers(b.ref.Fields, []Field{f}, fieldKey, Field.Merge)
	return b
}

// AddMethod adds a method, merging with an existing method of the same name
// and descriptor.
func (b *ReferenceBuilder) AddMethod(sources []Source, flags []Flag, name, desc string) *ReferenceBuilder {
	m := Method{Name: name, Descriptor: desc, Flags: addFlags(nil, flags...), Sources: mergeSources(nil, sources)}
	b.ref.Methods, _ = mergeMembers(b.ref.Methods, []Method{m}, methodKey, Method.Merge)
	return b
}

// Build returns the reference. The builder must not be used afterwards.
func (b *ReferenceBuilder) Build() *Reference {
	return b.ref
}
