package muzzle

import (
	"github.com/daimatz/gomuzzle/pkg/classfile"
	"github.com/daimatz/gomuzzle/pkg/typepool"
)

// HelperType is a read-only view of a type in a helper class hierarchy. The
// type is either known only from a Reference (another helper class) or
// resolved from the class path.
type HelperType interface {
	IsAbstract() bool
	HasSuperTypes() bool
	// SuperTypes returns the super class first, then the interfaces in
	// declaration order.
	SuperTypes() ([]HelperType, error)
	// Methods returns the overridable methods: no static, private or
	// initializer methods.
	Methods() []HelperMethod
	// Fields returns the fields visible to subclasses.
	Fields() []HelperField
}

// HelperMethod is a method of a HelperType. Identity is (Name, Descriptor).
type HelperMethod struct {
	Abstract       bool
	DeclaringClass string
	Name           string
	Descriptor     string
}

func (m HelperMethod) key() memberKey { return memberKey{m.Name, m.Descriptor} }

// HelperField is a field of a HelperType.
type HelperField struct {
	Name       string
	Descriptor string
}

// helperTypeFactory builds HelperTypes for one matching pass.
type helperTypeFactory struct {
	pool       typepool.TypePool
	references map[string]*Reference
}

func newHelperTypeFactory(pool typepool.TypePool, references map[string]*Reference) *helperTypeFactory {
	return &helperTypeFactory{pool: pool, references: references}
}

func (f *helperTypeFactory) fromReference(ref *Reference) HelperType {
	return &referenceType{ref: ref, factory: f}
}

// create prefers the class path over helper references.
func (f *helperTypeFactory) create(className string) (HelperType, error) {
	res := f.pool.Describe(className)
	if res.IsResolved() {
		t, err := res.Resolve()
		if err != nil {
			return nil, err
		}
		return &classpathType{typ: t}, nil
	}
	if ref, ok := f.references[className]; ok {
		return f.fromReference(ref), nil
	}
	_, err := res.Resolve()
	return nil, err
}

type referenceType struct {
	ref     *Reference
	factory *helperTypeFactory
}

func (t *referenceType) IsAbstract() bool { return hasFlag(t.ref.Flags, FlagAbstract) }

func (t *referenceType) HasSuperTypes() bool {
	return t.ref.SuperName != "" || len(t.ref.Interfaces) > 0
}

func (t *referenceType) SuperTypes() ([]HelperType, error) {
	names := make([]string, 0, 1+len(t.ref.Interfaces))
	if t.ref.SuperName != "" {
		names = append(names, t.ref.SuperName)
	}
	names = append(names, t.ref.Interfaces...)

	out := make([]HelperType, 0, len(names))
	for _, name := range names {
		st, err := t.factory.create(name)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (t *referenceType) Methods() []HelperMethod {
	var out []HelperMethod
	for _, m := range t.ref.Methods {
		if hasFlag(m.Flags, FlagStatic) || hasFlag(m.Flags, FlagPrivate) ||
			m.Name == classfile.ConstructorName || m.Name == classfile.ClassInitName {
			continue
		}
		out = append(out, HelperMethod{
			Abstract:       hasFlag(m.Flags, FlagAbstract),
			DeclaringClass: t.ref.ClassName,
			Name:           m.Name,
			Descriptor:     m.Descriptor,
		})
	}
	return out
}

func (t *referenceType) Fields() []HelperField {
	var out []HelperField
	for _, f := range t.ref.Fields {
		if !f.Declared || hasFlag(f.Flags, FlagPrivate) {
			continue
		}
		out = append(out, HelperField{Name: f.Name, Descriptor: f.Type})
	}
	return out
}

type classpathType struct {
	typ *typepool.TypeDescription
}

func (t *classpathType) IsAbstract() bool { return t.typ.IsAbstract() }

func (t *classpathType) HasSuperTypes() bool {
	return t.typ.SuperClassName() != "" || len(t.typ.InterfaceNames()) > 0
}

func (t *classpathType) SuperTypes() ([]HelperType, error) {
	var out []HelperType
	super, err := t.typ.SuperClass()
	if err != nil {
		return nil, err
	}
	if super != nil {
		out = append(out, &classpathType{typ: super})
	}
	ifaces, err := t.typ.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		out = append(out, &classpathType{typ: iface})
	}
	return out, nil
}

func (t *classpathType) Methods() []HelperMethod {
	var out []HelperMethod
	for _, m := range t.typ.DeclaredMethods() {
		if m.IsStatic() || m.IsPrivate() || m.IsConstructor() {
			continue
		}
		out = append(out, HelperMethod{
			Abstract:       m.IsAbstract(),
			DeclaringClass: t.typ.Name(),
			Name:           m.Name,
			Descriptor:     m.Descriptor,
		})
	}
	return out
}

func (t *classpathType) Fields() []HelperField {
	var out []HelperField
	for _, f := range t.typ.DeclaredFields() {
		if f.IsPrivate() {
			continue
		}
		out = append(out, HelperField{Name: f.Name, Descriptor: f.Descriptor})
	}
	return out
}
