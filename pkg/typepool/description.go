// Package typepool answers questions about the shape of classes visible to a
// classpath.Loader by parsing their class files. Nothing is loaded or
// initialized.
package typepool

import (
	"github.com/daimatz/gomuzzle/pkg/classfile"
)

// FieldDescription is a field declared by a class file.
type FieldDescription struct {
	Name       string
	Descriptor string
	Modifiers  int
}

// IsPrivate reports whether the field is private.
func (f FieldDescription) IsPrivate() bool { return f.Modifiers&classfile.AccPrivate != 0 }

// IsStatic reports whether the field is static.
func (f FieldDescription) IsStatic() bool { return f.Modifiers&classfile.AccStatic != 0 }

// MethodDescription is a method declared by a class file.
type MethodDescription struct {
	Name       string
	Descriptor string
	Modifiers  int
}

func (m MethodDescription) IsAbstract() bool { return m.Modifiers&classfile.AccAbstract != 0 }
func (m MethodDescription) IsPrivate() bool  { return m.Modifiers&classfile.AccPrivate != 0 }
func (m MethodDescription) IsStatic() bool   { return m.Modifiers&classfile.AccStatic != 0 }

// IsConstructor reports whether the method is an instance or class
// initializer.
func (m MethodDescription) IsConstructor() bool {
	return m.Name == classfile.ConstructorName || m.Name == classfile.ClassInitName
}

// TypeDescription describes a resolved class. Super types are resolved
// lazily through the pool that produced the description.
type TypeDescription struct {
	name       string
	superName  string
	interfaces []string
	modifiers  int
	fields     []FieldDescription
	methods    []MethodDescription
	pool       TypePool
}

// Name returns the binary class name.
func (t *TypeDescription) Name() string { return t.name }

// SuperClassName returns the binary name of the super class, "" for
// java.lang.Object and interfaces without one.
func (t *TypeDescription) SuperClassName() string { return t.superName }

// InterfaceNames returns the binary names of the direct super interfaces.
func (t *TypeDescription) InterfaceNames() []string { return t.interfaces }

// DeclaredFields returns the fields declared directly by the class.
func (t *TypeDescription) DeclaredFields() []FieldDescription { return t.fields }

// DeclaredMethods returns the methods declared directly by the class,
// including constructors.
func (t *TypeDescription) DeclaredMethods() []MethodDescription { return t.methods }

// ActualModifiers returns the class modifiers as declared in source: nested
// classes report their InnerClasses flags and ACC_SUPER is never set.
func (t *TypeDescription) ActualModifiers() int { return t.modifiers }

func (t *TypeDescription) IsAbstract() bool  { return t.modifiers&classfile.AccAbstract != 0 }
func (t *TypeDescription) IsInterface() bool { return t.modifiers&classfile.AccInterface != 0 }

// SuperClass resolves the super class. It returns nil, nil when there is
// none and an *UnresolvedTypeError when the super class is not on the class
// path.
func (t *TypeDescription) SuperClass() (*TypeDescription, error) {
	if t.superName == "" {
		return nil, nil
	}
	return t.pool.Describe(t.superName).Resolve()
}

// Interfaces resolves the direct super interfaces in declaration order.
func (t *TypeDescription) Interfaces() ([]*TypeDescription, error) {
	out := make([]*TypeDescription, 0, len(t.interfaces))
	for _, name := range t.interfaces {
		iface, err := t.pool.Describe(name).Resolve()
		if err != nil {
			return nil, err
		}
		out = append(out, iface)
	}
	return out, nil
}

func (t *TypeDescription) String() string { return t.name }

// describeClassFile converts a parsed class file into a TypeDescription.
func describeClassFile(cf *classfile.ClassFile, pool TypePool) (*TypeDescription, error) {
	internal, err := cf.ClassName()
	if err != nil {
		return nil, err
	}
	ifaces, err := cf.InterfaceNames()
	if err != nil {
		return nil, err
	}

	t := &TypeDescription{
		name:       classfile.BinaryName(internal),
		superName:  classfile.BinaryName(cf.SuperClassName()),
		interfaces: make([]string, len(ifaces)),
		modifiers:  actualModifiers(cf),
		fields:     make([]FieldDescription, len(cf.Fields)),
		methods:    make([]MethodDescription, len(cf.Methods)),
		pool:       pool,
	}
	for i, n := range ifaces {
		t.interfaces[i] = classfile.BinaryName(n)
	}
	for i, f := range cf.Fields {
		t.fields[i] = FieldDescription{Name: f.Name, Descriptor: f.Descriptor, Modifiers: int(f.AccessFlags)}
	}
	for i, m := range cf.Methods {
		t.methods[i] = MethodDescription{Name: m.Name, Descriptor: m.Descriptor, Modifiers: int(m.AccessFlags)}
	}
	return t, nil
}

func actualModifiers(cf *classfile.ClassFile) int {
	access := cf.AccessFlags
	if inner, ok := cf.InnerClassAccess(); ok {
		access = inner
	}
	return int(access &^ classfile.AccSuper)
}
