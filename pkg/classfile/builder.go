package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Builder assembles a ClassFile from scratch. Names are internal names
// (java/lang/Object). It is meant for generating fixtures and stubs, not for
// rewriting existing classes.
type Builder struct {
	cf         *ClassFile
	index      map[string]uint16
	bootstraps []BootstrapMethod
}

// NewBuilder starts a public class named name extending java/lang/Object.
func NewBuilder(name string) *Builder {
	b := &Builder{
		cf: &ClassFile{
			MajorVersion: 52,
			ConstantPool: []ConstantPoolEntry{nil},
			AccessFlags:  AccPublic | AccSuper,
		},
		index: make(map[string]uint16),
	}
	b.cf.ThisClass = b.Class(name)
	b.cf.SuperClass = b.Class("java/lang/Object")
	return b
}

// Access replaces the class access flags.
func (b *Builder) Access(flags uint16) *Builder {
	b.cf.AccessFlags = flags
	return b
}

// Super sets the super class. An empty name clears it, as for java/lang/Object.
func (b *Builder) Super(name string) *Builder {
	if name == "" {
		b.cf.SuperClass = 0
		return b
	}
	b.cf.SuperClass = b.Class(name)
	return b
}

// Interfaces appends direct super interfaces.
func (b *Builder) Interfaces(names ...string) *Builder {
	for _, n := range names {
		b.cf.Interfaces = append(b.cf.Interfaces, b.Class(n))
	}
	return b
}

// Field declares a field.
func (b *Builder) Field(access uint16, name, desc string) *Builder {
	b.Utf8(name)
	b.Utf8(desc)
	b.cf.Fields = append(b.cf.Fields, FieldInfo{AccessFlags: access, Name: name, Descriptor: desc})
	return b
}

// Method declares a method without a body.
func (b *Builder) Method(access uint16, name, desc string) *Builder {
	b.Utf8(name)
	b.Utf8(desc)
	b.cf.Methods = append(b.cf.Methods, MethodInfo{AccessFlags: access, Name: name, Descriptor: desc})
	return b
}

// MethodWithCode declares a method with the given bytecode. lines, if any,
// become its LineNumberTable.
func (b *Builder) MethodWithCode(access uint16, name, desc string, code []byte, lines ...LineNumber) *Builder {
	b.Utf8(name)
	b.Utf8(desc)
	b.Utf8("Code")

	var data bytes.Buffer
	put := func(v any) { _ = binary.Write(&data, binary.BigEndian, v) }
	put(uint16(8)) // max_stack
	put(uint16(8)) // max_locals
	put(uint32(len(code)))
	data.Write(code)
	put(uint16(0)) // exception_table_length
	if len(lines) == 0 {
		put(uint16(0))
	} else {
		lnt := b.Utf8("LineNumberTable")
		put(uint16(1))
		put(lnt)
		put(uint32(2 + 4*len(lines)))
		put(uint16(len(lines)))
		for _, ln := range lines {
			put(ln.StartPC)
			put(ln.Line)
		}
	}

	b.cf.Methods = append(b.cf.Methods, MethodInfo{
		AccessFlags: access,
		Name:        name,
		Descriptor:  desc,
		Attributes:  []AttributeInfo{{Name: "Code", Data: data.Bytes()}},
	})
	return b
}

// NestedIn records the class as a member of outer with the given inner
// access flags, as javac does in the InnerClasses attribute.
func (b *Builder) NestedIn(outer, simpleName string, access uint16) *Builder {
	var data bytes.Buffer
	put := func(v any) { _ = binary.Write(&data, binary.BigEndian, v) }
	b.Utf8("InnerClasses")
	put(uint16(1))
	put(b.cf.ThisClass)
	put(b.Class(outer))
	put(b.Utf8(simpleName))
	put(access)
	b.cf.Attributes = append(b.cf.Attributes, AttributeInfo{Name: "InnerClasses", Data: data.Bytes()})
	return b
}

// Utf8 interns a CONSTANT_Utf8 and returns its index.
func (b *Builder) Utf8(s string) uint16 {
	return b.intern("u:"+s, func() ConstantPoolEntry { return &ConstantUtf8{Value: s} })
}

// Class interns a CONSTANT_Class and returns its index.
func (b *Builder) Class(name string) uint16 {
	nameIdx := b.Utf8(name)
	return b.intern("c:"+name, func() ConstantPoolEntry { return &ConstantClass{NameIndex: nameIdx} })
}

// FieldRef interns a CONSTANT_Fieldref and returns its index.
func (b *Builder) FieldRef(owner, name, desc string) uint16 {
	cls, nat := b.Class(owner), b.nameAndType(name, desc)
	return b.intern("f:"+owner+"."+name+":"+desc, func() ConstantPoolEntry {
		return &ConstantFieldref{ClassIndex: cls, NameAndTypeIndex: nat}
	})
}

// MethodRef interns a CONSTANT_Methodref and returns its index.
func (b *Builder) MethodRef(owner, name, desc string) uint16 {
	cls, nat := b.Class(owner), b.nameAndType(name, desc)
	return b.intern("m:"+owner+"."+name+desc, func() ConstantPoolEntry {
		return &ConstantMethodref{ClassIndex: cls, NameAndTypeIndex: nat}
	})
}

// InterfaceMethodRef interns a CONSTANT_InterfaceMethodref and returns its index.
func (b *Builder) InterfaceMethodRef(owner, name, desc string) uint16 {
	cls, nat := b.Class(owner), b.nameAndType(name, desc)
	return b.intern("i:"+owner+"."+name+desc, func() ConstantPoolEntry {
		return &ConstantInterfaceMethodref{ClassIndex: cls, NameAndTypeIndex: nat}
	})
}

// MethodHandle interns a CONSTANT_MethodHandle of the given kind pointing
// at the member ref and returns its index.
func (b *Builder) MethodHandle(kind uint8, ref uint16) uint16 {
	return b.intern(fmt.Sprintf("h:%d:%d", kind, ref), func() ConstantPoolEntry {
		return &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: ref}
	})
}

// MethodType interns a CONSTANT_MethodType and returns its index.
func (b *Builder) MethodType(desc string) uint16 {
	d := b.Utf8(desc)
	return b.intern("t:"+desc, func() ConstantPoolEntry { return &ConstantMethodType{DescriptorIndex: d} })
}

// InvokeDynamic registers a bootstrap method with its static arguments and
// returns the index of a CONSTANT_InvokeDynamic call site using it.
func (b *Builder) InvokeDynamic(bootstrap uint16, args []uint16, name, desc string) uint16 {
	nat := b.nameAndType(name, desc)
	b.Utf8("BootstrapMethods")
	b.bootstraps = append(b.bootstraps, BootstrapMethod{MethodRef: bootstrap, Arguments: args})
	bsm := uint16(len(b.bootstraps) - 1)
	idx := uint16(len(b.cf.ConstantPool))
	b.cf.ConstantPool = append(b.cf.ConstantPool, &ConstantInvokeDynamic{BootstrapMethodAttrIndex: bsm, NameAndTypeIndex: nat})
	return idx
}

func (b *Builder) nameAndType(name, desc string) uint16 {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.intern("n:"+name+":"+desc, func() ConstantPoolEntry {
		return &ConstantNameAndType{NameIndex: n, DescriptorIndex: d}
	})
}

func (b *Builder) intern(key string, mk func() ConstantPoolEntry) uint16 {
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := uint16(len(b.cf.ConstantPool))
	b.cf.ConstantPool = append(b.cf.ConstantPool, mk())
	b.index[key] = idx
	return idx
}

// ClassFile returns the assembled class file.
func (b *Builder) ClassFile() *ClassFile {
	if len(b.bootstraps) == 0 {
		return b.cf
	}
	var data bytes.Buffer
	put := func(v any) { _ = binary.Write(&data, binary.BigEndian, v) }
	put(uint16(len(b.bootstraps)))
	for _, bm := range b.bootstraps {
		put(bm.MethodRef)
		put(uint16(len(bm.Arguments)))
		for _, arg := range bm.Arguments {
			put(arg)
		}
	}
	attrs := make([]AttributeInfo, 0, len(b.cf.Attributes)+1)
	for _, attr := range b.cf.Attributes {
		if attr.Name != "BootstrapMethods" {
			attrs = append(attrs, attr)
		}
	}
	b.cf.Attributes = append(attrs, AttributeInfo{Name: "BootstrapMethods", Data: data.Bytes()})
	return b.cf
}

// Bytes encodes the assembled class file.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, b.ClassFile()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
