package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Write encodes cf in class file format. Method Code attributes are written
// from the raw Attributes; the decoded Code field is ignored.
func Write(w io.Writer, cf *ClassFile) error {
	var buf bytes.Buffer
	put := func(v any) { _ = binary.Write(&buf, binary.BigEndian, v) }

	put(uint32(classMagic))
	put(cf.MinorVersion)
	put(cf.MajorVersion)

	put(uint16(len(cf.ConstantPool)))
	for i := 1; i < len(cf.ConstantPool); i++ {
		entry := cf.ConstantPool[i]
		if entry == nil {
			// second slot of a long or double
			continue
		}
		if err := writeConstant(&buf, entry); err != nil {
			return fmt.Errorf("writing constant pool entry %d: %w", i, err)
		}
	}

	put(cf.AccessFlags)
	put(cf.ThisClass)
	put(cf.SuperClass)
	put(uint16(len(cf.Interfaces)))
	for _, idx := range cf.Interfaces {
		put(idx)
	}

	put(uint16(len(cf.Fields)))
	for _, f := range cf.Fields {
		if err := writeMember(&buf, cf.ConstantPool, f.AccessFlags, f.Name, f.Descriptor, f.Attributes); err != nil {
			return fmt.Errorf("writing field %s: %w", f.Name, err)
		}
	}
	put(uint16(len(cf.Methods)))
	for _, m := range cf.Methods {
		if err := writeMember(&buf, cf.ConstantPool, m.AccessFlags, m.Name, m.Descriptor, m.Attributes); err != nil {
			return fmt.Errorf("writing method %s: %w", m.Name, err)
		}
	}
	if err := writeAttributes(&buf, cf.ConstantPool, cf.Attributes); err != nil {
		return fmt.Errorf("writing class attributes: %w", err)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeConstant(buf *bytes.Buffer, entry ConstantPoolEntry) error {
	put := func(v any) { _ = binary.Write(buf, binary.BigEndian, v) }
	put(entry.Tag())
	switch c := entry.(type) {
	case *ConstantUtf8:
		if len(c.Value) > math.MaxUint16 {
			return fmt.Errorf("utf8 constant too long: %d bytes", len(c.Value))
		}
		put(uint16(len(c.Value)))
		buf.WriteString(c.Value)
	case *ConstantInteger:
		put(c.Value)
	case *ConstantFloat:
		put(math.Float32bits(c.Value))
	case *ConstantLong:
		put(c.Value)
	case *ConstantDouble:
		put(math.Float64bits(c.Value))
	case *ConstantClass:
		put(c.NameIndex)
	case *ConstantString:
		put(c.StringIndex)
	case *ConstantFieldref:
		put(c.ClassIndex)
		put(c.NameAndTypeIndex)
	case *ConstantMethodref:
		put(c.ClassIndex)
		put(c.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		put(c.ClassIndex)
		put(c.NameAndTypeIndex)
	case *ConstantNameAndType:
		put(c.NameIndex)
		put(c.DescriptorIndex)
	case *ConstantMethodHandle:
		put(c.ReferenceKind)
		put(c.ReferenceIndex)
	case *ConstantMethodType:
		put(c.DescriptorIndex)
	case *ConstantInvokeDynamic:
		put(c.BootstrapMethodAttrIndex)
		put(c.NameAndTypeIndex)
	default:
		return fmt.Errorf("cannot encode constant with tag %d", entry.Tag())
	}
	return nil
}

func writeMember(buf *bytes.Buffer, pool []ConstantPoolEntry, access uint16, name, desc string, attrs []AttributeInfo) error {
	nameIdx, err := findUtf8(pool, name)
	if err != nil {
		return err
	}
	descIdx, err := findUtf8(pool, desc)
	if err != nil {
		return err
	}
	_ = binary.Write(buf, binary.BigEndian, access)
	_ = binary.Write(buf, binary.BigEndian, nameIdx)
	_ = binary.Write(buf, binary.BigEndian, descIdx)
	return writeAttributes(buf, pool, attrs)
}

func writeAttributes(buf *bytes.Buffer, pool []ConstantPoolEntry, attrs []AttributeInfo) error {
	_ = binary.Write(buf, binary.BigEndian, uint16(len(attrs)))
	for _, attr := range attrs {
		idx, err := findUtf8(pool, attr.Name)
		if err != nil {
			return err
		}
		_ = binary.Write(buf, binary.BigEndian, idx)
		_ = binary.Write(buf, binary.BigEndian, uint32(len(attr.Data)))
		buf.Write(attr.Data)
	}
	return nil
}

func findUtf8(pool []ConstantPoolEntry, value string) (uint16, error) {
	for i, entry := range pool {
		if u, ok := entry.(*ConstantUtf8); ok && u.Value == value {
			return uint16(i), nil
		}
	}
	return 0, fmt.Errorf("utf8 constant %q not in pool", value)
}
