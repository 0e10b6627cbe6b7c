package classfile

import (
	"fmt"
	"strings"
)

var primitiveNames = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
	'V': "void",
}

// BinaryName converts an internal name (java/lang/String) to a binary name
// (java.lang.String).
func BinaryName(internalName string) string {
	return strings.ReplaceAll(internalName, "/", ".")
}

// InternalName converts a binary name (java.lang.String) to an internal
// name (java/lang/String).
func InternalName(binaryName string) string {
	return strings.ReplaceAll(binaryName, ".", "/")
}

// ResourceName returns the path of the class file for a binary class name.
func ResourceName(binaryName string) string {
	return InternalName(binaryName) + ".class"
}

// PackageName returns the package part of a binary or internal name.
func PackageName(name string) string {
	i := strings.LastIndexAny(name, "./")
	if i < 0 {
		return ""
	}
	return name[:i]
}

// IsPrimitiveDescriptor reports whether desc is a single primitive type code.
func IsPrimitiveDescriptor(desc string) bool {
	if len(desc) != 1 {
		return false
	}
	_, ok := primitiveNames[desc[0]]
	return ok
}

// PrimitiveName returns the Java keyword for a primitive descriptor
// ("I" -> "int"). ok is false for non-primitive descriptors.
func PrimitiveName(desc string) (string, bool) {
	if !IsPrimitiveDescriptor(desc) {
		return "", false
	}
	return primitiveNames[desc[0]], true
}

// DescriptorInternalName returns the internal name of a field descriptor:
// "Ljava/lang/String;" -> "java/lang/String". Primitive and array
// descriptors are returned unchanged.
func DescriptorInternalName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// ElementDescriptor strips all array dimensions from desc.
func ElementDescriptor(desc string) string {
	return strings.TrimLeft(desc, "[")
}

// ObjectClassName returns the internal class name a descriptor ultimately
// refers to, looking through arrays. ok is false for primitives.
func ObjectClassName(desc string) (string, bool) {
	elem := ElementDescriptor(desc)
	if strings.HasPrefix(elem, "L") && strings.HasSuffix(elem, ";") {
		return elem[1 : len(elem)-1], true
	}
	return "", false
}

// SplitMethodDescriptor splits "(ILjava/lang/String;)V" into its parameter
// descriptors and return descriptor.
func SplitMethodDescriptor(desc string) ([]string, string, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("invalid method descriptor %q", desc)
	}
	var params []string
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescriptorLen(desc[i:])
		if err != nil {
			return nil, "", fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		params = append(params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("invalid method descriptor %q: missing ')'", desc)
	}
	ret := desc[i+1:]
	if ret != "V" {
		n, err := fieldDescriptorLen(ret)
		if err != nil || n != len(ret) {
			return nil, "", fmt.Errorf("invalid method descriptor %q: bad return type", desc)
		}
	}
	return params, ret, nil
}

func fieldDescriptorLen(s string) (int, error) {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	if dims == len(s) {
		return 0, fmt.Errorf("truncated descriptor")
	}
	switch c := s[dims]; c {
	case 'L':
		end := strings.IndexByte(s[dims:], ';')
		if end < 0 {
			return 0, fmt.Errorf("unterminated class descriptor")
		}
		return dims + end + 1, nil
	case 'V':
		return 0, fmt.Errorf("void is not a field type")
	default:
		if _, ok := primitiveNames[c]; !ok {
			return 0, fmt.Errorf("unknown type code %q", c)
		}
		return dims + 1, nil
	}
}
