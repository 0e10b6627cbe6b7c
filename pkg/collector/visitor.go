package collector

import (
	"fmt"
	"slices"
	"strings"

	"github.com/daimatz/gomuzzle/pkg/classfile"
	"github.com/daimatz/gomuzzle/pkg/muzzle"
)

// classVisitor gathers the references made by a single class file.
type classVisitor struct {
	predicate *muzzle.HelperClassPredicate
	advice    bool

	self       string // internal name
	sourceName string // binary name

	refs          map[string]*muzzle.Reference
	order         []string
	helperClasses []string
	helperSupers  []string
}

func newClassVisitor(predicate *muzzle.HelperClassPredicate, advice bool) *classVisitor {
	return &classVisitor{
		predicate: predicate,
		advice:    advice,
		refs:      make(map[string]*muzzle.Reference),
	}
}

func (v *classVisitor) addReference(ref *muzzle.Reference) error {
	if !strings.HasPrefix(ref.ClassName, "java.") {
		existing, ok := v.refs[ref.ClassName]
		if !ok {
			v.refs[ref.ClassName] = ref
			v.order = append(v.order, ref.ClassName)
		} else {
			merged, err := existing.Merge(ref)
			if err != nil {
				return err
			}
			v.refs[ref.ClassName] = merged
		}
	}
	if v.predicate.IsHelperClass(ref.ClassName) {
		v.helperClasses = appendUnique(v.helperClasses, ref.ClassName)
	}
	return nil
}

func (v *classVisitor) addExtendsReference(ref *muzzle.Reference) error {
	if err := v.addReference(ref); err != nil {
		return err
	}
	if v.predicate.IsHelperClass(ref.ClassName) {
		v.helperSupers = appendUnique(v.helperSupers, ref.ClassName)
	}
	return nil
}

func (v *classVisitor) visit(cf *classfile.ClassFile) error {
	self, err := cf.ClassName()
	if err != nil {
		return err
	}
	v.self = self
	v.sourceName = classfile.BinaryName(self)

	if !v.advice {
		if err := v.visitHierarchy(cf); err != nil {
			return err
		}
	}

	for _, f := range cf.Fields {
		ref := muzzle.NewReferenceBuilder(v.sourceName).
			AddSource(v.sourceName, 0).
			AddField(nil, nil, f.Name, f.Descriptor, true).
			Build()
		if err := v.addReference(ref); err != nil {
			return err
		}
	}

	bootstraps, err := cf.BootstrapMethods()
	if err != nil {
		return fmt.Errorf("%s: %w", v.sourceName, err)
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if !v.advice {
			ref := muzzle.NewReferenceBuilder(v.sourceName).
				AddSource(v.sourceName, 0).
				AddMethod(nil, []muzzle.Flag{visibilityFlag(m.AccessFlags), ownershipFlag(m.AccessFlags), manifestationFlag(m.AccessFlags)}, m.Name, m.Descriptor).
				Build()
			if err := v.addReference(ref); err != nil {
				return err
			}
		}
		if m.Code == nil {
			continue
		}
		mv := &methodVisitor{classVisitor: v, pool: cf.ConstantPool, code: m.Code, bootstraps: bootstraps}
		if err := classfile.WalkCode(m.Code.Code, mv.visitInstruction); err != nil {
			return fmt.Errorf("%s.%s%s: %w", v.sourceName, m.Name, m.Descriptor, err)
		}
	}
	return nil
}

func (v *classVisitor) visitHierarchy(cf *classfile.ClassFile) error {
	superName := classfile.BinaryName(cf.SuperClassName())
	if superName != "" {
		if err := v.addExtendsReference(muzzle.NewReferenceBuilder(superName).AddSource(v.sourceName, 0).Build()); err != nil {
			return err
		}
	}
	ifaces, err := cf.InterfaceNames()
	if err != nil {
		return fmt.Errorf("%s: %w", v.sourceName, err)
	}
	interfaceNames := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		name := classfile.BinaryName(iface)
		interfaceNames = append(interfaceNames, name)
		if err := v.addExtendsReference(muzzle.NewReferenceBuilder(name).AddSource(v.sourceName, 0).Build()); err != nil {
			return err
		}
	}
	return v.addReference(muzzle.NewReferenceBuilder(v.sourceName).
		AddSource(v.sourceName, 0).
		SetSuperName(superName).
		AddInterfaces(interfaceNames...).
		AddFlags(manifestationFlag(cf.AccessFlags)).
		Build())
}

type methodVisitor struct {
	*classVisitor
	pool       []classfile.ConstantPoolEntry
	code       *classfile.CodeAttribute
	bootstraps []classfile.BootstrapMethod
	line       int
}

func (mv *methodVisitor) entry(index uint16) classfile.ConstantPoolEntry {
	if int(index) >= len(mv.pool) {
		return nil
	}
	return mv.pool[index]
}

func (mv *methodVisitor) source() []muzzle.Source {
	return []muzzle.Source{{Name: mv.sourceName, Line: mv.line}}
}

func (mv *methodVisitor) visitInstruction(in classfile.Instruction) error {
	mv.line = mv.code.LineAt(in.PC)
	switch in.Opcode {
	case classfile.OpGetstatic, classfile.OpPutstatic, classfile.OpGetfield, classfile.OpPutfield:
		return mv.visitField(in)
	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic, classfile.OpInvokeinterface:
		return mv.visitMethod(in)
	case classfile.OpInvokedynamic:
		return mv.visitInvokeDynamic(in)
	case classfile.OpNew, classfile.OpAnewarray, classfile.OpCheckcast, classfile.OpInstanceof, classfile.OpMultianewarray:
		name, err := classfile.GetClassName(mv.pool, in.Index)
		if err != nil {
			return err
		}
		return mv.addTypeReference(name)
	case classfile.OpLdc, classfile.OpLdcW:
		if _, ok := mv.entry(in.Index).(*classfile.ConstantClass); !ok {
			return nil
		}
		name, err := classfile.GetClassName(mv.pool, in.Index)
		if err != nil {
			return err
		}
		return mv.addTypeReference(name)
	}
	return nil
}

// addTypeReference records a bare class reference for an internal name or
// array descriptor. Primitive arrays are ignored.
func (mv *methodVisitor) addTypeReference(name string) error {
	target, ok := underlyingType(name)
	if !ok {
		return nil
	}
	return mv.addReference(muzzle.NewReferenceBuilder(classfile.BinaryName(target)).
		AddSource(mv.sourceName, mv.line).
		AddFlags(minimumClassAccess(mv.self, target)).
		Build())
}

func (mv *methodVisitor) addDescriptorReference(desc string) error {
	target, ok := classfile.ObjectClassName(desc)
	if !ok {
		return nil
	}
	return mv.addTypeReference(target)
}

func (mv *methodVisitor) visitField(in classfile.Instruction) error {
	ref, err := classfile.ResolveFieldref(mv.pool, in.Index)
	if err != nil {
		return err
	}
	owner, ok := underlyingType(ref.ClassName)
	if !ok {
		return nil
	}
	ownership := muzzle.FlagNonStatic
	if in.Opcode == classfile.OpGetstatic || in.Opcode == classfile.OpPutstatic {
		ownership = muzzle.FlagStatic
	}
	err = mv.addReference(muzzle.NewReferenceBuilder(classfile.BinaryName(owner)).
		AddSource(mv.sourceName, mv.line).
		AddFlags(minimumClassAccess(mv.self, owner)).
		AddField(mv.source(), []muzzle.Flag{minimumMemberAccess(mv.self, owner), ownership}, ref.FieldName, ref.Descriptor, false).
		Build())
	if err != nil {
		return err
	}
	return mv.addDescriptorReference(ref.Descriptor)
}

func (mv *methodVisitor) visitMethod(in classfile.Instruction) error {
	ref, isInterface, err := classfile.ResolveAnyMethodref(mv.pool, in.Index)
	if err != nil {
		return err
	}
	owner, ok := underlyingType(ref.ClassName)
	if !ok {
		return nil
	}
	params, ret, err := classfile.SplitMethodDescriptor(ref.Descriptor)
	if err != nil {
		return err
	}
	if err := mv.addDescriptorReference(ret); err != nil {
		return err
	}
	for _, p := range params {
		if err := mv.addDescriptorReference(p); err != nil {
			return err
		}
	}

	ownership := muzzle.FlagNonStatic
	if in.Opcode == classfile.OpInvokestatic {
		ownership = muzzle.FlagStatic
	}
	kind := muzzle.FlagNonInterface
	if isInterface {
		kind = muzzle.FlagInterface
	}
	return mv.addReference(muzzle.NewReferenceBuilder(classfile.BinaryName(owner)).
		AddSource(mv.sourceName, mv.line).
		AddFlags(kind, minimumClassAccess(mv.self, owner)).
		AddMethod(mv.source(), []muzzle.Flag{ownership, minimumMemberAccess(mv.self, owner)}, ref.MethodName, ref.Descriptor).
		Build())
}

func (mv *methodVisitor) visitInvokeDynamic(in classfile.Instruction) error {
	indy, ok := mv.entry(in.Index).(*classfile.ConstantInvokeDynamic)
	if !ok {
		return fmt.Errorf("constant pool index %d is not InvokeDynamic", in.Index)
	}
	if int(indy.BootstrapMethodAttrIndex) >= len(mv.bootstraps) {
		return fmt.Errorf("bootstrap method %d out of range", indy.BootstrapMethodAttrIndex)
	}
	bsm := mv.bootstraps[indy.BootstrapMethodAttrIndex]
	owner, err := classfile.ResolveMethodHandleOwner(mv.pool, bsm.MethodRef)
	if err != nil {
		return err
	}
	err = mv.addReference(muzzle.NewReferenceBuilder(classfile.BinaryName(owner)).
		AddSource(mv.sourceName, mv.line).
		AddFlags(minimumClassAccess(mv.self, owner)).
		Build())
	if err != nil {
		return err
	}

	for _, arg := range bsm.Arguments {
		if _, isHandle := mv.entry(arg).(*classfile.ConstantMethodHandle); !isHandle {
			continue
		}
		kind, ref, _, isMethod, err := classfile.ResolveMethodHandle(mv.pool, arg)
		if err != nil {
			return err
		}
		if !isMethod {
			continue
		}
		ownership := muzzle.FlagNonStatic
		if kind == classfile.RefInvokeStatic {
			ownership = muzzle.FlagStatic
		}
		err = mv.addReference(muzzle.NewReferenceBuilder(classfile.BinaryName(ref.ClassName)).
			AddSource(mv.sourceName, mv.line).
			AddFlags(minimumClassAccess(mv.self, ref.ClassName)).
			AddMethod(mv.source(), []muzzle.Flag{ownership, minimumMemberAccess(mv.self, ref.ClassName)}, ref.MethodName, ref.Descriptor).
			Build())
		if err != nil {
			return err
		}
	}
	return nil
}

// underlyingType returns the internal class name behind an internal name
// or array descriptor. ok is false for primitive arrays.
func underlyingType(name string) (string, bool) {
	if strings.HasPrefix(name, "[") {
		return classfile.ObjectClassName(name)
	}
	return name, true
}

func minimumClassAccess(from, to string) muzzle.Flag {
	switch {
	case strings.EqualFold(from, to):
		return muzzle.FlagPrivateOrHigher
	case classfile.PackageName(from) == classfile.PackageName(to):
		return muzzle.FlagPackageOrHigher
	default:
		return muzzle.FlagPublic
	}
}

// minimumMemberAccess is the weakest visibility a field or method of to may
// have for code in from to use it. Outside the package a subclass may still
// reach protected members.
func minimumMemberAccess(from, to string) muzzle.Flag {
	switch {
	case strings.EqualFold(from, to):
		return muzzle.FlagPrivateOrHigher
	case classfile.PackageName(from) == classfile.PackageName(to):
		return muzzle.FlagPackageOrHigher
	default:
		return muzzle.FlagProtectedOrHigher
	}
}

func visibilityFlag(access uint16) muzzle.Flag {
	for _, f := range []muzzle.Flag{muzzle.FlagPublic, muzzle.FlagProtected, muzzle.FlagPackage} {
		if f.Matches(int(access)) {
			return f
		}
	}
	return muzzle.FlagPrivate
}

func ownershipFlag(access uint16) muzzle.Flag {
	if muzzle.FlagStatic.Matches(int(access)) {
		return muzzle.FlagStatic
	}
	return muzzle.FlagNonStatic
}

func manifestationFlag(access uint16) muzzle.Flag {
	switch {
	case muzzle.FlagAbstract.Matches(int(access)):
		return muzzle.FlagAbstract
	case muzzle.FlagFinal.Matches(int(access)):
		return muzzle.FlagFinal
	default:
		return muzzle.FlagNonFinal
	}
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
