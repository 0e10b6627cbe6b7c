package typepool

import "github.com/daimatz/gomuzzle/pkg/classfile"

// ObjectClassName is the root of every class hierarchy.
const ObjectClassName = "java.lang.Object"

const (
	accPublicFinalNative = classfile.AccPublic | classfile.AccFinal | classfile.AccNative
)

// objectDescription is served when the loader chain does not carry
// java/lang/Object itself, which is the case without a java.base.jmod.
func objectDescription(pool TypePool) *TypeDescription {
	return &TypeDescription{
		name:      ObjectClassName,
		modifiers: classfile.AccPublic,
		methods: []MethodDescription{
			{Name: classfile.ConstructorName, Descriptor: "()V", Modifiers: classfile.AccPublic},
			{Name: "getClass", Descriptor: "()Ljava/lang/Class;", Modifiers: accPublicFinalNative},
			{Name: "hashCode", Descriptor: "()I", Modifiers: classfile.AccPublic | classfile.AccNative},
			{Name: "equals", Descriptor: "(Ljava/lang/Object;)Z", Modifiers: classfile.AccPublic},
			{Name: "clone", Descriptor: "()Ljava/lang/Object;", Modifiers: classfile.AccProtected | classfile.AccNative},
			{Name: "toString", Descriptor: "()Ljava/lang/String;", Modifiers: classfile.AccPublic},
			{Name: "notify", Descriptor: "()V", Modifiers: accPublicFinalNative},
			{Name: "notifyAll", Descriptor: "()V", Modifiers: accPublicFinalNative},
			{Name: "wait", Descriptor: "()V", Modifiers: classfile.AccPublic | classfile.AccFinal},
			{Name: "wait", Descriptor: "(J)V", Modifiers: accPublicFinalNative},
			{Name: "wait", Descriptor: "(JI)V", Modifiers: classfile.AccPublic | classfile.AccFinal},
			{Name: "finalize", Descriptor: "()V", Modifiers: classfile.AccProtected},
		},
		pool: pool,
	}
}
