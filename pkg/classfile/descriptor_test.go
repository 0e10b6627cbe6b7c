package classfile

import (
	"reflect"
	"testing"
)

func TestNameConversions(t *testing.T) {
	if got := BinaryName("com/example/Foo$Bar"); got != "com.example.Foo$Bar" {
		t.Errorf("BinaryName: got %q", got)
	}
	if got := InternalName("com.example.Foo"); got != "com/example/Foo" {
		t.Errorf("InternalName: got %q", got)
	}
	if got := ResourceName("com.example.Foo"); got != "com/example/Foo.class" {
		t.Errorf("ResourceName: got %q", got)
	}
	if got := PackageName("com.example.Foo"); got != "com.example" {
		t.Errorf("PackageName: got %q", got)
	}
	if got := PackageName("Foo"); got != "" {
		t.Errorf("PackageName of default package: got %q", got)
	}
}

func TestPrimitiveName(t *testing.T) {
	tests := []struct {
		desc string
		want string
		ok   bool
	}{
		{"I", "int", true},
		{"C", "char", true},
		{"Z", "boolean", true},
		{"J", "long", true},
		{"S", "short", true},
		{"F", "float", true},
		{"D", "double", true},
		{"B", "byte", true},
		{"Ljava/lang/String;", "", false},
		{"[I", "", false},
		{"X", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, ok := PrimitiveName(tt.desc)
			if got != tt.want || ok != tt.ok {
				t.Errorf("PrimitiveName(%q) = %q, %v; want %q, %v", tt.desc, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDescriptorInternalName(t *testing.T) {
	tests := map[string]string{
		"Ljava/lang/String;":  "java/lang/String",
		"I":                   "I",
		"[Ljava/lang/String;": "[Ljava/lang/String;",
	}
	for desc, want := range tests {
		if got := DescriptorInternalName(desc); got != want {
			t.Errorf("DescriptorInternalName(%q) = %q, want %q", desc, got, want)
		}
	}
}

func TestObjectClassName(t *testing.T) {
	if got, ok := ObjectClassName("[[Lcom/example/Foo;"); !ok || got != "com/example/Foo" {
		t.Errorf("array of objects: got %q, %v", got, ok)
	}
	if _, ok := ObjectClassName("[I"); ok {
		t.Error("array of ints should not yield a class name")
	}
}

func TestSplitMethodDescriptor(t *testing.T) {
	params, ret, err := SplitMethodDescriptor("(I[JLjava/lang/String;[[Lcom/example/Foo;)Ljava/util/List;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantParams := []string{"I", "[J", "Ljava/lang/String;", "[[Lcom/example/Foo;"}
	if !reflect.DeepEqual(params, wantParams) {
		t.Errorf("params: got %v, want %v", params, wantParams)
	}
	if ret != "Ljava/util/List;" {
		t.Errorf("return: got %q", ret)
	}

	params, ret, err = SplitMethodDescriptor("()V")
	if err != nil || len(params) != 0 || ret != "V" {
		t.Errorf("()V: got %v, %q, %v", params, ret, err)
	}

	for _, bad := range []string{"V", "(I", "(Ljava/lang/String)V", "(V)V", "()Q"} {
		if _, _, err := SplitMethodDescriptor(bad); err == nil {
			t.Errorf("SplitMethodDescriptor(%q): expected error", bad)
		}
	}
}
