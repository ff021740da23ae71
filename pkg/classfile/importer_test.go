package classfile

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kristofer/classfile/pkg/classfile/attrs"
	"github.com/kristofer/classfile/pkg/classfile/bytecode"
	"github.com/kristofer/classfile/pkg/classfile/cpool"
)

// newTrivialClass builds a minimal, well-formed ClassFile whose constant
// pool only carries java/lang/Object linkage, used as the destination for
// import tests.
func newTrivialClass(name string) *ClassFile {
	pool := cpool.NewManager()
	thisIdx := pool.CreateClass([]byte(name))
	superIdx := pool.CreateClass([]byte("java/lang/Object"))
	pool.SetThisClass(thisIdx)
	return &ClassFile{
		MinorVersion: 0,
		MajorVersion: 52,
		Pool:         pool,
		AccessFlags:  0x0021,
		ThisClass:    thisIdx,
		SuperClass:   superIdx,
	}
}

func methodWithCode(pool *cpool.Manager, accessFlags uint16, name, descriptor string, codes []bytecode.Spec) *Method {
	list := bytecode.NewList(pool)
	for i, spec := range codes {
		if _, err := list.InsertAt(i, spec); err != nil {
			panic(err)
		}
	}
	code := &attrs.CodeAttribute{MaxStack: 2, MaxLocals: 1, Code: list}
	nameIdx := pool.AddString(cpool.EncodeModifiedUTF8(name))
	descIdx := pool.AddString(cpool.EncodeModifiedUTF8(descriptor))
	return &Method{
		AccessFlags:     accessFlags,
		NameIndex:       nameIdx,
		DescriptorIndex: descIdx,
		Attributes:      []attrs.Attribute{code},
	}
}

// attachPool backfills the unexported pool/code fields the way decodeMethod
// does, since this test constructs Methods directly rather than via Decode.
func attachPool(m *Method, pool *cpool.Manager) *Method {
	for _, a := range m.Attributes {
		if code, ok := a.(*attrs.CodeAttribute); ok {
			m.code = code
			break
		}
	}
	m.pool = pool
	return m
}

func TestInsertCraftMethodAddsMethodAndRefs(t *testing.T) {
	c := newTrivialClass("com/example/Widget")
	proto := MethodProto{Access: 0x0001, ReturnType: "V", ArgTypes: ""}
	err := c.InsertCraftMethod("doNothing", proto, []bytecode.Spec{
		{Mnemonic: "return"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Methods) != 1 {
		t.Fatalf("len(Methods) = %d, want 1", len(c.Methods))
	}
	if got := c.Methods[0].Name(); got != "doNothing" {
		t.Fatalf("Name() = %q, want doNothing", got)
	}
	if got := c.Methods[0].Descriptor(); got != "()V" {
		t.Fatalf("Descriptor() = %q, want ()V", got)
	}
	nameIdx, ok := c.Pool.GetStringIndex(cpool.EncodeModifiedUTF8("doNothing"))
	if !ok {
		t.Fatal("method name was not interned")
	}
	descIdx, ok := c.Pool.GetStringIndex(cpool.EncodeModifiedUTF8("()V"))
	if !ok {
		t.Fatal("method descriptor was not interned")
	}
	natIdx, ok := c.Pool.GetNameAndTypeIndex(nameIdx, descIdx)
	if !ok {
		t.Fatal("expected a NameAndType to be interned for the new method")
	}
	if _, ok := c.Pool.GetMethodRefIndex(c.ThisClass, natIdx); !ok {
		t.Fatal("expected a self MethodRef to be interned")
	}
}

func TestInsertCraftMethodRejectsForeignDependency(t *testing.T) {
	c := newTrivialClass("com/example/Widget")
	poolCountBefore := c.Pool.Count()
	proto := MethodProto{Access: 0x0001, ReturnType: "V", ArgTypes: ""}
	err := c.InsertCraftMethod("callsOut", proto, []bytecode.Spec{
		{Mnemonic: "aload_0"},
		{Mnemonic: "invokevirtual", Args: []any{"com/other/Helper", "doStuff", "()V"}},
		{Mnemonic: "return"},
	})
	if !errors.Is(err, ErrForeignDependency) {
		t.Fatalf("err = %v, want ErrForeignDependency", err)
	}
	if len(c.Methods) != 0 {
		t.Fatal("class was modified despite the rejected insertion")
	}
	if c.Pool.Count() != poolCountBefore {
		t.Fatalf("Pool.Count() = %d, want unchanged %d — rejection must leave the pool untouched", c.Pool.Count(), poolCountBefore)
	}
}

func TestInsertDirectMethodRepacksAcrossPools(t *testing.T) {
	src := newTrivialClass("com/example/Source")
	objClassIdx := src.Pool.CreateClass([]byte("java/lang/Object"))
	natIdx := src.Pool.CreateNameAndType([]byte("<init>"), []byte("()V"))
	src.Pool.CreateMethodRef(objClassIdx, natIdx)

	m := methodWithCode(src.Pool, 0x0001, "greet", "()V", []bytecode.Spec{
		{Mnemonic: "aload_0"},
		{Mnemonic: "invokespecial", Args: []any{"java/lang/Object", "<init>", "()V"}},
		{Mnemonic: "return"},
	})
	m = attachPool(m, src.Pool)

	dst := newTrivialClass("com/example/Dest")
	if err := dst.InsertDirectMethod("greet", m); err != nil {
		t.Fatal(err)
	}
	if len(dst.Methods) != 1 {
		t.Fatalf("len(Methods) = %d, want 1", len(dst.Methods))
	}
	imported := dst.Methods[0]
	if imported.Name() != "greet" {
		t.Fatalf("Name() = %q, want greet", imported.Name())
	}
	code, ok := imported.GetCode()
	if !ok {
		t.Fatal("imported method has no Code attribute")
	}
	if code.Code.Len() != 3 {
		t.Fatalf("Code.Len() = %d, want 3", code.Code.Len())
	}
	invoke, err := code.Code.GetAt(1)
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := invoke.Operand.(cpool.MethodRef)
	if !ok || ref.Class != "java/lang/Object" || ref.Name != "<init>" {
		t.Fatalf("invoke operand = %+v, want java/lang/Object.<init>", invoke.Operand)
	}
	if _, ok := dst.Pool.GetClassIndex(dst.Pool.AddString([]byte("java/lang/Object"))); !ok {
		t.Fatal("destination pool missing re-interned java/lang/Object class entry")
	}
}

func TestInsertDirectMethodRejectsForeignDependency(t *testing.T) {
	src := newTrivialClass("com/example/Source")
	m := methodWithCode(src.Pool, 0x0001, "callsOut", "()V", []bytecode.Spec{
		{Mnemonic: "aload_0"},
		{Mnemonic: "invokevirtual", Args: []any{"com/other/Helper", "doStuff", "()V"}},
		{Mnemonic: "return"},
	})
	m = attachPool(m, src.Pool)

	dst := newTrivialClass("com/example/Dest")
	poolCountBefore := dst.Pool.Count()
	err := dst.InsertDirectMethod("callsOut", m)
	if !errors.Is(err, ErrForeignDependency) {
		t.Fatalf("err = %v, want ErrForeignDependency", err)
	}
	if len(dst.Methods) != 0 {
		t.Fatal("class was modified despite the rejected insertion")
	}
	if dst.Pool.Count() != poolCountBefore {
		t.Fatalf("Pool.Count() = %d, want unchanged %d — rejection must leave the pool untouched", dst.Pool.Count(), poolCountBefore)
	}
}

func TestInsertDirectMethodRejectsDuplicateName(t *testing.T) {
	dst := newTrivialClass("com/example/Dest")
	dst.Pool.AddString(cpool.EncodeModifiedUTF8("greet"))

	src := newTrivialClass("com/example/Source")
	m := methodWithCode(src.Pool, 0x0001, "greet", "()V", []bytecode.Spec{{Mnemonic: "return"}})
	m = attachPool(m, src.Pool)

	err := dst.InsertDirectMethod("greet", m)
	if !errors.Is(err, ErrDuplicateMethodName) {
		t.Fatalf("err = %v, want ErrDuplicateMethodName", err)
	}
}

func TestInsertDirectMethodClonesStackMapTable(t *testing.T) {
	src := newTrivialClass("com/example/Source")
	list := bytecode.NewList(src.Pool)
	if _, err := list.InsertAt(0, bytecode.Spec{Mnemonic: "return"}); err != nil {
		t.Fatal(err)
	}
	smt := &attrs.StackMapTableAttribute{
		Frames: []attrs.Frame{
			&attrs.FullFrame{
				OffsetDelta: 0,
				Locals: []attrs.VerificationType{
					{Tag: attrs.VObject, ClassIndex: src.ThisClass},
				},
				Stack: nil,
			},
		},
	}
	code := &attrs.CodeAttribute{MaxStack: 1, MaxLocals: 1, Code: list, Attributes: []attrs.Attribute{smt}}
	nameIdx := src.Pool.AddString(cpool.EncodeModifiedUTF8("withFrames"))
	descIdx := src.Pool.AddString(cpool.EncodeModifiedUTF8("()V"))
	m := &Method{
		AccessFlags:     0x0001,
		NameIndex:       nameIdx,
		DescriptorIndex: descIdx,
		Attributes:      []attrs.Attribute{code},
		code:            code,
		pool:            src.Pool,
	}

	dst := newTrivialClass("com/example/Dest")
	if err := dst.InsertDirectMethod("withFrames", m); err != nil {
		t.Fatal(err)
	}
	importedCode, _ := dst.Methods[0].GetCode()
	importedSMT, ok := importedCode.StackMapTable()
	if !ok {
		t.Fatal("expected imported Code to carry its own StackMapTable clone")
	}
	// the clone must be a distinct value so mutating it cannot affect src
	if importedCode.Attributes[0] == code.Attributes[0] {
		t.Fatal("StackMapTable was not cloned on import")
	}

	importedFrame, ok := importedSMT.Frames[0].(*attrs.FullFrame)
	if !ok {
		t.Fatalf("imported frame type = %T, want *attrs.FullFrame", importedSMT.Frames[0])
	}
	gotClass := importedFrame.Locals[0].ClassIndex
	if gotClass != dst.Pool.ThisClass() {
		t.Fatalf("self-referencing Object vti class index = %d, want dst.Pool.ThisClass() = %d", gotClass, dst.Pool.ThisClass())
	}
	if gotName, _ := dst.Pool.GetClass(gotClass); gotName != "com/example/Dest" {
		t.Fatalf("remapped class name = %q, want com/example/Dest", gotName)
	}
	if _, dup := dst.Pool.GetClassIndex(dst.Pool.AddString(cpool.EncodeModifiedUTF8("com/example/Source"))); dup {
		t.Fatal("this-class self-reference should not intern a copy of the source's own class name")
	}
}

func TestSaveRoundTripsAfterInsertCraftMethod(t *testing.T) {
	c := newTrivialClass("com/example/Widget")
	proto := MethodProto{Access: 0x0001, ReturnType: "V", ArgTypes: ""}
	if err := c.InsertCraftMethod("doNothing", proto, []bytecode.Spec{{Mnemonic: "return"}}); err != nil {
		t.Fatal(err)
	}
	saved := c.Save()
	reloaded, err := Decode(saved)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Save(); !bytes.Equal(got, saved) {
		t.Fatal("Save() is not idempotent after a craft insertion")
	}
	if len(reloaded.Methods) != 1 || reloaded.Methods[0].Name() != "doNothing" {
		t.Fatal("reloaded class lost the crafted method")
	}
}
