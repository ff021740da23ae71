package classfile

import (
	"bytes"
	"testing"

	"github.com/kristofer/classfile/pkg/classfile/attrs"
	"github.com/kristofer/classfile/pkg/classfile/bytecode"
	"github.com/kristofer/classfile/pkg/classfile/cpool"
)

// buildMinimalClass constructs a well-formed, hand-assembled class file
// byte sequence with one method (a no-arg void "greet") so Decode has
// something realistic to exercise without depending on a fixture file.
func buildMinimalClass(t *testing.T) []byte {
	t.Helper()
	pool := cpool.NewManager()
	thisIdx := pool.CreateClass([]byte("com/example/Greeter"))
	superIdx := pool.CreateClass([]byte("java/lang/Object"))
	objNat := pool.CreateNameAndType([]byte("<init>"), []byte("()V"))
	objInit := pool.CreateMethodRef(superIdx, objNat)
	_ = objInit

	list := bytecode.NewList(pool)
	if _, err := list.InsertAt(0, bytecode.Spec{Mnemonic: "aload_0"}); err != nil {
		t.Fatal(err)
	}
	if _, err := list.InsertAt(1, bytecode.Spec{Mnemonic: "invokespecial", Args: []any{"java/lang/Object", "<init>", "()V"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := list.InsertAt(2, bytecode.Spec{Mnemonic: "return"}); err != nil {
		t.Fatal(err)
	}
	code := &attrs.CodeAttribute{MaxStack: 1, MaxLocals: 1, Code: list}

	nameIdx := pool.AddString(cpool.EncodeModifiedUTF8("greet"))
	descIdx := pool.AddString(cpool.EncodeModifiedUTF8("()V"))
	method := &Method{
		AccessFlags:     AccPublic,
		NameIndex:       nameIdx,
		DescriptorIndex: descIdx,
		Attributes:      []attrs.Attribute{code},
	}

	c := &ClassFile{
		MinorVersion: 0,
		MajorVersion: 52,
		Pool:         pool,
		AccessFlags:  AccPublic | AccSuper,
		ThisClass:    thisIdx,
		SuperClass:   superIdx,
		Methods:      []*Method{method},
	}
	return c.Save()
}

func TestDecodeSaveRoundTrip(t *testing.T) {
	raw := buildMinimalClass(t)
	c, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Save(); !bytes.Equal(got, raw) {
		t.Fatalf("Save() did not round-trip: got % x, want % x", got, raw)
	}
	if c.ThisClassName() != "com/example/Greeter" {
		t.Fatalf("ThisClassName() = %q, want com/example/Greeter", c.ThisClassName())
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	raw := buildMinimalClass(t)
	raw[0] = 0x00
	_, err := Decode(raw)
	if err == nil {
		t.Fatal("expected an error for a bad magic number")
	}
}

func TestGetMethodPrefixMatch(t *testing.T) {
	raw := buildMinimalClass(t)
	c, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	found, err := c.GetMethod("gr")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Name() != "greet" {
		t.Fatalf("GetMethod(\"gr\") = %+v, want [greet]", found)
	}
	// "reet" is not a prefix of "greet" and must not match.
	notFound, err := c.GetMethod("reet")
	if err != nil {
		t.Fatal(err)
	}
	if len(notFound) != 0 {
		t.Fatalf("GetMethod(\"reet\") = %+v, want none (not a prefix match)", notFound)
	}
}

func TestGetMethodDescriptorExactMatch(t *testing.T) {
	raw := buildMinimalClass(t)
	c, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := c.GetMethodDescriptor(nil, "greet", "()V")
	if !ok || m.Name() != "greet" {
		t.Fatalf("GetMethodDescriptor = %+v, %v", m, ok)
	}
	if _, ok := c.GetMethodDescriptor(nil, "greet", "(I)V"); ok {
		t.Fatal("expected no match for a mismatched descriptor")
	}
}

func TestInsertStringInterns(t *testing.T) {
	raw := buildMinimalClass(t)
	c, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	before := c.Pool.Count()
	idx1 := c.InsertString("hello")
	afterFirst := c.Pool.Count()
	idx2 := c.InsertString("hello")
	afterSecond := c.Pool.Count()

	if idx1 != idx2 {
		t.Fatalf("InsertString not idempotent: %d != %d", idx1, idx2)
	}
	if afterFirst == before {
		t.Fatal("InsertString did not grow the pool on first call")
	}
	if afterSecond != afterFirst {
		t.Fatal("InsertString grew the pool again on a duplicate string")
	}
}

func TestDecodeRejectsTruncatedMagic(t *testing.T) {
	_, err := Decode([]byte{0xCA, 0xFE})
	if err == nil {
		t.Fatal("expected a truncated-magic error")
	}
}
