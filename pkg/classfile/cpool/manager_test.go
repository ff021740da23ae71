package cpool

import (
	"testing"

	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

func TestInternIsIdempotent(t *testing.T) {
	m := NewManager()
	classIdx := m.CreateClass([]byte("java/lang/String"))
	natIdx := m.CreateNameAndType([]byte("length"), []byte("()I"))
	first := m.CreateMethodRef(classIdx, natIdx)
	before := len(m.entries)

	classIdx2 := m.CreateClass([]byte("java/lang/String"))
	natIdx2 := m.CreateNameAndType([]byte("length"), []byte("()I"))
	second := m.CreateMethodRef(classIdx2, natIdx2)

	if first != second {
		t.Fatalf("CreateMethodRef not idempotent: %d vs %d", first, second)
	}
	if classIdx != classIdx2 || natIdx != natIdx2 {
		t.Fatal("CreateClass/CreateNameAndType grew the pool on a repeat call")
	}
	if len(m.entries) != before {
		t.Fatalf("pool grew from %d to %d entries on duplicate intern", before, len(m.entries))
	}
}

func TestGetMethodResolvesTwoLevels(t *testing.T) {
	m := NewManager()
	classIdx := m.CreateClass([]byte("java/lang/Object"))
	natIdx := m.CreateNameAndType([]byte("<init>"), []byte("()V"))
	methodIdx := m.CreateMethodRef(classIdx, natIdx)

	ref, ok := m.GetMethod(methodIdx)
	if !ok {
		t.Fatal("GetMethod returned not-ok")
	}
	if ref.Class != "java/lang/Object" || ref.Name != "<init>" || ref.Descriptor != "()V" {
		t.Fatalf("GetMethod = %+v", ref)
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	m := NewManager()
	m.CreateClass([]byte("Foo"))
	m.CreateInteger(42)
	m.CreateString([]byte("hello"))

	w := cursor.NewWriter()
	m.Encode(w)

	decoded, err := Decode(cursor.NewReader(w.Out()))
	if err != nil {
		t.Fatal(err)
	}
	w2 := cursor.NewWriter()
	decoded.Encode(w2)

	if string(w.Out()) != string(w2.Out()) {
		t.Fatal("decode(encode(pool)).encode() != encode(pool)")
	}
}

func TestCountIsOffByOne(t *testing.T) {
	m := NewManager()
	if m.Count() != 1 {
		t.Fatalf("empty pool Count() = %d, want 1", m.Count())
	}
	m.CreateInteger(1)
	if m.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", m.Count())
	}
}

func TestModifiedUTF8RoundTrip(t *testing.T) {
	cases := []string{"", "hello", "na\x00ive", "café", "\U0001F600"}
	for _, s := range cases {
		enc := EncodeModifiedUTF8(s)
		got := decodeModifiedUTF8(enc)
		if got != s {
			t.Fatalf("round trip %q -> %v -> %q", s, enc, got)
		}
	}
}

func TestGetIndexSentinelIsNotFound(t *testing.T) {
	m := NewManager()
	if _, ok := m.GetStringIndex([]byte("missing")); ok {
		t.Fatal("expected not-found for empty pool")
	}
	if _, ok := m.GetClassIndex(99); ok {
		t.Fatal("expected not-found for out-of-range name index")
	}
}
