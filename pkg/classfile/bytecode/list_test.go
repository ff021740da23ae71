package bytecode

import (
	"bytes"
	"testing"

	"github.com/kristofer/classfile/pkg/classfile/cpool"
)

func newPoolWithObjectInit() (*cpool.Manager, uint16) {
	pool := cpool.NewManager()
	classIdx := pool.CreateClass([]byte("java/lang/Object"))
	natIdx := pool.CreateNameAndType([]byte("<init>"), []byte("()V"))
	methodIdx := pool.CreateMethodRef(classIdx, natIdx)
	return pool, methodIdx
}

// aload_0; invokespecial #1; return -- the round-trip scenario from the
// concrete testable properties.
func simpleMethodBytes() []byte {
	return []byte{0x2a, 0xb7, 0x00, 0x01, 0xb1}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	pool, _ := newPoolWithObjectInit()
	raw := simpleMethodBytes()
	list, err := Decode(raw, pool)
	if err != nil {
		t.Fatal(err)
	}
	if got := list.Encode(); !bytes.Equal(got, raw) {
		t.Fatalf("Encode() = % x, want % x", got, raw)
	}
	if list.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", list.Len())
	}
}

func TestInsertNopBeforeInvoke(t *testing.T) {
	pool, _ := newPoolWithObjectInit()
	list, err := Decode(simpleMethodBytes(), pool)
	if err != nil {
		t.Fatal(err)
	}
	delta, err := list.InsertAt(1, Spec{Mnemonic: "nop"})
	if err != nil {
		t.Fatal(err)
	}
	if delta != 1 {
		t.Fatalf("InsertAt delta = %d, want 1", delta)
	}
	wantOffsets := []int{0, 1, 2, 5}
	if got := list.Offsets(); !intsEqual(got, wantOffsets) {
		t.Fatalf("Offsets() = %v, want %v", got, wantOffsets)
	}
	want := []byte{0x2a, 0x00, 0xb7, 0x00, 0x01, 0xb1}
	if got := list.Encode(); !bytes.Equal(got, want) {
		t.Fatalf("Encode() = % x, want % x", got, want)
	}
}

// ifeq +6; iconst_0; ireturn; iconst_1; ireturn — insert a nop at index 1
// (offset 3) and check the branch delta grows to account for it, per the
// branch-preservation scenario. The +6 target is the final ireturn
// (offset 6 before the insert, offset 7 after it).
func branchMethodBytes() []byte {
	return []byte{
		0x99, 0x00, 0x06, // ifeq +6 (offset 0)
		0x03,       // iconst_0 (offset 3)
		0xac,       // ireturn (offset 4)
		0x04,       // iconst_1 (offset 5)
		0xac,       // ireturn (offset 6)
	}
}

func TestBranchAdjustOnInsertAndRemove(t *testing.T) {
	pool := cpool.NewManager()
	list, err := Decode(branchMethodBytes(), pool)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := list.InsertAt(1, Spec{Mnemonic: "nop"}); err != nil {
		t.Fatal(err)
	}
	ifeq, _ := list.GetAt(0)
	b, ok := ifeq.Operand.(BranchOperand)
	if !ok || b.Delta != 7 {
		t.Fatalf("ifeq delta after insert = %+v, want 7", ifeq.Operand)
	}
	offsets := list.Offsets()
	landingIdx := -1
	for i, off := range offsets {
		if off == 7 {
			landingIdx = i
		}
	}
	if landingIdx == -1 {
		t.Fatal("no instruction landed at offset 7")
	}
	landing, _ := list.GetAt(landingIdx)
	if landing.Mnemonic != "ireturn" {
		t.Fatalf("instruction at offset 7 = %s, want ireturn", landing.Mnemonic)
	}

	// Remove the inserted nop; everything should return to the original.
	if _, err := list.RemoveAt(1); err != nil {
		t.Fatal(err)
	}
	ifeq2, _ := list.GetAt(0)
	b2 := ifeq2.Operand.(BranchOperand)
	if b2.Delta != 6 {
		t.Fatalf("ifeq delta after removing nop = %d, want 6", b2.Delta)
	}
	if got := list.Encode(); !bytes.Equal(got, branchMethodBytes()) {
		t.Fatalf("Encode() after remove = % x, want % x", got, branchMethodBytes())
	}
}

func TestReplaceAtReturnsNetDelta(t *testing.T) {
	pool, methodIdx := newPoolWithObjectInit()
	_ = methodIdx
	list, err := Decode(simpleMethodBytes(), pool)
	if err != nil {
		t.Fatal(err)
	}
	// Replace the 1-byte aload_0 with a 2-byte bipush.
	delta, err := list.ReplaceAt(0, Spec{Mnemonic: "bipush", Args: []any{int32(5)}})
	if err != nil {
		t.Fatal(err)
	}
	if delta != 1 {
		t.Fatalf("ReplaceAt net delta = %d, want 1", delta)
	}
}

func TestRemoveOpaqueInstructionRejected(t *testing.T) {
	pool := cpool.NewManager()
	// tableswitch at offset 0: opcode, 3 bytes padding, default(4), low=0(4), high=0(4), one entry(4)
	raw := []byte{0xaa, 0, 0, 0, 0, 0, 0, 20, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xb1}
	list, err := Decode(raw, pool)
	if err != nil {
		t.Fatal(err)
	}
	if list.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", list.Len())
	}
	if _, err := list.RemoveAt(0); err == nil {
		t.Fatal("expected ErrOpaqueInstruction")
	}
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
