package cursor

import (
	"errors"
	"testing"
)

func TestReaderFixedWidth(t *testing.T) {
	r := NewReader([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00, 0x03, 0x00, 0x2A, 0x7F})

	magic, err := r.U32()
	if err != nil || magic != 0xCAFEBABE {
		t.Fatalf("U32 = %x, %v, want CAFEBABE", magic, err)
	}
	minor, err := r.U16()
	if err != nil || minor != 3 {
		t.Fatalf("U16 = %d, %v, want 3", minor, err)
	}
	major, err := r.U16()
	if err != nil || major != 0x2A {
		t.Fatalf("U16 = %d, %v, want 0x2A", major, err)
	}
	b, err := r.U8()
	if err != nil || b != 0x7F {
		t.Fatalf("U8 = %x, %v, want 7F", b, err)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{0x00, 0x01})
	if _, err := r.U32(); err == nil {
		t.Fatal("expected error reading past end of buffer")
	} else {
		var oe *OffsetError
		if !errors.As(err, &oe) {
			t.Fatalf("expected *OffsetError, got %T", err)
		}
		if !errors.Is(err, ErrTruncated) {
			t.Fatal("expected error to wrap ErrTruncated")
		}
		if oe.Offset != 0 {
			t.Fatalf("expected offset 0, got %d", oe.Offset)
		}
	}
}

func TestReaderPeekDoesNotAdvance(t *testing.T) {
	r := NewReader([]byte{0x42})
	b, err := r.Peek()
	if err != nil || b != 0x42 {
		t.Fatalf("Peek = %x, %v", b, err)
	}
	if r.Pos() != 0 {
		t.Fatalf("Peek advanced position to %d", r.Pos())
	}
	b2, err := r.U8()
	if err != nil || b2 != 0x42 {
		t.Fatalf("U8 after Peek = %x, %v", b2, err)
	}
}

func TestReaderBytesIsACopy(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	r := NewReader(data)
	got, err := r.Bytes(4)
	if err != nil {
		t.Fatal(err)
	}
	got[0] = 0xFF
	if data[0] != 1 {
		t.Fatal("Bytes() aliased the input buffer")
	}
}

func TestWriterRoundTripsReader(t *testing.T) {
	w := NewWriter()
	w.U32(0xCAFEBABE)
	w.U16(3)
	w.I16(-1)
	w.I8(-5)
	w.Bytes([]byte{0xAA, 0xBB})

	r := NewReader(w.Out())
	if v, _ := r.U32(); v != 0xCAFEBABE {
		t.Fatalf("U32 = %x", v)
	}
	if v, _ := r.U16(); v != 3 {
		t.Fatalf("U16 = %d", v)
	}
	if v, _ := r.I16(); v != -1 {
		t.Fatalf("I16 = %d", v)
	}
	if v, _ := r.I8(); v != -5 {
		t.Fatalf("I8 = %d", v)
	}
	rest, _ := r.Bytes(2)
	if rest[0] != 0xAA || rest[1] != 0xBB {
		t.Fatalf("Bytes = %v", rest)
	}
}
