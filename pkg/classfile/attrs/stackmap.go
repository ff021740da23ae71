package attrs

import (
	"fmt"

	"github.com/kristofer/classfile/pkg/classfile/cpool"
	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// Verification-type-info tags.
const (
	VTop               byte = 0
	VInteger           byte = 1
	VFloat             byte = 2
	VDouble            byte = 3
	VLong              byte = 4
	VNull              byte = 5
	VUninitializedThis byte = 6
	VObject            byte = 7
	VUninitialized     byte = 8
)

// VerificationType is a single verification-type-info item. ClassIndex is
// only meaningful when Tag == VObject (a Class cross-reference that the
// method importer must rewrite); Offset is only meaningful when
// Tag == VUninitialized (a code offset, not a pool reference).
type VerificationType struct {
	Tag        byte
	ClassIndex uint16
	Offset     uint16
}

func decodeVerificationType(r *cursor.Reader) (VerificationType, error) {
	tag, err := r.U8()
	if err != nil {
		return VerificationType{}, err
	}
	switch tag {
	case VObject:
		idx, err := r.U16()
		if err != nil {
			return VerificationType{}, err
		}
		return VerificationType{Tag: tag, ClassIndex: idx}, nil
	case VUninitialized:
		off, err := r.U16()
		if err != nil {
			return VerificationType{}, err
		}
		return VerificationType{Tag: tag, Offset: off}, nil
	case VTop, VInteger, VFloat, VDouble, VLong, VNull, VUninitializedThis:
		return VerificationType{Tag: tag}, nil
	default:
		return VerificationType{}, fmt.Errorf("unknown verification_type_info tag %d", tag)
	}
}

func (v VerificationType) encode(w *cursor.Writer) {
	w.U8(v.Tag)
	switch v.Tag {
	case VObject:
		w.U16(v.ClassIndex)
	case VUninitialized:
		w.U16(v.Offset)
	}
}

func decodeVerificationTypes(r *cursor.Reader, n int) ([]VerificationType, error) {
	out := make([]VerificationType, n)
	for i := 0; i < n; i++ {
		v, err := decodeVerificationType(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Frame is implemented by each of the seven StackMapTable frame variants.
type Frame interface {
	encode(w *cursor.Writer)
}

// SameFrame covers frame_type 0..63: no offset_delta field, the value
// itself IS the delta.
type SameFrame struct{ FrameType byte }

func (f *SameFrame) encode(w *cursor.Writer) { w.U8(f.FrameType) }

// SameLocals1StackItemFrame covers frame_type 64..127.
type SameLocals1StackItemFrame struct {
	FrameType byte
	Stack     VerificationType
}

func (f *SameLocals1StackItemFrame) encode(w *cursor.Writer) {
	w.U8(f.FrameType)
	f.Stack.encode(w)
}

// SameLocals1StackItemFrameExtended is frame_type 247.
type SameLocals1StackItemFrameExtended struct {
	OffsetDelta uint16
	Stack       VerificationType
}

func (f *SameLocals1StackItemFrameExtended) encode(w *cursor.Writer) {
	w.U8(247)
	w.U16(f.OffsetDelta)
	f.Stack.encode(w)
}

// ChopFrame covers frame_type 248..250.
type ChopFrame struct {
	FrameType   byte
	OffsetDelta uint16
}

func (f *ChopFrame) encode(w *cursor.Writer) {
	w.U8(f.FrameType)
	w.U16(f.OffsetDelta)
}

// SameFrameExtended is frame_type 251.
type SameFrameExtended struct{ OffsetDelta uint16 }

func (f *SameFrameExtended) encode(w *cursor.Writer) {
	w.U8(251)
	w.U16(f.OffsetDelta)
}

// AppendFrame covers frame_type 252..254: (frame_type-251) locals.
type AppendFrame struct {
	FrameType   byte
	OffsetDelta uint16
	Locals      []VerificationType
}

func (f *AppendFrame) encode(w *cursor.Writer) {
	w.U8(f.FrameType)
	w.U16(f.OffsetDelta)
	for _, v := range f.Locals {
		v.encode(w)
	}
}

// FullFrame is frame_type 255.
type FullFrame struct {
	OffsetDelta uint16
	Locals      []VerificationType
	Stack       []VerificationType
}

func (f *FullFrame) encode(w *cursor.Writer) {
	w.U8(255)
	w.U16(f.OffsetDelta)
	w.U16(uint16(len(f.Locals)))
	for _, v := range f.Locals {
		v.encode(w)
	}
	w.U16(uint16(len(f.Stack)))
	for _, v := range f.Stack {
		v.encode(w)
	}
}

func decodeFrame(r *cursor.Reader) (Frame, error) {
	frameType, err := r.U8()
	if err != nil {
		return nil, err
	}
	switch {
	case frameType <= 63:
		return &SameFrame{FrameType: frameType}, nil
	case frameType <= 127:
		stack, err := decodeVerificationType(r)
		if err != nil {
			return nil, err
		}
		return &SameLocals1StackItemFrame{FrameType: frameType, Stack: stack}, nil
	case frameType == 247:
		offsetDelta, err := r.U16()
		if err != nil {
			return nil, err
		}
		stack, err := decodeVerificationType(r)
		if err != nil {
			return nil, err
		}
		return &SameLocals1StackItemFrameExtended{OffsetDelta: offsetDelta, Stack: stack}, nil
	case frameType >= 248 && frameType <= 250:
		offsetDelta, err := r.U16()
		if err != nil {
			return nil, err
		}
		return &ChopFrame{FrameType: frameType, OffsetDelta: offsetDelta}, nil
	case frameType == 251:
		offsetDelta, err := r.U16()
		if err != nil {
			return nil, err
		}
		return &SameFrameExtended{OffsetDelta: offsetDelta}, nil
	case frameType >= 252 && frameType <= 254:
		offsetDelta, err := r.U16()
		if err != nil {
			return nil, err
		}
		locals, err := decodeVerificationTypes(r, int(frameType)-251)
		if err != nil {
			return nil, err
		}
		return &AppendFrame{FrameType: frameType, OffsetDelta: offsetDelta, Locals: locals}, nil
	case frameType == 255:
		offsetDelta, err := r.U16()
		if err != nil {
			return nil, err
		}
		nLocals, err := r.U16()
		if err != nil {
			return nil, err
		}
		locals, err := decodeVerificationTypes(r, int(nLocals))
		if err != nil {
			return nil, err
		}
		nStack, err := r.U16()
		if err != nil {
			return nil, err
		}
		stack, err := decodeVerificationTypes(r, int(nStack))
		if err != nil {
			return nil, err
		}
		return &FullFrame{OffsetDelta: offsetDelta, Locals: locals, Stack: stack}, nil
	default:
		return nil, fmt.Errorf("unknown StackMapTable frame_type %d", frameType)
	}
}

// StackMapTableAttribute is a method's StackMapTable: an ordered sequence
// of frames.
type StackMapTableAttribute struct {
	Frames []Frame
}

func (a *StackMapTableAttribute) Name() string { return "StackMapTable" }

func decodeStackMapTable(r *cursor.Reader) (*StackMapTableAttribute, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("StackMapTable.number_of_entries: %w", err)
	}
	frames := make([]Frame, 0, count)
	for i := 0; i < int(count); i++ {
		f, err := decodeFrame(r)
		if err != nil {
			return nil, fmt.Errorf("StackMapTable.entries[%d]: %w", i, err)
		}
		frames = append(frames, f)
	}
	return &StackMapTableAttribute{Frames: frames}, nil
}

func (a *StackMapTableAttribute) Encode(pool *cpool.Manager) []byte {
	w := cursor.NewWriter()
	w.U16(uint16(len(a.Frames)))
	for _, f := range a.Frames {
		f.encode(w)
	}
	return encodeHeader(pool, "StackMapTable", w.Out())
}

// everyVerificationType walks every verification-type-info across every
// frame, calling visit on each. visit may mutate the slot in place.
func (a *StackMapTableAttribute) everyVerificationType(visit func(*VerificationType)) {
	for _, f := range a.Frames {
		switch fr := f.(type) {
		case *SameLocals1StackItemFrame:
			visit(&fr.Stack)
		case *SameLocals1StackItemFrameExtended:
			visit(&fr.Stack)
		case *AppendFrame:
			for i := range fr.Locals {
				visit(&fr.Locals[i])
			}
		case *FullFrame:
			for i := range fr.Locals {
				visit(&fr.Locals[i])
			}
			for i := range fr.Stack {
				visit(&fr.Stack[i])
			}
		}
	}
}

// Clone deep-copies the frame sequence so RemapClassRefs can be applied to
// an imported copy without mutating the source method's own table.
func (a *StackMapTableAttribute) Clone() *StackMapTableAttribute {
	out := &StackMapTableAttribute{Frames: make([]Frame, len(a.Frames))}
	for i, f := range a.Frames {
		switch fr := f.(type) {
		case *SameFrame:
			cp := *fr
			out.Frames[i] = &cp
		case *SameLocals1StackItemFrame:
			cp := *fr
			out.Frames[i] = &cp
		case *SameLocals1StackItemFrameExtended:
			cp := *fr
			out.Frames[i] = &cp
		case *ChopFrame:
			cp := *fr
			out.Frames[i] = &cp
		case *SameFrameExtended:
			cp := *fr
			out.Frames[i] = &cp
		case *AppendFrame:
			cp := *fr
			cp.Locals = append([]VerificationType{}, fr.Locals...)
			out.Frames[i] = &cp
		case *FullFrame:
			cp := *fr
			cp.Locals = append([]VerificationType{}, fr.Locals...)
			cp.Stack = append([]VerificationType{}, fr.Stack...)
			out.Frames[i] = &cp
		}
	}
	return out
}

// RemapClassRefs rewrites every Object_variable_info's class index per
// remap, which is handed the source pool's resolved class name and
// returns the index that name should carry in the destination pool. This
// is exactly the cross-reference fixup §4.6 requires when a method
// carrying a StackMapTable is imported into a different class file.
func (a *StackMapTableAttribute) RemapClassRefs(sourcePool *cpool.Manager, remap func(className string) uint16) {
	a.everyVerificationType(func(v *VerificationType) {
		if v.Tag != VObject {
			return
		}
		className, ok := sourcePool.GetClass(v.ClassIndex)
		if !ok {
			return
		}
		v.ClassIndex = remap(className)
	})
}
