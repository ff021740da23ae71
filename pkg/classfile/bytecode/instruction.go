package bytecode

import (
	"fmt"

	"github.com/kristofer/classfile/pkg/classfile/cpool"
	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// Instruction is one decoded bytecode: its raw encoded bytes (the source of
// truth for re-encoding) plus a resolved operand projection for whichever
// operand kind its opcode declares. Operand is nil for no-operand opcodes
// and for opaque ones (tableswitch, lookupswitch, wide); callers wanting
// the literal bytes of an opaque instruction read Raw directly.
type Instruction struct {
	Opcode   byte
	Mnemonic string
	Raw      []byte
	Operand  any
}

// Len is the instruction's encoded length in bytes.
func (i Instruction) Len() int { return len(i.Raw) }

// ClassOperand is the resolved form for new, anewarray, checkcast and
// instanceof: a bare class reference.
type ClassOperand struct{ Class string }

// LocalIndexOperand is the resolved form for the *load/*store family and
// ret: a local variable slot index.
type LocalIndexOperand struct{ Index int }

// ImmediateOperand is the resolved form for bipush/sipush: a sign-extended
// immediate value.
type ImmediateOperand struct{ Value int32 }

// BranchOperand is the resolved form for every branch opcode: the signed
// delta, relative to the branch instruction's own offset, to its target.
type BranchOperand struct{ Delta int32 }

// IincOperand is the resolved form for iinc.
type IincOperand struct {
	Index int
	Const int8
}

// ArrayTypeOperand is the resolved form for newarray.
type ArrayTypeOperand struct{ Type string }

// InvokeInterfaceOperand is the resolved form for invokeinterface, which
// additionally carries the argument-slot count the interpreter needs.
type InvokeInterfaceOperand struct {
	cpool.MethodRef
	Count byte
}

// MultiANewArrayOperand is the resolved form for multianewarray.
type MultiANewArrayOperand struct {
	Class      string
	Dimensions byte
}

// Spec is the human-readable instruction form accepted by InsertAt and
// ReplaceAt: a mnemonic plus the arguments appropriate to its operand
// kind (see the per-kind comment on each exported Operand type above for
// the expected shape).
type Spec struct {
	Mnemonic string
	Args     []any
}

// ToSpec converts a decoded instruction's resolved operand back into the
// human-readable Spec form that produced it, so Assemble can re-materialise
// its pool references against a different Manager. Opaque instructions
// (tableswitch, lookupswitch, wide) carry no pool references and cannot be
// respecified; callers should keep their Raw bytes as-is instead.
func (i Instruction) ToSpec() (Spec, error) {
	switch op := i.Operand.(type) {
	case nil:
		return Spec{Mnemonic: i.Mnemonic}, nil
	case LocalIndexOperand:
		return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Index}}, nil
	case ImmediateOperand:
		return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Value}}, nil
	case BranchOperand:
		return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Delta}}, nil
	case IincOperand:
		return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Index, int32(op.Const)}}, nil
	case ArrayTypeOperand:
		atype, ok := cpool.ArrayTypeCode(op.Type)
		if !ok {
			return Spec{}, fmt.Errorf("bytecode: unknown array type %q", op.Type)
		}
		return Spec{Mnemonic: i.Mnemonic, Args: []any{int(atype)}}, nil
	case ClassOperand:
		return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Class}}, nil
	case cpool.MethodRef:
		return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Class, op.Name, op.Descriptor}}, nil
	case cpool.Value:
		if op.Kind == "CONSTANT_Integer" {
			return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Kind, op.Int}}, nil
		}
		return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Kind, op.Str}}, nil
	case InvokeInterfaceOperand:
		return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Class, op.Name, op.Descriptor, int(op.Count)}}, nil
	case MultiANewArrayOperand:
		return Spec{Mnemonic: i.Mnemonic, Args: []any{op.Class, int(op.Dimensions)}}, nil
	default:
		return Spec{}, fmt.Errorf("bytecode: %s has no re-packable spec (opaque operand)", i.Mnemonic)
	}
}

func infoFor(mnemonic string) (byte, OpcodeInfo, error) {
	op, ok := mnemonicToOpcode[mnemonic]
	if !ok {
		return 0, OpcodeInfo{}, fmt.Errorf("bytecode: unknown mnemonic %q", mnemonic)
	}
	return op, opcodeTable[op], nil
}

// Assemble builds an Instruction from a human-readable Spec, interning any
// constant-pool references the operand needs (the codec's "intern-writer"
// step) before packing the raw bytes.
func Assemble(pool *cpool.Manager, spec Spec) (Instruction, error) {
	op, info, err := infoFor(spec.Mnemonic)
	if err != nil {
		return Instruction{}, err
	}
	w := cursor.NewWriter()
	w.U8(op)
	var operand any

	switch info.Kind {
	case OperandNone:
		// nothing to pack

	case OperandLocalIndex:
		idx, err := argInt(spec, 0)
		if err != nil {
			return Instruction{}, err
		}
		w.U8(byte(idx))
		operand = LocalIndexOperand{Index: idx}

	case OperandConstByte, OperandConstShortValue:
		kind, ival, sval, err := argValue(spec)
		if err != nil {
			return Instruction{}, err
		}
		var idx uint16
		if kind == "CONSTANT_Integer" {
			idx = pool.CreateInteger(ival)
		} else {
			idx = pool.CreateString(sval)
		}
		if info.Kind == OperandConstByte {
			w.U8(byte(idx))
		} else {
			w.U16(idx)
		}
		v, _ := pool.GetValue(idx)
		operand = v

	case OperandConstShort:
		class, err := argString(spec, 0)
		if err != nil {
			return Instruction{}, err
		}
		idx := pool.CreateClass(cpool.EncodeModifiedUTF8(class))
		w.U16(idx)
		operand = ClassOperand{Class: class}

	case OperandConstShortMethod, OperandConstShortField:
		class, name, desc, err := argTriple(spec)
		if err != nil {
			return Instruction{}, err
		}
		classIdx := pool.CreateClass(cpool.EncodeModifiedUTF8(class))
		natIdx := pool.CreateNameAndType(cpool.EncodeModifiedUTF8(name), cpool.EncodeModifiedUTF8(desc))
		var idx uint16
		if info.Kind == OperandConstShortMethod {
			idx = pool.CreateMethodRef(classIdx, natIdx)
		} else {
			idx = pool.CreateFieldRef(classIdx, natIdx)
		}
		w.U16(idx)
		operand = cpool.MethodRef{Class: class, Name: name, Descriptor: desc}

	case OperandInvokeInterface:
		class, name, desc, err := argTriple(spec)
		if err != nil {
			return Instruction{}, err
		}
		count, err := argInt(spec, 3)
		if err != nil {
			return Instruction{}, err
		}
		classIdx := pool.CreateClass(cpool.EncodeModifiedUTF8(class))
		natIdx := pool.CreateNameAndType(cpool.EncodeModifiedUTF8(name), cpool.EncodeModifiedUTF8(desc))
		idx := pool.CreateInterfaceMethodRef(classIdx, natIdx)
		w.U16(idx)
		w.U8(byte(count))
		w.U8(0)
		operand = InvokeInterfaceOperand{
			MethodRef: cpool.MethodRef{Class: class, Name: name, Descriptor: desc},
			Count:     byte(count),
		}

	case OperandBranch2:
		delta, err := argInt32(spec, 0)
		if err != nil {
			return Instruction{}, err
		}
		w.I16(int16(delta))
		operand = BranchOperand{Delta: delta}

	case OperandBranch4:
		delta, err := argInt32(spec, 0)
		if err != nil {
			return Instruction{}, err
		}
		w.I32(delta)
		operand = BranchOperand{Delta: delta}

	case OperandImmediateByte:
		v, err := argInt32(spec, 0)
		if err != nil {
			return Instruction{}, err
		}
		w.I8(int8(v))
		operand = ImmediateOperand{Value: v}

	case OperandImmediateShort:
		v, err := argInt32(spec, 0)
		if err != nil {
			return Instruction{}, err
		}
		w.I16(int16(v))
		operand = ImmediateOperand{Value: v}

	case OperandIinc:
		idx, err := argInt(spec, 0)
		if err != nil {
			return Instruction{}, err
		}
		c, err := argInt32(spec, 1)
		if err != nil {
			return Instruction{}, err
		}
		w.U8(byte(idx))
		w.I8(int8(c))
		operand = IincOperand{Index: idx, Const: int8(c)}

	case OperandNewArrayType:
		atype, err := argInt(spec, 0)
		if err != nil {
			return Instruction{}, err
		}
		w.U8(byte(atype))
		name, _ := cpool.GetArrayType(byte(atype))
		operand = ArrayTypeOperand{Type: name}

	case OperandMultiANewArray:
		class, err := argString(spec, 0)
		if err != nil {
			return Instruction{}, err
		}
		dims, err := argInt(spec, 1)
		if err != nil {
			return Instruction{}, err
		}
		idx := pool.CreateClass(cpool.EncodeModifiedUTF8(class))
		w.U16(idx)
		w.U8(byte(dims))
		operand = MultiANewArrayOperand{Class: class, Dimensions: byte(dims)}

	case OperandOpaque:
		return Instruction{}, fmt.Errorf("bytecode: %s cannot be assembled from a spec (opaque operand)", spec.Mnemonic)

	default:
		return Instruction{}, fmt.Errorf("bytecode: unhandled operand kind for %s", spec.Mnemonic)
	}

	return Instruction{Opcode: op, Mnemonic: info.Mnemonic, Raw: w.Out(), Operand: operand}, nil
}

func argInt(spec Spec, i int) (int, error) {
	if i >= len(spec.Args) {
		return 0, fmt.Errorf("bytecode: %s missing argument %d", spec.Mnemonic, i)
	}
	switch v := spec.Args[i].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case byte:
		return int(v), nil
	default:
		return 0, fmt.Errorf("bytecode: %s argument %d has unexpected type %T", spec.Mnemonic, i, v)
	}
}

func argInt32(spec Spec, i int) (int32, error) {
	v, err := argInt(spec, i)
	return int32(v), err
}

func argString(spec Spec, i int) (string, error) {
	if i >= len(spec.Args) {
		return "", fmt.Errorf("bytecode: %s missing argument %d", spec.Mnemonic, i)
	}
	s, ok := spec.Args[i].(string)
	if !ok {
		return "", fmt.Errorf("bytecode: %s argument %d has unexpected type %T", spec.Mnemonic, i, spec.Args[i])
	}
	return s, nil
}

func argTriple(spec Spec) (class, name, desc string, err error) {
	class, err = argString(spec, 0)
	if err != nil {
		return
	}
	name, err = argString(spec, 1)
	if err != nil {
		return
	}
	desc, err = argString(spec, 2)
	return
}

func argValue(spec Spec) (kind string, ival int32, sval []byte, err error) {
	kind, err = argString(spec, 0)
	if err != nil {
		return
	}
	if len(spec.Args) < 2 {
		err = fmt.Errorf("bytecode: %s missing value argument", spec.Mnemonic)
		return
	}
	switch kind {
	case "CONSTANT_Integer":
		iv, ierr := argInt32(spec, 1)
		if ierr != nil {
			err = ierr
			return
		}
		ival = iv
	case "CONSTANT_String":
		b, ok := spec.Args[1].([]byte)
		if !ok {
			if s, ok := spec.Args[1].(string); ok {
				b = []byte(s)
			} else {
				err = fmt.Errorf("bytecode: %s string value has unexpected type %T", spec.Mnemonic, spec.Args[1])
				return
			}
		}
		sval = b
	default:
		err = fmt.Errorf("bytecode: %s unknown ldc kind %q", spec.Mnemonic, kind)
	}
	return
}

// decodeOne reads one instruction whose opcode byte has already been
// consumed from r, at instrOffset within the enclosing code array.
func decodeOne(op byte, r *cursor.Reader, pool *cpool.Manager, instrOffset int) (Instruction, error) {
	info := opcodeTable[op]
	if !info.Defined {
		return Instruction{}, fmt.Errorf("bytecode: unknown opcode 0x%02x at offset %d", op, instrOffset)
	}
	w := cursor.NewWriter()
	w.U8(op)
	var operand any

	switch info.Kind {
	case OperandNone:

	case OperandLocalIndex, OperandNewArrayType:
		b, err := r.U8()
		if err != nil {
			return Instruction{}, err
		}
		w.U8(b)
		if info.Kind == OperandLocalIndex {
			operand = LocalIndexOperand{Index: int(b)}
		} else {
			name, _ := cpool.GetArrayType(b)
			operand = ArrayTypeOperand{Type: name}
		}

	case OperandConstByte:
		b, err := r.U8()
		if err != nil {
			return Instruction{}, err
		}
		w.U8(b)
		v, _ := pool.GetValue(uint16(b))
		operand = v

	case OperandConstShortValue:
		idx, err := r.U16()
		if err != nil {
			return Instruction{}, err
		}
		w.U16(idx)
		v, _ := pool.GetValue(idx)
		operand = v

	case OperandConstShort:
		idx, err := r.U16()
		if err != nil {
			return Instruction{}, err
		}
		w.U16(idx)
		class, _ := pool.GetClass(idx)
		operand = ClassOperand{Class: class}

	case OperandConstShortMethod:
		idx, err := r.U16()
		if err != nil {
			return Instruction{}, err
		}
		w.U16(idx)
		ref, _ := pool.GetMethod(idx)
		operand = ref

	case OperandConstShortField:
		idx, err := r.U16()
		if err != nil {
			return Instruction{}, err
		}
		w.U16(idx)
		ref, _ := pool.GetField(idx)
		operand = ref

	case OperandInvokeInterface:
		idx, err := r.U16()
		if err != nil {
			return Instruction{}, err
		}
		count, err := r.U8()
		if err != nil {
			return Instruction{}, err
		}
		zero, err := r.U8()
		if err != nil {
			return Instruction{}, err
		}
		w.U16(idx)
		w.U8(count)
		w.U8(zero)
		ref, _ := pool.GetMethod(idx)
		operand = InvokeInterfaceOperand{MethodRef: ref, Count: count}

	case OperandBranch2:
		d, err := r.I16()
		if err != nil {
			return Instruction{}, err
		}
		w.I16(d)
		operand = BranchOperand{Delta: int32(d)}

	case OperandBranch4:
		d, err := r.I32()
		if err != nil {
			return Instruction{}, err
		}
		w.I32(d)
		operand = BranchOperand{Delta: d}

	case OperandImmediateByte:
		v, err := r.I8()
		if err != nil {
			return Instruction{}, err
		}
		w.I8(v)
		operand = ImmediateOperand{Value: int32(v)}

	case OperandImmediateShort:
		v, err := r.I16()
		if err != nil {
			return Instruction{}, err
		}
		w.I16(v)
		operand = ImmediateOperand{Value: int32(v)}

	case OperandIinc:
		idx, err := r.U8()
		if err != nil {
			return Instruction{}, err
		}
		c, err := r.I8()
		if err != nil {
			return Instruction{}, err
		}
		w.U8(idx)
		w.I8(c)
		operand = IincOperand{Index: int(idx), Const: c}

	case OperandMultiANewArray:
		idx, err := r.U16()
		if err != nil {
			return Instruction{}, err
		}
		dims, err := r.U8()
		if err != nil {
			return Instruction{}, err
		}
		w.U16(idx)
		w.U8(dims)
		class, _ := pool.GetClass(idx)
		operand = MultiANewArrayOperand{Class: class, Dimensions: dims}

	case OperandOpaque:
		raw, err := decodeOpaqueBody(op, r, instrOffset)
		if err != nil {
			return Instruction{}, err
		}
		w.Bytes(raw)

	default:
		return Instruction{}, fmt.Errorf("bytecode: unhandled operand kind for %s", info.Mnemonic)
	}

	return Instruction{Opcode: op, Mnemonic: info.Mnemonic, Raw: w.Out(), Operand: operand}, nil
}

// decodeOpaqueBody reads the variable-length body (after the opcode byte)
// of tableswitch, lookupswitch, or wide, returning exactly the bytes
// consumed so the instruction's total length can be recovered from
// len(Raw) without re-parsing it.
func decodeOpaqueBody(op byte, r *cursor.Reader, instrOffset int) ([]byte, error) {
	switch op {
	case 0xaa, 0xab: // tableswitch, lookupswitch
		padLen := (4 - (instrOffset+1)%4) % 4
		pad, err := r.Bytes(padLen)
		if err != nil {
			return nil, err
		}
		defaultBytes, err := r.Bytes(4)
		if err != nil {
			return nil, err
		}
		out := append(append([]byte{}, pad...), defaultBytes...)
		if op == 0xaa {
			lowB, err := r.Bytes(4)
			if err != nil {
				return nil, err
			}
			highB, err := r.Bytes(4)
			if err != nil {
				return nil, err
			}
			low := int32(uint32(lowB[0])<<24 | uint32(lowB[1])<<16 | uint32(lowB[2])<<8 | uint32(lowB[3]))
			high := int32(uint32(highB[0])<<24 | uint32(highB[1])<<16 | uint32(highB[2])<<8 | uint32(highB[3]))
			out = append(out, lowB...)
			out = append(out, highB...)
			n := int(high-low) + 1
			if n < 0 {
				return nil, fmt.Errorf("bytecode: tableswitch at offset %d has negative range", instrOffset)
			}
			entries, err := r.Bytes(n * 4)
			if err != nil {
				return nil, err
			}
			out = append(out, entries...)
			return out, nil
		}
		npairsB, err := r.Bytes(4)
		if err != nil {
			return nil, err
		}
		npairs := int(uint32(npairsB[0])<<24 | uint32(npairsB[1])<<16 | uint32(npairsB[2])<<8 | uint32(npairsB[3]))
		out = append(out, npairsB...)
		entries, err := r.Bytes(npairs * 8)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
		return out, nil

	case 0xc4: // wide
		sub, err := r.U8()
		if err != nil {
			return nil, err
		}
		if sub == 0x84 { // iinc
			rest, err := r.Bytes(4) // index:u16, const:i16
			if err != nil {
				return nil, err
			}
			return append([]byte{sub}, rest...), nil
		}
		rest, err := r.Bytes(2) // index:u16
		if err != nil {
			return nil, err
		}
		return append([]byte{sub}, rest...), nil

	default:
		return nil, fmt.Errorf("bytecode: opcode 0x%02x has no opaque decoder", op)
	}
}
