package bytecode

import (
	"errors"
	"fmt"

	"github.com/kristofer/classfile/pkg/classfile/cpool"
	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// ErrOpaqueInstruction is returned when an edit would touch tableswitch,
// lookupswitch, or wide — opcodes this module decodes (to keep offsets
// correct) but does not know how to reassemble from a Spec.
var ErrOpaqueInstruction = errors.New("bytecode: cannot edit an opaque instruction")

// ErrIndexOutOfRange is returned by GetAt/InsertAt/RemoveAt/ReplaceAt for
// an out-of-bounds instruction index.
var ErrIndexOutOfRange = errors.New("bytecode: instruction index out of range")

// InstructionList is a method's decoded, editable code body: an ordered
// instruction sequence with a parallel byte-offset map and the set of
// indices that are branch instructions, plus a non-owning handle to the
// constant-pool manager new instructions intern against.
type InstructionList struct {
	instructions []Instruction
	offsets      []int
	branches     map[int]bool
	pool         *cpool.Manager
}

// NewList returns an empty instruction list bound to pool, the starting
// point for InsertCraftMethod's from-scratch assembly (as opposed to
// Decode, which populates a list from an existing method body).
func NewList(pool *cpool.Manager) *InstructionList {
	return &InstructionList{branches: map[int]bool{}, pool: pool}
}

// Decode scans a method's raw code array into an InstructionList.
func Decode(data []byte, pool *cpool.Manager) (*InstructionList, error) {
	r := cursor.NewReader(data)
	l := &InstructionList{branches: map[int]bool{}, pool: pool}
	offset := 0
	for r.Len() > 0 {
		op, err := r.U8()
		if err != nil {
			return nil, err
		}
		instr, err := decodeOne(op, r, pool, offset)
		if err != nil {
			return nil, err
		}
		idx := len(l.instructions)
		l.instructions = append(l.instructions, instr)
		l.offsets = append(l.offsets, offset)
		if opcodeTable[op].IsBranch {
			l.branches[idx] = true
		}
		offset += instr.Len()
	}
	return l, nil
}

// Encode concatenates every instruction's raw bytes in order.
func (l *InstructionList) Encode() []byte {
	w := cursor.NewWriter()
	for _, instr := range l.instructions {
		w.Bytes(instr.Raw)
	}
	return w.Out()
}

// Len returns the number of instructions.
func (l *InstructionList) Len() int { return len(l.instructions) }

// CodeLength returns the total encoded size in bytes.
func (l *InstructionList) CodeLength() int {
	total := 0
	for _, instr := range l.instructions {
		total += instr.Len()
	}
	return total
}

// GetAt returns the instruction at position i.
func (l *InstructionList) GetAt(i int) (Instruction, error) {
	if i < 0 || i >= len(l.instructions) {
		return Instruction{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return l.instructions[i], nil
}

// Offsets returns the byte offset of each instruction, read-only.
func (l *InstructionList) Offsets() []int {
	out := make([]int, len(l.offsets))
	copy(out, l.offsets)
	return out
}

// Branches returns the sorted indices of every branch instruction,
// read-only.
func (l *InstructionList) Branches() []int {
	out := make([]int, 0, len(l.branches))
	for i := range l.branches {
		out = append(out, i)
	}
	for a := 1; a < len(out); a++ {
		for b := a; b > 0 && out[b-1] > out[b]; b-- {
			out[b-1], out[b] = out[b], out[b-1]
		}
	}
	return out
}

func branchDelta(instr Instruction) (int32, bool) {
	switch op := instr.Operand.(type) {
	case BranchOperand:
		return op.Delta, true
	default:
		return 0, false
	}
}

// reencodeBranch rebuilds a branch instruction's raw bytes from a new
// delta, preserving its opcode and width (2-byte for all branch ops but
// goto_w/jsr_w, which use 4).
func reencodeBranch(instr Instruction, newDelta int32) Instruction {
	w := cursor.NewWriter()
	w.U8(instr.Opcode)
	if opcodeTable[instr.Opcode].Kind == OperandBranch4 {
		w.I32(newDelta)
	} else {
		w.I16(int16(newDelta))
	}
	instr.Raw = w.Out()
	instr.Operand = BranchOperand{Delta: newDelta}
	return instr
}

// adjustForRemoval applies spec's branch-adjust-on-remove rule in place,
// using offsets as they stood before the removal at (p, L).
func (l *InstructionList) adjustForRemoval(skipIdx, p, length int) {
	for b := range l.branches {
		if b == skipIdx {
			continue
		}
		d, ok := branchDelta(l.instructions[b])
		if !ok {
			continue
		}
		s := l.offsets[b]
		target := s + int(d)
		switch {
		case s > p && target < p:
			l.instructions[b] = reencodeBranch(l.instructions[b], d+int32(length))
		case s < p && target > p:
			l.instructions[b] = reencodeBranch(l.instructions[b], d-int32(length))
		}
	}
}

// adjustForInsertion applies spec's branch-adjust-on-insert rule in place,
// using offsets as they stood before the insertion at (p, L').
func (l *InstructionList) adjustForInsertion(p, length int) {
	for b := range l.branches {
		d, ok := branchDelta(l.instructions[b])
		if !ok {
			continue
		}
		s := l.offsets[b]
		target := s + int(d)
		switch {
		case s > p && target < p:
			l.instructions[b] = reencodeBranch(l.instructions[b], d-int32(length))
		case s < p && target > p:
			l.instructions[b] = reencodeBranch(l.instructions[b], d+int32(length))
		}
	}
}

// RemoveAt deletes the instruction at position i, fixing up every
// surviving branch's delta and every offset after it. Returns the number
// of bytes removed (for the caller to subtract from the Code attribute's
// code_length).
func (l *InstructionList) RemoveAt(i int) (int, error) {
	if i < 0 || i >= len(l.instructions) {
		return 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if opcodeTable[l.instructions[i].Opcode].Kind == OperandOpaque {
		return 0, fmt.Errorf("%w: %s", ErrOpaqueInstruction, l.instructions[i].Mnemonic)
	}
	p := l.offsets[i]
	length := l.instructions[i].Len()

	l.adjustForRemoval(i, p, length)

	l.instructions = append(l.instructions[:i], l.instructions[i+1:]...)
	l.offsets = append(l.offsets[:i], l.offsets[i+1:]...)
	for j := i; j < len(l.offsets); j++ {
		l.offsets[j] -= length
	}

	newBranches := map[int]bool{}
	for b := range l.branches {
		switch {
		case b == i:
			// dropped along with the removed instruction
		case b > i:
			newBranches[b-1] = true
		default:
			newBranches[b] = true
		}
	}
	l.branches = newBranches

	return length, nil
}

// InsertAt assembles spec into a new instruction and splices it in before
// position i, fixing up every existing branch's delta and every offset
// from i onward. Returns the number of bytes inserted.
func (l *InstructionList) InsertAt(i int, spec Spec) (int, error) {
	if i < 0 || i > len(l.instructions) {
		return 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	instr, err := Assemble(l.pool, spec)
	if err != nil {
		return 0, err
	}
	length := instr.Len()
	insertOffset := l.codeLengthUpTo(i)

	l.adjustForInsertion(insertOffset, length)

	newBranches := map[int]bool{}
	for b := range l.branches {
		if b >= i {
			newBranches[b+1] = true
		} else {
			newBranches[b] = true
		}
	}
	if opcodeTable[instr.Opcode].IsBranch {
		newBranches[i] = true
	}
	l.branches = newBranches

	l.instructions = append(l.instructions, Instruction{})
	copy(l.instructions[i+1:], l.instructions[i:])
	l.instructions[i] = instr

	l.offsets = append(l.offsets, 0)
	copy(l.offsets[i+1:], l.offsets[i:])
	l.offsets[i] = insertOffset
	for j := i + 1; j < len(l.offsets); j++ {
		l.offsets[j] += length
	}

	return length, nil
}

// ReplaceAt removes the instruction at i and inserts spec in its place,
// returning the net byte-length delta (new length minus old length).
func (l *InstructionList) ReplaceAt(i int, spec Spec) (int, error) {
	if i < 0 || i >= len(l.instructions) {
		return 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if opcodeTable[l.instructions[i].Opcode].Kind == OperandOpaque {
		return 0, fmt.Errorf("%w: %s", ErrOpaqueInstruction, l.instructions[i].Mnemonic)
	}
	// Assemble up front so a bad spec is rejected before the old
	// instruction is removed.
	if _, err := Assemble(l.pool, spec); err != nil {
		return 0, err
	}
	removed, err := l.RemoveAt(i)
	if err != nil {
		return 0, err
	}
	inserted, err := l.InsertAt(i, spec)
	if err != nil {
		return 0, err
	}
	return inserted - removed, nil
}

// RemovesAt removes each listed index in turn, shifting later indices down
// after each removal — callers must pass indices in ascending order if
// they want them to refer to the original, pre-removal list; this mirrors
// the sequential semantics of the source's removes_at.
func (l *InstructionList) RemovesAt(indices []int) error {
	shift := 0
	for _, idx := range indices {
		if _, err := l.RemoveAt(idx - shift); err != nil {
			return err
		}
		shift++
	}
	return nil
}

// RepackAgainst rebuilds every instruction's raw bytes by re-materialising
// its resolved operand against a new pool manager — interning whatever
// classes, NameAndTypes, method/field refs, or constant values the
// operand needs. This is the method importer's core bytecode-patching
// step (§4.7 step 6): offsets are unaffected because every fixed-width
// opcode keeps the same operand width, only the pool index values change.
// Opaque instructions (tableswitch, lookupswitch, wide) carry no pool
// references and are copied through unchanged.
func (l *InstructionList) RepackAgainst(pool *cpool.Manager) (*InstructionList, error) {
	out := &InstructionList{
		instructions: make([]Instruction, len(l.instructions)),
		offsets:      append([]int{}, l.offsets...),
		branches:     map[int]bool{},
		pool:         pool,
	}
	for b := range l.branches {
		out.branches[b] = true
	}
	for i, instr := range l.instructions {
		if opcodeTable[instr.Opcode].Kind == OperandOpaque {
			out.instructions[i] = instr
			continue
		}
		spec, err := instr.ToSpec()
		if err != nil {
			return nil, err
		}
		newInstr, err := Assemble(pool, spec)
		if err != nil {
			return nil, fmt.Errorf("bytecode: repacking instruction %d (%s): %w", i, instr.Mnemonic, err)
		}
		out.instructions[i] = newInstr
	}
	return out, nil
}

// InvokedMethodClasses returns the class name referenced by every invoke*
// instruction in the list, used by the method importer's foreign-
// dependency check.
func (l *InstructionList) InvokedMethodClasses() []string {
	var out []string
	for _, instr := range l.instructions {
		switch op := instr.Operand.(type) {
		case cpool.MethodRef:
			if opcodeTable[instr.Opcode].Kind == OperandConstShortMethod {
				out = append(out, op.Class)
			}
		case InvokeInterfaceOperand:
			out = append(out, op.Class)
		}
	}
	return out
}

func (l *InstructionList) codeLengthUpTo(i int) int {
	if i < len(l.offsets) {
		return l.offsets[i]
	}
	return l.CodeLength()
}
