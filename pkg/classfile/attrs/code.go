package attrs

import (
	"fmt"

	"github.com/kristofer/classfile/pkg/classfile/bytecode"
	"github.com/kristofer/classfile/pkg/classfile/cpool"
	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// ExceptionTableEntry is one row of a Code attribute's exception table.
// Its offsets reference code positions the same way a branch does, but
// this module does not currently patch them on edit (see the design
// notes on exception-table offsets).
type ExceptionTableEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// CodeAttribute is a method's Code attribute: stack/locals sizing, the
// editable instruction list, the exception table, and any nested
// attributes (StackMapTable, LineNumberTable, LocalVariableTable).
type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           *bytecode.InstructionList
	ExceptionTable []ExceptionTableEntry
	Attributes     []Attribute
}

func (c *CodeAttribute) Name() string { return "Code" }

// GetAt returns the instruction at position i, forwarding to the
// underlying instruction list.
func (c *CodeAttribute) GetAt(i int) (bytecode.Instruction, error) { return c.Code.GetAt(i) }

// GetsAt returns the instructions at each listed position, in order.
func (c *CodeAttribute) GetsAt(indices []int) ([]bytecode.Instruction, error) {
	out := make([]bytecode.Instruction, 0, len(indices))
	for _, i := range indices {
		instr, err := c.Code.GetAt(i)
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
	}
	return out, nil
}

// InsertAt assembles spec and splices it into the instruction list before
// position i, fixing up branch offsets.
func (c *CodeAttribute) InsertAt(i int, spec bytecode.Spec) (int, error) { return c.Code.InsertAt(i, spec) }

// RemoveAt deletes the instruction at position i, fixing up branch offsets.
func (c *CodeAttribute) RemoveAt(i int) (int, error) { return c.Code.RemoveAt(i) }

// RemovesAt removes each listed index in turn, shifting later indices down
// after each removal.
func (c *CodeAttribute) RemovesAt(indices []int) error { return c.Code.RemovesAt(indices) }

// ReplaceAt removes the instruction at i and inserts spec in its place.
func (c *CodeAttribute) ReplaceAt(i int, spec bytecode.Spec) (int, error) {
	return c.Code.ReplaceAt(i, spec)
}

// GetBC returns the method body's current encoded byte form.
func (c *CodeAttribute) GetBC() []byte { return c.Code.Encode() }

// GetExceptions returns the Code attribute's exception table.
func (c *CodeAttribute) GetExceptions() []ExceptionTableEntry { return c.ExceptionTable }

// GetMaxStack returns max_stack.
func (c *CodeAttribute) GetMaxStack() uint16 { return c.MaxStack }

// GetMaxLocals returns max_locals.
func (c *CodeAttribute) GetMaxLocals() uint16 { return c.MaxLocals }

// GetAttributes returns the Code attribute's nested attributes
// (StackMapTable, LineNumberTable, LocalVariableTable, and so on).
func (c *CodeAttribute) GetAttributes() []Attribute { return c.Attributes }

func decodeCode(r *cursor.Reader, pool *cpool.Manager) (*CodeAttribute, error) {
	maxStack, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("Code.max_stack: %w", err)
	}
	maxLocals, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("Code.max_locals: %w", err)
	}
	codeLength, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("Code.code_length: %w", err)
	}
	codeBytes, err := r.Bytes(int(codeLength))
	if err != nil {
		return nil, fmt.Errorf("Code.code: %w", err)
	}
	list, err := bytecode.Decode(codeBytes, pool)
	if err != nil {
		return nil, fmt.Errorf("Code.code: %w", err)
	}
	exLen, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("Code.exception_table_length: %w", err)
	}
	exTable := make([]ExceptionTableEntry, 0, exLen)
	for i := 0; i < int(exLen); i++ {
		startPC, err := r.U16()
		if err != nil {
			return nil, err
		}
		endPC, err := r.U16()
		if err != nil {
			return nil, err
		}
		handlerPC, err := r.U16()
		if err != nil {
			return nil, err
		}
		catchType, err := r.U16()
		if err != nil {
			return nil, err
		}
		exTable = append(exTable, ExceptionTableEntry{startPC, endPC, handlerPC, catchType})
	}
	nested, err := DecodeAll(r, pool)
	if err != nil {
		return nil, fmt.Errorf("Code.attributes: %w", err)
	}
	return &CodeAttribute{
		MaxStack:       maxStack,
		MaxLocals:      maxLocals,
		Code:           list,
		ExceptionTable: exTable,
		Attributes:     nested,
	}, nil
}

func (c *CodeAttribute) Encode(pool *cpool.Manager) []byte {
	codeBytes := c.Code.Encode()
	w := cursor.NewWriter()
	w.U16(c.MaxStack)
	w.U16(c.MaxLocals)
	w.U32(uint32(len(codeBytes)))
	w.Bytes(codeBytes)
	w.U16(uint16(len(c.ExceptionTable)))
	for _, e := range c.ExceptionTable {
		w.U16(e.StartPC)
		w.U16(e.EndPC)
		w.U16(e.HandlerPC)
		w.U16(e.CatchType)
	}
	EncodeAll(w, pool, c.Attributes)
	return encodeHeader(pool, "Code", w.Out())
}

// StackMapTable returns the method's StackMapTable attribute, if present.
func (c *CodeAttribute) StackMapTable() (*StackMapTableAttribute, bool) {
	for _, a := range c.Attributes {
		if smt, ok := a.(*StackMapTableAttribute); ok {
			return smt, true
		}
	}
	return nil, false
}

// LocalVariableInfo is one slot's index and verification type as recovered
// from a FullFrame, used by GetLocalVariables.
type LocalVariableInfo struct {
	Index int
	Kind  VerificationType
}

// GetLocalVariables returns the locals recorded in the first FullFrame of
// the method's StackMapTable, or an empty slice if there is none — this
// is the only source of local-variable shape the frame format offers
// without a LocalVariableTable attribute.
func (c *CodeAttribute) GetLocalVariables() []LocalVariableInfo {
	smt, ok := c.StackMapTable()
	if !ok {
		return nil
	}
	for _, f := range smt.Frames {
		full, ok := f.(*FullFrame)
		if !ok {
			continue
		}
		out := make([]LocalVariableInfo, len(full.Locals))
		for i, v := range full.Locals {
			out[i] = LocalVariableInfo{Index: i, Kind: v}
		}
		return out
	}
	return nil
}
