package attrs

import (
	"fmt"

	"github.com/kristofer/classfile/pkg/classfile/cpool"
	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// SourceFileAttribute is a single index into a Utf8 naming the source file.
type SourceFileAttribute struct{ SourceFileIndex uint16 }

func (a *SourceFileAttribute) Name() string { return "SourceFile" }

func decodeSourceFile(r *cursor.Reader) (*SourceFileAttribute, error) {
	idx, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("SourceFile.sourcefile_index: %w", err)
	}
	return &SourceFileAttribute{SourceFileIndex: idx}, nil
}

func (a *SourceFileAttribute) Encode(pool *cpool.Manager) []byte {
	w := cursor.NewWriter()
	w.U16(a.SourceFileIndex)
	return encodeHeader(pool, "SourceFile", w.Out())
}

// LineNumberEntry pairs a code offset with a source line number.
type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

// LineNumberTableAttribute maps code offsets to source line numbers.
type LineNumberTableAttribute struct{ Entries []LineNumberEntry }

func (a *LineNumberTableAttribute) Name() string { return "LineNumberTable" }

func decodeLineNumberTable(r *cursor.Reader) (*LineNumberTableAttribute, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("LineNumberTable.line_number_table_length: %w", err)
	}
	entries := make([]LineNumberEntry, 0, count)
	for i := 0; i < int(count); i++ {
		startPC, err := r.U16()
		if err != nil {
			return nil, err
		}
		lineNumber, err := r.U16()
		if err != nil {
			return nil, err
		}
		entries = append(entries, LineNumberEntry{startPC, lineNumber})
	}
	return &LineNumberTableAttribute{Entries: entries}, nil
}

func (a *LineNumberTableAttribute) Encode(pool *cpool.Manager) []byte {
	w := cursor.NewWriter()
	w.U16(uint16(len(a.Entries)))
	for _, e := range a.Entries {
		w.U16(e.StartPC)
		w.U16(e.LineNumber)
	}
	return encodeHeader(pool, "LineNumberTable", w.Out())
}

// LocalVariableEntry describes one local variable's live range, name, and
// descriptor.
type LocalVariableEntry struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

// LocalVariableTableAttribute names the local variable slots live across a
// method body, by code range.
type LocalVariableTableAttribute struct{ Entries []LocalVariableEntry }

func (a *LocalVariableTableAttribute) Name() string { return "LocalVariableTable" }

func decodeLocalVariableTable(r *cursor.Reader) (*LocalVariableTableAttribute, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("LocalVariableTable.local_variable_table_length: %w", err)
	}
	entries := make([]LocalVariableEntry, 0, count)
	for i := 0; i < int(count); i++ {
		startPC, err := r.U16()
		if err != nil {
			return nil, err
		}
		length, err := r.U16()
		if err != nil {
			return nil, err
		}
		nameIdx, err := r.U16()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.U16()
		if err != nil {
			return nil, err
		}
		index, err := r.U16()
		if err != nil {
			return nil, err
		}
		entries = append(entries, LocalVariableEntry{startPC, length, nameIdx, descIdx, index})
	}
	return &LocalVariableTableAttribute{Entries: entries}, nil
}

func (a *LocalVariableTableAttribute) Encode(pool *cpool.Manager) []byte {
	w := cursor.NewWriter()
	w.U16(uint16(len(a.Entries)))
	for _, e := range a.Entries {
		w.U16(e.StartPC)
		w.U16(e.Length)
		w.U16(e.NameIndex)
		w.U16(e.DescriptorIndex)
		w.U16(e.Index)
	}
	return encodeHeader(pool, "LocalVariableTable", w.Out())
}

// ExceptionsAttribute lists the checked exception classes a method may
// throw, each a Class reference.
type ExceptionsAttribute struct{ ClassIndices []uint16 }

func (a *ExceptionsAttribute) Name() string { return "Exceptions" }

func decodeExceptions(r *cursor.Reader) (*ExceptionsAttribute, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("Exceptions.number_of_exceptions: %w", err)
	}
	idxs := make([]uint16, 0, count)
	for i := 0; i < int(count); i++ {
		idx, err := r.U16()
		if err != nil {
			return nil, err
		}
		idxs = append(idxs, idx)
	}
	return &ExceptionsAttribute{ClassIndices: idxs}, nil
}

func (a *ExceptionsAttribute) Encode(pool *cpool.Manager) []byte {
	w := cursor.NewWriter()
	w.U16(uint16(len(a.ClassIndices)))
	for _, idx := range a.ClassIndices {
		w.U16(idx)
	}
	return encodeHeader(pool, "Exceptions", w.Out())
}

// InnerClassEntry describes one member of a class's InnerClasses entry.
type InnerClassEntry struct {
	InnerClassInfoIndex   uint16
	OuterClassInfoIndex   uint16
	InnerNameIndex        uint16
	InnerClassAccessFlags uint16
}

// InnerClassesAttribute lists the nested classes a class file declares.
type InnerClassesAttribute struct{ Classes []InnerClassEntry }

func (a *InnerClassesAttribute) Name() string { return "InnerClasses" }

func decodeInnerClasses(r *cursor.Reader) (*InnerClassesAttribute, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("InnerClasses.number_of_classes: %w", err)
	}
	entries := make([]InnerClassEntry, 0, count)
	for i := 0; i < int(count); i++ {
		inner, err := r.U16()
		if err != nil {
			return nil, err
		}
		outer, err := r.U16()
		if err != nil {
			return nil, err
		}
		name, err := r.U16()
		if err != nil {
			return nil, err
		}
		flags, err := r.U16()
		if err != nil {
			return nil, err
		}
		entries = append(entries, InnerClassEntry{inner, outer, name, flags})
	}
	return &InnerClassesAttribute{Classes: entries}, nil
}

func (a *InnerClassesAttribute) Encode(pool *cpool.Manager) []byte {
	w := cursor.NewWriter()
	w.U16(uint16(len(a.Classes)))
	for _, e := range a.Classes {
		w.U16(e.InnerClassInfoIndex)
		w.U16(e.OuterClassInfoIndex)
		w.U16(e.InnerNameIndex)
		w.U16(e.InnerClassAccessFlags)
	}
	return encodeHeader(pool, "InnerClasses", w.Out())
}

// ConstantValueAttribute is a field's compile-time constant value, a
// single index into the pool entry matching the field's descriptor.
type ConstantValueAttribute struct{ ConstantValueIndex uint16 }

func (a *ConstantValueAttribute) Name() string { return "ConstantValue" }

func decodeConstantValue(r *cursor.Reader) (*ConstantValueAttribute, error) {
	idx, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("ConstantValue.constantvalue_index: %w", err)
	}
	return &ConstantValueAttribute{ConstantValueIndex: idx}, nil
}

func (a *ConstantValueAttribute) Encode(pool *cpool.Manager) []byte {
	w := cursor.NewWriter()
	w.U16(a.ConstantValueIndex)
	return encodeHeader(pool, "ConstantValue", w.Out())
}
