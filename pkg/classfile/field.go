package classfile

import (
	"fmt"

	"github.com/kristofer/classfile/pkg/classfile/attrs"
	"github.com/kristofer/classfile/pkg/classfile/cpool"
	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// Field is a class's field_info: access flags, name and descriptor
// (resolved through the owning pool), and its attributes.
type Field struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []attrs.Attribute

	pool *cpool.Manager
}

// Name resolves the field's name.
func (f *Field) Name() string {
	name, _ := f.pool.GetString(f.NameIndex)
	return name
}

// Descriptor resolves the field's type descriptor.
func (f *Field) Descriptor() string {
	desc, _ := f.pool.GetString(f.DescriptorIndex)
	return desc
}

// ConstantValue returns the field's ConstantValue attribute, if any.
func (f *Field) ConstantValue() (*attrs.ConstantValueAttribute, bool) {
	for _, a := range f.Attributes {
		if cv, ok := a.(*attrs.ConstantValueAttribute); ok {
			return cv, true
		}
	}
	return nil, false
}

func decodeField(r *cursor.Reader, pool *cpool.Manager) (*Field, error) {
	accessFlags, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("field access_flags: %w", err)
	}
	nameIdx, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("field name_index: %w", err)
	}
	descIdx, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("field descriptor_index: %w", err)
	}
	attributes, err := attrs.DecodeAll(r, pool)
	if err != nil {
		return nil, fmt.Errorf("field attributes: %w", err)
	}
	return &Field{
		AccessFlags:     accessFlags,
		NameIndex:       nameIdx,
		DescriptorIndex: descIdx,
		Attributes:      attributes,
		pool:            pool,
	}, nil
}

func (f *Field) encode(w *cursor.Writer, pool *cpool.Manager) {
	w.U16(f.AccessFlags)
	w.U16(f.NameIndex)
	w.U16(f.DescriptorIndex)
	attrs.EncodeAll(w, pool, f.Attributes)
}
