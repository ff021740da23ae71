package classfile

import (
	"fmt"

	"github.com/kristofer/classfile/pkg/classfile/attrs"
	"github.com/kristofer/classfile/pkg/classfile/cpool"
	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// Method is a class's method_info: access flags, name and descriptor, and
// its attributes. If the method has a Code attribute, it is also cached
// here by reference for direct access (GetCode) rather than requiring
// callers to search Attributes every time.
type Method struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []attrs.Attribute

	code *attrs.CodeAttribute
	pool *cpool.Manager
}

// Name resolves the method's name.
func (m *Method) Name() string {
	name, _ := m.pool.GetString(m.NameIndex)
	return name
}

// SetName renames the method in place by interning a new Utf8 entry (or
// reusing an existing one) and repointing NameIndex at it. It does not
// check for collisions with sibling methods — that guard belongs to the
// class file, which knows the full method list.
func (m *Method) SetName(name string) {
	m.NameIndex = m.pool.AddString(cpool.EncodeModifiedUTF8(name))
}

// Descriptor resolves the method's type descriptor.
func (m *Method) Descriptor() string {
	desc, _ := m.pool.GetString(m.DescriptorIndex)
	return desc
}

// WithDescriptor rewrites the method's descriptor to d, interning it if
// needed. It always succeeds (the source's bool return models a
// since-removed validation step this implementation doesn't carry); kept
// for interface-surface parity.
func (m *Method) WithDescriptor(d string) bool {
	m.DescriptorIndex = m.pool.AddString(cpool.EncodeModifiedUTF8(d))
	return true
}

// GetAccess returns the method's access_flags.
func (m *Method) GetAccess() uint16 { return m.AccessFlags }

// GetAttributes returns the method's attribute list.
func (m *Method) GetAttributes() []attrs.Attribute { return m.Attributes }

// GetCode returns the method's Code attribute, if it has one.
func (m *Method) GetCode() (*attrs.CodeAttribute, bool) {
	return m.code, m.code != nil
}

func decodeMethod(r *cursor.Reader, pool *cpool.Manager) (*Method, error) {
	accessFlags, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("method access_flags: %w", err)
	}
	nameIdx, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("method name_index: %w", err)
	}
	descIdx, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("method descriptor_index: %w", err)
	}
	attributes, err := attrs.DecodeAll(r, pool)
	if err != nil {
		return nil, fmt.Errorf("method attributes: %w", err)
	}
	m := &Method{
		AccessFlags:     accessFlags,
		NameIndex:       nameIdx,
		DescriptorIndex: descIdx,
		Attributes:      attributes,
		pool:            pool,
	}
	for _, a := range attributes {
		if code, ok := a.(*attrs.CodeAttribute); ok {
			m.code = code
			break
		}
	}
	return m, nil
}

func (m *Method) encode(w *cursor.Writer, pool *cpool.Manager) {
	w.U16(m.AccessFlags)
	w.U16(m.NameIndex)
	w.U16(m.DescriptorIndex)
	attrs.EncodeAll(w, pool, m.Attributes)
}
