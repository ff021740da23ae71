// Package attrs implements the attribute decoder tree: AttributeInfo's
// name-indexed dispatch to each typed inner node (Code, StackMapTable,
// LineNumberTable, and the rest), and their re-encoding.
package attrs

import (
	"fmt"

	"github.com/kristofer/classfile/pkg/classfile/cpool"
	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// Attribute is implemented by every typed attribute node. Encode produces
// the full attribute_info record (name index, length, body) with the
// length recomputed from the node's current contents — required after a
// Code edit changes the body size.
type Attribute interface {
	Name() string
	Encode(pool *cpool.Manager) []byte
}

// DecodeAll reads an attributes_count-prefixed sequence of attributes.
func DecodeAll(r *cursor.Reader, pool *cpool.Manager) ([]Attribute, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("attrs: reading count: %w", err)
	}
	out := make([]Attribute, 0, count)
	for i := 0; i < int(count); i++ {
		a, err := Decode(r, pool)
		if err != nil {
			return nil, fmt.Errorf("attrs: attribute %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// EncodeAll writes an attributes_count-prefixed sequence.
func EncodeAll(w *cursor.Writer, pool *cpool.Manager, attrs []Attribute) {
	w.U16(uint16(len(attrs)))
	for _, a := range attrs {
		w.Bytes(a.Encode(pool))
	}
}

// Decode reads one attribute_info record and dispatches on its name to a
// typed inner node. An attribute name this module does not recognize is a
// fatal parse error — there is no generic passthrough node, matching the
// closed-world decoder this is grounded on.
func Decode(r *cursor.Reader, pool *cpool.Manager) (Attribute, error) {
	nameIndex, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("reading attribute_name_index: %w", err)
	}
	length, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("reading attribute_length: %w", err)
	}
	body, err := r.Bytes(int(length))
	if err != nil {
		return nil, fmt.Errorf("reading attribute body: %w", err)
	}
	name, ok := pool.GetString(nameIndex)
	if !ok {
		return nil, fmt.Errorf("attribute_name_index %d is not a Utf8 entry", nameIndex)
	}
	br := cursor.NewReader(body)

	switch name {
	case "Code":
		return decodeCode(br, pool)
	case "SourceFile":
		return decodeSourceFile(br)
	case "LineNumberTable":
		return decodeLineNumberTable(br)
	case "LocalVariableTable":
		return decodeLocalVariableTable(br)
	case "Exceptions":
		return decodeExceptions(br)
	case "StackMapTable":
		return decodeStackMapTable(br)
	case "InnerClasses":
		return decodeInnerClasses(br)
	case "ConstantValue":
		return decodeConstantValue(br)
	default:
		return nil, fmt.Errorf("unknown attribute name %q", name)
	}
}

// encodeHeader writes the name_index/attribute_length/body triple shared
// by every attribute's Encode, interning the attribute's own name string
// if the destination pool doesn't already have it (the first pass of the
// importer's two-pass attribute fixup funnels through here too).
func encodeHeader(pool *cpool.Manager, name string, body []byte) []byte {
	w := cursor.NewWriter()
	nameIdx := pool.AddString(cpool.EncodeModifiedUTF8(name))
	w.U16(nameIdx)
	w.U32(uint32(len(body)))
	w.Bytes(body)
	return w.Out()
}
