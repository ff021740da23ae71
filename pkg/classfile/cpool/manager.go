package cpool

import (
	"errors"
	"fmt"

	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// ErrIndexOutOfRange is returned by GetItem (and anything built on it) when
// asked for an index outside [1, len(entries)].
var ErrIndexOutOfRange = errors.New("cpool: index out of range")

// ErrWrongTag is returned when an index resolves to an entry of a tag other
// than the one the caller needed.
var ErrWrongTag = errors.New("cpool: unexpected constant tag")

// Manager owns the pool's entries and is the single place that performs
// structural interning. It is shared by (never owned by) every consumer
// that needs to resolve or create an index; a class file's entries,
// instructions, and attributes all hold a non-owning reference to one
// Manager for their lifetime.
type Manager struct {
	// entries[i] is the constant at pool index i+1. There is no entry for
	// index 0 (the pool is 1-indexed by definition).
	entries []Entry

	// thisClass is the pool index of this class file's own Class entry,
	// mirroring the original ClassManager's set_this_class/get_this_class.
	// It is the manager-side half of the method importer's this-class
	// remap rule (spec.md §4.6/§4.7): an imported method's StackMapTable
	// Object vti that resolves to the source's this_class_name must land
	// on the destination's this_class, not a freshly interned copy of the
	// source's own name.
	thisClass uint16
}

// NewManager returns an empty pool.
func NewManager() *Manager {
	return &Manager{}
}

// SetThisClass records the pool index of the owning class file's own
// Class entry.
func (m *Manager) SetThisClass(idx uint16) {
	m.thisClass = idx
}

// ThisClass returns the recorded this_class index, or 0 if none has been
// set.
func (m *Manager) ThisClass() uint16 {
	return m.thisClass
}

// ThisClassName resolves the recorded this_class's name, or false if none
// has been set or it does not resolve.
func (m *Manager) ThisClassName() (string, bool) {
	if m.thisClass == 0 {
		return "", false
	}
	return m.GetClass(m.thisClass)
}

// Count returns the pool's declared constant_pool_count, i.e. one more than
// the number of stored entries (the JVM's off-by-one).
func (m *Manager) Count() uint16 {
	return uint16(len(m.entries) + 1)
}

// Decode reads a constant_pool_count-prefixed sequence of entries.
func Decode(r *cursor.Reader) (*Manager, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("cpool: reading count: %w", err)
	}
	m := &Manager{}
	// count is entries+1; loop while logical index < count.
	for i := 1; i < int(count); i++ {
		tag, err := r.U8()
		if err != nil {
			return nil, fmt.Errorf("cpool: entry %d: reading tag: %w", i, err)
		}
		entry, err := decodeEntry(Tag(tag), r)
		if err != nil {
			return nil, fmt.Errorf("cpool: entry %d: %w", i, err)
		}
		m.entries = append(m.entries, entry)
	}
	return m, nil
}

func decodeEntry(tag Tag, r *cursor.Reader) (Entry, error) {
	switch tag {
	case TagUtf8:
		n, err := r.U16()
		if err != nil {
			return nil, err
		}
		b, err := r.Bytes(int(n))
		if err != nil {
			return nil, err
		}
		return Utf8Entry{Bytes: b}, nil
	case TagInteger:
		v, err := r.I32()
		if err != nil {
			return nil, err
		}
		return IntegerEntry{Value: v}, nil
	case TagFloat:
		v, err := r.U32()
		if err != nil {
			return nil, err
		}
		return FloatEntry{Bits: v}, nil
	case TagLong:
		v, err := r.U64()
		if err != nil {
			return nil, err
		}
		return LongEntry{Value: int64(v)}, nil
	case TagDouble:
		v, err := r.U64()
		if err != nil {
			return nil, err
		}
		return DoubleEntry{Bits: v}, nil
	case TagClass:
		v, err := r.U16()
		if err != nil {
			return nil, err
		}
		return ClassEntry{NameIndex: v}, nil
	case TagString:
		v, err := r.U16()
		if err != nil {
			return nil, err
		}
		return StringEntry{StringIndex: v}, nil
	case TagNameAndType:
		n, err := r.U16()
		if err != nil {
			return nil, err
		}
		d, err := r.U16()
		if err != nil {
			return nil, err
		}
		return NameAndTypeEntry{NameIndex: n, DescriptorIndex: d}, nil
	case TagFieldref:
		c, err := r.U16()
		if err != nil {
			return nil, err
		}
		n, err := r.U16()
		if err != nil {
			return nil, err
		}
		return FieldrefEntry{ClassIndex: c, NameAndTypeIndex: n}, nil
	case TagMethodref:
		c, err := r.U16()
		if err != nil {
			return nil, err
		}
		n, err := r.U16()
		if err != nil {
			return nil, err
		}
		return MethodrefEntry{ClassIndex: c, NameAndTypeIndex: n}, nil
	case TagInterfaceMethodref:
		c, err := r.U16()
		if err != nil {
			return nil, err
		}
		n, err := r.U16()
		if err != nil {
			return nil, err
		}
		return InterfaceMethodrefEntry{ClassIndex: c, NameAndTypeIndex: n}, nil
	default:
		return nil, fmt.Errorf("cpool: unknown constant tag %d", tag)
	}
}

// Encode writes the constant_pool_count-prefixed entry sequence.
func (m *Manager) Encode(w *cursor.Writer) {
	w.U16(m.Count())
	for _, e := range m.entries {
		e.encode(w)
	}
}

// GetItem returns the entry at 1-based index i.
func (m *Manager) GetItem(i uint16) (Entry, error) {
	if i < 1 || int(i) > len(m.entries) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return m.entries[i-1], nil
}

// GetString returns the decoded modified-UTF-8 string for a Utf8 entry, or
// false if the index is not a Utf8.
func (m *Manager) GetString(i uint16) (string, bool) {
	e, err := m.GetItem(i)
	if err != nil {
		return "", false
	}
	u, ok := e.(Utf8Entry)
	if !ok {
		return "", false
	}
	return decodeModifiedUTF8(u.Bytes), true
}

// GetRawUtf8 returns the undecoded modified-UTF-8 bytes for a Utf8 entry.
func (m *Manager) GetRawUtf8(i uint16) ([]byte, bool) {
	e, err := m.GetItem(i)
	if err != nil {
		return nil, false
	}
	u, ok := e.(Utf8Entry)
	if !ok {
		return nil, false
	}
	return u.Bytes, true
}

// Value is the resolved projection returned by GetValue: either an
// integer constant ("CONSTANT_Integer") or a string constant
// ("CONSTANT_String").
type Value struct {
	Kind    string
	Int     int32
	Str     []byte
}

// GetValue resolves an Integer or String entry to its tagged value, the
// same shape insert_craft_method's "ldc" operand spec expects.
func (m *Manager) GetValue(i uint16) (Value, bool) {
	e, err := m.GetItem(i)
	if err != nil {
		return Value{}, false
	}
	switch v := e.(type) {
	case IntegerEntry:
		return Value{Kind: "CONSTANT_Integer", Int: v.Value}, true
	case StringEntry:
		b, ok := m.GetRawUtf8(v.StringIndex)
		if !ok {
			return Value{}, false
		}
		return Value{Kind: "CONSTANT_String", Str: b}, true
	default:
		return Value{}, false
	}
}

// MethodRef is the resolved (class_name, method_name, descriptor) triple
// returned by GetMethod and used as the operand form for invoke* opcodes.
type MethodRef struct {
	Class      string
	Name       string
	Descriptor string
}

func (m *Manager) resolveRef(classIndex, natIndex uint16) (MethodRef, bool) {
	ce, err := m.GetItem(classIndex)
	if err != nil {
		return MethodRef{}, false
	}
	c, ok := ce.(ClassEntry)
	if !ok {
		return MethodRef{}, false
	}
	className, ok := m.GetString(c.NameIndex)
	if !ok {
		return MethodRef{}, false
	}
	ne, err := m.GetItem(natIndex)
	if err != nil {
		return MethodRef{}, false
	}
	nat, ok := ne.(NameAndTypeEntry)
	if !ok {
		return MethodRef{}, false
	}
	name, ok := m.GetString(nat.NameIndex)
	if !ok {
		return MethodRef{}, false
	}
	desc, ok := m.GetString(nat.DescriptorIndex)
	if !ok {
		return MethodRef{}, false
	}
	return MethodRef{Class: className, Name: name, Descriptor: desc}, true
}

// GetMethod resolves a Methodref or InterfaceMethodref entry.
func (m *Manager) GetMethod(i uint16) (MethodRef, bool) {
	e, err := m.GetItem(i)
	if err != nil {
		return MethodRef{}, false
	}
	switch v := e.(type) {
	case MethodrefEntry:
		return m.resolveRef(v.ClassIndex, v.NameAndTypeIndex)
	case InterfaceMethodrefEntry:
		return m.resolveRef(v.ClassIndex, v.NameAndTypeIndex)
	default:
		return MethodRef{}, false
	}
}

// GetField resolves a Fieldref entry to the same (class, name, descriptor)
// shape as GetMethod.
func (m *Manager) GetField(i uint16) (MethodRef, bool) {
	e, err := m.GetItem(i)
	if err != nil {
		return MethodRef{}, false
	}
	f, ok := e.(FieldrefEntry)
	if !ok {
		return MethodRef{}, false
	}
	return m.resolveRef(f.ClassIndex, f.NameAndTypeIndex)
}

// GetClass resolves a Class entry to its internal name.
func (m *Manager) GetClass(i uint16) (string, bool) {
	e, err := m.GetItem(i)
	if err != nil {
		return "", false
	}
	c, ok := e.(ClassEntry)
	if !ok {
		return "", false
	}
	return m.GetString(c.NameIndex)
}

// arrayTypeNames maps newarray's atype operand {4..11} to the JVM's
// T_BOOLEAN..T_LONG mnemonics.
var arrayTypeNames = map[byte]string{
	4:  "T_BOOLEAN",
	5:  "T_CHAR",
	6:  "T_FLOAT",
	7:  "T_DOUBLE",
	8:  "T_BYTE",
	9:  "T_SHORT",
	10: "T_INT",
	11: "T_LONG",
}

// GetArrayType maps a newarray atype byte to its mnemonic name.
func GetArrayType(atype byte) (string, bool) {
	name, ok := arrayTypeNames[atype]
	return name, ok
}

// ArrayTypeCode is the inverse of GetArrayType, used when re-packing a
// newarray instruction from its resolved mnemonic form.
func ArrayTypeCode(name string) (byte, bool) {
	for atype, n := range arrayTypeNames {
		if n == name {
			return atype, true
		}
	}
	return 0, false
}

// --- index lookups (−1 sentinel in the source; (index, ok) here) ---

// GetStringIndex linear-searches for a Utf8 entry with the given raw bytes.
func (m *Manager) GetStringIndex(s []byte) (uint16, bool) {
	for i, e := range m.entries {
		if u, ok := e.(Utf8Entry); ok && bytesEqual(u.Bytes, s) {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

// GetIntegerIndex linear-searches for an Integer entry with value v.
func (m *Manager) GetIntegerIndex(v int32) (uint16, bool) {
	for i, e := range m.entries {
		if n, ok := e.(IntegerEntry); ok && n.Value == v {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

// GetCStringIndex linear-searches for a String entry whose referenced Utf8
// has the given raw bytes.
func (m *Manager) GetCStringIndex(s []byte) (uint16, bool) {
	for i, e := range m.entries {
		str, ok := e.(StringEntry)
		if !ok {
			continue
		}
		b, ok := m.GetRawUtf8(str.StringIndex)
		if ok && bytesEqual(b, s) {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

// GetNameAndTypeIndex linear-searches for a NameAndType with these two
// already-interned Utf8 indices.
func (m *Manager) GetNameAndTypeIndex(nameIndex, descIndex uint16) (uint16, bool) {
	for i, e := range m.entries {
		if n, ok := e.(NameAndTypeEntry); ok && n.NameIndex == nameIndex && n.DescriptorIndex == descIndex {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

// GetClassIndex linear-searches for a Class entry referencing this
// already-interned name index.
func (m *Manager) GetClassIndex(nameIndex uint16) (uint16, bool) {
	for i, e := range m.entries {
		if c, ok := e.(ClassEntry); ok && c.NameIndex == nameIndex {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

// GetMethodRefIndex linear-searches for a Methodref with this class and
// NameAndType index pair.
func (m *Manager) GetMethodRefIndex(classIndex, natIndex uint16) (uint16, bool) {
	for i, e := range m.entries {
		if r, ok := e.(MethodrefEntry); ok && r.ClassIndex == classIndex && r.NameAndTypeIndex == natIndex {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

// GetInterfaceMethodRefIndex linear-searches for an InterfaceMethodref with
// this class and NameAndType index pair.
func (m *Manager) GetInterfaceMethodRefIndex(classIndex, natIndex uint16) (uint16, bool) {
	for i, e := range m.entries {
		if r, ok := e.(InterfaceMethodrefEntry); ok && r.ClassIndex == classIndex && r.NameAndTypeIndex == natIndex {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

// GetFieldRefIndex linear-searches for a Fieldref with this class and
// NameAndType index pair.
func (m *Manager) GetFieldRefIndex(classIndex, natIndex uint16) (uint16, bool) {
	for i, e := range m.entries {
		if r, ok := e.(FieldrefEntry); ok && r.ClassIndex == classIndex && r.NameAndTypeIndex == natIndex {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

// append appends entry and returns its freshly assigned 1-based index: the
// count of entries after appending, exactly as the source's ClassManager
// does it.
func (m *Manager) append(e Entry) uint16 {
	m.entries = append(m.entries, e)
	return uint16(len(m.entries))
}

// --- interning create_* operations ---

// AddString interns a Utf8 entry: returns the existing index if one with
// identical bytes already exists, else appends a new one.
func (m *Manager) AddString(s []byte) uint16 {
	if i, ok := m.GetStringIndex(s); ok {
		return i
	}
	return m.append(Utf8Entry{Bytes: s})
}

// CreateClass interns the name string, then interns a Class entry
// referencing it.
func (m *Manager) CreateClass(name []byte) uint16 {
	nameIdx := m.AddString(name)
	if i, ok := m.GetClassIndex(nameIdx); ok {
		return i
	}
	return m.append(ClassEntry{NameIndex: nameIdx})
}

// CreateNameAndType interns both strings, then interns the pair.
func (m *Manager) CreateNameAndType(name, descriptor []byte) uint16 {
	n := m.AddString(name)
	d := m.AddString(descriptor)
	if i, ok := m.GetNameAndTypeIndex(n, d); ok {
		return i
	}
	return m.append(NameAndTypeEntry{NameIndex: n, DescriptorIndex: d})
}

// CreateMethodRef interns a Methodref for the given already-interned class
// and NameAndType indices.
func (m *Manager) CreateMethodRef(classIndex, natIndex uint16) uint16 {
	if i, ok := m.GetMethodRefIndex(classIndex, natIndex); ok {
		return i
	}
	return m.append(MethodrefEntry{ClassIndex: classIndex, NameAndTypeIndex: natIndex})
}

// CreateInterfaceMethodRef interns an InterfaceMethodref for the given
// already-interned class and NameAndType indices.
func (m *Manager) CreateInterfaceMethodRef(classIndex, natIndex uint16) uint16 {
	if i, ok := m.GetInterfaceMethodRefIndex(classIndex, natIndex); ok {
		return i
	}
	return m.append(InterfaceMethodrefEntry{ClassIndex: classIndex, NameAndTypeIndex: natIndex})
}

// CreateFieldRef interns a Fieldref for the given already-interned class
// and NameAndType indices.
func (m *Manager) CreateFieldRef(classIndex, natIndex uint16) uint16 {
	if i, ok := m.GetFieldRefIndex(classIndex, natIndex); ok {
		return i
	}
	return m.append(FieldrefEntry{ClassIndex: classIndex, NameAndTypeIndex: natIndex})
}

// CreateInteger interns an Integer entry by value.
func (m *Manager) CreateInteger(v int32) uint16 {
	if i, ok := m.GetIntegerIndex(v); ok {
		return i
	}
	return m.append(IntegerEntry{Value: v})
}

// CreateString interns a String entry (and its backing Utf8) by value.
func (m *Manager) CreateString(v []byte) uint16 {
	if i, ok := m.GetCStringIndex(v); ok {
		return i
	}
	strIdx := m.AddString(v)
	return m.append(StringEntry{StringIndex: strIdx})
}

func bytesEqual(a, b []byte) bool {
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

// decodeModifiedUTF8 decodes the JVM's modified UTF-8 (CESU-8-like: NUL is
// encoded as two bytes, and astral characters are encoded as surrogate
// pairs rather than 4-byte UTF-8 sequences) into a Go string.
func decodeModifiedUTF8(b []byte) string {
	var out []rune
	i := 0
	for i < len(b) {
		c := b[i]
		switch {
		case c&0x80 == 0:
			out = append(out, rune(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			r := rune(c&0x1F)<<6 | rune(b[i+1]&0x3F)
			out = append(out, r)
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			hi := rune(c&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
			// Surrogate pair: two consecutive 3-byte sequences encoding a
			// supplementary code point above U+FFFF.
			if hi >= 0xD800 && hi <= 0xDBFF && i+5 < len(b) &&
				b[i+3]&0xF0 == 0xE0 {
				lo := rune(b[i+3]&0x0F)<<12 | rune(b[i+4]&0x3F)<<6 | rune(b[i+5]&0x3F)
				if lo >= 0xDC00 && lo <= 0xDFFF {
					r := 0x10000 + (hi-0xD800)<<10 + (lo - 0xDC00)
					out = append(out, r)
					i += 6
					continue
				}
			}
			out = append(out, hi)
			i += 3
		default:
			// Malformed byte: emit it verbatim so decoding never panics on
			// input this package did not produce itself.
			out = append(out, rune(c))
			i++
		}
	}
	return string(out)
}

// EncodeModifiedUTF8 encodes a Go string into the JVM's modified UTF-8,
// the inverse of decodeModifiedUTF8, used when interning a new Go string
// as a Utf8 entry's raw bytes.
func EncodeModifiedUTF8(s string) []byte {
	var out []byte
	for _, r := range []rune(s) {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r > 0 && r <= 0x7F:
			out = append(out, byte(r))
		case r <= 0x7FF:
			out = append(out, byte(0xC0|r>>6), byte(0x80|r&0x3F))
		case r <= 0xFFFF:
			out = append(out, byte(0xE0|r>>12), byte(0x80|(r>>6)&0x3F), byte(0x80|r&0x3F))
		default:
			r -= 0x10000
			hi := 0xD800 + (r >> 10)
			lo := 0xDC00 + (r & 0x3FF)
			out = append(out, byte(0xE0|hi>>12), byte(0x80|(hi>>6)&0x3F), byte(0x80|hi&0x3F))
			out = append(out, byte(0xE0|lo>>12), byte(0x80|(lo>>6)&0x3F), byte(0x80|lo&0x3F))
		}
	}
	return out
}
