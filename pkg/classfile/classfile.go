// Package classfile implements the Java class-file object model: a
// class's constant pool, fields, methods, and attributes as a mutable,
// in-memory structure that can be edited and then re-serialised to a
// byte-identical (when unedited) class file.
package classfile

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/kristofer/classfile/pkg/classfile/attrs"
	"github.com/kristofer/classfile/pkg/classfile/cpool"
	"github.com/kristofer/classfile/pkg/classfile/cursor"
)

// Magic is the fixed header every class file begins with.
const Magic uint32 = 0xCAFEBABE

// FormatError names the construct and byte offset a decode failed at.
type FormatError struct {
	Construct string
	Offset    int
	Err       error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("classfile: %s at offset %d: %v", e.Construct, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ErrBadMagic is returned when the input does not begin with 0xCAFEBABE.
var ErrBadMagic = errors.New("classfile: bad magic number")

// ClassFile is the top-level decoded record: header, constant pool,
// access flags, superclass linkage, and the field/method/attribute
// tables.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *cpool.Manager
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []*Field
	Methods      []*Method
	Attributes   []attrs.Attribute
}

// Decode parses a complete class file from raw bytes.
func Decode(data []byte) (*ClassFile, error) {
	r := cursor.NewReader(data)
	magic, err := r.U32()
	if err != nil {
		return nil, &FormatError{Construct: "magic", Offset: r.Pos(), Err: err}
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: got 0x%08X", ErrBadMagic, magic)
	}
	minor, err := r.U16()
	if err != nil {
		return nil, &FormatError{Construct: "minor_version", Offset: r.Pos(), Err: err}
	}
	major, err := r.U16()
	if err != nil {
		return nil, &FormatError{Construct: "major_version", Offset: r.Pos(), Err: err}
	}
	pool, err := cpool.Decode(r)
	if err != nil {
		return nil, &FormatError{Construct: "constant_pool", Offset: r.Pos(), Err: err}
	}
	accessFlags, err := r.U16()
	if err != nil {
		return nil, &FormatError{Construct: "access_flags", Offset: r.Pos(), Err: err}
	}
	thisClass, err := r.U16()
	if err != nil {
		return nil, &FormatError{Construct: "this_class", Offset: r.Pos(), Err: err}
	}
	pool.SetThisClass(thisClass)
	superClass, err := r.U16()
	if err != nil {
		return nil, &FormatError{Construct: "super_class", Offset: r.Pos(), Err: err}
	}
	interfacesCount, err := r.U16()
	if err != nil {
		return nil, &FormatError{Construct: "interfaces_count", Offset: r.Pos(), Err: err}
	}
	interfaces := make([]uint16, 0, interfacesCount)
	for i := 0; i < int(interfacesCount); i++ {
		idx, err := r.U16()
		if err != nil {
			return nil, &FormatError{Construct: "interfaces", Offset: r.Pos(), Err: err}
		}
		interfaces = append(interfaces, idx)
	}
	fieldsCount, err := r.U16()
	if err != nil {
		return nil, &FormatError{Construct: "fields_count", Offset: r.Pos(), Err: err}
	}
	fields := make([]*Field, 0, fieldsCount)
	for i := 0; i < int(fieldsCount); i++ {
		f, err := decodeField(r, pool)
		if err != nil {
			return nil, &FormatError{Construct: fmt.Sprintf("fields[%d]", i), Offset: r.Pos(), Err: err}
		}
		fields = append(fields, f)
	}
	methodsCount, err := r.U16()
	if err != nil {
		return nil, &FormatError{Construct: "methods_count", Offset: r.Pos(), Err: err}
	}
	methods := make([]*Method, 0, methodsCount)
	for i := 0; i < int(methodsCount); i++ {
		m, err := decodeMethod(r, pool)
		if err != nil {
			return nil, &FormatError{Construct: fmt.Sprintf("methods[%d]", i), Offset: r.Pos(), Err: err}
		}
		methods = append(methods, m)
	}
	classAttrs, err := attrs.DecodeAll(r, pool)
	if err != nil {
		return nil, &FormatError{Construct: "attributes", Offset: r.Pos(), Err: err}
	}
	return &ClassFile{
		MinorVersion: minor,
		MajorVersion: major,
		Pool:         pool,
		AccessFlags:  accessFlags,
		ThisClass:    thisClass,
		SuperClass:   superClass,
		Interfaces:   interfaces,
		Fields:       fields,
		Methods:      methods,
		Attributes:   classAttrs,
	}, nil
}

// Save re-serialises the class file to bytes. For an unedited class, Save
// reproduces the original input byte-for-byte.
func (c *ClassFile) Save() []byte {
	// Encode the tables first: attribute encoding interns attribute names,
	// and the pool must be written after those entries exist.
	tables := cursor.NewWriter()
	tables.U16(uint16(len(c.Fields)))
	for _, f := range c.Fields {
		f.encode(tables, c.Pool)
	}
	tables.U16(uint16(len(c.Methods)))
	for _, m := range c.Methods {
		m.encode(tables, c.Pool)
	}
	attrs.EncodeAll(tables, c.Pool, c.Attributes)

	w := cursor.NewWriter()
	w.U32(Magic)
	w.U16(c.MinorVersion)
	w.U16(c.MajorVersion)
	c.Pool.Encode(w)
	w.U16(c.AccessFlags)
	w.U16(c.ThisClass)
	w.U16(c.SuperClass)
	w.U16(uint16(len(c.Interfaces)))
	for _, idx := range c.Interfaces {
		w.U16(idx)
	}
	w.Bytes(tables.Out())
	return w.Out()
}

// GetFields returns every field.
func (c *ClassFile) GetFields() []*Field { return c.Fields }

// GetMethods returns every method.
func (c *ClassFile) GetMethods() []*Method { return c.Methods }

// GetConstantPool returns the class file's pool manager.
func (c *ClassFile) GetConstantPool() *cpool.Manager { return c.Pool }

// GetClassManager is an alias for GetConstantPool, kept for interface
// parity with the source's naming.
func (c *ClassFile) GetClassManager() *cpool.Manager { return c.Pool }

// ThisClassName resolves the class's own internal name.
func (c *ClassFile) ThisClassName() string {
	name, _ := c.Pool.GetClass(c.ThisClass)
	return name
}

// GetStrings returns the decoded contents of every Utf8 entry in the pool.
func (c *ClassFile) GetStrings() []string {
	var out []string
	for i := uint16(1); i < c.Pool.Count(); i++ {
		if s, ok := c.Pool.GetString(i); ok {
			out = append(out, s)
		}
	}
	return out
}

// prefixMatch reports whether pattern matches at the start of s — Go's
// regexp.MatchString anchors neither end by default, so FindStringIndex
// plus an explicit start-of-string check is what reproduces Python's
// re.match semantics the source relies on (see SPEC_FULL.md §11/§12).
func prefixMatch(pattern, s string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0, nil
}

// GetField returns every field whose name matches pattern as a prefix.
func (c *ClassFile) GetField(pattern string) ([]*Field, error) {
	var out []*Field
	for _, f := range c.Fields {
		ok, err := prefixMatch(pattern, f.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// GetMethod returns every method whose name matches pattern as a prefix.
func (c *ClassFile) GetMethod(pattern string) ([]*Method, error) {
	var out []*Method
	for _, m := range c.Methods {
		ok, err := prefixMatch(pattern, m.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetMethodDescriptor resolves a single method by name pattern and exact
// descriptor, optionally restricted to this class's own name. className
// is nil to mean "no restriction" (the instance method is assumed to
// belong to this class either way, so the restriction only matters when
// the caller wants to assert that explicitly).
func (c *ClassFile) GetMethodDescriptor(className *string, methodNameRegex, descriptor string) (*Method, bool) {
	if className != nil && *className != c.ThisClassName() {
		return nil, false
	}
	for _, m := range c.Methods {
		ok, err := prefixMatch(methodNameRegex, m.Name())
		if err != nil || !ok {
			continue
		}
		if m.Descriptor() == descriptor {
			return m, true
		}
	}
	return nil, false
}

// InsertString interns s as a Utf8 constant, returning its index.
func (c *ClassFile) InsertString(s string) uint16 {
	return c.Pool.AddString(cpool.EncodeModifiedUTF8(s))
}
