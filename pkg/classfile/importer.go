package classfile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kristofer/classfile/pkg/classfile/attrs"
	"github.com/kristofer/classfile/pkg/classfile/bytecode"
	"github.com/kristofer/classfile/pkg/classfile/cpool"
)

// ErrDuplicateMethodName is returned by InsertDirectMethod when the
// destination pool already has a Utf8 entry equal to the new method's
// name — the guard the source's insert_direct_method applies.
var ErrDuplicateMethodName = errors.New("classfile: duplicate method name")

// ErrForeignDependency is returned when an imported (or crafted) method's
// body calls a method outside the java/javax/sun namespace: the importer
// does not pull in non-JDK transitive dependencies.
var ErrForeignDependency = errors.New("classfile: method depends on a non-JDK class")

// jdkNamespacePrefixes are the class-name prefixes InsertCraftMethod and
// InsertDirectMethod both require every invoked method to fall under.
var jdkNamespacePrefixes = []string{"java/", "javax/", "sun/"}

func isJDKClass(name string) bool {
	for _, p := range jdkNamespacePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// MethodProto is a craft method's prototype: access flags, return
// descriptor fragment, and concatenated argument descriptor fragment
// (matching the source's [access, return_type, arg_types_desc] triple).
type MethodProto struct {
	Access     uint16
	ReturnType string
	ArgTypes   string
}

func (p MethodProto) descriptor() string {
	return "(" + p.ArgTypes + ")" + p.ReturnType
}

// checkJDKNamespace rejects the insertion, before any interning has
// touched the destination pool, if invoked calls any class outside the
// java/javax/sun namespace.
func checkJDKNamespace(invoked []string) error {
	for _, class := range invoked {
		if !isJDKClass(class) {
			return fmt.Errorf("%w: %s", ErrForeignDependency, class)
		}
	}
	return nil
}

// invokedClassesFromSpecs scans a not-yet-assembled instruction list for
// every invoke* target's class name, the same check InvokedMethodClasses
// performs on an already-built InstructionList — used so InsertCraftMethod
// can reject a foreign dependency before Assemble interns anything into
// the destination pool.
func invokedClassesFromSpecs(codes []bytecode.Spec) []string {
	var out []string
	for _, spec := range codes {
		switch spec.Mnemonic {
		case "invokevirtual", "invokespecial", "invokestatic", "invokeinterface":
			if len(spec.Args) == 0 {
				continue
			}
			if class, ok := spec.Args[0].(string); ok {
				out = append(out, class)
			}
		}
	}
	return out
}

// insertBasicMethod is the shared funnel both InsertCraftMethod and
// InsertDirectMethod route through: it creates the method's own
// NameAndType and MethodRef and appends to methods[]. Both callers must
// have already run checkJDKNamespace before any interning happened, so
// this funnel no longer re-validates — by the time it runs, the
// insertion is already committed to succeed.
func (c *ClassFile) insertBasicMethod(name string, accessFlags uint16, descriptor string, code *attrs.CodeAttribute, attributes []attrs.Attribute) error {
	nameIdx := c.Pool.AddString(cpool.EncodeModifiedUTF8(name))
	descIdx := c.Pool.AddString(cpool.EncodeModifiedUTF8(descriptor))
	natIdx := c.Pool.CreateNameAndType(cpool.EncodeModifiedUTF8(name), cpool.EncodeModifiedUTF8(descriptor))
	c.Pool.CreateMethodRef(c.ThisClass, natIdx)

	allAttrs := append([]attrs.Attribute{code}, attributes...)
	c.Methods = append(c.Methods, &Method{
		AccessFlags:     accessFlags,
		NameIndex:       nameIdx,
		DescriptorIndex: descIdx,
		Attributes:      allAttrs,
		code:            code,
		pool:            c.Pool,
	})
	return nil
}

// InsertCraftMethod assembles a brand-new method from a human-readable
// instruction list and attaches it to the class. Each instruction is
// assembled directly against this class's own pool, so no cross-file
// reference rewriting is needed — only the namespace check, which runs
// here on the specs before anything is assembled.
func (c *ClassFile) InsertCraftMethod(name string, proto MethodProto, codes []bytecode.Spec) error {
	if err := checkJDKNamespace(invokedClassesFromSpecs(codes)); err != nil {
		return err
	}

	list := bytecode.NewList(c.Pool)
	// Build incrementally via InsertAt so offsets/branches stay consistent
	// for the fresh list, matching the editable-list invariant.
	for i, spec := range codes {
		if _, err := list.InsertAt(i, spec); err != nil {
			return fmt.Errorf("classfile: assembling instruction %d for %q: %w", i, name, err)
		}
	}
	code := &attrs.CodeAttribute{
		MaxStack:       1,
		MaxLocals:      2,
		Code:           list,
		ExceptionTable: nil,
		Attributes:     nil,
	}
	return c.insertBasicMethod(name, proto.Access, proto.descriptor(), code, nil)
}

// InsertDirectMethod imports source, an existing method (typically from a
// different ClassFile), renaming it to name and rewriting every one of
// its constant-pool references onto this class's pool.
func (c *ClassFile) InsertDirectMethod(name string, source *Method) error {
	if _, ok := c.Pool.GetStringIndex(cpool.EncodeModifiedUTF8(name)); ok {
		return ErrDuplicateMethodName
	}

	srcPool := source.pool
	srcCode, hasCode := source.GetCode()
	if !hasCode {
		return fmt.Errorf("classfile: %q has no Code attribute to import", source.Name())
	}

	// Check the foreign-dependency namespace against the already-resolved
	// source list before touching the destination pool at all: every
	// class name invoked is fully known here, and RepackAgainst below is
	// the first step that would intern anything into c.Pool.
	if err := checkJDKNamespace(srcCode.Code.InvokedMethodClasses()); err != nil {
		return err
	}

	newList, err := srcCode.Code.RepackAgainst(c.Pool)
	if err != nil {
		return fmt.Errorf("classfile: importing %q: %w", name, err)
	}

	newExceptionTable := make([]attrs.ExceptionTableEntry, len(srcCode.ExceptionTable))
	for i, e := range srcCode.ExceptionTable {
		newExceptionTable[i] = attrs.ExceptionTableEntry{
			StartPC:   e.StartPC,
			EndPC:     e.EndPC,
			HandlerPC: e.HandlerPC,
			CatchType: remapClassIndex(srcPool, c.Pool, e.CatchType),
		}
	}

	nestedAttrs := make([]attrs.Attribute, 0, len(srcCode.Attributes))
	for _, a := range srcCode.Attributes {
		remapped, err := remapAttribute(a, srcPool, c.Pool)
		if err != nil {
			return fmt.Errorf("classfile: importing %q: %w", name, err)
		}
		nestedAttrs = append(nestedAttrs, remapped)
	}

	newCode := &attrs.CodeAttribute{
		MaxStack:       srcCode.MaxStack,
		MaxLocals:      srcCode.MaxLocals,
		Code:           newList,
		ExceptionTable: newExceptionTable,
		Attributes:     nestedAttrs,
	}

	methodAttrs := make([]attrs.Attribute, 0, len(source.Attributes))
	for _, a := range source.Attributes {
		if a.Name() == "Code" {
			continue
		}
		remapped, err := remapAttribute(a, srcPool, c.Pool)
		if err != nil {
			return fmt.Errorf("classfile: importing %q: %w", name, err)
		}
		methodAttrs = append(methodAttrs, remapped)
	}

	return c.insertBasicMethod(name, source.AccessFlags, source.Descriptor(), newCode, methodAttrs)
}

func remapClassIndex(srcPool, dstPool *cpool.Manager, idx uint16) uint16 {
	if idx == 0 {
		return 0
	}
	name, ok := srcPool.GetClass(idx)
	if !ok {
		return 0
	}
	return dstPool.CreateClass(cpool.EncodeModifiedUTF8(name))
}

func remapUtf8Index(srcPool, dstPool *cpool.Manager, idx uint16) uint16 {
	if idx == 0 {
		return 0
	}
	b, ok := srcPool.GetRawUtf8(idx)
	if !ok {
		return 0
	}
	return dstPool.AddString(b)
}

// remapAttribute rebuilds a into an equivalent attribute whose every
// constant-pool reference has been re-interned against dstPool. This is
// the two-pass attribute fixup the importer applies recursively: the
// attribute's own name string is re-interned wherever Encode is finally
// called, and here each attribute's internal references are rewritten.
func remapAttribute(a attrs.Attribute, srcPool, dstPool *cpool.Manager) (attrs.Attribute, error) {
	switch at := a.(type) {
	case *attrs.CodeAttribute:
		newList, err := at.Code.RepackAgainst(dstPool)
		if err != nil {
			return nil, err
		}
		newExTable := make([]attrs.ExceptionTableEntry, len(at.ExceptionTable))
		for i, e := range at.ExceptionTable {
			newExTable[i] = attrs.ExceptionTableEntry{
				StartPC:   e.StartPC,
				EndPC:     e.EndPC,
				HandlerPC: e.HandlerPC,
				CatchType: remapClassIndex(srcPool, dstPool, e.CatchType),
			}
		}
		nested := make([]attrs.Attribute, 0, len(at.Attributes))
		for _, child := range at.Attributes {
			r, err := remapAttribute(child, srcPool, dstPool)
			if err != nil {
				return nil, err
			}
			nested = append(nested, r)
		}
		return &attrs.CodeAttribute{
			MaxStack:       at.MaxStack,
			MaxLocals:      at.MaxLocals,
			Code:           newList,
			ExceptionTable: newExTable,
			Attributes:     nested,
		}, nil

	case *attrs.StackMapTableAttribute:
		clone := at.Clone()
		srcThisName, hasThisName := srcPool.ThisClassName()
		clone.RemapClassRefs(srcPool, func(className string) uint16 {
			if hasThisName && className == srcThisName {
				return dstPool.ThisClass()
			}
			return dstPool.CreateClass(cpool.EncodeModifiedUTF8(className))
		})
		return clone, nil

	case *attrs.SourceFileAttribute:
		return &attrs.SourceFileAttribute{
			SourceFileIndex: remapUtf8Index(srcPool, dstPool, at.SourceFileIndex),
		}, nil

	case *attrs.LineNumberTableAttribute:
		return &attrs.LineNumberTableAttribute{Entries: append([]attrs.LineNumberEntry{}, at.Entries...)}, nil

	case *attrs.LocalVariableTableAttribute:
		entries := make([]attrs.LocalVariableEntry, len(at.Entries))
		for i, e := range at.Entries {
			entries[i] = attrs.LocalVariableEntry{
				StartPC:         e.StartPC,
				Length:          e.Length,
				NameIndex:       remapUtf8Index(srcPool, dstPool, e.NameIndex),
				DescriptorIndex: remapUtf8Index(srcPool, dstPool, e.DescriptorIndex),
				Index:           e.Index,
			}
		}
		return &attrs.LocalVariableTableAttribute{Entries: entries}, nil

	case *attrs.ExceptionsAttribute:
		idxs := make([]uint16, len(at.ClassIndices))
		for i, idx := range at.ClassIndices {
			idxs[i] = remapClassIndex(srcPool, dstPool, idx)
		}
		return &attrs.ExceptionsAttribute{ClassIndices: idxs}, nil

	case *attrs.InnerClassesAttribute:
		classes := make([]attrs.InnerClassEntry, len(at.Classes))
		for i, e := range at.Classes {
			classes[i] = attrs.InnerClassEntry{
				InnerClassInfoIndex:   remapClassIndex(srcPool, dstPool, e.InnerClassInfoIndex),
				OuterClassInfoIndex:   remapClassIndex(srcPool, dstPool, e.OuterClassInfoIndex),
				InnerNameIndex:        remapUtf8Index(srcPool, dstPool, e.InnerNameIndex),
				InnerClassAccessFlags: e.InnerClassAccessFlags,
			}
		}
		return &attrs.InnerClassesAttribute{Classes: classes}, nil

	case *attrs.ConstantValueAttribute:
		v, ok := srcPool.GetValue(at.ConstantValueIndex)
		if !ok {
			return nil, fmt.Errorf("classfile: ConstantValue index %d does not resolve", at.ConstantValueIndex)
		}
		var idx uint16
		if v.Kind == "CONSTANT_Integer" {
			idx = dstPool.CreateInteger(v.Int)
		} else {
			idx = dstPool.CreateString(v.Str)
		}
		return &attrs.ConstantValueAttribute{ConstantValueIndex: idx}, nil

	default:
		return nil, fmt.Errorf("classfile: no remap rule for attribute %q", a.Name())
	}
}
