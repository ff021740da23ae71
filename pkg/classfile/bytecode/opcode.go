// Package bytecode implements the instruction codec and the editable
// per-method instruction list: decoding a code array into instructions
// with resolved operands, re-encoding them, and fixing up branch offsets
// across insertion and removal.
package bytecode

// OperandKind classifies how an opcode's operand bytes are laid out and
// how they resolve against the constant pool. It plays the role the
// source's per-opcode (pack, unpack, resolver, intern-writer) tuple plays,
// collapsed into one enum plus a shared set of codec functions keyed on it.
type OperandKind int

const (
	// OperandNone: the opcode has no operand bytes (e.g. nop, iadd).
	OperandNone OperandKind = iota
	// OperandLocalIndex: one unsigned byte, a local variable slot.
	OperandLocalIndex
	// OperandConstByte: one unsigned byte, a constant-pool index (ldc).
	OperandConstByte
	// OperandConstShort: two unsigned bytes, a constant-pool index
	// resolved as a Class (new, anewarray, checkcast, instanceof).
	OperandConstShort
	// OperandConstShortMethod: two-byte pool index resolved via GetMethod
	// (invokevirtual, invokespecial, invokestatic).
	OperandConstShortMethod
	// OperandConstShortField: two-byte pool index resolved via GetField
	// (getstatic, putstatic, getfield, putfield).
	OperandConstShortField
	// OperandConstShortValue: two-byte pool index resolved via GetValue
	// (ldc_w, ldc2_w).
	OperandConstShortValue
	// OperandInvokeInterface: two-byte pool index + count byte + zero byte.
	OperandInvokeInterface
	// OperandBranch2: two-byte signed offset relative to the instruction.
	OperandBranch2
	// OperandBranch4: four-byte signed offset relative to the instruction.
	OperandBranch4
	// OperandImmediateByte: one signed byte immediate (bipush).
	OperandImmediateByte
	// OperandImmediateShort: one signed 2-byte immediate (sipush).
	OperandImmediateShort
	// OperandIinc: local index byte + signed const byte.
	OperandIinc
	// OperandNewArrayType: one byte, an array type code (newarray).
	OperandNewArrayType
	// OperandMultiANewArray: two-byte pool index + dimensions byte.
	OperandMultiANewArray
	// OperandOpaque: variable-length operand this module decodes (to keep
	// offsets correct) but never edits: tableswitch, lookupswitch, wide.
	OperandOpaque
)

// OpcodeInfo is the static per-opcode description: mnemonic and operand
// shape. There is one entry per defined opcode value (0x00-0xC9); the rest
// of the 256-entry table is zero-valued and rejected by Decode.
type OpcodeInfo struct {
	Mnemonic string
	Kind     OperandKind
	// IsBranch marks the eighteen 2-byte-offset branch ops plus the two
	// 4-byte-offset wide variants, matching BRANCH_OPCODES in spec.
	IsBranch bool
	Defined  bool
}

// opcodeTable is indexed by raw opcode byte.
var opcodeTable [256]OpcodeInfo

func def(op byte, mnemonic string, kind OperandKind, isBranch bool) {
	opcodeTable[op] = OpcodeInfo{Mnemonic: mnemonic, Kind: kind, IsBranch: isBranch, Defined: true}
}

func init() {
	def(0x00, "nop", OperandNone, false)
	def(0x01, "aconst_null", OperandNone, false)
	def(0x02, "iconst_m1", OperandNone, false)
	def(0x03, "iconst_0", OperandNone, false)
	def(0x04, "iconst_1", OperandNone, false)
	def(0x05, "iconst_2", OperandNone, false)
	def(0x06, "iconst_3", OperandNone, false)
	def(0x07, "iconst_4", OperandNone, false)
	def(0x08, "iconst_5", OperandNone, false)
	def(0x09, "lconst_0", OperandNone, false)
	def(0x0a, "lconst_1", OperandNone, false)
	def(0x0b, "fconst_0", OperandNone, false)
	def(0x0c, "fconst_1", OperandNone, false)
	def(0x0d, "fconst_2", OperandNone, false)
	def(0x0e, "dconst_0", OperandNone, false)
	def(0x0f, "dconst_1", OperandNone, false)
	def(0x10, "bipush", OperandImmediateByte, false)
	def(0x11, "sipush", OperandImmediateShort, false)
	def(0x12, "ldc", OperandConstByte, false)
	def(0x13, "ldc_w", OperandConstShortValue, false)
	def(0x14, "ldc2_w", OperandConstShortValue, false)
	def(0x15, "iload", OperandLocalIndex, false)
	def(0x16, "lload", OperandLocalIndex, false)
	def(0x17, "fload", OperandLocalIndex, false)
	def(0x18, "dload", OperandLocalIndex, false)
	def(0x19, "aload", OperandLocalIndex, false)
	def(0x1a, "iload_0", OperandNone, false)
	def(0x1b, "iload_1", OperandNone, false)
	def(0x1c, "iload_2", OperandNone, false)
	def(0x1d, "iload_3", OperandNone, false)
	def(0x1e, "lload_0", OperandNone, false)
	def(0x1f, "lload_1", OperandNone, false)
	def(0x20, "lload_2", OperandNone, false)
	def(0x21, "lload_3", OperandNone, false)
	def(0x22, "fload_0", OperandNone, false)
	def(0x23, "fload_1", OperandNone, false)
	def(0x24, "fload_2", OperandNone, false)
	def(0x25, "fload_3", OperandNone, false)
	def(0x26, "dload_0", OperandNone, false)
	def(0x27, "dload_1", OperandNone, false)
	def(0x28, "dload_2", OperandNone, false)
	def(0x29, "dload_3", OperandNone, false)
	def(0x2a, "aload_0", OperandNone, false)
	def(0x2b, "aload_1", OperandNone, false)
	def(0x2c, "aload_2", OperandNone, false)
	def(0x2d, "aload_3", OperandNone, false)
	def(0x2e, "iaload", OperandNone, false)
	def(0x2f, "laload", OperandNone, false)
	def(0x30, "faload", OperandNone, false)
	def(0x31, "daload", OperandNone, false)
	def(0x32, "aaload", OperandNone, false)
	def(0x33, "baload", OperandNone, false)
	def(0x34, "caload", OperandNone, false)
	def(0x35, "saload", OperandNone, false)
	def(0x36, "istore", OperandLocalIndex, false)
	def(0x37, "lstore", OperandLocalIndex, false)
	def(0x38, "fstore", OperandLocalIndex, false)
	def(0x39, "dstore", OperandLocalIndex, false)
	def(0x3a, "astore", OperandLocalIndex, false)
	def(0x3b, "istore_0", OperandNone, false)
	def(0x3c, "istore_1", OperandNone, false)
	def(0x3d, "istore_2", OperandNone, false)
	def(0x3e, "istore_3", OperandNone, false)
	def(0x3f, "lstore_0", OperandNone, false)
	def(0x40, "lstore_1", OperandNone, false)
	def(0x41, "lstore_2", OperandNone, false)
	def(0x42, "lstore_3", OperandNone, false)
	def(0x43, "fstore_0", OperandNone, false)
	def(0x44, "fstore_1", OperandNone, false)
	def(0x45, "fstore_2", OperandNone, false)
	def(0x46, "fstore_3", OperandNone, false)
	def(0x47, "dstore_0", OperandNone, false)
	def(0x48, "dstore_1", OperandNone, false)
	def(0x49, "dstore_2", OperandNone, false)
	def(0x4a, "dstore_3", OperandNone, false)
	def(0x4b, "astore_0", OperandNone, false)
	def(0x4c, "astore_1", OperandNone, false)
	def(0x4d, "astore_2", OperandNone, false)
	def(0x4e, "astore_3", OperandNone, false)
	def(0x4f, "iastore", OperandNone, false)
	def(0x50, "lastore", OperandNone, false)
	def(0x51, "fastore", OperandNone, false)
	def(0x52, "dastore", OperandNone, false)
	def(0x53, "aastore", OperandNone, false)
	def(0x54, "bastore", OperandNone, false)
	def(0x55, "castore", OperandNone, false)
	def(0x56, "sastore", OperandNone, false)
	def(0x57, "pop", OperandNone, false)
	def(0x58, "pop2", OperandNone, false)
	def(0x59, "dup", OperandNone, false)
	def(0x5a, "dup_x1", OperandNone, false)
	def(0x5b, "dup_x2", OperandNone, false)
	def(0x5c, "dup2", OperandNone, false)
	def(0x5d, "dup2_x1", OperandNone, false)
	def(0x5e, "dup2_x2", OperandNone, false)
	def(0x5f, "swap", OperandNone, false)
	def(0x60, "iadd", OperandNone, false)
	def(0x61, "ladd", OperandNone, false)
	def(0x62, "fadd", OperandNone, false)
	def(0x63, "dadd", OperandNone, false)
	def(0x64, "isub", OperandNone, false)
	def(0x65, "lsub", OperandNone, false)
	def(0x66, "fsub", OperandNone, false)
	def(0x67, "dsub", OperandNone, false)
	def(0x68, "imul", OperandNone, false)
	def(0x69, "lmul", OperandNone, false)
	def(0x6a, "fmul", OperandNone, false)
	def(0x6b, "dmul", OperandNone, false)
	def(0x6c, "idiv", OperandNone, false)
	def(0x6d, "ldiv", OperandNone, false)
	def(0x6e, "fdiv", OperandNone, false)
	def(0x6f, "ddiv", OperandNone, false)
	def(0x70, "irem", OperandNone, false)
	def(0x71, "lrem", OperandNone, false)
	def(0x72, "frem", OperandNone, false)
	def(0x73, "drem", OperandNone, false)
	def(0x74, "ineg", OperandNone, false)
	def(0x75, "lneg", OperandNone, false)
	def(0x76, "fneg", OperandNone, false)
	def(0x77, "dneg", OperandNone, false)
	def(0x78, "ishl", OperandNone, false)
	def(0x79, "lshl", OperandNone, false)
	def(0x7a, "ishr", OperandNone, false)
	def(0x7b, "lshr", OperandNone, false)
	def(0x7c, "iushr", OperandNone, false)
	def(0x7d, "lushr", OperandNone, false)
	def(0x7e, "iand", OperandNone, false)
	def(0x7f, "land", OperandNone, false)
	def(0x80, "ior", OperandNone, false)
	def(0x81, "lor", OperandNone, false)
	def(0x82, "ixor", OperandNone, false)
	def(0x83, "lxor", OperandNone, false)
	def(0x84, "iinc", OperandIinc, false)
	def(0x85, "i2l", OperandNone, false)
	def(0x86, "i2f", OperandNone, false)
	def(0x87, "i2d", OperandNone, false)
	def(0x88, "l2i", OperandNone, false)
	def(0x89, "l2f", OperandNone, false)
	def(0x8a, "l2d", OperandNone, false)
	def(0x8b, "f2i", OperandNone, false)
	def(0x8c, "f2l", OperandNone, false)
	def(0x8d, "f2d", OperandNone, false)
	def(0x8e, "d2i", OperandNone, false)
	def(0x8f, "d2l", OperandNone, false)
	def(0x90, "d2f", OperandNone, false)
	def(0x91, "i2b", OperandNone, false)
	def(0x92, "i2c", OperandNone, false)
	def(0x93, "i2s", OperandNone, false)
	def(0x94, "lcmp", OperandNone, false)
	def(0x95, "fcmpl", OperandNone, false)
	def(0x96, "fcmpg", OperandNone, false)
	def(0x97, "dcmpl", OperandNone, false)
	def(0x98, "dcmpg", OperandNone, false)
	def(0x99, "ifeq", OperandBranch2, true)
	def(0x9a, "ifne", OperandBranch2, true)
	def(0x9b, "iflt", OperandBranch2, true)
	def(0x9c, "ifge", OperandBranch2, true)
	def(0x9d, "ifgt", OperandBranch2, true)
	def(0x9e, "ifle", OperandBranch2, true)
	def(0x9f, "if_icmpeq", OperandBranch2, true)
	def(0xa0, "if_icmpne", OperandBranch2, true)
	def(0xa1, "if_icmplt", OperandBranch2, true)
	def(0xa2, "if_icmpge", OperandBranch2, true)
	def(0xa3, "if_icmpgt", OperandBranch2, true)
	def(0xa4, "if_icmple", OperandBranch2, true)
	def(0xa5, "if_acmpeq", OperandBranch2, true)
	def(0xa6, "if_acmpne", OperandBranch2, true)
	def(0xa7, "goto", OperandBranch2, true)
	def(0xa8, "jsr", OperandBranch2, true)
	def(0xa9, "ret", OperandLocalIndex, false)
	def(0xaa, "tableswitch", OperandOpaque, false)
	def(0xab, "lookupswitch", OperandOpaque, false)
	def(0xac, "ireturn", OperandNone, false)
	def(0xad, "lreturn", OperandNone, false)
	def(0xae, "freturn", OperandNone, false)
	def(0xaf, "dreturn", OperandNone, false)
	def(0xb0, "areturn", OperandNone, false)
	def(0xb1, "return", OperandNone, false)
	def(0xb2, "getstatic", OperandConstShortField, false)
	def(0xb3, "putstatic", OperandConstShortField, false)
	def(0xb4, "getfield", OperandConstShortField, false)
	def(0xb5, "putfield", OperandConstShortField, false)
	def(0xb6, "invokevirtual", OperandConstShortMethod, false)
	def(0xb7, "invokespecial", OperandConstShortMethod, false)
	def(0xb8, "invokestatic", OperandConstShortMethod, false)
	def(0xb9, "invokeinterface", OperandInvokeInterface, false)
	def(0xbb, "new", OperandConstShort, false)
	def(0xbc, "newarray", OperandNewArrayType, false)
	def(0xbd, "anewarray", OperandConstShort, false)
	def(0xbe, "arraylength", OperandNone, false)
	def(0xbf, "athrow", OperandNone, false)
	def(0xc0, "checkcast", OperandConstShort, false)
	def(0xc1, "instanceof", OperandConstShort, false)
	def(0xc2, "monitorenter", OperandNone, false)
	def(0xc3, "monitorexit", OperandNone, false)
	def(0xc4, "wide", OperandOpaque, false)
	def(0xc5, "multianewarray", OperandMultiANewArray, false)
	def(0xc6, "ifnull", OperandBranch2, true)
	def(0xc7, "ifnonnull", OperandBranch2, true)
	def(0xc8, "goto_w", OperandBranch4, true)
	def(0xc9, "jsr_w", OperandBranch4, true)

	mnemonicToOpcode = buildMnemonicIndex()
}

// mnemonicToOpcode is filled at the end of init, after opcodeTable has been
// populated (a package-level initializer would run before init and see an
// empty table).
var mnemonicToOpcode map[string]byte

func buildMnemonicIndex() map[string]byte {
	m := make(map[string]byte, len(opcodeTable))
	for op, info := range opcodeTable {
		if info.Defined {
			m[info.Mnemonic] = byte(op)
		}
	}
	return m
}
