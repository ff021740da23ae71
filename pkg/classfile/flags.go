package classfile

// Access flags, grouped by where the JVM specification permits them.
// Classes, fields, and methods share a namespace of bit values but attach
// different meanings to a few of them (e.g. 0x0020 is ACC_SUPER on a
// class and ACC_SYNCHRONIZED on a method).
const (
	AccPublic = 0x0001
	AccFinal  = 0x0010

	// Class-only.
	AccSuper     = 0x0020
	AccInterface = 0x0200
	AccAbstract  = 0x0400

	// Field-only (in addition to AccPublic/AccFinal).
	AccPrivate   = 0x0002
	AccProtected = 0x0004
	AccStatic    = 0x0008
	AccVolatile  = 0x0040
	AccTransient = 0x0080

	// Method-only (in addition to AccPublic/AccFinal/AccPrivate/
	// AccProtected/AccStatic/AccAbstract).
	AccSynchronized = 0x0020
	AccNative       = 0x0100
	AccStrict       = 0x0800
)
