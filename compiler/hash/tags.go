package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the hashing serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every cache key computed so far.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// Node type tags. Each tag uniquely identifies a node kind in the
// serialized byte stream.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Atoms
	TagNumber  byte = 0x01
	TagString  byte = 0x02
	TagKeyword byte = 0x03
	TagSymbol  byte = 0x04

	// Collections
	TagList     byte = 0x05
	TagSequence byte = 0x06
	TagTable    byte = 0x07

	// Reserved 0x08-0x0F

	// Unit structure
	TagUnit       byte = 0x10
	TagOptions    byte = 0x11
	TagDependency byte = 0x12
	TagPosition   byte = 0x13
	TagNoPosition byte = 0x14

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagNumber, TagString, TagKeyword, TagSymbol,
	TagList, TagSequence, TagTable,
	TagUnit, TagOptions, TagDependency, TagPosition, TagNoPosition,
}
