package hash

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the frozen hashing AST.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (uint32=4B)
//   - Strings: uint32 big-endian length + bytes
//   - Booleans: single byte (0/1)
//   - Positions: TagPosition + line + column, or TagNoPosition
//   - Child nodes: serialized inline (flat)
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of an HNode tree.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(node HNode) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writePos(p *HPos) {
	if p == nil {
		s.writeByte(TagNoPosition)
		return
	}
	s.writeByte(TagPosition)
	s.writeUint32(p.Line)
	s.writeUint32(p.Column)
}

func (s *serializer) writeNodes(nodes []HNode) {
	s.writeUint32(uint32(len(nodes)))
	for _, n := range nodes {
		s.serializeNode(n)
	}
}

func (s *serializer) serializeNode(node HNode) {
	switch n := node.(type) {
	case *HNumber:
		s.writeByte(TagNumber)
		s.writePos(n.Pos)
		s.writeString(n.Text)

	case *HString:
		s.writeByte(TagString)
		s.writePos(n.Pos)
		s.writeString(n.Value)

	case *HKeyword:
		s.writeByte(TagKeyword)
		s.writePos(n.Pos)
		s.writeString(n.Name)

	case *HSymbol:
		s.writeByte(TagSymbol)
		s.writePos(n.Pos)
		s.writeString(n.Name)

	case *HList:
		s.writeByte(TagList)
		s.writePos(n.Pos)
		s.writeNodes(n.Items)

	case *HSequence:
		s.writeByte(TagSequence)
		s.writePos(n.Pos)
		s.writeNodes(n.Items)

	case *HTable:
		s.writeByte(TagTable)
		s.writePos(n.Pos)
		s.writeUint32(uint32(len(n.Pairs)))
		for _, p := range n.Pairs {
			s.serializeNode(p[0])
			s.serializeNode(p[1])
		}

	case *HOptions:
		s.writeByte(TagOptions)
		s.writeString(n.Filename)
		s.writeBool(n.AllowGlobalDeclarations)
		s.writeBool(n.CorrelateLines)
		s.writeBool(n.PersistLocals)
		s.writeBool(n.RestrictGlobals)
		s.writeUint32(uint32(len(n.AllowedGlobals)))
		for _, g := range n.AllowedGlobals {
			s.writeString(g)
		}

	case *HDependency:
		s.writeByte(TagDependency)
		s.writeString(n.Name)
		s.writeString(n.Source)

	case *HUnit:
		s.writeByte(TagUnit)
		if n.Options == nil {
			s.serializeNode(&HOptions{})
		} else {
			s.serializeNode(n.Options)
		}
		s.writeUint32(uint32(len(n.Deps)))
		for _, d := range n.Deps {
			s.serializeNode(d)
		}
		s.writeNodes(n.Forms)
	}
}
