package hash

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSerialize_Deterministic(t *testing.T) {
	node := &HList{Items: []HNode{
		&HSymbol{Name: "+"},
		&HNumber{Text: "1"},
		&HTable{Pairs: [][2]HNode{{&HKeyword{Name: "k"}, &HString{Value: "v"}}}},
	}}

	data1 := Serialize(node)
	data2 := Serialize(node)

	if !bytes.Equal(data1, data2) {
		t.Error("serialization is not deterministic")
	}
}

func TestSerialize_VersionPrefix(t *testing.T) {
	data := Serialize(&HSymbol{Name: "x"})
	if len(data) < 1 {
		t.Fatal("empty serialization")
	}
	if data[0] != HashVersion {
		t.Errorf("version prefix: got 0x%02X, want 0x%02X", data[0], HashVersion)
	}
}

func TestSerialize_Symbol(t *testing.T) {
	data := Serialize(&HSymbol{Name: "abc"})

	// version(1) + tag(1) + no-position(1) + len(4) + "abc"(3) = 10
	if len(data) != 10 {
		t.Fatalf("length: got %d, want 10", len(data))
	}
	if data[1] != TagSymbol {
		t.Errorf("tag: got 0x%02X, want 0x%02X", data[1], TagSymbol)
	}
	if data[2] != TagNoPosition {
		t.Errorf("position tag: got 0x%02X, want 0x%02X", data[2], TagNoPosition)
	}
	if n := binary.BigEndian.Uint32(data[3:7]); n != 3 {
		t.Errorf("string length: got %d, want 3", n)
	}
	if string(data[7:]) != "abc" {
		t.Errorf("string bytes: got %q", data[7:])
	}
}

func TestSerialize_Position(t *testing.T) {
	data := Serialize(&HNumber{Pos: &HPos{Line: 3, Column: 7}, Text: "1"})

	if data[2] != TagPosition {
		t.Fatalf("position tag: got 0x%02X, want 0x%02X", data[2], TagPosition)
	}
	if line := binary.BigEndian.Uint32(data[3:7]); line != 3 {
		t.Errorf("line: got %d, want 3", line)
	}
	if col := binary.BigEndian.Uint32(data[7:11]); col != 7 {
		t.Errorf("column: got %d, want 7", col)
	}
}

func TestSerialize_KindsAreDistinct(t *testing.T) {
	// the same name under different node kinds must never collide
	nodes := []HNode{
		&HSymbol{Name: "x"},
		&HKeyword{Name: "x"},
		&HString{Value: "x"},
		&HNumber{Text: "x"},
		&HList{Items: []HNode{&HSymbol{Name: "x"}}},
		&HSequence{Items: []HNode{&HSymbol{Name: "x"}}},
	}
	seen := make(map[string]int)
	for i, n := range nodes {
		key := string(Serialize(n))
		if j, ok := seen[key]; ok {
			t.Errorf("node %d serializes like node %d", i, j)
		}
		seen[key] = i
	}
}

func TestSerialize_NestingIsUnambiguous(t *testing.T) {
	// (a (b) c) vs (a (b c))
	a := &HList{Items: []HNode{
		&HSymbol{Name: "a"},
		&HList{Items: []HNode{&HSymbol{Name: "b"}}},
		&HSymbol{Name: "c"},
	}}
	b := &HList{Items: []HNode{
		&HSymbol{Name: "a"},
		&HList{Items: []HNode{&HSymbol{Name: "b"}, &HSymbol{Name: "c"}}},
	}}
	if bytes.Equal(Serialize(a), Serialize(b)) {
		t.Error("different nestings serialize identically")
	}
}

func TestSerialize_UnitOptions(t *testing.T) {
	base := &HUnit{Options: &HOptions{Filename: "a.fern"}}
	flipped := &HUnit{Options: &HOptions{Filename: "a.fern", CorrelateLines: true}}
	if bytes.Equal(Serialize(base), Serialize(flipped)) {
		t.Error("options do not reach the serialization")
	}
	if !bytes.Equal(Serialize(&HUnit{}), Serialize(&HUnit{Options: &HOptions{}})) {
		t.Error("nil options should serialize as zero options")
	}
}
