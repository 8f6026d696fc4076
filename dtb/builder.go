// Package dtb builds a flattened device tree blob (FDT) describing the
// guest platform: memory, CPUs, PSCI, the GICv3, the architected timer,
// and the PL011 UART. It builds a typed node/property tree and serializes
// it in one big-endian pass with encoding/binary and bytes.Buffer.
package dtb

import (
	"bytes"
	"encoding/binary"
)

// FDT structure-block token values, from the Devicetree Specification.
const (
	tokenBeginNode uint32 = 0x00000001
	tokenEndNode   uint32 = 0x00000002
	tokenProp      uint32 = 0x00000003
	tokenEnd       uint32 = 0x00000009
)

const fdtMagic uint32 = 0xd00dfeed

const (
	fdtVersion       = 17
	fdtLastCompVersion = 16
)

// Property is one devicetree property: a name and its encoded value.
// Use the PropXxx helpers to build Value in the right encoding.
type Property struct {
	Name  string
	Value []byte
}

// Node is one devicetree node: a name (empty for the root) and an ordered
// list of properties followed by an ordered list of children.
type Node struct {
	Name     string
	Props    []Property
	Children []*Node
}

// PropEmpty returns a valueless boolean property (e.g. "interrupt-controller").
func PropEmpty(name string) Property {
	return Property{Name: name}
}

// PropString returns a NUL-terminated string property.
func PropString(name, val string) Property {
	return Property{Name: name, Value: append([]byte(val), 0)}
}

// PropStringList returns a property holding a concatenation of
// NUL-terminated strings.
func PropStringList(name string, vals ...string) Property {
	var buf bytes.Buffer

	for _, v := range vals {
		buf.WriteString(v)
		buf.WriteByte(0)
	}

	return Property{Name: name, Value: buf.Bytes()}
}

// PropU32 returns a property holding a list of big-endian 32-bit cells.
func PropU32(name string, vals ...uint32) Property {
	buf := make([]byte, 4*len(vals))

	for i, v := range vals {
		binary.BigEndian.PutUint32(buf[4*i:], v)
	}

	return Property{Name: name, Value: buf}
}

// PropU64 returns a property holding a list of 64-bit values, each encoded
// as two big-endian 32-bit cells (high cell first), per the cell encoding
// rule for 64-bit reg/range entries.
func PropU64(name string, vals ...uint64) Property {
	buf := make([]byte, 8*len(vals))

	for i, v := range vals {
		binary.BigEndian.PutUint32(buf[8*i:], uint32(v>>32))
		binary.BigEndian.PutUint32(buf[8*i+4:], uint32(v))
	}

	return Property{Name: name, Value: buf}
}

// stringTable interns property names into one concatenated, NUL-separated
// blob and hands out each name's byte offset, matching the FDT strings
// block.
type stringTable struct {
	buf     bytes.Buffer
	offsets map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{offsets: map[string]uint32{}}
}

func (s *stringTable) intern(name string) uint32 {
	if off, ok := s.offsets[name]; ok {
		return off
	}

	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	s.offsets[name] = off

	return off
}

func pad4(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func writeNode(buf *bytes.Buffer, strs *stringTable, n *Node) {
	binary.Write(buf, binary.BigEndian, tokenBeginNode) //nolint:errcheck
	buf.WriteString(n.Name)
	buf.WriteByte(0)
	pad4(buf)

	for _, p := range n.Props {
		binary.Write(buf, binary.BigEndian, tokenProp) //nolint:errcheck
		binary.Write(buf, binary.BigEndian, uint32(len(p.Value))) //nolint:errcheck
		binary.Write(buf, binary.BigEndian, strs.intern(p.Name))  //nolint:errcheck
		buf.Write(p.Value)
		pad4(buf)
	}

	for _, c := range n.Children {
		writeNode(buf, strs, c)
	}

	binary.Write(buf, binary.BigEndian, tokenEndNode) //nolint:errcheck
}

// Build serializes root into a complete FDT blob.
func Build(root *Node) []byte {
	strs := newStringTable()

	var structBuf bytes.Buffer
	writeNode(&structBuf, strs, root)
	binary.Write(&structBuf, binary.BigEndian, tokenEnd) //nolint:errcheck

	const headerSize = 40
	const memRsvMapSize = 16 // one all-zero terminating entry

	offMemRsvMap := uint32(headerSize)
	offDTStruct := offMemRsvMap + memRsvMapSize
	offDTStrings := offDTStruct + uint32(structBuf.Len())
	totalSize := offDTStrings + uint32(strs.buf.Len())

	var out bytes.Buffer

	hdr := []uint32{
		fdtMagic,
		totalSize,
		offDTStruct,
		offDTStrings,
		offMemRsvMap,
		fdtVersion,
		fdtLastCompVersion,
		0, // boot_cpuid_phys
		uint32(strs.buf.Len()),
		uint32(structBuf.Len()),
	}

	for _, w := range hdr {
		binary.Write(&out, binary.BigEndian, w) //nolint:errcheck
	}

	out.Write(make([]byte, memRsvMapSize))
	out.Write(structBuf.Bytes())
	out.Write(strs.buf.Bytes())

	return out.Bytes()
}
