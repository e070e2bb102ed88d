package templatemgr

import (
	"bytes"
	"encoding/binary"

	"github.com/matrixbuilderops/solominerd/wire"
)

// buildPlaceholderCoinbase assembles a structurally valid coinbase
// transaction for templates whose upstream did not resolve one: a single
// input spending the null outpoint with the height pushed into the script,
// and a single zero-value unspendable output.  Templates carrying a
// placeholder coinbase still produce a well-formed merkle leaf and a
// serializable block, but the block is only meaningful on synthetic or
// test templates.
func buildPlaceholderCoinbase(height int64, extra []byte) []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	// Version.
	binary.LittleEndian.PutUint32(scratch[:4], 1)
	buf.Write(scratch[:4])

	// One input: null previous outpoint.
	buf.WriteByte(0x01)
	buf.Write(make([]byte, 32))
	binary.LittleEndian.PutUint32(scratch[:4], 0xffffffff)
	buf.Write(scratch[:4])

	// Signature script: serialized height push followed by the extra
	// bytes, mirroring the BIP34 convention.
	script := serializeHeightPush(height)
	script = append(script, extra...)
	_ = wire.WriteVarInt(&buf, 0, uint64(len(script)))
	buf.Write(script)

	// Sequence.
	binary.LittleEndian.PutUint32(scratch[:4], 0xffffffff)
	buf.Write(scratch[:4])

	// One zero-value output with an unspendable (OP_RETURN) script.
	buf.WriteByte(0x01)
	binary.LittleEndian.PutUint64(scratch[:], 0)
	buf.Write(scratch[:])
	buf.WriteByte(0x01)
	buf.WriteByte(0x6a)

	// Locktime.
	binary.LittleEndian.PutUint32(scratch[:4], 0)
	buf.Write(scratch[:4])

	return buf.Bytes()
}

// serializeHeightPush encodes height as a minimal script number push.
func serializeHeightPush(height int64) []byte {
	if height == 0 {
		return []byte{0x00}
	}

	var num []byte
	v := height
	for v > 0 {
		num = append(num, byte(v&0xff))
		v >>= 8
	}
	// Avoid the sign bit of the script number encoding.
	if num[len(num)-1]&0x80 != 0 {
		num = append(num, 0x00)
	}

	out := make([]byte, 0, len(num)+1)
	out = append(out, byte(len(num)))
	out = append(out, num...)
	return out
}
