package wire

import (
	"bytes"
	"testing"
)

func TestVarIntWire(t *testing.T) {
	tests := []struct {
		name string
		val  uint64
		buf  []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"max_single_byte", 0xfc, []byte{0xfc}},
		{"min_two_byte", 0xfd, []byte{0xfd, 0xfd, 0x00}},
		{"max_two_byte", 0xffff, []byte{0xfd, 0xff, 0xff}},
		{"min_four_byte", 0x10000, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
		{"max_four_byte", 0xffffffff, []byte{0xfe, 0xff, 0xff, 0xff, 0xff}},
		{"min_eight_byte", 0x100000000,
			[]byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}},
		{"max_eight_byte", 0xffffffffffffffff,
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteVarInt(&buf, 0, test.val); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf.Bytes(), test.buf) {
				t.Errorf("encoding mismatch: got %x, want %x",
					buf.Bytes(), test.buf)
			}
			if got := VarIntSerializeSize(test.val); got != len(test.buf) {
				t.Errorf("size mismatch: got %d, want %d", got, len(test.buf))
			}

			val, err := ReadVarInt(bytes.NewReader(test.buf), 0)
			if err != nil {
				t.Fatal(err)
			}
			if val != test.val {
				t.Errorf("decoding mismatch: got %d, want %d", val, test.val)
			}
		})
	}
}

func TestVarIntNonCanonical(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"two_byte_form_of_fc", []byte{0xfd, 0xfc, 0x00}},
		{"four_byte_form_of_ffff", []byte{0xfe, 0xff, 0xff, 0x00, 0x00}},
		{"eight_byte_form_of_ffffffff",
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ReadVarInt(bytes.NewReader(test.buf), 0); err == nil {
				t.Error("expected non-canonical encoding to be rejected")
			}
		})
	}
}

func TestVarIntTruncated(t *testing.T) {
	if _, err := ReadVarInt(bytes.NewReader(nil), 0); err == nil {
		t.Error("expected error reading empty input")
	}
	if _, err := ReadVarInt(bytes.NewReader([]byte{0xfd, 0x01}), 0); err == nil {
		t.Error("expected error reading truncated two-byte varint")
	}
}
