package utils

import (
	"encoding/json"
	"strings"
	"testing"
)

// mainNetGenesisHashStr is a fixed, externally verifiable block hash.
const mainNetGenesisHashStr = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"

func TestHashString(t *testing.T) {
	hash, err := NewHashFromStr(mainNetGenesisHashStr)
	if err != nil {
		t.Fatal(err)
	}

	if hash.String() != mainNetGenesisHashStr {
		t.Errorf("round trip mismatch: got %s, want %s",
			hash.String(), mainNetGenesisHashStr)
	}

	// Internal storage is byte-reversed relative to the display form, so
	// the display's trailing byte is the first stored byte.
	if hash[0] != 0x6f {
		t.Errorf("first internal byte: got %02x, want 6f", hash[0])
	}
	if hash[31] != 0x00 {
		t.Errorf("last internal byte: got %02x, want 00", hash[31])
	}
}

func TestDecode(t *testing.T) {
	t.Run("short_input_pads_trailing", func(t *testing.T) {
		var hash Hash
		if err := Decode(&hash, "1"); err != nil {
			t.Fatal(err)
		}
		// Display "1" means the value 1: internal byte 0 is 1, the rest 0.
		if hash[0] != 0x01 {
			t.Errorf("got %02x, want 01", hash[0])
		}
		for i := 1; i < HashSize; i++ {
			if hash[i] != 0 {
				t.Fatalf("byte %d not zero padded", i)
			}
		}
	})

	t.Run("too_long_rejected", func(t *testing.T) {
		var hash Hash
		err := Decode(&hash, strings.Repeat("ab", HashSize+1))
		if err != ErrHashStrSize {
			t.Errorf("expected ErrHashStrSize, got %v", err)
		}
	})

	t.Run("non_hex_rejected", func(t *testing.T) {
		var hash Hash
		if err := Decode(&hash, "zz"); err == nil {
			t.Error("expected error decoding non-hex input")
		}
	})
}

func TestHashJSON(t *testing.T) {
	hash, err := NewHashFromStr(mainNetGenesisHashStr)
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(hash)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"`+mainNetGenesisHashStr+`"` {
		t.Errorf("marshaled form: got %s", data)
	}

	var decoded Hash
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.IsEqual(hash) {
		t.Errorf("unmarshal mismatch: got %s", decoded.String())
	}
}

func TestSetBytes(t *testing.T) {
	var hash Hash
	if err := hash.SetBytes(make([]byte, HashSize-1)); err == nil {
		t.Error("expected error for short byte slice")
	}
	if err := hash.SetBytes(make([]byte, HashSize)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReverseBytes(t *testing.T) {
	in := []byte{1, 2, 3}
	out := ReverseBytes(in)
	if out[0] != 3 || out[1] != 2 || out[2] != 1 {
		t.Errorf("got %v", out)
	}
	if &in[0] == &out[0] {
		t.Error("input was not copied")
	}
}
