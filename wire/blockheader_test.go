package wire

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"

	"github.com/matrixbuilderops/solominerd/utils"
)

// mainNetGenesisHeader returns the first mainnet block header, whose hash is
// a fixed, externally verifiable value.
func mainNetGenesisHeader(t *testing.T) *BlockHeader {
	t.Helper()

	merkle, err := utils.NewHashFromStr(
		"4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b")
	if err != nil {
		t.Fatal(err)
	}

	return &BlockHeader{
		Version:    1,
		PrevBlock:  utils.ZeroHash,
		MerkleRoot: *merkle,
		Timestamp:  time.Unix(1231006505, 0),
		Bits:       0x1d00ffff,
		Nonce:      2083236893,
	}
}

func TestBlockHash(t *testing.T) {
	header := mainNetGenesisHeader(t)

	hash := header.BlockHash()
	want := "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	if hash.String() != want {
		t.Errorf("block hash mismatch: got %s, want %s", hash.String(), want)
	}

	// A different nonce must change the hash.
	header.Nonce++
	if header.BlockHash().String() == want {
		t.Error("hash unchanged after nonce mutation")
	}
}

func TestBlockHeaderSerialize(t *testing.T) {
	header := mainNetGenesisHeader(t)

	t.Run("eighty_bytes", func(t *testing.T) {
		var buf bytes.Buffer
		if err := header.Serialize(&buf); err != nil {
			t.Fatal(err)
		}
		if buf.Len() != 80 {
			t.Errorf("serialized length: got %d, want 80", buf.Len())
		}
		if got := header.SerializeBytes(); !bytes.Equal(got, buf.Bytes()) {
			t.Error("SerializeBytes disagrees with Serialize")
		}
	})

	t.Run("layout", func(t *testing.T) {
		data := header.SerializeBytes()

		// Little-endian version at offset 0, nonce at offset 76.
		if got := hex.EncodeToString(data[0:4]); got != "01000000" {
			t.Errorf("version bytes: got %s, want 01000000", got)
		}
		if got := hex.EncodeToString(data[76:80]); got != "1dac2b7c" {
			t.Errorf("nonce bytes: got %s, want 1dac2b7c", got)
		}
		if !bytes.Equal(data[4:36], header.PrevBlock[:]) {
			t.Error("previous hash bytes not at offset 4")
		}
		if !bytes.Equal(data[36:68], header.MerkleRoot[:]) {
			t.Error("merkle root bytes not at offset 36")
		}
	})

	t.Run("round_trip", func(t *testing.T) {
		var buf bytes.Buffer
		if err := header.Serialize(&buf); err != nil {
			t.Fatal(err)
		}

		var decoded BlockHeader
		if err := decoded.Deserialize(&buf); err != nil {
			t.Fatal(err)
		}
		if decoded.Version != header.Version ||
			!decoded.PrevBlock.IsEqual(&header.PrevBlock) ||
			!decoded.MerkleRoot.IsEqual(&header.MerkleRoot) ||
			decoded.Timestamp.Unix() != header.Timestamp.Unix() ||
			decoded.Bits != header.Bits ||
			decoded.Nonce != header.Nonce {
			t.Errorf("round trip mismatch: got %+v, want %+v", decoded, header)
		}
	})

	t.Run("short_input", func(t *testing.T) {
		var decoded BlockHeader
		if err := decoded.Deserialize(bytes.NewReader(make([]byte, 40))); err == nil {
			t.Error("expected error decoding a truncated header")
		}
	})
}
