package utils

import (
	"math/big"
	"testing"
)

func TestCompactToBig(t *testing.T) {
	tests := []struct {
		name    string
		compact uint32
		want    *big.Int
	}{
		{
			name:    "difficulty_one",
			compact: 0x1d00ffff,
			want:    new(big.Int).Lsh(big.NewInt(0xffff), 208),
		},
		{
			name:    "small_exponent",
			compact: 0x03123456,
			want:    big.NewInt(0x123456),
		},
		{
			name:    "exponent_below_mantissa_width",
			compact: 0x01120000,
			want:    big.NewInt(0x12),
		},
		{
			name:    "regtest_limit",
			compact: 0x207fffff,
			want:    new(big.Int).Lsh(big.NewInt(0x7fffff), 232),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := CompactToBig(test.compact)
			if got.Cmp(test.want) != 0 {
				t.Errorf("got %x, want %x", got, test.want)
			}
		})
	}
}

func TestBigToCompactRoundTrip(t *testing.T) {
	// Values whose mantissa fits 23 bits survive the round trip exactly.
	for _, compact := range []uint32{0x1d00ffff, 0x1f00ffff, 0x207fffff, 0x03123456} {
		n := CompactToBig(compact)
		if got := BigToCompact(n); got != compact {
			t.Errorf("round trip of %08x yielded %08x", compact, got)
		}
	}

	if got := BigToCompact(big.NewInt(0)); got != 0 {
		t.Errorf("zero should encode to 0, got %08x", got)
	}

	// A mantissa with the sign bit set is renormalized upward.
	n := big.NewInt(0x800000)
	if got := BigToCompact(n); got != 0x04008000 {
		t.Errorf("sign-bit mantissa encoded as %08x, want 04008000", got)
	}
}

func TestDiffToTarget(t *testing.T) {
	powLimit := new(big.Int).Lsh(big.NewInt(0xffff), 208)

	t.Run("difficulty_one_is_pow_limit", func(t *testing.T) {
		target, err := DiffToTarget(1, powLimit)
		if err != nil {
			t.Fatal(err)
		}
		if target.Cmp(powLimit) != 0 {
			t.Errorf("got %x, want %x", target, powLimit)
		}
	})

	t.Run("difficulty_two_halves_target", func(t *testing.T) {
		target, err := DiffToTarget(2, powLimit)
		if err != nil {
			t.Fatal(err)
		}
		want := new(big.Int).Div(powLimit, big.NewInt(2))
		if target.Cmp(want) != 0 {
			t.Errorf("got %x, want %x", target, want)
		}
	})

	t.Run("fractional_clamps_to_one", func(t *testing.T) {
		target, err := DiffToTarget(0.5, powLimit)
		if err != nil {
			t.Fatal(err)
		}
		if target.Cmp(powLimit) != 0 {
			t.Errorf("got %x, want %x", target, powLimit)
		}
	})

	t.Run("non_positive_rejected", func(t *testing.T) {
		if _, err := DiffToTarget(0, powLimit); err == nil {
			t.Error("difficulty 0 should be rejected")
		}
		if _, err := DiffToTarget(-3, powLimit); err == nil {
			t.Error("negative difficulty should be rejected")
		}
	})

	t.Run("matches_compact_bits", func(t *testing.T) {
		// Equivalent difficulty values expressed as a float and as
		// compact bits produce identical target integers.
		target, err := DiffToTarget(1, powLimit)
		if err != nil {
			t.Fatal(err)
		}
		if target.Cmp(CompactToBig(0x1d00ffff)) != 0 {
			t.Errorf("difficulty 1: got %x, want %x",
				target, CompactToBig(0x1d00ffff))
		}

		target, err = DiffToTarget(65536, powLimit)
		if err != nil {
			t.Fatal(err)
		}
		if target.Cmp(CompactToBig(0x1b00ffff)) != 0 {
			t.Errorf("difficulty 65536: got %x, want %x",
				target, CompactToBig(0x1b00ffff))
		}
	})
}

func TestCalcDifficultyRatio(t *testing.T) {
	powLimit := new(big.Int).Lsh(big.NewInt(0xffff), 208)

	if got := CalcDifficultyRatio(0x1d00ffff, powLimit); got != 1 {
		t.Errorf("limit bits should be difficulty 1, got %v", got)
	}
	// One exponent step below the limit is 256 times harder.
	if got := CalcDifficultyRatio(0x1c00ffff, powLimit); got != 256 {
		t.Errorf("got %v, want 256", got)
	}
}

func TestLeadingZeroBits(t *testing.T) {
	// The well-known first block hash has 10 leading zero hex digits and a
	// leading significant nibble of 1: 43 zero bits.
	hash, err := NewHashFromStr("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
	if err != nil {
		t.Fatal(err)
	}

	if got := LeadingZeroBits(*hash); got != 43 {
		t.Errorf("leading zero bits: got %d, want 43", got)
	}
	if got := LeadingZeroHexDigits(*hash); got != 10 {
		t.Errorf("leading zero hex digits: got %d, want 10", got)
	}

	if got := LeadingZeroBits(ZeroHash); got != 256 {
		t.Errorf("zero hash should report 256 bits, got %d", got)
	}
}

func TestHashToBigOrdering(t *testing.T) {
	// The hash comparison must operate on display byte order: a hash with a
	// smaller display value is the smaller integer.
	small, _ := NewHashFromStr("0000000000000000000000000000000000000000000000000000000000000001")
	large, _ := NewHashFromStr("1000000000000000000000000000000000000000000000000000000000000000")

	if HashToBig(small).Cmp(big.NewInt(1)) != 0 {
		t.Errorf("display 0...1 should convert to 1, got %x", HashToBig(small))
	}
	if HashToBig(small).Cmp(HashToBig(large)) >= 0 {
		t.Error("display ordering not preserved by HashToBig")
	}
}
