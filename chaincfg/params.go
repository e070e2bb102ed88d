package chaincfg

import "math/big"

var (
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest proof of work value a block can have for
	// the main network.  It is the value 2^224 - 1.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

	// regressionPowLimit is the highest proof of work value a block can
	// have for the regression test network.  It is the value 2^255 - 1.
	regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

	// simNetPowLimit is the highest proof of work value a block can have
	// for the simulation test network.  It is the value 2^255 - 1.
	simNetPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	Name             string
	RPCClientPort    string
	CoinbaseMaturity uint16

	// PowLimit defines the highest allowed proof of work value for a block
	// as a uint256.  It doubles as the difficulty-1 target when converting
	// a floating-point difficulty into a target integer.
	PowLimit *big.Int

	// PowLimitBits defines the highest allowed proof of work value for a
	// block in compact form.
	PowLimitBits uint32

	// BlockVersion is the header version stamped on synthetic fallback
	// templates when no upstream template is available.
	BlockVersion int32
}

// MainNetParams contains parameters on the main network
var MainNetParams = Params{
	Name:             "mainnet",
	RPCClientPort:    "8332",
	CoinbaseMaturity: 100,
	PowLimit:         mainPowLimit,
	PowLimitBits:     0x1d00ffff,
	BlockVersion:     0x20000000,
}

// TestNet3Params contains parameters on the test network
var TestNet3Params = Params{
	Name:             "testnet3",
	RPCClientPort:    "18332",
	CoinbaseMaturity: 100,
	PowLimit:         mainPowLimit,
	PowLimitBits:     0x1d00ffff,
	BlockVersion:     0x20000000,
}

// SimNetParams contains parameters specific to the simulation test network
var SimNetParams = Params{
	Name:             "simnet",
	RPCClientPort:    "18889",
	CoinbaseMaturity: 100,
	PowLimit:         simNetPowLimit,
	PowLimitBits:     0x207fffff,
	BlockVersion:     0x20000000,
}

// RegNetParams contains parameters specific to the regression test network
var RegNetParams = Params{
	Name:             "regtest",
	RPCClientPort:    "18443",
	CoinbaseMaturity: 100,
	PowLimit:         regressionPowLimit,
	PowLimitBits:     0x207fffff,
	BlockVersion:     0x20000000,
}

var ActiveNetParams = &MainNetParams
