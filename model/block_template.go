package model

import (
	"time"

	"github.com/matrixbuilderops/solominerd/chainjson"
)

// BlockTemplate is the upstream getblocktemplate form of a work unit, before
// it is resolved into a canonical Template.
type BlockTemplate struct {
	Version      int32  `json:"version"`
	Bits         string `json:"bits"`
	CurTime      int64  `json:"curtime"`
	Height       int64  `json:"height"`
	PreviousHash string `json:"previousblockhash"`

	Transactions []chainjson.GetBlockTemplateResultTx      `json:"transactions"`
	CoinbaseTxn  *chainjson.GetBlockTemplateResultCoinbase `json:"coinbasetxn,omitempty"`
}

// BlockNotification carries a block connection event pushed by the chain
// server.
type BlockNotification struct {
	BlockHash string
	Height    int64
	Time      time.Time
}
