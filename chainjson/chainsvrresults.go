// NOTE: This file is intended to house the RPC results that are supported by
// a chain server.

package chainjson

// GetBlockTemplateResultTx models the transactions field of the
// getblocktemplate command.
type GetBlockTemplateResultTx struct {
	Data string `json:"data"`
	TxID string `json:"txid"`
	Fee  uint64 `json:"fee,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// GetBlockTemplateResultCoinbase models the coinbase transaction field of the
// getblocktemplate command.
type GetBlockTemplateResultCoinbase struct {
	Data             string `json:"data"`
	TxID             string `json:"txid"`
	Fee              uint64 `json:"fee,omitempty"`
	Size             int64  `json:"size,omitempty"`
	ExtraNonceOffset int64  `json:"extranonceoffset,omitempty"`
	ExtraNonceLen    int64  `json:"extranoncelen,omitempty"`
}

// GetBlockTemplateResult models the data returned from the getblocktemplate
// command.
type GetBlockTemplateResult struct {
	Bits         string                          `json:"bits"`
	CurTime      int64                           `json:"curtime"`
	Height       int64                           `json:"height"`
	PreviousHash string                          `json:"previousblockhash"`
	SizeLimit    int64                           `json:"sizelimit,omitempty"`
	Transactions []GetBlockTemplateResultTx      `json:"transactions"`
	Version      int32                           `json:"version"`
	CoinbaseTxn  *GetBlockTemplateResultCoinbase `json:"coinbasetxn,omitempty"`
	WorkID       string                          `json:"workid,omitempty"`

	// Optional long polling from BIP 0022.
	LongPollID string `json:"longpollid,omitempty"`

	// Basic pool extension from BIP 0023.
	Target  string `json:"target,omitempty"`
	Expires int64  `json:"expires,omitempty"`
}

// BlockConnectedNtfn models the block notification pushed by the chain
// server over the websocket connection.
type BlockConnectedNtfn struct {
	Hash   string `json:"hash"`
	Height int64  `json:"height"`
	Time   int64  `json:"time"`
}
