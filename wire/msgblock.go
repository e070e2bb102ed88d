package wire

import (
	"io"
)

// maxTxPerBlock is a sanity cap on the claimed transaction count while
// decoding, so a corrupt count cannot trigger a huge allocation.
const maxTxPerBlock = 100000

// MsgBlock carries a full serialized block: the 80-byte header followed by a
// varint transaction count and the raw transactions, coinbase first.
type MsgBlock struct {
	Header       BlockHeader
	Transactions [][]byte
}

// AddTransaction appends a raw serialized transaction to the message.
func (msg *MsgBlock) AddTransaction(rawTx []byte) {
	msg.Transactions = append(msg.Transactions, rawTx)
}

// Serialize encodes the block to w: header, varint count, raw transactions.
func (msg *MsgBlock) Serialize(w io.Writer) error {
	err := writeBlockHeader(w, 0, &msg.Header)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, 0, uint64(len(msg.Transactions)))
	if err != nil {
		return err
	}

	for _, rawTx := range msg.Transactions {
		_, err = w.Write(rawTx)
		if err != nil {
			return err
		}
	}

	return nil
}

// SerializeSize returns the number of bytes it would take to serialize the
// block.
func (msg *MsgBlock) SerializeSize() int {
	n := blockHeaderLen + VarIntSerializeSize(uint64(len(msg.Transactions)))
	for _, rawTx := range msg.Transactions {
		n += len(rawTx)
	}
	return n
}

// DeserializeHeader decodes only the header and transaction count from r.
// The raw transaction boundaries are not self-describing without a full
// transaction decoder, so the remaining payload is returned as one blob.
func (msg *MsgBlock) DeserializeHeader(r io.Reader) (uint64, error) {
	err := readBlockHeader(r, 0, &msg.Header)
	if err != nil {
		return 0, err
	}

	txCount, err := ReadVarInt(r, 0)
	if err != nil {
		return 0, err
	}
	if txCount > maxTxPerBlock {
		return 0, messageError("MsgBlock.DeserializeHeader",
			"transaction count exceeds sanity cap")
	}

	return txCount, nil
}
