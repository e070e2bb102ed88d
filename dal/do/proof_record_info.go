package do

import "time"

// ProofRecordInfo is the ledger row for a validated candidate solution.
type ProofRecordInfo struct {
	ID              uint64 `gorm:"primaryKey"`
	BlockHash       string `gorm:"uniqueIndex:unique_idx_block_hash;type:varchar(64);not null"`
	Height          int64  `gorm:"index;not null"`
	Nonce           uint32 `gorm:"not null"`
	MerkleRoot      string `gorm:"type:varchar(64);not null"`
	HeaderHex       string `gorm:"type:varchar(160);not null"`
	LeadingZeroBits int    `gorm:"not null"`
	WorkerID        string `gorm:"type:varchar(100);not null"`
	Status          string `gorm:"type:varchar(20);not null"`
	Reason          string `gorm:"type:varchar(40)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
