package do

import "time"

// ErrorRecordInfo is the ledger row for a reported error.
type ErrorRecordInfo struct {
	ID        uint64 `gorm:"primaryKey"`
	Component string `gorm:"index;type:varchar(40);not null"`
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time
}
