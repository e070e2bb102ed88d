package do

import "time"

// WorkerStatusInfo is the ledger row for a periodic worker status report.
type WorkerStatusInfo struct {
	ID                  uint64 `gorm:"primaryKey"`
	WorkerID            string `gorm:"index;type:varchar(100);not null"`
	ProcessID           int    `gorm:"not null"`
	State               string `gorm:"type:varchar(20);not null"`
	Height              int64
	Attempts            uint64
	AttemptsPerSec      float64
	BestLeadingZeroBits int
	Component           string `gorm:"type:varchar(40)"`
	CreatedAt           time.Time
}
