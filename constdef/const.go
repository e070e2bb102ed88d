package constdef

import "time"

const (
	// DefaultBatchSize is the number of nonces a worker tries between
	// command polls and status publications.
	DefaultBatchSize = 200000

	// DefaultCommandPollInterval rate-limits reads of the private command
	// file.
	DefaultCommandPollInterval = 2 * time.Second

	// DefaultIdleInterval is how long a worker sleeps when it has no
	// usable template or is paused.
	DefaultIdleInterval = 500 * time.Millisecond

	// DefaultInstantDuration time-boxes the accelerated search pass
	// triggered by the mine_instant command.
	DefaultInstantDuration = 2 * time.Second
)

const (
	// DefaultTemplateRefreshInterval is the upstream polling cadence when
	// block notifications are unavailable.
	DefaultTemplateRefreshInterval = 20 * time.Second

	// DefaultTemplateQueueDepth bounds the in-process template queue.
	DefaultTemplateQueueDepth = 4

	// DefaultWorkerNum is the number of co-located workers started when
	// the configuration does not say otherwise.
	DefaultWorkerNum = 1
)

const (
	// StatusReportInterval is the cadence of ledger status reports.
	StatusReportInterval = 30 * time.Second
)
