package workermgr

import (
	"sync"
	"time"
)

const (
	// intervalTime is the sliding-window length in seconds over which the
	// attempt rate is averaged.
	intervalTime = 60

	// windowSize is the bucket granularity in seconds.
	windowSize = 5
)

type bucket struct {
	sync.Mutex
	startTime int64
	count     uint64
}

func (b *bucket) addCount(n uint64) {
	b.Lock()
	defer b.Unlock()
	b.count += n
}

func (b *bucket) getStartTime() int64 {
	b.Lock()
	defer b.Unlock()
	res := b.startTime
	return res
}

func (b *bucket) resetStartTime(startTime int64, n uint64) {
	b.Lock()
	defer b.Unlock()
	b.startTime = startTime
	b.count = n
}

// AttemptCounter tracks hash attempts in fixed-size time buckets and reports
// the average rate over the sliding window.
type AttemptCounter struct {
	createTime time.Time
	bucketNum  int
	buckets    []*bucket
}

// NewAttemptCounter returns a counter with an empty window.
func NewAttemptCounter() *AttemptCounter {
	bucketNum := intervalTime / windowSize
	buckets := make([]*bucket, bucketNum)
	for i := 0; i < bucketNum; i++ {
		buckets[i] = &bucket{}
	}
	return &AttemptCounter{
		createTime: time.Now(),
		bucketNum:  bucketNum,
		buckets:    buckets,
	}
}

// AddAttempts records n hash attempts in the current bucket.
func (c *AttemptCounter) AddAttempts(n uint64) {
	currentTime := time.Now().Unix()
	idx := (currentTime / windowSize) % int64(c.bucketNum)

	startTime := currentTime - currentTime%windowSize
	targetBucket := c.buckets[idx]
	if targetBucket.getStartTime() == startTime {
		targetBucket.addCount(n)
	} else {
		targetBucket.resetStartTime(startTime, n)
	}
}

// PerSecond returns the average attempts per second over the window.
func (c *AttemptCounter) PerSecond() float64 {
	var totalCount uint64
	currentTime := time.Now().Unix()
	for _, b := range c.buckets {
		if currentTime-b.getStartTime() < intervalTime {
			totalCount += b.count
		}
	}
	elapsed := currentTime - c.createTime.Unix()
	if elapsed <= 0 {
		return 0
	}
	if elapsed < intervalTime {
		return float64(totalCount) / float64(elapsed)
	}
	return float64(totalCount) / intervalTime
}
