package utils

import (
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"
	"unicode"
)

func IsBlank(str string) bool {
	if str == "" {
		return true
	}

	for _, c := range str {
		if !unicode.IsSpace(c) {
			return false
		}
	}
	return true
}

const hexStringLetters = "abcdef0123456789"

func RandHexString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = hexStringLetters[rand.Intn(len(hexStringLetters))]
	}
	return string(b)
}

// GenerateWorkerID returns a permanent identifier for a worker process,
// combining the process id with a random suffix so two workers started in
// the same second never collide.
func GenerateWorkerID() string {
	return fmt.Sprintf("worker-%d-%s", os.Getpid(), RandHexString(6))
}

// uniqueCounter disambiguates suffixes generated within one clock tick.
var uniqueCounter uint64

// UniqueSuffix returns a process-and-time keyed suffix for locations that
// must not be shared between concurrent writers.
func UniqueSuffix() string {
	n := atomic.AddUint64(&uniqueCounter, 1)
	return fmt.Sprintf("%d_%d_%d", os.Getpid(), time.Now().UnixNano(), n)
}

func init() {
	rand.Seed(time.Now().UnixNano())
}
