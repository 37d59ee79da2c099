package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// GenTaskID returns a unique task identifier. The nanosecond timestamp plus
// a process-local counter keeps ids unique even when several are generated
// in the same tick.
func GenTaskID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("task-%d-%d", n, s)
}

// GenUserID returns a unique user identifier.
func GenUserID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("user-%d-%d", n, s)
}
