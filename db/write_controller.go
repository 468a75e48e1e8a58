// write_controller.go implements WriteController for managing write stalling.
//
// Write stalling prevents the database from being overwhelmed when compaction
// cannot keep up with writes. It has three states:
//   - Normal: writes proceed at full speed
//   - Delayed: writes are slowed down (backpressure)
//   - Stopped: writes are blocked until compaction catches up
package db

import (
	"sync"
	"time"
)

// WriteStallCondition describes the current write stall state.
type WriteStallCondition int

const (
	// WriteStallConditionNormal means writes proceed without delay.
	WriteStallConditionNormal WriteStallCondition = iota
	// WriteStallConditionDelayed means writes are slowed down.
	WriteStallConditionDelayed
	// WriteStallConditionStopped means writes are blocked entirely.
	WriteStallConditionStopped
)

// WriteStallCause indicates why writes are being stalled.
type WriteStallCause int

const (
	// WriteStallCauseNone means no stall.
	WriteStallCauseNone WriteStallCause = iota
	// WriteStallCauseMemtableLimit means too many unflushed memtables.
	WriteStallCauseMemtableLimit
	// WriteStallCauseL0FileCountLimit means too many L0 files.
	WriteStallCauseL0FileCountLimit
)

// String returns a human-readable description of the stall cause.
func (c WriteStallCause) String() string {
	switch c {
	case WriteStallCauseNone:
		return "none"
	case WriteStallCauseMemtableLimit:
		return "memtable_limit"
	case WriteStallCauseL0FileCountLimit:
		return "l0_file_count_limit"
	default:
		return "unknown"
	}
}

// WriteController manages write stalling to prevent compaction from falling behind.
type WriteController struct {
	mu sync.Mutex

	condition WriteStallCondition
	cause     WriteStallCause

	stallCond *sync.Cond

	// delayedWriteRate is the throttled write rate in bytes/sec.
	delayedWriteRate uint64

	// closed indicates shutdown has been requested.
	// When true, MaybeStallWrite returns immediately instead of blocking.
	closed bool

	totalStopped uint64
	totalDelayed uint64
}

// NewWriteController creates a new write controller in the normal state.
func NewWriteController() *WriteController {
	wc := &WriteController{
		condition:        WriteStallConditionNormal,
		cause:            WriteStallCauseNone,
		delayedWriteRate: 16 * 1024 * 1024, // 16 MB/s default
	}
	wc.stallCond = sync.NewCond(&wc.mu)
	return wc
}

// GetStallCondition returns the current stall condition and cause.
func (wc *WriteController) GetStallCondition() (WriteStallCondition, WriteStallCause) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.condition, wc.cause
}

// SetStallCondition updates the stall condition.
func (wc *WriteController) SetStallCondition(condition WriteStallCondition, cause WriteStallCause) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	prev := wc.condition
	wc.condition = condition
	wc.cause = cause

	if prev == WriteStallConditionStopped && condition != WriteStallConditionStopped {
		wc.stallCond.Broadcast()
	}

	switch condition {
	case WriteStallConditionStopped:
		wc.totalStopped++
	case WriteStallConditionDelayed:
		wc.totalDelayed++
	}
}

// MaybeStallWrite checks the stall condition and blocks or delays as needed.
// If the controller has been released, it returns immediately.
func (wc *WriteController) MaybeStallWrite(writeSize int) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	for wc.condition == WriteStallConditionStopped && !wc.closed {
		wc.stallCond.Wait()
	}

	if wc.closed {
		return
	}

	if wc.condition == WriteStallConditionDelayed && wc.delayedWriteRate > 0 {
		delayNs := int64(writeSize) * int64(time.Second) / int64(wc.delayedWriteRate)
		if delayNs > 0 {
			wc.mu.Unlock()
			time.Sleep(time.Duration(delayNs))
			wc.mu.Lock()
		}
	}
}

// SetDelayedWriteRate sets the throttled write rate in bytes/sec.
func (wc *WriteController) SetDelayedWriteRate(rate uint64) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.delayedWriteRate = rate
}

// Stats returns the cumulative counts of stopped and delayed writes.
func (wc *WriteController) Stats() (stopped, delayed uint64) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.totalStopped, wc.totalDelayed
}

// Release marks the controller closed and wakes up all waiting writers.
// Used during database shutdown to unblock writers stuck in MaybeStallWrite.
func (wc *WriteController) Release() {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.closed = true
	wc.stallCond.Broadcast()
}

// RecalculateWriteStallCondition determines the write stall condition from current state.
func RecalculateWriteStallCondition(
	numUnflushedMemtables int,
	numL0Files int,
	maxWriteBufferNumber int,
	level0SlowdownTrigger int,
	level0StopTrigger int,
	disableAutoCompactions bool,
) (WriteStallCondition, WriteStallCause) {
	if numUnflushedMemtables >= maxWriteBufferNumber {
		return WriteStallConditionStopped, WriteStallCauseMemtableLimit
	}

	if !disableAutoCompactions {
		if numL0Files >= level0StopTrigger {
			return WriteStallConditionStopped, WriteStallCauseL0FileCountLimit
		}
		if numL0Files >= level0SlowdownTrigger {
			return WriteStallConditionDelayed, WriteStallCauseL0FileCountLimit
		}
	}

	if maxWriteBufferNumber > 3 && numUnflushedMemtables >= maxWriteBufferNumber-1 {
		return WriteStallConditionDelayed, WriteStallCauseMemtableLimit
	}

	return WriteStallConditionNormal, WriteStallCauseNone
}
