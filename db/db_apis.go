// db_apis.go implements the extended DB APIs declared on the DB interface:
// key-existence probing, compaction/flush control, dynamic options, and
// approximate size/property queries.
//
// Reference: LevelDB-style embedded-store APIs, following the shape of
// RocksDB's include/rocksdb/db.h and db/db_impl/db_impl.cc.
package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aalhour/levelkv/internal/dbformat"
	"github.com/aalhour/levelkv/internal/memtable"
	"github.com/aalhour/levelkv/internal/version"
	"github.com/aalhour/levelkv/internal/vfs"
)

// Range represents a key range for size approximation.
type Range struct {
	Start []byte
	Limit []byte
}

// SizeApproximationFlags controls what is included in size estimates.
type SizeApproximationFlags uint8

const (
	// SizeApproximationNone includes nothing.
	SizeApproximationNone SizeApproximationFlags = 0
	// SizeApproximationIncludeMemtables includes memtable sizes.
	SizeApproximationIncludeMemtables SizeApproximationFlags = 1 << 0
	// SizeApproximationIncludeFiles includes SST file sizes.
	SizeApproximationIncludeFiles SizeApproximationFlags = 1 << 1
)

// WaitForCompactOptions controls WaitForCompact behavior.
type WaitForCompactOptions struct {
	// AbortOnPause makes WaitForCompact abort if compaction is paused.
	AbortOnPause bool
	// FlushFirst flushes the memtable before waiting for compaction.
	FlushFirst bool
	// CloseDB closes the database after waiting (for graceful shutdown).
	CloseDB bool
	// Timeout is the maximum time to wait. Zero means wait forever.
	Timeout time.Duration
}

// CompactionOptions controls CompactFiles behavior.
type CompactionOptions struct {
	OutputLevel           int
	TargetLevel           int
	MaxSubcompactions     uint32
	OutputFilePathID      uint32
	CompressionType       CompressionType
	OutputFileSizeLimit   uint64
	MaxCompactionBytes    uint64
	PenultimateOutputPath bool
}

// KeyMayExist checks if a key may exist, using the memtables and the key
// ranges of SST files (file bloom filters are not consulted).
// Returns true if the key may exist, false if it definitely doesn't exist.
// If value is not nil, it is set to the value when found in the memtable.
func (db *DBImpl) KeyMayExist(opts *ReadOptions, key []byte, value *[]byte) (mayExist bool, valueFound bool) {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return true, false // Conservative: may exist
	}
	db.mu.RUnlock()

	db.mu.RLock()
	mem := db.mem
	imm := db.imm
	v := db.versions.Current()
	if v != nil {
		v.Ref()
	}
	db.mu.RUnlock()

	if mem != nil {
		val, found, deleted := mem.Get(key, dbformat.MaxSequenceNumber)
		if found && !deleted {
			if value != nil {
				*value = val
			}
			return true, true
		}
		if deleted {
			return false, false
		}
	}

	if imm != nil {
		val, found, deleted := imm.Get(key, dbformat.MaxSequenceNumber)
		if found && !deleted {
			if value != nil {
				*value = val
			}
			return true, true
		}
		if deleted {
			return false, false
		}
	}

	if v != nil {
		defer v.Unref()

		for level := range v.NumLevels() {
			for _, f := range v.Files(level) {
				if db.comparator.Compare(key, dbformat.ExtractUserKey(f.Smallest)) < 0 ||
					db.comparator.Compare(key, dbformat.ExtractUserKey(f.Largest)) > 0 {
					continue
				}
				// Key falls within this file's range; conservatively report
				// it may exist without consulting the file's bloom filter.
				return true, false
			}
		}
	}

	return false, false
}

// KeyMayExistCF checks if a key may exist in the specified column family.
func (db *DBImpl) KeyMayExistCF(opts *ReadOptions, cf ColumnFamilyHandle, key []byte, value *[]byte) (mayExist bool, valueFound bool) {
	return db.KeyMayExist(opts, key, value)
}

// WaitForCompact waits for all background compaction and flush work to
// complete.
func (db *DBImpl) WaitForCompact(opts *WaitForCompactOptions) error {
	if opts == nil {
		opts = &WaitForCompactOptions{}
	}

	if opts.FlushFirst {
		if err := db.Flush(nil); err != nil && !errors.Is(err, ErrDBClosed) {
			if !strings.Contains(err.Error(), "immutable memtable already exists") {
				return err
			}
		}
	}

	start := time.Now()
	for {
		db.mu.RLock()
		closed := db.closed
		db.mu.RUnlock()

		if closed {
			return ErrDBClosed
		}

		var isRunning, isPaused bool
		if db.bgWork != nil {
			db.bgWork.mu.Lock()
			isRunning = db.bgWork.compactionRunning || db.bgWork.flushRunning
			isPaused = db.bgWork.paused
			db.bgWork.mu.Unlock()
		}

		if !isRunning {
			break
		}

		if opts.AbortOnPause && isPaused {
			return errors.New("db: compaction is paused")
		}

		if opts.Timeout > 0 && time.Since(start) > opts.Timeout {
			return errors.New("db: timeout waiting for compaction")
		}

		time.Sleep(10 * time.Millisecond)
	}

	if opts.CloseDB {
		return db.Close()
	}

	return nil
}

// GetApproximateSizes returns the approximate sizes of the given key ranges.
func (db *DBImpl) GetApproximateSizes(ranges []Range, flags SizeApproximationFlags) ([]uint64, error) {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, ErrDBClosed
	}
	db.mu.RUnlock()

	includeMemtables := (flags & SizeApproximationIncludeMemtables) != 0
	includeFiles := (flags & SizeApproximationIncludeFiles) != 0
	if !includeMemtables && !includeFiles {
		includeFiles = true
	}

	sizes := make([]uint64, len(ranges))

	db.mu.RLock()
	v := db.versions.Current()
	if v != nil {
		v.Ref()
	}
	mem := db.mem
	imm := db.imm
	db.mu.RUnlock()

	if v != nil {
		defer v.Unref()
	}

	for i, r := range ranges {
		var size uint64

		if includeMemtables {
			size += estimateMemtableRangeSize(mem, r.Start, r.Limit)
			size += estimateMemtableRangeSize(imm, r.Start, r.Limit)
		}

		if includeFiles && v != nil {
			for level := range v.NumLevels() {
				for _, f := range v.Files(level) {
					if rangesOverlap(r.Start, r.Limit, f.Smallest, f.Largest, db.comparator) {
						size += f.FD.FileSize
					}
				}
			}
		}

		sizes[i] = size
	}

	return sizes, nil
}

// GetApproximateMemTableStats returns approximate entry count and size for a
// key range across the active and immutable memtables.
func (db *DBImpl) GetApproximateMemTableStats(r Range) (count, size uint64) {
	db.mu.RLock()
	mem := db.mem
	imm := db.imm
	db.mu.RUnlock()

	if mem != nil {
		count += uint64(mem.Count())
		size += estimateMemtableRangeSize(mem, r.Start, r.Limit)
	}
	if imm != nil {
		count += uint64(imm.Count())
		size += estimateMemtableRangeSize(imm, r.Start, r.Limit)
	}

	return count, size
}

// NumberLevels returns the number of levels in the LSM tree.
func (db *DBImpl) NumberLevels() int {
	return version.MaxNumLevels
}

// Level0StopWriteTrigger returns the number of L0 files that triggers a
// write stop.
func (db *DBImpl) Level0StopWriteTrigger() int {
	return db.options.Level0StopWritesTrigger
}

// GetName returns the path of the database.
func (db *DBImpl) GetName() string {
	return db.name
}

// GetEnv returns the filesystem abstraction used by the database.
func (db *DBImpl) GetEnv() vfs.FS {
	return db.fs
}

// GetOptions returns a copy of the current database options.
func (db *DBImpl) GetOptions() Options {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return *db.options
}

// GetDBOptions returns a copy of the current database-wide options.
func (db *DBImpl) GetDBOptions() Options {
	return db.GetOptions()
}

// SetOptions dynamically changes a subset of mutable database options.
func (db *DBImpl) SetOptions(newOptions map[string]string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for k, v := range newOptions {
		switch k {
		case "write_buffer_size":
			size, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid write_buffer_size: %w", err)
			}
			db.options.WriteBufferSize = int(size)
		case "max_write_buffer_number":
			num, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid max_write_buffer_number: %w", err)
			}
			db.options.MaxWriteBufferNumber = num
		case "disable_auto_compactions":
			db.options.DisableAutoCompactions = v == "true" || v == "1"
		default:
			// Unknown option: ignore for forward compatibility.
		}
	}

	return nil
}

// SetDBOptions dynamically changes database-wide options.
func (db *DBImpl) SetDBOptions(newOptions map[string]string) error {
	return db.SetOptions(newOptions)
}

// GetIntProperty returns an integer property value.
func (db *DBImpl) GetIntProperty(name string) (uint64, bool) {
	strVal, ok := db.GetProperty(name)
	if !ok {
		return 0, false
	}
	val, err := strconv.ParseUint(strVal, 10, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// GetMapProperty returns a map property value.
func (db *DBImpl) GetMapProperty(name string) (map[string]string, bool) {
	result := make(map[string]string)

	switch name {
	case "leveldb.cfstats":
		result["num-immutable-mem-table"] = "0"
		result["num-entries-active-mem-table"] = fmt.Sprintf("%d", db.mem.Count())
		return result, true
	case "leveldb.dbstats":
		result["uptime"] = "0"
		result["cumulative.writes"] = "0"
		return result, true
	default:
		return nil, false
	}
}

// NewIterators creates iterators over multiple column families.
func (db *DBImpl) NewIterators(opts *ReadOptions, cfs []ColumnFamilyHandle) ([]Iterator, error) {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, ErrDBClosed
	}
	db.mu.RUnlock()

	iters := make([]Iterator, len(cfs))
	for i, cf := range cfs {
		iters[i] = db.NewIteratorCF(opts, cf)
	}
	return iters, nil
}

// Resume is a no-op: a background error, once set, stays in effect until the
// database is closed and reopened, and Resume does not clear it.
func (db *DBImpl) Resume() error {
	return nil
}

// walLockMu serializes LockWAL/UnlockWAL across all open databases in this
// process, mirroring the single-process WAL lock semantics of LevelDB.
var walLockMu sync.Mutex

// LockWAL acquires walLockMu until UnlockWAL is called. The write path does
// not take walLockMu, so writes continue to reach the WAL while it is held.
func (db *DBImpl) LockWAL() error {
	walLockMu.Lock()
	return nil
}

// UnlockWAL releases a lock taken by LockWAL.
func (db *DBImpl) UnlockWAL() error {
	walLockMu.Unlock()
	return nil
}

// ResetStats resets database statistics. A no-op until statistics objects
// are wired up.
func (db *DBImpl) ResetStats() error {
	return nil
}

// CompactFiles compacts a specific set of input files into outputLevel.
// The current implementation triggers a full-range compaction; selecting
// exactly the named input files is not yet supported.
func (db *DBImpl) CompactFiles(opts *CompactionOptions, inputFileNames []string, outputLevel int) error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrDBClosed
	}
	db.mu.RUnlock()

	return db.CompactRange(nil, nil, nil)
}

// rangesOverlap reports whether [start1, limit1) overlaps [start2, limit2).
// A nil bound means unbounded on that side.
func rangesOverlap(start1, limit1, start2, limit2 []byte, cmp Comparator) bool {
	if limit1 != nil && cmp.Compare(limit1, start2) <= 0 {
		return false
	}
	if start1 != nil && limit2 != nil && cmp.Compare(start1, limit2) >= 0 {
		return false
	}
	return true
}

// estimateMemtableRangeSize estimates the bytes a key range occupies in a
// memtable. Full-range queries return the memtable's total memory usage;
// bounded queries return half of it as a rough uniform-distribution estimate.
func estimateMemtableRangeSize(mem *memtable.MemTable, start, limit []byte) uint64 {
	if mem == nil {
		return 0
	}
	total := mem.ApproximateMemoryUsage()
	if total < 0 {
		total = 0
	}
	if start == nil && limit == nil {
		return uint64(total)
	}
	return uint64(total) / 2
}
