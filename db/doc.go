// Package db provides a pure-Go embedded key-value store. Its WAL records use
// LevelDB's log framing, but its SST files use the RocksDB block-based table
// layout (format_version 3 footer, .sst names) and its MANIFEST uses RocksDB
// VersionEdit tags, so a stock LevelDB binary cannot open a store it writes.
//
// It implements an LSM-tree storage engine: writes land in an in-memory
// skiplist and a write-ahead log, memtables are flushed to sorted SST files,
// and a background compactor merges files across levels to bound read
// amplification and reclaim space from overwritten and deleted keys.
//
// # Quick Start
//
// Opening and using a database:
//
//	import "github.com/aalhour/levelkv/db"
//
//	// Open or create a database
//	opts := db.DefaultOptions()
//	opts.CreateIfMissing = true
//	database, err := db.Open("/path/to/db", opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer database.Close()
//
//	// Write data
//	err = database.Put(db.DefaultWriteOptions(), []byte("key"), []byte("value"))
//
//	// Read data
//	value, err := database.Get(nil, []byte("key"))
//
//	// Delete data
//	err = database.Delete(db.DefaultWriteOptions(), []byte("key"))
//
// # Batch Writes
//
// For atomic multi-key operations, Write takes a *batch.WriteBatch from the
// module's internal/batch package:
//
//	wb := batch.New()
//	wb.Put([]byte("key1"), []byte("value1"))
//	wb.Put([]byte("key2"), []byte("value2"))
//	wb.Delete([]byte("key3"))
//	err := database.Write(db.DefaultWriteOptions(), wb)
//
// # Iteration
//
// Iterate over keys in sorted order:
//
//	iter := database.NewIterator(db.DefaultReadOptions())
//	defer iter.Close()
//
//	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
//	    fmt.Printf("%s: %s\n", iter.Key(), iter.Value())
//	}
//
//	// Seek to a specific key
//	iter.Seek([]byte("prefix"))
//
// # Snapshots
//
// Read a consistent view of the database:
//
//	snap := database.GetSnapshot()
//	defer database.ReleaseSnapshot(snap)
//
//	opts := db.DefaultReadOptions()
//	opts.Snapshot = snap
//	value, err := database.Get(opts, []byte("key"))
//
// # Column Families
//
// Use column families to partition data within a single database, each with
// its own memtable and set of SST files but sharing the WAL and MANIFEST:
//
//	cf, err := database.CreateColumnFamily(db.ColumnFamilyOptions{}, "mycf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = database.PutCF(db.DefaultWriteOptions(), cf, []byte("key"), []byte("value"))
//	value, err := database.GetCF(nil, cf, []byte("key"))
//
// # Merge Operators
//
// A MergeOperator lets callers combine a new partial value with whatever is
// already stored for a key, without an explicit read-modify-write:
//
//	opts.MergeOperator = &db.UInt64AddOperator{}
//	err = database.Merge(db.DefaultWriteOptions(), []byte("counter"), encodeUint64(1))
//
// # Features
//
//   - LSM-tree architecture with memtable and SST files
//   - Write-ahead log (WAL) for durability
//   - Background compaction (leveled, universal, or FIFO)
//   - Bloom filters for read optimization
//   - Snappy, zlib, LZ4, and Zstd compression
//   - Column families
//   - Merge operators and compaction filters
//   - Snapshots and iterators
//
// # Thread Safety
//
// A DB instance is safe for concurrent access by multiple goroutines.
// Individual Iterator instances are NOT safe for concurrent access -
// each goroutine should create its own iterator.
//
// # Performance
//
// For best performance:
//   - Use batch writes for multiple keys
//   - Configure appropriate write buffer size
//   - Enable bloom filters for read-heavy workloads
//   - Use compression for large values
//
// # Compatibility
//
// The on-disk format:
//   - SST files: RocksDB block-based tables (blocks with restart points, optional
//     whole-table filter, format_version 3 footer); the 48-byte legacy footer is
//     also read
//   - WAL log records: LevelDB framing (32KB blocks, masked CRC32C,
//     Full/First/Middle/Last)
//   - MANIFEST: RocksDB VersionEdit tags, with CURRENT pointing at the active MANIFEST
package db
