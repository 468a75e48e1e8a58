// live_files.go implements live-file metadata and file-deletion/background
// pause controls, the operational surface a backup tool or online snapshot
// consumer needs without a dedicated backup engine.
//
// Reference: RocksDB-style db/db_filesnapshot.cc (GetLiveFiles,
// GetLiveFilesMetaData) and include/rocksdb/db.h (file-deletion and
// background-work pause controls).
package db

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
)

// LiveFileMetaData describes a live SST file in the database.
type LiveFileMetaData struct {
	// Name is the file name (without the directory path).
	Name string

	// Directory is the directory containing the file.
	Directory string

	// FileNumber is the file number.
	FileNumber uint64

	// Size is the file size in bytes.
	Size uint64

	// ColumnFamilyName is the name of the column family this file belongs to.
	ColumnFamilyName string

	// Level is the level at which this file resides.
	Level int

	// SmallestKey is the smallest internal key in the file.
	SmallestKey []byte

	// LargestKey is the largest internal key in the file.
	LargestKey []byte

	// SmallestSeqno is the smallest sequence number in the file.
	SmallestSeqno uint64

	// LargestSeqno is the largest sequence number in the file.
	LargestSeqno uint64

	// NumEntries is the number of entries in the file.
	NumEntries uint64

	// NumDeletions is the number of deletion entries in the file.
	NumDeletions uint64

	// BeingCompacted is true if the file is currently being compacted.
	BeingCompacted bool
}

// GetLiveFiles returns the names of all files in the database except WAL
// files (CURRENT, the active MANIFEST, and every live SST), along with the
// MANIFEST's size. If flushMemtable is true, the memtable is flushed first
// so the returned set reflects the latest writes.
func (db *DBImpl) GetLiveFiles(flushMemtable bool) ([]string, uint64, error) {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, 0, ErrDBClosed
	}
	db.mu.RUnlock()

	if flushMemtable {
		if err := db.Flush(&FlushOptions{Wait: true}); err != nil {
			if err.Error() != "db: immutable memtable already exists" {
				return nil, 0, err
			}
		}
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	var files []string
	files = append(files, "/CURRENT")

	if db.versions == nil {
		return files, 0, nil
	}

	manifestNum := db.versions.ManifestFileNumber()
	manifestName := fmt.Sprintf("MANIFEST-%06d", manifestNum)
	files = append(files, "/"+manifestName)

	manifestPath := filepath.Join(db.name, manifestName)
	var manifestSize uint64
	if info, err := db.fs.Stat(manifestPath); err == nil {
		manifestSize = uint64(info.Size())
	}

	if current := db.versions.Current(); current != nil {
		for level := range current.NumLevels() {
			for _, f := range current.Files(level) {
				files = append(files, fmt.Sprintf("/%06d.sst", f.FD.GetNumber()))
			}
		}
	}

	return files, manifestSize, nil
}

// GetLiveFilesMetaData returns metadata about all live SST files.
func (db *DBImpl) GetLiveFilesMetaData() []LiveFileMetaData {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed || db.versions == nil {
		return nil
	}

	current := db.versions.Current()
	if current == nil {
		return nil
	}

	var metadata []LiveFileMetaData
	for level := range current.NumLevels() {
		for _, f := range current.Files(level) {
			metadata = append(metadata, LiveFileMetaData{
				Name:             fmt.Sprintf("%06d.sst", f.FD.GetNumber()),
				Directory:        db.name,
				FileNumber:       f.FD.GetNumber(),
				Size:             f.FD.FileSize,
				ColumnFamilyName: "default",
				Level:            level,
				SmallestKey:      f.Smallest,
				LargestKey:       f.Largest,
				SmallestSeqno:    uint64(f.FD.SmallestSeqno),
				LargestSeqno:     uint64(f.FD.LargestSeqno),
				BeingCompacted:   f.BeingCompacted,
			})
		}
	}

	return metadata
}

// fileDeletionDisabledCount tracks nested DisableFileDeletions calls.
var fileDeletionDisabledCount atomic.Int32

// DisableFileDeletions prevents file deletions until a matching
// EnableFileDeletions call, for making a consistent file-level backup.
func (db *DBImpl) DisableFileDeletions() error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrDBClosed
	}
	db.mu.RUnlock()

	fileDeletionDisabledCount.Add(1)
	return nil
}

// EnableFileDeletions re-enables file deletions disabled by
// DisableFileDeletions.
func (db *DBImpl) EnableFileDeletions() error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrDBClosed
	}
	db.mu.RUnlock()

	for {
		current := fileDeletionDisabledCount.Load()
		if current <= 0 {
			return nil
		}
		if fileDeletionDisabledCount.CompareAndSwap(current, current-1) {
			return nil
		}
	}
}

// IsFileDeletionsDisabled reports whether DisableFileDeletions is in effect.
func IsFileDeletionsDisabled() bool {
	return fileDeletionDisabledCount.Load() > 0
}

// PauseBackgroundWork pauses background compaction and flush.
func (db *DBImpl) PauseBackgroundWork() error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrDBClosed
	}
	bgWork := db.bgWork
	db.mu.RUnlock()

	if bgWork != nil {
		bgWork.Pause()
	}
	return nil
}

// ContinueBackgroundWork resumes background work paused by
// PauseBackgroundWork.
func (db *DBImpl) ContinueBackgroundWork() error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrDBClosed
	}
	bgWork := db.bgWork
	db.mu.RUnlock()

	if bgWork != nil {
		bgWork.Continue()
	}
	return nil
}
