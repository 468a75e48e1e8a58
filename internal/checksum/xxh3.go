// XXH3 checksum support, matching LevelDB/RocksDB's block checksum formula
// built on top of the XXH3_64bits hash.
//
// Reference: https://github.com/Cyan4973/xxHash/blob/dev/doc/xxhash_spec.md

package checksum

import "github.com/zeebo/xxh3"

// XXH3_64bits computes the 64-bit XXH3 hash of data.
func XXH3_64bits(data []byte) uint64 {
	return xxh3.Hash(data)
}

// XXH3Checksum computes the RocksDB-style XXH3 checksum for a block.
// This matches ComputeBuiltinChecksum with kXXH3 in RocksDB.
// The checksum is computed over all bytes except the last, then modified
// by the last byte using a special formula.
func XXH3Checksum(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}
	return XXH3ChecksumWithLastByte(data[:len(data)-1], data[len(data)-1])
}

// XXH3ChecksumWithLastByte computes XXH3 checksum with a separate last byte.
// This is used when the last byte (compression type) is not in the data buffer.
func XXH3ChecksumWithLastByte(data []byte, lastByte byte) uint32 {
	h := XXH3_64bits(data)
	v := uint32(h)

	const kRandomPrime = 0x6b9083d9
	return v ^ (uint32(lastByte) * kRandomPrime)
}
