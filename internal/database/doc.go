// Package database implements the flat, addressable record store that backs
// the symbol database.
//
// A store is a single byte space. Records are addressed by a 64-bit pointer
// (Ptr) that is the byte offset of the record payload; the null pointer is 0.
// Allocation happens in 8-byte granules with a small block header in front of
// every payload, and freed blocks are kept on exact-size free lists.
//
// # Layout
//
//	offset 0     magic "PDOM"
//	offset 4     format version (uint32)
//	offset 8     high-water mark (end of allocated space)
//	offset 16    RootSlots root pointers
//	offset 144   free-list heads, one per block size
//	HeaderSize   first block
//
// All multi-byte values are little-endian. Reused blocks are not zeroed;
// record owners initialize their fields explicitly (see Clear).
//
// # Concurrency
//
// A Database is safe for concurrent use. Reads share a lock, mutations take it
// exclusively. Higher layers add the advisory single-writer protocol.
package database
