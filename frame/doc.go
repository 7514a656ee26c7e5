// Package frame implements the LZ4 frame wire format used by lz4pipe.
//
// A frame written by this package has the layout:
//
//	+-------+-----+----+--------------+----+---------+-----+---------+---------+
//	| magic | FLG | BD | content size | HC | block 0 | ... | block n | EndMark |
//	+-------+-----+----+--------------+----+---------+-----+---------+---------+
//	   4B     1B   1B       8B LE       1B                               4B
//
// FLG is fixed to 0x68 (version 01, independent blocks, content size present,
// no block or content checksums). BD carries the block maximum size code
// (format.Block64KB .. format.Block4MB) in bits 4-6. HC is the second byte of
// XXH32 over FLG, BD and the content size.
//
// Each block starts with a 4-byte prefix. The prefix is modelled as the
// BlockPrefix tagged union (Compressed, Raw or EndMark); its bit layout is
// produced and consumed only by BlockPrefix.Append and ParseBlockPrefix.
//
// Readers accept the wider profile emitted by standard LZ4 writers: the content
// size may be absent, and block or content checksums may be present.
package frame
