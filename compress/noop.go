package compress

import (
	"fmt"

	"github.com/arloliu/lz4pipe/format"
)

// StoreCodec reports every block as incompressible, so pipelines store all
// blocks raw. It is useful as a baseline and for already-compressed input.
type StoreCodec struct{}

var _ Codec = (*StoreCodec)(nil)

// NewStoreCodec creates a new store-only codec.
func NewStoreCodec() StoreCodec {
	return StoreCodec{}
}

// Type returns format.CodecStore.
func (c StoreCodec) Type() format.CodecType {
	return format.CodecStore
}

// CompressBlock always returns (0, nil).
func (c StoreCodec) CompressBlock(_, _ []byte) (int, error) {
	return 0, nil
}

// DecompressBlock copies src into dst. Store frames contain raw blocks only,
// which pipelines never hand to an engine, so this only runs on direct use.
func (c StoreCodec) DecompressBlock(dst, src []byte) (int, error) {
	if len(dst) < len(src) {
		return 0, fmt.Errorf("store: destination too small: %d < %d", len(dst), len(src))
	}

	return copy(dst, src), nil
}
