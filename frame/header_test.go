package frame

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/format"
)

func TestWriteHeader(t *testing.T) {
	tests := []struct {
		name        string
		contentSize uint64
		blockSize   format.BlockSize
		want        []byte
	}{
		{
			name:        "200000 bytes 64KB blocks",
			contentSize: 200000,
			blockSize:   format.Block64KB,
			want:        []byte{0x04, 0x22, 0x4D, 0x18, 0x68, 0x40, 0x40, 0x0D, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0xBD},
		},
		{
			name:        "empty content",
			contentSize: 0,
			blockSize:   format.Block64KB,
			want:        []byte{0x04, 0x22, 0x4D, 0x18, 0x68, 0x40, 0, 0, 0, 0, 0, 0, 0, 0, 0x05},
		},
		{
			name:        "1MB content 1MB blocks",
			contentSize: 1 << 20,
			blockSize:   format.Block1MB,
			want:        []byte{0x04, 0x22, 0x4D, 0x18, 0x68, 0x60, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x2A},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WriteHeader(tt.contentSize, tt.blockSize)
			require.Equal(t, tt.want, got)
			require.Len(t, got, HeaderSize)
		})
	}
}

func TestHeader_RoundTrip(t *testing.T) {
	for _, bs := range []format.BlockSize{format.Block64KB, format.Block256KB, format.Block1MB, format.Block4MB} {
		t.Run(bs.String(), func(t *testing.T) {
			want := NewHeader(987654321, bs)
			data := want.Bytes()

			got, n, err := ParseHeader(data)
			require.NoError(t, err)
			require.Equal(t, HeaderSize, n)
			require.Equal(t, want, got)
			require.True(t, got.HasContentSize())
			require.False(t, got.HasBlockChecksum())
			require.False(t, got.HasContentChecksum())
			require.Equal(t, bs.Bytes(), got.MaxBlockLen())

			streamed, err := ReadHeader(bytes.NewReader(data))
			require.NoError(t, err)
			require.Equal(t, want, streamed)
		})
	}
}

func TestReadHeader_ConsumesOnlyHeader(t *testing.T) {
	data := append(WriteHeader(5, format.Block256KB), WriteTrailer()...)
	r := bytes.NewReader(data)

	_, err := ReadHeader(r)
	require.NoError(t, err)
	require.Equal(t, TrailerSize, r.Len())
}

func TestReadHeader_WithoutContentSize(t *testing.T) {
	// Header emitted by the lz4 command line tool: content checksum, 4MB blocks.
	data := []byte{0x04, 0x22, 0x4D, 0x18, 0x64, 0x70, 0xB9}

	h, err := ReadHeader(bytes.NewReader(data))
	require.NoError(t, err)
	require.False(t, h.HasContentSize())
	require.True(t, h.HasContentChecksum())
	require.Equal(t, format.Block4MB, h.BlockSize)
	require.Equal(t, MinHeaderSize, h.Size())
}

func TestReadHeader_SingleBitCorruption(t *testing.T) {
	for _, header := range [][]byte{
		WriteHeader(200000, format.Block64KB),
		WriteHeader(0, format.Block64KB),
		WriteHeader(3*65536, format.Block64KB),
		WriteHeader(1<<20, format.Block1MB),
	} {
		for i := MagicSize; i < HeaderSize-ChecksumLen; i++ {
			for bit := 0; bit < 8; bit++ {
				corrupted := bytes.Clone(header)
				corrupted[i] ^= 1 << bit

				_, err := ReadHeader(bytes.NewReader(corrupted))
				require.ErrorIs(t, err, errs.ErrFormat, "byte %d bit %d", i, bit)

				_, _, err = ParseHeader(corrupted)
				require.ErrorIs(t, err, errs.ErrFormat, "byte %d bit %d", i, bit)
			}
		}
	}
}

func TestReadHeader_Errors(t *testing.T) {
	valid := WriteHeader(200000, format.Block64KB)

	t.Run("bad magic", func(t *testing.T) {
		data := bytes.Clone(valid)
		data[0] ^= 0x01
		_, err := ReadHeader(bytes.NewReader(data))
		require.ErrorIs(t, err, errs.ErrInvalidMagic)
		require.ErrorIs(t, err, errs.ErrFormat)
	})

	t.Run("bad checksum byte", func(t *testing.T) {
		data := bytes.Clone(valid)
		data[HeaderSize-1] ^= 0x80
		_, err := ReadHeader(bytes.NewReader(data))
		require.ErrorIs(t, err, errs.ErrInvalidChecksum)
	})

	t.Run("flipped size byte", func(t *testing.T) {
		data := bytes.Clone(valid)
		data[7] ^= 0x04
		_, _, err := ParseHeader(data)
		require.ErrorIs(t, err, errs.ErrInvalidChecksum)
	})

	t.Run("truncated stream", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader(valid[:9]))
		require.ErrorIs(t, err, errs.ErrIO)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("empty stream", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader(nil))
		require.ErrorIs(t, err, errs.ErrIO)
	})

	t.Run("truncated buffer", func(t *testing.T) {
		_, _, err := ParseHeader(valid[:10])
		require.ErrorIs(t, err, errs.ErrTruncated)
	})
}

func TestHeader_Validate(t *testing.T) {
	tests := []struct {
		name   string
		header Header
		want   error
	}{
		{"default", NewHeader(1, format.Block64KB), nil},
		{"version 0", Header{Flags: DefaultFlags &^ FlagVersionMask, BlockSize: format.Block64KB}, errs.ErrUnsupportedVersion},
		{"linked blocks", Header{Flags: DefaultFlags &^ FlagBlockIndep, BlockSize: format.Block64KB}, errs.ErrUnsupportedFrame},
		{"dictionary", Header{Flags: DefaultFlags | FlagDictID, BlockSize: format.Block64KB}, errs.ErrUnsupportedFrame},
		{"block size code 3", Header{Flags: DefaultFlags, BlockSize: 3}, errs.ErrInvalidBlockSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.header.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}
