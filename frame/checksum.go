package frame

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/arloliu/lz4pipe/errs"
	"github.com/arloliu/lz4pipe/internal/hash"
)

// VerifyBlockChecksum checks the XXH32 that follows a block payload in frames
// written with FlagBlockChecksum. The checksum covers the payload as stored.
func VerifyBlockChecksum(payload, sum []byte) error {
	if len(sum) < BlockChecksumLen {
		return errs.ErrTruncated
	}

	want := binary.LittleEndian.Uint32(sum)
	if got := hash.Checksum32(payload); got != want {
		return errors.Wrapf(errs.ErrBlockChecksum, "got %08x, want %08x", got, want)
	}

	return nil
}

// VerifyContentChecksum checks the XXH32 of the decoded content against the
// checksum that follows the EndMark in frames written with FlagContentChecksum.
func VerifyContentChecksum(got uint32, sum []byte) error {
	if len(sum) < ContentChecksumLen {
		return errs.Format(errs.ErrTruncated)
	}

	if want := binary.LittleEndian.Uint32(sum); got != want {
		return errs.Format(errors.Wrapf(errs.ErrContentChecksum, "got %08x, want %08x", got, want))
	}

	return nil
}
