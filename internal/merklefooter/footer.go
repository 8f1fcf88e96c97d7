// Package merklefooter implements the fixed-width trailer that frames a
// Merkle tree file: chunk size, total content size, and a final length
// byte that makes the footer self-describing from a one-byte tail read.
//
// Canonical (current) encoding, 17 bytes, little-endian:
//
//	offset  size  field
//	0       8     chunkSize  (u64)
//	8       8     totalSize  (u64)
//	16      1     footerLength (u8, always 17)
//
// A legacy 49-byte variant embedded a 32-byte digest between totalSize
// and footerLength. That variant is detected (footerLength == 49) but
// never trusted: it must be migrated by rebuilding the tree, since its
// embedded digest predates the bitset-gated per-leaf hash model.
package merklefooter

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nosqlbench/nbdatatools-sub010/internal/transport"
)

// FooterLength is the size in bytes of the canonical footer.
const FooterLength = 17

// LegacyFooterLength is the size in bytes of the deprecated digest-
// embedding footer variant.
const LegacyFooterLength = 49

// legacyDigestSize is the width of the embedded digest in the legacy
// footer, discarded on migration.
const legacyDigestSize = 32

// ErrCorruptFooter is returned when a footer cannot be decoded at all
// (neither the canonical nor the legacy length).
var ErrCorruptFooter = errors.New("merklefooter: corrupt footer")

// ErrLegacyFooter is returned by DecodeTail when the trailing byte names
// the legacy 49-byte length. Callers must migrate rather than trust the
// embedded digest.
var ErrLegacyFooter = errors.New("merklefooter: legacy 49-byte footer requires migration")

// Footer is the parsed trailer of a Merkle tree file.
type Footer struct {
	ChunkSize    int64
	TotalSize    int64
	FooterLength uint8
}

// Encode returns the canonical 17-byte representation of f.
func (f Footer) Encode() []byte {
	buf := make([]byte, FooterLength)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(f.ChunkSize))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(f.TotalSize))
	buf[16] = FooterLength
	return buf
}

// DecodeTail decodes a footer from the final bytes of a tree file. The
// caller is expected to have already read at least the last byte to
// learn the footer's length (see FetchRemote for the two-step dance);
// DecodeTail accepts the full tail slice and reads the length from its
// last byte.
func DecodeTail(tail []byte) (Footer, error) {
	if len(tail) == 0 {
		return Footer{}, fmt.Errorf("%w: empty tail", ErrCorruptFooter)
	}
	length := tail[len(tail)-1]

	switch length {
	case FooterLength:
		if len(tail) < FooterLength {
			return Footer{}, fmt.Errorf("%w: tail too short for length byte %d", ErrCorruptFooter, length)
		}
		body := tail[len(tail)-FooterLength:]
		return Footer{
			ChunkSize:    int64(binary.LittleEndian.Uint64(body[0:8])),
			TotalSize:    int64(binary.LittleEndian.Uint64(body[8:16])),
			FooterLength: FooterLength,
		}, nil
	case LegacyFooterLength:
		return Footer{}, ErrLegacyFooter
	default:
		return Footer{}, fmt.Errorf("%w: unexpected footer length byte %d", ErrCorruptFooter, length)
	}
}

// DecodeLegacyTail parses the deprecated 49-byte footer purely so the
// migration path can recover chunkSize/totalSize before discarding the
// embedded digest. It does not validate the digest; the digest is not
// trusted under the current model.
func DecodeLegacyTail(tail []byte) (Footer, error) {
	if len(tail) < LegacyFooterLength {
		return Footer{}, fmt.Errorf("%w: tail too short for legacy footer", ErrCorruptFooter)
	}
	body := tail[len(tail)-LegacyFooterLength:]
	return Footer{
		ChunkSize:    int64(binary.LittleEndian.Uint64(body[0:8])),
		TotalSize:    int64(binary.LittleEndian.Uint64(body[8:16])),
		FooterLength: LegacyFooterLength,
	}, nil
}

// FetchRemote bootstraps a Footer straight from a remote tree file
// without downloading the whole thing: it asks the transport for the
// last 1 KiB (comfortably more than either footer variant needs) and
// decodes the tail. Transports that cannot satisfy a ranged request
// return the full object; FetchRemote still only looks at its tail.
func FetchRemote(ctx context.Context, t transport.ChunkedTransport, remoteSize int64) (Footer, error) {
	const tailWindow = 1024

	length := int64(tailWindow)
	if length > remoteSize {
		length = remoteSize
	}
	offset := remoteSize - length
	if offset < 0 {
		offset = 0
	}

	data, err := t.FetchRange(ctx, offset, length)
	if err != nil {
		return Footer{}, fmt.Errorf("merklefooter: fetch tail: %w", err)
	}

	footer, err := DecodeTail(data)
	if errors.Is(err, ErrLegacyFooter) {
		legacy, legacyErr := DecodeLegacyTail(data)
		if legacyErr != nil {
			return Footer{}, legacyErr
		}
		return Footer{}, fmt.Errorf("%w (chunkSize=%d totalSize=%d)", ErrLegacyFooter, legacy.ChunkSize, legacy.TotalSize)
	}
	if err != nil {
		return Footer{}, err
	}
	return footer, nil
}
