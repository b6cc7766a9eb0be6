package repo

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// compress and decompress handle archive-mode file object storage. Archive
// mode only needs a single well-known compressed-stream format, not a
// general archive container (tar/cpio) or multi-format detection, so the
// standard library's gzip implementation covers it directly — there's no
// third-party archive library in scope to reach for here instead.

func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("%w: compress object: %w", ostreeerr.ErrIO, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: close gzip writer: %w", ostreeerr.ErrIO, err)
	}
	return buf.Bytes(), nil
}

// DecompressContentObject reverses archive-mode compression on a content
// object fetched from a remote, so internal/pull can hand StageContent
// plain canonical bytes regardless of the remote's on-the-wire encoding.
func DecompressContentObject(b []byte) ([]byte, error) {
	return decompress(b)
}

func decompress(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress object: %w", ostreeerr.ErrCorrupt, err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress object: %w", ostreeerr.ErrCorrupt, err)
	}
	return out, nil
}
