package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// defaultCompressionThreshold is the payload size above which values are
// gzipped before storage.
const defaultCompressionThreshold = 1024

// maybeCompress gzips payloads larger than the threshold. Small payloads are
// stored raw; gzip framing would cost more than it saves. The bool reports
// whether compression happened, so save paths can account for it.
func maybeCompress(payload []byte, threshold int) ([]byte, bool, error) {
	if threshold <= 0 {
		threshold = defaultCompressionThreshold
	}
	if len(payload) <= threshold {
		return payload, false, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, false, fmt.Errorf("compress payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, false, fmt.Errorf("compress payload: %w", err)
	}
	return buf.Bytes(), true, nil
}

// maybeDecompress reverses maybeCompress, keyed off the gzip magic bytes.
func maybeDecompress(stored []byte) ([]byte, error) {
	if !isGzip(stored) {
		return stored, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return out, nil
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}
