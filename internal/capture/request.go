package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultMaxBodyBytes bounds a capture when the caller passes no limit.
const DefaultMaxBodyBytes int64 = 10 * 1024 * 1024

// ErrTruncated reports that the body was longer than the capture limit. The
// full body is still delivered downstream.
var ErrTruncated = errors.New("request body truncated")

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}

// CaptureRequest reads the declared body of r into memory and replaces r.Body
// with a reader that yields the captured bytes followed by whatever was not
// read, so handlers further down observe an untouched stream.
//
// A non-nil error never means the body was lost: r.Body is restored on every
// path.
func CaptureRequest(r *http.Request, maxBytes int64) (string, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return "", nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	declared := r.ContentLength
	limit := maxBytes
	if declared > 0 && declared < limit {
		limit = declared
	}
	readLimit := limit
	if declared < 0 {
		// One extra byte tells an exact fit from a truncated stream.
		readLimit = limit + 1
	}

	original := r.Body
	data, err := io.ReadAll(io.LimitReader(original, readLimit))
	r.Body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(data), original),
		closer: original,
	}
	captured := data
	if int64(len(captured)) > limit {
		captured = captured[:limit]
	}
	text := toText(captured)
	switch {
	case err != nil:
		return text, fmt.Errorf("read request body: %w", err)
	case declared > 0 && int64(len(data)) < limit:
		return text, fmt.Errorf("read request body: got %d of %d declared bytes", len(data), declared)
	case declared > maxBytes:
		return text, fmt.Errorf("%w at %d of %d bytes", ErrTruncated, maxBytes, declared)
	case declared < 0 && int64(len(data)) > limit:
		return text, fmt.Errorf("%w at %d bytes", ErrTruncated, maxBytes)
	}
	return text, nil
}

func toText(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}
