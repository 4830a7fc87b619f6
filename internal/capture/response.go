package capture

import (
	"bytes"
	"errors"
	"net/http"
)

// ResponseBuffer stands in for the real http.ResponseWriter while the wrapped
// handler runs. Nothing reaches the client until Forward is called.
type ResponseBuffer struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
	forwarded   bool
}

// NewResponseBuffer starts from a copy of the headers already set on w.
func NewResponseBuffer(w http.ResponseWriter) *ResponseBuffer {
	header := http.Header{}
	if w != nil {
		header = w.Header().Clone()
	}
	return &ResponseBuffer{header: header, status: http.StatusOK}
}

func (b *ResponseBuffer) Header() http.Header {
	return b.header
}

func (b *ResponseBuffer) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	// 1xx responses are informational only and do not fix the final status.
	if status >= 100 && status < 200 && status != http.StatusSwitchingProtocols {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *ResponseBuffer) Write(data []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(data)
}

// Flush is a no-op so handlers that type-assert http.Flusher keep working.
func (b *ResponseBuffer) Flush() {}

func (b *ResponseBuffer) Status() int {
	return b.status
}

func (b *ResponseBuffer) WroteHeader() bool {
	return b.wroteHeader
}

// Body returns the buffered bytes. It stays valid after Forward.
func (b *ResponseBuffer) Body() []byte {
	return b.body.Bytes()
}

func (b *ResponseBuffer) Text() string {
	return toText(b.body.Bytes())
}

func (b *ResponseBuffer) Len() int {
	return b.body.Len()
}

// Reset discards anything the handler produced.
func (b *ResponseBuffer) Reset() {
	b.body.Reset()
	b.header = http.Header{}
	b.status = http.StatusOK
	b.wroteHeader = false
}

// Forward copies headers, status and body to w. It runs at most once.
func (b *ResponseBuffer) Forward(w http.ResponseWriter) (int64, error) {
	if b.forwarded {
		return 0, errors.New("response already forwarded")
	}
	b.forwarded = true

	dst := w.Header()
	for key := range dst {
		if _, ok := b.header[key]; !ok {
			delete(dst, key)
		}
	}
	for key, values := range b.header {
		dst[key] = values
	}
	w.WriteHeader(b.status)
	if b.body.Len() == 0 {
		return 0, nil
	}
	n, err := w.Write(b.body.Bytes())
	return int64(n), err
}
