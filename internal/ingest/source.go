// Package ingest pulls the remote audio stream into the ring buffer and keeps
// doing so across disconnects.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// readChunkSize is the read buffer handed to the stream body.
const readChunkSize = 32 * 1024

// ErrReadTimeout is returned when the source produces no bytes within the
// configured per-read timeout.
var ErrReadTimeout = errors.New("stream read timed out")

// ChunkReader yields successive chunks from an open stream connection.
// Next returns io.EOF on clean end-of-stream and a non-EOF error on timeout
// or transport failure.
type ChunkReader interface {
	Next() ([]byte, error)
	Close() error
}

// Source opens connections to the upstream audio stream.
type Source interface {
	Connect(ctx context.Context) (ChunkReader, error)
}

// HTTPSource streams audio over a plain HTTP connection.
type HTTPSource struct {
	url            string
	connectTimeout time.Duration
	readTimeout    time.Duration
	client         *http.Client
}

// NewHTTPSource creates a source for the given stream URL.
func NewHTTPSource(url string, connectTimeout, readTimeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:            url,
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
				ResponseHeaderTimeout: connectTimeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// Connect opens the stream and returns a reader over its body. The connect
// phase is bounded by the transport's dial and response-header timeouts;
// individual reads are bounded by the read timeout. The request context must
// stay live for the whole stream, so ctx is used as-is.
func (s *HTTPSource) Connect(ctx context.Context) (ChunkReader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("User-Agent", "ClassicFM-Buffer/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	return &httpChunkReader{
		body:        resp.Body,
		readTimeout: s.readTimeout,
	}, nil
}

// httpChunkReader reads the response body one chunk at a time, enforcing a
// per-read deadline by closing the body when a read stalls.
type httpChunkReader struct {
	body        io.ReadCloser
	readTimeout time.Duration
	buf         [readChunkSize]byte
	timedOut    atomic.Bool
}

func (r *httpChunkReader) Next() ([]byte, error) {
	timer := time.AfterFunc(r.readTimeout, func() {
		r.timedOut.Store(true)
		_ = r.body.Close()
	})
	n, err := r.body.Read(r.buf[:])
	timer.Stop()

	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, r.buf[:n])
		return chunk, nil
	}
	if r.timedOut.Load() {
		return nil, ErrReadTimeout
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return nil, err
}

func (r *httpChunkReader) Close() error {
	return r.body.Close()
}
