package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"example.com/readinmarsat/internal/common"
)

// DefaultIdleTimeout is how long a stream may stay silent before reading
// stops.
const DefaultIdleTimeout = 5 * time.Second

var (
	ErrIdleTimeout = errors.New("ingest: no data before idle timeout")
	ErrEmptyInput  = errors.New("ingest: empty input")
)

// FromBase64 decodes a base64 argument. Standard and URL alphabets are
// accepted, padded or not, and embedded whitespace is ignored.
func FromBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, ErrEmptyInput
	}
	var firstErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("decode base64: %w", firstErr)
}

// ReadFile loads a whole file.
func ReadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyInput)
	}
	return b, nil
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// ReadStream reads r until EOF. Each read that returns data restarts the
// idle timer; when the timer runs out the bytes read so far are returned
// with ErrIdleTimeout. Readers with read deadlines, such as net.Conn, are
// read in place; others are drained by a helper goroutine. That goroutine
// stays blocked in Read after a timeout or cancellation unless r is an
// io.Closer, in which case r is closed to release it.
func ReadStream(ctx context.Context, r io.Reader, idle time.Duration) ([]byte, error) {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if d, ok := r.(deadliner); ok {
		return readWithDeadline(ctx, r, d, idle)
	}
	return readWithTimer(ctx, r, idle)
}

func readWithDeadline(ctx context.Context, r io.Reader, d deadliner, idle time.Duration) ([]byte, error) {
	var out bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return out.Bytes(), err
		}
		if err := d.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return out.Bytes(), fmt.Errorf("set read deadline: %w", err)
		}
		n, err := r.Read(chunk)
		out.Write(chunk[:n])
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return out.Bytes(), nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			common.Log().Debugf("stream idle for %s after %d bytes", idle, out.Len())
			return out.Bytes(), ErrIdleTimeout
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return out.Bytes(), ErrIdleTimeout
		}
		return out.Bytes(), err
	}
}

type readResult struct {
	data []byte
	err  error
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		if err := c.Close(); err != nil {
			common.Log().Debugf("close idle reader: %v", err)
		}
	}
}

func readWithTimer(ctx context.Context, r io.Reader, idle time.Duration) ([]byte, error) {
	results := make(chan readResult, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			chunk := make([]byte, 32*1024)
			n, err := r.Read(chunk)
			select {
			case results <- readResult{data: chunk[:n], err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var out bytes.Buffer
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			closeReader(r)
			return out.Bytes(), ctx.Err()
		case <-timer.C:
			common.Log().Debugf("stream idle for %s after %d bytes", idle, out.Len())
			closeReader(r)
			return out.Bytes(), ErrIdleTimeout
		case res := <-results:
			out.Write(res.data)
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return out.Bytes(), nil
				}
				return out.Bytes(), res.err
			}
			if len(res.data) > 0 {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(idle)
			}
		}
	}
}

// Dial connects to a LES download port and reads until the peer closes the
// connection or stays idle. An idle timeout after some data arrived is not
// an error.
func Dial(ctx context.Context, addr string, idle time.Duration) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	common.Log().Infof("connected to %s", addr)
	b, err := ReadStream(ctx, conn, idle)
	if errors.Is(err, ErrIdleTimeout) && len(b) > 0 {
		err = nil
	}
	return b, err
}
