package forward

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
)

// ErrChannelClosed reports a send on a channel whose connection is gone.
var ErrChannelClosed = errors.New("channel is closed")

// Response is a fully buffered HTTP response read off the channel.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Channel speaks HTTP/1.1 over a single byte stream to one member. Sends are
// serialized: one request is in flight at a time, and each request is
// answered by exactly one fully read response.
type Channel struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	err    error
}

// Open wraps an established stream in a plaintext channel.
func Open(conn net.Conn) *Channel {
	return &Channel{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// OpenTLS wraps the stream in a TLS session verified against serverName using
// the platform root certificates, then opens the channel on top. A handshake
// failure is fatal for the stream.
func OpenTLS(ctx context.Context, conn net.Conn, serverName string) (*Channel, error) {
	roots, err := systemRoots()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("loading platform certs: %w", err)
	}

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName: serverName,
		RootCAs:    roots,
		MinVersion: tls.VersionTLS12,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", serverName, err)
	}

	return Open(tlsConn), nil
}

// Send writes one request, reads exactly one response and buffers its body.
// Cancelling ctx tears the channel down.
func (c *Channel) Send(ctx context.Context, req *http.Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	if err := req.Write(c.conn); err != nil {
		return nil, c.fail(ctx, fmt.Errorf("writing request: %w", err))
	}

	resp, err := http.ReadResponse(c.reader, req)
	if err != nil {
		return nil, c.fail(ctx, fmt.Errorf("reading response: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(ctx, fmt.Errorf("reading response body: %w", err))
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}

// Ready reports whether the channel can accept the next send.
func (c *Channel) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close releases the underlying stream.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = ErrChannelClosed
	}
	return c.conn.Close()
}

// fail marks the channel unusable. Errors caused by cancellation are reported
// as such.
func (c *Channel) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	c.err = err
	c.conn.Close()
	return err
}

var (
	rootsOnce sync.Once
	rootsPool *x509.CertPool
	rootsErr  error
)

// systemRoots loads the platform root pool once per process.
func systemRoots() (*x509.CertPool, error) {
	rootsOnce.Do(func() {
		rootsPool, rootsErr = x509.SystemCertPool()
	})
	return rootsPool, rootsErr
}
