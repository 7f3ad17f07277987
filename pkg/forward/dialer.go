package forward

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/httpstream"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
	"k8s.io/client-go/rest"
)

// EnginePort is the API port of the secrets engine inside a member pod.
const EnginePort = 8200

// StreamDialer opens a raw byte stream to a port on a named member pod.
type StreamDialer interface {
	DialPod(ctx context.Context, name string, port int) (net.Conn, error)
}

// SPDYDialer opens port-forward streams through the kubernetes API server.
type SPDYDialer struct {
	config    *rest.Config
	clientset kubernetes.Interface
	namespace string
}

// NewSPDYDialer returns a dialer for pods in the given namespace.
func NewSPDYDialer(config *rest.Config, clientset kubernetes.Interface, namespace string) *SPDYDialer {
	return &SPDYDialer{
		config:    config,
		clientset: clientset,
		namespace: namespace,
	}
}

// DialPod requests a port-forward to the pod and returns the data stream as a
// net.Conn. The connection's framing is serviced by the underlying SPDY
// session until the returned conn is closed.
func (d *SPDYDialer) DialPod(ctx context.Context, name string, port int) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transport, upgrader, err := spdy.RoundTripperFor(d.config)
	if err != nil {
		return nil, fmt.Errorf("creating spdy transport: %w", err)
	}

	req := d.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(d.namespace).
		Name(name).
		SubResource("portforward")

	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, req.URL())
	conn, _, err := dialer.Dial(portforward.PortForwardProtocolV1Name)
	if err != nil {
		return nil, fmt.Errorf("dialing port-forward for pod %s: %w", name, err)
	}

	headers := http.Header{}
	headers.Set(corev1.StreamType, corev1.StreamTypeError)
	headers.Set(corev1.PortHeader, strconv.Itoa(port))
	headers.Set(corev1.PortForwardRequestIDHeader, "0")
	errorStream, err := conn.CreateStream(headers)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating error stream for pod %s: %w", name, err)
	}

	headers.Set(corev1.StreamType, corev1.StreamTypeData)
	dataStream, err := conn.CreateStream(headers)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating data stream for pod %s port %d: %w", name, port, err)
	}

	sc := &streamConn{
		stream: dataStream,
		conn:   conn,
		name:   name,
		port:   port,
		errCh:  make(chan error, 1),
	}

	// The remote reports forwarding failures (port closed, pod gone) on the
	// error stream; surface the first one on the next read.
	go func() {
		message, err := io.ReadAll(errorStream)
		switch {
		case err != nil:
			sc.errCh <- fmt.Errorf("reading port-forward error stream: %w", err)
		case len(message) > 0:
			sc.errCh <- fmt.Errorf("port-forward to %s:%d: %s", name, port, message)
		default:
			close(sc.errCh)
		}
	}()

	return sc, nil
}

// streamConn adapts a port-forward data stream to net.Conn so it can be
// wrapped in TLS and driven by the HTTP channel.
type streamConn struct {
	stream httpstream.Stream
	conn   httpstream.Connection
	name   string
	port   int
	errCh  chan error
}

func (c *streamConn) Read(p []byte) (int, error) {
	n, err := c.stream.Read(p)
	if err != nil {
		if ferr := c.forwardErr(); ferr != nil {
			return n, ferr
		}
	}
	return n, err
}

func (c *streamConn) Write(p []byte) (int, error) {
	return c.stream.Write(p)
}

func (c *streamConn) Close() error {
	err := c.stream.Close()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *streamConn) forwardErr() error {
	select {
	case err := <-c.errCh:
		return err
	default:
		return nil
	}
}

func (c *streamConn) LocalAddr() net.Addr  { return forwardAddr{name: "localhost"} }
func (c *streamConn) RemoteAddr() net.Addr { return forwardAddr{name: fmt.Sprintf("%s:%d", c.name, c.port)} }

// Deadlines are not supported by port-forward streams; cancellation happens
// by closing the conn.
func (c *streamConn) SetDeadline(time.Time) error      { return nil }
func (c *streamConn) SetReadDeadline(time.Time) error  { return nil }
func (c *streamConn) SetWriteDeadline(time.Time) error { return nil }

type forwardAddr struct {
	name string
}

func (a forwardAddr) Network() string { return "portforward" }
func (a forwardAddr) String() string  { return a.name }
