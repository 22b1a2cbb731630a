package notion

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// idleConn is a net.Conn whose deadline is pushed forward every time bytes
// move, so a stalled socket fails after timeout of silence.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func newIdleConn(conn net.Conn, timeout time.Duration) (*idleConn, error) {
	c := &idleConn{Conn: conn, timeout: timeout}
	err := c.nudge()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *idleConn) nudge() error {
	if c.timeout <= 0 {
		return nil
	}
	return c.Conn.SetDeadline(time.Now().Add(c.timeout))
}

func (c *idleConn) readOrWrite(f func([]byte) (int, error), b []byte) (int, error) {
	n, err := f(b)
	if n == 0 || err != nil {
		return n, err
	}
	return n, c.nudge()
}

func (c *idleConn) Read(b []byte) (int, error) {
	return c.readOrWrite(c.Conn.Read, b)
}

func (c *idleConn) Write(b []byte) (int, error) {
	return c.readOrWrite(c.Conn.Write, b)
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func withIdleTimeout(dial dialFunc, timeout time.Duration) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		wrapped, err := newIdleConn(conn, timeout)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return wrapped, nil
	}
}

// newHTTPTransport builds the single transport shared by every exchange of
// a client. It speaks HTTP/1.1 only so exchanges are never multiplexed over
// one connection, keeps connections alive and holds on to at most one idle
// connection per host.
func newHTTPTransport(agent ProxyAgent, socketTimeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   socketTimeout,
		KeepAlive: time.Second,
	}
	t := &http.Transport{
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     false,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   socketTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     false,
		TLSNextProto:          map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
	err := agent.install(t, dialer)
	if err != nil {
		return nil, err
	}
	t.DialContext = withIdleTimeout(t.DialContext, socketTimeout)
	return t, nil
}
