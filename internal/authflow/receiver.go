package authflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// ErrNoCode is returned when the browser's redirect carried no code query
// parameter. The flow does not re-listen; the run aborts.
var ErrNoCode = errors.New("authflow: redirect carried no code parameter")

// Cap on how much of the redirect request we will buffer. Anything a browser
// sends for a bare GET fits well inside this.
const maxRequestBytes = 8 << 10

// Response sent so the browser shows a result instead of hanging.
const redirectResponse = "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 7\r\nConnection: close\r\n\r\nsuccess"

// Receiver is a one-shot listener for the redirect a browser makes back to a
// local address after the user completes interactive login.
type Receiver struct {
	ln net.Listener
}

// Listen binds the redirect address. A bind failure (port in use) is fatal to
// the run.
func Listen(ctx context.Context, bindAddr string) (*Receiver, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("authflow: binding %s: %w", bindAddr, err)
	}
	return &Receiver{ln: ln}, nil
}

// Addr is the bound address, useful when bindAddr asked for port 0.
func (r *Receiver) Addr() net.Addr {
	return r.ln.Addr()
}

// Close releases the listener. Safe to call after AwaitCode.
func (r *Receiver) Close() error {
	return r.ln.Close()
}

// AwaitCode accepts exactly one connection and extracts the authorization
// code from the request line of the redirect. It blocks until the redirect
// arrives or ctx ends; the original tool waited forever, so callers that want
// a bound pass a deadline context.
func (r *Receiver) AwaitCode(ctx context.Context) (string, error) {
	// Unblock Accept when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.ln.Close()
		case <-stop:
		}
	}()

	conn, err := r.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("authflow: waiting for login redirect: %w", ctx.Err())
		}
		return "", fmt.Errorf("authflow: accepting redirect: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	head, err := readRequestHead(conn)
	if err != nil {
		return "", err
	}

	// Answer before parsing so the browser gets a page either way.
	if _, err := io.WriteString(conn, redirectResponse); err != nil {
		return "", fmt.Errorf("authflow: responding to redirect: %w", err)
	}

	return codeFromRequestHead(head)
}

// AwaitCode binds bindAddr and waits for a single redirect.
func AwaitCode(ctx context.Context, bindAddr string) (string, error) {
	r, err := Listen(ctx, bindAddr)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return r.AwaitCode(ctx)
}

// readRequestHead reads from the connection until the end-of-headers
// terminator arrives. The request line can be split across however many reads
// the kernel decides on, so a single fixed-size read is not enough.
func readRequestHead(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 0, 1024)
	chunk := make([]byte, 512)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if bytes.Contains(buf, []byte("\r\n\r\n")) {
			return buf, nil
		}
		if len(buf) >= maxRequestBytes {
			return nil, fmt.Errorf("authflow: redirect request exceeded %d bytes without completing", maxRequestBytes)
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				// Peer closed after sending; parse what we have.
				return buf, nil
			}
			return nil, fmt.Errorf("authflow: reading redirect request: %w", err)
		}
	}
}

// codeFromRequestHead parses only the request line ("GET /?... HTTP/1.1") and
// pulls the code query parameter out of its target.
func codeFromRequestHead(head []byte) (string, error) {
	line, _, _ := strings.Cut(string(head), "\r\n")
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return "", fmt.Errorf("authflow: malformed request line %q", line)
	}

	target, err := url.Parse(parts[1])
	if err != nil {
		return "", fmt.Errorf("authflow: parsing redirect target %q: %w", parts[1], err)
	}

	code := target.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("%w (target %q)", ErrNoCode, parts[1])
	}
	return code, nil
}
