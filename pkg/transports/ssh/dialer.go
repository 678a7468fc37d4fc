package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// DialContext opens a stream to the remote Docker API, connecting first
// if needed.
func (c *SSHClient) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	if !c.IsConnected() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	client, err := c.getClient()
	if err != nil {
		return nil, err
	}

	var conn net.Conn
	if c.config.DialStdio {
		conn, err = dialStdio(client, c.config.DialStdioCommand)
	} else {
		conn, err = client.DialContext(ctx, "unix", c.config.RemoteSocket)
		if err != nil {
			err = &TransportError{Op: "dial", Err: fmt.Errorf("failed to forward %s: %w", c.config.RemoteSocket, err), IsTemporary: true}
		}
	}
	if err != nil {
		return nil, err
	}

	c.streams.Add(1)
	return conn, nil
}

// dialStdio starts command in a new session and returns a connection
// backed by its stdin and stdout.
func dialStdio(client *ssh.Client, command string) (net.Conn, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "dial-stdio",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, &TransportError{Op: "dial-stdio", Err: fmt.Errorf("failed to create stdin pipe: %w", err)}
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, &TransportError{Op: "dial-stdio", Err: fmt.Errorf("failed to create stdout pipe: %w", err)}
	}

	conn := &stdioConn{
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		local:   client.LocalAddr(),
		remote:  client.RemoteAddr(),
	}
	session.Stderr = &conn.stderr

	if err := session.Start(command); err != nil {
		session.Close()
		return nil, &TransportError{Op: "dial-stdio", Err: fmt.Errorf("failed to start %q: %w", command, err)}
	}

	log.Debug().Str("command", command).Msg("started dial-stdio session")
	return conn, nil
}

// stdioConn adapts an SSH session running dial-stdio to net.Conn.
// Deadlines are not supported; the Docker client relies on contexts.
type stdioConn struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  lockedBuffer

	local  net.Addr
	remote net.Addr

	closeOnce sync.Once
}

func (c *stdioConn) Read(p []byte) (int, error) {
	n, err := c.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		if msg := strings.TrimSpace(c.stderr.String()); msg != "" {
			return n, fmt.Errorf("dial-stdio: %s: %w", msg, err)
		}
	}
	return n, err
}

func (c *stdioConn) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

// CloseWrite half-closes the stream, which ends dial-stdio's input.
func (c *stdioConn) CloseWrite() error {
	return c.stdin.Close()
}

func (c *stdioConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.stdin.Close()
		err = c.session.Close()
		if errors.Is(err, io.EOF) {
			err = nil
		}
	})
	return err
}

func (c *stdioConn) LocalAddr() net.Addr  { return c.local }
func (c *stdioConn) RemoteAddr() net.Addr { return c.remote }

func (c *stdioConn) SetDeadline(time.Time) error      { return nil }
func (c *stdioConn) SetReadDeadline(time.Time) error  { return nil }
func (c *stdioConn) SetWriteDeadline(time.Time) error { return nil }

// lockedBuffer collects the remote command's stderr.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
