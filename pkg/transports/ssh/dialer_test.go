package ssh

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
)

func TestDialContextStdio(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client, err := NewSSHClient(testConfig(server, "testpass"))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Disconnect()

	// Dialling connects on demand.
	conn, err := client.DialContext(context.Background(), "tcp", "docker.example.com:80")
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	if !client.IsConnected() {
		t.Error("expected dial to connect the client")
	}

	assertEcho(t, conn, "GET /_ping HTTP/1.1\r\n\r\n")

	if got := client.GetConnectionInfo().Streams; got != 1 {
		t.Errorf("expected 1 stream, got %d", got)
	}
}

func TestDialContextStdioCloseWrite(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client, err := NewSSHClient(testConfig(server, "testpass"))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Disconnect()

	conn, err := client.DialContext(context.Background(), "", "")
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("bye")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := conn.(*stdioConn).CloseWrite(); err != nil {
		t.Fatalf("close write failed: %v", err)
	}

	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "bye" {
		t.Errorf("expected %q, got %q", "bye", got)
	}
}

func TestDialContextStdioReportsRemoteError(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	config := testConfig(server, "testpass")
	config.DialStdioCommand = "missing-docker"

	client, err := NewSSHClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Disconnect()

	conn, err := client.DialContext(context.Background(), "", "")
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 16)
	for {
		if _, err = conn.Read(buf); err != nil {
			break
		}
	}

	sc := conn.(*stdioConn)
	if err := sc.session.Wait(); err == nil {
		t.Error("expected the remote command to fail")
	}
	if !strings.Contains(sc.stderr.String(), "docker: not found") {
		t.Errorf("expected remote stderr to be captured, got %q", sc.stderr.String())
	}
}

func TestDialContextSocketForwarding(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	config := testConfig(server, "testpass")
	config.DialStdio = false
	config.RemoteSocket = "/var/run/docker.sock"

	client, err := NewSSHClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Disconnect()

	conn, err := client.DialContext(context.Background(), "tcp", "docker.example.com:80")
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	assertEcho(t, conn, "ping")
}

func TestDialContextConnectFailure(t *testing.T) {
	server := newTestSSHServer(t)
	defer server.close()

	client, err := NewSSHClient(testConfig(server, "wrong"))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.DialContext(context.Background(), "", ""); err == nil {
		t.Fatal("expected dial to fail when authentication fails")
	}
}

func assertEcho(t *testing.T, conn net.Conn, msg string) {
	t.Helper()

	if _, err := conn.Write([]byte(msg)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := make([]byte, len(msg))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != msg {
		t.Errorf("expected %q echoed, got %q", msg, got)
	}
}
