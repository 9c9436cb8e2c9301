package base

import (
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dKeeper/rpc/common"
	"github.com/ValentinKolb/dKeeper/rpc/transport"
)

// testConnector listens on a random local tcp port
type testConnector struct {
	listeners chan net.Listener
}

func (c *testConnector) GetName() string { return "test" }

func (c *testConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, err
	}
	c.listeners <- ln
	return ln, nil
}

func (c *testConnector) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

// testClientConnector dials local tcp endpoints
type testClientConnector struct{}

func (c testClientConnector) GetName() string { return "test" }

func (c testClientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("tcp", endpoint)
}

func (c testClientConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

// startServer starts a server transport answering ruok and echoing frames
func startServer(t *testing.T) (addr string, opened, closed *atomic.Int64, stop func()) {
	t.Helper()

	connector := &testConnector{listeners: make(chan net.Listener, 1)}
	server := NewBaseServerTransport(connector, 1024)

	opened, closed = &atomic.Int64{}, &atomic.Int64{}
	server.RegisterPrefixHandler(func(prefix []byte) (string, bool) {
		if string(prefix) == "ruok" {
			return "imok", true
		}
		return "", false
	})
	server.RegisterConnectionHooks(transport.ConnectionHooks{
		Opened: func(uint64, string) { opened.Add(1) },
		Closed: func(uint64) { closed.Add(1) },
	})
	server.RegisterHandler(func(_ uint64, shardId uint64, req []byte) []byte {
		return append([]byte("echo:"), req...)
	})

	done := make(chan error, 1)
	go func() {
		done <- server.Listen(common.ServerConfig{
			TimeoutSecond: 5,
			Transport:     common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
		})
	}()

	var ln net.Listener
	select {
	case ln = <-connector.listeners:
	case err := <-done:
		t.Fatalf("server stopped: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}

	return ln.Addr().String(), opened, closed, func() {
		if err := server.Close(); err != nil {
			t.Errorf("failed to close server: %v", err)
		}
		if err := <-done; err != nil {
			t.Errorf("expected Listen to return nil after Close, got %v", err)
		}
	}
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("condition not met: %s", msg)
}

func TestServerAnswersPrefix(t *testing.T) {
	addr, opened, _, stop := startServer(t)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, "ruok"); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(resp) != "imok" {
		t.Errorf("expected imok, got %q", resp)
	}
	if opened.Load() != 0 {
		t.Errorf("expected the connection not to be registered, got %d", opened.Load())
	}
}

func TestServerHandlesFrames(t *testing.T) {
	addr, opened, closed, stop := startServer(t)
	defer stop()

	client := NewBaseClientTransport(testClientConnector{})
	err := client.Connect(common.ClientConfig{
		TimeoutSecond: 5,
		Transport:     common.ClientTransportConfig{Endpoints: []string{addr}, RetryCount: 1},
	})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	tests := []string{"a", "hello", ""}
	for _, req := range tests {
		t.Run(req, func(t *testing.T) {
			resp, err := client.Send(1, []byte(req))
			if err != nil {
				t.Fatalf("send failed: %v", err)
			}
			if string(resp) != "echo:"+req {
				t.Errorf("expected %q, got %q", "echo:"+req, resp)
			}
		})
	}

	eventually(t, func() bool { return opened.Load() == 1 }, "connection opened once")

	if err := client.Close(); err != nil {
		t.Fatalf("failed to close client: %v", err)
	}
	eventually(t, func() bool { return closed.Load() == 1 }, "connection closed once")
}

func TestWriteReadFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_ = writeFrame(client, 7, 42, []byte("payload"))
	}()

	shardID, requestID, data, err := readFrame(server, make([]byte, 4))
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	if shardID != 7 || requestID != 42 || string(data) != "payload" {
		t.Errorf("unexpected frame: shard=%d request=%d data=%q", shardID, requestID, data)
	}
}
