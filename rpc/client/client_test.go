package client

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/keeper/fsm"
	"github.com/ValentinKolb/dKeeper/rpc/common"
	"github.com/ValentinKolb/dKeeper/rpc/serializer"
)

// fakeTransport answers every request with a fixed response
type fakeTransport struct {
	ser     serializer.IRPCSerializer
	resp    common.Message
	shardId uint64
	req     common.Message
}

func (f *fakeTransport) Connect(common.ClientConfig) error { return nil }

func (f *fakeTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	f.shardId = shardId
	if err := f.ser.Deserialize(req, &f.req); err != nil {
		return nil, err
	}
	return f.ser.Serialize(f.resp)
}

func (f *fakeTransport) Close() error { return nil }

func TestInvokeRPCRequest(t *testing.T) {
	ser := serializer.NewJSONSerializer()

	tests := []struct {
		name    string
		resp    common.Message
		wantErr error
		anyErr  bool
	}{
		{
			name: "success",
			resp: common.Message{MsgType: common.MsgTGetData, Ok: true},
		},
		{
			name:    "state machine error",
			resp:    common.Message{MsgType: common.MsgTGetData, Code: int32(fsm.RetCNoNode), Err: "/missing"},
			wantErr: fsm.ErrNoNode,
		},
		{
			name:   "error response",
			resp:   common.Message{MsgType: common.MsgTError, Err: "shard 7 not found"},
			anyErr: true,
		},
		{
			name:   "unexpected type",
			resp:   common.Message{MsgType: common.MsgTExists},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{ser: ser, resp: tt.resp}
			_, err := invokeRPCRequest(3, common.NewGetDataRequest(1, "/missing", false), tr, ser)

			if tr.shardId != 3 {
				t.Errorf("expected shard 3, got %d", tr.shardId)
			}
			if tr.req.Path != "/missing" {
				t.Errorf("expected the request to reach the transport, got %+v", tr.req)
			}

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.anyErr:
				if err == nil {
					t.Errorf("expected an error")
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestSessionCollectsEvents(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	tr := &fakeTransport{ser: ser, resp: common.Message{MsgType: common.MsgTConnect, SessionID: 5, TimeoutMs: 0}}

	s, err := NewRPCSession(1, common.ClientConfig{}, tr, ser, 0)
	if err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	if s.ID() != 5 {
		t.Errorf("expected session 5, got %d", s.ID())
	}

	tr.resp = common.Message{
		MsgType: common.MsgTPing,
		Events:  []common.WatchEvent{{Type: "NodeDeleted", Path: "/a"}},
		Zxid:    11,
	}
	if err := s.Ping(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if tr.req.SessionID != 5 {
		t.Errorf("expected the ping to carry session 5, got %d", tr.req.SessionID)
	}

	evs := s.Events()
	if len(evs) != 1 || evs[0].Path != "/a" {
		t.Errorf("unexpected events: %v", evs)
	}
	if len(s.Events()) != 0 {
		t.Errorf("expected events to be cleared")
	}
	if s.LastZxid() != 11 {
		t.Errorf("expected zxid 11, got %d", s.LastZxid())
	}

	// events of failed requests are kept as well
	tr.resp = common.Message{
		MsgType: common.MsgTCreate,
		Code:    int32(fsm.RetCNodeExists),
		Err:     "/a",
		Events:  []common.WatchEvent{{Type: "NodeCreated", Path: "/a"}},
	}
	if _, err := s.Create("/a", nil, false); !errors.Is(err, fsm.ErrNodeExists) {
		t.Errorf("expected ErrNodeExists, got %v", err)
	}
	if len(s.Events()) != 1 {
		t.Errorf("expected the event of the failed request")
	}

	tr.resp = common.Message{MsgType: common.MsgTClose}
	if err := s.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if tr.req.MsgType != common.MsgTClose {
		t.Errorf("expected a close request, got %s", tr.req.MsgType)
	}
}

func TestSendFourLetterWord(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 4)
			if _, err := io.ReadFull(conn, buf); err == nil && string(buf) == "ruok" {
				io.WriteString(conn, "imok")
			}
			conn.Close()
		}
	}()

	tests := []struct {
		word string
		want string
	}{
		{"ruok", "imok"},
		{"zzzz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			got, err := SendFourLetterWord("tcp", listener.Addr().String(), tt.word, 2*time.Second)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if _, err := SendFourLetterWord("tcp", listener.Addr().String(), "toolong", time.Second); err == nil {
		t.Errorf("expected an error for a word with more than four letters")
	}
}
