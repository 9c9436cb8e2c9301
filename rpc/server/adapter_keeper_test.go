package server

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/keeper"
	"github.com/ValentinKolb/dKeeper/lib/keeper/fsm"
	"github.com/ValentinKolb/dKeeper/rpc/common"
)

// stubKeeper is an in memory IKeeper with a flat namespace
type stubKeeper struct {
	nodes    map[string][]byte
	sessions map[int64]bool
	events   map[int64][]keeper.WatchEvent
	tracked  []string
	nextID   int64
	zxid     uint64
}

func newStubKeeper() *stubKeeper {
	return &stubKeeper{
		nodes:    map[string][]byte{"/": nil},
		sessions: map[int64]bool{},
		events:   map[int64][]keeper.WatchEvent{},
	}
}

func (s *stubKeeper) Track(uint64) func(op string, zxid uint64) {
	return func(op string, _ uint64) { s.tracked = append(s.tracked, op) }
}

func (s *stubKeeper) LastZxid() uint64 { return s.zxid }

func (s *stubKeeper) Events(sessionID int64) []keeper.WatchEvent {
	evs := s.events[sessionID]
	delete(s.events, sessionID)
	return evs
}

func (s *stubKeeper) OpenSession(_ context.Context, _ uint64, timeout time.Duration) (int64, time.Duration, error) {
	s.nextID++
	s.zxid++
	s.sessions[s.nextID] = true
	if timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return s.nextID, timeout, nil
}

func (s *stubKeeper) AttachSession(_ uint64, sessionID int64) error { return s.Ping(sessionID) }

func (s *stubKeeper) CloseSession(_ context.Context, sessionID int64) error {
	if err := s.Ping(sessionID); err != nil {
		return err
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *stubKeeper) Ping(sessionID int64) error {
	if !s.sessions[sessionID] {
		return fsm.NewError(fsm.RetCNoSession, "session expired or unknown")
	}
	return nil
}

func (s *stubKeeper) Create(_ context.Context, _ int64, path string, data []byte, _ bool) (string, error) {
	if _, ok := s.nodes[path]; ok {
		return "", fsm.NewError(fsm.RetCNodeExists, path)
	}
	s.zxid++
	s.nodes[path] = data
	return path, nil
}

func (s *stubKeeper) Delete(_ context.Context, path string, _ int32, _ bool) error {
	if _, ok := s.nodes[path]; !ok {
		return fsm.NewError(fsm.RetCNoNode, path)
	}
	s.zxid++
	delete(s.nodes, path)
	return nil
}

func (s *stubKeeper) SetData(_ context.Context, path string, data []byte, _ int32) (int32, error) {
	if _, ok := s.nodes[path]; !ok {
		return 0, fsm.NewError(fsm.RetCNoNode, path)
	}
	s.zxid++
	s.nodes[path] = data
	return 1, nil
}

func (s *stubKeeper) Get(_ context.Context, _ int64, path string, _ bool) ([]byte, fsm.Stat, error) {
	data, ok := s.nodes[path]
	if !ok {
		return nil, fsm.Stat{}, fsm.NewError(fsm.RetCNoNode, path)
	}
	return data, fsm.Stat{DataLength: int32(len(data)), Version: 1}, nil
}

func (s *stubKeeper) Exists(_ context.Context, _ int64, path string, _ bool) (fsm.Stat, bool, error) {
	data, ok := s.nodes[path]
	return fsm.Stat{DataLength: int32(len(data))}, ok, nil
}

func (s *stubKeeper) Children(_ context.Context, _ int64, path string, _ fsm.ListFilter, _ bool) ([]string, error) {
	if _, ok := s.nodes[path]; !ok {
		return nil, fsm.NewError(fsm.RetCNoNode, path)
	}
	return []string{"a"}, nil
}

func TestKeeperAdapterSessionLifecycle(t *testing.T) {
	k := newStubKeeper()
	adapter := NewKeeperServerAdapter(time.Second)

	resp := adapter.Handle(1, common.NewConnectRequest(0, 30000), k)
	if resp.Err != "" {
		t.Fatalf("connect failed: %s", resp.Err)
	}
	if resp.SessionID == 0 {
		t.Fatalf("expected a session id")
	}
	if resp.TimeoutMs != 10000 {
		t.Errorf("expected negotiated timeout 10000, got %d", resp.TimeoutMs)
	}
	if resp.Zxid != 1 {
		t.Errorf("expected zxid 1, got %d", resp.Zxid)
	}
	sid := resp.SessionID

	// reattach on another connection
	resp = adapter.Handle(2, common.NewConnectRequest(sid, 30000), k)
	if resp.Err != "" || resp.SessionID != sid {
		t.Fatalf("reattach failed: %+v", resp)
	}

	resp = adapter.Handle(2, common.NewCloseRequest(sid), k)
	if resp.Err != "" {
		t.Fatalf("close failed: %s", resp.Err)
	}

	resp = adapter.Handle(2, common.NewPingRequest(sid), k)
	if resp.Code != int32(fsm.RetCNoSession) {
		t.Errorf("expected code NoSession after close, got %d", resp.Code)
	}

	want := []string{"SESS", "SESS", "CLOS", "PING"}
	if len(k.tracked) != len(want) {
		t.Fatalf("expected %d tracked requests, got %v", len(want), k.tracked)
	}
	for i, op := range want {
		if k.tracked[i] != op {
			t.Errorf("tracked[%d] = %s, want %s", i, k.tracked[i], op)
		}
	}
}

func TestKeeperAdapterZnodeOperations(t *testing.T) {
	k := newStubKeeper()
	adapter := NewKeeperServerAdapter(time.Second)
	sid := adapter.Handle(1, common.NewConnectRequest(0, 5000), k).SessionID

	tests := []struct {
		name  string
		req   *common.Message
		check func(t *testing.T, resp *common.Message)
	}{
		{
			name: "create",
			req:  common.NewCreateRequest(sid, "/app", []byte("v1"), false),
			check: func(t *testing.T, resp *common.Message) {
				if resp.Err != "" || resp.Path != "/app" {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name: "create existing",
			req:  common.NewCreateRequest(sid, "/app", nil, false),
			check: func(t *testing.T, resp *common.Message) {
				if resp.Code != int32(fsm.RetCNodeExists) {
					t.Errorf("expected code NodeExists, got %d", resp.Code)
				}
				if resp.Err != "/app" {
					t.Errorf("expected the bare message, got %q", resp.Err)
				}
			},
		},
		{
			name: "get",
			req:  common.NewGetDataRequest(sid, "/app", false),
			check: func(t *testing.T, resp *common.Message) {
				if !resp.Ok || string(resp.Value) != "v1" {
					t.Errorf("unexpected response: %+v", resp)
				}
				if resp.Stat == nil || resp.Stat.DataLength != 2 {
					t.Errorf("unexpected stat: %+v", resp.Stat)
				}
			},
		},
		{
			name: "set",
			req:  common.NewSetDataRequest(sid, "/app", []byte("v2"), -1),
			check: func(t *testing.T, resp *common.Message) {
				if resp.Err != "" || resp.Version != 1 {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name: "exists missing",
			req:  common.NewExistsRequest(sid, "/missing", false),
			check: func(t *testing.T, resp *common.Message) {
				if resp.Err != "" || resp.Ok || resp.Stat != nil {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name: "children",
			req:  common.NewChildrenRequest(sid, "/app", 0, false),
			check: func(t *testing.T, resp *common.Message) {
				if len(resp.Children) != 1 || resp.Children[0] != "a" {
					t.Errorf("unexpected children: %v", resp.Children)
				}
			},
		},
		{
			name: "delete",
			req:  common.NewDeleteRequest(sid, "/app", -1, false),
			check: func(t *testing.T, resp *common.Message) {
				if resp.Err != "" {
					t.Errorf("unexpected error: %s", resp.Err)
				}
			},
		},
		{
			name: "unknown session",
			req:  common.NewGetDataRequest(sid+100, "/", false),
			check: func(t *testing.T, resp *common.Message) {
				if resp.Code != int32(fsm.RetCNoSession) {
					t.Errorf("expected code NoSession, got %d", resp.Code)
				}
			},
		},
		{
			name: "unsupported type",
			req:  &common.Message{MsgType: common.MsgTSuccess},
			check: func(t *testing.T, resp *common.Message) {
				if resp.MsgType != common.MsgTError {
					t.Errorf("expected error response, got %s", resp.MsgType)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, adapter.Handle(1, tt.req, k))
		})
	}
}

func TestKeeperAdapterPiggybacksEvents(t *testing.T) {
	k := newStubKeeper()
	adapter := NewKeeperServerAdapter(time.Second)
	sid := adapter.Handle(1, common.NewConnectRequest(0, 5000), k).SessionID

	k.events[sid] = []keeper.WatchEvent{{Type: "NodeDataChanged", Path: "/app"}}

	resp := adapter.Handle(1, common.NewPingRequest(sid), k)
	if len(resp.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(resp.Events))
	}
	if resp.Events[0].Type != "NodeDataChanged" || resp.Events[0].Path != "/app" {
		t.Errorf("unexpected event: %+v", resp.Events[0])
	}

	resp = adapter.Handle(1, common.NewPingRequest(sid), k)
	if len(resp.Events) != 0 {
		t.Errorf("expected events to be drained, got %v", resp.Events)
	}
}

func TestKeeperAdapterNilKeeper(t *testing.T) {
	resp := NewKeeperServerAdapter(time.Second).Handle(1, common.NewPingRequest(1), nil)
	if resp.MsgType != common.MsgTError {
		t.Errorf("expected error response, got %s", resp.MsgType)
	}
}
