package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dKeeper/rpc/common"
	"github.com/ValentinKolb/dKeeper/rpc/serializer"
	"github.com/ValentinKolb/dKeeper/rpc/transport"
)

// NewRPCSession connects the transport and opens a session with the
// requested timeout. The session is kept alive by a background ping until
// Close is called.
func NewRPCSession(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
	sessionTimeout time.Duration,
) (*RPCSession, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	s := &RPCSession{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		stop: make(chan struct{}),
	}

	resp, err := s.invoke(common.NewConnectRequest(0, sessionTimeout.Milliseconds()))
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	s.id = resp.SessionID
	s.timeout = time.Duration(resp.TimeoutMs) * time.Millisecond

	if s.timeout > 0 {
		s.wg.Add(1)
		go s.keepAlive(s.timeout / 3)
	}
	return s, nil
}

// RPCSession is a client session. All methods are safe for concurrent use.
type RPCSession struct {
	rpcClientAdapter

	id      int64
	timeout time.Duration

	mu     sync.Mutex
	events []common.WatchEvent
	zxid   uint64

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// invoke sends a request and collects the piggybacked watch events
func (s *RPCSession) invoke(req *common.Message) (*common.Message, error) {
	resp, err := invokeRPCRequest(s.shardId, req, s.transport, s.serializer)
	if resp != nil {
		s.mu.Lock()
		s.events = append(s.events, resp.Events...)
		s.zxid = max(s.zxid, resp.Zxid)
		s.mu.Unlock()
	}
	return resp, err
}

// keepAlive pings the session until the session is closed
func (s *RPCSession) keepAlive(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Ping(); err != nil {
				Logger.Warningf("Ping of session 0x%x failed: %v", uint64(s.id), err)
			}
		}
	}
}

// ID returns the id of the session
func (s *RPCSession) ID() int64 { return s.id }

// Timeout returns the timeout negotiated with the server
func (s *RPCSession) Timeout() time.Duration { return s.timeout }

// LastZxid returns the highest zxid seen in a response
func (s *RPCSession) LastZxid() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zxid
}

// Events returns and clears the watch events received so far
func (s *RPCSession) Events() []common.WatchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.events
	s.events = nil
	return evs
}

// Ping keeps the session alive and fetches pending watch events
func (s *RPCSession) Ping() error {
	_, err := s.invoke(common.NewPingRequest(s.id))
	return err
}

// Create creates a node and returns its path
func (s *RPCSession) Create(path string, value []byte, ephemeral bool) (string, error) {
	resp, err := s.invoke(common.NewCreateRequest(s.id, path, value, ephemeral))
	if err != nil {
		return "", err
	}
	return resp.Path, nil
}

// Delete removes a node, version -1 matches any version
func (s *RPCSession) Delete(path string, version int32, recursive bool) error {
	_, err := s.invoke(common.NewDeleteRequest(s.id, path, version, recursive))
	return err
}

// SetData replaces the data of a node and returns the new version,
// version -1 matches any version
func (s *RPCSession) SetData(path string, value []byte, version int32) (int32, error) {
	resp, err := s.invoke(common.NewSetDataRequest(s.id, path, value, version))
	if err != nil {
		return 0, err
	}
	return resp.Version, nil
}

// Get returns the data and the stat of a node
func (s *RPCSession) Get(path string, watch bool) ([]byte, common.Stat, error) {
	resp, err := s.invoke(common.NewGetDataRequest(s.id, path, watch))
	if err != nil {
		return nil, common.Stat{}, err
	}
	return resp.Value, statOf(resp), nil
}

// Exists returns the stat of a node and whether it exists
func (s *RPCSession) Exists(path string, watch bool) (common.Stat, bool, error) {
	resp, err := s.invoke(common.NewExistsRequest(s.id, path, watch))
	if err != nil {
		return common.Stat{}, false, err
	}
	return statOf(resp), resp.Ok, nil
}

// Children lists the children of a node, filter is one of the fsm.ListFilter values
func (s *RPCSession) Children(path string, filter uint8, watch bool) ([]string, error) {
	resp, err := s.invoke(common.NewChildrenRequest(s.id, path, filter, watch))
	if err != nil {
		return nil, err
	}
	return resp.Children, nil
}

// Close closes the session on the server, its ephemeral nodes are removed,
// and closes the transport
func (s *RPCSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		_, err = s.invoke(common.NewCloseRequest(s.id))
		if cerr := s.transport.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func statOf(resp *common.Message) common.Stat {
	if resp.Stat == nil {
		return common.Stat{}
	}
	return *resp.Stat
}
