package keeper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/ValentinKolb/dKeeper/lib/keeper/fsm"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var (
	retries = 5
	log     = logger.GetLogger("keeper")
)

// Version is the build version, it is overwritten at link time.
var Version = "dev"

// APIVersion is the version of the client protocol.
const APIVersion = 1

var (
	// ErrNotLeader is returned by operations that only work on the leader.
	ErrNotLeader = errors.New("this node is not the leader")
	// ErrFeatureDisabled is returned for requests that need a disabled feature.
	ErrFeatureDisabled = errors.New("feature is disabled")
	// ErrUnknownFeature is returned for unknown feature names in the configuration.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrRecoveryInProgress is returned if a forced recovery is already running.
	ErrRecoveryInProgress = errors.New("recovery already in progress")
)

// Config holds everything the keeper needs besides the raft host.
type Config struct {
	ShardID   uint64
	ReplicaID uint64

	// Timeout bounds every replicated request.
	Timeout time.Duration
	// MinSessionTimeout and MaxSessionTimeout clamp the timeouts requested by clients.
	MinSessionTimeout time.Duration
	MaxSessionTimeout time.Duration
	// DeadSessionCheckPeriod is the interval of the session expiry loop, 0 disables it.
	DeadSessionCheckPeriod time.Duration

	LogDir      string
	SnapshotDir string
	// HeapProfileDir receives the heap profiles written by FlushHeapProfile.
	HeapProfileDir string

	// FourLetterWordAllowList is "*" or a comma separated list of command names.
	FourLetterWordAllowList string
	// Features is the comma separated list of enabled features.
	Features string
	// Settings is the effective configuration as rendered by conf.
	Settings []fourlw.Setting
}

// --------------------------------------------------------------------------
// Keeper
// --------------------------------------------------------------------------

// Keeper is the coordination service of a single node. It serves client
// requests through the raft host and implements every capability the four
// letter words read from (see fourlw.Keeper).
type Keeper struct {
	cfg      Config
	host     RaftHost
	features featureSet

	stats    *requestStats
	events   *profileEvents
	conns    *connectionTable
	sessions *sessionTable
	watches  *watchManager
	memprof  *memoryProfiler

	outstanding atomic.Int64
	recovering  atomic.Bool

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ fourlw.Keeper = (*Keeper)(nil)

// New creates a keeper. It serves nothing until Start attached the raft host.
func New(cfg Config) (*Keeper, error) {
	features, err := parseFeatures(cfg.Features)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	k := &Keeper{
		cfg:      cfg,
		features: features,
		stats:    newRequestStats(),
		events:   newProfileEvents(),
		conns:    newConnectionTable(),
		sessions: newSessionTable(),
		memprof:  newMemoryProfiler(cfg.HeapProfileDir),
		stop:     make(chan struct{}),
	}
	k.watches = newWatchManager(k.deliver)
	return k, nil
}

// OnChanges is the fsm.Listener of the local replica. It triggers the
// watches of the sessions owned by this node.
func (k *Keeper) OnChanges(changes []fsm.Change, _ uint64) {
	if fired := k.watches.trigger(changes); fired > 0 {
		k.events.set.GetOrCreateCounter(EventWatchesTriggered).Add(fired)
	}
}

// StateMachineFactory returns the factory for the replica of the keeper,
// every created state machine reports its changes to the keeper.
func (k *Keeper) StateMachineFactory() sm.CreateConcurrentStateMachineFunc {
	return fsm.CreateStateMachineFactory(k.OnChanges)
}

// Start attaches the raft host of the replica created with
// StateMachineFactory and launches the session expiry loop.
// It must be called once before any request is served.
func (k *Keeper) Start(host RaftHost) {
	k.host = host
	if k.cfg.DeadSessionCheckPeriod <= 0 {
		return
	}
	k.wg.Add(1)
	go k.runSessionExpiry(k.cfg.DeadSessionCheckPeriod)
}

// Close stops the background work of the keeper.
func (k *Keeper) Close() {
	k.closeOnce.Do(func() {
		close(k.stop)
		k.wg.Wait()
	})
}

// --------------------------------------------------------------------------
// Internal write and read operations
// --------------------------------------------------------------------------

// write proposes a command and returns the payload of its result.
// Busy systems are retried, failed commands are returned as *fsm.Error.
func (k *Keeper) write(ctx context.Context, cmd fsm.Command) ([]byte, error) {
	for i := 0; i < retries; i++ {
		res, err := k.host.Propose(ctx, cmd.Serialize())

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("Propose: System busy, retrying (%d/%d)...", i+1, retries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(k.cfg.Timeout / 10):
			}
			continue
		}
		if err != nil {
			k.events.inc(EventCommitsFailed)
			return nil, fsm.NewError(fsm.RetCInternalError, err.Error())
		}
		k.events.inc(EventCommits)
		if res.Value != uint64(fsm.RetCSuccess) {
			return nil, fsm.NewError(fsm.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	k.events.inc(EventCommitsFailed)
	return nil, fsm.NewError(fsm.RetCInternalError, "timeout")
}

// read queries the state machine and converts the response into R.
// Linearizable reads go through the leader, stale reads only touch the local replica.
func read[R any](ctx context.Context, k *Keeper, q fsm.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		var res interface{}
		var err error
		if stale {
			res, err = k.host.StaleRead(q)
		} else {
			res, err = k.host.Read(ctx, q)
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("Read: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(k.cfg.Timeout / 10)
			continue
		}
		if err != nil {
			if stale {
				k.events.inc(EventStaleReadFailures)
			}
			var fsmErr *fsm.Error
			if errors.As(err, &fsmErr) {
				return zero, fsmErr
			}
			return zero, fsm.NewError(fsm.RetCInternalError, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, fsm.NewError(fsm.RetCInternalError, fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, fsm.NewError(fsm.RetCInternalError, "timeout")
}

func (k *Keeper) treeStats() (fsm.TreeStats, error) {
	return read[fsm.TreeStats](context.Background(), k, fsm.Query{Type: fsm.QueryTStats}, true)
}

func (k *Keeper) sessionsDump() (fsm.SessionsDump, error) {
	return read[fsm.SessionsDump](context.Background(), k, fsm.Query{Type: fsm.QueryTSessions}, true)
}

// isCode reports whether err is an *fsm.Error with the given code
func isCode(err error, code fsm.RetCode) bool {
	var fsmErr *fsm.Error
	return errors.As(err, &fsmErr) && fsmErr.Code == code
}

// --------------------------------------------------------------------------
// Connections and request tracking (called by the network layer)
// --------------------------------------------------------------------------

// ConnectionOpened registers a new client connection.
func (k *Keeper) ConnectionOpened(connID uint64, remote string) {
	k.conns.open(connID, remote)
}

// ConnectionClosed removes a client connection. The session of the
// connection stays alive until it times out.
func (k *Keeper) ConnectionClosed(connID uint64) {
	k.conns.close(connID)
}

// Track records the start of a request of connection connID. The returned
// function must be called with the operation name and the zxid the response
// reflects once the response is ready.
func (k *Keeper) Track(connID uint64) func(op string, zxid uint64) {
	start := time.Now()
	k.outstanding.Add(1)
	k.stats.received.Inc(1)
	k.conns.received(connID)
	k.events.inc(EventRequests)
	k.events.inc(EventPacketsReceived)

	return func(op string, zxid uint64) {
		latency := time.Since(start).Milliseconds()
		k.outstanding.Add(-1)
		k.stats.sent.Inc(1)
		k.stats.observe(latency)
		k.conns.completed(connID, op, zxid, latency)
		k.events.inc(EventPacketsSent)
	}
}

// --------------------------------------------------------------------------
// Client API
// --------------------------------------------------------------------------

// OpenSession creates a session for the client on connection connID.
// The requested timeout is clamped to the configured bounds.
func (k *Keeper) OpenSession(ctx context.Context, connID uint64, timeout time.Duration) (int64, time.Duration, error) {
	if k.cfg.MinSessionTimeout > 0 && timeout < k.cfg.MinSessionTimeout {
		timeout = k.cfg.MinSessionTimeout
	}
	if k.cfg.MaxSessionTimeout > 0 && timeout > k.cfg.MaxSessionTimeout {
		timeout = k.cfg.MaxSessionTimeout
	}

	data, err := k.write(ctx, fsm.Command{Type: fsm.CommandTOpenSession, Aux: timeout.Milliseconds()})
	if err != nil {
		return 0, 0, err
	}
	if len(data) != 8 {
		return 0, 0, fsm.NewError(fsm.RetCInternalError, "invalid session id")
	}
	id := int64(binary.BigEndian.Uint64(data))

	k.sessions.sessions.Store(id, newSession(id, timeout))
	k.conns.bind(connID, id)
	k.events.inc(EventSessionsOpened)
	log.Debugf("Opened session 0x%x with timeout %s", uint64(id), timeout)
	return id, timeout, nil
}

// AttachSession binds an existing session to connection connID (reconnect).
func (k *Keeper) AttachSession(connID uint64, sessionID int64) error {
	if _, err := k.session(sessionID); err != nil {
		return err
	}
	k.conns.bind(connID, sessionID)
	return nil
}

// CloseSession closes a session and removes its ephemeral nodes.
func (k *Keeper) CloseSession(ctx context.Context, sessionID int64) error {
	_, err := k.write(ctx, fsm.Command{Type: fsm.CommandTCloseSession, SessionID: sessionID})
	if err != nil && !isCode(err, fsm.RetCNoSession) {
		return err
	}
	k.forgetSession(sessionID)
	k.events.inc(EventSessionsClosed)
	return err
}

// Ping refreshes the heartbeat of a session.
func (k *Keeper) Ping(sessionID int64) error {
	_, err := k.session(sessionID)
	return err
}

// Create creates a node. Ephemeral nodes are owned by the session.
func (k *Keeper) Create(ctx context.Context, sessionID int64, path string, data []byte, ephemeral bool) (string, error) {
	k.events.inc(EventCreateRequests)
	if err := fsm.ValidatePath(path); err != nil {
		return "", err
	}
	cmd := fsm.Command{Type: fsm.CommandTCreate, Path: path, Value: data, Aux: time.Now().UnixMilli()}
	if ephemeral {
		if _, err := k.session(sessionID); err != nil {
			return "", err
		}
		cmd.Flags |= fsm.FlagEphemeral
		cmd.SessionID = sessionID
	}
	created, err := k.write(ctx, cmd)
	if err != nil {
		return "", err
	}
	return string(created), nil
}

// Delete removes a node, recursive removes the whole subtree.
func (k *Keeper) Delete(ctx context.Context, path string, version int32, recursive bool) error {
	k.events.inc(EventRemoveRequests)
	cmd := fsm.Command{Type: fsm.CommandTDelete, Path: path, Version: version}
	if recursive {
		if !k.features.enabled(FeatureRemoveRecursive) {
			return fmt.Errorf("%w: %s", ErrFeatureDisabled, FeatureRemoveRecursive)
		}
		cmd.Flags |= fsm.FlagRecursive
	}
	_, err := k.write(ctx, cmd)
	return err
}

// SetData replaces the data of a node and returns the new version.
func (k *Keeper) SetData(ctx context.Context, path string, data []byte, version int32) (int32, error) {
	k.events.inc(EventSetRequests)
	res, err := k.write(ctx, fsm.Command{Type: fsm.CommandTSetData, Path: path, Value: data, Version: version, Aux: time.Now().UnixMilli()})
	if err != nil {
		return 0, err
	}
	if len(res) != 4 {
		return 0, fsm.NewError(fsm.RetCInternalError, "invalid version")
	}
	return int32(binary.BigEndian.Uint32(res)), nil
}

// Get returns the data and the stat of a node and optionally sets a data watch.
func (k *Keeper) Get(ctx context.Context, sessionID int64, path string, watch bool) ([]byte, fsm.Stat, error) {
	k.events.inc(EventGetRequests)
	if err := k.watch(sessionID, path, watchData, watch); err != nil {
		return nil, fsm.Stat{}, err
	}
	res, err := read[fsm.QueryResult](ctx, k, fsm.Query{Type: fsm.QueryTGet, Path: path}, false)
	if err != nil {
		return nil, fsm.Stat{}, err
	}
	if !res.Ok {
		return nil, fsm.Stat{}, fsm.NewError(fsm.RetCNoNode, path)
	}
	return res.Value, res.Stat, nil
}

// Exists returns the stat of a node and optionally sets a data watch,
// which also fires when the node is created.
func (k *Keeper) Exists(ctx context.Context, sessionID int64, path string, watch bool) (fsm.Stat, bool, error) {
	k.events.inc(EventExistsRequests)
	if err := k.watch(sessionID, path, watchData, watch); err != nil {
		return fsm.Stat{}, false, err
	}
	res, err := read[fsm.QueryResult](ctx, k, fsm.Query{Type: fsm.QueryTExists, Path: path}, false)
	if err != nil {
		return fsm.Stat{}, false, err
	}
	return res.Stat, res.Ok, nil
}

// Children lists the children of a node and optionally sets a child watch.
func (k *Keeper) Children(ctx context.Context, sessionID int64, path string, filter fsm.ListFilter, watch bool) ([]string, error) {
	k.events.inc(EventListRequests)
	if filter != fsm.ListAll && !k.features.enabled(FeatureFilteredList) {
		return nil, fmt.Errorf("%w: %s", ErrFeatureDisabled, FeatureFilteredList)
	}
	if err := k.watch(sessionID, path, watchChildren, watch); err != nil {
		return nil, err
	}
	res, err := read[fsm.QueryResult](ctx, k, fsm.Query{Type: fsm.QueryTChildren, Path: path, Filter: filter}, false)
	if err != nil {
		return nil, err
	}
	if !res.Ok {
		return nil, fsm.NewError(fsm.RetCNoNode, path)
	}
	return res.Children, nil
}

// Events returns and clears the pending watch events of a session.
func (k *Keeper) Events(sessionID int64) []WatchEvent {
	if s, ok := k.sessions.sessions.Load(sessionID); ok {
		return s.drain()
	}
	return nil
}

// watch registers a watch before the read, so no change between the read and
// the registration can be missed
func (k *Keeper) watch(sessionID int64, path string, kind watchKind, enabled bool) error {
	if !enabled {
		return nil
	}
	if !k.features.enabled(FeaturePiggybackWatchEvents) {
		return fmt.Errorf("%w: %s", ErrFeatureDisabled, FeaturePiggybackWatchEvents)
	}
	if err := fsm.ValidatePath(path); err != nil {
		return err
	}
	if _, err := k.session(sessionID); err != nil {
		return err
	}
	k.watches.add(sessionID, path, kind)
	return nil
}

// LastZxid returns the zxid of the last change applied to the local replica.
func (k *Keeper) LastZxid() uint64 {
	stats, err := k.treeStats()
	if err != nil {
		return 0
	}
	return stats.LastZxid
}
