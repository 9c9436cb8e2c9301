package fsm

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var log = logger.GetLogger("fsm")

// Listener is called on the raft apply goroutine after a batch of entries was
// applied. It must not block, changes are in apply order.
type Listener func(changes []Change, zxid uint64)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// StateMachine is the dragonboat state machine holding the znode tree.
// The raft log index of an entry is its zxid.
type StateMachine struct {
	replicaID    uint64
	shardID      uint64
	tree         *DataTree
	listener     Listener
	snapshotSize atomic.Int64
}

// CreateStateMachineFactory returns a function that can be used by dragonboat
// to create the state machine of a replica. Every created machine reports
// its changes to listener (which may be nil).
func CreateStateMachineFactory(listener Listener) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return NewStateMachine(shardID, replicaID, listener)
	}
}

// NewStateMachine creates a state machine with an empty tree.
func NewStateMachine(shardID, replicaID uint64, listener Listener) *StateMachine {
	return &StateMachine{
		replicaID: replicaID,
		shardID:   shardID,
		tree:      NewDataTree(),
		listener:  listener,
	}
}

// Lookup handles read-only queries
func (fsm *StateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(Query)
	if !ok {
		return nil, NewError(RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case QueryTGet:
		data, stat, ok := fsm.tree.Get(q.Path)
		return QueryResult{Ok: ok, Value: data, Stat: stat}, nil
	case QueryTExists:
		stat, ok := fsm.tree.Exists(q.Path)
		return QueryResult{Ok: ok, Stat: stat}, nil
	case QueryTChildren:
		children, ok := fsm.tree.Children(q.Path, q.Filter)
		return QueryResult{Ok: ok, Children: children}, nil
	case QueryTStats:
		stats := fsm.tree.Stats()
		stats.LatestSnapshotSize = fsm.snapshotSize.Load()
		return stats, nil
	case QueryTSessions:
		return fsm.tree.Sessions(), nil
	case QueryTRecalculate:
		stats := fsm.tree.Recalculate()
		stats.LatestSnapshotSize = fsm.snapshotSize.Load()
		return stats, nil
	default:
		return nil, NewError(RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update applies write commands to the tree.
// Every entry gets a result, failures are reported through the return code.
func (fsm *StateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()
	var changes []Change
	var lastIndex uint64

	for idx, e := range entries {
		lastIndex = e.Index

		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}
		cmd := Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		result, applied := fsm.apply(cmd, e.Index)
		entries[idx].Result = result
		changes = append(changes, applied...)
	}

	if fsm.listener != nil && len(changes) > 0 {
		fsm.listener(changes, lastIndex)
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes a single command at the given zxid
func (fsm *StateMachine) apply(cmd Command, zxid uint64) (sm.Result, []Change) {
	var changes []Change
	var err error
	var data []byte

	switch cmd.Type {
	case CommandTOpenSession:
		// the log index is unique and identical on all replicas
		id := int64(zxid)
		fsm.tree.OpenSession(id, cmd.Aux, zxid)
		data = make([]byte, 8)
		binary.BigEndian.PutUint64(data, uint64(id))
	case CommandTCloseSession:
		changes, err = fsm.tree.CloseSession(cmd.SessionID, zxid)
	case CommandTCreate:
		var owner int64
		if cmd.Has(FlagEphemeral) {
			owner = cmd.SessionID
			if owner == 0 {
				err = fmt.Errorf("%w: ephemeral nodes need a session", ErrBadArguments)
				break
			}
		}
		changes, err = fsm.tree.Create(cmd.Path, cmd.Value, owner, cmd.Aux, zxid)
		data = []byte(cmd.Path)
	case CommandTDelete:
		changes, err = fsm.tree.Delete(cmd.Path, cmd.Version, cmd.Has(FlagRecursive), zxid)
	case CommandTSetData:
		var stat Stat
		stat, changes, err = fsm.tree.SetData(cmd.Path, cmd.Value, cmd.Version, cmd.Aux, zxid)
		if err == nil {
			data = make([]byte, 4)
			binary.BigEndian.PutUint32(data, uint32(stat.Version))
		}
	default:
		return sm.Result{
			Value: uint64(RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}, nil
	}

	if err != nil {
		return sm.Result{Value: uint64(codeOf(err)), Data: []byte(err.Error())}, nil
	}
	return sm.Result{Value: uint64(RetCSuccess), Data: data}, changes
}

// PrepareSnapshot copies the tree, the copy is written by SaveSnapshot while updates continue
func (fsm *StateMachine) PrepareSnapshot() (interface{}, error) {
	return fsm.tree.snapshot(), nil
}

// SaveSnapshot gob encodes the prepared copy and records its size
func (fsm *StateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	s, ok := ctx.(*treeSnapshot)
	if !ok {
		return fmt.Errorf("invalid snapshot context type: %T", ctx)
	}
	cw := &countingWriter{w: writer}
	if err := gob.NewEncoder(cw).Encode(s); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	fsm.snapshotSize.Store(cw.n)
	log.Infof("Saved snapshot of shard %d at zxid %d (%d nodes, %d bytes)", fsm.shardID, s.LastZxid, len(s.Nodes), cw.n)
	return nil
}

// RecoverFromSnapshot replaces the tree with the content of a snapshot
func (fsm *StateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	var s treeSnapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := fsm.tree.restore(&s); err != nil {
		return err
	}
	log.Infof("Recovered shard %d from snapshot at zxid %d (%d nodes)", fsm.shardID, s.LastZxid, len(s.Nodes))
	return nil
}

// Close performs any necessary cleanup.
func (fsm *StateMachine) Close() error {
	return nil
}

// countingWriter counts the bytes written to w
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
