package keeper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/config"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// Raft host
// --------------------------------------------------------------------------

// ReplicaInfo describes the local replica as seen by the raft layer.
type ReplicaInfo struct {
	IsLeader    bool
	IsNonVoting bool
	IsWitness   bool
}

// Membership lists the replica ids of the shard.
type Membership struct {
	Voters    []uint64
	NonVoting []uint64
}

// RaftHost is the part of the raft layer the keeper needs. It is implemented
// on top of a dragonboat NodeHost by NewRaftHost.
type RaftHost interface {
	// Propose replicates a serialized fsm.Command and returns its result.
	Propose(ctx context.Context, cmd []byte) (sm.Result, error)
	// Read performs a linearizable lookup.
	Read(ctx context.Context, query interface{}) (interface{}, error)
	// StaleRead performs a lookup on the local state machine.
	StaleRead(query interface{}) (interface{}, error)
	// Leader returns the id of the current leader, ok is false if no leader is known.
	Leader() (leaderID uint64, ok bool)
	// Replica returns the state of the local replica, ok is false if it is not running.
	Replica() (info ReplicaInfo, ok bool)
	// Membership returns the members of the shard.
	Membership(ctx context.Context) (Membership, error)
	// LogInfo returns the position of the local raft log.
	LogInfo() (fourlw.LogInfo, error)
	// RequestSnapshot schedules a snapshot and returns without waiting for it.
	RequestSnapshot() error
	// TransferLeadership asks the raft layer to move the leadership to target.
	TransferLeadership(target uint64) error
	// RestartReplica stops the local replica and starts it again from disk.
	RestartReplica() error
}

// nodeHost implements RaftHost with a dragonboat NodeHost
type nodeHost struct {
	nh              *dragonboat.NodeHost
	shardID         uint64
	replicaID       uint64
	cs              *client.Session
	factory         sm.CreateConcurrentStateMachineFunc
	cfg             config.Config
	snapshotTimeout time.Duration
}

// NewRaftHost creates a RaftHost for a replica that was started on nh with
// the given state machine factory and config. Both are reused to restart the
// replica during recovery.
func NewRaftHost(nh *dragonboat.NodeHost, cfg config.Config, factory sm.CreateConcurrentStateMachineFunc, timeout time.Duration) RaftHost {
	return &nodeHost{
		nh:              nh,
		shardID:         cfg.ShardID,
		replicaID:       cfg.ReplicaID,
		cs:              nh.GetNoOPSession(cfg.ShardID),
		factory:         factory,
		cfg:             cfg,
		snapshotTimeout: timeout,
	}
}

func (h *nodeHost) Propose(ctx context.Context, cmd []byte) (sm.Result, error) {
	return h.nh.SyncPropose(ctx, h.cs, cmd)
}

func (h *nodeHost) Read(ctx context.Context, query interface{}) (interface{}, error) {
	return h.nh.SyncRead(ctx, h.shardID, query)
}

func (h *nodeHost) StaleRead(query interface{}) (interface{}, error) {
	return h.nh.StaleRead(h.shardID, query)
}

func (h *nodeHost) Leader() (uint64, bool) {
	leaderID, _, valid, err := h.nh.GetLeaderID(h.shardID)
	if err != nil || !valid {
		return 0, false
	}
	return leaderID, true
}

func (h *nodeHost) Replica() (ReplicaInfo, bool) {
	info := h.nh.GetNodeHostInfo(dragonboat.NodeHostInfoOption{SkipLogInfo: true})
	for _, shard := range info.ShardInfoList {
		if shard.ShardID == h.shardID && shard.ReplicaID == h.replicaID {
			return ReplicaInfo{
				IsLeader:    shard.IsLeader,
				IsNonVoting: shard.IsNonVoting,
				IsWitness:   shard.IsWitness,
			}, true
		}
	}
	return ReplicaInfo{}, false
}

func (h *nodeHost) Membership(ctx context.Context) (Membership, error) {
	m, err := h.nh.SyncGetShardMembership(ctx, h.shardID)
	if err != nil {
		return Membership{}, err
	}
	var res Membership
	for id := range m.Nodes {
		res.Voters = append(res.Voters, id)
	}
	for id := range m.NonVotings {
		res.NonVoting = append(res.NonVoting, id)
	}
	sort.Slice(res.Voters, func(i, j int) bool { return res.Voters[i] < res.Voters[j] })
	sort.Slice(res.NonVoting, func(i, j int) bool { return res.NonVoting[i] < res.NonVoting[j] })
	return res, nil
}

// LogInfo reads the log range and the hard state of the local replica. The
// commit index of a follower is the best known value of the leader's one.
func (h *nodeHost) LogInfo() (fourlw.LogInfo, error) {
	reader, err := h.nh.GetLogReader(h.shardID)
	if err != nil {
		return fourlw.LogInfo{}, fmt.Errorf("failed to get log reader: %w", err)
	}
	first, last := reader.GetRange()
	state, _ := reader.NodeState()
	snapshot := reader.Snapshot()

	info := fourlw.LogInfo{
		FirstLogIdx:           first,
		LastLogIdx:            last,
		LastCommittedIdx:      state.Commit,
		LeaderCommittedLogIdx: state.Commit,
		TargetCommittedLogIdx: state.Commit,
		LastSnapshotIdx:       snapshot.Index,
	}
	// the log may be fully compacted into the snapshot
	if last < first {
		info.FirstLogIdx, info.LastLogIdx = snapshot.Index, snapshot.Index
		info.FirstLogTerm, info.LastLogTerm = snapshot.Term, snapshot.Term
		return info, nil
	}
	if info.FirstLogTerm, err = reader.Term(first); err != nil {
		info.FirstLogTerm = snapshot.Term
	}
	if info.LastLogTerm, err = reader.Term(last); err != nil {
		info.LastLogTerm = state.Term
	}
	return info, nil
}

func (h *nodeHost) RequestSnapshot() error {
	rs, err := h.nh.RequestSnapshot(h.shardID, dragonboat.SnapshotOption{}, h.snapshotTimeout)
	if err != nil {
		return err
	}
	go func() {
		defer rs.Release()
		res := <-rs.ResultC()
		if res.Completed() {
			log.Infof("Snapshot of shard %d created at index %d", h.shardID, res.SnapshotIndex())
		} else {
			log.Warningf("Snapshot of shard %d was not created (timeout=%t, rejected=%t)", h.shardID, res.Timeout(), res.Rejected())
		}
	}()
	return nil
}

func (h *nodeHost) TransferLeadership(target uint64) error {
	return h.nh.RequestLeaderTransfer(h.shardID, target)
}

func (h *nodeHost) RestartReplica() error {
	if err := h.nh.StopReplica(h.shardID, h.replicaID); err != nil {
		return fmt.Errorf("failed to stop replica: %w", err)
	}
	// an existing replica ignores the initial members and recovers from its own data
	if err := h.nh.StartConcurrentReplica(nil, false, h.factory, h.cfg); err != nil {
		return fmt.Errorf("failed to start replica: %w", err)
	}
	return nil
}
