package keeper

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/ValentinKolb/dKeeper/lib/keeper/fsm"
)

// --------------------------------------------------------------------------
// Raft triggers of the four letter words
// --------------------------------------------------------------------------

func (k *Keeper) LogInfo() (fourlw.LogInfo, error) {
	return k.host.LogInfo()
}

// CreateSnapshot schedules a snapshot and returns the committed index it will cover.
func (k *Keeper) CreateSnapshot() (uint64, error) {
	info, err := k.host.LogInfo()
	if err != nil {
		return 0, err
	}
	if err := k.host.RequestSnapshot(); err != nil {
		return 0, err
	}
	k.events.inc(EventSnapshotRequests)
	return info.LastCommittedIdx, nil
}

// RequestLeadership asks the raft layer to move the leadership to this node.
func (k *Keeper) RequestLeadership() error {
	if k.IsLeader() {
		return nil
	}
	if _, ok := k.host.Leader(); !ok {
		return fmt.Errorf("no leader known")
	}
	if err := k.host.TransferLeadership(k.cfg.ReplicaID); err != nil {
		return err
	}
	k.events.inc(EventLeadershipTransfers)
	return nil
}

// YieldLeadership hands the leadership to the voting member with the lowest
// id other than this node.
func (k *Keeper) YieldLeadership() error {
	if !k.IsLeader() {
		return ErrNotLeader
	}
	ctx, cancel := context.WithTimeout(context.Background(), k.cfg.Timeout)
	defer cancel()
	m, err := k.host.Membership(ctx)
	if err != nil {
		return err
	}
	for _, id := range m.Voters {
		if id == k.cfg.ReplicaID {
			continue
		}
		if err := k.host.TransferLeadership(id); err != nil {
			return err
		}
		k.events.inc(EventLeadershipTransfers)
		return nil
	}
	return fmt.Errorf("no other voting member to yield to")
}

// ForceRecovery restarts the local replica from disk in the background.
// Only one recovery runs at a time.
func (k *Keeper) ForceRecovery() error {
	if !k.recovering.CompareAndSwap(false, true) {
		return ErrRecoveryInProgress
	}
	k.events.inc(EventRecoveries)
	go func() {
		defer k.recovering.Store(false)
		log.Warningf("Forcing recovery of shard %d replica %d", k.cfg.ShardID, k.cfg.ReplicaID)
		if err := k.host.RestartReplica(); err != nil {
			log.Errorf("Recovery of shard %d failed: %v", k.cfg.ShardID, err)
			return
		}
		log.Infof("Replica of shard %d restarted", k.cfg.ShardID)
	}()
	return nil
}

// RecalculateStats rebuilds the aggregated tree statistics of the local replica.
func (k *Keeper) RecalculateStats() error {
	stats, err := read[fsm.TreeStats](context.Background(), k, fsm.Query{Type: fsm.QueryTRecalculate}, true)
	if err != nil {
		return err
	}
	log.Infof("Recalculated tree statistics: %d nodes, %d ephemerals, %d bytes", stats.NodeCount, stats.EphemeralsCount, stats.ApproximateDataSize)
	return nil
}

// ReleaseResources expires dead sessions right away and returns freed memory to the OS.
func (k *Keeper) ReleaseResources() error {
	ctx, cancel := context.WithTimeout(context.Background(), k.cfg.Timeout)
	defer cancel()
	closed := k.expireSessions(ctx, time.Now())
	debug.FreeOSMemory()
	log.Infof("Released resources, expired %d sessions", closed)
	return nil
}
