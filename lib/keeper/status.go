package keeper

import (
	"context"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
)

// --------------------------------------------------------------------------
// Read-only capabilities of the four letter words
// --------------------------------------------------------------------------

func (k *Keeper) FourLetterWordAllowList() string {
	return k.cfg.FourLetterWordAllowList
}

func (k *Keeper) Version() string {
	return Version
}

func (k *Keeper) APIVersion() int {
	return APIVersion
}

// Status derives the role of the node from the raft layer. A node without a
// known leader or without a running replica is not serving.
func (k *Keeper) Status() fourlw.Status {
	status := fourlw.Status{
		Role:                fourlw.RoleNotServing,
		AliveConnections:    k.conns.size(),
		OutstandingRequests: k.outstanding.Load(),
		LastZxid:            k.LastZxid(),
	}

	replica, running := k.host.Replica()
	_, hasLeader := k.host.Leader()
	if !running || !hasLeader {
		return status
	}
	status.HasLeader = true
	status.IsObserver = replica.IsNonVoting

	switch {
	case replica.IsNonVoting:
		status.Role = fourlw.RoleObserver
	case replica.IsLeader:
		status.IsLeader = true
		status.Role = fourlw.RoleLeader
		ctx, cancel := context.WithTimeout(context.Background(), k.cfg.Timeout)
		defer cancel()
		if m, err := k.host.Membership(ctx); err == nil {
			if len(m.Voters) == 1 && len(m.NonVoting) == 0 {
				status.Role = fourlw.RoleStandalone
			}
			status.Followers = int64(len(m.Voters) - 1 + len(m.NonVoting))
			status.SyncedFollowers = int64(len(m.Voters) - 1)
		} else {
			log.Warningf("Failed to read shard membership: %v", err)
		}
	default:
		status.Role = fourlw.RoleFollower
	}
	return status
}

func (k *Keeper) ServerStats() fourlw.ServerStats {
	return k.stats.snapshot()
}

func (k *Keeper) ResetServerStats() {
	k.stats.reset()
}

func (k *Keeper) Connections() []fourlw.ConnectionInfo {
	return k.conns.list(k.sessionTimeoutMs)
}

func (k *Keeper) ResetConnectionStats() {
	k.conns.resetStats()
}

// StorageStats combines the tree statistics of the local replica with the
// watch tables. Zero values are returned while the replica is not ready.
func (k *Keeper) StorageStats() fourlw.StorageStats {
	var stats fourlw.StorageStats
	if tree, err := k.treeStats(); err == nil {
		stats.NodeCount = tree.NodeCount
		stats.EphemeralsCount = tree.EphemeralsCount
		stats.ApproximateDataSize = tree.ApproximateDataSize
		stats.LatestSnapshotSize = tree.LatestSnapshotSize
	}
	stats.WatchCount, stats.WatchedPaths, stats.SessionsWithWatches = k.watches.stats()
	return stats
}

func (k *Keeper) WatchesBySession() map[int64][]string {
	return k.watches.bySession()
}

func (k *Keeper) WatchesByPath() map[string][]int64 {
	return k.watches.byPath()
}

func (k *Keeper) IsLeader() bool {
	replica, ok := k.host.Replica()
	return ok && replica.IsLeader
}

// Sessions returns the ids of all sessions of the tree, not only the local ones.
func (k *Keeper) Sessions() []int64 {
	dump, err := k.sessionsDump()
	if err != nil {
		return nil
	}
	ids := make([]int64, 0, len(dump.Sessions))
	for id := range dump.Sessions {
		ids = append(ids, id)
	}
	return ids
}

func (k *Keeper) EphemeralsBySession() map[int64][]string {
	dump, err := k.sessionsDump()
	if err != nil {
		return nil
	}
	return dump.Ephemerals
}

func (k *Keeper) Settings() []fourlw.Setting {
	return k.cfg.Settings
}

func (k *Keeper) FeatureFlags() []fourlw.FeatureFlag {
	return k.features.list()
}

func (k *Keeper) ProfileEvents() []fourlw.ProfileEvent {
	return k.events.list()
}
