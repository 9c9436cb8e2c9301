// Package keeper implements the coordination service of a single dKeeper node
// on top of a dragonboat raft shard.
//
// The replicated part (the znode tree and the session table) lives in the fsm
// package. The keeper adds the node local part:
//
//   - Sessions: the sessions of the clients connected to this node, their
//     heartbeats and the expiry loop that proposes the close of dead sessions.
//
//   - Watches: one-shot data and child watches. They are triggered by the
//     changes the local replica applies and queued on the owning session until
//     its next response.
//
//   - Connections and statistics: per connection and server wide request
//     counters and latencies, plus the profile event counters.
//
//   - Admin capabilities: everything the four letter words of the fourlw
//     package read or trigger (status, log info, snapshots, leadership
//     transfer, recovery, memory profiling).
//
// A Keeper is created with New, its replica is started with the factory
// returned by StateMachineFactory and the raft host is attached by Start.
package keeper
