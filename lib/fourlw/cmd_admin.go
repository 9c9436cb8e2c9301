package fourlw

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Raft log and administrative triggers
// --------------------------------------------------------------------------

/*
	Triggers only hand the request over to the keeper and return right away.
	They never wait for the snapshot, the leader transfer or the recovery to
	finish. rqld is a one-shot signal the raft layer may ignore, the reset and
	maintenance commands are idempotent.
*/

// NewLogInfoCommand prints the position of the raft log.
// last_committed_idx never exceeds last_log_idx in the output.
func NewLogInfoCommand(lr LogInfoReader) Command {
	return NewCommand(LogInfoName, func() string {
		info, err := lr.LogInfo()
		if err != nil {
			return errorLine(LogInfoName, err)
		}
		committed := info.LastCommittedIdx
		if committed > info.LastLogIdx {
			committed = info.LastLogIdx
		}

		var sb strings.Builder
		tabLine(&sb, "first_log_idx", info.FirstLogIdx)
		tabLine(&sb, "first_log_term", info.FirstLogTerm)
		tabLine(&sb, "last_log_idx", info.LastLogIdx)
		tabLine(&sb, "last_log_term", info.LastLogTerm)
		tabLine(&sb, "last_committed_idx", committed)
		tabLine(&sb, "leader_committed_log_idx", info.LeaderCommittedLogIdx)
		tabLine(&sb, "target_committed_log_idx", info.TargetCommittedLogIdx)
		tabLine(&sb, "last_snapshot_idx", info.LastSnapshotIdx)
		return sb.String()
	})
}

// NewCreateSnapshotCommand schedules a snapshot outside of the regular cycle.
func NewCreateSnapshotCommand(st SnapshotTrigger) Command {
	return NewCommand(CreateSnapshotName, func() string {
		idx, err := st.CreateSnapshot()
		if err != nil {
			return fmt.Sprintf("Failed to schedule snapshot creation task: %v\n", err)
		}
		return fmt.Sprintf("Snapshot creation scheduled with last committed log index %d.\n", idx)
	})
}

// NewRequestLeaderCommand asks the raft layer to make this node the leader.
func NewRequestLeaderCommand(lc LeadershipController) Command {
	return NewCommand(RequestLeaderName, func() string {
		if err := lc.RequestLeadership(); err != nil {
			return fmt.Sprintf("Failed to send leadership request to leader: %v\n", err)
		}
		return "Sent leadership request to leader.\n"
	})
}

// NewYieldLeadershipCommand asks the leader to step down and become a follower.
func NewYieldLeadershipCommand(lc LeadershipController) Command {
	return NewCommand(YieldLeadershipName, func() string {
		if err := lc.YieldLeadership(); err != nil {
			return fmt.Sprintf("Failed to send yield leadership request: %v\n", err)
		}
		return "Sent yield leadership request to leader.\n"
	})
}

// NewRecoveryCommand forces the node into recovery mode.
func NewRecoveryCommand(rt RecoveryTrigger) Command {
	return NewCommand(RecoveryName, func() string {
		if err := rt.ForceRecovery(); err != nil {
			return errorLine(RecoveryName, err)
		}
		return "ok"
	})
}

// NewRecalculateCommand recomputes the aggregated statistics of the znode tree.
func NewRecalculateCommand(m Maintainer) Command {
	return NewCommand(RecalculateName, func() string {
		if err := m.RecalculateStats(); err != nil {
			return errorLine(RecalculateName, err)
		}
		return "ok"
	})
}

// NewCleanResourcesCommand releases idle and stale resources.
func NewCleanResourcesCommand(m Maintainer) Command {
	return NewCommand(CleanResourcesName, func() string {
		if err := m.ReleaseResources(); err != nil {
			return errorLine(CleanResourcesName, err)
		}
		return "ok"
	})
}

// --------------------------------------------------------------------------
// Feature flags and profiling (ftfl, pfev)
// --------------------------------------------------------------------------

// NewFeatureFlagsCommand lists every known feature flag with 1 (enabled) or 0.
func NewFeatureFlagsCommand(fr FeatureFlagReader) Command {
	return NewCommand(FeatureFlagsName, func() string {
		var sb strings.Builder
		for _, flag := range fr.FeatureFlags() {
			state := 0
			if flag.Enabled {
				state = 1
			}
			tabLine(&sb, flag.Name, state)
		}
		return sb.String()
	})
}

// NewProfileEventsCommand dumps the profiling event counters.
func NewProfileEventsCommand(pr ProfileEventReader) Command {
	return NewCommand(ProfileEventsName, func() string {
		var sb strings.Builder
		for _, ev := range pr.ProfileEvents() {
			fmt.Fprintf(&sb, "%s\t%d\t%s\n", ev.Name, ev.Value, ev.Description)
		}
		return sb.String()
	})
}
