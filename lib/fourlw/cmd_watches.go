package fourlw

import (
	"fmt"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Watches and sessions (wchs, wchc, wchp, dump)
// --------------------------------------------------------------------------

// NewBriefWatchCommand lists brief information on watches for the server.
func NewBriefWatchCommand(sr StorageReader) Command {
	return NewCommand(BriefWatchName, func() string {
		stats := sr.StorageStats()
		return fmt.Sprintf("%d connections watching %d paths\nTotal watches:%d\n",
			stats.SessionsWithWatches, stats.WatchedPaths, stats.WatchCount)
	})
}

// NewWatchBySessionCommand lists the watched paths grouped by session.
// Depending on the number of watches this can be expensive.
func NewWatchBySessionCommand(wr WatchReader) Command {
	return NewCommand(WatchBySessionName, func() string {
		watches := wr.WatchesBySession()
		var sb strings.Builder
		for _, session := range sortedSessionIDs(watches) {
			sb.WriteString(formatSessionID(session))
			sb.WriteString("\n")
			writeIndentedPaths(&sb, watches[session])
		}
		return sb.String()
	})
}

// NewWatchByPathCommand lists the watching sessions grouped by path.
// Depending on the number of watches this can be expensive.
func NewWatchByPathCommand(wr WatchReader) Command {
	return NewCommand(WatchByPathName, func() string {
		watches := wr.WatchesByPath()
		paths := make([]string, 0, len(watches))
		for path := range watches {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		var sb strings.Builder
		for _, path := range paths {
			sb.WriteString(path)
			sb.WriteString("\n")
			sessions := append([]int64(nil), watches[path]...)
			sort.Slice(sessions, func(i, j int) bool { return sessions[i] < sessions[j] })
			for _, session := range sessions {
				sb.WriteString("\t")
				sb.WriteString(formatSessionID(session))
				sb.WriteString("\n")
			}
		}
		return sb.String()
	})
}

// NewDumpCommand lists the outstanding sessions and ephemeral nodes.
// This only works on the leader, other nodes answer with an explanation.
func NewDumpCommand(sr SessionReader) Command {
	return NewCommand(DumpName, func() string {
		if !sr.IsLeader() {
			return "This command only works on the leader, this node is not the leader.\n"
		}

		sessions := append([]int64(nil), sr.Sessions()...)
		sort.Slice(sessions, func(i, j int) bool { return sessions[i] < sessions[j] })
		ephemerals := sr.EphemeralsBySession()

		var sb strings.Builder
		fmt.Fprintf(&sb, "Sessions dump (%d):\n", len(sessions))
		for _, session := range sessions {
			sb.WriteString(formatSessionID(session))
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Sessions with Ephemerals (%d):\n", len(ephemerals))
		for _, session := range sortedSessionIDs(ephemerals) {
			sb.WriteString(formatSessionID(session))
			sb.WriteString("\n")
			writeIndentedPaths(&sb, ephemerals[session])
		}
		return sb.String()
	})
}

func sortedSessionIDs(m map[int64][]string) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func writeIndentedPaths(sb *strings.Builder, paths []string) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, path := range sorted {
		sb.WriteString("\t")
		sb.WriteString(path)
		sb.WriteString("\n")
	}
}
