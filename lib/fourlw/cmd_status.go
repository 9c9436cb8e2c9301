package fourlw

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Health and server statistics (ruok, mntr, srst, srvr, stat)
// --------------------------------------------------------------------------

// NewRuokCommand tests if the server is running in a non-error state.
// "imok" does not mean the server joined the quorum, use stat for that.
func NewRuokCommand() Command {
	return NewCommand(RuokName, func() string {
		return "imok"
	})
}

// NewMonitorCommand outputs a list of variables that could be used for
// monitoring the health of the cluster. Every key is printed even if the node
// has not seen any traffic yet, the leader additionally reports its followers.
func NewMonitorCommand(v VersionInfo, st StatusReader, ss ServerStatsReader, sr StorageReader, env EnvironmentReader) Command {
	return NewCommand(MonitorName, func() string {
		status := st.Status()
		stats := ss.ServerStats()
		storage := sr.StorageStats()

		var sb strings.Builder
		add := func(key string, value any) {
			tabLine(&sb, "zk_"+key, value)
		}

		add("version", v.Version())
		add("avg_latency", stats.AvgLatency)
		add("max_latency", stats.MaxLatency)
		add("min_latency", stats.MinLatency)
		add("packets_received", stats.PacketsReceived)
		add("packets_sent", stats.PacketsSent)
		add("num_alive_connections", status.AliveConnections)
		add("outstanding_requests", status.OutstandingRequests)
		add("server_state", status.Role)
		add("znode_count", storage.NodeCount)
		add("watch_count", storage.WatchCount)
		add("ephemerals_count", storage.EphemeralsCount)
		add("approximate_data_size", storage.ApproximateDataSize)
		add("latest_snapshot_size", storage.LatestSnapshotSize)

		// only reported where the platform exposes them
		if open, max, err := env.FileDescriptors(); err == nil {
			add("open_file_descriptor_count", open)
			add("max_file_descriptor_count", max)
		}

		if status.IsLeader {
			add("followers", status.Followers)
			add("synced_followers", status.SyncedFollowers)
		}
		return sb.String()
	})
}

// NewStatResetCommand resets the accumulated server statistics.
func NewStatResetCommand(ss ServerStatsReader) Command {
	return NewCommand(StatResetName, func() string {
		ss.ResetServerStats()
		return "Server stats reset.\n"
	})
}

// NewServerStatCommand lists full details for the server.
func NewServerStatCommand(v VersionInfo, st StatusReader, ss ServerStatsReader, sr StorageReader) Command {
	return NewCommand(ServerStatName, func() string {
		status := st.Status()
		if !status.HasLeader {
			return notServing
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "dKeeper version: %s\n", v.Version())
		writeServerStats(&sb, status, ss.ServerStats(), sr.StorageStats())
		return sb.String()
	})
}

// NewStatCommand lists brief details for the server and the connected clients.
func NewStatCommand(v VersionInfo, st StatusReader, ss ServerStatsReader, sr StorageReader, cr ConnectionReader) Command {
	return NewCommand(StatName, func() string {
		status := st.Status()
		if !status.HasLeader {
			return notServing
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "dKeeper version: %s\n", v.Version())
		sb.WriteString("Clients:\n")
		writeConnections(&sb, cr.Connections(), true)
		sb.WriteString("\n")
		writeServerStats(&sb, status, ss.ServerStats(), sr.StorageStats())
		return sb.String()
	})
}

const notServing = "This instance is not currently serving requests\n"

// writeServerStats renders the body shared by srvr and stat
func writeServerStats(sb *strings.Builder, status Status, stats ServerStats, storage StorageStats) {
	write := func(key, value string) {
		fmt.Fprintf(sb, "%s: %s\n", key, value)
	}
	write("Latency min/avg/max", fmt.Sprintf("%d/%d/%d", stats.MinLatency, stats.AvgLatency, stats.MaxLatency))
	write("Received", strconv.FormatInt(stats.PacketsReceived, 10))
	write("Sent", strconv.FormatInt(stats.PacketsSent, 10))
	write("Connections", strconv.FormatInt(status.AliveConnections, 10))
	write("Outstanding", strconv.FormatInt(status.OutstandingRequests, 10))
	write("Zxid", fmt.Sprintf("0x%x", status.LastZxid))
	write("Mode", string(status.Role))
	write("Node count", strconv.FormatInt(storage.NodeCount, 10))
}

// --------------------------------------------------------------------------
// Connections (cons, crst)
// --------------------------------------------------------------------------

// NewConsCommand lists full connection and session details for all clients
// connected to this server.
func NewConsCommand(cr ConnectionReader) Command {
	return NewCommand(ConsName, func() string {
		var sb strings.Builder
		writeConnections(&sb, cr.Connections(), false)
		sb.WriteString("\n")
		return sb.String()
	})
}

// NewConnStatsResetCommand resets the statistics of all connections.
func NewConnStatsResetCommand(cr ConnectionReader) Command {
	return NewCommand(ConnStatsResetName, func() string {
		cr.ResetConnectionStats()
		return "Connection stats reset.\n"
	})
}

func writeConnections(sb *strings.Builder, conns []ConnectionInfo, brief bool) {
	for _, c := range conns {
		fmt.Fprintf(sb, " %s(recved=%d,sent=%d", c.Remote, c.PacketsReceived, c.PacketsSent)
		if !brief && c.SessionID != 0 {
			fmt.Fprintf(sb, ",sid=0x%x", uint64(c.SessionID))
			fmt.Fprintf(sb, ",lop=%s", c.LastOperation)
			fmt.Fprintf(sb, ",est=%d", c.EstablishedMs)
			fmt.Fprintf(sb, ",to=%d", c.SessionTimeoutMs)
			fmt.Fprintf(sb, ",lcxid=0x%x", uint64(c.LastCxid))
			fmt.Fprintf(sb, ",lzxid=0x%x", uint64(c.LastZxid))
			fmt.Fprintf(sb, ",lresp=%d", c.LastResponseMs)
			fmt.Fprintf(sb, ",llat=%d", c.LastLatency)
			fmt.Fprintf(sb, ",minlat=%d", c.MinLatency)
			fmt.Fprintf(sb, ",avglat=%d", c.AvgLatency)
			fmt.Fprintf(sb, ",maxlat=%d", c.MaxLatency)
		}
		sb.WriteString(")\n")
	}
}

// --------------------------------------------------------------------------
// Configuration and environment (conf, envi, dirs, isro, apiv)
// --------------------------------------------------------------------------

// NewConfCommand dumps the effective configuration.
func NewConfCommand(cr ConfigReader) Command {
	return NewCommand(ConfName, func() string {
		var sb strings.Builder
		for _, s := range cr.Settings() {
			fmt.Fprintf(&sb, "%s=%s\n", s.Key, s.Value)
		}
		return sb.String()
	})
}

// NewEnviCommand prints details about the serving environment.
func NewEnviCommand(v VersionInfo, er EnvironmentReader) Command {
	return NewCommand(EnviName, func() string {
		env, err := er.Environment()
		if err != nil {
			return errorLine(EnviName, err)
		}
		var sb strings.Builder
		sb.WriteString("Environment:\n")
		fmt.Fprintf(&sb, "dkeeper.version=%s\n", v.Version())
		fmt.Fprintf(&sb, "host.name=%s\n", env.HostName)
		fmt.Fprintf(&sb, "os.name=%s\n", env.OSName)
		fmt.Fprintf(&sb, "os.arch=%s\n", env.OSArch)
		fmt.Fprintf(&sb, "os.version=%s\n", env.OSVersion)
		fmt.Fprintf(&sb, "cpu.count=%d\n", env.CPUCount)
		fmt.Fprintf(&sb, "user.name=%s\n", env.UserName)
		fmt.Fprintf(&sb, "user.home=%s\n", env.UserHome)
		fmt.Fprintf(&sb, "user.dir=%s\n", env.UserDir)
		fmt.Fprintf(&sb, "user.tmp=%s\n", env.UserTmp)
		return sb.String()
	})
}

// NewDataSizeCommand shows the total size of snapshot and log files in bytes.
func NewDataSizeCommand(dr DiskUsageReader) Command {
	return NewCommand(DataSizeName, func() string {
		snapshots, logs, err := dr.DataDirSizes()
		if err != nil {
			return errorLine(DataSizeName, err)
		}
		return fmt.Sprintf("snapshot_dir_size: %d\nlog_dir_size: %d\n", snapshots, logs)
	})
}

// NewIsReadOnlyCommand responds with "ro" if the node does not vote (observer)
// and "rw" otherwise.
func NewIsReadOnlyCommand(st StatusReader) Command {
	return NewCommand(IsReadOnlyName, func() string {
		if st.Status().IsObserver {
			return "ro"
		}
		return "rw"
	})
}

// NewApiVersionCommand returns the client API version.
func NewApiVersionCommand(v VersionInfo) Command {
	return NewCommand(ApiVersionName, func() string {
		return strconv.Itoa(v.APIVersion())
	})
}
