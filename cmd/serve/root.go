package serve

import (
	"fmt"
	"strconv"
	"strings"

	cmdUtil "github.com/ValentinKolb/dKeeper/cmd/util"
	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/ValentinKolb/dKeeper/lib/keeper"
	"github.com/ValentinKolb/dKeeper/rpc/common"
	"github.com/ValentinKolb/dKeeper/rpc/server"
	"github.com/ValentinKolb/dKeeper/rpc/transport"
	"github.com/ValentinKolb/dKeeper/rpc/transport/tcp"
	"github.com/ValentinKolb/dKeeper/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a dKeeper server",
		Long:    `Start a dKeeper server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DKEEPER_<flag> (e.g. DKEEPER_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "shard-id"
	ServeCmd.PersistentFlags().Uint64(key, 1, cmdUtil.WrapString("ShardID is the id of the raft shard replicating the namespace"))

	key = "replica-id"
	ServeCmd.PersistentFlags().Uint64(key, 0, cmdUtil.WrapString("ReplicaID is the unique numeric identifier of this node (the server id), it must be listed in the cluster members"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("ClusterMembers is a comma-separated list of the initial voting replicas in the format '1=localhost:63001,2=localhost:63002,...'"))

	key = "raft-address"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("RaftAddress of this node, only needed for nodes joining an existing shard"))

	key = "join"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Join an existing shard instead of bootstrapping it with the cluster members. The node must have been added to the shard before"))

	key = "non-voting"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Run as a non-voting replica (observer), it serves reads but does not vote"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value*1) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10000, cmdUtil.WrapString("SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5000, cmdUtil.WrapString("CompactionOverhead defines the number of log entries to keep after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory used for storing the raft log and the snapshots"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout of replicated requests in seconds"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:2181", cmdUtil.WrapString("The address of the client port (e.g. localhost:2181, /tmp/dkeeper.sock, ...)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Requests handled concurrently per connection. With 1 the requests of a session are answered in order"))

	key = "transport-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time (in seconds, only for tcp)"))

	key = "min-session-timeout"
	ServeCmd.PersistentFlags().Int64(key, 4000, cmdUtil.WrapString("The minimum session timeout in milliseconds a client can negotiate"))

	key = "max-session-timeout"
	ServeCmd.PersistentFlags().Int64(key, 40000, cmdUtil.WrapString("The maximum session timeout in milliseconds a client can negotiate"))

	key = "dead-session-check-period"
	ServeCmd.PersistentFlags().Int64(key, 500, cmdUtil.WrapString("How often expired sessions are closed, in milliseconds (0 disables the expiry)"))

	key = "four-letter-word-allow-list"
	ServeCmd.PersistentFlags().String(key, fourlw.DefaultAllowList, cmdUtil.WrapString("Comma separated list of the enabled four letter words, or * for all"))

	key = "feature-flags"
	ServeCmd.PersistentFlags().String(key, keeper.DefaultFeatures, cmdUtil.WrapString("Comma separated list of the enabled features (filtered_list, remove_recursive, piggyback_watch_events)"))

	key = "heap-profile-dir"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Directory of the heap profiles written by the jmfp command (defaults to the data dir)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.ShardID = viper.GetUint64("shard-id")
	serveCmdConfig.ReplicaID = viper.GetUint64("replica-id")
	serveCmdConfig.RaftAddr = viper.GetString("raft-address")
	serveCmdConfig.Join = viper.GetBool("join")
	serveCmdConfig.NonVoting = viper.GetBool("non-voting")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers-per-conn"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}
	serveCmdConfig.MinSessionTimeoutMs = viper.GetInt64("min-session-timeout")
	serveCmdConfig.MaxSessionTimeoutMs = viper.GetInt64("max-session-timeout")
	serveCmdConfig.DeadSessionCheckPeriodMs = viper.GetInt64("dead-session-check-period")
	serveCmdConfig.FourLetterWordAllowList = viper.GetString("four-letter-word-allow-list")
	serveCmdConfig.FeatureFlags = viper.GetString("feature-flags")
	serveCmdConfig.HeapProfileDir = viper.GetString("heap-profile-dir")
	if serveCmdConfig.HeapProfileDir == "" {
		serveCmdConfig.HeapProfileDir = serveCmdConfig.DataDir
	}

	if err := common.ValidateLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	if serveCmdConfig.ReplicaID == 0 {
		return fmt.Errorf("ReplicaID is required and must not be 0")
	}

	if serveCmdConfig.MinSessionTimeoutMs > serveCmdConfig.MaxSessionTimeoutMs {
		return fmt.Errorf("min session timeout %d ms exceeds the max session timeout %d ms",
			serveCmdConfig.MinSessionTimeoutMs, serveCmdConfig.MaxSessionTimeoutMs)
	}

	// parse cluster members
	members, err := parseClusterMembers(viper.GetString("cluster-members"))
	if err != nil {
		return err
	}
	serveCmdConfig.ClusterMembers = members

	// joining nodes get the members from the shard, all others need their own address
	if serveCmdConfig.Join {
		if serveCmdConfig.RaftAddr == "" {
			return fmt.Errorf("raft-address is required to join a shard")
		}
	} else if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica ID %d in cluster members", serveCmdConfig.ReplicaID)
	}

	return nil
}

// parseClusterMembers parses the 'ID=address,...' list of the initial members
func parseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	if strings.TrimSpace(s) == "" {
		return members, nil
	}
	for _, member := range strings.Split(s, ",") {
		id, addr, ok := strings.Cut(strings.TrimSpace(member), "=")
		if !ok || addr == "" {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		replicaID, err := strconv.ParseUint(id, 10, 64)
		if err != nil || replicaID == 0 {
			return nil, fmt.Errorf("invalid replica ID %s: expected a positive number", id)
		}
		if _, dup := members[replicaID]; dup {
			return nil, fmt.Errorf("duplicate replica ID %d in cluster members", replicaID)
		}
		members[replicaID] = addr
	}
	return members, nil
}

// run starts the dKeeper server
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "tcp":
		t = tcp.NewTCPDefaultServerTransport()
	case "unix":
		t = unix.NewUnixDefaultServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dkeeper")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
