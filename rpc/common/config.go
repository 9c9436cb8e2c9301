package common

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		IsNonVoting:        c.NonVoting,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.LogDir(),
		NodeHostDir:    c.SnapshotDir(),
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.RaftAddress(),
	}
}

// LogDir is the directory of the raft write ahead log
func (c *ServerConfig) LogDir() string {
	return filepath.Join(c.DataDir, "wal")
}

// SnapshotDir is the directory of the node host, dragonboat keeps the snapshots there
func (c *ServerConfig) SnapshotDir() string {
	return filepath.Join(c.DataDir, "nodehost")
}

// RaftAddress is the raft address of this replica
func (c *ServerConfig) RaftAddress() string {
	if c.RaftAddr != "" {
		return c.RaftAddr
	}
	return c.ClusterMembers[c.ReplicaID]
}

// --------------------------------------------------------------------------
// Transport configuration structs
// --------------------------------------------------------------------------

// SocketConf holds the socket buffer sizes in bytes, 0 keeps the OS default
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds the tcp specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ServerTransportConfig configures the client port of the server
type ServerTransportConfig struct {
	Endpoint string
	// WorkersPerConn limits the concurrently handled requests of one connection.
	// With 1 the requests of a session are answered in order.
	WorkersPerConn int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a dKeeper node.
type ServerConfig struct {
	// Dragonboat parameters
	ShardID            uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	RaftAddr           string // only needed for replicas joining an existing shard
	Join               bool
	NonVoting          bool
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string

	// Request timeout
	TimeoutSecond int64

	// Client port
	Transport ServerTransportConfig

	// Sessions
	MinSessionTimeoutMs      int64
	MaxSessionTimeoutMs      int64
	DeadSessionCheckPeriodMs int64

	// Admin commands and features
	FourLetterWordAllowList string
	FeatureFlags            string
	HeapProfileDir          string

	// Logging configuration
	LogLevel string
}

// Timeout returns the request timeout as a duration
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Node Identity
	addSection("Node Identity")
	addField("RAFT Address", c.RaftAddress())
	addField("Shard ID", strconv.FormatUint(c.ShardID, 10))
	addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
	addField("Non Voting", fmt.Sprintf("%t", c.NonVoting))

	// RAFT parameters
	addSection("RAFT Parameters")
	addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
	addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
	addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
	addField("Check Quorum", fmt.Sprintf("%t", true))
	addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
	addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Log Directory", c.LogDir())
	addField("Snapshot Directory", c.SnapshotDir())

	// Sessions
	addSection("Sessions")
	addField("Min Session Timeout", fmt.Sprintf("%d ms", c.MinSessionTimeoutMs))
	addField("Max Session Timeout", fmt.Sprintf("%d ms", c.MaxSessionTimeoutMs))
	addField("Dead Session Check", fmt.Sprintf("%d ms", c.DeadSessionCheckPeriodMs))

	// Admin
	addSection("Administration")
	addField("4lw Allow List", c.FourLetterWordAllowList)
	addField("Feature Flags", c.FeatureFlags)

	// Cluster configuration
	addSection("Cluster")
	sb.WriteString("  Initial Cluster Members:\n")
	for _, k := range c.sortedMembers() {
		sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
	}
	return sb.String()
}

// Settings returns the effective configuration as rendered by the conf command.
func (c *ServerConfig) Settings() []fourlw.Setting {
	var settings []fourlw.Setting
	add := func(key, value string) {
		settings = append(settings, fourlw.Setting{Key: key, Value: value})
	}

	add("server_id", strconv.FormatUint(c.ReplicaID, 10))
	add("shard_id", strconv.FormatUint(c.ShardID, 10))
	add("endpoint", c.Transport.Endpoint)
	add("raft_address", c.RaftAddress())
	add("data_dir", c.DataDir)
	add("log_storage_path", c.LogDir())
	add("snapshot_storage_path", c.SnapshotDir())
	add("rtt_millisecond", strconv.FormatUint(c.RTTMillisecond, 10))
	add("election_rtt", strconv.FormatUint(c.RTTMillisecond*electionRTTFactor, 10))
	add("heartbeat_rtt", strconv.FormatUint(c.RTTMillisecond*heartbeatRTTFactor, 10))
	add("snapshot_entries", strconv.FormatUint(c.SnapshotEntries, 10))
	add("compaction_overhead", strconv.FormatUint(c.CompactionOverhead, 10))
	add("operation_timeout_ms", strconv.FormatInt(c.TimeoutSecond*1000, 10))
	add("min_session_timeout_ms", strconv.FormatInt(c.MinSessionTimeoutMs, 10))
	add("max_session_timeout_ms", strconv.FormatInt(c.MaxSessionTimeoutMs, 10))
	add("dead_session_check_period_ms", strconv.FormatInt(c.DeadSessionCheckPeriodMs, 10))
	add("four_letter_word_allow_list", c.FourLetterWordAllowList)
	add("feature_flags", c.FeatureFlags)
	add("log_level", c.LogLevel)

	members := make([]string, 0, len(c.ClusterMembers))
	for _, k := range c.sortedMembers() {
		members = append(members, fmt.Sprintf("%d=%s", k, c.ClusterMembers[k]))
	}
	add("cluster_members", strings.Join(members, ","))
	return settings
}

func (c *ServerConfig) sortedMembers() []uint64 {
	keys := make([]uint64, 0, len(c.ClusterMembers))
	for k := range c.ClusterMembers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig configures the connections of a client
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
