package fourlw

// --------------------------------------------------------------------------
// Capabilities of the coordination service
// --------------------------------------------------------------------------

/*
	Every command captures only the capability it reads or triggers. The keeper
	facade implements all of them (see the Keeper interface at the bottom),
	tests use small fakes instead.
*/

// VersionInfo provides the build version and the client API version.
type VersionInfo interface {
	Version() string
	APIVersion() int
}

// StatusReader provides the role of the node and connection level gauges.
type StatusReader interface {
	Status() Status
}

// ServerStatsReader provides the accumulated request statistics of the server.
type ServerStatsReader interface {
	ServerStats() ServerStats
	ResetServerStats()
}

// ConnectionReader lists the open client connections.
type ConnectionReader interface {
	Connections() []ConnectionInfo
	ResetConnectionStats()
}

// StorageReader provides aggregated counters of the znode tree and the watch tables.
type StorageReader interface {
	StorageStats() StorageStats
}

// WatchReader provides the watch tables.
type WatchReader interface {
	// WatchesBySession maps session ids to the watched paths.
	WatchesBySession() map[int64][]string
	// WatchesByPath maps watched paths to the watching session ids.
	WatchesByPath() map[string][]int64
}

// SessionReader provides the sessions and their ephemeral nodes.
type SessionReader interface {
	IsLeader() bool
	Sessions() []int64
	EphemeralsBySession() map[int64][]string
}

// ConfigReader provides the effective configuration as ordered key value pairs.
type ConfigReader interface {
	Settings() []Setting
}

// EnvironmentReader provides details about the serving process and host.
type EnvironmentReader interface {
	Environment() (Environment, error)
	FileDescriptors() (open, max int64, err error)
}

// DiskUsageReader provides the on disk size of the snapshot and log directories.
type DiskUsageReader interface {
	DataDirSizes() (snapshotBytes, logBytes int64, err error)
}

// LogInfoReader provides the position of the raft log.
type LogInfoReader interface {
	LogInfo() (LogInfo, error)
}

// SnapshotTrigger schedules a snapshot. It returns the last committed log
// index the snapshot will cover and does not wait for the snapshot.
type SnapshotTrigger interface {
	CreateSnapshot() (uint64, error)
}

// LeadershipController asks the consensus layer to move leadership.
// Both calls only hand the request over, the raft layer may ignore them.
type LeadershipController interface {
	RequestLeadership() error
	YieldLeadership() error
}

// RecoveryTrigger forces the node into recovery.
type RecoveryTrigger interface {
	ForceRecovery() error
}

// Maintainer triggers maintenance tasks on the local node.
type Maintainer interface {
	RecalculateStats() error
	ReleaseResources() error
}

// FeatureFlagReader lists all known feature flags and whether they are enabled.
type FeatureFlagReader interface {
	FeatureFlags() []FeatureFlag
}

// ProfileEventReader lists the profiling event counters.
type ProfileEventReader interface {
	ProfileEvents() []ProfileEvent
}

// MemoryProfiler controls the heap profiler of the process.
type MemoryProfiler interface {
	MemoryStats() string
	FlushHeapProfile() (path string, err error)
	EnableHeapProfiling() error
	DisableHeapProfiling() error
}

// Keeper is the complete coordination service facade the catalog is built from.
type Keeper interface {
	AllowListSource
	VersionInfo
	StatusReader
	ServerStatsReader
	ConnectionReader
	StorageReader
	WatchReader
	SessionReader
	ConfigReader
	EnvironmentReader
	DiskUsageReader
	LogInfoReader
	SnapshotTrigger
	LeadershipController
	RecoveryTrigger
	Maintainer
	FeatureFlagReader
	ProfileEventReader
	MemoryProfiler
}

// --------------------------------------------------------------------------
// Value types
// --------------------------------------------------------------------------

// Role is the role of the node in the quorum as reported to operators.
type Role string

const (
	RoleLeader     Role = "leader"
	RoleFollower   Role = "follower"
	RoleObserver   Role = "observer"
	RoleStandalone Role = "standalone"
	RoleNotServing Role = "not serving"
)

// Status is a snapshot of the role and gauges of the node.
type Status struct {
	Role                Role
	HasLeader           bool
	IsLeader            bool
	IsObserver          bool
	AliveConnections    int64
	OutstandingRequests int64
	LastZxid            uint64
	Followers           int64 // only meaningful on the leader
	SyncedFollowers     int64 // only meaningful on the leader
}

// ServerStats are the request statistics accumulated since the last reset.
// Latencies are in milliseconds.
type ServerStats struct {
	MinLatency      int64
	AvgLatency      int64
	MaxLatency      int64
	PacketsReceived int64
	PacketsSent     int64
}

// ConnectionInfo is a snapshot of a single client connection.
type ConnectionInfo struct {
	Remote          string
	PacketsReceived int64
	PacketsSent     int64

	// the fields below are only valid if SessionID != 0
	SessionID        int64
	LastOperation    string
	EstablishedMs    int64 // unix millis
	SessionTimeoutMs int64
	LastCxid         int64
	LastZxid         int64
	LastResponseMs   int64 // unix millis
	LastLatency      int64
	MinLatency       int64
	AvgLatency       int64
	MaxLatency       int64
}

// StorageStats are aggregated counters of the znode tree and the watch tables.
type StorageStats struct {
	NodeCount           int64
	WatchCount          int64
	WatchedPaths        int64
	SessionsWithWatches int64
	EphemeralsCount     int64
	ApproximateDataSize int64
	LatestSnapshotSize  int64
}

// Setting is a single configuration entry.
type Setting struct {
	Key   string
	Value string
}

// Environment describes the serving process.
type Environment struct {
	HostName  string
	OSName    string
	OSArch    string
	OSVersion string
	CPUCount  int
	UserName  string
	UserHome  string
	UserDir   string
	UserTmp   string
}

// LogInfo is the position of the raft log of the local replica.
type LogInfo struct {
	FirstLogIdx           uint64
	FirstLogTerm          uint64
	LastLogIdx            uint64
	LastLogTerm           uint64
	LastCommittedIdx      uint64
	LeaderCommittedLogIdx uint64
	TargetCommittedLogIdx uint64
	LastSnapshotIdx       uint64
}

// FeatureFlag is a named feature and its state.
type FeatureFlag struct {
	Name    string
	Enabled bool
}

// ProfileEvent is a named event counter.
type ProfileEvent struct {
	Name        string
	Value       uint64
	Description string
}
