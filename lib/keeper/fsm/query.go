package fsm

// QueryType defines the possible read-only queries of the state machine.
type QueryType uint8

const (
	QueryTGet         QueryType = iota // Data and stat of a node.
	QueryTExists                       // Stat of a node.
	QueryTChildren                     // Children of a node.
	QueryTStats                        // Aggregated tree statistics.
	QueryTSessions                     // Sessions and their ephemeral nodes.
	QueryTRecalculate                  // Recompute the tree statistics and return them.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTExists:
		return "Exists"
	case QueryTChildren:
		return "Children"
	case QueryTStats:
		return "Stats"
	case QueryTSessions:
		return "Sessions"
	case QueryTRecalculate:
		return "Recalculate"
	default:
		return "Unknown"
	}
}

// ListFilter selects which children a children query returns.
type ListFilter uint8

const (
	ListAll ListFilter = iota
	ListPersistentOnly
	ListEphemeralOnly
)

// Query defines the structure for lookup requests sent via SyncRead or StaleRead
type Query struct {
	Type   QueryType
	Path   string     // empty for tree wide queries
	Filter ListFilter // only used by QueryTChildren
}

// QueryResult is the result of the node queries (get, exists, children).
type QueryResult struct {
	Ok       bool
	Value    []byte
	Stat     Stat
	Children []string
}

// Stat is the metadata of a node.
type Stat struct {
	Czxid          uint64
	Mzxid          uint64
	Ctime          int64
	Mtime          int64
	Version        int32
	EphemeralOwner int64
	DataLength     int32
	NumChildren    int32
}

// TreeStats are the aggregated statistics of the tree.
type TreeStats struct {
	NodeCount           int64
	EphemeralsCount     int64
	ApproximateDataSize int64
	SessionCount        int64
	LastZxid            uint64
	LatestSnapshotSize  int64
}

// SessionsDump lists the sessions with their timeouts and the ephemeral nodes per session.
type SessionsDump struct {
	Sessions   map[int64]int64
	Ephemerals map[int64][]string
}
