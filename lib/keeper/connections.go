package keeper

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Connection table
// --------------------------------------------------------------------------

// connection is a client connection as seen by the keeper
type connection struct {
	id          uint64
	remote      string
	established time.Time
	stats       *requestStats
	cxid        atomic.Int64

	mu           sync.Mutex
	sessionID    int64
	lastOp       string
	lastZxid     uint64
	lastResponse time.Time
	lastLatency  int64
}

// connectionTable maps transport connection ids to connections
type connectionTable struct {
	conns *xsync.MapOf[uint64, *connection]
}

func newConnectionTable() *connectionTable {
	return &connectionTable{conns: xsync.NewMapOf[uint64, *connection]()}
}

func (t *connectionTable) open(id uint64, remote string) {
	t.conns.Store(id, &connection{
		id:          id,
		remote:      remote,
		established: time.Now(),
		stats:       newRequestStats(),
		lastOp:      "NA",
	})
}

func (t *connectionTable) close(id uint64) (*connection, bool) {
	return t.conns.LoadAndDelete(id)
}

func (t *connectionTable) get(id uint64) (*connection, bool) {
	return t.conns.Load(id)
}

func (t *connectionTable) size() int64 {
	return int64(t.conns.Size())
}

// bind associates a session with a connection
func (t *connectionTable) bind(id uint64, sessionID int64) {
	if c, ok := t.conns.Load(id); ok {
		c.mu.Lock()
		c.sessionID = sessionID
		c.mu.Unlock()
	}
}

// received records an incoming request of connection id
func (t *connectionTable) received(id uint64) {
	if c, ok := t.conns.Load(id); ok {
		c.stats.received.Inc(1)
		c.cxid.Add(1)
	}
}

// completed records the response to a request of connection id
func (t *connectionTable) completed(id uint64, op string, zxid uint64, latency int64) {
	c, ok := t.conns.Load(id)
	if !ok {
		return
	}
	c.stats.sent.Inc(1)
	c.stats.observe(latency)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastOp = op
	if zxid > c.lastZxid {
		c.lastZxid = zxid
	}
	c.lastResponse = time.Now()
	c.lastLatency = latency
}

func (t *connectionTable) resetStats() {
	t.conns.Range(func(_ uint64, c *connection) bool {
		c.stats.reset()
		c.mu.Lock()
		c.lastOp = "NA"
		c.lastLatency = 0
		c.lastResponse = time.Time{}
		c.mu.Unlock()
		return true
	})
}

// list returns a snapshot of all connections ordered by id
func (t *connectionTable) list(sessionTimeout func(int64) int64) []fourlw.ConnectionInfo {
	var conns []*connection
	t.conns.Range(func(_ uint64, c *connection) bool {
		conns = append(conns, c)
		return true
	})
	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })

	infos := make([]fourlw.ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		stats := c.stats.snapshot()
		c.mu.Lock()
		info := fourlw.ConnectionInfo{
			Remote:          c.remote,
			PacketsReceived: stats.PacketsReceived,
			PacketsSent:     stats.PacketsSent,
			SessionID:       c.sessionID,
			LastOperation:   c.lastOp,
			EstablishedMs:   c.established.UnixMilli(),
			LastCxid:        c.cxid.Load(),
			LastZxid:        int64(c.lastZxid),
			LastLatency:     c.lastLatency,
			MinLatency:      stats.MinLatency,
			AvgLatency:      stats.AvgLatency,
			MaxLatency:      stats.MaxLatency,
		}
		if !c.lastResponse.IsZero() {
			info.LastResponseMs = c.lastResponse.UnixMilli()
		}
		c.mu.Unlock()
		if info.SessionID != 0 {
			info.SessionTimeoutMs = sessionTimeout(info.SessionID)
		}
		infos = append(infos, info)
	}
	return infos
}
