package keeper

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/keeper/fsm"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Locally owned sessions
// --------------------------------------------------------------------------

/*
	A session is owned by the node its client talks to. Only the owner tracks
	the heartbeat and proposes the close once the session timed out. If the
	owner dies, a session is taken over as soon as its client reconnects to
	another node. Sessions without any living client on any node stay in the
	tree until an operator closes them.
*/

// session is a client session owned by this node
type session struct {
	id       int64
	timeout  time.Duration
	lastSeen atomic.Int64 // unix nanos

	mu     sync.Mutex
	events []WatchEvent
}

func newSession(id int64, timeout time.Duration) *session {
	s := &session{id: id, timeout: timeout}
	s.touch()
	return s
}

func (s *session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *session) expired(now time.Time) bool {
	return now.UnixNano()-s.lastSeen.Load() > int64(s.timeout)
}

func (s *session) push(ev WatchEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// drain returns and clears the pending watch events
func (s *session) drain() []WatchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events
	s.events = nil
	return events
}

// sessionTable holds the sessions owned by this node
type sessionTable struct {
	sessions *xsync.MapOf[int64, *session]
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: xsync.NewMapOf[int64, *session]()}
}

func (t *sessionTable) expired(now time.Time) []*session {
	var res []*session
	t.sessions.Range(func(_ int64, s *session) bool {
		if s.expired(now) {
			res = append(res, s)
		}
		return true
	})
	sort.Slice(res, func(i, j int) bool { return res[i].id < res[j].id })
	return res
}

// --------------------------------------------------------------------------
// Session lifecycle of the keeper
// --------------------------------------------------------------------------

// session returns the locally owned session, adopting it from the tree if
// the client reconnected from another node
func (k *Keeper) session(sessionID int64) (*session, error) {
	if s, ok := k.sessions.sessions.Load(sessionID); ok {
		s.touch()
		return s, nil
	}
	dump, err := k.sessionsDump()
	if err != nil {
		return nil, err
	}
	timeoutMs, ok := dump.Sessions[sessionID]
	if !ok {
		return nil, fsm.NewError(fsm.RetCNoSession, "session expired or unknown")
	}
	s, _ := k.sessions.sessions.LoadOrStore(sessionID, newSession(sessionID, time.Duration(timeoutMs)*time.Millisecond))
	s.touch()
	log.Infof("Took over session 0x%x", uint64(sessionID))
	return s, nil
}

// deliver hands a watch event to the owning session
func (k *Keeper) deliver(sessionID int64, ev WatchEvent) {
	if s, ok := k.sessions.sessions.Load(sessionID); ok {
		s.push(ev)
	}
}

// sessionTimeoutMs returns the timeout of a locally owned session in ms
func (k *Keeper) sessionTimeoutMs(sessionID int64) int64 {
	if s, ok := k.sessions.sessions.Load(sessionID); ok {
		return s.timeout.Milliseconds()
	}
	return 0
}

// expireSessions closes all locally owned sessions that timed out and returns their number
func (k *Keeper) expireSessions(ctx context.Context, now time.Time) int {
	closed := 0
	for _, s := range k.sessions.expired(now) {
		if _, err := k.write(ctx, fsm.Command{Type: fsm.CommandTCloseSession, SessionID: s.id}); err != nil && !isCode(err, fsm.RetCNoSession) {
			log.Warningf("Failed to expire session 0x%x: %v", uint64(s.id), err)
			continue
		}
		k.forgetSession(s.id)
		k.events.inc(EventSessionsExpired)
		log.Infof("Expired session 0x%x after %s", uint64(s.id), s.timeout)
		closed++
	}
	return closed
}

// forgetSession drops all local state of a session
func (k *Keeper) forgetSession(sessionID int64) {
	k.sessions.sessions.Delete(sessionID)
	k.watches.removeSession(sessionID)
}

// runSessionExpiry checks for dead sessions every period until stop is closed
func (k *Keeper) runSessionExpiry(period time.Duration) {
	defer k.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-k.stop:
			return
		case now := <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), k.cfg.Timeout)
			k.expireSessions(ctx, now)
			cancel()
		}
	}
}
