package keeper

import (
	"sort"

	"github.com/ValentinKolb/dKeeper/lib/keeper/fsm"
	"github.com/puzpuzpuz/xsync/v3"
)

// WatchEvent is a triggered watch delivered to the session that set it.
type WatchEvent struct {
	Type string
	Path string
}

type watchKind uint8

const (
	watchData     watchKind = iota // set by get and exists
	watchChildren                  // set by children
)

type watchKey struct {
	path string
	kind watchKind
}

// --------------------------------------------------------------------------
// Watch manager
// --------------------------------------------------------------------------

// watchManager holds the one-shot watches of the sessions owned by this node.
// A triggered watch is removed and its event handed to deliver.
type watchManager struct {
	watches *xsync.MapOf[watchKey, *xsync.MapOf[int64, struct{}]]
	deliver func(sessionID int64, ev WatchEvent)
}

func newWatchManager(deliver func(sessionID int64, ev WatchEvent)) *watchManager {
	return &watchManager{
		watches: xsync.NewMapOf[watchKey, *xsync.MapOf[int64, struct{}]](),
		deliver: deliver,
	}
}

func (m *watchManager) add(sessionID int64, path string, kind watchKind) {
	sessions, _ := m.watches.LoadOrCompute(watchKey{path: path, kind: kind}, func() *xsync.MapOf[int64, struct{}] {
		return xsync.NewMapOf[int64, struct{}]()
	})
	sessions.Store(sessionID, struct{}{})
}

// trigger fires the watches matching the changes and returns the number of delivered events
func (m *watchManager) trigger(changes []fsm.Change) int {
	fired := 0
	for _, c := range changes {
		var kinds []watchKind
		switch c.Type {
		case fsm.ChangeCreated, fsm.ChangeDataChanged:
			kinds = []watchKind{watchData}
		case fsm.ChangeDeleted:
			kinds = []watchKind{watchData, watchChildren}
		case fsm.ChangeChildrenChanged:
			kinds = []watchKind{watchChildren}
		}
		for _, kind := range kinds {
			sessions, ok := m.watches.LoadAndDelete(watchKey{path: c.Path, kind: kind})
			if !ok {
				continue
			}
			sessions.Range(func(id int64, _ struct{}) bool {
				m.deliver(id, WatchEvent{Type: c.Type.String(), Path: c.Path})
				fired++
				return true
			})
		}
	}
	return fired
}

// removeSession drops all watches of a session
func (m *watchManager) removeSession(sessionID int64) {
	m.watches.Range(func(key watchKey, sessions *xsync.MapOf[int64, struct{}]) bool {
		sessions.Delete(sessionID)
		m.watches.Compute(key, func(old *xsync.MapOf[int64, struct{}], loaded bool) (*xsync.MapOf[int64, struct{}], bool) {
			return old, !loaded || old.Size() == 0
		})
		return true
	})
}

// bySession maps sessions to their watched paths (sorted, without duplicates)
func (m *watchManager) bySession() map[int64][]string {
	seen := make(map[int64]map[string]struct{})
	m.watches.Range(func(key watchKey, sessions *xsync.MapOf[int64, struct{}]) bool {
		sessions.Range(func(id int64, _ struct{}) bool {
			if seen[id] == nil {
				seen[id] = make(map[string]struct{})
			}
			seen[id][key.path] = struct{}{}
			return true
		})
		return true
	})
	res := make(map[int64][]string, len(seen))
	for id, paths := range seen {
		res[id] = sortedKeys(paths)
	}
	return res
}

// byPath maps watched paths to the watching sessions (sorted, without duplicates)
func (m *watchManager) byPath() map[string][]int64 {
	seen := make(map[string]map[int64]struct{})
	m.watches.Range(func(key watchKey, sessions *xsync.MapOf[int64, struct{}]) bool {
		sessions.Range(func(id int64, _ struct{}) bool {
			if seen[key.path] == nil {
				seen[key.path] = make(map[int64]struct{})
			}
			seen[key.path][id] = struct{}{}
			return true
		})
		return true
	})
	res := make(map[string][]int64, len(seen))
	for path, ids := range seen {
		list := make([]int64, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		res[path] = list
	}
	return res
}

// stats returns the number of watches, watched paths and watching sessions
func (m *watchManager) stats() (watches, paths, sessions int64) {
	pathSet := make(map[string]struct{})
	sessionSet := make(map[int64]struct{})
	m.watches.Range(func(key watchKey, set *xsync.MapOf[int64, struct{}]) bool {
		set.Range(func(id int64, _ struct{}) bool {
			watches++
			pathSet[key.path] = struct{}{}
			sessionSet[id] = struct{}{}
			return true
		})
		return true
	})
	return watches, int64(len(pathSet)), int64(len(sessionSet))
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
