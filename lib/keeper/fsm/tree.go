package fsm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// --------------------------------------------------------------------------
// Changes (consumed by the watch manager)
// --------------------------------------------------------------------------

// ChangeType is the kind of modification applied to a path.
type ChangeType uint8

const (
	ChangeCreated ChangeType = iota + 1
	ChangeDeleted
	ChangeDataChanged
	ChangeChildrenChanged
)

func (ct ChangeType) String() string {
	switch ct {
	case ChangeCreated:
		return "NodeCreated"
	case ChangeDeleted:
		return "NodeDeleted"
	case ChangeDataChanged:
		return "NodeDataChanged"
	case ChangeChildrenChanged:
		return "NodeChildrenChanged"
	default:
		return "None"
	}
}

// Change is a single modification of a path.
type Change struct {
	Type ChangeType
	Path string
}

// --------------------------------------------------------------------------
// Data Tree
// --------------------------------------------------------------------------

// node is a single znode. Children hold the base names.
type node struct {
	data           []byte
	version        int32
	czxid          uint64
	mzxid          uint64
	ctime          int64
	mtime          int64
	ephemeralOwner int64
	children       map[string]struct{}
}

func (n *node) stat() Stat {
	return Stat{
		Czxid:          n.czxid,
		Mzxid:          n.mzxid,
		Ctime:          n.ctime,
		Mtime:          n.mtime,
		Version:        n.version,
		EphemeralOwner: n.ephemeralOwner,
		DataLength:     int32(len(n.data)),
		NumChildren:    int32(len(n.children)),
	}
}

// DataTree is the replicated znode hierarchy together with the sessions.
//
// All mutations are applied by the raft apply goroutine, reads may happen
// concurrently from lookups. The aggregated counters are maintained
// incrementally and can be rebuilt with Recalculate.
type DataTree struct {
	mu         sync.RWMutex
	nodes      map[string]*node
	sessions   map[int64]int64 // session id -> timeout in ms
	ephemerals map[int64]map[string]struct{}
	lastZxid   uint64

	nodeCount      int64
	ephemeralCount int64
	dataSize       int64
}

// NewDataTree creates a tree that only holds the root node.
func NewDataTree() *DataTree {
	t := &DataTree{
		nodes:      make(map[string]*node),
		sessions:   make(map[int64]int64),
		ephemerals: make(map[int64]map[string]struct{}),
	}
	t.nodes["/"] = &node{children: make(map[string]struct{})}
	t.nodeCount = 1
	t.dataSize = int64(len("/"))
	return t
}

// ValidatePath checks that path is an absolute, normalized znode path.
func ValidatePath(path string) error {
	if path == "" || path[0] != '/' {
		return fmt.Errorf("%w: path %q must start with /", ErrBadArguments, path)
	}
	if path == "/" {
		return nil
	}
	if strings.HasSuffix(path, "/") {
		return fmt.Errorf("%w: path %q must not end with /", ErrBadArguments, path)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: path %q contains a null character", ErrBadArguments, path)
	}
	for _, part := range strings.Split(path[1:], "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: path %q has an invalid component %q", ErrBadArguments, path, part)
		}
	}
	return nil
}

// ParentOf returns the parent path of a validated, non root path.
func ParentOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

func baseOf(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// --------------------------------------------------------------------------
// Mutations (raft apply goroutine)
// --------------------------------------------------------------------------

// OpenSession registers a session. Opening an existing session only updates the timeout.
func (t *DataTree) OpenSession(id, timeoutMs int64, zxid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = timeoutMs
	t.advance(zxid)
}

// CloseSession removes a session together with its ephemeral nodes.
func (t *DataTree) CloseSession(id int64, zxid uint64) ([]Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance(zxid)

	if _, ok := t.sessions[id]; !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrNoSession, uint64(id))
	}
	delete(t.sessions, id)

	paths := make([]string, 0, len(t.ephemerals[id]))
	for path := range t.ephemerals[id] {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var changes []Change
	for _, path := range paths {
		changes = append(changes, t.remove(path)...)
	}
	delete(t.ephemerals, id)
	return changes, nil
}

// Create adds a node. A non zero owner makes the node ephemeral.
func (t *DataTree) Create(path string, data []byte, owner int64, timeMs int64, zxid uint64) ([]Change, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if path == "/" {
		return nil, fmt.Errorf("%w: /", ErrNodeExists)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance(zxid)

	if owner != 0 {
		if _, ok := t.sessions[owner]; !ok {
			return nil, fmt.Errorf("%w: 0x%x", ErrNoSession, uint64(owner))
		}
	}
	parentPath := ParentOf(path)
	parent, ok := t.nodes[parentPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoNode, parentPath)
	}
	if parent.ephemeralOwner != 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChildrenForEphemerals, parentPath)
	}
	if _, exists := t.nodes[path]; exists {
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, path)
	}

	n := &node{
		data:           append([]byte(nil), data...),
		czxid:          zxid,
		mzxid:          zxid,
		ctime:          timeMs,
		mtime:          timeMs,
		ephemeralOwner: owner,
		children:       make(map[string]struct{}),
	}
	t.nodes[path] = n
	parent.children[baseOf(path)] = struct{}{}
	t.nodeCount++
	t.dataSize += int64(len(path) + len(n.data))
	if owner != 0 {
		if t.ephemerals[owner] == nil {
			t.ephemerals[owner] = make(map[string]struct{})
		}
		t.ephemerals[owner][path] = struct{}{}
		t.ephemeralCount++
	}

	return []Change{{Type: ChangeCreated, Path: path}, {Type: ChangeChildrenChanged, Path: parentPath}}, nil
}

// Delete removes a node. With recursive the whole subtree is removed,
// otherwise a node with children can not be deleted.
func (t *DataTree) Delete(path string, version int32, recursive bool, zxid uint64) ([]Change, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if path == "/" {
		return nil, fmt.Errorf("%w: the root node can not be deleted", ErrBadArguments)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance(zxid)

	n, ok := t.nodes[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	if version != AnyVersion && version != n.version {
		return nil, fmt.Errorf("%w: %s has version %d, expected %d", ErrBadVersion, path, n.version, version)
	}
	if len(n.children) > 0 && !recursive {
		return nil, fmt.Errorf("%w: %s", ErrNotEmpty, path)
	}
	return t.remove(path), nil
}

// SetData replaces the data of a node and increments its version.
func (t *DataTree) SetData(path string, data []byte, version int32, timeMs int64, zxid uint64) (Stat, []Change, error) {
	if err := ValidatePath(path); err != nil {
		return Stat{}, nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance(zxid)

	n, ok := t.nodes[path]
	if !ok {
		return Stat{}, nil, fmt.Errorf("%w: %s", ErrNoNode, path)
	}
	if version != AnyVersion && version != n.version {
		return Stat{}, nil, fmt.Errorf("%w: %s has version %d, expected %d", ErrBadVersion, path, n.version, version)
	}

	t.dataSize += int64(len(data) - len(n.data))
	n.data = append([]byte(nil), data...)
	n.version++
	n.mzxid = zxid
	n.mtime = timeMs
	return n.stat(), []Change{{Type: ChangeDataChanged, Path: path}}, nil
}

// remove deletes path and its subtree, children first. The caller holds the lock.
func (t *DataTree) remove(path string) []Change {
	n, ok := t.nodes[path]
	if !ok {
		return nil
	}

	var changes []Change
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sub := t.remove(childPath(path, name))
		// only the top most parent reports a children change
		for _, c := range sub {
			if c.Type == ChangeDeleted {
				changes = append(changes, c)
			}
		}
	}

	delete(t.nodes, path)
	t.nodeCount--
	t.dataSize -= int64(len(path) + len(n.data))
	if n.ephemeralOwner != 0 {
		if owned := t.ephemerals[n.ephemeralOwner]; owned != nil {
			delete(owned, path)
			if len(owned) == 0 {
				delete(t.ephemerals, n.ephemeralOwner)
			}
		}
		t.ephemeralCount--
	}

	parentPath := ParentOf(path)
	if parent, ok := t.nodes[parentPath]; ok {
		delete(parent.children, baseOf(path))
	}
	return append(changes,
		Change{Type: ChangeDeleted, Path: path},
		Change{Type: ChangeChildrenChanged, Path: parentPath})
}

// advance moves the last applied zxid forward, it never goes back
func (t *DataTree) advance(zxid uint64) {
	if zxid > t.lastZxid {
		t.lastZxid = zxid
	}
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Get returns a copy of the data and the stat of a node.
func (t *DataTree) Get(path string) ([]byte, Stat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[path]
	if !ok {
		return nil, Stat{}, false
	}
	return append([]byte(nil), n.data...), n.stat(), true
}

// Exists returns the stat of a node.
func (t *DataTree) Exists(path string) (Stat, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[path]
	if !ok {
		return Stat{}, false
	}
	return n.stat(), true
}

// Children returns the sorted base names of the children of a node.
func (t *DataTree) Children(path string, filter ListFilter) ([]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[path]
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		if filter != ListAll {
			ephemeral := t.nodes[childPath(path, name)].ephemeralOwner != 0
			if (filter == ListEphemeralOnly) != ephemeral {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, true
}

// Stats returns the aggregated counters.
func (t *DataTree) Stats() TreeStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statsLocked()
}

func (t *DataTree) statsLocked() TreeStats {
	return TreeStats{
		NodeCount:           t.nodeCount,
		EphemeralsCount:     t.ephemeralCount,
		ApproximateDataSize: t.dataSize,
		SessionCount:        int64(len(t.sessions)),
		LastZxid:            t.lastZxid,
	}
}

// Sessions returns all sessions and the ephemeral nodes they own.
func (t *DataTree) Sessions() SessionsDump {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dump := SessionsDump{
		Sessions:   make(map[int64]int64, len(t.sessions)),
		Ephemerals: make(map[int64][]string, len(t.ephemerals)),
	}
	for id, timeout := range t.sessions {
		dump.Sessions[id] = timeout
	}
	for id, owned := range t.ephemerals {
		paths := make([]string, 0, len(owned))
		for path := range owned {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		dump.Ephemerals[id] = paths
	}
	return dump
}

// Recalculate rebuilds the aggregated counters and the ephemeral index from the nodes.
func (t *DataTree) Recalculate() TreeStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recalculateLocked()
	return t.statsLocked()
}

func (t *DataTree) recalculateLocked() {
	t.nodeCount, t.ephemeralCount, t.dataSize = 0, 0, 0
	t.ephemerals = make(map[int64]map[string]struct{})
	for path, n := range t.nodes {
		t.nodeCount++
		t.dataSize += int64(len(path) + len(n.data))
		if n.ephemeralOwner != 0 {
			t.ephemeralCount++
			if t.ephemerals[n.ephemeralOwner] == nil {
				t.ephemerals[n.ephemeralOwner] = make(map[string]struct{})
			}
			t.ephemerals[n.ephemeralOwner][path] = struct{}{}
		}
	}
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// snapshotNode is the serialized form of a node, children are derived from the paths
type snapshotNode struct {
	Path           string
	Data           []byte
	Version        int32
	Czxid          uint64
	Mzxid          uint64
	Ctime          int64
	Mtime          int64
	EphemeralOwner int64
}

// treeSnapshot is a point in time copy of the tree
type treeSnapshot struct {
	Nodes    []snapshotNode // sorted by path, parents come first
	Sessions map[int64]int64
	LastZxid uint64
}

// snapshot copies the tree under the read lock
func (t *DataTree) snapshot() *treeSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := &treeSnapshot{
		Nodes:    make([]snapshotNode, 0, len(t.nodes)),
		Sessions: make(map[int64]int64, len(t.sessions)),
		LastZxid: t.lastZxid,
	}
	for path, n := range t.nodes {
		s.Nodes = append(s.Nodes, snapshotNode{
			Path:           path,
			Data:           append([]byte(nil), n.data...),
			Version:        n.version,
			Czxid:          n.czxid,
			Mzxid:          n.mzxid,
			Ctime:          n.ctime,
			Mtime:          n.mtime,
			EphemeralOwner: n.ephemeralOwner,
		})
	}
	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].Path < s.Nodes[j].Path })
	for id, timeout := range t.sessions {
		s.Sessions[id] = timeout
	}
	return s
}

// restore replaces the content of the tree with a snapshot
func (t *DataTree) restore(s *treeSnapshot) error {
	nodes := make(map[string]*node, len(s.Nodes))
	for _, sn := range s.Nodes {
		nodes[sn.Path] = &node{
			data:           sn.Data,
			version:        sn.Version,
			czxid:          sn.Czxid,
			mzxid:          sn.Mzxid,
			ctime:          sn.Ctime,
			mtime:          sn.Mtime,
			ephemeralOwner: sn.EphemeralOwner,
			children:       make(map[string]struct{}),
		}
	}
	if _, ok := nodes["/"]; !ok {
		return fmt.Errorf("snapshot does not contain the root node")
	}
	for path := range nodes {
		if path == "/" {
			continue
		}
		parent, ok := nodes[ParentOf(path)]
		if !ok {
			return fmt.Errorf("snapshot contains orphan node %s", path)
		}
		parent.children[baseOf(path)] = struct{}{}
	}

	sessions := s.Sessions
	if sessions == nil {
		sessions = make(map[int64]int64)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = nodes
	t.sessions = sessions
	t.lastZxid = s.LastZxid
	t.recalculateLocked()
	return nil
}
