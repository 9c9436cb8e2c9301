package fourlw

import (
	"errors"
	"strings"
	"testing"
)

// fakeKeeper implements Keeper with static values
type fakeKeeper struct {
	allowList   string
	status      Status
	stats       ServerStats
	conns       []ConnectionInfo
	storage     StorageStats
	bySession   map[int64][]string
	byPath      map[string][]int64
	sessions    []int64
	ephemerals  map[int64][]string
	logInfo     LogInfo
	fdErr       error
	snapshotErr error

	statsResets int
	connResets  int
	snapshots   int
	leadership  int
	yields      int
	recoveries  int
}

func (f *fakeKeeper) FourLetterWordAllowList() string { return f.allowList }
func (f *fakeKeeper) Version() string                 { return "v1.2.3" }
func (f *fakeKeeper) APIVersion() int                 { return 1 }
func (f *fakeKeeper) Status() Status                  { return f.status }
func (f *fakeKeeper) ServerStats() ServerStats        { return f.stats }
func (f *fakeKeeper) ResetServerStats()               { f.statsResets++ }
func (f *fakeKeeper) Connections() []ConnectionInfo   { return f.conns }
func (f *fakeKeeper) ResetConnectionStats()           { f.connResets++ }
func (f *fakeKeeper) StorageStats() StorageStats      { return f.storage }
func (f *fakeKeeper) WatchesBySession() map[int64][]string {
	return f.bySession
}
func (f *fakeKeeper) WatchesByPath() map[string][]int64 { return f.byPath }
func (f *fakeKeeper) IsLeader() bool                   { return f.status.IsLeader }
func (f *fakeKeeper) Sessions() []int64                { return f.sessions }
func (f *fakeKeeper) EphemeralsBySession() map[int64][]string {
	return f.ephemerals
}
func (f *fakeKeeper) Settings() []Setting {
	return []Setting{{Key: "server_id", Value: "1"}, {Key: "tick_time", Value: "500"}}
}
func (f *fakeKeeper) Environment() (Environment, error) {
	return Environment{HostName: "host-1", OSName: "linux", OSArch: "amd64", CPUCount: 4}, nil
}
func (f *fakeKeeper) FileDescriptors() (int64, int64, error) {
	if f.fdErr != nil {
		return 0, 0, f.fdErr
	}
	return 12, 1024, nil
}
func (f *fakeKeeper) DataDirSizes() (int64, int64, error) { return 100, 200, nil }
func (f *fakeKeeper) LogInfo() (LogInfo, error)           { return f.logInfo, nil }
func (f *fakeKeeper) CreateSnapshot() (uint64, error) {
	if f.snapshotErr != nil {
		return 0, f.snapshotErr
	}
	f.snapshots++
	return 42, nil
}
func (f *fakeKeeper) RequestLeadership() error { f.leadership++; return nil }
func (f *fakeKeeper) YieldLeadership() error   { f.yields++; return nil }
func (f *fakeKeeper) ForceRecovery() error     { f.recoveries++; return nil }
func (f *fakeKeeper) RecalculateStats() error  { return nil }
func (f *fakeKeeper) ReleaseResources() error  { return nil }
func (f *fakeKeeper) FeatureFlags() []FeatureFlag {
	return []FeatureFlag{{Name: "filtered_list", Enabled: true}, {Name: "remove_recursive", Enabled: false}}
}
func (f *fakeKeeper) ProfileEvents() []ProfileEvent {
	return []ProfileEvent{{Name: "CreateRequests", Value: 3, Description: "Number of create requests"}}
}
func (f *fakeKeeper) MemoryStats() string                { return "stats" }
func (f *fakeKeeper) FlushHeapProfile() (string, error) { return "/tmp/heap.prof", nil }
func (f *fakeKeeper) EnableHeapProfiling() error        { return nil }
func (f *fakeKeeper) DisableHeapProfiling() error       { return nil }

// newCatalog registers the full catalog backed by k and publishes it with a wildcard
func newCatalog(t *testing.T, k *fakeKeeper) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterCommands(r, k); err != nil {
		t.Fatalf("RegisterCommands failed: %v", err)
	}
	if err := r.InitializeAllowList(allowList("*")); err != nil {
		t.Fatalf("InitializeAllowList failed: %v", err)
	}
	return r
}

func run(t *testing.T, r *Registry, name string) string {
	t.Helper()
	resp, handled := r.Dispatch([]byte(name))
	if !handled {
		t.Fatalf("%s was not handled", name)
	}
	return resp
}

func TestCatalogRegistersAllCommands(t *testing.T) {
	r := newCatalog(t, &fakeKeeper{})
	for _, name := range []string{
		RuokName, MonitorName, StatResetName, NopName, ConfName, ConsName, ConnStatsResetName,
		ServerStatName, StatName, BriefWatchName, WatchBySessionName, WatchByPathName, DumpName,
		EnviName, DataSizeName, IsReadOnlyName, RecoveryName, ApiVersionName, CreateSnapshotName,
		LogInfoName, RequestLeaderName, RecalculateName, CleanResourcesName, FeatureFlagsName,
		YieldLeadershipName, ProfileEventsName,
	} {
		if !r.IsKnown(MustCode(name)) {
			t.Errorf("%s is not registered", name)
		}
	}
}

func TestDefaultAllowList(t *testing.T) {
	r := NewRegistry()
	if err := RegisterCommands(r, &fakeKeeper{}); err != nil {
		t.Fatal(err)
	}
	if err := r.InitializeAllowList(allowList(DefaultAllowList)); err != nil {
		t.Fatal(err)
	}
	if !r.IsEnabled(MustCode(RuokName)) {
		t.Error("ruok should be enabled by default")
	}
	if r.IsEnabled(MustCode(DumpName)) {
		t.Error("dump should not be enabled by default")
	}
}

func TestRuok(t *testing.T) {
	if got := run(t, newCatalog(t, &fakeKeeper{}), RuokName); got != "imok" {
		t.Errorf("ruok = %q, want imok", got)
	}
}

func TestMonitorPrintsAllKeys(t *testing.T) {
	tests := []struct {
		name          string
		keeper        *fakeKeeper
		wantFollowers bool
		wantFds       bool
	}{
		{name: "fresh follower", keeper: &fakeKeeper{status: Status{Role: RoleFollower, HasLeader: true}}, wantFds: true},
		{name: "leader", keeper: &fakeKeeper{status: Status{Role: RoleLeader, HasLeader: true, IsLeader: true, Followers: 2, SyncedFollowers: 2}}, wantFollowers: true, wantFds: true},
		{name: "no fds", keeper: &fakeKeeper{fdErr: errors.New("unsupported")}},
	}

	keys := []string{
		"zk_version", "zk_avg_latency", "zk_max_latency", "zk_min_latency", "zk_packets_received",
		"zk_packets_sent", "zk_num_alive_connections", "zk_outstanding_requests", "zk_server_state",
		"zk_znode_count", "zk_watch_count", "zk_ephemerals_count", "zk_approximate_data_size",
		"zk_latest_snapshot_size",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(t, newCatalog(t, tt.keeper), MonitorName)
			for _, key := range keys {
				if !strings.Contains(got, key+"\t") {
					t.Errorf("mntr is missing %s:\n%s", key, got)
				}
			}
			if has := strings.Contains(got, "zk_followers\t"); has != tt.wantFollowers {
				t.Errorf("zk_followers present = %v, want %v", has, tt.wantFollowers)
			}
			if has := strings.Contains(got, "zk_open_file_descriptor_count\t12\n"); has != tt.wantFds {
				t.Errorf("zk_open_file_descriptor_count present = %v, want %v", has, tt.wantFds)
			}
		})
	}
}

func TestServerStat(t *testing.T) {
	k := &fakeKeeper{
		status:  Status{Role: RoleLeader, HasLeader: true, IsLeader: true, AliveConnections: 1, LastZxid: 255},
		stats:   ServerStats{MinLatency: 1, AvgLatency: 2, MaxLatency: 3, PacketsReceived: 10, PacketsSent: 9},
		storage: StorageStats{NodeCount: 7},
		conns:   []ConnectionInfo{{Remote: "127.0.0.1:4000", PacketsReceived: 3, PacketsSent: 2, SessionID: 1}},
	}
	r := newCatalog(t, k)

	srvr := run(t, r, ServerStatName)
	for _, want := range []string{
		"dKeeper version: v1.2.3\n",
		"Latency min/avg/max: 1/2/3\n",
		"Received: 10\n",
		"Zxid: 0xff\n",
		"Mode: leader\n",
		"Node count: 7\n",
	} {
		if !strings.Contains(srvr, want) {
			t.Errorf("srvr is missing %q:\n%s", want, srvr)
		}
	}

	stat := run(t, r, StatName)
	if !strings.Contains(stat, "Clients:\n 127.0.0.1:4000(recved=3,sent=2)\n") {
		t.Errorf("stat is missing the brief client line:\n%s", stat)
	}
}

func TestServerStatNotServing(t *testing.T) {
	r := newCatalog(t, &fakeKeeper{status: Status{Role: RoleNotServing}})
	for _, name := range []string{ServerStatName, StatName} {
		if got := run(t, r, name); got != notServing {
			t.Errorf("%s = %q, want %q", name, got, notServing)
		}
	}
}

func TestCons(t *testing.T) {
	k := &fakeKeeper{conns: []ConnectionInfo{
		{Remote: "10.0.0.1:1", PacketsReceived: 1},
		{Remote: "10.0.0.2:2", SessionID: 0x10, LastOperation: "GETD", SessionTimeoutMs: 30000},
	}}
	got := run(t, newCatalog(t, k), ConsName)
	if !strings.Contains(got, " 10.0.0.1:1(recved=1,sent=0)\n") {
		t.Errorf("cons is missing the connection without session:\n%s", got)
	}
	if !strings.Contains(got, "sid=0x10,lop=GETD") || !strings.Contains(got, ",to=30000") {
		t.Errorf("cons is missing the session details:\n%s", got)
	}
}

func TestResetCommands(t *testing.T) {
	k := &fakeKeeper{}
	r := newCatalog(t, k)

	if got := run(t, r, StatResetName); got != "Server stats reset.\n" {
		t.Errorf("srst = %q", got)
	}
	if got := run(t, r, ConnStatsResetName); got != "Connection stats reset.\n" {
		t.Errorf("crst = %q", got)
	}
	if k.statsResets != 1 || k.connResets != 1 {
		t.Errorf("resets = %d/%d, want 1/1", k.statsResets, k.connResets)
	}
}

func TestWatchCommands(t *testing.T) {
	k := &fakeKeeper{
		storage:   StorageStats{SessionsWithWatches: 2, WatchedPaths: 3, WatchCount: 4},
		bySession: map[int64][]string{2: {"/b"}, 1: {"/c", "/a"}},
		byPath:    map[string][]int64{"/b": {2, 1}, "/a": {1}},
	}
	r := newCatalog(t, k)

	if got, want := run(t, r, BriefWatchName), "2 connections watching 3 paths\nTotal watches:4\n"; got != want {
		t.Errorf("wchs = %q, want %q", got, want)
	}

	wantWchc := "0x0000000000000001\n\t/a\n\t/c\n0x0000000000000002\n\t/b\n"
	if got := run(t, r, WatchBySessionName); got != wantWchc {
		t.Errorf("wchc = %q, want %q", got, wantWchc)
	}

	wantWchp := "/a\n\t0x0000000000000001\n/b\n\t0x0000000000000001\n\t0x0000000000000002\n"
	if got := run(t, r, WatchByPathName); got != wantWchp {
		t.Errorf("wchp = %q, want %q", got, wantWchp)
	}
}

func TestDump(t *testing.T) {
	k := &fakeKeeper{
		sessions:   []int64{3, 1},
		ephemerals: map[int64][]string{1: {"/e1"}},
	}
	r := newCatalog(t, k)

	if got := run(t, r, DumpName); !strings.Contains(got, "only works on the leader") {
		t.Errorf("dump on a follower = %q", got)
	}

	k.status.IsLeader = true
	want := "Sessions dump (2):\n0x0000000000000001\n0x0000000000000003\n" +
		"Sessions with Ephemerals (1):\n0x0000000000000001\n\t/e1\n"
	if got := run(t, r, DumpName); got != want {
		t.Errorf("dump = %q, want %q", got, want)
	}
}

func TestLogInfoClampsCommittedIndex(t *testing.T) {
	k := &fakeKeeper{logInfo: LogInfo{FirstLogIdx: 1, LastLogIdx: 10, LastCommittedIdx: 12, LastSnapshotIdx: 5}}
	got := run(t, newCatalog(t, k), LogInfoName)
	for _, want := range []string{
		"first_log_idx\t1\n",
		"last_log_idx\t10\n",
		"last_committed_idx\t10\n",
		"last_snapshot_idx\t5\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("lgif is missing %q:\n%s", want, got)
		}
	}
}

func TestTriggers(t *testing.T) {
	k := &fakeKeeper{}
	r := newCatalog(t, k)

	tests := []struct {
		name string
		want string
	}{
		{CreateSnapshotName, "Snapshot creation scheduled with last committed log index 42.\n"},
		{RequestLeaderName, "Sent leadership request to leader.\n"},
		{YieldLeadershipName, "Sent yield leadership request to leader.\n"},
		{RecoveryName, "ok"},
		{RecalculateName, "ok"},
		{CleanResourcesName, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(t, r, tt.name); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	if k.snapshots != 1 || k.leadership != 1 || k.yields != 1 || k.recoveries != 1 {
		t.Errorf("triggers were not forwarded: %+v", k)
	}

	k.snapshotErr = errors.New("busy")
	if got := run(t, r, CreateSnapshotName); got != "Failed to schedule snapshot creation task: busy\n" {
		t.Errorf("csnp on failure = %q", got)
	}
}

func TestSimpleCommands(t *testing.T) {
	k := &fakeKeeper{status: Status{IsObserver: true}}
	r := newCatalog(t, k)

	tests := []struct {
		name string
		want string
	}{
		{IsReadOnlyName, "ro"},
		{ApiVersionName, "1"},
		{ConfName, "server_id=1\ntick_time=500\n"},
		{DataSizeName, "snapshot_dir_size: 100\nlog_dir_size: 200\n"},
		{FeatureFlagsName, "filtered_list\t1\nremove_recursive\t0\n"},
		{ProfileEventsName, "CreateRequests\t3\tNumber of create requests\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(t, r, tt.name); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	envi := run(t, r, EnviName)
	if !strings.HasPrefix(envi, "Environment:\n") || !strings.Contains(envi, "host.name=host-1\n") {
		t.Errorf("envi = %q", envi)
	}
}

func TestCommandRecoversPanics(t *testing.T) {
	cmd := NewCommand("boom", func() string { panic("exploded") })
	if got, want := cmd.Run(), "Failed to execute boom: exploded\n"; got != want {
		t.Errorf("Run() = %q, want %q", got, want)
	}
}
