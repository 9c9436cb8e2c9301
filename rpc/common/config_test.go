package common

import (
	"encoding/json"
	"strings"
	"testing"
)

func testServerConfig() ServerConfig {
	return ServerConfig{
		ShardID:             1,
		ReplicaID:           2,
		ClusterMembers:      map[uint64]string{3: "localhost:63003", 1: "localhost:63001", 2: "localhost:63002"},
		RTTMillisecond:      100,
		SnapshotEntries:     10000,
		CompactionOverhead:  5000,
		DataDir:             "/var/lib/dkeeper",
		TimeoutSecond:       5,
		Transport:           ServerTransportConfig{Endpoint: "0.0.0.0:2181", WorkersPerConn: 1},
		MinSessionTimeoutMs: 4000,
		MaxSessionTimeoutMs: 40000,
		LogLevel:            "info",
	}
}

func TestServerConfigAddresses(t *testing.T) {
	c := testServerConfig()

	if got := c.RaftAddress(); got != "localhost:63002" {
		t.Errorf("expected the address of replica 2, got %s", got)
	}
	c.RaftAddr = "10.0.0.2:63002"
	if got := c.RaftAddress(); got != "10.0.0.2:63002" {
		t.Errorf("expected the explicit raft address, got %s", got)
	}

	if got := c.LogDir(); got != "/var/lib/dkeeper/wal" {
		t.Errorf("unexpected log dir %s", got)
	}
	if got := c.SnapshotDir(); got != "/var/lib/dkeeper/nodehost" {
		t.Errorf("unexpected snapshot dir %s", got)
	}
}

func TestServerConfigToDragonboat(t *testing.T) {
	c := testServerConfig()
	c.NonVoting = true

	rc := c.ToDragonboatConfig()
	if rc.ShardID != 1 || rc.ReplicaID != 2 {
		t.Errorf("unexpected ids shard=%d replica=%d", rc.ShardID, rc.ReplicaID)
	}
	if !rc.IsNonVoting {
		t.Errorf("expected a non voting replica")
	}
	if rc.ElectionRTT != electionRTTFactor || rc.HeartbeatRTT != heartbeatRTTFactor {
		t.Errorf("unexpected rtt factors election=%d heartbeat=%d", rc.ElectionRTT, rc.HeartbeatRTT)
	}

	nhc := c.ToNodeHostConfig()
	if nhc.WALDir != c.LogDir() || nhc.NodeHostDir != c.SnapshotDir() {
		t.Errorf("unexpected directories wal=%s nodehost=%s", nhc.WALDir, nhc.NodeHostDir)
	}
	if nhc.RaftAddress != "localhost:63002" {
		t.Errorf("unexpected raft address %s", nhc.RaftAddress)
	}
}

func TestServerConfigSettings(t *testing.T) {
	c := testServerConfig()
	settings := c.Settings()

	if len(settings) == 0 || settings[0].Key != "server_id" || settings[0].Value != "2" {
		t.Fatalf("expected server_id first, got %v", settings)
	}

	values := make(map[string]string)
	for _, s := range settings {
		if _, dup := values[s.Key]; dup {
			t.Errorf("duplicate setting %s", s.Key)
		}
		values[s.Key] = s.Value
	}

	tests := map[string]string{
		"endpoint":               "0.0.0.0:2181",
		"election_rtt":           "1000",
		"operation_timeout_ms":   "5000",
		"min_session_timeout_ms": "4000",
		"cluster_members":        "1=localhost:63001,2=localhost:63002,3=localhost:63003",
	}
	for key, want := range tests {
		t.Run(key, func(t *testing.T) {
			if got := values[key]; got != want {
				t.Errorf("expected %s, got %s", want, got)
			}
		})
	}
}

func TestServerConfigString(t *testing.T) {
	c := testServerConfig()
	s := c.String()
	for _, want := range []string{"RPC SERVER", "0.0.0.0:2181", "Node 3: localhost:63003"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in the config banner", want)
		}
	}
}

func TestMessageTypeJSON(t *testing.T) {
	for msgType := MsgTSuccess; msgType <= MsgTChildren; msgType++ {
		t.Run(msgType.String(), func(t *testing.T) {
			data, err := json.Marshal(msgType)
			if err != nil {
				t.Fatalf("failed to marshal: %v", err)
			}
			var got MessageType
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("failed to unmarshal %s: %v", data, err)
			}
			if got != msgType {
				t.Errorf("expected %s, got %s", msgType, got)
			}
		})
	}

	var got MessageType
	if err := json.Unmarshal([]byte(`"nope"`), &got); err == nil {
		t.Errorf("expected an error for an unknown message type")
	}
}

func TestMessageTypeOpName(t *testing.T) {
	tests := []struct {
		msgType MessageType
		want    string
	}{
		{MsgTConnect, "SESS"},
		{MsgTGetData, "GETD"},
		{MsgTChildren, "GETC"},
		{MsgTError, "NA"},
	}
	for _, tt := range tests {
		if got := tt.msgType.OpName(); got != tt.want {
			t.Errorf("%s.OpName() = %s, want %s", tt.msgType, got, tt.want)
		}
	}
}

func TestValidateLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "ERROR"} {
		if err := ValidateLogLevel(level); err != nil {
			t.Errorf("expected %s to be valid: %v", level, err)
		}
	}
	if err := ValidateLogLevel("verbose"); err == nil {
		t.Errorf("expected an error for an unknown level")
	}
}
