package fsm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	sm "github.com/lni/dragonboat/v4/statemachine"
)

// applyCommands feeds the commands as consecutive log entries starting at index 1
func applyCommands(t *testing.T, fsm *StateMachine, cmds ...Command) []sm.Entry {
	t.Helper()
	entries := make([]sm.Entry, len(cmds))
	for i, cmd := range cmds {
		entries[i] = sm.Entry{Index: uint64(i + 1), Cmd: cmd.Serialize()}
	}
	result, err := fsm.Update(entries)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	return result
}

func TestStateMachineUpdate(t *testing.T) {
	var seen []Change
	var seenZxid uint64
	fsm := NewStateMachine(1, 1, func(changes []Change, zxid uint64) {
		seen = append(seen, changes...)
		seenZxid = zxid
	})

	entries := applyCommands(t, fsm,
		Command{Type: CommandTOpenSession, Aux: 30000},
		Command{Type: CommandTCreate, Path: "/app", Value: []byte("v1")},
		Command{Type: CommandTCreate, Flags: FlagEphemeral, SessionID: 1, Path: "/app/lock"},
		Command{Type: CommandTSetData, Path: "/app", Value: []byte("v2"), Version: 0},
		Command{Type: CommandTSetData, Path: "/app", Value: []byte("v3"), Version: 0},
		Command{Type: CommandTCreate, Path: "/missing/child"},
	)

	wantCodes := []RetCode{RetCSuccess, RetCSuccess, RetCSuccess, RetCSuccess, RetCBadVersion, RetCNoNode}
	for i, want := range wantCodes {
		if got := RetCode(entries[i].Result.Value); got != want {
			t.Errorf("entry %d result = %s (%s), want %s", i+1, got, entries[i].Result.Data, want)
		}
	}

	if id := int64(binary.BigEndian.Uint64(entries[0].Result.Data)); id != 1 {
		t.Errorf("session id = %d, want the log index 1", id)
	}
	if version := binary.BigEndian.Uint32(entries[3].Result.Data); version != 1 {
		t.Errorf("version after set = %d, want 1", version)
	}

	if seenZxid != 6 {
		t.Errorf("listener zxid = %d, want 6", seenZxid)
	}
	wantChanges := []Change{
		{ChangeCreated, "/app"}, {ChangeChildrenChanged, "/"},
		{ChangeCreated, "/app/lock"}, {ChangeChildrenChanged, "/app"},
		{ChangeDataChanged, "/app"},
	}
	if len(seen) != len(wantChanges) {
		t.Fatalf("listener saw %v, want %v", seen, wantChanges)
	}
	for i := range wantChanges {
		if seen[i] != wantChanges[i] {
			t.Errorf("change %d = %v, want %v", i, seen[i], wantChanges[i])
		}
	}
}

func TestStateMachineInvalidEntries(t *testing.T) {
	fsm := NewStateMachine(1, 1, nil)
	entries, err := fsm.Update([]sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{1, 2, 3}},
		{Index: 3, Cmd: (&Command{Type: CommandType(200)}).Serialize()},
		{Index: 4, Cmd: (&Command{Type: CommandTCreate, Flags: FlagEphemeral, Path: "/x"}).Serialize()},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []RetCode{RetCInvalidOperation, RetCInternalError, RetCInvalidOperation, RetCBadArguments}
	for i, code := range want {
		if got := RetCode(entries[i].Result.Value); got != code {
			t.Errorf("entry %d = %s, want %s", i+1, got, code)
		}
	}
}

func TestStateMachineLookup(t *testing.T) {
	fsm := NewStateMachine(1, 1, nil)
	applyCommands(t, fsm,
		Command{Type: CommandTCreate, Path: "/a", Value: []byte("data")},
		Command{Type: CommandTCreate, Path: "/a/b"},
	)

	res, err := fsm.Lookup(Query{Type: QueryTGet, Path: "/a"})
	if err != nil {
		t.Fatal(err)
	}
	get := res.(QueryResult)
	if !get.Ok || string(get.Value) != "data" || get.Stat.NumChildren != 1 || get.Stat.Czxid != 1 {
		t.Errorf("Get(/a) = %+v", get)
	}

	res, _ = fsm.Lookup(Query{Type: QueryTExists, Path: "/nope"})
	if res.(QueryResult).Ok {
		t.Error("Exists(/nope) returned ok")
	}

	res, _ = fsm.Lookup(Query{Type: QueryTStats})
	if stats := res.(TreeStats); stats.NodeCount != 3 || stats.LastZxid != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Error("Lookup with a wrong type did not fail")
	}
	var fsmErr *Error
	if _, err := fsm.Lookup(Query{Type: QueryType(99)}); !errors.As(err, &fsmErr) || fsmErr.Code != RetCInvalidOperation {
		t.Errorf("Lookup with an unknown type error = %v", err)
	}
}

func TestStateMachineSnapshot(t *testing.T) {
	src := NewStateMachine(1, 1, nil)
	applyCommands(t, src,
		Command{Type: CommandTOpenSession, Aux: 5000},
		Command{Type: CommandTCreate, Path: "/a", Value: []byte("x")},
		Command{Type: CommandTCreate, Flags: FlagEphemeral, SessionID: 1, Path: "/a/e"},
	)

	ctx, err := src.PrepareSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := src.SaveSnapshot(ctx, &buf, nil, nil); err != nil {
		t.Fatal(err)
	}
	size := int64(buf.Len())

	dst := NewStateMachine(1, 2, nil)
	if err := dst.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatal(err)
	}

	res, _ := src.Lookup(Query{Type: QueryTStats})
	srcStats := res.(TreeStats)
	if srcStats.LatestSnapshotSize != size {
		t.Errorf("LatestSnapshotSize = %d, want %d", srcStats.LatestSnapshotSize, size)
	}

	res, _ = dst.Lookup(Query{Type: QueryTStats})
	dstStats := res.(TreeStats)
	srcStats.LatestSnapshotSize = 0
	if dstStats != srcStats {
		t.Errorf("recovered Stats() = %+v, want %+v", dstStats, srcStats)
	}

	res, _ = dst.Lookup(Query{Type: QueryTSessions})
	if dump := res.(SessionsDump); dump.Sessions[1] != 5000 || len(dump.Ephemerals[1]) != 1 {
		t.Errorf("recovered sessions = %+v", dump)
	}
}

func TestErrorIs(t *testing.T) {
	err := error(NewError(RetCNoNode, "/a"))
	if !errors.Is(err, ErrNoNode) {
		t.Error("errors.Is(NoNode error, ErrNoNode) = false")
	}
	if errors.Is(err, ErrNodeExists) {
		t.Error("errors.Is(NoNode error, ErrNodeExists) = true")
	}
}
