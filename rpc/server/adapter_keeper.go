package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/keeper/fsm"
	"github.com/ValentinKolb/dKeeper/rpc/common"
)

// NewKeeperServerAdapter creates the adapter that maps client messages onto
// the keeper, every request is bounded by timeout
func NewKeeperServerAdapter(timeout time.Duration) IRPCServerAdapter {
	return &keeperServerAdapterImpl{timeout: timeout}
}

type keeperServerAdapterImpl struct {
	timeout time.Duration
}

func (adapter *keeperServerAdapterImpl) Handle(connID uint64, req *common.Message, k IKeeper) *common.Message {
	// Check for nil keeper
	if k == nil {
		return common.NewErrorResponse("handler: keeper is nil")
	}

	done := k.Track(connID)

	ctx, cancel := context.WithTimeout(context.Background(), adapter.timeout)
	defer cancel()

	resp := adapter.handle(ctx, connID, req, k)

	// Piggyback the triggered watches of the session
	sessionID := resp.SessionID
	if sessionID == 0 {
		sessionID = req.SessionID
	}
	if sessionID != 0 && req.MsgType != common.MsgTClose {
		for _, ev := range k.Events(sessionID) {
			resp.Events = append(resp.Events, common.WatchEvent{Type: ev.Type, Path: ev.Path})
		}
	}

	resp.Zxid = k.LastZxid()
	done(req.MsgType.OpName(), resp.Zxid)
	return resp
}

// handle executes a single request
func (adapter *keeperServerAdapterImpl) handle(ctx context.Context, connID uint64, req *common.Message, k IKeeper) *common.Message {
	switch req.MsgType {
	case common.MsgTConnect:
		if req.SessionID != 0 {
			err := k.AttachSession(connID, req.SessionID)
			return withCode(common.NewConnectResponse(req.SessionID, req.TimeoutMs, err), err)
		}
		id, timeout, err := k.OpenSession(ctx, connID, time.Duration(req.TimeoutMs)*time.Millisecond)
		return withCode(common.NewConnectResponse(id, timeout.Milliseconds(), err), err)

	case common.MsgTPing:
		err := k.Ping(req.SessionID)
		return withCode(common.NewResponse(common.MsgTPing, err), err)

	case common.MsgTClose:
		err := k.CloseSession(ctx, req.SessionID)
		return withCode(common.NewResponse(common.MsgTClose, err), err)
	}

	// Requests of a session keep it alive
	if req.SessionID != 0 {
		if err := k.Ping(req.SessionID); err != nil {
			return withCode(common.NewResponse(req.MsgType, err), err)
		}
	}

	switch req.MsgType {
	case common.MsgTCreate:
		created, err := k.Create(ctx, req.SessionID, req.Path, req.Value, req.Ephemeral)
		resp := common.NewResponse(common.MsgTCreate, err)
		resp.Path = created
		return withCode(resp, err)

	case common.MsgTDelete:
		err := k.Delete(ctx, req.Path, req.Version, req.Recursive)
		return withCode(common.NewResponse(common.MsgTDelete, err), err)

	case common.MsgTSetData:
		version, err := k.SetData(ctx, req.Path, req.Value, req.Version)
		resp := common.NewResponse(common.MsgTSetData, err)
		resp.Version = version
		return withCode(resp, err)

	case common.MsgTGetData:
		data, stat, err := k.Get(ctx, req.SessionID, req.Path, req.Watch)
		resp := common.NewResponse(common.MsgTGetData, err)
		if err == nil {
			resp.Ok = true
			resp.Value = data
			resp.Stat = toStat(stat)
		}
		return withCode(resp, err)

	case common.MsgTExists:
		stat, ok, err := k.Exists(ctx, req.SessionID, req.Path, req.Watch)
		resp := common.NewResponse(common.MsgTExists, err)
		if err == nil && ok {
			resp.Ok = true
			resp.Stat = toStat(stat)
		}
		return withCode(resp, err)

	case common.MsgTChildren:
		children, err := k.Children(ctx, req.SessionID, req.Path, fsm.ListFilter(req.Filter), req.Watch)
		resp := common.NewResponse(common.MsgTChildren, err)
		resp.Children = children
		return withCode(resp, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC KeeperAdapter - Unsuported message type: %s", req.MsgType),
		)
	}
}

// withCode copies the return code of a state machine error into the response,
// the client rebuilds the *fsm.Error from code and message
func withCode(resp *common.Message, err error) *common.Message {
	var fsmErr *fsm.Error
	if errors.As(err, &fsmErr) {
		resp.Code = int32(fsmErr.Code)
		resp.Err = fsmErr.Msg
	}
	return resp
}

// toStat converts the stat of the state machine into its wire form
func toStat(s fsm.Stat) *common.Stat {
	return &common.Stat{
		Czxid:          s.Czxid,
		Mzxid:          s.Mzxid,
		Ctime:          s.Ctime,
		Mtime:          s.Mtime,
		Version:        s.Version,
		EphemeralOwner: s.EphemeralOwner,
		DataLength:     s.DataLength,
		NumChildren:    s.NumChildren,
	}
}
