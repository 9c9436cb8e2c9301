package server

import (
	"context"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/keeper"
	"github.com/ValentinKolb/dKeeper/lib/keeper/fsm"
	"github.com/ValentinKolb/dKeeper/rpc/common"
)

// IKeeper is the client API of the keeper the adapter serves requests with.
// It is implemented by *keeper.Keeper.
type IKeeper interface {
	Track(connID uint64) func(op string, zxid uint64)
	LastZxid() uint64
	Events(sessionID int64) []keeper.WatchEvent

	OpenSession(ctx context.Context, connID uint64, timeout time.Duration) (int64, time.Duration, error)
	AttachSession(connID uint64, sessionID int64) error
	CloseSession(ctx context.Context, sessionID int64) error
	Ping(sessionID int64) error

	Create(ctx context.Context, sessionID int64, path string, data []byte, ephemeral bool) (string, error)
	Delete(ctx context.Context, path string, version int32, recursive bool) error
	SetData(ctx context.Context, path string, data []byte, version int32) (int32, error)
	Get(ctx context.Context, sessionID int64, path string, watch bool) ([]byte, fsm.Stat, error)
	Exists(ctx context.Context, sessionID int64, path string, watch bool) (fsm.Stat, bool, error)
	Children(ctx context.Context, sessionID int64, path string, filter fsm.ListFilter, watch bool) ([]string, error)
}

var _ IKeeper = (*keeper.Keeper)(nil)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request of connection connID and returns a response.
	// If an error occurs, it should be set in the response
	Handle(connID uint64, req *common.Message, k IKeeper) (resp *common.Message)
}
