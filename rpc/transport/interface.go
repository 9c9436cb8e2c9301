package transport

import (
	"github.com/ValentinKolb/dKeeper/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes the id of the connection, a shardId and a request as parameters and returns a response
type ServerHandleFunc func(connID uint64, shardId uint64, req []byte) (resp []byte)

// PrefixHandleFunc inspects the first four bytes of a new connection. If it
// handles them, the transport writes resp and closes the connection instead
// of reading request frames.
type PrefixHandleFunc func(prefix []byte) (resp string, handled bool)

// ConnectionHooks are called when a client connection is opened and closed
type ConnectionHooks struct {
	Opened func(connID uint64, remote string)
	Closed func(connID uint64)
}

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a RPCServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	// The transport layer is responsible for routing the request to the appropriate shard
	RegisterHandler(handler ServerHandleFunc)
	// RegisterPrefixHandler registers the handler for the first bytes of a connection
	RegisterPrefixHandler(handler PrefixHandleFunc)
	// RegisterConnectionHooks registers the connection lifecycle hooks
	RegisterConnectionHooks(hooks ConnectionHooks)
	// Listen starts the transport layer and listens for incoming requests
	// It blocks until Close is called
	Listen(config common.ServerConfig) error
	// Close stops accepting new connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
