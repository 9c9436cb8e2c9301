// Package server implements the RPC server of dKeeper. It wires the raft
// replica, the keeper and the four letter word registry to a transport and
// translates client messages into keeper calls.
//
// The package focuses on:
//   - Starting the dragonboat replica of the node with the keeper's state machine
//   - Server-side RPC request handling for session and znode operations
//   - Answering four letter words on the client port
//   - Adapter pattern to decouple the keeper from RPC mechanisms
//
// Key Components:
//
//   - IKeeper: The client API of the keeper the adapters rely on, implemented
//     by *keeper.Keeper.
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests of a connection.
//
//   - NewKeeperServerAdapter: Factory function creating the adapter that
//     translates RPC requests into keeper calls. Every response carries the
//     pending watch events of the session, the last zxid and the return code
//     of failed commands.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Before the first request frame, the transport hands the first four bytes of
// a connection to the four letter word registry. Known words are answered
// with plain text and the connection is closed; all other connections are
// registered with the keeper and speak the framed protocol.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Serve should be called only once.
package server
