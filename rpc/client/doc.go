// Package client implements the RPC client of dKeeper. It provides client
// sessions that communicate with a server via the transport and serialization
// layers, and the plain text four letter word request.
//
// The package focuses on:
//   - Session lifecycle (open, keep alive, close) and znode operations
//   - Collecting the watch events the server piggybacks on responses
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewRPCSession: Factory function that connects the transport and opens a
//     session. The returned RPCSession pings the server in the background and
//     offers Create, Delete, SetData, Get, Exists and Children.
//
//   - SendFourLetterWord: Sends a four letter word on a fresh connection and
//     returns the plain text answer of the server.
//
// Failed state machine commands are returned as *fsm.Error, so callers can use
// errors.Is with the fsm sentinels (fsm.ErrNoNode, fsm.ErrNodeExists, ...).
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:2181"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	// Open a session
//	s, _ := client.NewRPCSession(1, config, tcp.NewTCPClientTransport(), serializer.NewJSONSerializer(), 10*time.Second)
//	defer s.Close()
//
//	// Use the session
//	s.Create("/app", []byte("v1"), false)
//	value, stat, _ := s.Get("/app", true)
//
//	// Ask a server for its state
//	out, _ := client.SendFourLetterWord("tcp", "localhost:2181", "srvr", 5*time.Second)
//
// Thread Safety:
//
//	Sessions are thread-safe and can be used concurrently from multiple
//	goroutines without additional synchronization.
package client
