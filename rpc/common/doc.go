// Package common provides core data structures and utilities shared across
// dKeeper. It defines fundamental types, configuration structures, and protocol
// elements used by other packages.
//
// The package focuses on:
//   - Message protocol definition for client requests and responses
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat
//   - Utilities for Dragonboat (RAFT) integration
//
// Key Components:
//
//   - Message: Core data structure of the client protocol. Requests carry the
//     session, the path and the operation arguments, responses carry the
//     result, the pending watch events of the session and the zxid.
//
//   - MessageType: Enumeration of all supported operations, split into session
//     operations (connect, ping, close) and znode operations.
//
//   - ServerConfig: Configuration of a node, including RAFT parameters, storage
//     directories, the client port, session timeouts and the four letter word
//     allow list. It converts itself to the Dragonboat configs and renders the
//     settings reported by the conf command.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
