// Package rpc provides the client port of dKeeper. It acts as the
// communication layer between clients, operators and servers.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets). The server side answers four letter words on the
//     same port as framed requests.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: Client sessions for znode operations and the plain text four
//     letter word request.
//
//   - server: Wires the raft replica, the keeper and the four letter words to
//     a transport and maps client messages onto keeper calls.
package rpc
