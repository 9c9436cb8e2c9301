// Package tcp implements the TCP socket based client port of dKeeper. It
// provides concrete implementations of the base package's connector
// interfaces for TCP connections.
//
// This package builds on the base package's transport functionality, inheriting
// its connection pooling, buffer reuse, request routing and four letter word
// detection. See the base package documentation for details.
//
// Key Components:
//
//   - clientConnector: TCP specific implementation of base.IClientConnector
//
//   - serverConnector: TCP specific implementation of base.IServerConnector,
//     applying the configured socket options to accepted connections
//
// The default server buffer size is set to 512 KB, which provides good performance
// for typical workloads, but can be customized for specific use cases.
package tcp
