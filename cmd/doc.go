// Package cmd implements the command-line interface of dKeeper. It provides a
// hierarchical command structure with operations for running a server and
// interacting with it as a client or an operator.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring a dKeeper server
//   - znode: Commands for znode operations (create, get, set, delete, exists, ls)
//   - admin: The 4lw command sending four letter words to a server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dkeeper -help for a list of all commands.
package cmd
