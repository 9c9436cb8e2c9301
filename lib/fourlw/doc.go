// Package fourlw implements the four letter word admin commands of dKeeper.
//
// A four letter word is a short ASCII command such as "ruok" or "mntr" that an
// operator sends on the client port instead of a framed request. The server
// answers with a plain text response and closes the connection.
//
// Key Components:
//
//   - Code: The packed int32 representation of a name. The first character is
//     the most significant byte, so a code equals the first four bytes of a
//     connection read as a big endian int32.
//
//   - Command: A named unit of work producing a textual response. NewCommand
//     binds a name to a function, the built-in catalog is registered by
//     RegisterCommands.
//
//   - Registry: The table of known commands and the allow list. It is built
//     single threaded and published by InitializeAllowList. After publication
//     it is read only and safe for concurrent use.
//
//   - Keeper: The composite capability interface the commands read from. Every
//     command only depends on the narrow capability it needs, which keeps the
//     commands testable without a running raft group.
//
// Dispatch policy (see Registry.Dispatch):
//   - unknown prefix: not handled, the bytes belong to the regular protocol
//   - known but not allowed: the response of the "nopc" command
//   - known and allowed: the response of the command
//
// The memory profiler commands (jmst, jmfp, jmep, jmdp) are only compiled in
// with the memprof build tag.
package fourlw
