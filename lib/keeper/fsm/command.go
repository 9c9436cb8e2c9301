package fsm

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible write operations of the state machine.
type CommandType uint8

const (
	CommandTOpenSession  CommandType = iota // Register a new session, Aux holds the timeout in ms.
	CommandTCloseSession                    // Remove a session and all of its ephemeral nodes.
	CommandTCreate                          // Create a node, Aux holds the creation time in unix ms.
	CommandTDelete                          // Delete a node (optionally recursive).
	CommandTSetData                         // Replace the data of a node, Aux holds the modification time in unix ms.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTOpenSession:
		return "OpenSession"
	case CommandTCloseSession:
		return "CloseSession"
	case CommandTCreate:
		return "Create"
	case CommandTDelete:
		return "Delete"
	case CommandTSetData:
		return "SetData"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command flags
const (
	FlagEphemeral uint8 = 1 << iota // the created node is owned by the session
	FlagRecursive                   // delete the whole subtree
)

// AnyVersion disables the version check of delete and set data
const AnyVersion int32 = -1

// headerSize = Type + Flags + SessionID + Version + Aux + PathLen
const headerSize = 1 + 1 + 8 + 4 + 8 + 4

// Command represents a single entry in the raft log.
type Command struct {
	Type      CommandType
	Flags     uint8
	SessionID int64
	Version   int32
	Aux       int64
	Path      string
	Value     []byte
}

// Has reports whether flag is set
func (command *Command) Has(flag uint8) bool {
	return command.Flags&flag != 0
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Path) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 1 byte for flags,
// 8 bytes for the session id,
// 4 bytes for the expected version,
// 8 bytes for the auxiliary value (timeout or timestamp),
// 4 bytes for path length,
// N bytes for path data,
// N bytes for value data (optional).
// All integers are big endian.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	result[1] = command.Flags
	binary.BigEndian.PutUint64(result[2:10], uint64(command.SessionID))
	binary.BigEndian.PutUint32(result[10:14], uint32(command.Version))
	binary.BigEndian.PutUint64(result[14:22], uint64(command.Aux))
	binary.BigEndian.PutUint32(result[22:26], uint32(len(command.Path)))

	copy(result[headerSize:], command.Path)
	copy(result[headerSize+len(command.Path):], command.Value)
	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Flags = data[1]
	command.SessionID = int64(binary.BigEndian.Uint64(data[2:10]))
	command.Version = int32(binary.BigEndian.Uint32(data[10:14]))
	command.Aux = int64(binary.BigEndian.Uint64(data[14:22]))
	pathLen := int(binary.BigEndian.Uint32(data[22:26]))

	if len(data) < headerSize+pathLen {
		return fmt.Errorf("data too short for path of length %d", pathLen)
	}
	command.Path = string(data[headerSize : headerSize+pathLen])

	if rest := data[headerSize+pathLen:]; len(rest) > 0 {
		command.Value = make([]byte, len(rest))
		copy(command.Value, rest)
	} else {
		command.Value = nil
	}
	return nil
}
