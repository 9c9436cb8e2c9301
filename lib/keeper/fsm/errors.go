package fsm

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

// RetCode is the result code of a replicated command, carried in sm.Result.Value.
type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Unknown or malformed command.
	RetCBadArguments                    // 3: Invalid path or arguments.
	RetCNoNode                          // 4: The node does not exist.
	RetCNodeExists                      // 5: The node already exists.
	RetCNotEmpty                        // 6: The node has children.
	RetCBadVersion                      // 7: The expected version does not match.
	RetCNoSession                       // 8: The session does not exist.
	RetCNoChildrenForEphemerals         // 9: Ephemeral nodes can not have children.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCBadArguments:
		return "BadArguments"
	case RetCNoNode:
		return "NoNode"
	case RetCNodeExists:
		return "NodeExists"
	case RetCNotEmpty:
		return "NotEmpty"
	case RetCBadVersion:
		return "BadVersion"
	case RetCNoSession:
		return "NoSession"
	case RetCNoChildrenForEphemerals:
		return "NoChildrenForEphemerals"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}

var (
	ErrNoNode                  = errors.New("node does not exist")
	ErrNodeExists              = errors.New("node already exists")
	ErrNotEmpty                = errors.New("node has children")
	ErrBadVersion              = errors.New("version mismatch")
	ErrNoSession               = errors.New("session does not exist")
	ErrBadArguments            = errors.New("bad arguments")
	ErrNoChildrenForEphemerals = errors.New("ephemeral nodes can not have children")
)

// sentinels maps return codes to the matching sentinel error
var sentinels = map[RetCode]error{
	RetCNoNode:                  ErrNoNode,
	RetCNodeExists:              ErrNodeExists,
	RetCNotEmpty:                ErrNotEmpty,
	RetCBadVersion:              ErrBadVersion,
	RetCNoSession:               ErrNoSession,
	RetCBadArguments:            ErrBadArguments,
	RetCNoChildrenForEphemerals: ErrNoChildrenForEphemerals,
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code and an error message.
// errors.Is matches it against the sentinel of its code.
type Error struct {
	Code RetCode
	Msg  string
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func (e *Error) Error() string {
	return fmt.Sprintf("keeper error (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is the sentinel of the code of e
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Code]
	return ok && sentinel == target
}

// codeOf converts an error of the tree into a return code
func codeOf(err error) RetCode {
	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return RetCInternalError
}
