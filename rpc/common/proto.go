package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Session of the client, 0 for requests without a session
	SessionID int64 `json:"session_id,omitempty"`

	// General fields
	Path      string `json:"path,omitempty"`       // Used for: Create, Delete, SetData, GetData, Exists, Children
	Value     []byte `json:"value,omitempty"`      // Used for: Create, SetData (request), GetData (response)
	Version   int32  `json:"version,omitempty"`    // Used for: Delete, SetData (request), SetData (response)
	TimeoutMs int64  `json:"timeout_ms,omitempty"` // Used for: Connect (requested and negotiated timeout)
	Ephemeral bool   `json:"ephemeral,omitempty"`  // Used for: Create
	Recursive bool   `json:"recursive,omitempty"`  // Used for: Delete
	Watch     bool   `json:"watch,omitempty"`      // Used for: GetData, Exists, Children
	Filter    uint8  `json:"filter,omitempty"`     // Used for: Children (0 all, 1 persistent, 2 ephemeral)

	// Response only fields
	Ok       bool         `json:"ok,omitempty"`       // Used for: Exists responses
	Stat     *Stat        `json:"stat,omitempty"`     // Used for: GetData, Exists responses
	Children []string     `json:"children,omitempty"` // Used for: Children responses
	Events   []WatchEvent `json:"events,omitempty"`   // Triggered watches of the session
	Zxid     uint64       `json:"zxid,omitempty"`     // Last zxid the response reflects
	Code     int32        `json:"code,omitempty"`     // Return code of the state machine, 0 if no error
	Err      string       `json:"err,omitempty"`      // Empty if no error, otherwise contains the error message
}

// Stat is the metadata of a znode as sent to clients.
type Stat struct {
	Czxid          uint64 `json:"czxid"`
	Mzxid          uint64 `json:"mzxid"`
	Ctime          int64  `json:"ctime"`
	Mtime          int64  `json:"mtime"`
	Version        int32  `json:"version"`
	EphemeralOwner int64  `json:"ephemeral_owner"`
	DataLength     int32  `json:"data_length"`
	NumChildren    int32  `json:"num_children"`
}

// WatchEvent is a triggered watch, Type is one of NodeCreated, NodeDeleted,
// NodeDataChanged and NodeChildrenChanged.
type WatchEvent struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewConnectRequest creates a new Connect request. A non zero session id
// reattaches an existing session.
func NewConnectRequest(sessionID int64, timeoutMs int64) *Message {
	return &Message{
		MsgType:   MsgTConnect,
		SessionID: sessionID,
		TimeoutMs: timeoutMs,
	}
}

// NewConnectResponse creates a new Connect response
func NewConnectResponse(sessionID int64, timeoutMs int64, err error) *Message {
	msg := &Message{
		MsgType:   MsgTConnect,
		SessionID: sessionID,
		TimeoutMs: timeoutMs,
	}
	return msg.withErr(err)
}

// NewPingRequest creates a new Ping request
func NewPingRequest(sessionID int64) *Message {
	return &Message{
		MsgType:   MsgTPing,
		SessionID: sessionID,
	}
}

// NewCloseRequest creates a new Close request
func NewCloseRequest(sessionID int64) *Message {
	return &Message{
		MsgType:   MsgTClose,
		SessionID: sessionID,
	}
}

// NewCreateRequest creates a new Create request
func NewCreateRequest(sessionID int64, path string, value []byte, ephemeral bool) *Message {
	return &Message{
		MsgType:   MsgTCreate,
		SessionID: sessionID,
		Path:      path,
		Value:     value,
		Ephemeral: ephemeral,
	}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(sessionID int64, path string, version int32, recursive bool) *Message {
	return &Message{
		MsgType:   MsgTDelete,
		SessionID: sessionID,
		Path:      path,
		Version:   version,
		Recursive: recursive,
	}
}

// NewSetDataRequest creates a new SetData request
func NewSetDataRequest(sessionID int64, path string, value []byte, version int32) *Message {
	return &Message{
		MsgType:   MsgTSetData,
		SessionID: sessionID,
		Path:      path,
		Value:     value,
		Version:   version,
	}
}

// NewGetDataRequest creates a new GetData request
func NewGetDataRequest(sessionID int64, path string, watch bool) *Message {
	return &Message{
		MsgType:   MsgTGetData,
		SessionID: sessionID,
		Path:      path,
		Watch:     watch,
	}
}

// NewExistsRequest creates a new Exists request
func NewExistsRequest(sessionID int64, path string, watch bool) *Message {
	return &Message{
		MsgType:   MsgTExists,
		SessionID: sessionID,
		Path:      path,
		Watch:     watch,
	}
}

// NewChildrenRequest creates a new Children request
func NewChildrenRequest(sessionID int64, path string, filter uint8, watch bool) *Message {
	return &Message{
		MsgType:   MsgTChildren,
		SessionID: sessionID,
		Path:      path,
		Filter:    filter,
		Watch:     watch,
	}
}

// NewResponse creates an empty response to a request of type t
func NewResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	return msg.withErr(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// withErr sets the error message of the response
func (m *Message) withErr(err error) *Message {
	if err != nil {
		m.Err = err.Error()
	}
	return m
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:  "success",
	MsgTError:    "error",
	MsgTConnect:  "connect",
	MsgTPing:     "ping",
	MsgTClose:    "close",
	MsgTCreate:   "create",
	MsgTDelete:   "delete",
	MsgTSetData:  "setData",
	MsgTGetData:  "getData",
	MsgTExists:   "exists",
	MsgTChildren: "children",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// OpName returns the four character operation name reported by the
// connection statistics (cons).
func (t MessageType) OpName() string {
	switch t {
	case MsgTConnect:
		return "SESS"
	case MsgTPing:
		return "PING"
	case MsgTClose:
		return "CLOS"
	case MsgTCreate:
		return "CREA"
	case MsgTDelete:
		return "DELE"
	case MsgTSetData:
		return "SETD"
	case MsgTGetData:
		return "GETD"
	case MsgTExists:
		return "EXIS"
	case MsgTChildren:
		return "GETC"
	default:
		return "NA"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Session operations

	MsgTConnect // Open or reattach a session
	MsgTPing    // Keep a session alive
	MsgTClose   // Close a session

	// Znode operations

	MsgTCreate   // Create a node
	MsgTDelete   // Delete a node
	MsgTSetData  // Replace the data of a node
	MsgTGetData  // Read the data of a node
	MsgTExists   // Read the stat of a node
	MsgTChildren // List the children of a node
)
