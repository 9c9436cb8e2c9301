package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dKeeper/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Connect request
		{
			MsgType:   common.MsgTConnect,
			TimeoutMs: 30000,
		},

		// Create request
		{
			MsgType:   common.MsgTCreate,
			SessionID: 42,
			Path:      "/app/config",
			Value:     []byte("test-value"),
			Ephemeral: true,
		},

		// Get response
		{
			MsgType: common.MsgTGetData,
			Value:   []byte("test-value"),
			Ok:      true,
			Stat: &common.Stat{
				Czxid:       3,
				Mzxid:       7,
				Ctime:       1700000000000,
				Mtime:       1700000005000,
				Version:     2,
				DataLength:  10,
				NumChildren: 1,
			},
			Zxid: 9,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Message with all fields filled
		{
			MsgType:   common.MsgTChildren,
			SessionID: -7,
			Path:      "/app",
			Value:     []byte("v"),
			Version:   -1,
			TimeoutMs: 4000,
			Ephemeral: true,
			Recursive: true,
			Watch:     true,
			Filter:    2,
			Ok:        true,
			Stat:      &common.Stat{Czxid: 1, EphemeralOwner: 42},
			Children:  []string{"a", "b"},
			Events: []common.WatchEvent{
				{Type: "NodeChildrenChanged", Path: "/app"},
				{Type: "NodeDeleted", Path: "/app/c"},
			},
			Zxid: 12,
			Code: 4,
			Err:  "/app/x",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTChildren; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty value slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTSetData,
				Path:    "/test",
				Value:   []byte{},
			},
		},
		{
			name: "Message with empty children slice but not nil",
			msg: common.Message{
				MsgType:  common.MsgTChildren,
				Children: []string{},
			},
		},
		{
			name: "Message with negative numbers",
			msg: common.Message{
				MsgType:   common.MsgTDelete,
				SessionID: -1,
				Version:   -1,
				Code:      -3,
			},
		},
		{
			name: "Message with booleans only",
			msg: common.Message{
				MsgType: common.MsgTExists,
				Watch:   true,
				Ok:      true,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// The binary format keeps empty but non nil slices
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}
		})
	}
}

// TestBinaryDeserializeResetsMessage tests that fields of a reused message are cleared
func TestBinaryDeserializeResetsMessage(t *testing.T) {
	serializer := NewBinarySerializer()

	data, err := serializer.Serialize(common.Message{MsgType: common.MsgTPing, SessionID: 1})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	msg := common.Message{Path: "/old", Ok: true, Children: []string{"x"}}
	if err := serializer.Deserialize(data, &msg); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if msg.Path != "" || msg.Ok || msg.Children != nil {
		t.Errorf("expected old fields to be cleared, got %+v", msg)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Message type and half of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for path",
			data:        []byte{1, 0, 2, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims path length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 4, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Truncated stat",
			data:        []byte{1, 0, 64, 0, 0, 0, 1}, // Stat flag with 4 of 52 bytes
			expectError: true,
		},
		{
			name:        "Invalid children count",
			data:        []byte{1, 0, 128, 0xff, 0xff, 0xff, 0xff}, // Claims 2^32-1 children
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
