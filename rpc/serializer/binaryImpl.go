package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dKeeper/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
//
// Layout: 1 byte MsgType, 2 bytes flags, then every present field in the
// order of the flags. Booleans are encoded in the flags only.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasSessionID uint16 = 1 << iota
	hasPath
	hasValue
	hasVersion
	hasTimeout
	hasFilter
	hasStat
	hasChildren
	hasEvents
	hasZxid
	hasCode
	hasErr
	isEphemeral
	isRecursive
	isWatch
	isOk
)

// statSize is the encoded size of a common.Stat
const statSize = 8 + 8 + 8 + 8 + 4 + 8 + 4 + 4

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, 3, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags
	var flags uint16

	if msg.SessionID != 0 {
		flags |= hasSessionID
		result = binary.BigEndian.AppendUint64(result, uint64(msg.SessionID))
	}
	if msg.Path != "" {
		flags |= hasPath
		result = appendString(result, msg.Path)
	}
	// Empty but non nil values are kept, they are valid node data
	if msg.Value != nil {
		flags |= hasValue
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Value)))
		result = append(result, msg.Value...)
	}
	if msg.Version != 0 {
		flags |= hasVersion
		result = binary.BigEndian.AppendUint32(result, uint32(msg.Version))
	}
	if msg.TimeoutMs != 0 {
		flags |= hasTimeout
		result = binary.BigEndian.AppendUint64(result, uint64(msg.TimeoutMs))
	}
	if msg.Filter != 0 {
		flags |= hasFilter
		result = append(result, msg.Filter)
	}
	if msg.Stat != nil {
		flags |= hasStat
		result = appendStat(result, msg.Stat)
	}
	if msg.Children != nil {
		flags |= hasChildren
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Children)))
		for _, child := range msg.Children {
			result = appendString(result, child)
		}
	}
	if len(msg.Events) > 0 {
		flags |= hasEvents
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Events)))
		for _, ev := range msg.Events {
			result = appendString(result, ev.Type)
			result = appendString(result, ev.Path)
		}
	}
	if msg.Zxid != 0 {
		flags |= hasZxid
		result = binary.BigEndian.AppendUint64(result, msg.Zxid)
	}
	if msg.Code != 0 {
		flags |= hasCode
		result = binary.BigEndian.AppendUint32(result, uint32(msg.Code))
	}
	if msg.Err != "" {
		flags |= hasErr
		result = appendString(result, msg.Err)
	}

	// Booleans
	if msg.Ephemeral {
		flags |= isEphemeral
	}
	if msg.Recursive {
		flags |= isRecursive
	}
	if msg.Watch {
		flags |= isWatch
	}
	if msg.Ok {
		flags |= isOk
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 3 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:3])
	r := binaryReader{data: data, pos: 3}

	if flags&hasSessionID != 0 {
		msg.SessionID = int64(r.uint64("session id"))
	}
	if flags&hasPath != 0 {
		msg.Path = r.string("path")
	}
	if flags&hasValue != 0 {
		msg.Value = r.bytes("value")
	}
	if flags&hasVersion != 0 {
		msg.Version = int32(r.uint32("version"))
	}
	if flags&hasTimeout != 0 {
		msg.TimeoutMs = int64(r.uint64("timeout"))
	}
	if flags&hasFilter != 0 {
		if f := r.next(1, "filter"); f != nil {
			msg.Filter = f[0]
		}
	}
	if flags&hasStat != 0 {
		msg.Stat = r.stat()
	}
	if flags&hasChildren != 0 {
		n := r.count("children")
		msg.Children = make([]string, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.Children = append(msg.Children, r.string("child"))
		}
	}
	if flags&hasEvents != 0 {
		n := r.count("events")
		msg.Events = make([]common.WatchEvent, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.Events = append(msg.Events, common.WatchEvent{
				Type: r.string("event type"),
				Path: r.string("event path"),
			})
		}
	}
	if flags&hasZxid != 0 {
		msg.Zxid = r.uint64("zxid")
	}
	if flags&hasCode != 0 {
		msg.Code = int32(r.uint32("code"))
	}
	if flags&hasErr != 0 {
		msg.Err = r.string("error")
	}

	msg.Ephemeral = flags&isEphemeral != 0
	msg.Recursive = flags&isRecursive != 0
	msg.Watch = flags&isWatch != 0
	msg.Ok = flags&isOk != 0

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 2 bytes for flags
	size := 3

	if msg.SessionID != 0 {
		size += 8
	}
	if msg.Path != "" {
		size += 4 + len(msg.Path)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Version != 0 {
		size += 4
	}
	if msg.TimeoutMs != 0 {
		size += 8
	}
	if msg.Filter != 0 {
		size += 1
	}
	if msg.Stat != nil {
		size += statSize
	}
	if msg.Children != nil {
		size += 4
		for _, child := range msg.Children {
			size += 4 + len(child)
		}
	}
	if len(msg.Events) > 0 {
		size += 4
		for _, ev := range msg.Events {
			size += 8 + len(ev.Type) + len(ev.Path)
		}
	}
	if msg.Zxid != 0 {
		size += 8
	}
	if msg.Code != 0 {
		size += 4
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}

// appendString writes a length prefixed string
func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

func appendStat(b []byte, s *common.Stat) []byte {
	b = binary.BigEndian.AppendUint64(b, s.Czxid)
	b = binary.BigEndian.AppendUint64(b, s.Mzxid)
	b = binary.BigEndian.AppendUint64(b, uint64(s.Ctime))
	b = binary.BigEndian.AppendUint64(b, uint64(s.Mtime))
	b = binary.BigEndian.AppendUint32(b, uint32(s.Version))
	b = binary.BigEndian.AppendUint64(b, uint64(s.EphemeralOwner))
	b = binary.BigEndian.AppendUint32(b, uint32(s.DataLength))
	return binary.BigEndian.AppendUint32(b, uint32(s.NumChildren))
}

// binaryReader reads the fields of a message, the first error stops all
// further reads
type binaryReader struct {
	data []byte
	pos  int
	err  error
}

func (r *binaryReader) next(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *binaryReader) uint32(field string) uint32 {
	if b := r.next(4, field); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *binaryReader) uint64(field string) uint64 {
	if b := r.next(8, field); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// count reads a list length, it can not exceed the remaining bytes
func (r *binaryReader) count(field string) int {
	n := int(r.uint32(field + " length"))
	if r.err == nil && n > len(r.data)-r.pos {
		r.err = fmt.Errorf("invalid %s length %d", field, n)
		return 0
	}
	return n
}

func (r *binaryReader) bytes(field string) []byte {
	n := int(r.uint32(field + " length"))
	b := r.next(n, field)
	if b == nil {
		return nil
	}
	// Copy, the buffer of the transport is reused
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *binaryReader) string(field string) string {
	n := int(r.uint32(field + " length"))
	return string(r.next(n, field))
}

func (r *binaryReader) stat() *common.Stat {
	if r.next(statSize, "stat") == nil {
		return nil
	}
	r.pos -= statSize
	return &common.Stat{
		Czxid:          r.uint64("czxid"),
		Mzxid:          r.uint64("mzxid"),
		Ctime:          int64(r.uint64("ctime")),
		Mtime:          int64(r.uint64("mtime")),
		Version:        int32(r.uint32("version")),
		EphemeralOwner: int64(r.uint64("ephemeral owner")),
		DataLength:     int32(r.uint32("data length")),
		NumChildren:    int32(r.uint32("children count")),
	}
}
