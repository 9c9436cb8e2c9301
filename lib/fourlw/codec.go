package fourlw

import (
	"encoding/binary"
	"fmt"
)

// --------------------------------------------------------------------------
// Command Code
// --------------------------------------------------------------------------

// NameLength is the fixed length of every four letter word.
const NameLength = 4

// Code is the packed representation of a four letter word.
//
// The four bytes of the name are packed big endian, the first character ends
// up in the most significant byte. A code therefore compares equal to the
// first four bytes read from a connection interpreted as a big endian int32,
// which is what the network layer relies on.
type Code int32

// AllowListAll is the reserved code of four zero bytes. Inside the allow list
// it matches every command (written as "*" in the configuration).
const AllowListAll Code = 0

// ToCode converts a four letter name to its code.
// It returns ErrInvalidName if the name is not exactly four bytes long.
func ToCode(name string) (Code, error) {
	if len(name) != NameLength {
		return 0, fmt.Errorf("%w: %q has %d bytes, expected %d", ErrInvalidName, name, len(name), NameLength)
	}
	return Code(int32(binary.BigEndian.Uint32([]byte(name)))), nil
}

// MustCode is like ToCode but panics on invalid names.
// It is meant for the built-in command names.
func MustCode(name string) Code {
	code, err := ToCode(name)
	if err != nil {
		panic(err)
	}
	return code
}

// CodeFromPrefix packs the first four bytes of b without validating them.
// The boolean is false if b holds less than four bytes.
func CodeFromPrefix(b []byte) (Code, bool) {
	if len(b) < NameLength {
		return 0, false
	}
	return Code(int32(binary.BigEndian.Uint32(b[:NameLength]))), true
}

// Name reconstructs the four raw bytes of the code.
// The result is only printable for codes that came from ToCode.
func (c Code) Name() string {
	var b [NameLength]byte
	binary.BigEndian.PutUint32(b[:], uint32(c))
	return string(b[:])
}

// String implements fmt.Stringer
func (c Code) String() string {
	if c == AllowListAll {
		return "*"
	}
	return c.Name()
}
