package fourlw

import (
	"errors"
	"testing"
)

func TestToCode(t *testing.T) {
	tests := []struct {
		name    string
		want    Code
		wantErr bool
	}{
		{name: "ruok", want: 0x72756f6b},
		{name: "mntr", want: 0x6d6e7472},
		{name: "dump", want: 0x64756d70},
		{name: "\x00\x00\x00\x01", want: 1},
		{name: "\xff\xff\xff\xff", want: -1},
		{name: "", wantErr: true},
		{name: "abc", wantErr: true},
		{name: "abcde", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToCode(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("ToCode(%q) error = %v, want ErrInvalidName", tt.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToCode(%q) unexpected error: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ToCode(%q) = %#x, want %#x", tt.name, got, tt.want)
			}
			if back := got.Name(); back != tt.name {
				t.Errorf("Code(%#x).Name() = %q, want %q", got, back, tt.name)
			}
		})
	}
}

func TestCodeFromPrefix(t *testing.T) {
	code, ok := CodeFromPrefix([]byte("statXYZ"))
	if !ok {
		t.Fatal("expected a code for a prefix with more than four bytes")
	}
	if code != MustCode(StatName) {
		t.Errorf("CodeFromPrefix = %q, want %q", code.Name(), StatName)
	}

	if _, ok := CodeFromPrefix([]byte("sta")); ok {
		t.Error("expected no code for a short prefix")
	}

	// a framed request for a small shard id starts with zero bytes
	frame := []byte{0, 0, 0, 0, 0, 0, 0, 1}
	code, ok = CodeFromPrefix(frame)
	if !ok || code != AllowListAll {
		t.Errorf("CodeFromPrefix(frame) = %v, %v, want the reserved code", code, ok)
	}
}

func TestCodeString(t *testing.T) {
	if s := AllowListAll.String(); s != "*" {
		t.Errorf("AllowListAll.String() = %q, want %q", s, "*")
	}
	if s := MustCode(RuokName).String(); s != RuokName {
		t.Errorf("String() = %q, want %q", s, RuokName)
	}
}

func TestMustCodePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustCode did not panic for an invalid name")
		}
	}()
	MustCode("toolong")
}
