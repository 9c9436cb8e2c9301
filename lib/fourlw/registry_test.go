package fourlw

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

// allowList is a static AllowListSource
type allowList string

func (a allowList) FourLetterWordAllowList() string {
	return string(a)
}

// newTestRegistry registers the given commands, each answering with its own name
func newTestRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, name := range names {
		name := name
		if err := r.Register(NewCommand(name, func() string { return name + "-response" })); err != nil {
			t.Fatalf("Register(%q) failed: %v", name, err)
		}
	}
	return r
}

func TestRegistryDispatch(t *testing.T) {
	nop := "This command is not executed: it is not in the four letter word allow list.\n"

	tests := []struct {
		name      string
		allowList string
		prefix    string
		want      string
		handled   bool
	}{
		{name: "allowed", allowList: "ruok,stat", prefix: "ruok", want: "ruok-response", handled: true},
		{name: "not allowed", allowList: "ruok", prefix: "stat", want: nop, handled: true},
		{name: "unknown", allowList: "ruok", prefix: "abcd", handled: false},
		{name: "wildcard", allowList: "*", prefix: "stat", want: "stat-response", handled: true},
		{name: "wildcard with others", allowList: "ruok, * ,stat", prefix: "mntr", want: "mntr-response", handled: true},
		{name: "spaces and empty entries", allowList: " ruok , ,, stat ", prefix: "stat", want: "stat-response", handled: true},
		{name: "empty allow list", allowList: "", prefix: "ruok", want: nop, handled: true},
		{name: "unregistered name ignored", allowList: "ruok,zzzz", prefix: "ruok", want: "ruok-response", handled: true},
		{name: "trailing bytes", allowList: "ruok", prefix: "ruok\r\n", want: "ruok-response", handled: true},
		{name: "short prefix", allowList: "*", prefix: "ru", handled: false},
		{name: "reserved code", allowList: "*", prefix: "\x00\x00\x00\x00", handled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t, RuokName, StatName, MonitorName)
			if err := r.InitializeAllowList(allowList(tt.allowList)); err != nil {
				t.Fatalf("InitializeAllowList failed: %v", err)
			}

			got, handled := r.Dispatch([]byte(tt.prefix))
			if handled != tt.handled {
				t.Fatalf("Dispatch(%q) handled = %v, want %v", tt.prefix, handled, tt.handled)
			}
			if got != tt.want {
				t.Errorf("Dispatch(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestRegistryOnlyRuok(t *testing.T) {
	r := newTestRegistry(t, RuokName)
	if err := r.InitializeAllowList(allowList("ruok")); err != nil {
		t.Fatal(err)
	}

	if !r.IsKnown(MustCode(RuokName)) || !r.IsEnabled(MustCode(RuokName)) {
		t.Error("ruok should be known and enabled")
	}
	if r.IsKnown(MustCode(MonitorName)) {
		t.Error("mntr should not be known")
	}
	if r.IsEnabled(MustCode(MonitorName)) {
		t.Error("mntr should not be enabled")
	}
	if got := r.Get(MustCode(RuokName)).Run(); got != "ruok-response" {
		t.Errorf("Run() = %q", got)
	}
}

func TestRegistryRegisterErrors(t *testing.T) {
	r := newTestRegistry(t, RuokName)

	if err := r.Register(NewCommand(RuokName, func() string { return "" })); !errors.Is(err, ErrCommandAlreadyRegistered) {
		t.Errorf("duplicate Register error = %v, want ErrCommandAlreadyRegistered", err)
	}
	if err := r.Register(NewCommand("toolong", func() string { return "" })); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Register with invalid name error = %v, want ErrInvalidName", err)
	}
	if err := r.Register(NewCommand("\x00\x00\x00\x00", func() string { return "" })); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Register with reserved code error = %v, want ErrInvalidName", err)
	}

	if err := r.InitializeAllowList(allowList("*")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(NewCommand(StatName, func() string { return "" })); !errors.Is(err, ErrRegistryInitialized) {
		t.Errorf("Register after init error = %v, want ErrRegistryInitialized", err)
	}
	if err := r.InitializeAllowList(allowList("*")); !errors.Is(err, ErrRegistryInitialized) {
		t.Errorf("second InitializeAllowList error = %v, want ErrRegistryInitialized", err)
	}
}

func TestRegistryMalformedAllowList(t *testing.T) {
	tests := []string{"ruok,toolong", "*,toolong", "ruok,*,ab"}
	for _, list := range tests {
		t.Run(list, func(t *testing.T) {
			r := newTestRegistry(t, RuokName)
			err := r.InitializeAllowList(allowList(list))
			if !errors.Is(err, ErrMalformedAllowList) {
				t.Fatalf("InitializeAllowList error = %v, want ErrMalformedAllowList", err)
			}
			if r.IsInitialized() {
				t.Error("registry must stay unpublished after a malformed allow list")
			}
		})
	}
}

func TestRegistryQueryBeforeInit(t *testing.T) {
	queries := map[string]func(r *Registry){
		"IsKnown":   func(r *Registry) { r.IsKnown(MustCode(RuokName)) },
		"IsEnabled": func(r *Registry) { r.IsEnabled(MustCode(RuokName)) },
		"Get":       func(r *Registry) { r.Get(MustCode(RuokName)) },
		"Dispatch":  func(r *Registry) { r.Dispatch([]byte(RuokName)) },
	}

	for name, query := range queries {
		t.Run(name, func(t *testing.T) {
			r := newTestRegistry(t, RuokName)
			defer func() {
				if recover() == nil {
					t.Errorf("%s did not panic before initialization", name)
				}
			}()
			query(r)
		})
	}
}

func TestRegistryGetUnknownPanics(t *testing.T) {
	r := newTestRegistry(t, RuokName)
	if err := r.InitializeAllowList(allowList("*")); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("Get did not panic for an unknown code")
		}
	}()
	r.Get(MustCode(StatName))
}

func TestRegistryCustomNop(t *testing.T) {
	r := newTestRegistry(t, RuokName, NopName)
	if err := r.InitializeAllowList(allowList("")); err != nil {
		t.Fatal(err)
	}
	got, handled := r.Dispatch([]byte(RuokName))
	if !handled || got != "nopc-response" {
		t.Errorf("Dispatch = %q, %v, want the registered nop response", got, handled)
	}
}

func TestRegistryConcurrentQueries(t *testing.T) {
	r := newTestRegistry(t, RuokName, StatName)
	if err := r.InitializeAllowList(allowList("ruok")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if got, _ := r.Dispatch([]byte(RuokName)); got != "ruok-response" {
					t.Errorf("Dispatch = %q", got)
					return
				}
				if r.IsEnabled(MustCode(StatName)) {
					t.Error("stat must not be enabled")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestRegistryNames(t *testing.T) {
	r := newTestRegistry(t, StatName, RuokName, MonitorName)
	got := strings.Join(r.Names(), ",")
	if want := "mntr,ruok,stat"; got != want {
		t.Errorf("Names() = %q, want %q", got, want)
	}
}
