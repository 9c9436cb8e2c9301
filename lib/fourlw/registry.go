package fourlw

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("fourlw")

var (
	// ErrInvalidName is returned for names that are not four bytes long.
	ErrInvalidName = errors.New("invalid four letter word")
	// ErrCommandAlreadyRegistered is returned when two commands share a name.
	ErrCommandAlreadyRegistered = errors.New("four letter word already registered")
	// ErrRegistryInitialized is returned for registrations after the allow list was published.
	ErrRegistryInitialized = errors.New("four letter word registry already initialized")
	// ErrMalformedAllowList is returned for allow list entries that are neither "*" nor four bytes long.
	ErrMalformedAllowList = errors.New("malformed four letter word allow list")
)

// AllowListSource provides the raw allow list configuration,
// either "*" or a comma separated list of four letter names.
type AllowListSource interface {
	FourLetterWordAllowList() string
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry holds all known four letter words and the allow list.
//
// The registry has two phases. During the build phase commands are registered
// from a single goroutine. InitializeAllowList ends the build phase and
// publishes the registry, after which the command map and the allow list are
// read only and every query method is safe for concurrent use without locks.
// Querying before publication panics.
type Registry struct {
	commands    map[Code]Command
	allowList   map[Code]struct{}
	nop         Command
	initialized atomic.Bool
}

// NewRegistry creates an empty registry in the build phase.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[Code]Command),
		allowList: make(map[Code]struct{}),
		nop:       NewNopCommand(),
	}
}

// Register adds a command. It fails if a command with the same code exists
// or the registry was already published.
func (r *Registry) Register(cmd Command) error {
	if r.initialized.Load() {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryInitialized, cmd.Name())
	}
	code, err := CodeOf(cmd)
	if err != nil {
		return err
	}
	if code == AllowListAll {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, cmd.Name())
	}
	if _, ok := r.commands[code]; ok {
		return fmt.Errorf("%w: %s", ErrCommandAlreadyRegistered, cmd.Name())
	}
	r.commands[code] = cmd
	if cmd.Name() == NopName {
		r.nop = cmd
	}
	return nil
}

// InitializeAllowList parses the allow list provided by src and publishes
// the registry. The flag is written as the last step, so readers that observe
// an initialized registry also observe the complete allow list.
//
// Entries are trimmed and empty entries are skipped. "*" allows every command.
// Entries that are not four bytes long are rejected, four letter names that
// are not registered are logged and ignored.
func (r *Registry) InitializeAllowList(src AllowListSource) error {
	if r.initialized.Load() {
		return ErrRegistryInitialized
	}
	allowed := make(map[Code]struct{})
	wildcard := false
	for _, token := range strings.Split(src.FourLetterWordAllowList(), ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		// every entry is validated, also after a wildcard
		if token == "*" {
			wildcard = true
			continue
		}
		code, err := ToCode(token)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedAllowList, err)
		}
		if _, ok := r.commands[code]; !ok {
			log.Warningf("ignoring unknown four letter word %q in allow list", token)
			continue
		}
		allowed[code] = struct{}{}
	}
	if wildcard {
		allowed = map[Code]struct{}{AllowListAll: {}}
	}

	r.allowList = allowed
	r.initialized.Store(true)
	log.Infof("four letter word registry initialized with %d commands, allow list: %s", len(r.commands), r.allowListString())
	return nil
}

// IsInitialized reports whether the registry was published.
func (r *Registry) IsInitialized() bool {
	return r.initialized.Load()
}

// CheckInitialization panics if the registry was not published yet.
func (r *Registry) CheckInitialization() {
	if !r.initialized.Load() {
		panic("four letter word registry queried before initialization")
	}
}

// IsKnown reports whether a command is registered for code, regardless of the allow list.
func (r *Registry) IsKnown(code Code) bool {
	r.CheckInitialization()
	_, ok := r.commands[code]
	return ok
}

// IsEnabled reports whether code is allowed to run.
func (r *Registry) IsEnabled(code Code) bool {
	r.CheckInitialization()
	if _, ok := r.allowList[AllowListAll]; ok {
		return true
	}
	_, ok := r.allowList[code]
	return ok
}

// Get returns the command registered for code.
// The caller must check IsKnown first, an unknown code panics.
func (r *Registry) Get(code Code) Command {
	r.CheckInitialization()
	cmd, ok := r.commands[code]
	if !ok {
		panic(fmt.Sprintf("four letter word %q is not registered", code.Name()))
	}
	return cmd
}

// Dispatch applies the dispatch policy to the first bytes of a connection.
//
// If the prefix is not a known command handled is false and the bytes belong
// to the regular protocol. Known but disallowed commands are answered by the
// fallback command, everything else by the registered command.
func (r *Registry) Dispatch(prefix []byte) (resp string, handled bool) {
	code, ok := CodeFromPrefix(prefix)
	if !ok || !r.IsKnown(code) {
		return "", false
	}
	if !r.IsEnabled(code) {
		log.Debugf("four letter word %s is not in the allow list", code.Name())
		return r.nop.Run(), true
	}
	return r.Get(code).Run(), true
}

// Names returns the names of all registered commands in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for _, cmd := range r.commands {
		names = append(names, cmd.Name())
	}
	sort.Strings(names)
	return names
}

func (r *Registry) allowListString() string {
	if _, ok := r.allowList[AllowListAll]; ok {
		return "*"
	}
	names := make([]string, 0, len(r.allowList))
	for code := range r.allowList {
		names = append(names, code.Name())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
