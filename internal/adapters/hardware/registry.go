package hardware

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

// Config describes one hardware binding from the environment
// definition file, resolved to a parsed address.
type Config struct {
	ID       string
	Model    string
	Address  domain.Address
	Measures []domain.Quantity
	// Options carries model-specific settings, e.g. the OPC UA
	// endpoint and node id for remote sensors.
	Options map[string]string
}

// BuildFunc constructs a driver for one model. The address is already
// claimed when the builder runs; the returned driver's Close releases
// it.
type BuildFunc func(cfg Config, release func()) (ports.Driver, error)

var (
	modelsMu sync.RWMutex
	models   = map[string]BuildFunc{}
)

// RegisterModel binds a model identifier to its builder. Built-in
// models register from init; embedders may add their own before the
// engine starts.
func RegisterModel(name string, fn BuildFunc) {
	modelsMu.Lock()
	defer modelsMu.Unlock()
	if _, dup := models[name]; dup {
		panic(fmt.Sprintf("hardware: model %q registered twice", name))
	}
	models[name] = fn
}

// Models returns the sorted identifiers of all registered models.
func Models() []string {
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	out := make([]string, 0, len(models))
	for name := range models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// KnownModel reports whether a model identifier is registered; config
// validation uses it to reject unknown models before any hardware is
// touched.
func KnownModel(name string) bool {
	modelsMu.RLock()
	defer modelsMu.RUnlock()
	_, ok := models[name]
	return ok
}

// Registry enforces the one-owner-per-address rule. Every live driver
// claims its address on construction; a claim against a held address
// fails with AddressError and the whole owning subroutine's start
// fails with it.
type Registry struct {
	mu     sync.Mutex
	owners map[string]string // address string -> owner id
}

func NewRegistry() *Registry {
	return &Registry{owners: map[string]string{}}
}

func (r *Registry) claim(addr domain.Address, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := addr.String()
	if holder, held := r.owners[key]; held {
		return &domain.AddressError{
			Address: key,
			Reason:  fmt.Sprintf("already owned by %s", holder),
		}
	}
	r.owners[key] = owner
	return nil
}

func (r *Registry) release(addr domain.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, addr.String())
}

// Owner returns the current owner of an address, if any.
func (r *Registry) Owner(addr domain.Address) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[addr.String()]
	return owner, ok
}

// Build claims the address and constructs the driver for the given
// model. On builder failure the claim is rolled back so the address
// becomes acquirable again.
func (r *Registry) Build(cfg Config) (ports.Driver, error) {
	modelsMu.RLock()
	build, ok := models[cfg.Model]
	modelsMu.RUnlock()
	if !ok {
		return nil, &domain.AddressError{
			Address: cfg.Address.String(),
			Reason:  fmt.Sprintf("unknown model %q", cfg.Model),
		}
	}

	if err := r.claim(cfg.Address, cfg.ID); err != nil {
		return nil, err
	}

	release := func() { r.release(cfg.Address) }
	drv, err := build(cfg, release)
	if err != nil {
		release()
		return nil, err
	}
	return drv, nil
}

// base carries the identity shared by every built-in driver.
type base struct {
	id      string
	model   string
	addr    domain.Address
	release func()

	closeOnce sync.Once
}

func (b *base) ID() string              { return b.id }
func (b *base) Model() string           { return b.model }
func (b *base) Address() domain.Address { return b.addr }

func (b *base) Close() error {
	b.closeOnce.Do(func() {
		if b.release != nil {
			b.release()
		}
	})
	return nil
}
