package registry

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
	"golang.org/x/mod/semver"
)

// Registry is a concurrency-safe capability lookup table.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	versions map[string]registration
	order    []string
	active   string
}

type registration struct {
	capability  ports.Capability
	description string
}

// RegisterOption customizes a registration.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	active      bool
	description string
}

// WithActive marks the registered version as the active one for its name.
func WithActive() RegisterOption {
	return func(o *registerOptions) { o.active = true }
}

// WithDescription attaches a human readable description.
func WithDescription(description string) RegisterOption {
	return func(o *registerOptions) { o.description = description }
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds capability under (name, version).
func (r *Registry) Register(name, version string, capability ports.Capability, opts ...RegisterOption) error {
	if name == "" {
		return fmt.Errorf("capability name is required")
	}
	if version == "" {
		return fmt.Errorf("capability %s: version is required", name)
	}
	if capability == nil {
		return fmt.Errorf("capability %s@%s is nil", name, version)
	}

	var options registerOptions
	for _, opt := range opts {
		opt(&options)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		e = &entry{versions: make(map[string]registration)}
		r.entries[name] = e
	}
	if _, exists := e.versions[version]; exists {
		return fmt.Errorf("%w: %s@%s", domain.ErrCapabilityExists, name, version)
	}

	e.versions[version] = registration{
		capability:  capability,
		description: options.description,
	}
	e.order = append(e.order, version)
	if options.active {
		e.active = version
	}
	return nil
}

// Deregister removes (name, version).
func (r *Registry) Deregister(name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCapabilityNotFound, name)
	}
	if _, ok := e.versions[version]; !ok {
		return fmt.Errorf("%w: %s@%s", domain.ErrCapabilityNotFound, name, version)
	}

	delete(e.versions, version)
	e.order = slices.DeleteFunc(e.order, func(v string) bool { return v == version })
	if e.active == version {
		e.active = ""
	}
	if len(e.versions) == 0 {
		delete(r.entries, name)
	}
	return nil
}

// SetActive marks an already registered version as active.
func (r *Registry) SetActive(name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCapabilityNotFound, name)
	}
	if _, ok := e.versions[version]; !ok {
		return fmt.Errorf("%w: %s@%s", domain.ErrCapabilityNotFound, name, version)
	}
	e.active = version
	return nil
}

// Resolve implements ports.CapabilityResolver.
func (r *Registry) Resolve(name, version string) (ports.Capability, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, "", false
	}

	if version == "" {
		version = e.latest()
	}

	reg, ok := e.versions[version]
	if !ok {
		return nil, "", false
	}
	return reg.capability, version, true
}

// latest picks the version used when none is requested.
func (e *entry) latest() string {
	if e.active != "" {
		return e.active
	}

	best := ""
	for _, v := range e.order {
		if !semver.IsValid(v) {
			continue
		}
		if best == "" || semver.Compare(v, best) > 0 {
			best = v
		}
	}
	if best != "" {
		return best
	}

	if len(e.order) == 0 {
		return ""
	}
	return e.order[len(e.order)-1]
}

// List returns every registration sorted by name and version.
func (r *Registry) List() []domain.CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]domain.CapabilityDescriptor, 0, len(r.entries))
	for name, e := range r.entries {
		latest := e.latest()
		for version, reg := range e.versions {
			descriptors = append(descriptors, domain.CapabilityDescriptor{
				Name:        name,
				Version:     version,
				Active:      version == latest,
				Description: reg.description,
			})
		}
	}

	slices.SortFunc(descriptors, func(a, b domain.CapabilityDescriptor) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Version, b.Version)
	})
	return descriptors
}

// Len returns the number of registered versions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		n += len(e.versions)
	}
	return n
}
