package inflight

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"storyreel/internal/services"
)

// Kind names an operation class, e.g. "scene_image" or "transition_videos".
type Kind string

// Key identifies one in-flight operation. An empty Target marks a batch
// operation over the whole collection.
type Key struct {
	Kind   Kind
	Target string
}

// Batch returns the key for a collection-wide operation of kind.
func Batch(kind Kind) Key { return Key{Kind: kind} }

// Item returns the key for an operation on a single target.
func Item(kind Kind, target string) Key { return Key{Kind: kind, Target: strings.TrimSpace(target)} }

// IsBatch reports whether the key covers the whole collection.
func (k Key) IsBatch() bool { return k.Target == "" }

func (k Key) String() string {
	if k.IsBatch() {
		return string(k.Kind)
	}
	return string(k.Kind) + "/" + k.Target
}

// Policy decides what happens when a key is acquired while already held.
type Policy int

const (
	// RejectDuplicates fails the second Acquire with services.ErrDuplicate.
	RejectDuplicates Policy = iota
	// AllowDuplicates reference-counts holders; the marker stays visible
	// until the last holder releases.
	AllowDuplicates
)

// ParsePolicy maps the config value ("reject" or "allow").
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "reject":
		return RejectDuplicates, nil
	case "allow":
		return AllowDuplicates, nil
	default:
		return RejectDuplicates, fmt.Errorf("unknown duplicate policy %q", value)
	}
}

func (p Policy) String() string {
	if p == AllowDuplicates {
		return "allow"
	}
	return "reject"
}

// Registry tracks in-flight operations keyed by (kind, target). It is safe
// for concurrent use.
type Registry struct {
	policy Policy

	mu     sync.Mutex
	active map[Key]int
}

// NewRegistry constructs an empty registry with the given policy.
func NewRegistry(policy Policy) *Registry {
	return &Registry{policy: policy, active: make(map[Key]int)}
}

// Policy returns the registry's duplicate policy.
func (r *Registry) Policy() Policy { return r.policy }

// Acquire marks key in flight and returns the function that clears it. The
// release function is idempotent, so it is safe to defer it and also call it
// early.
func (r *Registry) Acquire(key Key) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[key] > 0 && r.policy == RejectDuplicates {
		return nil, services.Wrap(services.ErrDuplicate, "inflight", "acquire", key.String()+" is already running", nil)
	}
	r.active[key]++

	var once sync.Once
	return func() {
		once.Do(func() { r.release(key) })
	}, nil
}

func (r *Registry) release(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[key] <= 1 {
		delete(r.active, key)
		return
	}
	r.active[key]--
}

// Has reports whether key is currently in flight.
func (r *Registry) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[key] > 0
}

// Busy reports whether a batch of kind or any single-target operation of kind
// is in flight.
func (r *Registry) Busy(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.active {
		if key.Kind == kind {
			return true
		}
	}
	return false
}

// Active returns the sorted targets of kind currently in flight. Batch
// markers are not included; use Has(Batch(kind)) for those.
func (r *Registry) Active(kind Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var targets []string
	for key := range r.active {
		if key.Kind == kind && !key.IsBatch() {
			targets = append(targets, key.Target)
		}
	}
	sort.Strings(targets)
	return targets
}

// Snapshot returns every in-flight key in a stable order.
func (r *Registry) Snapshot() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]Key, 0, len(r.active))
	for key := range r.active {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Target < keys[j].Target
	})
	return keys
}

// Len returns the number of distinct in-flight keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
