// Package registry implements the Verb Registry: the DSL's type system.
//
// The shape of VerbDef follows this codebase's existing
// VerbDefinition/ArgumentSpec structs, generalized from a live,
// health-monitored service registry into an immutable, config-loaded
// value, per the registry's invariant that it never changes after load.
// The Behavior tagged union and the standard verb catalog are grounded on
// the Rust `Behavior` enum and `STANDARD_VERBS` table this specification
// was distilled from.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Behavior is the tagged execution-pattern variant a verb declares. Only
// the group of fields annotated with Kind's name below is meaningful.
type Behavior struct {
	Kind BehaviorKind

	Table string // Insert, Select, Update, Delete, Upsert, ListByFk

	ConflictKeys []string // Upsert

	Junction string // Link, Unlink
	FromCol  string
	ToCol    string
	RoleCol  string // Link only, optional

	FkCol string // ListByFk

	PrimaryTable string // SelectWithJoin
	JoinTable    string
	JoinCol      string // join predicate: primary.JoinCol = join.JoinCol
	FilterCol    string // SelectWithJoin: the join table column filtered by the verb's argument

	CustomVerb string // Custom: the key into the Custom Handlers table
}

// BehaviorKind enumerates the nine generic execution patterns plus Custom.
type BehaviorKind string

const (
	Insert         BehaviorKind = "Insert"
	Select         BehaviorKind = "Select"
	Update         BehaviorKind = "Update"
	Delete         BehaviorKind = "Delete"
	Upsert         BehaviorKind = "Upsert"
	Link           BehaviorKind = "Link"
	Unlink         BehaviorKind = "Unlink"
	ListByFk       BehaviorKind = "ListByFk"
	SelectWithJoin BehaviorKind = "SelectWithJoin"
	Custom         BehaviorKind = "Custom"
)

// ReturnShape is the shape of a verb's captured result.
type ReturnShape string

const (
	ReturnsUUID      ReturnShape = "Uuid"
	ReturnsRecord    ReturnShape = "Record"
	ReturnsRecordSet ReturnShape = "RecordSet"
	ReturnsAffected  ReturnShape = "Affected"
	ReturnsVoid      ReturnShape = "Void"
)

// VerbDef is the registry's entry for one (domain, verb) pair: the DSL's
// type-system tuple.
type VerbDef struct {
	Domain        string
	Verb          string
	Behavior      Behavior
	RequiredArgs  []string
	OptionalArgs  []string
	Returns       ReturnShape
	Capture       bool // whether a returned Uuid may satisfy an :as binding
	Description   string
}

// QualifiedName returns "domain.verb".
func (v *VerbDef) QualifiedName() string { return v.Domain + "." + v.Verb }

// ValidationResult is the outcome of validating one VerbCall's arguments
// against a VerbDef: the multiset of missing required args, unknown args
// (a warning, not an error), and repeated args (an error).
type ValidationResult struct {
	Missing    []string
	Unknown    []string
	Duplicated []string
}

func (r ValidationResult) OK() bool {
	return len(r.Missing) == 0 && len(r.Duplicated) == 0
}

// Registry is the immutable, process-lifetime verb catalog. It is built
// once via Build and never mutated afterward; concurrent reads from many
// goroutines are always safe without additional locking once construction
// returns.
type Registry struct {
	byName map[string]*VerbDef
	names  []string // insertion order, for deterministic listing
	mu     sync.RWMutex
}

// Resolve looks up a verb by (domain, verb). The second return value is
// false if no such verb is registered.
func (r *Registry) Resolve(domain, verb string) (*VerbDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[domain+"."+verb]
	return def, ok
}

// List returns every registered verb definition in registration order.
func (r *Registry) List() []*VerbDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*VerbDef, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

// Len reports the number of registered verbs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Validate checks argument keys against a VerbDef's required/optional sets.
func Validate(def *VerbDef, providedKeys []string) ValidationResult {
	required := toSet(def.RequiredArgs)
	optional := toSet(def.OptionalArgs)

	seen := make(map[string]int)
	var unknown []string
	for _, k := range providedKeys {
		seen[k]++
		if !required[k] && !optional[k] {
			unknown = append(unknown, k)
		}
	}

	var missing []string
	for _, k := range def.RequiredArgs {
		if seen[k] == 0 {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)

	var duplicated []string
	for k, n := range seen {
		if n > 1 {
			duplicated = append(duplicated, k)
		}
	}
	sort.Strings(duplicated)

	return ValidationResult{Missing: missing, Unknown: unknown, Duplicated: duplicated}
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, i := range items {
		s[i] = true
	}
	return s
}

// Builder accumulates verb definitions and custom-handler names, then
// produces an immutable Registry via Build. Loading fails fast per the
// registry's contract: duplicate verb names, a Custom verb with no
// registered handler, a required argument also listed as optional, or an
// unknown behavior tag, all abort construction with a descriptive error.
type Builder struct {
	defs            []*VerbDef
	customHandlers  map[string]bool
}

// NewBuilder creates an empty Builder. customHandlers names every verb
// (qualified "domain.verb") that has a registered Custom Handler
// implementation; see internal/dslcore/customops.
func NewBuilder(customHandlers map[string]bool) *Builder {
	return &Builder{customHandlers: customHandlers}
}

// Add stages a verb definition for inclusion in the built Registry.
func (b *Builder) Add(def VerbDef) *Builder {
	d := def
	b.defs = append(b.defs, &d)
	return b
}

// Build validates every staged definition and produces the immutable
// Registry, or returns the first validation failure encountered.
func (b *Builder) Build() (*Registry, error) {
	reg := &Registry{byName: make(map[string]*VerbDef)}

	for _, def := range b.defs {
		qn := def.QualifiedName()
		if _, exists := reg.byName[qn]; exists {
			return nil, fmt.Errorf("registry: duplicate verb %q", qn)
		}
		switch def.Behavior.Kind {
		case Insert, Select, Update, Delete, Upsert, Link, Unlink, ListByFk, SelectWithJoin, Custom:
			// known tag
		default:
			return nil, fmt.Errorf("registry: verb %q has unknown behavior tag %q", qn, def.Behavior.Kind)
		}
		if def.Behavior.Kind == Custom {
			handlerKey := def.Behavior.CustomVerb
			if handlerKey == "" {
				handlerKey = qn
			}
			if !b.customHandlers[handlerKey] {
				return nil, fmt.Errorf("registry: verb %q declares Custom behavior but no handler is registered", qn)
			}
		}
		required := toSet(def.RequiredArgs)
		for _, opt := range def.OptionalArgs {
			if required[opt] {
				return nil, fmt.Errorf("registry: verb %q lists %q as both required and optional", qn, opt)
			}
		}
		reg.byName[qn] = def
		reg.names = append(reg.names, qn)
	}
	return reg, nil
}
