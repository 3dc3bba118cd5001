package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// verbConfig is the on-disk shape of a single verb entry in the registry
// configuration file (see configs/verbs.yaml).
type verbConfig struct {
	Domain      string   `yaml:"domain"`
	Verb        string   `yaml:"verb"`
	Behavior    string   `yaml:"behavior"`
	Table       string   `yaml:"table,omitempty"`
	ConflictKeys []string `yaml:"conflict_keys,omitempty"`
	Junction    string   `yaml:"junction,omitempty"`
	FromCol     string   `yaml:"from_col,omitempty"`
	ToCol       string   `yaml:"to_col,omitempty"`
	RoleCol     string   `yaml:"role_col,omitempty"`
	FkCol       string   `yaml:"fk_col,omitempty"`
	PrimaryTable string  `yaml:"primary_table,omitempty"`
	JoinTable   string   `yaml:"join_table,omitempty"`
	JoinCol     string   `yaml:"join_col,omitempty"`
	FilterCol   string   `yaml:"filter_col,omitempty"`
	RequiredArgs []string `yaml:"required_args,omitempty"`
	OptionalArgs []string `yaml:"optional_args,omitempty"`
	Returns     string   `yaml:"returns"`
	Capture     bool     `yaml:"capture,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// configDocument is the top-level shape of the registry configuration file.
type configDocument struct {
	Verbs []verbConfig `yaml:"verbs"`
}

// LoadFile reads and parses a registry configuration file, then builds an
// immutable Registry from it. customHandlers names every qualified verb
// ("domain.verb") with a registered Custom Handler implementation.
func LoadFile(path string, customHandlers map[string]bool) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: reading config %s: %w", path, err)
	}
	return Load(data, customHandlers)
}

// Load parses registry configuration from an in-memory YAML document and
// builds an immutable Registry from it.
func Load(data []byte, customHandlers map[string]bool) (*Registry, error) {
	var doc configDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry: parsing config: %w", err)
	}

	b := NewBuilder(customHandlers)
	for _, vc := range doc.Verbs {
		behavior, err := toBehavior(vc)
		if err != nil {
			return nil, fmt.Errorf("registry: verb %s.%s: %w", vc.Domain, vc.Verb, err)
		}
		b.Add(VerbDef{
			Domain:       vc.Domain,
			Verb:         vc.Verb,
			Behavior:     behavior,
			RequiredArgs: vc.RequiredArgs,
			OptionalArgs: vc.OptionalArgs,
			Returns:      ReturnShape(vc.Returns),
			Capture:      vc.Capture,
			Description:  vc.Description,
		})
	}
	return b.Build()
}

func toBehavior(vc verbConfig) (Behavior, error) {
	kind := BehaviorKind(vc.Behavior)
	switch kind {
	case Insert, Select, Update, Delete, ListByFk:
		if vc.Table == "" {
			return Behavior{}, fmt.Errorf("%s behavior requires 'table'", kind)
		}
		return Behavior{Kind: kind, Table: vc.Table, FkCol: vc.FkCol}, nil
	case Upsert:
		if vc.Table == "" || len(vc.ConflictKeys) == 0 {
			return Behavior{}, fmt.Errorf("Upsert behavior requires 'table' and 'conflict_keys'")
		}
		return Behavior{Kind: kind, Table: vc.Table, ConflictKeys: vc.ConflictKeys}, nil
	case Link:
		if vc.Junction == "" || vc.FromCol == "" || vc.ToCol == "" {
			return Behavior{}, fmt.Errorf("Link behavior requires 'junction', 'from_col', 'to_col'")
		}
		return Behavior{Kind: kind, Junction: vc.Junction, FromCol: vc.FromCol, ToCol: vc.ToCol, RoleCol: vc.RoleCol}, nil
	case Unlink:
		if vc.Junction == "" || vc.FromCol == "" || vc.ToCol == "" {
			return Behavior{}, fmt.Errorf("Unlink behavior requires 'junction', 'from_col', 'to_col'")
		}
		return Behavior{Kind: kind, Junction: vc.Junction, FromCol: vc.FromCol, ToCol: vc.ToCol}, nil
	case SelectWithJoin:
		if vc.PrimaryTable == "" || vc.JoinTable == "" || vc.JoinCol == "" || vc.FilterCol == "" {
			return Behavior{}, fmt.Errorf("SelectWithJoin behavior requires 'primary_table', 'join_table', 'join_col', 'filter_col'")
		}
		return Behavior{Kind: kind, PrimaryTable: vc.PrimaryTable, JoinTable: vc.JoinTable, JoinCol: vc.JoinCol, FilterCol: vc.FilterCol}, nil
	case Custom:
		handlerKey := vc.Domain + "." + vc.Verb
		return Behavior{Kind: kind, CustomVerb: handlerKey}, nil
	default:
		return Behavior{}, fmt.Errorf("unknown behavior tag %q", vc.Behavior)
	}
}
