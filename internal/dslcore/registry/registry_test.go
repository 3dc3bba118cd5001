package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func customHandlerNames() map[string]bool {
	return map[string]bool{
		"ubo.allege":           true,
		"ubo.link-proof":       true,
		"ubo.verify":           true,
		"ubo.mark-dirty":       true,
		"ubo.status":           true,
		"ubo.assert":           true,
		"ubo.trace-chains":     true,
		"ubo.snapshot-cbu":     true,
		"ubo.compare-snapshot": true,
	}
}

func TestLoadFile_LoadsConfiguredVerbs(t *testing.T) {
	reg, err := LoadFile("../../../configs/verbs.yaml", customHandlerNames())
	require.NoError(t, err)
	require.Greater(t, reg.Len(), 0)

	def, ok := reg.Resolve("cbu", "ensure")
	require.True(t, ok)
	require.Equal(t, Upsert, def.Behavior.Kind)
	require.Equal(t, "cbus", def.Behavior.Table)
	require.True(t, def.Capture)
}

func TestLoad_CustomVerbWithoutHandlerFailsFast(t *testing.T) {
	data := []byte(`
verbs:
  - domain: ubo
    verb: allege
    behavior: Custom
    required_args: [cbu-id]
    optional_args: []
    returns: Uuid
`)
	_, err := Load(data, map[string]bool{})
	require.Error(t, err)
}

func TestLoad_DuplicateVerbFailsFast(t *testing.T) {
	data := []byte(`
verbs:
  - domain: cbu
    verb: read
    behavior: Select
    table: cbus
    required_args: [cbu-id]
    optional_args: []
    returns: Record
  - domain: cbu
    verb: read
    behavior: Select
    table: cbus
    required_args: [cbu-id]
    optional_args: []
    returns: Record
`)
	_, err := Load(data, nil)
	require.Error(t, err)
}

func TestValidate_MissingRequiredAndUnknownArgs(t *testing.T) {
	def := &VerbDef{
		Domain:       "entity",
		Verb:         "create-proper-person",
		RequiredArgs: []string{"first-name", "last-name"},
		OptionalArgs: []string{"nationality"},
	}

	result := Validate(def, []string{"first-name", "nationality", "ssn"})
	require.Equal(t, []string{"last-name"}, result.Missing)
	require.Equal(t, []string{"ssn"}, result.Unknown)
	require.False(t, result.OK())
}

func TestValidate_DuplicateArgIsAnError(t *testing.T) {
	def := &VerbDef{RequiredArgs: []string{"name"}}
	result := Validate(def, []string{"name", "name"})
	require.Equal(t, []string{"name"}, result.Duplicated)
	require.False(t, result.OK())
}
