package ignition

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// TestSecureVoting verifies the built-in deployment recipe: exactly one
// contract with an empty constructor argument list and exactly two
// argument-less read calls with their explicit IDs.
func TestSecureVoting(t *testing.T) {
	m, err := SecureVoting()
	require.NoError(t, err)

	assert.Equal(t, "SecureVotingModule", m.ID)

	contracts := m.Contracts()
	require.Len(t, contracts, 1)
	assert.Equal(t, "SecureVotingModule#SecureVoting", contracts[0].ID)
	assert.Equal(t, "SecureVoting", contracts[0].ContractName)
	assert.NotNil(t, contracts[0].Args)
	assert.Empty(t, contracts[0].Args)

	calls := m.Calls()
	require.Len(t, calls, 2)

	assert.Equal(t, "SecureVotingModule#SecureVoting_checkVotingEndTime", calls[0].ID)
	assert.Equal(t, "votingEndTime", calls[0].Method)
	assert.Equal(t, model.KindStaticCall, calls[0].Kind)
	assert.Equal(t, contracts[0].ID, calls[0].Contract)
	assert.Empty(t, calls[0].Args)

	assert.Equal(t, "SecureVotingModule#SecureVoting_checkInitialResults", calls[1].ID)
	assert.Equal(t, "getResults", calls[1].Method)
	assert.Equal(t, model.KindStaticCall, calls[1].Kind)
	assert.Empty(t, calls[1].Args)

	assert.Equal(t, map[string]string{"secureVoting": contracts[0].ID}, m.Results)
}

// TestSecureVoting_Idempotent verifies that building twice yields equal modules.
func TestSecureVoting_Idempotent(t *testing.T) {
	a, err := SecureVoting()
	require.NoError(t, err)
	b, err := SecureVoting()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// TestLoadModule_MatchesBuiltin verifies that the YAML file form of the
// voting module builds exactly the same futures as the Go definition.
func TestLoadModule_MatchesBuiltin(t *testing.T) {
	fromFile, err := LoadModule(filepath.Join("testdata", "SecureVoting.yaml"))
	require.NoError(t, err)

	builtin, err := SecureVoting()
	require.NoError(t, err)

	assert.Equal(t, builtin, fromFile)
}

// TestLoadModule_JSON verifies that a JSON module file is recognised as a
// file reference and decodes to the same module as the Go definition.
func TestLoadModule_JSON(t *testing.T) {
	path := filepath.Join("testdata", "SecureVoting.json")
	require.True(t, IsModuleFile("SecureVoting.json"))

	fromFile, err := LoadModule(path)
	require.NoError(t, err)

	builtin, err := SecureVoting()
	require.NoError(t, err)
	assert.Equal(t, builtin, fromFile)
}

// TestLoadModule_ForwardReference checks that a constructor argument may
// reference a contract declared later, and that the plan reorders them.
func TestLoadModule_ForwardReference(t *testing.T) {
	m, err := LoadModule(filepath.Join("testdata", "Registry.yaml"))
	require.NoError(t, err)

	ballot, ok := m.Future("RegistryModule#Ballot")
	require.True(t, ok)
	require.Len(t, ballot.Args, 2)
	assert.Equal(t, "RegistryModule#Registry", ballot.Args[0].Ref)
	assert.Equal(t, 3600, ballot.Args[1].Value)

	plan, err := Plan(m)
	require.NoError(t, err)
	ids := make([]string, len(plan))
	for i := range plan {
		ids[i] = plan[i].ID
	}
	assert.Equal(t, []string{
		"RegistryModule#Registry",
		"RegistryModule#Ballot",
		"RegistryModule#Registry.register",
	}, ids)
}

func TestLoadModule_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{
			name:    "unknown key",
			content: "id: M\ncontracts:\n  - name: A\n    value: 1\n",
			errPart: "value",
		},
		{
			name:    "unknown call target",
			content: "id: M\ncontracts:\n  - name: A\ncalls:\n  - contract: B\n    method: f\n",
			errPart: "unknown contract \"B\"",
		},
		{
			name:    "duplicate contract",
			content: "id: M\ncontracts:\n  - name: A\n  - name: A\n",
			errPart: "declared twice",
		},
		{
			name:    "bad ref mapping",
			content: "id: M\ncontracts:\n  - name: A\n    args: [{ref: A, extra: 1}]\n",
			errPart: "exactly one",
		},
		{
			name:    "self reference",
			content: "id: M\ncontracts:\n  - name: A\n    args: [{ref: A}]\n",
			errPart: "cycle",
		},
		{
			name:    "unknown result",
			content: "id: M\ncontracts:\n  - name: A\nresults:\n  b: B\n",
			errPart: "result b",
		},
		{
			name:    "empty",
			content: "",
			errPart: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModule([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestLoadModule_NotFound(t *testing.T) {
	_, err := LoadModule(filepath.Join(t.TempDir(), "nope.yaml"))
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitInvalidModule, cliErr.Code)
}

// --- Builder tests ---

func TestBuilder_DefaultIDs(t *testing.T) {
	b := NewBuilder("TokenModule")
	token := b.Contract("Token", nil)
	b.Call(token, "mint", []model.Arg{Value(100)})
	b.StaticCall(token, "totalSupply", nil)

	m, err := b.Build()
	require.NoError(t, err)

	require.Len(t, m.Futures, 3)
	assert.Equal(t, "TokenModule#Token", m.Futures[0].ID)
	assert.Equal(t, "TokenModule#Token.mint", m.Futures[1].ID)
	assert.Equal(t, model.KindCall, m.Futures[1].Kind)
	assert.Equal(t, "TokenModule#Token.totalSupply", m.Futures[2].ID)
	assert.Equal(t, []model.Arg{}, m.Futures[0].Args, "nil args become an explicit empty list")
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("unknown target", func(t *testing.T) {
		b := NewBuilder("M")
		b.StaticCall("M#Missing", "f", nil)
		_, err := b.Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a contract future")
	})

	t.Run("duplicate ids", func(t *testing.T) {
		b := NewBuilder("M")
		b.Contract("A", nil)
		b.Contract("A", nil)
		_, err := b.Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate future id")
	})

	t.Run("invalid explicit id", func(t *testing.T) {
		b := NewBuilder("M")
		b.Contract("A", nil, WithID("has space"))
		_, err := b.Build()
		require.Error(t, err)
	})

	t.Run("invalid module id", func(t *testing.T) {
		b := NewBuilder("9lives")
		b.Contract("A", nil)
		_, err := b.Build()
		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitInvalidModule, cliErr.Code)
	})

	t.Run("no futures", func(t *testing.T) {
		_, err := NewBuilder("M").Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no futures")
	})
}

// --- Registry tests ---

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"SecureVotingModule"}, r.IDs())

	m, err := r.Get("SecureVotingModule")
	require.NoError(t, err)
	assert.Equal(t, "SecureVotingModule", m.ID)

	_, err = r.Get("Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SecureVotingModule")
}

func TestIsModuleFile(t *testing.T) {
	assert.True(t, IsModuleFile("ignition/modules/SecureVoting.yaml"))
	assert.True(t, IsModuleFile("mod.yml"))
	assert.True(t, IsModuleFile("mod.JSON"))
	assert.True(t, IsModuleFile(filepath.Join("ignition", "modules", "X")))
	assert.False(t, IsModuleFile("SecureVotingModule"))
}
