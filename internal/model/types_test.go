package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPathRole_IsValid checks that only defined roles pass validation.
func TestPathRole_IsValid(t *testing.T) {
	for _, r := range AllPathRoles {
		assert.True(t, r.IsValid(), r.String())
	}
	assert.False(t, PathRole("build").IsValid())
	assert.False(t, PathRole("").IsValid())
}

// TestParsePathRole verifies string-to-role conversion, including case
// normalization and error cases.
func TestParsePathRole(t *testing.T) {
	tests := []struct {
		input    string
		expected PathRole
		hasError bool
	}{
		{"artifacts", RoleArtifacts, false},
		{"sources", RoleSources, false},
		{"cache", RoleCache, false},
		{"tests", RoleTests, false},
		{"Artifacts", RoleArtifacts, false},
		{"test", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParsePathRole(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestPaths_Get(t *testing.T) {
	p := Paths{Artifacts: "./artifacts", Sources: "./contracts", Cache: "./cache", Tests: "./test"}
	assert.Equal(t, "./artifacts", p.Get(RoleArtifacts))
	assert.Equal(t, "./contracts", p.Get(RoleSources))
	assert.Equal(t, "./cache", p.Get(RoleCache))
	assert.Equal(t, "./test", p.Get(RoleTests))
	assert.Equal(t, "", p.Get(PathRole("other")))
}

func TestNetwork_InProcess(t *testing.T) {
	assert.True(t, Network{ChainID: 31337}.InProcess())
	assert.False(t, Network{URL: "http://127.0.0.1:8545", ChainID: 31337}.InProcess())
}

// TestParseFutureKind verifies that kinds parse case-insensitively.
func TestParseFutureKind(t *testing.T) {
	tests := []struct {
		input    string
		expected FutureKind
		hasError bool
	}{
		{"contract", KindContract, false},
		{"call", KindCall, false},
		{"staticCall", KindStaticCall, false},
		{"staticcall", KindStaticCall, false},
		{"library", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseFutureKind(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestFutureKind_IsCall(t *testing.T) {
	assert.False(t, KindContract.IsCall())
	assert.True(t, KindCall.IsCall())
	assert.True(t, KindStaticCall.IsCall())
}

// TestFuture_Dependencies checks that the target contract and argument
// references are reported once each, in order.
func TestFuture_Dependencies(t *testing.T) {
	f := Future{
		ID:       "M#Token.transfer",
		Kind:     KindCall,
		Contract: "M#Token",
		Method:   "transfer",
		Args:     []Arg{{Ref: "M#Vault"}, {Value: 1}, {Ref: "M#Token"}},
	}
	assert.Equal(t, []string{"M#Token", "M#Vault"}, f.Dependencies())

	deploy := Future{ID: "M#Token", Kind: KindContract, Args: []Arg{}}
	assert.Empty(t, deploy.Dependencies())
}

func TestFuture_ArgsString(t *testing.T) {
	f := Future{Args: []Arg{{Value: 42}, {Ref: "M#Token"}, {Value: "hi"}}}
	assert.Equal(t, "[42, @M#Token, hi]", f.ArgsString())

	empty := Future{Args: []Arg{}}
	assert.Equal(t, "[]", empty.ArgsString())
}

// TestValidateIdentifier checks identifier rules for modules, networks
// and explicit future IDs.
func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		id       string
		hasError bool
	}{
		{"SecureVotingModule", false},
		{"SecureVoting_checkVotingEndTime", false},
		{"localhost", false},
		{"base-sepolia", false},
		{"", true},
		{"1module", true},
		{"_private", true},
		{"has space", true},
		{"has#hash", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateIdentifier("future id", tt.id)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestCLIError verifies the custom error type used for exit code mapping.
func TestCLIError(t *testing.T) {
	t.Run("simple error", func(t *testing.T) {
		err := NewCLIError(ExitConfigNotFound, "config not found")
		assert.Equal(t, ExitConfigNotFound, err.Code)
		assert.Equal(t, "config not found", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitChainUnreachable, "cannot reach localhost", inner)
		assert.Equal(t, ExitChainUnreachable, err.Code)
		assert.Contains(t, err.Error(), "connection refused")
		assert.True(t, errors.Is(err, inner))
	})
}
