package chain

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/votedeploy/internal/artifact"
	"github.com/shinji-kodama/votedeploy/internal/model"
	"github.com/shinji-kodama/votedeploy/internal/testutil"
)

// dialInProcess starts a fresh simulated chain that is closed with the test.
func dialInProcess(t *testing.T, chainID uint64) *Client {
	t.Helper()
	c, err := Dial(context.Background(), "hardhat", model.Network{ChainID: chainID}, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// loadVoting returns the SecureVoting test artifact from a temporary
// artifacts directory.
func loadVoting(t *testing.T) *artifact.Artifact {
	t.Helper()
	root := filepath.Join(t.TempDir(), "artifacts")
	testutil.WriteSecureVotingArtifacts(t, root)
	store, err := artifact.NewStore(root)
	require.NoError(t, err)
	a, err := store.Find("SecureVoting")
	require.NoError(t, err)
	return a
}

// TestDial_InProcess verifies that a network without a URL gets a simulated
// chain with the requested chain ID and a funded development account.
func TestDial_InProcess(t *testing.T) {
	c := dialInProcess(t, 31337)

	assert.True(t, c.InProcess())
	assert.Equal(t, "hardhat", c.Network())
	assert.Equal(t, uint64(31337), c.ChainID())
	assert.Equal(t, DevAddress, c.From())
	require.NoError(t, c.VerifyChainID(context.Background()))

	balance, err := c.sim.Client().BalanceAt(context.Background(), DevAddress, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, balance.Sign())
}

// TestDeployAndCall exercises the three operations a deployment is made of
// against one contract: deploy, static call and transaction.
func TestDeployAndCall(t *testing.T) {
	// Arrange
	ctx := context.Background()
	c := dialInProcess(t, 31337)
	voting := loadVoting(t)

	// Act + Assert: deploy
	res, err := c.Deploy(ctx, voting, nil)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, res.Address)
	assert.NotEqual(t, common.Hash{}, res.TxHash)
	assert.NotZero(t, res.BlockNumber)

	ok, err := c.HasCode(ctx, res.Address)
	require.NoError(t, err)
	assert.True(t, ok)

	// Act + Assert: both views return the test contract's constant
	for _, method := range []string{"votingEndTime", "getResults"} {
		out, err := c.StaticCall(ctx, voting, res.Address, method, nil)
		require.NoError(t, err, method)
		require.Len(t, out, 1)
		assert.Equal(t, big.NewInt(42), out[0], method)
	}

	// Act + Assert: a transaction is mined in a later block
	tx, err := c.Transact(ctx, voting, res.Address, "vote", []any{uint8(1)})
	require.NoError(t, err)
	assert.Greater(t, tx.BlockNumber, res.BlockNumber)
}

// TestStaticCall_NoContract verifies that calling an address without code
// fails with an error naming the contract and method, and that HasCode
// reports the address as empty.
func TestStaticCall_NoContract(t *testing.T) {
	c := dialInProcess(t, 31337)
	voting := loadVoting(t)
	empty := common.HexToAddress("0x1234")

	_, err := c.StaticCall(context.Background(), voting, empty, "votingEndTime", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SecureVoting.votingEndTime")

	ok, err := c.HasCode(context.Background(), empty)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestDial_InProcessNeedsKeyOffDevChain verifies that the development key
// is only used on the development chain IDs.
func TestDial_InProcessNeedsKeyOffDevChain(t *testing.T) {
	_, err := Dial(context.Background(), "sim", model.Network{ChainID: 5}, Options{})
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitInvalidConfig, cliErr.Code)
}

func TestDial_InProcessWithExplicitKey(t *testing.T) {
	const key = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	c, err := Dial(context.Background(), "sim", model.Network{ChainID: 5}, Options{PrivateKey: "0x" + key})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), c.From())
	require.NoError(t, c.VerifyChainID(context.Background()))

	_, err = c.Deploy(context.Background(), loadVoting(t), nil)
	require.NoError(t, err)
}

// TestDial_Unreachable uses port 1, where nothing listens, so the dial
// fails fast with ExitChainUnreachable.
func TestDial_Unreachable(t *testing.T) {
	_, err := Dial(context.Background(), "localhost", model.Network{URL: "http://127.0.0.1:1", ChainID: 31337}, Options{})
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitChainUnreachable, cliErr.Code)
}

func TestVerifyChainID_Mismatch(t *testing.T) {
	// Arrange: pretend the config expects mainnet.
	c := dialInProcess(t, 31337)
	c.chainID = 1

	// Act

	err := c.VerifyChainID(context.Background())
	// Assert: the error reports the chain ID the node actually has.
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitChainIDMismatch, cliErr.Code)
	assert.Contains(t, err.Error(), "31337")
}

func TestResolveSigner(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		chainID uint64
		wantErr bool
	}{
		{name: "dev chain default", chainID: 31337},
		{name: "legacy dev chain default", chainID: 1337},
		{name: "public chain without key", chainID: 11155111, wantErr: true},
		{name: "explicit key", key: "0x" + DevPrivateKey, chainID: 11155111},
		{name: "malformed key", key: "0xnothex", chainID: 31337, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ResolveSigner(tt.key, tt.chainID)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, key)
		})
	}
}
