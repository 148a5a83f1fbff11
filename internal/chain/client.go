// Package chain connects to an Ethereum network and executes deployment
// steps against it.
//
// Networks with a URL are reached over JSON-RPC via go-ethereum's
// ethclient. Networks without a URL run in-process on the simulated
// backend, configured with the network's chain ID and with the development
// account pre-funded, which mirrors how a local development chain starts.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/eth/ethconfig"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/node"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/votedeploy/internal/artifact"
	"github.com/shinji-kodama/votedeploy/internal/model"
)

// DefaultReceiptTimeout bounds how long a transaction may stay unmined.
const DefaultReceiptTimeout = 2 * time.Minute

// devBalance is the balance given to funded accounts on in-process chains.
var devBalance = new(big.Int).Mul(big.NewInt(10_000), big.NewInt(params.Ether))

// Backend is the subset of an Ethereum client the deployer needs. Both
// *ethclient.Client and the simulated backend's client satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Options configure Dial.
type Options struct {
	// PrivateKey is the hex deployer key. Empty means the development key
	// on development chains.
	PrivateKey string

	// ReceiptTimeout bounds each wait for a transaction receipt. Zero
	// means DefaultReceiptTimeout.
	ReceiptTimeout time.Duration

	// Logger receives debug output. Nil means the logrus standard logger.
	Logger logrus.FieldLogger
}

// Client executes contract deployments, transactions and static calls on
// one network. It signs with a single deployer key and waits for every
// transaction to be mined before returning, so callers observe the chain
// in the order they issued operations.
//
// Usage:
//
//	c, err := chain.Dial(ctx, "localhost", network, chain.Options{})
//	if err != nil { /* unreachable or wrong chain */ }
//	defer c.Close()
//	res, err := c.Deploy(ctx, artifact, nil)
type Client struct {
	network string
	chainID uint64

	// backend is either rpc or the simulated backend's client. All chain
	// access goes through it so both kinds of network behave the same.
	backend Backend
	sim     *simulated.Backend
	rpc     *ethclient.Client

	// key is the deployer key. When no key could be resolved, keyErr is
	// kept and returned on the first operation that needs to sign, so
	// read-only use (status checks, node readiness) still works.
	key    *ecdsa.PrivateKey
	keyErr error

	receiptTimeout time.Duration
	log            logrus.FieldLogger
}

// TxResult describes a mined transaction.
type TxResult struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64

	// Address is the created contract for deployments.
	Address common.Address
}

// Dial connects to the named network and checks its chain ID.
//
// A network with a URL is dialled over JSON-RPC and must report the chain
// ID from the config; otherwise Dial fails with ExitChainIDMismatch rather
// than risk sending transactions to the wrong chain. A network without a
// URL starts a fresh in-process chain, which needs a signer up front since
// nothing else can be done with it.
func Dial(ctx context.Context, name string, n model.Network, opts Options) (*Client, error) {
	c := &Client{
		network:        name,
		chainID:        n.ChainID,
		receiptTimeout: opts.ReceiptTimeout,
		log:            opts.Logger,
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = DefaultReceiptTimeout
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.key, c.keyErr = ResolveSigner(opts.PrivateKey, n.ChainID)

	if n.InProcess() {
		if c.keyErr != nil {
			return nil, c.keyErr
		}
		c.sim = newSimulated(n.ChainID, crypto.PubkeyToAddress(c.key.PublicKey))
		c.backend = c.sim.Client()
		c.log.WithFields(logrus.Fields{"network": name, "chainId": n.ChainID}).Debug("started in-process chain")
		return c, nil
	}

	rpc, err := ethclient.DialContext(ctx, n.URL)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitChainUnreachable, fmt.Sprintf("cannot connect to network %s at %s", name, n.URL), err)
	}
	c.rpc = rpc
	c.backend = rpc
	if err := c.VerifyChainID(ctx); err != nil {
		rpc.Close()
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"network": name, "url": n.URL, "chainId": n.ChainID}).Debug("connected")
	return c, nil
}

// newSimulated starts an in-process chain with the given chain ID and the
// given accounts funded.
func newSimulated(chainID uint64, funded ...common.Address) *simulated.Backend {
	alloc := types.GenesisAlloc{DevAddress: {Balance: devBalance}}
	for _, addr := range funded {
		alloc[addr] = types.Account{Balance: devBalance}
	}
	return simulated.NewBackend(alloc, func(_ *node.Config, ethConf *ethconfig.Config) {
		cfg := *ethConf.Genesis.Config
		cfg.ChainID = new(big.Int).SetUint64(chainID)
		ethConf.Genesis.Config = &cfg
		ethConf.NetworkId = chainID
	})
}

// Close releases the connection or stops the in-process chain.
func (c *Client) Close() error {
	if c.sim != nil {
		return c.sim.Close()
	}
	if c.rpc != nil {
		c.rpc.Close()
	}
	return nil
}

// Network returns the network name.
func (c *Client) Network() string { return c.network }

// ChainID returns the configured chain ID.
func (c *Client) ChainID() uint64 { return c.chainID }

// InProcess reports whether the client runs an in-process chain.
func (c *Client) InProcess() bool { return c.sim != nil }

// From returns the deployer address, or the zero address if no signer is
// available.
func (c *Client) From() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// VerifyChainID checks that the endpoint reports the configured chain ID.
func (c *Client) VerifyChainID(ctx context.Context) error {
	got, err := c.backend.ChainID(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitChainUnreachable, fmt.Sprintf("cannot query chain ID of network %s", c.network), err)
	}
	if !got.IsUint64() || got.Uint64() != c.chainID {
		return model.NewCLIError(
			model.ExitChainIDMismatch,
			fmt.Sprintf("network %s reports chain ID %s, but the config says %d", c.network, got, c.chainID),
		)
	}
	return nil
}

// HasCode reports whether a contract exists at addr.
func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.keyErr != nil {
		return nil, c.keyErr
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, new(big.Int).SetUint64(c.chainID))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// Deploy creates a contract from the artifact's bytecode. args must already
// be converted to ABI Go types.
func (c *Client) Deploy(ctx context.Context, a *artifact.Artifact, args []any) (*TxResult, error) {
	code, err := a.Code()
	if err != nil {
		return nil, err
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	addr, tx, _, err := bind.DeployContract(opts, a.ABI, code, c.backend, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to send deployment of %s: %w", a.ContractName, err)
	}
	c.log.WithFields(logrus.Fields{"contract": a.ContractName, "tx": tx.Hash().Hex()}).Debug("deployment sent")

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return nil, err
	}
	if receipt.ContractAddress != addr {
		return nil, fmt.Errorf("deployment of %s created %s, expected %s", a.ContractName, receipt.ContractAddress.Hex(), addr.Hex())
	}
	return &TxResult{
		TxHash:      tx.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Address:     addr,
	}, nil
}

// Transact sends a state-changing call to method on the contract at addr.
func (c *Client) Transact(ctx context.Context, a *artifact.Artifact, addr common.Address, method string, args []any) (*TxResult, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	bound := bind.NewBoundContract(addr, a.ABI, c.backend, c.backend, c.backend)
	tx, err := bound.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s.%s: %w", a.ContractName, method, err)
	}
	c.log.WithFields(logrus.Fields{"contract": a.ContractName, "method": method, "tx": tx.Hash().Hex()}).Debug("transaction sent")

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &TxResult{
		TxHash:      tx.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// StaticCall executes method as eth_call against the latest state and
// returns the decoded outputs.
func (c *Client) StaticCall(ctx context.Context, a *artifact.Artifact, addr common.Address, method string, args []any) ([]any, error) {
	bound := bind.NewBoundContract(addr, a.ABI, c.backend, c.backend, c.backend)
	var out []any
	if err := bound.Call(&bind.CallOpts{Context: ctx, From: c.From()}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("call %s.%s failed: %w", a.ContractName, method, err)
	}
	return out, nil
}

// waitMined waits for tx's receipt and fails on reverts. In-process chains
// only mine on request, so the pending block is committed first.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if c.sim != nil {
		c.sim.Commit()
	}
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("transaction %s not mined within %s", tx.Hash().Hex(), c.receiptTimeout)
		}
		return nil, fmt.Errorf("waiting for transaction %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted in block %s", tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}
