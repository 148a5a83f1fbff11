package chain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// DevPrivateKey is the first well-known development account key that local
// development nodes pre-fund. It is public and must never hold real funds.
const DevPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// DevAddress is the address of DevPrivateKey.
var DevAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// IsDevChain reports whether chainID belongs to a local development chain,
// the only chains on which the development key is used implicitly.
func IsDevChain(chainID uint64) bool {
	return chainID == 31337 || chainID == 1337
}

// ParsePrivateKey decodes a hex private key, with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid private key", err)
	}
	return key, nil
}

// ResolveSigner picks the deployer key: the configured key when set,
// otherwise the development key on development chains.
func ResolveSigner(hexKey string, chainID uint64) (*ecdsa.PrivateKey, error) {
	if hexKey != "" {
		return ParsePrivateKey(hexKey)
	}
	if IsDevChain(chainID) {
		return ParsePrivateKey(DevPrivateKey)
	}
	return nil, model.NewCLIError(
		model.ExitInvalidConfig,
		fmt.Sprintf("no private key configured for chain %d (set VOTEDEPLOY_PRIVATE_KEY)", chainID),
	)
}
