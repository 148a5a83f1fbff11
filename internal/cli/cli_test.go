package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/votedeploy/internal/journal"
	"github.com/shinji-kodama/votedeploy/internal/model"
	"github.com/shinji-kodama/votedeploy/internal/project"
	"github.com/shinji-kodama/votedeploy/internal/settings"
	"github.com/shinji-kodama/votedeploy/internal/testutil"
)

// setupProject writes a default project with compiled SecureVoting
// artifacts and points the CLI settings at it.
func setupProject(t *testing.T, network string) string {
	t.Helper()
	root := t.TempDir()
	configFile := filepath.Join(root, "votedeploy.config.json")
	require.NoError(t, project.WriteConfig(configFile, project.DefaultConfig()))
	testutil.WriteSecureVotingArtifacts(t, filepath.Join(root, "artifacts"))

	useSettings(t, &settings.Settings{
		Network:        network,
		ConfigPath:     configFile,
		ReceiptTimeout: time.Minute,
	})
	return root
}

// useSettings swaps in s as the CLI settings and silences the logger until
// the test ends.
func useSettings(t *testing.T, s *settings.Settings) {
	t.Helper()
	prev, prevOut := current, logger.Out
	current = s
	logger.SetOutput(io.Discard)
	t.Cleanup(func() {
		current = prev
		logger.SetOutput(prevOut)
	})
}

// requireCode asserts that err is a CLIError carrying code.
func requireCode(t *testing.T, err error, code model.ExitCode) {
	t.Helper()
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %v", err)
	assert.Equal(t, code, cliErr.Code)
}

// TestResolveModule verifies the three ways a module reference resolves:
// empty falls back to SecureVotingModule, a file path is loaded from disk
// and anything else is looked up in the built-in registry.
func TestResolveModule(t *testing.T) {
	m, err := resolveModule("")
	require.NoError(t, err)
	assert.Equal(t, "SecureVotingModule", m.ID)

	m, err = resolveModule("../ignition/testdata/Registry.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"ballot", "registry"}, m.ResultNames())

	_, err = resolveModule("NoSuchModule")
	assert.Error(t, err)
}

// TestLoadProject verifies that the project root is the directory holding
// the config file.
func TestLoadProject(t *testing.T) {
	// Arrange
	root := setupProject(t, "hardhat")

	// Act
	env, err := loadProject()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, root, env.Root)
	assert.Equal(t, project.DefaultSolidityVersion, env.Config.Solidity.Version)
}

// TestLoadProject_Invalid verifies that a config failing validation is
// rejected with ExitInvalidConfig by both loadProject and config validate,
// and that the message names the offending field.
func TestLoadProject_Invalid(t *testing.T) {
	root := t.TempDir()
	configFile := filepath.Join(root, "votedeploy.config.json")
	require.NoError(t, os.WriteFile(configFile, []byte(`{"solidity": "0.8", "networks": {"hardhat": {"chainId": 31337}}}`), 0o644))
	useSettings(t, &settings.Settings{ConfigPath: configFile})

	_, err := loadProject()
	requireCode(t, err, model.ExitInvalidConfig)

	err = runConfigValidate()
	requireCode(t, err, model.ExitInvalidConfig)
	assert.Contains(t, err.Error(), "solidity.version")
}

// TestLoadSettings_EnvFileNextToConfig verifies that --config makes the
// CLI read that project's .env rather than one in the working directory.
func TestLoadSettings_EnvFileNextToConfig(t *testing.T) {
	// Arrange: a project elsewhere whose .env selects a deployer key.
	for _, name := range []string{"VOTEDEPLOY_PRIVATE_KEY", "VOTEDEPLOY_CONFIG", "VOTEDEPLOY_NETWORK"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	root := t.TempDir()
	configFile := filepath.Join(root, "votedeploy.config.json")
	require.NoError(t, project.WriteConfig(configFile, project.DefaultConfig()))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("VOTEDEPLOY_PRIVATE_KEY=0xfeed\n"), 0o644))

	prevCurrent, prevConfig, prevOut := current, configFlag, logger.Out
	t.Cleanup(func() {
		current, configFlag = prevCurrent, prevConfig
		logger.SetOutput(prevOut)
	})

	cmd, _, err := NewRootCommand().Find([]string{"status"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--config", configFile}))

	// Act
	require.NoError(t, loadSettings(cmd, nil))

	// Assert
	assert.Equal(t, configFile, current.ConfigPath)
	assert.Equal(t, "0xfeed", current.PrivateKey)
	assert.Equal(t, project.LocalhostNetwork, current.Network)
}

func TestNetworkName_Default(t *testing.T) {
	useSettings(t, &settings.Settings{})
	assert.Equal(t, project.InProcessNetwork, networkName())
}

// TestRunDeploy_InProcess runs a full deploy against the in-process chain.
func TestRunDeploy_InProcess(t *testing.T) {
	// Arrange
	root := setupProject(t, "hardhat")

	// Act
	require.NoError(t, runDeploy(context.Background(), "", &deployFlags{}))

	// Assert: in-process deployments leave nothing on disk.
	_, err := os.Stat(filepath.Join(root, journal.DeploymentsDir))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunDeploy_UnknownNetwork(t *testing.T) {
	setupProject(t, "sepolia")

	err := runDeploy(context.Background(), "", &deployFlags{})
	requireCode(t, err, model.ExitInvalidConfig)
}

// TestRunDeploy_MissingArtifacts verifies that the artifact check happens
// before any network is dialled.
func TestRunDeploy_MissingArtifacts(t *testing.T) {
	root := setupProject(t, "hardhat")
	require.NoError(t, os.RemoveAll(filepath.Join(root, "artifacts")))

	err := runDeploy(context.Background(), "", &deployFlags{})
	requireCode(t, err, model.ExitArtifactNotFound)
}

func TestRunModulePlan(t *testing.T) {
	setupProject(t, "localhost")
	assert.NoError(t, runModulePlan("", &modulePlanFlags{}))
}

// TestOpenJournal verifies journal selection: in-memory for in-process
// networks, on disk under ignition/deployments otherwise, reopened with its
// entries intact and emptied by --reset.
func TestOpenJournal(t *testing.T) {
	root := t.TempDir()

	j, err := openJournal(root, "", model.Network{ChainID: 31337}, false)
	require.NoError(t, err)
	assert.True(t, j.InMemory())

	local := model.Network{URL: project.LocalhostURL, ChainID: 31337}
	j, err = openJournal(root, "", local, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "ignition", "deployments", "chain-31337"), j.Path())

	f := model.Future{ID: "M#A", Kind: model.KindContract, ContractName: "A"}
	e := journal.NewEntry(journal.EntrySuccess, &f)
	e.Address = common.HexToAddress("0x01").Hex()
	require.NoError(t, j.Append(e))

	j, err = openJournal(root, "", local, false)
	require.NoError(t, err)
	assert.Len(t, j.Entries(), 1)

	j, err = openJournal(root, "", local, true)
	require.NoError(t, err)
	assert.Empty(t, j.Entries())
}

// TestRunStatus verifies that status works offline for a URL network and is
// refused for the in-process network, which has nothing to report on.
func TestRunStatus(t *testing.T) {
	setupProject(t, "localhost")
	assert.NoError(t, runStatus(&statusFlags{}))

	setupProject(t, "hardhat")
	assert.Error(t, runStatus(&statusFlags{}))
}

// TestRunConfigInit verifies that config init writes a config that loads
// back as the default, refuses to overwrite without --force and rejects
// unknown formats.
func TestRunConfigInit(t *testing.T) {
	dir := t.TempDir()
	useSettings(t, &settings.Settings{})

	require.NoError(t, runConfigInit(context.Background(), &configInitFlags{format: "yaml", dir: dir}))
	cfg, err := project.LoadAndValidate(filepath.Join(dir, "votedeploy.config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, project.DefaultConfig(), cfg)

	err = runConfigInit(context.Background(), &configInitFlags{format: "json", dir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	assert.NoError(t, runConfigInit(context.Background(), &configInitFlags{format: "json", dir: dir, force: true}))

	err = runConfigInit(context.Background(), &configInitFlags{format: "toml", dir: dir})
	assert.Error(t, err)
}

// TestRunConfigPath verifies that a path role resolves against the project
// root and that an unknown role is a usage error.
func TestRunConfigPath(t *testing.T) {
	setupProject(t, "hardhat")

	assert.NoError(t, runConfigPath("artifacts"))

	err := runConfigPath("bin")
	requireCode(t, err, model.ExitGeneralError)
	assert.Contains(t, err.Error(), "invalid path role")
}

// TestRunModuleShow_Kind verifies the --kind filter accepts the future kind
// names and rejects anything else before the module is printed.
func TestRunModuleShow_Kind(t *testing.T) {
	useSettings(t, &settings.Settings{})

	assert.NoError(t, runModuleShow("", &moduleShowFlags{}))
	assert.NoError(t, runModuleShow("", &moduleShowFlags{kind: "staticCall"}))

	err := runModuleShow("", &moduleShowFlags{kind: "transfer"})
	requireCode(t, err, model.ExitGeneralError)
	assert.Contains(t, err.Error(), "invalid --kind")
}

func TestFilterFutures(t *testing.T) {
	// Arrange
	m, err := resolveModule("")
	require.NoError(t, err)

	// Act
	contracts := filterFutures(m.Futures, model.KindContract)
	staticCalls := filterFutures(m.Futures, model.KindStaticCall)
	calls := filterFutures(m.Futures, model.KindCall)

	// Assert
	require.Len(t, contracts, 1)
	assert.Equal(t, "SecureVotingModule#SecureVoting", contracts[0].ID)
	require.Len(t, staticCalls, 2)
	assert.Equal(t, "SecureVotingModule#SecureVoting_checkVotingEndTime", staticCalls[0].ID)
	assert.Equal(t, "SecureVotingModule#SecureVoting_checkInitialResults", staticCalls[1].ID)
	// Never nil, so JSON output renders [] rather than null.
	assert.NotNil(t, calls)
	assert.Empty(t, calls)
}

// TestModuleResults verifies that each named result is resolved to the
// contract its future deploys.
func TestModuleResults(t *testing.T) {
	m, err := resolveModule("")
	require.NoError(t, err)
	assert.Equal(t, []moduleResult{
		{Name: "secureVoting", FutureID: "SecureVotingModule#SecureVoting", Contract: "SecureVoting"},
	}, moduleResults(m))

	m, err = resolveModule("../ignition/testdata/Registry.yaml")
	require.NoError(t, err)
	results := moduleResults(m)
	require.Len(t, results, 2)
	assert.Equal(t, "ballot", results[0].Name)
	assert.Equal(t, "registry", results[1].Name)
}

func TestFutureTarget(t *testing.T) {
	assert.Equal(t, "SecureVoting", futureTarget(model.Future{Kind: model.KindContract, ContractName: "SecureVoting"}))
	assert.Equal(t, "SecureVoting.getResults",
		futureTarget(model.Future{Kind: model.KindStaticCall, ContractName: "SecureVoting", Method: "getResults"}))
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status model.FutureStatus
		want   string
	}{
		{model.StatusSuccess, "[done]"},
		{model.StatusSkipped, "[skip]"},
		{model.StatusFailed, "[fail]"},
		{model.StatusPending, "[wait]"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, statusLabel(tt.status))
		})
	}
}

func TestStateDetail(t *testing.T) {
	tests := []struct {
		name string
		last journal.Entry
		want string
	}{
		{name: "error wins", last: journal.Entry{Error: "reverted", TxHash: "0xaa"}, want: "reverted"},
		{name: "address", last: journal.Entry{Address: "0x01", TxHash: "0xaa"}, want: "0x01"},
		{name: "result", last: journal.Entry{Result: "42"}, want: "= 42"},
		{name: "tx only", last: journal.Entry{TxHash: "0xaa"}, want: "0xaa"},
		{name: "empty", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateDetail(journal.FutureState{Last: tt.last}))
		})
	}
}
