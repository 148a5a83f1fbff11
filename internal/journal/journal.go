// Package journal records deployment progress so that an interrupted or
// repeated deployment resumes where it stopped.
//
// A deployment lives in ignition/deployments/<deployment-id>/, by default
// chain-<chainId>. Every execution step is appended to journal.jsonl as one
// JSON object per line; the addresses of deployed contract futures are
// mirrored to deployed_addresses.json, which is rewritten atomically after
// each successful deployment. Journals for in-process chains are kept in
// memory only, since the chain itself disappears when the process exits.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

const (
	// DeploymentsDir is the deployments root, relative to the project root.
	DeploymentsDir = "ignition/deployments"

	// JournalFile holds the append-only entry log.
	JournalFile = "journal.jsonl"

	// AddressesFile maps contract future IDs to deployed addresses.
	AddressesFile = "deployed_addresses.json"
)

// EntryType identifies what a journal entry records.
type EntryType string

const (
	EntryStart   EntryType = "start"
	EntrySuccess EntryType = "success"
	EntryFailure EntryType = "failure"
)

// Entry is one line of the journal.
type Entry struct {
	Type     EntryType `json:"type"`
	FutureID string    `json:"futureId"`

	// Identity of the future at the time it ran. Reconcile compares these
	// against the current module.
	Kind         model.FutureKind `json:"kind,omitempty"`
	ContractName string           `json:"contractName,omitempty"`
	Method       string           `json:"method,omitempty"`
	Args         string           `json:"args,omitempty"`

	Address     string `json:"address,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Result      string `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`

	Time time.Time `json:"time"`
}

// NewEntry builds an entry of the given type carrying f's identity.
func NewEntry(typ EntryType, f *model.Future) Entry {
	return Entry{
		Type:         typ,
		FutureID:     f.ID,
		Kind:         f.Kind,
		ContractName: f.ContractName,
		Method:       f.Method,
		Args:         f.ArgsString(),
		Time:         time.Now().UTC(),
	}
}

// Matches reports whether the entry was recorded for a future with the
// same kind, contract, method and arguments as f.
func (e Entry) Matches(f *model.Future) bool {
	return e.Kind == f.Kind &&
		e.ContractName == f.ContractName &&
		e.Method == f.Method &&
		e.Args == f.ArgsString()
}

// FutureState is the latest known state of one future.
type FutureState struct {
	FutureID string             `json:"futureId"`
	Status   model.FutureStatus `json:"status"`

	// Last is the most recent entry for the future.
	Last Entry `json:"last"`
}

// Journal is a deployment's entry log. It is safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	dir     string
	entries []Entry
}

// Dir returns the deployment directory for a project. An empty
// deploymentID selects the per-chain default.
func Dir(projectRoot, deploymentID string, chainID uint64) string {
	if deploymentID == "" {
		deploymentID = fmt.Sprintf("chain-%d", chainID)
	}
	return filepath.Join(projectRoot, DeploymentsDir, deploymentID)
}

// NewMemory returns a journal that is never written to disk.
func NewMemory() *Journal {
	return &Journal{}
}

// Open loads the journal stored in dir. A missing directory yields an empty
// journal; the directory is created on the first Append.
func Open(dir string) (*Journal, error) {
	j := &Journal{dir: dir}

	data, err := os.ReadFile(filepath.Join(dir, JournalFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return j, nil
		}
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("corrupt journal %s line %d: %w", filepath.Join(dir, JournalFile), line, err)
		}
		j.entries = append(j.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return j, nil
}

// InMemory reports whether the journal has no backing directory.
func (j *Journal) InMemory() bool {
	return j.dir == ""
}

// Path returns the deployment directory, or "" for in-memory journals.
func (j *Journal) Path() string {
	return j.dir
}

// Append records an entry. Successful contract deployments also update
// deployed_addresses.json.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	if j.dir != "" {
		if err := j.appendLine(e); err != nil {
			return err
		}
	}
	j.entries = append(j.entries, e)

	if j.dir != "" && e.Type == EntrySuccess && e.Kind == model.KindContract {
		return writeAddresses(j.dir, j.addressesLocked())
	}
	return nil
}

func (j *Journal) appendLine(e Entry) error {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create deployment directory: %w", err)
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(j.dir, JournalFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return f.Close()
}

// Entries returns a copy of all entries in append order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

// States returns the latest state of every journaled future, in the order
// the futures first appeared.
func (j *Journal) States() []FutureState {
	j.mu.Lock()
	defer j.mu.Unlock()

	index := make(map[string]int)
	var states []FutureState
	for _, e := range j.entries {
		i, ok := index[e.FutureID]
		if !ok {
			i = len(states)
			index[e.FutureID] = i
			states = append(states, FutureState{FutureID: e.FutureID})
		}
		states[i].Last = e
		switch e.Type {
		case EntrySuccess:
			states[i].Status = model.StatusSuccess
		case EntryFailure:
			states[i].Status = model.StatusFailed
		default:
			states[i].Status = model.StatusPending
		}
	}
	return states
}

// Completed returns the success entry of a future whose latest entry is a
// success.
func (j *Journal) Completed(futureID string) (Entry, bool) {
	for _, s := range j.States() {
		if s.FutureID == futureID && s.Status == model.StatusSuccess {
			return s.Last, true
		}
	}
	return Entry{}, false
}

// Addresses maps completed contract future IDs to their addresses.
func (j *Journal) Addresses() map[string]string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.addressesLocked()
}

func (j *Journal) addressesLocked() map[string]string {
	addrs := make(map[string]string)
	for _, e := range j.entries {
		if e.Kind != model.KindContract {
			continue
		}
		switch e.Type {
		case EntrySuccess:
			addrs[e.FutureID] = e.Address
		case EntryStart, EntryFailure:
			delete(addrs, e.FutureID)
		}
	}
	return addrs
}

// Reset discards every entry and removes the journal files.
func (j *Journal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = nil
	if j.dir == "" {
		return nil
	}
	for _, name := range []string{JournalFile, AddressesFile} {
		if err := os.Remove(filepath.Join(j.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to reset deployment: %w", err)
		}
	}
	return nil
}

// writeAddresses replaces deployed_addresses.json via a rename so readers
// never observe a partially written file.
func writeAddresses(dir string, addrs map[string]string) error {
	data, err := json.MarshalIndent(addrs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode addresses: %w", err)
	}
	tmp, err := os.CreateTemp(dir, AddressesFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write addresses: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write addresses: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write addresses: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, AddressesFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write addresses: %w", err)
	}
	return nil
}

// LoadAddresses reads deployed_addresses.json from a deployment directory.
func LoadAddresses(dir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, AddressesFile))
	if err != nil {
		return nil, err
	}
	var addrs map[string]string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", AddressesFile, err)
	}
	return addrs, nil
}
