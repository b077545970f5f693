package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	historyVersion    = 1
	maxHistoryEntries = 100
)

// HistoryEntry records one bridge attempt, keyed by its source-chain
// transaction hash.
type HistoryEntry struct {
	TxHash        string    `json:"txHash"`
	Timestamp     time.Time `json:"timestamp"`
	FromChain     string    `json:"fromChain"`
	ToChain       string    `json:"toChain"`
	Token         string    `json:"token"`
	Amount        string    `json:"amount"`
	Address       string    `json:"address"`
	Status        string    `json:"status"`
	DepositTxHash string    `json:"depositTxHash,omitempty"`
}

// HistoryPatch carries the mutable fields of an entry. Empty fields are
// left untouched on update.
type HistoryPatch struct {
	Status        string
	DepositTxHash string
}

type historyFile struct {
	Version int            `json:"version"`
	Entries []HistoryEntry `json:"entries"`
}

// HistoryStore is the append-mostly log at ~/.mina/history.json. The file
// keeps at most the newest 100 entries; older ones are dropped oldest-first.
// Reads never fail: missing or corrupt files read as empty.
type HistoryStore struct {
	path string
	lock *flock.Flock
}

func NewHistoryStore(dir string) *HistoryStore {
	return &HistoryStore{
		path: filepath.Join(dir, "history.json"),
		lock: flock.New(filepath.Join(dir, "history.lock")),
	}
}

func (s *HistoryStore) Path() string { return s.path }

func (s *HistoryStore) read() historyFile {
	doc := historyFile{Version: historyVersion, Entries: []HistoryEntry{}}
	buf, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}
	var loaded historyFile
	if err := json.Unmarshal(buf, &loaded); err != nil {
		return doc
	}
	if loaded.Entries != nil {
		doc.Entries = loaded.Entries
	}
	return doc
}

// Add appends an entry and evicts the oldest beyond the cap.
func (s *HistoryStore) Add(entry HistoryEntry) error {
	return withLock(s.lock, func() error {
		doc := s.read()
		doc.Version = historyVersion
		doc.Entries = append(doc.Entries, entry)
		if len(doc.Entries) > maxHistoryEntries {
			doc.Entries = doc.Entries[len(doc.Entries)-maxHistoryEntries:]
		}
		return writeJSONAtomic(s.path, doc)
	})
}

// List returns entries newest first, optionally filtered by wallet address
// (case-insensitive). limit <= 0 means no limit.
func (s *HistoryStore) List(limit int, address string) ([]HistoryEntry, error) {
	doc := s.read()
	filter := strings.ToLower(strings.TrimSpace(address))

	out := make([]HistoryEntry, 0, len(doc.Entries))
	for i := len(doc.Entries) - 1; i >= 0; i-- {
		entry := doc.Entries[i]
		if filter != "" && strings.ToLower(entry.Address) != filter {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Update merges the patch into the entry with the exact hash. A hash with
// no entry is a no-op, not an error.
func (s *HistoryStore) Update(txHash string, patch HistoryPatch) error {
	return withLock(s.lock, func() error {
		doc := s.read()
		changed := false
		for i := range doc.Entries {
			if doc.Entries[i].TxHash != txHash {
				continue
			}
			if patch.Status != "" {
				doc.Entries[i].Status = patch.Status
			}
			if patch.DepositTxHash != "" {
				doc.Entries[i].DepositTxHash = patch.DepositTxHash
			}
			changed = true
		}
		if !changed {
			return nil
		}
		return writeJSONAtomic(s.path, doc)
	})
}
