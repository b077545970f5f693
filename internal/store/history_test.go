package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testEntry(i int, address string) HistoryEntry {
	return HistoryEntry{
		TxHash:    fmt.Sprintf("0x%064x", i),
		Timestamp: time.Date(2026, 8, 1, 0, 0, i, 0, time.UTC),
		FromChain: "arbitrum",
		ToChain:   "hyperevm",
		Token:     "USDC",
		Amount:    "1.5",
		Address:   address,
		Status:    "pending",
	}
}

func TestHistoryAddAndListNewestFirst(t *testing.T) {
	s := NewHistoryStore(t.TempDir())
	for i := 1; i <= 3; i++ {
		if err := s.Add(testEntry(i, "0xAbC")); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	entries, err := s.List(0, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].TxHash != fmt.Sprintf("0x%064x", 3) {
		t.Fatalf("entries should be newest first, got %s", entries[0].TxHash)
	}
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	s := NewHistoryStore(t.TempDir())
	for i := 1; i <= maxHistoryEntries+5; i++ {
		if err := s.Add(testEntry(i, "0xabc")); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	entries, err := s.List(0, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != maxHistoryEntries {
		t.Fatalf("expected %d entries, got %d", maxHistoryEntries, len(entries))
	}
	// Oldest five were evicted; the oldest survivor is entry 6.
	if entries[len(entries)-1].TxHash != fmt.Sprintf("0x%064x", 6) {
		t.Fatalf("unexpected oldest entry: %s", entries[len(entries)-1].TxHash)
	}
}

func TestHistoryListFiltersAddressCaseInsensitive(t *testing.T) {
	s := NewHistoryStore(t.TempDir())
	if err := s.Add(testEntry(1, "0xAAAA")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add(testEntry(2, "0xBBBB")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	entries, err := s.List(10, "0xaaaa")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Address != "0xAAAA" {
		t.Fatalf("address filter failed: %+v", entries)
	}
}

func TestHistoryListLimit(t *testing.T) {
	s := NewHistoryStore(t.TempDir())
	for i := 1; i <= 5; i++ {
		if err := s.Add(testEntry(i, "0xabc")); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	entries, err := s.List(2, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestHistoryUpdateMergesPatch(t *testing.T) {
	s := NewHistoryStore(t.TempDir())
	entry := testEntry(1, "0xabc")
	if err := s.Add(entry); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := s.Update(entry.TxHash, HistoryPatch{Status: "completed", DepositTxHash: "0xdead"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	entries, _ := s.List(1, "")
	if entries[0].Status != "completed" || entries[0].DepositTxHash != "0xdead" {
		t.Fatalf("patch not applied: %+v", entries[0])
	}
	if entries[0].Token != "USDC" {
		t.Fatalf("untouched fields must survive: %+v", entries[0])
	}
}

func TestHistoryUpdateUnknownHashIsNoOp(t *testing.T) {
	s := NewHistoryStore(t.TempDir())
	if err := s.Add(testEntry(1, "0xabc")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Update("0xmissing", HistoryPatch{Status: "failed"}); err != nil {
		t.Fatalf("Update on unknown hash should be a no-op, got %v", err)
	}
	entries, _ := s.List(1, "")
	if entries[0].Status != "pending" {
		t.Fatalf("entry must be unchanged: %+v", entries[0])
	}
}

func TestHistoryCorruptFileReadsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "history.json"), []byte("nope"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	s := NewHistoryStore(dir)
	entries, err := s.List(0, "")
	if err != nil {
		t.Fatalf("List on corrupt file should not fail: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("corrupt file should read empty, got %d entries", len(entries))
	}
	// The next Add must recover the document.
	if err := s.Add(testEntry(1, "0xabc")); err != nil {
		t.Fatalf("Add after corruption failed: %v", err)
	}
	entries, _ = s.List(0, "")
	if len(entries) != 1 {
		t.Fatalf("expected recovery write, got %d entries", len(entries))
	}
}
