package runstore

import (
	"path/filepath"
	"testing"

	"github.com/gustavo/chainagent/internal/compose"
	"github.com/gustavo/chainagent/internal/submit"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "runs.db"), filepath.Join(dir, "runs.lock"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store := openTestStore(t)

	run := NewRun("run-1", "transfer", "send 1 MNT to 0xabc", 5000)
	run.Stage = "submitted"
	run.TxRecords = []submit.TxRecord{{Hash: "0xbeef", Nonce: 4, Status: submit.TxStatusPending}}
	if err := store.Save(run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get("run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != "transfer" || got.Status != RunStatusRunning || got.ChainID != 5000 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if len(got.TxRecords) != 1 || got.TxRecords[0].Hash != "0xbeef" || got.TxRecords[0].Nonce != 4 {
		t.Fatalf("tx records did not round trip: %+v", got.TxRecords)
	}
}

func TestSaveUpsertsTerminalState(t *testing.T) {
	store := openTestStore(t)

	run := NewRun("run-2", "deposit", "deposit 100 USDC", 5000)
	if err := store.Save(run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	run.Status = RunStatusReported
	run.Stage = "reported"
	run.Outcome = &compose.Outcome{Success: true, Kind: "deposit", Message: "Deposited 100 USDC into the lending pool."}
	run.Touch()
	if err := store.Save(run); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	got, err := store.Get("run-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != RunStatusReported || got.Outcome == nil || !got.Outcome.Success {
		t.Fatalf("terminal state did not persist: %+v", got)
	}
}

func TestGetMissingRun(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get("nope"); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := openTestStore(t)

	a := NewRun("run-a", "transfer", "send 1 MNT", 5000)
	b := NewRun("run-b", "swap", "swap 1 MNT for USDC", 5000)
	b.Status = RunStatusFailed
	for _, run := range []Run{a, b} {
		if err := store.Save(run); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	all, err := store.List("", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d runs, want 2", len(all))
	}

	failed, err := store.List(string(RunStatusFailed), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].RunID != "run-b" {
		t.Fatalf("filtered list = %+v", failed)
	}
}

func TestSaveRequiresRunID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(Run{}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}
