package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/tuning"
)

func TestSQLiteIndex_LedgerAndSessions(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	entries := []ledger.Entry{
		{Seq: 1, At: at, Hook: "trade_sellable", Action: ledger.ActionSession, Area: "A1", Session: "S_1", Note: "open trader"},
		{Seq: 2, At: at, Hook: "trade_sellable", Action: ledger.ActionEmpty, Area: "A1", Kind: "STEEL", Count: 50, Session: "S_1"},
		{Seq: 3, At: at, Hook: "trade_close", Action: ledger.ActionConsume, Area: "A1", Kind: "STEEL", Count: 30, Session: "S_1"},
		{Seq: 4, At: at, Hook: "trade_close", Action: ledger.ActionReclaim, Area: "A1", Kind: "STEEL", Count: 20, Session: "S_1"},
		{Seq: 5, At: at, Hook: "trade_close", Action: ledger.ActionSession, Area: "A1", Session: "S_1", Note: "close cancelled"},
		{Seq: 6, At: at, Hook: "fuel_search", Action: ledger.ActionWithdraw, Area: "A1", Kind: "CHEMFUEL", Count: 7},
	}
	for _, e := range entries {
		if err := idx.WriteEntry(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	sess, err := idx.Session("S_1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.Area != "A1" || sess.Emptied != 50 || sess.Sold != 30 || sess.Reclaimed != 20 || sess.Outcome != "cancelled" {
		t.Fatalf("unexpected session row %#v", sess)
	}
	if n, err := idx.Units("fuel_search", ledger.ActionWithdraw); err != nil || n != 7 {
		t.Fatalf("units: n=%d err=%v", n, err)
	}
	if n, err := idx.Units("", ledger.ActionGrant); err != nil || n != 0 {
		t.Fatalf("expected zero grants, n=%d err=%v", n, err)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d, err := idx.CatalogDigest("items_defs")
	if err != nil || d != cats.Items.DefsDigest {
		t.Fatalf("items digest mismatch: %q err=%v", d, err)
	}
	if _, err := idx.CatalogDigest("tuning"); err != nil {
		t.Fatalf("tuning row missing: %v", err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	drops := 0
	s.OnDrop = func() { drops++ }
	s.ch <- req{kind: reqEntry, entry: ledger.Entry{Seq: 1}}

	_ = s.WriteEntry(ledger.Entry{Seq: 2})
	_ = s.WriteEntry(ledger.Entry{Seq: 3})

	st := s.Stats()
	if st.DropEntryTotal != 2 || drops != 2 {
		t.Fatalf("DropEntryTotal=%d drops=%d want=2", st.DropEntryTotal, drops)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_ClosedIsNoop(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.WriteEntry(ledger.Entry{Seq: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected empty path rejected")
	}
}
