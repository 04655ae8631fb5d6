package main

import (
	"strings"
	"testing"

	"deepstore.ai/internal/mediation/ledger"
)

func feed(a *audit, entries ...ledger.Entry) {
	for i, e := range entries {
		e.Seq = uint64(i + 1)
		a.Add(e)
	}
}

func TestAuditBalancedFuelAndTrade(t *testing.T) {
	a := newAudit()
	feed(a,
		ledger.Entry{Hook: "fuel_search", Action: ledger.ActionWithdraw, Kind: "CHEMFUEL", Count: 20},
		ledger.Entry{Hook: "fuel_search", Action: ledger.ActionWithdraw, Kind: "CHEMFUEL", Count: 30},
		ledger.Entry{Hook: "fuel_search", Action: ledger.ActionConsume, Kind: "CHEMFUEL", Count: 20},
		ledger.Entry{Hook: "fuel_search", Action: ledger.ActionReturn, Kind: "CHEMFUEL", Count: 30},
		ledger.Entry{Hook: "trade_sellable", Action: ledger.ActionSession, Area: "A1", Session: "S_1", Note: "open pawn"},
		ledger.Entry{Hook: "trade_sellable", Action: ledger.ActionEmpty, Area: "A1", Kind: "STEEL", Count: 50, Session: "S_1", Note: "P000001"},
		ledger.Entry{Hook: "trade_close", Action: ledger.ActionConsume, Area: "A1", Kind: "STEEL", Count: 30, Session: "S_1", Note: "P000001"},
		ledger.Entry{Hook: "trade_close", Action: ledger.ActionConsume, Area: "A1", Kind: "WOOD", Count: 4, Session: "S_1", Note: "P000099"},
		ledger.Entry{Hook: "trade_close", Action: ledger.ActionReclaim, Area: "A1", Kind: "STEEL", Count: 20, Session: "S_1"},
		ledger.Entry{Hook: "trade_close", Action: ledger.ActionSession, Area: "A1", Session: "S_1", Note: "close sold"},
	)
	if p := a.Problems(); len(p) != 0 {
		t.Fatalf("unexpected problems: %v", p)
	}
	s := a.Sessions["S_1"]
	if s.Closed != "sold" || s.Sold["WOOD"] != 0 || s.Sold["STEEL"] != 30 {
		t.Fatalf("unexpected session %#v", s)
	}
	if a.Gaps != 0 || a.Entries != 10 {
		t.Fatalf("entries=%d gaps=%d", a.Entries, a.Gaps)
	}
}

func TestAuditReportsLeaks(t *testing.T) {
	a := newAudit()
	feed(a,
		ledger.Entry{Hook: "repair_part_search", Action: ledger.ActionWithdraw, Kind: "COMPONENT", Count: 1},
		ledger.Entry{Hook: "trade_sellable", Action: ledger.ActionEmpty, Area: "A1", Kind: "CLOTH", Count: 60, Session: "S_2", Note: "P000002"},
		ledger.Entry{Hook: "trade_close", Action: ledger.ActionReclaim, Area: "A1", Kind: "CLOTH", Count: 55, Session: "S_2"},
		ledger.Entry{Hook: "trade_close", Action: ledger.ActionSession, Area: "A1", Session: "S_2", Note: "close cancelled"},
		ledger.Entry{Hook: "trade_sellable", Action: ledger.ActionSession, Area: "A1", Session: "S_3", Note: "open pawn"},
	)
	p := a.Problems()
	if len(p) != 3 {
		t.Fatalf("expected 3 problems, got %v", p)
	}
	if !strings.Contains(p[0], "repair_part_search COMPONENT") || !strings.Contains(p[1], "leaked 5") || !strings.Contains(p[2], "never closed") {
		t.Fatalf("unexpected problems %v", p)
	}
}

func TestAuditCountsSeqGaps(t *testing.T) {
	a := newAudit()
	a.Add(ledger.Entry{Seq: 1, Hook: "reserve", Action: ledger.ActionGrant})
	a.Add(ledger.Entry{Seq: 4, Hook: "reserve", Action: ledger.ActionGrant})
	if a.Gaps != 1 {
		t.Fatalf("gaps=%d want 1", a.Gaps)
	}
}
