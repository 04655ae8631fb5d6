package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"deepstore.ai/internal/mediation/ledger"
	persistlog "deepstore.ai/internal/persistence/log"
)

func main() {
	var (
		dir     = flag.String("ledger", "./data/ledger", "directory containing ledger-*.jsonl.zst")
		verbose = flag.Bool("v", false, "print per-session totals")
	)
	flag.Parse()

	files, err := persistlog.LedgerFiles(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ledger files:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no ledger files in", *dir)
		os.Exit(2)
	}

	a := newAudit()
	for _, f := range files {
		if err := persistlog.ReadLedger(f, func(e ledger.Entry) error {
			a.Add(e)
			return nil
		}); err != nil {
			fmt.Fprintln(os.Stderr, "read ledger:", err)
			os.Exit(1)
		}
	}

	fmt.Printf("files=%d entries=%d last_seq=%d seq_gaps=%d sessions=%d\n", len(files), a.Entries, a.LastSeq, a.Gaps, len(a.Sessions))
	actions := make([]string, 0, len(a.Actions))
	for act := range a.Actions {
		actions = append(actions, string(act))
	}
	sort.Strings(actions)
	for _, act := range actions {
		fmt.Printf("  %-9s %d\n", act, a.Actions[ledger.Action(act)])
	}
	if *verbose {
		for _, id := range a.order {
			s := a.Sessions[id]
			fmt.Printf("session %s area=%s outcome=%s emptied=%v sold=%v reclaimed=%v\n",
				s.ID, s.Area, s.Closed, s.Emptied, s.Sold, s.Reclaimed)
		}
	}

	problems := a.Problems()
	for _, p := range problems {
		fmt.Println("FAIL", p)
	}
	if len(problems) > 0 {
		os.Exit(1)
	}
	fmt.Println("OK conservation holds")
}
