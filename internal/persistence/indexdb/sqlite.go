package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of the ledger. The JSONL logs
// stay the source of truth; entries are dropped when the writer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed    atomic.Bool
	dropTotal atomic.Uint64

	// OnDrop is called for every entry dropped by a full queue.
	OnDrop func()
}

type reqKind int

const (
	reqEntry reqKind = iota + 1
	reqFlush
)

type req struct {
	kind  reqKind
	entry ledger.Entry
	done  chan struct{}
}

type Stats struct {
	DropEntryTotal uint64
	QueueDepth     int
	QueueCapacity  int
}

// Session is the per-trade summary kept in the sessions table.
type Session struct {
	ID        string
	Area      string
	OpenedAt  string
	ClosedAt  string
	Outcome   string
	Emptied   int
	Sold      int
	Reclaimed int
}

const defaultQueue = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, defaultQueue)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ledger (
			seq INTEGER PRIMARY KEY,
			at TEXT NOT NULL,
			hook TEXT NOT NULL,
			action TEXT NOT NULL,
			area TEXT,
			container TEXT,
			kind TEXT,
			count INTEGER NOT NULL,
			session TEXT,
			code TEXT,
			note TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_hook_action ON ledger(hook, action);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_container ON ledger(container, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_session ON ledger(session);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session TEXT PRIMARY KEY,
			area TEXT,
			opened_at TEXT,
			closed_at TEXT,
			outcome TEXT,
			emptied INTEGER NOT NULL DEFAULT 0,
			sold INTEGER NOT NULL DEFAULT 0,
			reclaimed INTEGER NOT NULL DEFAULT 0
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEntry queues e. It never blocks the caller.
func (s *SQLiteIndex) WriteEntry(e ledger.Entry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEntry, entry: e}:
	default:
		s.dropTotal.Add(1)
		if s.OnDrop != nil {
			s.OnDrop()
		}
	}
	return nil
}

// Flush waits until every queued entry is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropEntryTotal: s.dropTotal.Load(),
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
	}
}

// UpsertCatalogs stores the catalogs and tuning the process runs with, keyed
// by digest, so ledger rows can be tied back to the exact configuration.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}
	rows, err := catalogRows(configDir, cats, tune)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range rows {
		if _, err := tx.Exec(
			`INSERT INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)
			 ON CONFLICT(name) DO UPDATE SET json=excluded.json, updated_at=excluded.updated_at,
			   digest=excluded.digest WHERE catalogs.digest <> excluded.digest`,
			r.name, r.digest, string(r.body), now,
		); err != nil {
			return fmt.Errorf("upsert catalog %s: %w", r.name, err)
		}
	}
	return tx.Commit()
}

const schemaVersion = "1"

type catalogRow struct {
	name   string
	digest string
	body   []byte
}

// catalogRows keeps the raw file bytes where the digest was computed over
// them and marshals the rest.
func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) ([]catalogRow, error) {
	var rows []catalogRow
	for _, f := range []struct{ name, file, digest string }{
		{"items_defs", "items.json", cats.Items.DefsDigest},
		{"recipes", "recipes.json", cats.Recipes.Digest},
	} {
		if configDir == "" || f.digest == "" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(configDir, f.file))
		if err != nil {
			continue
		}
		rows = append(rows, catalogRow{name: f.name, digest: f.digest, body: b})
	}

	buildables := make([]catalogs.BuildableDef, 0, len(cats.Buildables.ByID))
	for _, b := range cats.Buildables.ByID {
		buildables = append(buildables, b)
	}
	sort.Slice(buildables, func(i, j int) bool { return buildables[i].ID < buildables[j].ID })

	for _, v := range []struct {
		name   string
		digest string
		value  any
	}{
		{"items_palette", cats.Items.PaletteDigest, cats.Items.Palette},
		{"buildables", cats.Buildables.Digest, buildables},
		{"tuning", "", tune},
	} {
		b, err := json.Marshal(v.value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", v.name, err)
		}
		d := v.digest
		if d == "" {
			sum := sha256.Sum256(b)
			d = hex.EncodeToString(sum[:])
		}
		rows = append(rows, catalogRow{name: v.name, digest: d, body: b})
	}
	return rows, nil
}

// CatalogDigest returns the stored digest of a catalog row.
func (s *SQLiteIndex) CatalogDigest(name string) (string, error) {
	var d string
	err := s.db.QueryRow(`SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	return d, err
}

// Units sums the ledger counts of hook/action. Empty hook matches all hooks.
func (s *SQLiteIndex) Units(hook string, action ledger.Action) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRow(
		`SELECT SUM(count) FROM ledger WHERE (?='' OR hook=?) AND action=?`,
		hook, hook, string(action),
	).Scan(&n)
	return int(n.Int64), err
}

func (s *SQLiteIndex) Session(id string) (Session, error) {
	var (
		out                        Session
		area, opened, closed, outc sql.NullString
	)
	err := s.db.QueryRow(
		`SELECT session,area,opened_at,closed_at,outcome,emptied,sold,reclaimed FROM sessions WHERE session=?`, id,
	).Scan(&out.ID, &area, &opened, &closed, &outc, &out.Emptied, &out.Sold, &out.Reclaimed)
	out.Area, out.OpenedAt, out.ClosedAt, out.Outcome = area.String, opened.String, closed.String, outc.String
	return out, err
}

// Session rows are derived from trade entries.
var sessionStmts = map[ledger.Action]string{
	ledger.ActionEmpty:   `INSERT INTO sessions(session,emptied) VALUES(?,?) ON CONFLICT(session) DO UPDATE SET emptied=emptied+excluded.emptied`,
	ledger.ActionConsume: `INSERT INTO sessions(session,sold) VALUES(?,?) ON CONFLICT(session) DO UPDATE SET sold=sold+excluded.sold`,
	ledger.ActionReclaim: `INSERT INTO sessions(session,reclaimed) VALUES(?,?) ON CONFLICT(session) DO UPDATE SET reclaimed=reclaimed+excluded.reclaimed`,
}

const (
	insertEntrySQL  = `INSERT OR REPLACE INTO ledger(seq,at,hook,action,area,container,kind,count,session,code,note) VALUES(?,?,?,?,?,?,?,?,?,?,?)`
	openSessionSQL  = `INSERT INTO sessions(session,area,opened_at) VALUES(?,?,?) ON CONFLICT(session) DO UPDATE SET area=excluded.area, opened_at=excluded.opened_at`
	closeSessionSQL = `INSERT INTO sessions(session,closed_at,outcome) VALUES(?,?,?) ON CONFLICT(session) DO UPDATE SET closed_at=excluded.closed_at, outcome=excluded.outcome`
)

// batch groups writes into one transaction, committed every maxOps
// statements or maxWait, whichever comes first. A failed statement rolls the
// batch back.
type batch struct {
	db      *sql.DB
	tx      *sql.Tx
	ops     int
	started time.Time
	maxOps  int
	maxWait time.Duration
}

func (b *batch) exec(query string, args ...any) error {
	if b.tx == nil {
		tx, err := b.db.Begin()
		if err != nil {
			return err
		}
		b.tx, b.ops, b.started = tx, 0, time.Now()
	}
	if _, err := b.tx.Exec(query, args...); err != nil {
		_ = b.tx.Rollback()
		b.tx = nil
		return err
	}
	b.ops++
	return nil
}

func (b *batch) commit() {
	if b.tx == nil {
		return
	}
	_ = b.tx.Commit()
	b.tx = nil
}

func (b *batch) due() bool {
	return b.tx != nil && (b.ops >= b.maxOps || time.Since(b.started) >= b.maxWait)
}

func (s *SQLiteIndex) loop() {
	b := &batch{db: s.db, maxOps: 2000, maxWait: 2 * time.Second}
	ticker := time.NewTicker(b.maxWait)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				b.commit()
				return
			}
			if r.kind == reqFlush {
				b.commit()
				close(r.done)
				continue
			}
			s.apply(b, r.entry)
			if b.due() {
				b.commit()
			}
		case <-ticker.C:
			if b.due() {
				b.commit()
			}
		}
	}
}

func (s *SQLiteIndex) apply(b *batch, e ledger.Entry) {
	at := e.At.UTC().Format(time.RFC3339Nano)
	if err := b.exec(insertEntrySQL,
		int64(e.Seq), at, e.Hook, string(e.Action), string(e.Area),
		e.Container, e.Kind, e.Count, e.Session, e.Code, e.Note,
	); err != nil || e.Session == "" {
		return
	}
	if e.Action == ledger.ActionSession {
		if outcome, ok := strings.CutPrefix(e.Note, "close "); ok {
			_ = b.exec(closeSessionSQL, e.Session, at, outcome)
		} else {
			_ = b.exec(openSessionSQL, e.Session, string(e.Area), at)
		}
		return
	}
	if q, ok := sessionStmts[e.Action]; ok {
		_ = b.exec(q, e.Session, e.Count)
	}
}
