package r2s3

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"deepstore.ai/internal/logging"
)

// Uploader stores one local file under an object key.
type Uploader interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

type MirrorConfig struct {
	// Dir is the local ledger directory. Files outside it are never uploaded.
	Dir    string
	Prefix string

	Workers     int           // default 1
	Queue       int           // default 256
	EnqueueWait time.Duration // default 25ms
	Attempts    int           // default 4
	Backoff     time.Duration // attempt n waits n*n*Backoff; default 200ms

	// Prune removes the local file once it is stored remotely.
	Prune bool
}

func (c MirrorConfig) withDefaults() MirrorConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Queue <= 0 {
		c.Queue = 256
	}
	if c.EnqueueWait <= 0 {
		c.EnqueueWait = 25 * time.Millisecond
	}
	if c.Attempts <= 0 {
		c.Attempts = 4
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
	c.Prefix = strings.Trim(strings.ReplaceAll(c.Prefix, "\\", "/"), "/")
	return c
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	Enqueued      uint64
	Saturated     uint64
	Dropped       uint64
	Uploaded      uint64
	Failed        uint64
	Pruned        uint64
	LastUpload    time.Time
	LastFailure   time.Time
}

// Mirror uploads finished ledger files in the background. Enqueue waits at
// most EnqueueWait for queue space; files that still do not fit are dropped
// and counted.
type Mirror struct {
	cfg  MirrorConfig
	up   Uploader
	log  *slog.Logger
	jobs chan string

	// stop aborts retries in flight once Close gives up waiting.
	stop   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closing bool
	once    sync.Once

	enqueued, saturated, dropped atomic.Uint64
	uploaded, failed, pruned     atomic.Uint64
	lastUpload, lastFailure      atomic.Int64
}

func NewMirror(up Uploader, cfg MirrorConfig, logger *slog.Logger) *Mirror {
	cfg = cfg.withDefaults()
	stop, cancel := context.WithCancel(context.Background())
	m := &Mirror{
		cfg:    cfg,
		up:     up,
		log:    logging.WithComponent(logger, "archive"),
		jobs:   make(chan string, cfg.Queue),
		stop:   stop,
		cancel: cancel,
	}
	m.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go m.worker()
	}
	return m
}

// Enqueue schedules localPath for upload. It matches the ledger logger's
// closed-file callback.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closing {
		return
	}
	m.enqueued.Add(1)

	select {
	case m.jobs <- localPath:
		return
	default:
	}
	m.saturated.Add(1)
	t := time.NewTimer(m.cfg.EnqueueWait)
	defer t.Stop()
	select {
	case m.jobs <- localPath:
	case <-t.C:
		n := m.dropped.Add(1)
		m.log.Warn("archive queue full", "file", filepath.Base(localPath), "dropped_total", n)
	}
}

// Close stops accepting files and waits for queued uploads until ctx is
// done, then abandons the rest.
func (m *Mirror) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var err error
	m.once.Do(func() {
		m.mu.Lock()
		m.closing = true
		close(m.jobs)
		m.mu.Unlock()

		done := make(chan struct{})
		go func() { m.wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-ctx.Done():
			m.cancel()
			<-done
			err = fmt.Errorf("archive: uploads abandoned: %w", ctx.Err())
		}
		m.cancel()
	})
	return err
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(m.jobs),
		QueueCapacity: cap(m.jobs),
		Enqueued:      m.enqueued.Load(),
		Saturated:     m.saturated.Load(),
		Dropped:       m.dropped.Load(),
		Uploaded:      m.uploaded.Load(),
		Failed:        m.failed.Load(),
		Pruned:        m.pruned.Load(),
		LastUpload:    unixTime(m.lastUpload.Load()),
		LastFailure:   unixTime(m.lastFailure.Load()),
	}
}

func (m *Mirror) worker() {
	defer m.wg.Done()
	for p := range m.jobs {
		if m.stop.Err() != nil {
			continue
		}
		m.ship(p)
	}
}

func (m *Mirror) ship(localPath string) {
	key, err := m.ObjectKey(localPath)
	if err != nil {
		m.log.Warn("archive skip", "file", localPath, "err", err)
		return
	}
	if err := m.put(key, localPath); err != nil {
		m.failed.Add(1)
		m.lastFailure.Store(time.Now().Unix())
		m.log.Error("archive upload failed", "key", key, "err", err)
		return
	}
	m.uploaded.Add(1)
	m.lastUpload.Store(time.Now().Unix())
	m.log.Info("archived ledger file", "key", key)

	if m.cfg.Prune {
		if err := os.Remove(localPath); err != nil {
			m.log.Warn("archive prune", "file", localPath, "err", err)
			return
		}
		m.pruned.Add(1)
	}
}

func (m *Mirror) put(key, localPath string) error {
	var err error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(m.stop, 2*time.Minute)
		err = m.up.PutFile(ctx, key, localPath)
		cancel()
		if err == nil || attempt == m.cfg.Attempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt*attempt) * m.cfg.Backoff):
		case <-m.stop.Done():
			return m.stop.Err()
		}
	}
	return err
}

var hourlyName = regexp.MustCompile(`^[a-z]+-(\d{4})-(\d{2})-(\d{2})-\d{2}\.jsonl\.zst$`)

// ObjectKey maps a file under Dir to its bucket key. Hourly ledger files are
// grouped by day: <prefix>/YYYY/MM/DD/<name>.
func (m *Mirror) ObjectKey(localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	base, err := filepath.Abs(m.cfg.Dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}

	if sm := hourlyName.FindStringSubmatch(path.Base(rel)); sm != nil {
		rel = path.Join(path.Dir(rel), sm[1], sm[2], sm[3], path.Base(rel))
	}
	return normalizeObjectKey(path.Join(m.cfg.Prefix, rel)), nil
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
