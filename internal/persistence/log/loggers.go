package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"deepstore.ai/internal/mediation/ledger"
)

// JSONLZstdWriter appends JSON lines to hourly rotated zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer

	// onClosed receives the path of every file closed by rotation or Close.
	onClosed func(path string)
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	return w.WriteAt(time.Now(), v)
}

// WriteAt writes v into the file of the hour containing at.
func (w *JSONLZstdWriter) WriteAt(at time.Time, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := at.UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	closed := ""
	if w.f != nil {
		closed = w.f.Name()
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	if closed != "" && w.onClosed != nil {
		w.onClosed(closed)
	}
	return err1
}

// OnClosed registers fn to receive each finished file.
func (w *JSONLZstdWriter) OnClosed(fn func(path string)) {
	w.mu.Lock()
	w.onClosed = fn
	w.mu.Unlock()
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// LedgerLogger is a ledger.Sink writing compressed JSONL, rotated by the
// hour of each entry.
type LedgerLogger struct{ w *JSONLZstdWriter }

const LedgerPrefix = "ledger"

func NewLedgerLogger(dir string) *LedgerLogger {
	return &LedgerLogger{w: NewJSONLZstdWriter(dir, LedgerPrefix)}
}

func (l *LedgerLogger) WriteEntry(e ledger.Entry) error { return l.w.WriteAt(e.At, e) }
func (l *LedgerLogger) Close() error                    { return l.w.Close() }

// OnClosed registers fn to receive each finished hourly file.
func (l *LedgerLogger) OnClosed(fn func(path string)) { l.w.OnClosed(fn) }

// LedgerFiles lists ledger files in dir in chronological order.
func LedgerFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, LedgerPrefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadLedger decodes every entry of one ledger file in order.
func ReadLedger(path string, fn func(ledger.Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e ledger.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
