package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deepstore.ai/internal/logging"
	"deepstore.ai/internal/mediation/ledger"
	"deepstore.ai/internal/persistence/indexdb"
	persistlog "deepstore.ai/internal/persistence/log"
	"deepstore.ai/internal/persistence/r2s3"
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/simhost"
	"deepstore.ai/internal/sim/tuning"
	"deepstore.ai/internal/transport/observer"
)

type options struct {
	configDir  string
	tuningPath string
	addr       string
	tickRate   int
	demo       bool
	disableDB  bool
	pprof      bool
	logFile    string
}

func main() {
	var o options
	flag.StringVar(&o.configDir, "configs", "./configs", "config directory")
	flag.StringVar(&o.tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	flag.StringVar(&o.addr, "addr", "", "http listen address (overrides tuning observer.listen)")
	flag.IntVar(&o.tickRate, "tick_rate", 5, "host ticks per second")
	flag.BoolVar(&o.demo, "demo", true, "seed a demo colony and exercise every hook")
	flag.BoolVar(&o.disableDB, "disable_db", false, "disable the sqlite ledger index")
	flag.BoolVar(&o.pprof, "pprof", false, "serve /debug/pprof on the listen address")
	flag.StringVar(&o.logFile, "log_file", "", "also write JSON logs to this file")
	flag.Parse()

	// run owns every deferred Close; exit only once it has returned.
	if err := run(o); err != nil {
		logging.New(logging.LevelInfo).Error("storaged exited", "err", err)
		os.Exit(1)
	}
}

func run(o options) error {
	tp := strings.TrimSpace(o.tuningPath)
	if tp == "" {
		tp = filepath.Join(o.configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("load tuning %s: %w", tp, err)
		}
		tune = tuning.Defaults()
		if err := tuning.ApplyEnv(&tune); err != nil {
			return fmt.Errorf("tuning env: %w", err)
		}
	}
	if o.disableDB {
		tune.Ledger.DisableDB = true
	}
	if o.addr != "" {
		tune.Observer.Listen = o.addr
	}

	logger := logging.New(logging.Level(tune.LogLevel))
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = logging.NewTee(logging.Level(tune.LogLevel), os.Stderr, f)
	}

	cats, err := catalogs.Load(o.configDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := ledger.NewMetrics(reg)

	journal := ledger.NewJournal(
		ledger.WithMetrics(metrics),
		ledger.WithLogger(logger),
	)

	var mirror *r2s3.Mirror
	if tune.Archive.Bucket != "" {
		client, err := r2s3.New(ctx, r2s3.Config{
			Endpoint:        tune.Archive.Endpoint,
			Bucket:          tune.Archive.Bucket,
			Region:          tune.Archive.Region,
			AccessKeyID:     tune.Archive.AccessKeyID,
			SecretAccessKey: tune.Archive.SecretAccessKey,
			PathStyle:       tune.Archive.PathStyle,
		})
		if err != nil {
			return fmt.Errorf("init archive %s: %w", tune.Archive.Bucket, err)
		}
		mirror = r2s3.NewMirror(client, r2s3.MirrorConfig{
			Dir:    tune.Ledger.Dir,
			Prefix: tune.Archive.Prefix,
			Prune:  tune.Archive.Prune,
		}, logger)
		// Registered before the ledger log so the final file is queued first.
		defer func() {
			ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel2()
			if err := mirror.Close(ctx2); err != nil {
				logger.Warn("archive close", "err", err)
			}
		}()
		logger.Info("ledger archive enabled", "bucket", tune.Archive.Bucket, "prefix", tune.Archive.Prefix)
	}

	ledgerLog := persistlog.NewLedgerLogger(tune.Ledger.Dir)
	defer ledgerLog.Close()
	if mirror != nil {
		ledgerLog.OnClosed(mirror.Enqueue)
	}
	journal.AddSink(ledgerLog)

	var idx *indexdb.SQLiteIndex
	if !tune.Ledger.DisableDB {
		dbPath := tune.Ledger.IndexPath
		if dbPath == "" {
			dbPath = filepath.Join(tune.Ledger.Dir, "index.db")
		}
		idx, err = indexdb.OpenSQLite(dbPath)
		if err != nil {
			return fmt.Errorf("open ledger index: %w", err)
		}
		defer idx.Close()
		idx.OnDrop = journal.DroppedEntry
		if err := idx.UpsertCatalogs(o.configDir, cats, tune); err != nil {
			logger.Warn("index upsert catalogs", "err", err)
		}
		journal.AddSink(idx)
	} else {
		logger.Info("ledger index disabled")
	}

	obs := observer.NewServer(logger)
	journal.AddSink(obs)
	registerSinkMetrics(reg, idx, mirror, obs)

	var d *demoColony
	h, err := simhost.New(simhost.Config{
		Catalogs:   cats,
		Tuning:     tune,
		Journal:    journal,
		Logger:     logger,
		TickRateHz: o.tickRate,
		OnTick: func(h *simhost.Host) {
			if d != nil {
				d.step(h)
			}
			obs.Publish(observer.Snapshot(h.Registry(), h.Dispatcher().Bindings(), journal.Seq()))
		},
	})
	if err != nil {
		return fmt.Errorf("init host: %w", err)
	}
	for _, b := range h.Dispatcher().Bindings() {
		logger.Debug("hook bound", "event", b.Event, "handler", b.Handler, "enabled", b.Enabled)
	}
	if o.demo {
		d, err = seedDemo(h, logger)
		if err != nil {
			return fmt.Errorf("seed demo: %w", err)
		}
	}

	go func() {
		if err := h.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("host stopped", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/ledger/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/ledger/ws", obs.WSHandler())
	if o.pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              tune.Observer.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", "addr", tune.Observer.Listen, "ledger_dir", tune.Ledger.Dir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen %s: %w", tune.Observer.Listen, err)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
