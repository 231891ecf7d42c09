package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sessiond/internal/cluster"
	"github.com/yndnr/sessiond/internal/core/event"
	"github.com/yndnr/sessiond/internal/core/service"
	"github.com/yndnr/sessiond/internal/infra/buildinfo"
	"github.com/yndnr/sessiond/internal/infra/confloader"
	"github.com/yndnr/sessiond/internal/infra/shutdown"
	"github.com/yndnr/sessiond/internal/infra/tlsroots"
	"github.com/yndnr/sessiond/internal/server/config"
	"github.com/yndnr/sessiond/internal/storage"
	"github.com/yndnr/sessiond/internal/telemetry/logger"
	"github.com/yndnr/sessiond/internal/telemetry/metric"
	"github.com/yndnr/sessiond/pkg/crypto/seal"
)

const shutdownTimeout = 30 * time.Second

// ServeCommand runs the session manager until SIGINT or SIGTERM.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the session manager",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: os.Stdout,
			})
			slog.SetDefault(log)
			return serve(logger.WithLogger(c.Context, log), cfg, c.String("config"))
		},
	}
}

// daemon holds the running components.
type daemon struct {
	cfg       *config.ServerConfig
	log       *slog.Logger
	metrics   *metric.Registry
	storage   service.SessionStorage
	directory *cluster.Directory
	handler   *service.SessionHandler
	server    *http.Server
	listener  net.Listener
	watcher   *confloader.Watcher
}

// serve builds the daemon, registers shutdown hooks and blocks until ctx is
// cancelled or a termination signal arrives. It logs to the logger carried
// by ctx.
func serve(ctx context.Context, cfg *config.ServerConfig, configPath string) error {
	log := logger.FromContext(ctx)
	info := buildinfo.Get()
	log.Info("starting sessiond", "version", info.Version, "commit", info.Commit, "config", configPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sd := shutdown.NewHandler(shutdownTimeout, log)
	d := &daemon{cfg: cfg, log: log, metrics: metric.NewRegistry()}

	if err := d.build(ctx, sd); err != nil {
		if serr := sd.Shutdown(); serr != nil {
			log.Error("cleanup after failed start", "error", serr)
		}
		return err
	}
	if err := d.start(ctx, sd, configPath); err != nil {
		if serr := sd.Shutdown(); serr != nil {
			log.Error("cleanup after failed start", "error", serr)
		}
		return err
	}

	log.Info("sessiond started")
	if err := sd.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("sessiond stopped gracefully")
	return nil
}

// build creates storage, cluster membership and the handler. Each
// component's shutdown hook is registered as soon as it exists.
func (d *daemon) build(ctx context.Context, sd *shutdown.Handler) error {
	store, err := openStorage(ctx, d.cfg, d.log, d.metrics, sd)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if store != nil {
		d.storage = store
		sd.OnShutdown("storage", func(context.Context) error { return store.Close() })
	}

	deps := service.Deps{
		Storage: d.storage,
		Sink:    event.NewLogSink(d.log.With("component", "events"), slog.LevelInfo),
		Metrics: d.metrics,
		Logger:  d.log,
	}

	if d.cfg.Cluster.Enabled {
		cc := d.cfg.ToClusterConfig(d.log)
		cc.OnDrop = d.metrics.BroadcastDropped
		dir, err := cluster.New(cc)
		if err != nil {
			return fmt.Errorf("init cluster: %w", err)
		}
		d.directory = dir
		deps.Directory = dir
		sd.OnShutdown("cluster", func(context.Context) error { return dir.Close() })
	}

	handler, err := service.NewSessionHandler(d.cfg.ToServiceConfig(), deps)
	if err != nil {
		return fmt.Errorf("init session handler: %w", err)
	}
	d.handler = handler
	sd.OnShutdown("session handler", func(context.Context) error { return handler.Close() })

	if err := d.metrics.RegisterSessions(handler); err != nil {
		return fmt.Errorf("register session metrics: %w", err)
	}
	return nil
}

// start launches the rotator, the metrics listener and the config watcher.
func (d *daemon) start(ctx context.Context, sd *shutdown.Handler, configPath string) error {
	if err := d.handler.Start(ctx); err != nil {
		return fmt.Errorf("start rotator: %w", err)
	}

	if addr := d.cfg.Metrics.Addr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.metrics.Handler())
		d.listener = ln
		d.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		sd.OnShutdown("metrics server", d.server.Shutdown)

		go func() {
			d.log.Info("metrics listening", "addr", ln.Addr().String())
			if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.log.Error("metrics server error", "error", err)
			}
		}()
	}

	if configPath != "" {
		w, err := confloader.NewWatcher(configPath, confloader.WithWatcherLogger(d.log))
		if err != nil {
			d.log.Warn("configuration reload disabled", "error", err)
			return nil
		}
		w.OnChange(d.reload)
		d.watcher = w
		sd.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
		go w.Run(ctx)
	}
	return nil
}

// reload re-reads the configuration file. Only log.level applies at
// runtime; container sizes and intervals are fixed at startup.
func (d *daemon) reload(path string) {
	cfg, err := loadConfig(path)
	if err != nil {
		d.log.Warn("ignoring invalid configuration change", "error", err)
		return
	}
	if cfg.Log.Level != logger.GetLevel() {
		logger.SetLevel(cfg.Log.Level)
		d.log.Info("log level changed", "level", cfg.Log.Level)
	}
	if cfg.Session != d.cfg.Session {
		d.log.Warn("session settings changed on disk; restart to apply them")
	}
}

// openStorage returns the configured durable store, or nil for backend
// "none".
func openStorage(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger, reg *metric.Registry, sd *shutdown.Handler) (service.SessionStorage, error) {
	if cfg.Storage.Backend == config.BackendNone || cfg.Storage.Backend == "" {
		return nil, nil
	}

	var sealer *seal.Sealer
	if key := cfg.Storage.EncryptionKey; key != "" {
		s, err := seal.New([]byte(key), seal.Algorithm(cfg.Storage.Algorithm))
		if err != nil {
			return nil, err
		}
		sealer = s
		log.Info("storage encryption enabled", "algorithm", s.Algorithm())
	}
	codec := storage.NewCodec(sealer)
	log = log.With("component", "storage", "backend", cfg.Storage.Backend)

	switch cfg.Storage.Backend {
	case config.BackendBadger:
		store, err := storage.NewBadgerStore(storage.BadgerConfig{
			Dir:        cfg.Storage.Badger.Dir,
			GCInterval: cfg.Storage.Badger.GCInterval,
			SyncWrites: cfg.Storage.Badger.SyncWrites,
		}, codec, log)
		if err != nil {
			return nil, err
		}
		if err := store.RegisterMetrics(reg.Prometheus()); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		r := cfg.Storage.Redis
		opts := storage.DialOptions{Addr: r.Addr, Password: r.Password, DB: r.DB}
		if r.TLS.Enabled {
			tlsCfg, w, err := tlsroots.ClientConfig(tlsroots.ClientOptions{
				CAFile:     r.TLS.CAFile,
				CertFile:   r.TLS.CertFile,
				KeyFile:    r.TLS.KeyFile,
				ServerName: r.TLS.ServerName,
				Logger:     log,
			})
			if err != nil {
				return nil, err
			}
			if w != nil {
				sd.OnShutdown("redis client certificate", func(context.Context) error { return w.Stop() })
				go w.Run(ctx)
			}
			opts.TLS = tlsCfg
		}
		client, err := storage.DialRedis(ctx, opts)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisStore(client, storage.RedisConfig{Prefix: r.Prefix, TTL: r.TTL}, codec, log), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
