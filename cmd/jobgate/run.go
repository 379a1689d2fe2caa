package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/jobgate/jobgate/internal/api"
	"github.com/jobgate/jobgate/internal/auth"
	"github.com/jobgate/jobgate/internal/broker"
	"github.com/jobgate/jobgate/internal/config"
	"github.com/jobgate/jobgate/internal/dispatch"
	"github.com/jobgate/jobgate/internal/doctor"
	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/lock"
	"github.com/jobgate/jobgate/internal/log"
	"github.com/jobgate/jobgate/internal/modules"
	"github.com/jobgate/jobgate/internal/registry"
	"github.com/jobgate/jobgate/internal/storage"
	"github.com/jobgate/jobgate/internal/worker"
)

// roleEnv restricts a forked copy to the worker role.
const roleEnv = "JOBGATE_ROLE"

func pluginNames() []string { return []string{"auth", "device"} }

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "./jobgate.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")

	result := doctor.New(cfg, modules.Names(), pluginNames()).Validate()
	for _, w := range result.Warnings {
		logger.Warn("config warning", "category", w.Category, "field", w.Field, "message", w.Message)
	}
	if !result.Valid {
		fmt.Fprint(os.Stderr, doctor.FormatHuman(result))
		return 1
	}

	if err := run(cfg, *configPath, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fatal", "error", err)
		return 1
	}
	return 0
}

func run(cfg *config.Config, configPath string, logger *slog.Logger) error {
	role := os.Getenv(roleEnv)
	gatewayRole := cfg.Topology.Gateway && role != "worker"
	workerRole := cfg.Topology.Worker || role == "worker"

	if hash, err := cfg.MappingHash(); err == nil {
		logger.Info("starting", "service", cfg.Service.Name, "version", version,
			"gateway", gatewayRole, "worker", workerRole, "mapping_hash", hash)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The gateway role is single-instance per host.
	if gatewayRole {
		pidLock, err := lock.AcquirePIDLock(lockPath(cfg))
		if err != nil {
			return fmt.Errorf("acquire pid lock: %w", err)
		}
		defer pidLock.Release()
	}

	b, err := openBroker(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	// One slot per goroutine that may report a fatal error, so a burst of
	// failures never blocks a sender and deadlocks wg.Wait.
	var wg sync.WaitGroup
	errCh := make(chan error, errCapacity(cfg))

	if workerRole {
		db, err := storage.Open(ctx, cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open state storage: %w", err)
		}
		defer db.Close()

		jobLog := storage.NewJobLog(db)
		reg := registry.New()
		registry.Register(reg, jobLog)

		factories := modules.Builtin()
		for name, qc := range cfg.Queues {
			factory := factories[qc.Module]
			table, err := factory(reg)
			if err != nil {
				return fmt.Errorf("build module %q for queue %q: %w", qc.Module, name, err)
			}
			proc := worker.NewProcessor(b.Queue(name), table, worker.Options{
				Concurrency: qc.Concurrency,
				JobLog:      jobLog,
			})
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, broker.ErrClosed) {
					errCh <- err
				}
			}()
		}
	}

	if gatewayRole {
		hooks := dispatch.NewHooks()
		d, err := dispatch.New(cfg.Mappings, b, hooks, dispatch.Options{
			Timeout:      cfg.Gateway.Timeout,
			DefaultCache: defaultCache(cfg.Gateway.DefaultCache),
			Production:   cfg.Service.Production,
		})
		if err != nil {
			return fmt.Errorf("build dispatcher: %w", err)
		}

		health := dispatch.NewHealthChecker(b, cfg.QueueNames())
		plugins := api.NewPlugins().
			Register("auth", api.AuthPlugin(authTokens(cfg.Gateway.Auth.Tokens))).
			Register("device", api.DevicePlugin())

		srv := api.New(api.Config{Listen: cfg.Gateway.Listen}, d, health, plugins)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()

		// Additional worker copies run as forked OS processes restricted to
		// the worker role.
		if cfg.Topology.Worker && cfg.Topology.Copies > 1 {
			if err := forkWorkers(ctx, cfg.Topology.Copies-1, configPath, &wg, errCh); err != nil {
				stop()
				wg.Wait()
				return err
			}
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = err
		stop()
	}
	wg.Wait()
	logger.Info("stopped", "service", cfg.Service.Name)
	return runErr
}

// errCapacity counts the goroutines that may send on errCh: one processor
// per queue, the HTTP server, and one waiter per forked worker copy.
func errCapacity(cfg *config.Config) int {
	n := len(cfg.Queues) + 1
	if cfg.Topology.Copies > 1 {
		n += cfg.Topology.Copies - 1
	}
	return n
}

func openBroker(cfg *config.Config) (broker.Broker, error) {
	switch cfg.Broker.Kind {
	case "memory":
		return broker.NewMemory(), nil
	case "nats":
		return broker.ConnectNATS(broker.NATSOptions{
			URL:    cfg.Broker.URL,
			Name:   cfg.Service.Name,
			Prefix: cfg.Broker.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
	}
}

func lockPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.State.Path), "jobgate.lock")
}

func authTokens(tokens []config.APIToken) []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return out
}

func defaultCache(c *config.CacheConfig) *envelope.Cache {
	if c == nil {
		return nil
	}
	return &envelope.Cache{
		Private: c.Private,
		NoCache: c.NoCache,
		NoStore: c.NoStore,
		MaxAge:  c.MaxAge,
	}
}

// forkWorkers re-execs this binary n times with the worker role pinned.
func forkWorkers(ctx context.Context, n int, configPath string, wg *sync.WaitGroup, errCh chan<- error) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	for i := 0; i < n; i++ {
		cmd := exec.CommandContext(ctx, self, "start", "--config", configPath)
		cmd.Env = append(os.Environ(), roleEnv+"=worker")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("fork worker copy: %w", err)
		}
		wg.Add(1)
		go func(cmd *exec.Cmd) {
			defer wg.Done()
			if err := cmd.Wait(); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("worker copy exited: %w", err)
			}
		}(cmd)
	}
	return nil
}
