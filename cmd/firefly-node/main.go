// Command firefly-node runs a firefly ping/pong node on a UDP port.
//
// The node accepts channels from any peer, prints received payloads and
// answers "ping ..." with "pong ...". Peers can be given on the command
// line, found via mDNS, or opened from the interactive shell. Peers from
// the command line or config file are reconnected after a loss.
//
// Usage:
//
//	firefly-node [flags]
//
// Flags:
//
//	-config string        Configuration file (.yaml, .yml or .toml)
//	-listen string        UDP listen address (default ":7400")
//	-name string          Node name advertised via mDNS
//	-peer addr            Peer to connect to (repeatable)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-log-format string    Log format: text, json (default "text")
//	-protocol-log string  Write a CBOR protocol log to this file
//	-metrics string       Serve Prometheus metrics on this address
//	-mdns                 Advertise and browse via mDNS
//	-interactive          Start the interactive shell (default true)
//
// Examples:
//
//	# Two nodes on one host
//	firefly-node -listen :7400
//	firefly-node -listen :7401 -peer 127.0.0.1:7400
//
//	# Headless node with metrics and a protocol log
//	firefly-node -interactive=false -metrics :9090 -protocol-log node.flog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firefly-protocol/firefly-go/pkg/config"
	"github.com/firefly-protocol/firefly-go/pkg/discovery"
	"github.com/firefly-protocol/firefly-go/pkg/log"
	"github.com/firefly-protocol/firefly-go/pkg/metrics"
	"github.com/firefly-protocol/firefly-go/pkg/version"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

type flags struct {
	configFile  string
	listen      string
	name        string
	peers       stringList
	logLevel    string
	logFormat   string
	protocolLog string
	metrics     string
	mdns        bool
	interactive bool
}

func parseFlags(args []string) (flags, *flag.FlagSet, error) {
	var f flags
	fs := flag.NewFlagSet("firefly-node", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "Configuration file (.yaml, .yml or .toml)")
	fs.StringVar(&f.listen, "listen", "", "UDP listen address (default \":7400\")")
	fs.StringVar(&f.name, "name", "", "Node name advertised via mDNS")
	fs.Var(&f.peers, "peer", "Peer to connect to (repeatable)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: text, json")
	fs.StringVar(&f.protocolLog, "protocol-log", "", "Write a CBOR protocol log to this file")
	fs.StringVar(&f.metrics, "metrics", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&f.mdns, "mdns", false, "Advertise and browse via mDNS")
	fs.BoolVar(&f.interactive, "interactive", true, "Start the interactive shell")
	err := fs.Parse(args)
	return f, fs, err
}

// loadConfig reads the config file, if any, and applies flags that were
// set explicitly.
func loadConfig(f flags, fs *flag.FlagSet) (config.NodeConfig, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		if cfg, err = config.Load(f.configFile); err != nil {
			return config.NodeConfig{}, err
		}
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "listen":
			cfg.Listen = f.listen
		case "name":
			cfg.Name = f.name
		case "peer":
			cfg.Peers = append(cfg.Peers, f.peers...)
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		case "protocol-log":
			cfg.Log.Protocol = f.protocolLog
		case "metrics":
			cfg.Metrics.Listen = f.metrics
		case "mdns":
			cfg.Discovery.Enabled = f.mdns
			cfg.Discovery.Connect = f.mdns
		}
	})
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func main() {
	f, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	cfg, err := loadConfig(f, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, f.interactive); err != nil {
		fmt.Fprintf(os.Stderr, "firefly-node: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.NodeConfig, interactive bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var sh *shell
	logOut, dataOut := io.Writer(os.Stderr), io.Writer(os.Stdout)
	if interactive {
		var err error
		if sh, err = newShell(); err != nil {
			return err
		}
		logOut, dataOut = sh.Stderr(), sh.Stdout()
	}
	logger := newLogger(cfg.Log, logOut)

	// Protocol trace: file log, plus the console at debug level.
	var traceLoggers []log.Logger
	if cfg.Log.Protocol != "" {
		fl, err := log.NewFileLogger(cfg.Log.Protocol)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fl.Close()
		traceLoggers = append(traceLoggers, fl)
		logger.Info("protocol log enabled", "path", cfg.Log.Protocol)
	}
	if cfg.Log.Level == "debug" {
		traceLoggers = append(traceLoggers, log.NewSlogAdapter(logger.With("component", "trace")))
	}
	var trace log.Logger
	if len(traceLoggers) > 0 {
		trace = log.NewMultiLogger(traceLoggers...)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace(cfg.Metrics.Namespace))

	n, err := newNode(cfg, nodeOptions{
		Logger:   logger,
		Trace:    trace,
		Metrics:  m,
		Observer: m,
		Out:      dataOut,
	})
	if err != nil {
		return err
	}
	if err := n.start(ctx); err != nil {
		return err
	}
	logger.Info("firefly node started",
		"name", cfg.Name, "node_id", n.id, "listen", n.port.LocalAddr().String(), "version", version.Current)

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, reg, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Discovery.Enabled {
		stop, err := startDiscovery(ctx, n, cfg.Discovery)
		if err != nil {
			logger.Warn("mDNS disabled", "error", err)
		} else {
			defer stop()
		}
	}

	for _, p := range cfg.Peers {
		if err := n.supervise(p); err != nil {
			logger.Warn("peer ignored", "peer", p, "error", err)
		}
	}

	if sh != nil {
		sh.n = n
		go sh.Run(ctx, cancel)
	}
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := n.shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics enabled", "addr", addr)
	return srv
}

// startDiscovery advertises the node and, when configured, connects to
// every compatible node found. The returned func stops advertising.
func startDiscovery(ctx context.Context, n *node, cfg config.DiscoveryConfig) (func(), error) {
	adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{Interface: cfg.Interface, TTL: cfg.TTL.Std()})
	info := &discovery.NodeInfo{
		Name:   n.cfg.Name,
		NodeID: n.id,
		Port:   uint16(n.port.LocalAddr().Port),
	}
	if err := adv.Advertise(ctx, info); err != nil {
		return nil, err
	}
	n.logger.Info("advertising", "service", discovery.ServiceType, "name", info.Name)

	if cfg.Connect {
		browser := discovery.NewBrowser(discovery.BrowserConfig{Interface: cfg.Interface})
		results, err := browser.Browse(ctx)
		if err != nil {
			adv.Stop()
			return nil, err
		}
		go func() {
			for svc := range results {
				if svc.NodeID == n.id {
					continue
				}
				addr := svc.Addr()
				if addr == "" {
					continue
				}
				n.logger.Info("discovered node", "name", svc.Name, "node_id", svc.NodeID, "addr", addr)
				if _, err := n.connect(addr); err != nil {
					n.logger.Warn("connect failed", "peer", addr, "error", err)
				}
			}
		}()
	}
	return adv.Stop, nil
}
