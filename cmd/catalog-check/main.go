// Command catalog-check loads a catalog manifest and data bundle, validates
// every reference, and prints the catalog together with the quantities a
// design tool would read from it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/rotorcraft-catalog/catalog"
	"github.com/signalsfoundry/rotorcraft-catalog/core"
	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/internal/logging"
	"github.com/signalsfoundry/rotorcraft-catalog/internal/nbi"
	"github.com/signalsfoundry/rotorcraft-catalog/internal/observability"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "catalog-check: %v\n", err)
		os.Exit(1)
	}
}

type config struct {
	Manifest      string
	Data          string
	DB            string
	Frame         string
	FrameDiameter float64
	HoverThrottle float64
	// ResolveFrame and EvaluateHover record whether the diameter and throttle
	// were given at all; zero is a valid value for both.
	ResolveFrame  bool
	EvaluateHover bool
	Policy        curve.Policy
	Interpolation curve.Interpolation
	MetricsAddr   string
	Serve         bool
	Log           logging.Config
}

// loadConfig reads flags, then CATALOG_* environment variables, then an
// optional config file; earlier sources win.
func loadConfig(args []string) (config, error) {
	fs := pflag.NewFlagSet("catalog-check", pflag.ContinueOnError)
	fs.String("config", "", "optional YAML config file with the same keys as the flags")
	fs.String("manifest", "", "path to the catalog manifest (YAML or JSON)")
	fs.String("data", "", "path to the JSON data bundle holding tables and curves")
	fs.String("db", "", "SQLite catalog store; with --data the bundle is imported into it first")
	fs.String("frame", catalog.DefaultFrame, "frame to resolve")
	fs.Float64("frame-diameter", 0, "propeller diameter to resolve the frame at; unset skips frame resolution")
	fs.Float64("hover-throttle", 0, "throttle to evaluate every motor at; unset skips hover evaluation")
	fs.String("policy", "fail", "default out-of-domain policy: fail, extrapolate or clamp")
	fs.String("interpolation", "monotone-cubic", "default interpolation: monotone-cubic or linear")
	fs.String("metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables")
	fs.Bool("serve", false, "keep serving /metrics after the check until interrupted")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("log-backend", "slog", "log backend: slog or zap")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return config{}, fmt.Errorf("bind flags: %w", err)
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := config{
		Manifest:      v.GetString("manifest"),
		Data:          v.GetString("data"),
		DB:            v.GetString("db"),
		Frame:         v.GetString("frame"),
		FrameDiameter: v.GetFloat64("frame-diameter"),
		HoverThrottle: v.GetFloat64("hover-throttle"),
		ResolveFrame:  v.IsSet("frame-diameter"),
		EvaluateHover: v.IsSet("hover-throttle"),
		MetricsAddr:   v.GetString("metrics-addr"),
		Serve:         v.GetBool("serve"),
		Log: logging.Config{
			Level:   v.GetString("log-level"),
			Format:  v.GetString("log-format"),
			Backend: v.GetString("log-backend"),
			Output:  os.Stderr,
		},
	}
	if cfg.Manifest == "" || (cfg.Data == "" && cfg.DB == "") {
		return config{}, fmt.Errorf("--manifest and one of --data or --db are required")
	}
	var err error
	if cfg.Policy, err = curve.ParsePolicy(v.GetString("policy")); err != nil {
		return config{}, err
	}
	if cfg.Interpolation, err = curve.ParseInterpolation(v.GetString("interpolation")); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log)
	ctx = logging.ContextWithLogger(ctx, log)

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewCatalogCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = serveMetrics(ctx, cfg.MetricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	manifest, err := decodeManifest(cfg.Manifest)
	if err != nil {
		return err
	}
	src, closeSrc, err := openSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSrc()

	cat, summary, err := core.LoadCatalog(ctx, src, manifest,
		core.WithLogger(log),
		core.WithMetrics(collector),
		core.WithDefaultPolicy(cfg.Policy),
		core.WithDefaultInterpolation(cfg.Interpolation),
	)
	if err != nil {
		return fmt.Errorf("%s fault (%s): %w", catalog.Classify(err), nbi.Code(err), err)
	}

	printSummary(out, cat, summary)

	if cfg.ResolveFrame {
		if err := printFrame(out, cat, cfg.Frame, cfg.FrameDiameter); err != nil {
			return err
		}
	}
	if cfg.EvaluateHover {
		printHover(ctx, out, cat, cfg.HoverThrottle, log)
		hs := cat.HoverCacheStats()
		collector.SetHoverCache(hs.Entries, hs.Hits, hs.Misses)
	}

	if cfg.Serve && metricsSrv != nil {
		log.Info(ctx, "check complete; serving metrics until interrupted", logging.String("addr", cfg.MetricsAddr))
		<-ctx.Done()
	}
	return nil
}

func decodeManifest(path string) (*core.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return core.DecodeManifest(f)
}

// openSource returns the bundle, the SQLite store, or the store after
// importing the bundle into it.
func openSource(ctx context.Context, cfg config, log logging.Logger) (core.DataSource, func(), error) {
	var bundle *core.Bundle
	if cfg.Data != "" {
		b, err := openBundle(cfg.Data)
		if err != nil {
			return nil, nil, err
		}
		bundle = b
	}
	if cfg.DB == "" {
		return bundle, func() {}, nil
	}

	store, err := core.OpenSQLSource(ctx, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			log.Warn(ctx, "closing catalog store failed", logging.Err(err))
		}
	}
	if bundle != nil {
		if err := store.Import(ctx, bundle); err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("import bundle into %s: %w", cfg.DB, err)
		}
		log.Info(ctx, "data bundle imported", logging.String("db", cfg.DB))
	}
	return store, closeStore, nil
}

func openBundle(path string) (*core.Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data bundle: %w", err)
	}
	defer f.Close()
	return core.NewBundleSource(f)
}

func printSummary(out io.Writer, cat *catalog.Catalog, s *core.LoadSummary) {
	fmt.Fprintf(out, "catalog loaded in %s\n", s.Duration.Round(time.Microsecond))
	fmt.Fprintf(out, "  propeller subsets: %s\n", strings.Join(s.Subsets, ", "))
	fmt.Fprintf(out, "  propellers:        %d (%s)\n", s.Propellers, strings.Join(cat.PropellerKeys(), " "))
	fmt.Fprintf(out, "  motors:            %d\n", s.Motors)
	fmt.Fprintf(out, "  battery groups:    %d\n", s.BatteryGroups)
	for _, family := range cat.BatteryFamilies() {
		fmt.Fprintf(out, "    %s: %s\n", family, strings.Join(cat.BatteryLabels(family), " "))
	}
	fmt.Fprintf(out, "  frames:            %s\n", strings.Join(cat.Frames(), " "))
	fmt.Fprintf(out, "  fetched:           %d tables, %d curves\n", s.TablesFetched, s.CurvesFetched)
	for _, c := range s.Collisions {
		fmt.Fprintf(out, "  collision: %s from %s shadowed by %s\n", c.Key, c.Shadowed, c.Winner)
	}
}

func printFrame(out io.Writer, cat *catalog.Catalog, name string, diameter float64) error {
	frame, err := cat.Frame(name)
	if err != nil {
		return err
	}
	resolved, err := frame.Select(diameter)
	if err != nil {
		return fmt.Errorf("resolve frame %s at %g: %w", name, diameter, err)
	}
	fmt.Fprintf(out, "%s\n", resolved)
	return nil
}

func printHover(ctx context.Context, out io.Writer, cat *catalog.Catalog, throttle float64, log logging.Logger) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "MOTOR\tPROPELLER\tWEIGHT\tTHRUST\tCURRENT\n")
	for _, m := range cat.Motors() {
		op, err := m.Hover(throttle)
		if err != nil {
			log.Warn(ctx, "hover evaluation failed",
				logging.String("motor", m.Name),
				logging.Float("throttle", throttle),
				logging.Err(err),
			)
			fmt.Fprintf(tw, "%s\t%s\t%g\t-\t-\n", m.Name, m.Propeller.Key(), m.WeightTotal())
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%g\t%.1f\t%.2f\n", m.Name, m.Propeller.Key(), m.WeightTotal(), op.Thrust, op.Current)
	}
	_ = tw.Flush()
}

func serveMetrics(ctx context.Context, addr string, collector *observability.CatalogCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
