// Package runner executes the configured muzzle tasks: collecting the
// references of instrumentation modules, printing them, and asserting them
// against library class paths.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/daimatz/gomuzzle/pkg/classpath"
	"github.com/daimatz/gomuzzle/pkg/collector"
	"github.com/daimatz/gomuzzle/pkg/config"
	"github.com/daimatz/gomuzzle/pkg/muzzle"
	"github.com/daimatz/gomuzzle/pkg/telemetry/metrics"
	"github.com/daimatz/gomuzzle/pkg/typepool"
)

const instrumentationName = "github.com/daimatz/gomuzzle/pkg/runner"

var (
	// ErrUnknownModule is returned for a module name missing from the
	// configuration.
	ErrUnknownModule = errors.New("unknown module")
	// ErrUnknownDirective is returned for a directive name missing from the
	// configuration.
	ErrUnknownDirective = errors.New("unknown directive")
)

// Runner runs muzzle tasks for one configuration. Collected modules are
// reused across directives.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	predicate *muzzle.HelperClassPredicate
	bootstrap *classpath.Loader
	strategy  *typepool.CachingStrategy
	metrics   *metrics.Collector
	provider  trace.TracerProvider
	tracer    trace.Tracer

	collected map[string]*Collection
}

// Collection is the outcome of collecting one module.
type Collection struct {
	Module muzzle.Module

	// SortedHelperClasses lists the helper classes in injection order.
	SortedHelperClasses []string
}

// An Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. By default slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records matcher activity on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithTracerProvider traces verification runs with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) { r.provider = tp }
}

// WithBootstrap overrides the bootstrap stand-in selected by the
// configuration.
func WithBootstrap(l *classpath.Loader) Option {
	return func(r *Runner) { r.bootstrap = l }
}

// New creates a runner. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		predicate: muzzle.NewHelperClassPredicate(cfg.InstrumentationPackages, nil),
		strategy:  typepool.NewCachingStrategy(cfg.Cache.TypeCapacity),
		collected: make(map[string]*Collection),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.provider == nil {
		r.provider = noop.NewTracerProvider()
	}
	r.tracer = r.provider.Tracer(instrumentationName)
	if r.bootstrap == nil {
		r.bootstrap = bootstrapFor(cfg.Bootstrap)
	}
	if r.metrics != nil {
		r.metrics.ObserveTypeCache(r.strategy.Len)
	}
	return r
}

func bootstrapFor(cfg config.BootstrapConfig) *classpath.Loader {
	switch {
	case cfg.Disabled:
		return classpath.NewBootstrapProxy("")
	case cfg.JMod != "":
		return classpath.NewBootstrapProxy(cfg.JMod)
	default:
		return classpath.BootstrapProxy()
	}
}

// Bootstrap returns the bootstrap stand-in used as the parent of every
// library loader.
func (r *Runner) Bootstrap() *classpath.Loader { return r.bootstrap }

// Collect collects the references of the named module.
func (r *Runner) Collect(name string) (*Collection, error) {
	if c, ok := r.collected[name]; ok {
		return c, nil
	}
	mc, ok := r.cfg.Module(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}

	loader, err := classpath.NewLoaderFromPaths("module:"+mc.Name, nil, mc.ClassPath...)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", mc.Name, err)
	}
	col := collector.New(loader, r.predicate, collector.WithLogger(r.logger))
	for _, advice := range mc.Advice {
		if err := col.CollectFromAdvice(advice); err != nil {
			return nil, fmt.Errorf("module %s: %w", mc.Name, err)
		}
	}
	for _, helper := range mc.Helpers {
		if err := col.CollectFromHelper(helper); err != nil {
			return nil, fmt.Errorf("module %s: %w", mc.Name, err)
		}
	}
	for _, resource := range mc.Resources {
		if err := col.CollectFromResource(resource); err != nil {
			return nil, fmt.Errorf("module %s: %w", mc.Name, err)
		}
	}
	col.Prune()

	c := &Collection{
		Module: muzzle.Module{
			Name:             mc.Name,
			HelperClassNames: col.HelperClassNames(),
			References:       col.References(),
		},
		SortedHelperClasses: col.SortedHelperClasses(),
	}
	r.logger.Info("collected module references",
		"module", mc.Name,
		"references", len(c.Module.References),
		"helpers", len(c.Module.HelperClassNames))
	r.collected[name] = c
	return c, nil
}

// PrintReferences writes the references of the named modules to w. No
// names means every module.
func (r *Runner) PrintReferences(w io.Writer, names ...string) error {
	if len(names) == 0 {
		for _, m := range r.cfg.Modules {
			names = append(names, m.Name)
		}
	}
	for _, name := range names {
		c, err := r.Collect(name)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s:\n", name); err != nil {
			return err
		}
		for _, h := range c.SortedHelperClasses {
			if _, err := fmt.Fprintf(w, "  helper %s\n", h); err != nil {
				return err
			}
		}
		if err := muzzle.PrintReferences(w, c.Module.References); err != nil {
			return err
		}
	}
	return nil
}

// Verify runs the named directives. No names means every directive. Every
// directive runs even when an earlier one fails; the returned error joins
// the failures.
func (r *Runner) Verify(ctx context.Context, names ...string) ([]*muzzle.Report, error) {
	var directives []config.DirectiveConfig
	if len(names) == 0 {
		directives = r.cfg.Directives
	}
	for _, name := range names {
		d, ok := r.cfg.Directive(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDirective, name)
		}
		directives = append(directives, d)
	}

	var reports []*muzzle.Report
	var errs []error
	for _, d := range directives {
		report, err := r.verifyDirective(ctx, d)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("directive %s: %w", d.Name, err))
		}
	}
	return reports, errors.Join(errs...)
}

func (r *Runner) verifyDirective(ctx context.Context, d config.DirectiveConfig) (*muzzle.Report, error) {
	ctx, span := r.tracer.Start(ctx, "muzzle.directive", trace.WithAttributes(
		attribute.String("muzzle.directive", d.Name),
		attribute.Bool("muzzle.assert_pass", d.AssertPass),
	))
	defer span.End()

	var modules []muzzle.Module
	for _, mc := range r.cfg.DirectiveModules(d) {
		c, err := r.Collect(mc.Name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "collecting references failed")
			return nil, err
		}
		modules = append(modules, c.Module)
	}

	loader, err := classpath.NewLoaderFromPaths("directive:"+d.Name, r.bootstrap, d.ClassPath...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "building class path failed")
		return nil, err
	}

	opts := []muzzle.Option{
		muzzle.WithHelperClassPredicate(r.predicate),
		muzzle.WithPoolStrategy(r.strategy),
		muzzle.WithBootstrapProxy(r.bootstrap),
		muzzle.WithLogger(r.logger),
		muzzle.WithTracerProvider(r.provider),
	}
	if r.metrics != nil {
		opts = append(opts, muzzle.WithMetrics(r.metrics))
	}
	report, err := muzzle.AssertMatch(ctx, modules, loader, d.AssertPass, opts...)
	if r.metrics != nil && report != nil {
		for _, result := range report.Results {
			r.metrics.ModuleVerified(result.Passed)
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, "unexpected muzzle outcome")
		r.logger.ErrorContext(ctx, "muzzle directive failed", "directive", d.Name, "run_id", report.RunID)
		return report, err
	}
	r.logger.InfoContext(ctx, "muzzle directive passed",
		"directive", d.Name,
		"run_id", report.RunID,
		"modules", len(report.Results))
	return report, nil
}
