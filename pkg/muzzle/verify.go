package muzzle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/daimatz/gomuzzle/pkg/classpath"
)

const instrumentationName = "github.com/daimatz/gomuzzle/pkg/muzzle"

// ErrVerificationFailed is wrapped by every *VerificationError.
var ErrVerificationFailed = errors.New("muzzle verification failed")

// Module is one instrumentation module: the references it needs and the
// helper classes it injects.
type Module struct {
	Name             string
	HelperClassNames []string
	References       []*Reference
}

// ModuleResult is the outcome of checking one module.
type ModuleResult struct {
	Module     string
	Passed     bool
	Mismatches []Mismatch
}

// Report summarizes an AssertMatch run.
type Report struct {
	RunID      string
	Loader     string
	AssertPass bool
	Results    []ModuleResult
}

// VerificationError lists the modules whose outcome differs from the
// expected one.
type VerificationError struct {
	RunID      string
	Loader     string
	AssertPass bool
	Failures   []ModuleResult
}

func (e *VerificationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s on %s (run %s)", ErrVerificationFailed, e.Loader, e.RunID)
	for _, f := range e.Failures {
		if f.Passed {
			fmt.Fprintf(&sb, "\n%s: MUZZLE PASSED but FAILURE WAS EXPECTED", f.Module)
			continue
		}
		fmt.Fprintf(&sb, "\n%s: FAILED MUZZLE VALIDATION, mismatches:", f.Module)
		for _, m := range f.Mismatches {
			fmt.Fprintf(&sb, "\n-- %s", m)
		}
	}
	return sb.String()
}

func (e *VerificationError) Unwrap() error { return ErrVerificationFailed }

// WithTracerProvider sets the provider of the tracer AssertMatch uses. By
// default the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *ReferenceMatcher) { m.tracer = tp.Tracer(instrumentationName) }
}

// AssertMatch checks every module against loader and fails with a
// *VerificationError when a module passes while assertPass is false or
// fails while it is true. The report is returned in both cases.
func AssertMatch(ctx context.Context, modules []Module, loader *classpath.Loader, assertPass bool, opts ...Option) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), AssertPass: assertPass}
	var failures []ModuleResult

	for _, mod := range modules {
		matcher := NewReferenceMatcher(mod.HelperClassNames, mod.References, opts...)
		target := matcher.effectiveLoader(loader)
		report.Loader = target.String()

		_, span := matcher.tracer.Start(ctx, "muzzle.verify",
			trace.WithAttributes(
				attribute.String("muzzle.run_id", report.RunID),
				attribute.String("muzzle.module", mod.Name),
				attribute.String("muzzle.loader", report.Loader),
				attribute.Bool("muzzle.assert_pass", assertPass),
				attribute.Int("muzzle.references", len(matcher.References())),
			))
		mismatches := matcher.MismatchedReferenceSources(target)
		result := ModuleResult{Module: mod.Name, Passed: len(mismatches) == 0, Mismatches: mismatches}
		span.SetAttributes(
			attribute.Bool("muzzle.passed", result.Passed),
			attribute.Int("muzzle.mismatches", len(mismatches)),
		)
		if result.Passed != assertPass {
			span.SetStatus(codes.Error, "unexpected muzzle outcome")
			failures = append(failures, result)
		}
		span.End()

		matcher.logger.InfoContext(ctx, "muzzle module checked",
			"run_id", report.RunID,
			"module", mod.Name,
			"loader", report.Loader,
			"passed", result.Passed,
			"assert_pass", assertPass,
			"mismatches", len(mismatches))
		for _, m := range mismatches {
			matcher.logger.DebugContext(ctx, "muzzle mismatch", "module", mod.Name, "mismatch", m.String())
		}
		report.Results = append(report.Results, result)
	}

	if len(failures) > 0 {
		return report, &VerificationError{
			RunID:      report.RunID,
			Loader:     report.Loader,
			AssertPass: assertPass,
			Failures:   failures,
		}
	}
	return report, nil
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
