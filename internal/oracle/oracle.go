// Package oracle wires the verification pipeline: parse the proposal,
// assemble the rewritten SQL, run the structural checks, and, when the
// requested rigor calls for it, generate witness data and compare both
// queries dynamically.
//
// The pipeline is a strict sequence per request. Each call owns its own
// parsed payload, schema snapshot and sandbox; there is no shared mutable
// state between concurrent calls.
package oracle

import (
	"context"
	"log/slog"
	"time"

	"sqlverify/internal/assemble"
	"sqlverify/internal/domain"
	"sqlverify/internal/payload"
	"sqlverify/internal/rowgen"
	"sqlverify/internal/sandbox"
	"sqlverify/internal/schema"
	"sqlverify/internal/structural"
	"sqlverify/internal/validate"
	"sqlverify/internal/witness"
)

// Options configures an Oracle. Zero values fall back to defaults.
type Options struct {
	SandboxDriver string
	QueryTimeout  time.Duration
	WitnessSeed   int64
	WitnessRows   int
	Dialect       string
	Logger        *slog.Logger

	// NewStore overrides sandbox creation, for tests.
	NewStore func() (domain.SandboxStore, error)
	// NewGenerator overrides the baseline data generator, for tests.
	NewGenerator witness.GeneratorFactory
}

// Oracle is the verification service.
type Oracle struct {
	driver   string
	timeout  time.Duration
	seed     int64
	rows     int
	dialect  string
	logger   *slog.Logger
	newStore func() (domain.SandboxStore, error)
	newGen   witness.GeneratorFactory
}

// New creates an oracle.
func New(opts Options) *Oracle {
	o := &Oracle{
		driver:   opts.SandboxDriver,
		timeout:  opts.QueryTimeout,
		seed:     opts.WitnessSeed,
		rows:     opts.WitnessRows,
		dialect:  opts.Dialect,
		logger:   opts.Logger,
		newStore: opts.NewStore,
		newGen:   opts.NewGenerator,
	}
	if o.driver == "" {
		o.driver = sandbox.DriverDuckDB
	}
	if o.timeout == 0 {
		o.timeout = 30 * time.Second
	}
	if o.seed == 0 {
		o.seed = 1
	}
	if o.dialect == "" {
		o.dialect = "postgres"
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.newStore == nil {
		o.newStore = func() (domain.SandboxStore, error) {
			return sandbox.Open(o.driver)
		}
	}
	if o.newGen == nil {
		o.newGen = func(seedOffset int64) domain.RowGenerator {
			return rowgen.New(o.seed+seedOffset, o.rows)
		}
	}
	return o
}

// Apply turns a free-form agent response into a single rewritten SQL
// statement without verifying it.
func (o *Oracle) Apply(originalSQL, response string) domain.ApplyResult {
	result, _ := o.applyExtraction(originalSQL, payload.ExtractFromResponse(response))
	return result
}

func (o *Oracle) applyExtraction(originalSQL string, ext payload.Extraction) (domain.ApplyResult, *domain.RewritePayload) {
	if ext.Payload != nil {
		assembled, err := assemble.Assemble(originalSQL, ext.Payload)
		if err != nil {
			return domain.ApplyResult{
				Transform: ext.Payload.Transform(),
				Error:     err.Error(),
			}, ext.Payload
		}
		return domain.ApplyResult{
			Success:      true,
			OptimizedSQL: assembled,
			Transform:    ext.Payload.Transform(),
		}, ext.Payload
	}
	if ext.RawSQL != "" {
		return domain.ApplyResult{
			Success:      true,
			OptimizedSQL: ext.RawSQL,
			Transform:    domain.TransformRawSQL,
		}, nil
	}
	return domain.ApplyResult{
		Transform: domain.TransformRawSQL,
		Error:     "response contains no rewrite payload and no SQL block",
	}, nil
}

// Verify runs the full pipeline at the requested rigor level. The schema
// is required for dynamic rigor; without one, verification stops after the
// structural stage.
func (o *Oracle) Verify(ctx context.Context, originalSQL, response string, sch *domain.Schema, rigor domain.Rigor) *domain.VerificationReport {
	applyResult, p := o.applyExtraction(originalSQL, payload.ExtractFromResponse(response))
	report := &domain.VerificationReport{Apply: applyResult}
	if !applyResult.Success {
		return report
	}

	dialect := o.dialect
	if p != nil && p.Dialect != "" {
		dialect = p.Dialect
	}

	report.Structural = structural.Check(originalSQL, applyResult.OptimizedSQL, dialect)
	if !report.Structural.Valid {
		// Common cheap path: dynamic validation is never started.
		return report
	}
	if rigor == domain.RigorStructural || sch == nil {
		if sch == nil && rigor != domain.RigorStructural {
			o.logger.Warn("no schema supplied, verification limited to structural checks")
		}
		report.Equivalent = true
		return report
	}

	o.runWitnesses(ctx, report, originalSQL, applyResult.OptimizedSQL, p, sch, rigor)

	report.Equivalent = !report.Indeterminate
	for _, w := range report.Witnesses {
		if !w.Comparison.Equal() {
			report.Equivalent = false
		}
	}
	return report
}

func (o *Oracle) runWitnesses(ctx context.Context, report *domain.VerificationReport, originalSQL, rewrittenSQL string, p *domain.RewritePayload, sch *domain.Schema, rigor domain.Rigor) {
	literals, err := schema.ExtractFilterLiterals(originalSQL, sch)
	if err != nil {
		// Structural parsing already succeeded, so this is unexpected;
		// proceed with unbiased data rather than failing the request.
		o.logger.Warn("filter literal extraction failed", "error", err)
		literals = make(domain.FilterLiterals)
	}
	order, err := schema.GenerationOrder(sch)
	if err != nil {
		report.Indeterminate = true
		report.Witnesses = append(report.Witnesses, domain.WitnessResult{
			Variant:    witness.VariantClone,
			Comparison: domain.ComparisonResult{Indeterminate: true, Reason: "no generation order: " + err.Error()},
		})
		return
	}

	var runtimeConfig []string
	if p != nil {
		runtimeConfig = p.RuntimeConfig
	}

	variants := witness.Variants(sch, literals, order, o.newGen)
	if rigor == domain.RigorStandard {
		variants = variants[:1]
	}

	for _, variant := range variants {
		if ctx.Err() != nil {
			report.Indeterminate = true
			report.Witnesses = append(report.Witnesses, domain.WitnessResult{
				Variant:    variant.Name,
				Comparison: domain.ComparisonResult{Indeterminate: true, Reason: "cancelled: " + ctx.Err().Error()},
			})
			return
		}
		result := o.runVariant(ctx, variant, originalSQL, rewrittenSQL, runtimeConfig)
		if result.Comparison.Indeterminate {
			report.Indeterminate = true
		}
		report.Witnesses = append(report.Witnesses, result)
	}
}

// runVariant owns one sandbox for exactly one variant: populate, compare,
// tear down.
func (o *Oracle) runVariant(ctx context.Context, variant witness.Variant, originalSQL, rewrittenSQL string, runtimeConfig []string) domain.WitnessResult {
	store, err := o.newStore()
	if err != nil {
		return domain.WitnessResult{
			Variant:    variant.Name,
			Comparison: domain.ComparisonResult{Indeterminate: true, Reason: "open sandbox: " + err.Error()},
		}
	}
	defer store.Close() //nolint:errcheck

	manifest, err := variant.Populate(ctx, store)
	if err != nil {
		return domain.WitnessResult{
			Variant:    variant.Name,
			Manifest:   manifest,
			Comparison: domain.ComparisonResult{Indeterminate: true, Reason: "populate: " + err.Error()},
		}
	}

	validator := validate.New(store, o.timeout, o.logger)
	comparison := validator.Validate(ctx, originalSQL, rewrittenSQL, runtimeConfig)

	o.logger.Info("witness variant validated",
		"variant", variant.Name,
		"row_counts_equal", comparison.RowCountsEqual,
		"values_equal", comparison.ValuesEqual,
		"indeterminate", comparison.Indeterminate)

	return domain.WitnessResult{
		Variant:    variant.Name,
		Comparison: comparison,
		Manifest:   manifest,
	}
}
