package incident

import (
	"context"
	"log/slog"

	"github.com/plotlinehq/plotline/llm"
	"github.com/plotlinehq/plotline/metrics"
)

// RepairFunc asks the model for a corrected payload. It receives the fixed
// repair instruction and returns replacement raw text. The loop blocks on one
// outstanding call at a time; a callback error aborts the parse immediately.
type RepairFunc func(ctx context.Context, instruction string) (string, error)

// repairInstruction is the fixed text sent on every repair attempt. It names
// the failure category and demands a bare JSON array without markdown.
const repairInstruction = "You returned invalid JSON for the Incident Summary schema. " +
	"Error detail: schema mismatch. " +
	"Regenerate ONLY a valid JSON array that matches the schema. " +
	"Do not wrap it in markdown."

// defaultMaxRepairs is how many repair callbacks a parse may issue, i.e. up to
// defaultMaxRepairs+1 validation tries in total.
const defaultMaxRepairs = 2

// Options configure a parse.
type Options struct {
	// MaxRepairs bounds repair attempts. Negative means the default.
	MaxRepairs int
	// Logger receives per-attempt debug logging. nil uses slog.Default().
	Logger *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithMaxRepairs overrides the repair attempt bound.
func WithMaxRepairs(n int) Option {
	return func(o *Options) {
		o.MaxRepairs = n
	}
}

// WithLogger sets the parse logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Parse validates raw model text against the incident summary schema,
// requesting repaired payloads through repair when validation fails. Each try
// strips code fences, parses, and validates; parse errors and schema errors
// are treated identically and stay local to the loop. The terminal error is a
// *RepairExhaustedError once the bound is exceeded, or a *CallbackError if the
// callback itself fails. Given identical input and a deterministic callback,
// the outcome and try count are identical.
func Parse(ctx context.Context, raw string, repair RepairFunc, opts ...Option) (Summary, error) {
	options := Options{MaxRepairs: -1}
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxRepairs < 0 {
		options.MaxRepairs = defaultMaxRepairs
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	text := raw
	var lastErr error
	for try := 1; try <= options.MaxRepairs+1; try++ {
		summary, err := validateOnce(text)
		if err == nil {
			metrics.IncidentParses.WithLabelValues("success").Inc()
			return summary, nil
		}
		lastErr = err
		logger.Debug("incident summary validation failed",
			"try", try,
			"max_tries", options.MaxRepairs+1,
			"error", err)

		if try > options.MaxRepairs {
			break
		}

		metrics.RepairAttempts.Inc()
		repaired, err := repair(ctx, repairInstruction)
		if err != nil {
			metrics.IncidentParses.WithLabelValues("callback_failed").Inc()
			return nil, &CallbackError{err: err}
		}
		text = repaired
	}

	metrics.IncidentParses.WithLabelValues("exhausted").Inc()
	return nil, &RepairExhaustedError{Tries: options.MaxRepairs + 1, Last: lastErr}
}

// TryParse parses an incident summary if one can be recovered, swallowing
// terminal errors. Callers that treat the summary as optional decoration use
// this instead of Parse.
func TryParse(ctx context.Context, raw string, repair RepairFunc, opts ...Option) (Summary, bool) {
	summary, err := Parse(ctx, raw, repair, opts...)
	if err != nil {
		return nil, false
	}
	return summary, true
}

// validateOnce runs one fence-strip + parse + validate cycle.
func validateOnce(text string) (Summary, error) {
	candidate := llm.StripFences(text)
	if candidate == "" {
		return nil, ErrMalformedJSON
	}
	return Validate(candidate)
}
