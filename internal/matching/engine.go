// Package matching decides which enrolled identity, if any, a probe embedding belongs to.
//
// Stage 1 is an exhaustive nearest-neighbor search with within-identity averaging.
// Stage 2 optionally asks an independent embedding model to confirm the Stage 1 winner;
// it can only veto, never strengthen, a match.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/face"
	"github.com/kozaktomas/rollcall/internal/vecmath"
)

// ErrCrossValidation is returned when the cross-validation embedding cannot be computed.
var ErrCrossValidation = errors.New("cross-validation failed")

// CrossEmbedder computes an embedding of a face region with a model independent of the probe's.
type CrossEmbedder interface {
	Embed(ctx context.Context, region face.ImageContext) ([]float64, error)
}

// Decision is the outcome of one recognition attempt. Identity is empty unless Accepted.
type Decision struct {
	Identity   string  `json:"identity,omitempty"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
	Accepted   bool    `json:"accepted"`
	Threshold  float64 `json:"threshold"`

	// Candidate is the Stage 1 winner, also reported for rejected decisions.
	Candidate       string  `json:"candidate,omitempty"`
	CrossValidated  bool    `json:"cross_validated"`
	CrossSimilarity float64 `json:"cross_similarity,omitempty"`
	Vetoed          bool    `json:"vetoed"`
}

// Engine matches probes against an embedding store. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	store    database.EmbeddingReader
	cross    database.EmbeddingReader
	embedder CrossEmbedder
	cfg      Config
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCrossValidator enables Stage 2 using the given cross-validation store and embedder.
func WithCrossValidator(store database.EmbeddingReader, embedder CrossEmbedder) EngineOption {
	return func(e *Engine) {
		e.cross = store
		e.embedder = embedder
	}
}

// WithLogger sets the logger for decision tracing.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine over store.
func NewEngine(store database.EmbeddingReader, cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective thresholds.
func (e *Engine) Config() Config {
	return e.cfg
}

// CrossValidationEnabled reports whether Stage 2 can run.
func (e *Engine) CrossValidationEnabled() bool {
	return e.cross != nil && e.embedder != nil
}

type identifyOptions struct {
	threshold float64
	region    *face.ImageContext
}

// IdentifyOption adjusts a single Identify call.
type IdentifyOption func(*identifyOptions)

// WithThreshold overrides the Stage 1 threshold for one call. Non-positive values are ignored.
func WithThreshold(t float64) IdentifyOption {
	return func(o *identifyOptions) {
		if validThreshold(t) {
			o.threshold = t
		}
	}
}

// WithCrossValidation supplies the face region Stage 2 embeds.
func WithCrossValidation(region face.ImageContext) IdentifyOption {
	return func(o *identifyOptions) {
		o.region = &region
	}
}

// Identify matches probe against every enrolled identity.
// An unknown face is a normal rejected Decision, not an error. Errors are returned
// only when the store cannot be read or the cross-validation embedding fails.
func (e *Engine) Identify(ctx context.Context, probe []float64, opts ...IdentifyOption) (Decision, error) {
	o := identifyOptions{threshold: e.cfg.Threshold}
	for _, opt := range opts {
		opt(&o)
	}

	decision := Decision{Threshold: o.threshold}
	if len(probe) == 0 {
		e.logger.Debug("empty probe, rejecting")
		return decision, nil
	}
	probe = vecmath.Sanitize(probe)

	groups, err := e.store.GetAll(ctx)
	if err != nil {
		return decision, fmt.Errorf("read enrolled embeddings: %w", err)
	}

	candidates := Rank(probe, groups)
	if len(candidates) == 0 {
		e.logger.Debug("no enrolled identities, rejecting probe")
		return decision, nil
	}

	best := candidates[0]
	decision.Candidate = best.Identity
	decision.Distance = best.Distance

	// Equality rejects: confidence at the boundary is 0. NaN rejects too.
	if !(best.Distance < o.threshold) {
		e.logger.Debug("probe rejected",
			"candidate", best.Identity,
			"distance", best.Distance,
			"threshold", o.threshold,
		)
		return decision, nil
	}

	decision.Identity = best.Identity
	decision.Accepted = true
	decision.Confidence = confidence(best.Distance, o.threshold)

	if o.region.Empty() || !e.CrossValidationEnabled() {
		e.logger.Debug("probe accepted",
			"identity", decision.Identity,
			"distance", decision.Distance,
			"confidence", decision.Confidence,
		)
		return decision, nil
	}

	return e.crossValidate(ctx, decision, *o.region)
}

// crossValidate runs Stage 2 on an accepted Stage 1 decision.
func (e *Engine) crossValidate(ctx context.Context, decision Decision, region face.ImageContext) (Decision, error) {
	references, err := e.cross.Get(ctx, decision.Identity)
	if err != nil {
		return Decision{Threshold: decision.Threshold}, fmt.Errorf("read cross-validation embeddings: %w", err)
	}
	if len(references) == 0 {
		// No reference data for this identity: Stage 1 stands.
		e.logger.Debug("no cross-validation samples, keeping stage 1 result", "identity", decision.Identity)
		return decision, nil
	}

	embedding, err := e.embedder.Embed(ctx, region)
	if err != nil {
		return Decision{Threshold: decision.Threshold}, fmt.Errorf("%w: %w", ErrCrossValidation, err)
	}
	if len(embedding) == 0 {
		return Decision{Threshold: decision.Threshold}, fmt.Errorf("%w: empty embedding", ErrCrossValidation)
	}

	best := -1.0
	for _, ref := range references {
		best = max(best, vecmath.CosineSimilarity(embedding, ref.Vector))
	}
	decision.CrossSimilarity = best

	// A NaN similarity vetoes.
	if !(best >= e.cfg.CrossValidationThreshold) {
		e.logger.Debug("cross-validation veto",
			"candidate", decision.Identity,
			"similarity", best,
			"threshold", e.cfg.CrossValidationThreshold,
		)
		return Decision{
			Distance:        decision.Distance,
			Threshold:       decision.Threshold,
			Candidate:       decision.Candidate,
			CrossSimilarity: best,
			Vetoed:          true,
		}, nil
	}

	decision.CrossValidated = true
	e.logger.Debug("probe accepted",
		"identity", decision.Identity,
		"distance", decision.Distance,
		"confidence", decision.Confidence,
		"cross_similarity", best,
	)
	return decision, nil
}

// confidence maps a distance linearly to [0,1]: 1 at distance 0, 0 at the threshold.
func confidence(distance, threshold float64) float64 {
	c := 1 - distance/threshold
	return min(1, max(0, c))
}
