package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/extract"
	"github.com/akovalev/expenso/internal/media"
)

// DefaultDispatchTimeout bounds the upload/inference fan-out. The original
// behavior was an unbounded wait; the bound here is deliberate and
// configurable.
const DefaultDispatchTimeout = 60 * time.Second

// State is the shared state threaded through the pipeline stages of one
// extraction call. Each call owns its State exclusively; nothing is shared
// across concurrent extractions.
type State struct {
	Raw    media.RawMedia
	Kind   media.Kind
	UserID string

	Prepared   media.PreparedMedia
	Categories []domain.Category
	Currency   domain.CurrencySetting

	ReceiptURL string
	Result     domain.ExtractionResult

	Draft domain.DraftTransaction
}

// Step is a single pipeline stage.
type Step interface {
	Stage() Stage
	Execute(ctx context.Context, state *State) error
}

// Orchestrator runs the extraction pipeline:
// validate → prepare → dispatch (upload ∥ extract) → merge → resolve.
type Orchestrator struct {
	preparer   MediaPreparer
	uploader   Uploader
	extractor  Extractor
	categories CategorySource
	currency   CurrencySource

	dispatchTimeout time.Duration
	log             zerolog.Logger
}

// NewOrchestrator wires the pipeline collaborators. A non-positive
// dispatchTimeout falls back to DefaultDispatchTimeout.
func NewOrchestrator(
	preparer MediaPreparer,
	uploader Uploader,
	extractor Extractor,
	categories CategorySource,
	currency CurrencySource,
	dispatchTimeout time.Duration,
	log zerolog.Logger,
) *Orchestrator {
	if dispatchTimeout <= 0 {
		dispatchTimeout = DefaultDispatchTimeout
	}
	return &Orchestrator{
		preparer:        preparer,
		uploader:        uploader,
		extractor:       extractor,
		categories:      categories,
		currency:        currency,
		dispatchTimeout: dispatchTimeout,
		log:             log,
	}
}

// Run executes one extraction end to end and returns the draft transaction
// for the user to confirm or edit. Any stage failure aborts the whole attempt
// with a PipelineError; nothing is retried, and a failure after upload never
// leaks a partial draft (the orphaned blob is acceptable — it is deduplicated
// by content hash on a manual retry).
func (o *Orchestrator) Run(ctx context.Context, raw media.RawMedia, kind media.Kind, userID string) (domain.DraftTransaction, error) {
	state := &State{Raw: raw, Kind: kind, UserID: userID}

	steps := []Step{
		&validateStep{preparer: o.preparer},
		&prepareStep{preparer: o.preparer},
		&dispatchStep{
			uploader:   o.uploader,
			extractor:  o.extractor,
			categories: o.categories,
			currency:   o.currency,
			timeout:    o.dispatchTimeout,
		},
		&mergeStep{},
		&resolveStep{},
	}

	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			if step.Stage() == StageMerging && errors.Is(err, ErrNoTransactionDetected) {
				o.log.Info().
					Str("user_id", userID).
					Str("kind", string(kind)).
					Msg("No transaction detected in media")
				return domain.DraftTransaction{}, ErrNoTransactionDetected
			}
			o.log.Error().
				Err(err).
				Str("user_id", userID).
				Str("kind", string(kind)).
				Str("stage", string(step.Stage())).
				Msg("Extraction pipeline failed")
			return domain.DraftTransaction{}, &PipelineError{Stage: step.Stage(), Err: err}
		}
	}

	o.log.Info().
		Str("user_id", userID).
		Str("kind", string(kind)).
		Str("category_id", state.Draft.CategoryID).
		Msg("Extraction pipeline completed")

	return state.Draft, nil
}

// validateStep rejects bad input before any processing or network activity.
type validateStep struct {
	preparer MediaPreparer
}

func (s *validateStep) Stage() Stage { return StageValidating }

func (s *validateStep) Execute(ctx context.Context, state *State) error {
	return s.preparer.Validate(state.Raw.MIMEType, state.Raw.Size(), state.Kind)
}

// prepareStep converts and compresses the payload.
type prepareStep struct {
	preparer MediaPreparer
}

func (s *prepareStep) Stage() Stage { return StagePreparing }

func (s *prepareStep) Execute(ctx context.Context, state *State) error {
	prepared, err := s.preparer.Prepare(ctx, state.Raw, state.Kind)
	if err != nil {
		return err
	}
	state.Prepared = prepared
	return nil
}

// dispatchStep fetches the caller's live category list and currency setting,
// then runs upload and extraction concurrently. The two operations are
// independent I/O-bound calls with no data dependency, so the fan-out halves
// wall-clock latency versus running them in sequence.
type dispatchStep struct {
	uploader   Uploader
	extractor  Extractor
	categories CategorySource
	currency   CurrencySource
	timeout    time.Duration
}

func (s *dispatchStep) Stage() Stage { return StageDispatching }

func (s *dispatchStep) Execute(ctx context.Context, state *State) error {
	categories, err := s.categories.ListCategories(ctx, state.UserID)
	if err != nil {
		return err
	}
	setting, err := s.currency.GetCurrencySetting(ctx, state.UserID)
	if err != nil {
		return err
	}
	state.Categories = categories
	state.Currency = setting

	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(dispatchCtx)

	g.Go(func() error {
		url, err := s.uploader.Upload(gctx, state.Prepared.Data, state.UserID, state.Prepared.MIMEType)
		if err != nil {
			return err
		}
		state.ReceiptURL = url
		return nil
	})

	g.Go(func() error {
		result, err := s.extractor.Extract(gctx, state.Prepared, extract.Request{
			CategoryNames: names,
			Currency:      setting.Currency,
			Kind:          state.Kind,
		})
		if err != nil {
			return err
		}
		state.Result = result
		return nil
	})

	// All-or-nothing: if either arm fails the whole call fails and neither
	// partial result is surfaced.
	return g.Wait()
}

// mergeStep applies the audio-path no-transaction gate after both arms have
// joined.
type mergeStep struct{}

func (s *mergeStep) Stage() Stage { return StageMerging }

func (s *mergeStep) Execute(ctx context.Context, state *State) error {
	if state.Kind == media.KindAudio && !state.Result.Success {
		return ErrNoTransactionDetected
	}
	return nil
}

// resolveStep maps the extraction result into the draft transaction.
type resolveStep struct{}

func (s *resolveStep) Stage() Stage { return StageResolving }

func (s *resolveStep) Execute(ctx context.Context, state *State) error {
	state.Draft = buildDraft(state.Result, state.ReceiptURL, state.Categories)
	return nil
}
