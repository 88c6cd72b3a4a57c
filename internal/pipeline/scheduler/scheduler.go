// Package scheduler drives the daily publish batch: it sizes a target from
// the remaining daily allowance, then runs a bounded loop of generate →
// dedup-check → describe → approve → publish → record, with a fixed backoff
// after failed iterations. The loop is strictly sequential; the only
// concurrency in the system is the approval gateway's inbound listener.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pixelpost/pixelpost/internal/pipeline/approval"
	"github.com/pixelpost/pixelpost/internal/pipeline/drivers"
	"github.com/pixelpost/pixelpost/internal/pipeline/store"
)

// Options holds the scheduling parameters for one run.
type Options struct {
	DailyLimit       int
	MinImages        int
	MaxImages        int
	AttemptsPerImage int
	DelayMin         time.Duration // inter-publish sleep window
	DelayMax         time.Duration
	ErrorBackoff     time.Duration // fixed sleep after a failed iteration
	Profile          string        // generation profile passed to the driver
}

// Summary describes how a run ended.
type Summary struct {
	Target       int
	Published    int
	Attempts     int
	Duplicates   int
	Rejected     int
	Postponed    int
	Errors       int
	LimitReached bool
}

// Scheduler owns one batch run. A nil gateway disables the approval step
// entirely (fail-open).
type Scheduler struct {
	store     store.Store
	gateway   *approval.Gateway
	generator drivers.Generator
	describer drivers.Describer
	publisher drivers.Publisher
	opts      Options
	rng       *rand.Rand
	now       func() time.Time
}

// New creates a scheduler over the given collaborators.
func New(st store.Store, gw *approval.Gateway, gen drivers.Generator, desc drivers.Describer, pub drivers.Publisher, opts Options) *Scheduler {
	return &Scheduler{
		store:     st,
		gateway:   gw,
		generator: gen,
		describer: desc,
		publisher: pub,
		opts:      opts,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// SetClock overrides the clock used for quota queries. Test hook.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Run executes one batch and returns its summary. Errors inside an iteration
// never abort the batch; only the start gate and the initial quota query can
// fail the run. Driver and store resources are released on every exit path,
// generation driver first, then publisher, then store.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	defer func() {
		if err := s.generator.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close generation driver")
		}
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close publishing driver")
		}
		if err := s.store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	var summary Summary

	started, err := s.gateway.AwaitStart(ctx)
	if err != nil {
		return summary, fmt.Errorf("waiting for start signal: %w", err)
	}
	if !started {
		return summary, fmt.Errorf("start gate closed without a start signal")
	}

	today, err := s.store.CountSuccessesOn(ctx, s.now())
	if err != nil {
		return summary, fmt.Errorf("querying today's count: %w", err)
	}
	if today >= s.opts.DailyLimit {
		log.Info().Int("today", today).Int("limit", s.opts.DailyLimit).Msg("daily limit reached, nothing to do")
		summary.LimitReached = true
		return summary, nil
	}

	target := s.randBetween(s.opts.MinImages, s.opts.MaxImages)
	if remaining := s.opts.DailyLimit - today; target > remaining {
		target = remaining
	}
	summary.Target = target
	maxAttempts := target * s.opts.AttemptsPerImage

	log.Info().Int("target", target).Int("max_attempts", maxAttempts).Int("already_today", today).Msg("starting batch")

	for summary.Published < target && summary.Attempts < maxAttempts {
		if ctx.Err() != nil {
			log.Info().Msg("run cancelled")
			break
		}
		summary.Attempts++

		published, err := s.runIteration(ctx, &summary)
		if err != nil {
			summary.Errors++
			log.Error().Err(err).Int("attempt", summary.Attempts).Msg("iteration failed")
			if !sleepCtx(ctx, s.opts.ErrorBackoff) {
				break
			}
			continue
		}

		if published && summary.Published < target {
			delay := s.randDelay()
			log.Info().Dur("delay", delay).Msg("sleeping before next publish")
			if !sleepCtx(ctx, delay) {
				break
			}
		}
	}

	log.Info().
		Int("published", summary.Published).
		Int("attempts", summary.Attempts).
		Int("duplicates", summary.Duplicates).
		Int("rejected", summary.Rejected).
		Msg("batch finished")
	return summary, nil
}

// runIteration drives one candidate through the pipeline. It returns whether
// an item was published; an error means a transient failure that costs the
// caller a backoff sleep.
func (s *Scheduler) runIteration(ctx context.Context, summary *Summary) (bool, error) {
	gen, err := s.generator.Generate(ctx, s.opts.Profile)
	if err != nil {
		return false, fmt.Errorf("generation: %w", err)
	}

	check, aerr := s.store.IsDuplicate(ctx, gen.PrimaryPath)
	if aerr != nil {
		return false, fmt.Errorf("duplicate check: %w", aerr)
	}
	if check.IsDuplicate {
		log.Info().Str("hash", check.Hash).Msg("duplicate content, discarding")
		summary.Duplicates++
		discardArtifacts(gen)
		return false, nil
	}

	meta, err := s.describer.Describe(ctx, s.opts.Profile, gen.Params)
	if err != nil {
		discardArtifacts(gen)
		return false, fmt.Errorf("metadata: %w", err)
	}

	decision, aerr := s.gateway.RequestApproval(ctx, gen.PrimaryPath, meta, s.opts.Profile)
	if aerr != nil {
		return false, fmt.Errorf("approval: %w", aerr)
	}
	switch decision.Action {
	case approval.ActionReject:
		log.Info().Str("user", decision.User).Msg("candidate rejected, discarding")
		summary.Rejected++
		discardArtifacts(gen)
		return false, nil
	case approval.ActionSkip:
		log.Info().Msg("approval unavailable, skipping candidate")
		discardArtifacts(gen)
		return false, nil
	case approval.ActionPostpone:
		summary.Postponed++
		discardArtifacts(gen)
		return false, fmt.Errorf("candidate postponed by %s", decision.User)
	}
	meta = decision.Meta

	result, pubErr := s.publisher.Publish(ctx, gen.PrimaryPath, gen.SecondaryPath, meta)

	rec := &store.UploadRecord{
		ContentHash:   check.Hash,
		Generator:     s.opts.Profile,
		Params:        gen.Params,
		Meta:          meta,
		ArtifactPath:  gen.PrimaryPath,
		SecondaryPath: gen.SecondaryPath,
		Status:        store.StatusSuccess,
	}
	if gen.HasSecondary() {
		if hash, err := store.HashFile(gen.SecondaryPath); err == nil {
			rec.SecondaryHash = hash
		}
	}
	if pubErr != nil {
		rec.Status = store.StatusFailed
		rec.ErrorMessage = pubErr.Error()
	} else if !result.Success {
		rec.Status = store.StatusFailed
		rec.ErrorMessage = "publisher reported failure"
	}

	// The record is written whatever the publish outcome; a conflict here
	// means a duplicate slipped past the pre-check and must be surfaced.
	if _, aerr := s.store.Save(ctx, rec); aerr != nil {
		return false, fmt.Errorf("recording outcome: %w", aerr)
	}

	if rec.Status != store.StatusSuccess {
		return false, fmt.Errorf("publish: %s", rec.ErrorMessage)
	}

	summary.Published++
	log.Info().Str("hash", rec.ContentHash).Str("title", meta.Title).Int("published", summary.Published).Msg("published")
	return true, nil
}

// discardArtifacts removes a candidate's files from disk. Removal failures
// are logged, not propagated; a stray file never stops the batch.
func discardArtifacts(gen *drivers.GenResult) {
	for _, path := range []string{gen.PrimaryPath, gen.SecondaryPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Error().Err(err).Str("path", path).Msg("failed to remove artifact")
		}
	}
}

func (s *Scheduler) randBetween(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.rng.Intn(max-min+1)
}

func (s *Scheduler) randDelay() time.Duration {
	min, max := s.opts.DelayMin, s.opts.DelayMax
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

// sleepCtx sleeps for d unless the context ends first. Returns false when
// cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
