// Package approval bridges a push-based chat decision flow into the pull-based
// control flow of the scheduler. Outbound requests register a completion
// handle in a correlation map keyed by the platform message id; inbound events
// look the handle up and complete it. The map is the only shared state between
// the scheduler goroutine and the event listener, and every mutation happens
// under one mutex.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pixelpost/pixelpost/internal/common/apperrors"
	"github.com/pixelpost/pixelpost/internal/pipeline/store"
)

// Action is the outcome of a human decision.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionPostpone Action = "postpone"
	ActionSkip     Action = "skip" // gateway could not obtain a decision
	ActionEdit     Action = "edit" // opens the edit form; not a terminal action
	ActionStart    Action = "start"
)

// Decision is a resolved approval request. Meta carries the possibly-edited
// metadata to publish.
type Decision struct {
	Action Action
	Meta   store.Metadata
	User   string
}

// Poster is the outbound chat surface the gateway posts through. The slack
// implementation lives in the slackbridge package; tests substitute a fake.
type Poster interface {
	// PostStartPrompt posts the "ready" message with a start action.
	PostStartPrompt(ctx context.Context) error
	// PostApproval uploads the artifact preview and posts the interactive
	// approval message. Returns the platform-assigned message id, which
	// becomes the correlation id.
	PostApproval(ctx context.Context, artifactPath string, meta store.Metadata, label string) (string, error)
	// UpdateDecision rewrites the approval message to show the outcome.
	UpdateDecision(ctx context.Context, correlationID string, meta store.Metadata, action Action, user string) error
	// OpenEdit opens the metadata edit form pre-filled from the snapshot.
	OpenEdit(ctx context.Context, triggerID, correlationID string, meta store.Metadata) error
	// NotifyStale tells the actor their click referred to a request that is
	// no longer live.
	NotifyStale(ctx context.Context, user string) error
}

var (
	ErrGateway      apperrors.Error = apperrors.New("approval gateway error")
	ErrStartBusy    apperrors.Error = ErrGateway.New("start gate already has a waiter")
	ErrStartAborted apperrors.Error = ErrGateway.New("wait for start aborted")
	ErrAborted      apperrors.Error = ErrGateway.New("wait for decision aborted")
)

type startState int

const (
	startIdle startState = iota
	startAwaiting
	startDone
)

// pendingRequest is one outstanding human-decision round trip. The metadata
// snapshot is mutated in place by an edit submission before resolution.
type pendingRequest struct {
	meta      store.Metadata
	createdAt time.Time
	done      chan Decision // buffered; resolve never blocks
	resolved  bool
}

// Gateway correlates outbound approval requests with asynchronously arriving
// decisions. A nil *Gateway is valid and fails open: AwaitStart returns
// immediately and RequestApproval approves everything.
type Gateway struct {
	poster       Poster
	startCommand string

	mu         sync.Mutex
	pending    map[string]*pendingRequest
	startState startState
	startCh    chan string // carries the resolving user
}

// New returns a gateway posting through the given Poster. startCommand is the
// free-text message that opens the start gate.
func New(poster Poster, startCommand string) *Gateway {
	return &Gateway{
		poster:       poster,
		startCommand: startCommand,
		pending:      make(map[string]*pendingRequest),
	}
}

// DisableStartGate marks the gate as already open, so AwaitStart passes
// through without posting a prompt. Used when the operator has not asked for
// an explicit start signal.
func (g *Gateway) DisableStartGate() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startState == startIdle {
		g.startState = startDone
	}
}

// AwaitStart posts the ready prompt and suspends until a start command or
// start button resolves the gate. An unconfigured (nil) gateway returns true
// immediately. Only one waiter is supported; a second concurrent call fails.
func (g *Gateway) AwaitStart(ctx context.Context) (bool, apperrors.Error) {
	if g == nil {
		return true, nil
	}

	g.mu.Lock()
	switch g.startState {
	case startDone:
		g.mu.Unlock()
		return true, nil
	case startAwaiting:
		g.mu.Unlock()
		return false, ErrStartBusy
	}
	g.startState = startAwaiting
	g.startCh = make(chan string, 1)
	ch := g.startCh
	g.mu.Unlock()

	if err := g.poster.PostStartPrompt(ctx); err != nil {
		g.mu.Lock()
		g.startState = startIdle
		g.startCh = nil
		g.mu.Unlock()
		return false, ErrGateway.MsgErr("failed to post start prompt", err)
	}

	log.Info().Msg("waiting for start signal")
	select {
	case user := <-ch:
		log.Info().Str("user", user).Msg("start signal received")
		return true, nil
	case <-ctx.Done():
		return false, ErrStartAborted.Err(ctx.Err())
	}
}

// HandleStart resolves the start gate. Called by the bridge for both the
// start button and the free-text start command. Signals arriving while no
// waiter is registered are dropped; a second signal after resolution is a
// no-op. Returns whether the signal opened the gate.
func (g *Gateway) HandleStart(user string) bool {
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.startState != startAwaiting {
		return false
	}
	g.startState = startDone
	g.startCh <- user
	g.startCh = nil
	return true
}

// IsStartCommand reports whether a free-text message is the start command.
func (g *Gateway) IsStartCommand(text string) bool {
	if g == nil {
		return false
	}
	return text == g.startCommand
}

// RequestApproval posts the candidate for review and suspends until a
// decision arrives. There is no timeout: an abandoned request pends until the
// run context is cancelled. An unconfigured (nil) gateway approves
// immediately. Platform errors while posting degrade to a skip decision so a
// chat outage never aborts the batch.
func (g *Gateway) RequestApproval(ctx context.Context, artifactPath string, meta store.Metadata, label string) (Decision, apperrors.Error) {
	if g == nil {
		return Decision{Action: ActionApprove, Meta: meta}, nil
	}

	correlationID, err := g.poster.PostApproval(ctx, artifactPath, meta, label)
	if err != nil {
		log.Error().Err(err).Msg("failed to post approval request, skipping item")
		return Decision{Action: ActionSkip, Meta: meta}, nil
	}

	req := &pendingRequest{
		meta:      meta,
		createdAt: time.Now(),
		done:      make(chan Decision, 1),
	}

	g.mu.Lock()
	g.pending[correlationID] = req
	g.mu.Unlock()

	log.Info().Str("correlation_id", correlationID).Str("title", meta.Title).Msg("awaiting approval decision")
	select {
	case decision := <-req.done:
		return decision, nil
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.pending, correlationID)
		g.mu.Unlock()
		return Decision{}, ErrAborted.Err(ctx.Err())
	}
}

// PendingCount returns the number of live approval requests.
func (g *Gateway) PendingCount() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// HandleAction processes an inbound button click. Unknown correlation ids get
// a stale notice and are dropped, which makes duplicate and late deliveries
// harmless. The edit action opens the form and keeps the request pending;
// every other action resolves it.
func (g *Gateway) HandleAction(ctx context.Context, correlationID string, action Action, triggerID, user string) {
	if g == nil {
		return
	}

	g.mu.Lock()
	req, ok := g.pending[correlationID]
	if !ok {
		g.mu.Unlock()
		log.Info().Str("correlation_id", correlationID).Str("user", user).Msg("action for unknown request, notifying stale")
		if err := g.poster.NotifyStale(ctx, user); err != nil {
			log.Error().Err(err).Msg("failed to send stale notice")
		}
		return
	}

	if action == ActionEdit {
		meta := req.meta
		g.mu.Unlock()
		if err := g.poster.OpenEdit(ctx, triggerID, correlationID, meta); err != nil {
			log.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to open edit form")
		}
		return
	}

	decision, resolved := g.resolveLocked(correlationID, req, Decision{Action: action, Meta: req.meta, User: user})
	g.mu.Unlock()
	if !resolved {
		return
	}

	if err := g.poster.UpdateDecision(ctx, correlationID, decision.Meta, decision.Action, user); err != nil {
		log.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to update decision message")
	}
}

// HandleEditSubmit processes an inbound edit-form submission: the snapshot is
// overwritten with the submitted fields and the request resolves as approve.
func (g *Gateway) HandleEditSubmit(ctx context.Context, correlationID string, meta store.Metadata, user string) {
	if g == nil {
		return
	}

	g.mu.Lock()
	req, ok := g.pending[correlationID]
	if !ok {
		g.mu.Unlock()
		log.Info().Str("correlation_id", correlationID).Msg("edit submission for unknown request, dropping")
		return
	}

	req.meta = meta
	decision, resolved := g.resolveLocked(correlationID, req, Decision{Action: ActionApprove, Meta: meta, User: user})
	g.mu.Unlock()
	if !resolved {
		return
	}

	if err := g.poster.UpdateDecision(ctx, correlationID, decision.Meta, decision.Action, user); err != nil {
		log.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to update decision message")
	}
}

// resolveLocked completes a request exactly once and removes it from the live
// set. Callers must hold g.mu. Returns false if the request was already
// resolved, in which case the event is dropped.
func (g *Gateway) resolveLocked(correlationID string, req *pendingRequest, decision Decision) (Decision, bool) {
	if req.resolved {
		return Decision{}, false
	}
	req.resolved = true
	req.done <- decision
	delete(g.pending, correlationID)

	log.Info().
		Str("correlation_id", correlationID).
		Str("action", string(decision.Action)).
		Str("user", decision.User).
		Msg("approval request resolved")
	return decision, true
}
