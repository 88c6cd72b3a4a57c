// Package slackbridge connects the approval gateway to Slack. Outbound it
// posts Block Kit approval messages and opens edit modals; inbound it runs a
// Socket Mode listener that translates button clicks, modal submissions, and
// free-text start commands into gateway calls. The gateway itself never
// touches the Slack API.
package slackbridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/pixelpost/pixelpost/internal/pipeline/approval"
	"github.com/pixelpost/pixelpost/internal/pipeline/store"
)

// Bridge owns the Slack clients for one channel.
type Bridge struct {
	client  *slack.Client
	sock    *socketmode.Client
	channel string
	gateway *approval.Gateway
}

var _ approval.Poster = (*Bridge)(nil)

// New creates a bridge for the given channel. Bind must be called with the
// gateway before Run.
func New(botToken, appToken, channel string) *Bridge {
	client := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return &Bridge{
		client:  client,
		sock:    socketmode.New(client),
		channel: channel,
	}
}

// Bind attaches the gateway that receives inbound events.
func (b *Bridge) Bind(g *approval.Gateway) {
	b.gateway = g
}

func (b *Bridge) PostStartPrompt(ctx context.Context) error {
	_, _, err := b.client.PostMessageContext(ctx, b.channel, slack.MsgOptionBlocks(startBlocks()...))
	return err
}

func (b *Bridge) PostApproval(ctx context.Context, artifactPath string, meta store.Metadata, label string) (string, error) {
	if err := b.uploadPreview(ctx, artifactPath, meta.Title); err != nil {
		// The message with its controls is what matters; a failed preview is
		// reported but does not block the decision round trip.
		log.Error().Err(err).Str("artifact", artifactPath).Msg("failed to upload preview")
	}

	_, timestamp, err := b.client.PostMessageContext(ctx, b.channel, slack.MsgOptionBlocks(approvalBlocks(meta, label)...))
	if err != nil {
		return "", fmt.Errorf("posting approval message: %w", err)
	}
	return timestamp, nil
}

func (b *Bridge) uploadPreview(ctx context.Context, artifactPath, title string) error {
	info, err := os.Stat(artifactPath)
	if err != nil {
		return err
	}
	_, err = b.client.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:     artifactPath,
		FileSize: int(info.Size()),
		Filename: filepath.Base(artifactPath),
		Title:    title,
		Channel:  b.channel,
	})
	return err
}

func (b *Bridge) UpdateDecision(ctx context.Context, correlationID string, meta store.Metadata, action approval.Action, user string) error {
	_, _, _, err := b.client.UpdateMessageContext(ctx, b.channel, correlationID,
		slack.MsgOptionBlocks(decisionBlocks(meta, action, user)...))
	return err
}

func (b *Bridge) OpenEdit(ctx context.Context, triggerID, correlationID string, meta store.Metadata) error {
	_, err := b.client.OpenViewContext(ctx, triggerID, editModal(correlationID, meta))
	return err
}

func (b *Bridge) NotifyStale(ctx context.Context, user string) error {
	_, err := b.client.PostEphemeralContext(ctx, b.channel, user,
		slack.MsgOptionText("That request is no longer active.", false))
	return err
}

// Run starts the Socket Mode connection and dispatches inbound events until
// the context is cancelled. It is the gateway's independent listener and must
// run in its own goroutine.
func (b *Bridge) Run(ctx context.Context) error {
	go func() {
		if err := b.sock.RunContext(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("socket mode connection ended")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-b.sock.Events:
			if !ok {
				return nil
			}
			b.dispatch(ctx, evt)
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		log.Info().Msg("connected to slack")
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		b.sock.Ack(*evt.Request)
		b.handleEventsAPI(apiEvent)
	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		b.sock.Ack(*evt.Request)
		b.handleInteraction(ctx, callback)
	}
}

func (b *Bridge) handleEventsAPI(apiEvent slackevents.EventsAPIEvent) {
	ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || ev.BotID != "" {
		return
	}
	if b.gateway.IsStartCommand(strings.TrimSpace(ev.Text)) {
		if b.gateway.HandleStart(ev.User) {
			log.Info().Str("user", ev.User).Msg("start command received")
		}
	}
}

func (b *Bridge) handleInteraction(ctx context.Context, callback slack.InteractionCallback) {
	switch callback.Type {
	case slack.InteractionTypeBlockActions:
		for _, blockAction := range callback.ActionCallback.BlockActions {
			b.handleBlockAction(ctx, callback, blockAction)
		}
	case slack.InteractionTypeViewSubmission:
		b.handleViewSubmission(ctx, callback)
	}
}

func (b *Bridge) handleBlockAction(ctx context.Context, callback slack.InteractionCallback, blockAction *slack.BlockAction) {
	user := callback.User.ID
	correlationID := callback.Message.Timestamp

	switch blockAction.ActionID {
	case actionStart:
		if b.gateway.HandleStart(user) {
			log.Info().Str("user", user).Msg("start button pressed")
		}
	case actionApprove:
		b.gateway.HandleAction(ctx, correlationID, approval.ActionApprove, callback.TriggerID, user)
	case actionEdit:
		b.gateway.HandleAction(ctx, correlationID, approval.ActionEdit, callback.TriggerID, user)
	case actionPostpone:
		b.gateway.HandleAction(ctx, correlationID, approval.ActionPostpone, callback.TriggerID, user)
	case actionReject:
		b.gateway.HandleAction(ctx, correlationID, approval.ActionReject, callback.TriggerID, user)
	}
}

func (b *Bridge) handleViewSubmission(ctx context.Context, callback slack.InteractionCallback) {
	if callback.View.CallbackID != editCallbackID {
		return
	}

	values := callback.View.State.Values
	meta := store.Metadata{
		Title:       values[titleBlockID][titleInputID].Value,
		Tags:        parseTags(values[tagsBlockID][tagsInputID].Value),
		Description: values[descriptionBlockID][descriptionInputID].Value,
	}
	b.gateway.HandleEditSubmit(ctx, callback.View.PrivateMetadata, meta, callback.User.ID)
}
