package drivers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/pixelpost/pixelpost/internal/pipeline/store"
)

// PubResult is the outcome of one publish call.
type PubResult struct {
	Success        bool
	DestinationURL string
}

// Publisher uploads an artifact to the destination site.
type Publisher interface {
	Publish(ctx context.Context, primary, secondary string, meta store.Metadata) (*PubResult, error)
	Close() error
}

// CommandPublisher drives an external uploader: the request goes to its stdin
// as JSON, the result comes back on stdout as {"success": bool,
// "destination_url": string}. The primary artifact must be an image.
type CommandPublisher struct {
	argv []string
}

var _ Publisher = (*CommandPublisher)(nil)

// NewCommandPublisher creates a publisher invoking the given argv.
func NewCommandPublisher(argv []string) (*CommandPublisher, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("publish command is empty")
	}
	return &CommandPublisher{argv: argv}, nil
}

type publishRequest struct {
	PrimaryPath   string         `json:"primary_path"`
	SecondaryPath string         `json:"secondary_path,omitempty"`
	Metadata      store.Metadata `json:"metadata"`
}

func (p *CommandPublisher) Publish(ctx context.Context, primary, secondary string, meta store.Metadata) (*PubResult, error) {
	if err := checkImage(primary); err != nil {
		return nil, err
	}

	req, err := json.Marshal(publishRequest{
		PrimaryPath:   primary,
		SecondaryPath: secondary,
		Metadata:      meta,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding publish request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Stdin = bytes.NewReader(req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("command", p.argv[0]).Str("artifact", primary).Msg("invoking publisher")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("publisher failed: %w (stderr: %s)", err, stderr.String())
	}

	out := stdout.String()
	if !gjson.Valid(out) {
		return nil, fmt.Errorf("publisher produced invalid JSON")
	}
	return &PubResult{
		Success:        gjson.Get(out, "success").Bool(),
		DestinationURL: gjson.Get(out, "destination_url").String(),
	}, nil
}

func (p *CommandPublisher) Close() error {
	return nil
}

// checkImage refuses to hand non-image bytes to the uploader.
func checkImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading artifact: %w", err)
	}
	if !filetype.IsImage(head[:n]) {
		return fmt.Errorf("artifact %s is not an image", path)
	}
	return nil
}

// DryRunPublisher simulates publishing: every call succeeds without touching
// the destination site.
type DryRunPublisher struct{}

var _ Publisher = (*DryRunPublisher)(nil)

func (DryRunPublisher) Publish(_ context.Context, primary, _ string, meta store.Metadata) (*PubResult, error) {
	log.Info().Str("artifact", primary).Str("title", meta.Title).Msg("dry run: skipping publish")
	return &PubResult{Success: true}, nil
}

func (DryRunPublisher) Close() error {
	return nil
}
