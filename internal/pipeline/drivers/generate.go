// Package drivers holds the contracts for the pipeline's external
// collaborators and the adapters that implement them: a subprocess-based
// generation front-end, an OpenAI-backed metadata service, and a
// subprocess-based publisher. The scheduler only sees the interfaces.
package drivers

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/pixelpost/pixelpost/internal/pipeline/store"
)

// GenResult is one generated candidate. SecondaryPath is the optional
// alternate-format artifact (e.g. a transparent variant).
type GenResult struct {
	PrimaryPath   string
	SecondaryPath string
	Params        store.Params
}

// HasSecondary reports whether an alternate-format artifact was produced.
func (r *GenResult) HasSecondary() bool {
	return r.SecondaryPath != ""
}

// Generator produces candidate artifacts. Any error is treated by the
// scheduler as a transient per-iteration failure.
type Generator interface {
	Generate(ctx context.Context, profile string) (*GenResult, error)
	Close() error
}

// CommandGenerator runs an external generation front-end and reads one JSON
// object from its stdout: primary_path, optional secondary_path, and a params
// object whose values are strings or string arrays.
type CommandGenerator struct {
	argv []string
}

var _ Generator = (*CommandGenerator)(nil)

// NewCommandGenerator creates a generator invoking the given argv. The
// profile name, when set, is appended as the final argument.
func NewCommandGenerator(argv []string) (*CommandGenerator, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("generator command is empty")
	}
	return &CommandGenerator{argv: argv}, nil
}

func (g *CommandGenerator) Generate(ctx context.Context, profile string) (*GenResult, error) {
	args := g.argv[1:]
	if profile != "" {
		args = append(append([]string{}, args...), profile)
	}

	cmd := exec.CommandContext(ctx, g.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("command", g.argv[0]).Str("profile", profile).Msg("invoking generator")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("generator failed: %w (stderr: %s)", err, stderr.String())
	}

	return parseGenResult(stdout.String())
}

func (g *CommandGenerator) Close() error {
	return nil
}

func parseGenResult(out string) (*GenResult, error) {
	if !gjson.Valid(out) {
		return nil, fmt.Errorf("generator produced invalid JSON")
	}

	primary := gjson.Get(out, "primary_path").String()
	if primary == "" {
		return nil, fmt.Errorf("generator result is missing primary_path")
	}

	result := &GenResult{
		PrimaryPath:   primary,
		SecondaryPath: gjson.Get(out, "secondary_path").String(),
		Params:        store.Params{},
	}

	gjson.Get(out, "params").ForEach(func(key, value gjson.Result) bool {
		if value.IsArray() {
			var list []string
			for _, item := range value.Array() {
				list = append(list, item.String())
			}
			result.Params[key.String()] = store.ParamValue{Values: list}
		} else {
			result.Params[key.String()] = store.ParamValue{Value: value.String()}
		}
		return true
	})

	return result, nil
}
