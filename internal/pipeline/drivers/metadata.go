package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/pixelpost/pixelpost/internal/pipeline/store"
)

// Describer derives publish metadata from a candidate's generation
// parameters. Invalid output is an error, never published as-is.
type Describer interface {
	Describe(ctx context.Context, generator string, params store.Params) (store.Metadata, error)
}

// MetadataLimits bound what a Describer may return. Oversized fields are
// truncated; an empty title or too few tags is an error.
type MetadataLimits struct {
	MaxTitleLen       int
	MinTags           int
	MaxTags           int
	MaxDescriptionLen int
}

// ValidateMetadata normalizes meta in place against the limits. Returns an
// error for output too malformed to publish.
func ValidateMetadata(meta *store.Metadata, limits MetadataLimits) error {
	meta.Title = strings.TrimSpace(meta.Title)
	if meta.Title == "" {
		return fmt.Errorf("metadata has an empty title")
	}
	meta.Title = truncate(meta.Title, limits.MaxTitleLen)

	tags := make([]string, 0, len(meta.Tags))
	for _, tag := range meta.Tags {
		if t := strings.TrimSpace(tag); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) < limits.MinTags {
		return fmt.Errorf("metadata has %d tags, at least %d required", len(tags), limits.MinTags)
	}
	if len(tags) > limits.MaxTags {
		tags = tags[:limits.MaxTags]
	}
	meta.Tags = tags

	meta.Description = truncate(strings.TrimSpace(meta.Description), limits.MaxDescriptionLen)
	return nil
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

const describeSystemPrompt = `You write gallery listings for generated artwork.
Given a generation profile name and its parameters, respond with a single JSON
object: {"title": string, "tags": [string], "description": string}. No prose,
no code fences.`

// OpenAIDescriber asks a chat-completion model for title, tags, and
// description, then validates the result against the configured limits.
type OpenAIDescriber struct {
	client openai.Client
	model  string
	limits MetadataLimits
}

var _ Describer = (*OpenAIDescriber)(nil)

// NewOpenAIDescriber creates a describer using the given API key and model.
func NewOpenAIDescriber(apiKey, model string, limits MetadataLimits) *OpenAIDescriber {
	return &OpenAIDescriber{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		limits: limits,
	}
}

func (d *OpenAIDescriber) Describe(ctx context.Context, generator string, params store.Params) (store.Metadata, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return store.Metadata{}, fmt.Errorf("encoding params: %w", err)
	}

	prompt := fmt.Sprintf("Generation profile: %s\nParameters: %s", generator, paramsJSON)
	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(d.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(describeSystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return store.Metadata{}, fmt.Errorf("metadata service: %w", err)
	}
	if len(resp.Choices) == 0 {
		return store.Metadata{}, fmt.Errorf("metadata service returned no choices")
	}

	meta, err := parseMetadata(resp.Choices[0].Message.Content)
	if err != nil {
		return store.Metadata{}, err
	}
	if err := ValidateMetadata(&meta, d.limits); err != nil {
		return store.Metadata{}, err
	}
	return meta, nil
}

// parseMetadata extracts the metadata object from a model response, tolerating
// stray code fences.
func parseMetadata(content string) (store.Metadata, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	if !gjson.Valid(content) {
		return store.Metadata{}, fmt.Errorf("metadata service produced invalid JSON")
	}

	meta := store.Metadata{
		Title:       gjson.Get(content, "title").String(),
		Description: gjson.Get(content, "description").String(),
	}
	for _, tag := range gjson.Get(content, "tags").Array() {
		meta.Tags = append(meta.Tags, tag.String())
	}
	return meta, nil
}
