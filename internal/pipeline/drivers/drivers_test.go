package drivers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelpost/pixelpost/internal/pipeline/store"
)

func TestParseGenResult(t *testing.T) {
	out := `{
		"primary_path": "/tmp/out/a.png",
		"secondary_path": "/tmp/out/a_alpha.png",
		"params": {"seed": "42", "layers": ["bg", "fg"]}
	}`

	result, err := parseGenResult(out)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out/a.png", result.PrimaryPath)
	assert.True(t, result.HasSecondary())
	assert.Equal(t, "42", result.Params["seed"].Value)
	assert.Equal(t, []string{"bg", "fg"}, result.Params["layers"].Values)
}

func TestParseGenResultMissingPrimary(t *testing.T) {
	_, err := parseGenResult(`{"params": {}}`)
	assert.Error(t, err)

	_, err = parseGenResult(`not json`)
	assert.Error(t, err)
}

func TestCommandGeneratorRunsSubprocess(t *testing.T) {
	gen, err := NewCommandGenerator([]string{"/bin/sh", "-c", `echo '{"primary_path": "/tmp/x.png", "params": {"seed": "7"}}'`})
	require.NoError(t, err)
	defer gen.Close()

	result, err := gen.Generate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.png", result.PrimaryPath)
	assert.Equal(t, "7", result.Params["seed"].Value)
}

func TestCommandGeneratorFailure(t *testing.T) {
	gen, err := NewCommandGenerator([]string{"/bin/sh", "-c", "exit 3"})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "profile")
	assert.Error(t, err)
}

func defaultLimits() MetadataLimits {
	return MetadataLimits{MaxTitleLen: 10, MinTags: 1, MaxTags: 3, MaxDescriptionLen: 20}
}

func TestValidateMetadataTruncates(t *testing.T) {
	meta := store.Metadata{
		Title:       "a very long title indeed",
		Tags:        []string{"a", "b", "c", "d", "e"},
		Description: strings.Repeat("x", 50),
	}
	require.NoError(t, ValidateMetadata(&meta, defaultLimits()))

	assert.Len(t, []rune(meta.Title), 10)
	assert.Len(t, meta.Tags, 3)
	assert.Len(t, meta.Description, 20)
}

func TestValidateMetadataRejectsEmptyTitle(t *testing.T) {
	meta := store.Metadata{Title: "   ", Tags: []string{"a"}}
	assert.Error(t, ValidateMetadata(&meta, defaultLimits()))
}

func TestValidateMetadataRejectsTooFewTags(t *testing.T) {
	meta := store.Metadata{Title: "t", Tags: []string{" ", ""}}
	assert.Error(t, ValidateMetadata(&meta, defaultLimits()))
}

func TestParseMetadataStripsFences(t *testing.T) {
	content := "```json\n{\"title\": \"T\", \"tags\": [\"a\"], \"description\": \"D\"}\n```"
	meta, err := parseMetadata(content)
	require.NoError(t, err)
	assert.Equal(t, "T", meta.Title)
	assert.Equal(t, []string{"a"}, meta.Tags)
	assert.Equal(t, "D", meta.Description)
}

// pngFile writes a file starting with the PNG magic so the image check passes.
func pngFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "art.png")
	data := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestCommandPublisherRoundTrip(t *testing.T) {
	pub, err := NewCommandPublisher([]string{"/bin/sh", "-c", `cat > /dev/null; echo '{"success": true, "destination_url": "https://example.com/view/1"}'`})
	require.NoError(t, err)
	defer pub.Close()

	result, err := pub.Publish(context.Background(), pngFile(t), "", store.Metadata{Title: "t", Tags: []string{"a"}})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "https://example.com/view/1", result.DestinationURL)
}

func TestCommandPublisherRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0600))

	pub, err := NewCommandPublisher([]string{"/bin/true"})
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), path, "", store.Metadata{})
	assert.Error(t, err)
}

func TestDryRunPublisherAlwaysSucceeds(t *testing.T) {
	result, err := DryRunPublisher{}.Publish(context.Background(), "/nonexistent.png", "", store.Metadata{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.DestinationURL)
}
