package slackbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelpost/pixelpost/internal/pipeline/store"
)

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseTags("a, b"))
	assert.Equal(t, []string{"forest", "night sky"}, parseTags(" forest ,, night sky ,"))
	assert.Empty(t, parseTags("  ,  "))
}

func TestEditModalPrefill(t *testing.T) {
	meta := store.Metadata{
		Title:       "original title",
		Tags:        []string{"a", "b"},
		Description: "some text",
	}

	view := editModal("1712345678.000100", meta)
	assert.Equal(t, "1712345678.000100", view.PrivateMetadata)
	assert.Equal(t, editCallbackID, view.CallbackID)
	require.Len(t, view.Blocks.BlockSet, 3)
}

func TestApprovalBlocksCarryActions(t *testing.T) {
	blocks := approvalBlocks(store.Metadata{Title: "t", Tags: []string{"x"}}, "profile")
	require.Len(t, blocks, 2)
}
