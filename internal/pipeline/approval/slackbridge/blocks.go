package slackbridge

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/pixelpost/pixelpost/internal/pipeline/approval"
	"github.com/pixelpost/pixelpost/internal/pipeline/store"
)

// Action ids carried in block elements. The inbound handler maps them back to
// gateway actions.
const (
	actionApprove  = "pixelpost_approve"
	actionEdit     = "pixelpost_edit"
	actionPostpone = "pixelpost_postpone"
	actionReject   = "pixelpost_reject"
	actionStart    = "pixelpost_start"

	editCallbackID = "pixelpost_metadata_edit"

	titleBlockID       = "title_block"
	titleInputID       = "title_input"
	tagsBlockID        = "tags_block"
	tagsInputID        = "tags_input"
	descriptionBlockID = "description_block"
	descriptionInputID = "description_input"
)

func plainText(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func metadataSection(meta store.Metadata, label string) *slack.SectionBlock {
	text := fmt.Sprintf("*%s*\nProfile: %s\nTags: %s\n\n%s",
		meta.Title, label, strings.Join(meta.Tags, ", "), meta.Description)
	return slack.NewSectionBlock(markdown(text), nil, nil)
}

func approvalBlocks(meta store.Metadata, label string) []slack.Block {
	approve := slack.NewButtonBlockElement(actionApprove, "approve", plainText("Approve"))
	approve.Style = slack.StylePrimary
	reject := slack.NewButtonBlockElement(actionReject, "reject", plainText("Reject"))
	reject.Style = slack.StyleDanger

	return []slack.Block{
		metadataSection(meta, label),
		slack.NewActionBlock("approval_actions",
			approve,
			slack.NewButtonBlockElement(actionEdit, "edit", plainText("Edit")),
			slack.NewButtonBlockElement(actionPostpone, "postpone", plainText("Postpone")),
			reject,
		),
	}
}

func decisionBlocks(meta store.Metadata, action approval.Action, user string) []slack.Block {
	var verdict string
	switch action {
	case approval.ActionApprove:
		verdict = "Approved"
	case approval.ActionReject:
		verdict = "Rejected"
	case approval.ActionPostpone:
		verdict = "Postponed"
	default:
		verdict = string(action)
	}

	return []slack.Block{
		metadataSection(meta, ""),
		slack.NewContextBlock("approval_outcome", markdown(fmt.Sprintf("%s by <@%s>", verdict, user))),
	}
}

func startBlocks() []slack.Block {
	start := slack.NewButtonBlockElement(actionStart, "start", plainText("Start"))
	start.Style = slack.StylePrimary

	return []slack.Block{
		slack.NewSectionBlock(markdown("Pipeline ready. Press *Start* or send the start command to begin today's batch."), nil, nil),
		slack.NewActionBlock("start_actions", start),
	}
}

func editModal(correlationID string, meta store.Metadata) slack.ModalViewRequest {
	titleInput := slack.NewPlainTextInputBlockElement(plainText("Title"), titleInputID)
	titleInput.InitialValue = meta.Title

	tagsInput := slack.NewPlainTextInputBlockElement(plainText("Comma-separated tags"), tagsInputID)
	tagsInput.InitialValue = strings.Join(meta.Tags, ", ")

	descriptionInput := slack.NewPlainTextInputBlockElement(plainText("Description"), descriptionInputID)
	descriptionInput.InitialValue = meta.Description
	descriptionInput.Multiline = true

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      editCallbackID,
		PrivateMetadata: correlationID,
		Title:           plainText("Edit metadata"),
		Submit:          plainText("Approve"),
		Close:           plainText("Cancel"),
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewInputBlock(titleBlockID, plainText("Title"), nil, titleInput),
				slack.NewInputBlock(tagsBlockID, plainText("Tags"), nil, tagsInput),
				slack.NewInputBlock(descriptionBlockID, plainText("Description"), nil, descriptionInput),
			},
		},
	}
}

// parseTags splits a comma-separated tag list, dropping empties.
func parseTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if tag := strings.TrimSpace(p); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
