package validation

import (
	"strings"
	"unicode/utf8"

	"chatdesk/internal/errors"
	"chatdesk/internal/models"
)

const (
	maxConversationIDLength = 128
	maxTextContentLength    = 4096
	maxCaptionLength        = 1024
)

// ValidateConversationID checks the conversation identifier coming from the
// rendering layer before it reaches the backend client.
func ValidateConversationID(conversationID string) error {
	if conversationID == "" {
		return errors.NewValidationError("conversation_id", conversationID, "cannot be empty")
	}
	if len(conversationID) > maxConversationIDLength {
		return errors.NewValidationError("conversation_id", conversationID, "too long")
	}
	if strings.ContainsAny(conversationID, " \t\r\n") {
		return errors.NewValidationError("conversation_id", conversationID, "contains whitespace")
	}
	return nil
}

// ValidateSendPayload checks an agent-submitted payload before a provisional
// entry is created for it.
func ValidateSendPayload(payload models.SendPayload) error {
	switch payload.Type {
	case models.TextMessage:
		if strings.TrimSpace(payload.TextContent) == "" {
			return errors.NewValidationError("text_content", "", "cannot be empty for text messages")
		}
		if utf8.RuneCountInString(payload.TextContent) > maxTextContentLength {
			return errors.NewValidationError("text_content", "", "exceeds maximum length")
		}
	case models.ImageMessage, models.DocumentMessage, models.VoiceMessage:
		if payload.Media == nil || payload.Media.URL == "" {
			return errors.NewValidationError("media", "", "media reference is required")
		}
		if payload.Media != nil && utf8.RuneCountInString(payload.Media.Caption) > maxCaptionLength {
			return errors.NewValidationError("media.caption", "", "exceeds maximum length")
		}
	case "":
		return errors.NewValidationError("type", "", "message type is required")
	default:
		return errors.NewValidationError("type", string(payload.Type), "unsupported message type")
	}
	return nil
}
