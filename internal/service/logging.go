package service

import (
	"context"
	"strings"

	"chatdesk/internal/constants"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// Standard field names used across all logging calls
const (
	LogFieldRequestID      = "request_id"
	LogFieldTraceID        = "trace_id"
	LogFieldConversationID = "conversation_id"
	LogFieldMessageID      = "message_id"
	LogFieldToken          = "correlation_token"

	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	LogFieldEvent     = "event"
	LogFieldOutcome   = "outcome"
	LogFieldDirection = "direction"

	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeConversationID masks conversation identifiers for privacy.
// WhatsApp style IDs embed a phone number before the @ suffix.
func SanitizeConversationID(conversationID string) string {
	if conversationID == "" {
		return ""
	}

	local := conversationID
	domain := ""
	if idx := strings.Index(conversationID, "@"); idx > 0 {
		local = conversationID[:idx]
		domain = conversationID[idx:]
	}

	if len(local) > constants.DefaultPhoneMaskLength {
		return "***" + local[len(local)-constants.DefaultPhoneMaskLength:] + domain
	}
	return "***" + domain
}

// SanitizeMessageID shortens message IDs for privacy
func SanitizeMessageID(msgID string) string {
	if msgID == "" {
		return ""
	}

	if len(msgID) > constants.DefaultMessageIDLength {
		return msgID[:constants.DefaultMessageIDLength] + "..."
	}
	return msgID
}

// SanitizeContent completely hides message content for privacy
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// LogMessageMerge logs a timeline merge with appropriate privacy controls
func LogMessageMerge(ctx context.Context, logger *logrus.Logger, source, conversationID, messageID, outcome string) {
	if IsVerboseLogging(ctx) {
		logger.WithFields(logrus.Fields{
			LogFieldComponent:      source,
			LogFieldConversationID: conversationID,
			LogFieldMessageID:      messageID,
			LogFieldOutcome:        outcome,
		}).Info("Merged message into timeline")
	} else {
		logger.WithFields(logrus.Fields{
			LogFieldComponent:      source,
			LogFieldConversationID: SanitizeConversationID(conversationID),
			LogFieldMessageID:      SanitizeMessageID(messageID),
			LogFieldOutcome:        outcome,
		}).Debug("Merged message into timeline")
	}
}
