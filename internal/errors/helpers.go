package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewFetchError creates the retryable page-load failure from the
// reconciliation taxonomy. The timeline is guaranteed unchanged when the
// caller sees this error.
func NewFetchError(conversationID string, err error) *AppError {
	return WrapRetryable(err, ErrCodeFetchFailed, "failed to load message page").
		WithContext("conversation_id", conversationID).
		WithUserMessage("Could not load older messages, please try again")
}

// NewSendError creates the outbound send failure. The provisional entry
// stays visible with status failed; resubmission is the retry path.
func NewSendError(conversationID, correlationToken string, err error) *AppError {
	return Wrap(err, ErrCodeSendFailed, "message send failed").
		WithContext("conversation_id", conversationID).
		WithContext("correlation_token", correlationToken).
		WithUserMessage("Message could not be sent")
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewBackendAPIError creates an error for upstream API calls, retryable for
// server-side and throttling status codes.
func NewBackendAPIError(endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeBackendAPI, "backend API call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}

	return appErr
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	code := GetCode(err)

	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return 400
	case ErrCodeNotFound:
		return 404
	case ErrCodeSessionClosed:
		return 409
	case ErrCodeTimeout:
		return 408
	case ErrCodeFetchFailed, ErrCodeSendFailed, ErrCodeBackendAPI, ErrCodePushFeed:
		if IsRetryable(err) {
			return 502
		}
		return 500
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery:
		return 503
	default:
		return 500
	}
}

// HTTPErrorResponse is the standardized HTTP error body
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	if appErr, ok := err.(*AppError); ok {
		response.Error.Code = appErr.Code
		response.Error.Message = GetUserMessage(err)
		if len(appErr.Context) > 0 {
			publicContext := make(map[string]interface{})
			for k, v := range appErr.Context {
				// Exclude sensitive fields from HTTP responses
				if k != "password" && k != "token" && k != "secret" {
					publicContext[k] = v
				}
			}
			if len(publicContext) > 0 {
				response.Error.Context = publicContext
			}
		}
	} else {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
	}

	return response
}
