package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskConversationID masks a conversation ID while keeping enough structure
// for correlation in logs. WhatsApp-style IDs ("1234567890@c.us") keep their
// domain suffix with the number part masked.
func MaskConversationID(conversationID string) string {
	if conversationID == "" {
		return ""
	}

	if strings.Contains(conversationID, "@") {
		parts := strings.SplitN(conversationID, "@", 2)
		numberPart := parts[0]
		domainPart := "@" + parts[1]

		if len(numberPart) <= 4 {
			return strings.Repeat("*", len(numberPart)) + domainPart
		}
		return strings.Repeat("*", len(numberPart)-4) + numberPart[len(numberPart)-4:] + domainPart
	}

	return maskString(conversationID, 4)
}

// MaskMessageID masks a message ID, keeping the last characters for
// debugging.
func MaskMessageID(messageID string) string {
	return maskString(messageID, 8)
}

// MaskCustomerID masks a customer identifier, using phone masking when the
// value looks like a phone number.
func MaskCustomerID(customerID string) string {
	if customerID == "" {
		return ""
	}

	if strings.HasPrefix(customerID, "+") || (len(customerID) >= 10 && isNumeric(customerID)) {
		return MaskPhoneNumber(customerID)
	}

	return maskString(customerID, 4)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{})
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}

		switch k {
		case "phone", "phone_number", "from", "to":
			masked[k] = MaskPhoneNumber(s)
		case "conversation_id", "conversationId", "chat_id":
			masked[k] = MaskConversationID(s)
		case "message_id", "messageId", "msg_id":
			masked[k] = MaskMessageID(s)
		case "customer_id", "customerId", "user_id", "userId":
			masked[k] = MaskCustomerID(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
