package gservice

import (
	"encoding/base64"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/greetguard/internal/recipient"
)

// recipientHeaders in the order recipients are reported.
var recipientHeaders = []string{"To", "Cc", "Bcc"}

// Body returns the text/plain body of msg, or its HTML body when there is no plain part.
func Body(msg *gmail.Message) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}

	textBody, htmlBody := extractMessageBodies(msg.Payload)
	if textBody != "" {
		return textBody
	}
	return htmlBody
}

// Recipients returns the To, Cc and Bcc addresses of msg in that order.
func Recipients(msg *gmail.Message) []recipient.Address {
	var out []recipient.Address
	for _, name := range recipientHeaders {
		for _, value := range HeaderValues(msg, name) {
			out = append(out, recipient.ParseHeader(value)...)
		}
	}
	return out
}

// HeaderValues returns every value of the named header; names compare case-insensitively.
func HeaderValues(msg *gmail.Message, name string) []string {
	if msg == nil || msg.Payload == nil {
		return nil
	}

	var values []string
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// Header returns the first value of the named header.
func Header(msg *gmail.Message, name string) string {
	if values := HeaderValues(msg, name); len(values) > 0 {
		return values[0]
	}
	return ""
}

func extractMessageBodies(payload *gmail.MessagePart) (textBody, htmlBody string) {
	textBody, htmlBody = extractBodyFromPart(payload)

	for _, part := range payload.Parts {
		// attachments of a text type are not the body
		if part.Filename != "" {
			continue
		}

		partText, partHTML := extractBodyFromPart(part)
		if textBody == "" {
			textBody = partText
		}
		if htmlBody == "" {
			htmlBody = partHTML
		}

		if len(part.Parts) > 0 {
			nestedText, nestedHTML := extractMessageBodies(part)
			if textBody == "" {
				textBody = nestedText
			}
			if htmlBody == "" {
				htmlBody = nestedHTML
			}
		}
	}

	return textBody, htmlBody
}

func extractBodyFromPart(part *gmail.MessagePart) (textBody, htmlBody string) {
	if part.Body == nil || part.Body.Data == "" {
		return "", ""
	}

	switch strings.ToLower(part.MimeType) {
	case "text/plain":
		return decodeBase64URL(part.Body.Data), ""
	case "text/html":
		return "", decodeBase64URL(part.Body.Data)
	default:
		return "", ""
	}
}

func decodeBase64URL(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return data
		}
	}
	return string(decoded)
}
