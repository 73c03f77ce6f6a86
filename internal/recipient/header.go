package recipient

import "strings"

// ParseHeader splits an address-list header value ("John Doe" <john@x>, jane@y) into
// Addresses. Commas inside quotes or angle brackets do not split.
func ParseHeader(value string) []Address {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	var (
		out     []Address
		buf     strings.Builder
		quoted  bool
		angle   bool
		escaped bool
	)

	flush := func() {
		if part := strings.TrimSpace(buf.String()); part != "" {
			out = append(out, parseAddress(part))
		}
		buf.Reset()
	}

	for _, r := range value {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quoted:
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == '<' && !quoted:
			angle = true
		case r == '>' && !quoted:
			angle = false
		case r == ',' && !quoted && !angle:
			flush()
			continue
		}
		buf.WriteRune(r)
	}
	flush()

	return out
}

func parseAddress(s string) Address {
	addr := Address{}

	if idx := strings.LastIndex(s, "<"); idx != -1 {
		addr.DisplayName = strings.TrimSpace(s[:idx])
		if end := strings.Index(s[idx:], ">"); end != -1 {
			addr.Email = strings.TrimSpace(s[idx+1 : idx+end])
		}
	} else {
		addr.Email = strings.TrimSpace(s)
	}

	addr.DisplayName = strings.ReplaceAll(strings.Trim(addr.DisplayName, `"`), `\"`, `"`)

	return addr
}
