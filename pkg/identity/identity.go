// Package identity canonicalizes raw message addresses (phone numbers and
// email addresses) into stable keys so that conversation records from
// different channels can be matched to the same contact.
package identity

import (
	"strings"
)

// Normalizer canonicalizes addresses. DefaultPrefix is the dialing prefix
// assumed for bare national numbers (NANP "+1" by default).
type Normalizer struct {
	DefaultPrefix string
}

// Default is the normalizer used by the package-level functions.
var Default = Normalizer{DefaultPrefix: "+1"}

// Normalize canonicalizes a raw address so grouping is stable across
// formatting variants (notably phone numbers with and without the leading
// dialing prefix).
//
// Results: "mailto:<lowercased address>" for emails, "tel:+<digits>" for
// phone numbers that normalize confidently, and the cleaned input otherwise.
// Keys without a tel:/mailto: prefix are ambiguous; see IsAmbiguous.
func Normalize(raw string) string { return Default.Normalize(raw) }

// IsAmbiguous reports whether a key produced by Normalize is too uncertain
// to merge conversations on. Short codes and unparseable identifiers fail
// open: the caller must leave the conversation standalone rather than risk
// merging two unrelated threads.
func IsAmbiguous(key string) bool {
	return !strings.HasPrefix(key, "tel:") && !strings.HasPrefix(key, "mailto:")
}

func (n Normalizer) Normalize(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return ""
	}

	if strings.HasPrefix(id, "mailto:") {
		return "mailto:" + strings.ToLower(strings.TrimPrefix(id, "mailto:"))
	}
	if strings.Contains(id, "@") && !strings.HasPrefix(id, "tel:") {
		return "mailto:" + strings.ToLower(id)
	}

	if strings.HasPrefix(id, "tel:") || strings.HasPrefix(id, "+") || isNumeric(id) {
		local := strings.TrimPrefix(id, "tel:")
		normalized := n.normalizePhone(local)
		if strings.HasPrefix(normalized, "+") {
			return "tel:" + normalized
		}
		// Short code or otherwise ambiguous number: return the digits
		// without the tel: prefix so it never matches a full number.
		return normalized
	}

	return id
}

// normalizePhone canonicalizes phone-like identifiers while preserving
// short-code semantics (e.g. "242733" stays "242733", not "+242733").
func (n Normalizer) normalizePhone(local string) string {
	cleaned := cleanPhone(local)
	if cleaned == "" {
		return ""
	}
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	prefix := n.DefaultPrefix
	if prefix == "" {
		prefix = "+1"
	}
	cc := strings.TrimPrefix(prefix, "+")
	if len(cleaned) == 10 {
		return prefix + cleaned
	}
	if strings.HasPrefix(cleaned, cc) && len(cleaned) == 10+len(cc) {
		return "+" + cleaned
	}
	if len(cleaned) >= 11 {
		return "+" + cleaned
	}
	return cleaned
}

// cleanPhone strips formatting characters (spaces, dashes, dots, parens)
// and anything else that isn't a digit, keeping one leading "+".
func cleanPhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "+" {
		return ""
	}
	return out
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return true
}

// FormatAddress renders a canonical key (or raw address) for display:
// "tel:+15551230000" becomes "+1 (555) 123-0000" for NANP numbers, email
// keys lose their mailto: prefix, everything else passes through.
func FormatAddress(key string) string {
	if strings.HasPrefix(key, "mailto:") {
		return strings.TrimPrefix(key, "mailto:")
	}
	num := key
	if strings.HasPrefix(num, "tel:") {
		num = strings.TrimPrefix(num, "tel:")
	}
	if strings.HasPrefix(num, "+1") && len(num) == 12 {
		return "+1 (" + num[2:5] + ") " + num[5:8] + "-" + num[8:]
	}
	return num
}
