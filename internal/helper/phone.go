package helper

import (
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

const (
	countryCode = "62"
	userSuffix  = "@" + types.DefaultUserServer
)

var nonDigit = regexp.MustCompile(`[^\d]`)

// FormatPhoneNumber converts a phone number to a WhatsApp user JID string.
// Values that already contain "@" are returned untouched.
//
// Only the Indonesian convention is handled: a leading trunk "0" becomes
// "62" and short numbers get "62" prepended. Numbers from other countries
// longer than ten digits pass through as-is; nothing validates the final
// length or country code.
func FormatPhoneNumber(number string) string {
	if number == "" || strings.Contains(number, "@") {
		return number
	}

	cleaned := nonDigit.ReplaceAllString(number, "")

	if strings.HasPrefix(cleaned, "0") {
		cleaned = countryCode + cleaned[1:]
	} else if !strings.HasPrefix(cleaned, countryCode) && len(cleaned) <= 10 {
		cleaned = countryCode + cleaned
	}

	return cleaned + userSuffix
}

// ExtractNumber strips the user server suffix from a JID string.
// "6285148107612:43@s.whatsapp.net" -> "6285148107612:43"
func ExtractNumber(jid string) string {
	return strings.TrimSuffix(jid, userSuffix)
}

// BaseNumber drops the server and the ":device" part.
// "6285148107612:43@s.whatsapp.net" -> "6285148107612"
func BaseNumber(jid string) string {
	atSplit := strings.SplitN(jid, "@", 2)
	colonSplit := strings.SplitN(atSplit[0], ":", 2)
	return colonSplit[0]
}

// SameNumber compares two numbers ignoring device suffixes.
func SameNumber(a, b string) bool {
	return BaseNumber(a) == BaseNumber(b)
}
