package util

import (
	"mime"
	"net/mail"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Newsletters still ship legacy single-byte charsets in encoded words.
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

var addressParser = &mail.AddressParser{WordDecoder: wordDecoder}

// ParseSender extracts the sender address and display name from a From header.
// - Parses RFC 5322 "From" values like "Name <User@Example.COM>"
// - Lowercases and trims the address
// - Decodes RFC 2047 encoded display names
// Returns an empty address if parsing fails or the address is missing.
func ParseSender(fromHeader string) (email, name string) {
	fromHeader = strings.TrimSpace(fromHeader)
	if fromHeader == "" {
		return "", ""
	}
	addr, err := addressParser.Parse(fromHeader)
	if err != nil || addr == nil {
		// Some headers may be a list; try a crude fallback by splitting on comma.
		for _, p := range strings.Split(fromHeader, ",") {
			a, e := addressParser.Parse(strings.TrimSpace(p))
			if e == nil && a != nil {
				addr = a
				break
			}
		}
	}
	if addr == nil {
		return lenientSender(fromHeader)
	}
	return NormalizeEmail(addr.Address), strings.TrimSpace(addr.Name)
}

// lenientSender handles From values net/mail rejects, e.g. unquoted
// display names containing special characters: Shop [Deals] <news@shop.com>
func lenientSender(fromHeader string) (string, string) {
	open := strings.LastIndexByte(fromHeader, '<')
	end := strings.LastIndexByte(fromHeader, '>')
	if open < 0 || end <= open {
		return "", ""
	}
	email := NormalizeEmail(fromHeader[open+1 : end])
	if !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
		return "", ""
	}
	name := strings.Trim(strings.TrimSpace(fromHeader[:open]), `"'`)
	return email, DecodeHeader(name)
}

// NormalizeEmail lowercases and trims an address. It is the key used for
// allow-list lookups, so every writer and reader goes through it.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DecodeHeader decodes RFC 2047 encoded words, returning the input unchanged
// when it cannot be decoded.
func DecodeHeader(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// NameFromAddress derives a readable label from the local part of an address,
// e.g. "jane.doe@x.com" -> "Jane Doe". Used only for display.
func NameFromAddress(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return email
	}
	parts := strings.FieldsFunc(email[:at], func(r rune) bool { return r == '.' || r == '_' || r == '-' })
	for i := range parts {
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, " ")
}
