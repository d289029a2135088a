package gmail

import (
	"encoding/base64"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
	gmailv1 "google.golang.org/api/gmail/v1"
)

// bodies walks the MIME tree depth-first and returns the first text/plain
// and the first text/html leaf, each converted to UTF-8. Attachments are
// skipped even when they carry a text type.
func bodies(part *gmailv1.MessagePart) (text, html string) {
	var walk func(p *gmailv1.MessagePart)
	walk = func(p *gmailv1.MessagePart) {
		if p == nil || (text != "" && html != "") {
			return
		}
		if p.Filename == "" && p.Body != nil && p.Body.Data != "" {
			switch strings.ToLower(p.MimeType) {
			case "text/plain":
				if text == "" {
					text = decodePart(p)
				}
			case "text/html":
				if html == "" {
					html = decodePart(p)
				}
			}
		}
		for _, sub := range p.Parts {
			walk(sub)
		}
	}
	walk(part)
	return text, html
}

// decodePart base64url-decodes the body and converts it from the charset
// declared in the part's Content-Type header.
func decodePart(p *gmailv1.MessagePart) string {
	raw := decodeBase64URL(p.Body.Data)
	cs := partCharset(p)
	if cs == "" || strings.EqualFold(cs, "utf-8") || strings.EqualFold(cs, "us-ascii") {
		return raw
	}
	r, err := charset.Reader(cs, strings.NewReader(raw))
	if err != nil {
		return raw
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return raw
	}
	return string(b)
}

func partCharset(p *gmailv1.MessagePart) string {
	for _, h := range p.Headers {
		if !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		_, params, err := mime.ParseMediaType(h.Value)
		if err != nil {
			return ""
		}
		return params["charset"]
	}
	return ""
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}
