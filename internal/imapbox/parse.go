package imapbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"inboxsweep/internal/extract"
)

// parseMessage turns an RFC 5322 message into a RawMessage. The first text
// and HTML inline parts become the bodies; attachments are skipped.
func parseMessage(id string, raw []byte, received time.Time) (extract.RawMessage, error) {
	if len(raw) == 0 {
		return extract.RawMessage{}, fmt.Errorf("%w: message %s has no content", extract.ErrMalformedMessage, id)
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return extract.RawMessage{}, fmt.Errorf("%w: message %s: %v", extract.ErrMalformedMessage, id, err)
	}
	defer mr.Close()

	msg := extract.RawMessage{
		ID:           id,
		Headers:      make(map[string]string),
		InternalDate: received,
	}
	fields := mr.Header.Fields()
	for fields.Next() {
		key := fields.Key()
		if _, ok := msg.Headers[key]; ok {
			continue
		}
		msg.Headers[key] = fields.Value()
	}

	for msg.BodyText == "" || msg.BodyHTML == "" {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) && part != nil {
				continue
			}
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && msg.BodyText == "":
			msg.BodyText = string(body)
		case strings.HasPrefix(contentType, "text/html") && msg.BodyHTML == "":
			msg.BodyHTML = string(body)
		}
	}
	return msg, nil
}
