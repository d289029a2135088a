// Package extract turns raw mailbox messages into candidate records.
package extract

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"inboxsweep/internal/model"
	"inboxsweep/internal/util"
)

// ErrMalformedMessage marks a message that cannot yield a candidate record.
// Callers skip the message and continue the scan.
var ErrMalformedMessage = errors.New("malformed message")

// RawMessage is one message as returned by a mailbox provider.
type RawMessage struct {
	ID           string
	Headers      map[string]string
	BodyHTML     string
	BodyText     string
	InternalDate time.Time // provider receive time, zero if unknown
}

// Header returns the value of the named header, matched case-insensitively.
func (m RawMessage) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Extract builds a CandidateRecord from one raw message. Header unsubscribe
// targets always take precedence over links found in the body.
func Extract(msg RawMessage) (model.CandidateRecord, error) {
	if strings.TrimSpace(msg.ID) == "" {
		return model.CandidateRecord{}, fmt.Errorf("%w: missing message id", ErrMalformedMessage)
	}
	from := msg.Header("From")
	if from == "" {
		return model.CandidateRecord{}, fmt.Errorf("%w: message %s has no From header", ErrMalformedMessage, msg.ID)
	}
	email, name := util.ParseSender(from)
	if email == "" {
		return model.CandidateRecord{}, fmt.Errorf("%w: message %s has unparseable From %q", ErrMalformedMessage, msg.ID, from)
	}

	rec := model.CandidateRecord{
		ID:                msg.ID,
		SenderEmail:       email,
		SenderName:        name,
		Subject:           strings.TrimSpace(util.DecodeHeader(msg.Header("Subject"))),
		SentAt:            sentAt(msg),
		UnsubscribeOrigin: model.OriginNone,
	}

	rec.BodyLink = FindBodyLink(msg.BodyHTML, msg.BodyText)

	if link := ParseListUnsubscribe(msg.Header("List-Unsubscribe")); link != "" {
		rec.UnsubscribeLink = link
		rec.UnsubscribeOrigin = model.OriginHeader
		rec.OneClick = isOneClick(msg.Header("List-Unsubscribe-Post"))
		return rec, nil
	}

	if rec.BodyLink != "" {
		rec.UnsubscribeLink = rec.BodyLink
		rec.UnsubscribeOrigin = model.OriginBody
	}
	return rec, nil
}

func sentAt(msg RawMessage) time.Time {
	if h := strings.TrimSpace(msg.Header("Date")); h != "" {
		if t, err := mail.ParseDate(h); err == nil {
			return t.UTC()
		}
	}
	if !msg.InternalDate.IsZero() {
		return msg.InternalDate.UTC()
	}
	return time.Time{}
}

// isOneClick reports an RFC 8058 List-Unsubscribe-Post header.
func isOneClick(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "List-Unsubscribe=One-Click")
}
