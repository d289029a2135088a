package imapbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxsweep/internal/extract"
	"inboxsweep/internal/model"
)

func crlf(s string) []byte { return []byte(strings.ReplaceAll(s, "\n", "\r\n")) }

const multipartMessage = `From: Weekly Digest <digest@news.example.com>
To: me@example.com
Subject: =?UTF-8?Q?Caf=C3=A9_weekly?=
Date: Tue, 03 Sep 2024 10:00:00 +0000
List-Unsubscribe: <mailto:leave@news.example.com>, <https://news.example.com/u?id=9>
List-Unsubscribe-Post: List-Unsubscribe=One-Click
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

Read online. Unsubscribe: https://news.example.com/plain-unsub
--b1
Content-Type: text/html; charset=utf-8

<html><body><a href="https://news.example.com/html-unsub">Unsubscribe</a></body></html>
--b1--
`

func TestParseMessageMultipart(t *testing.T) {
	received := time.Date(2024, 9, 3, 10, 0, 5, 0, time.UTC)
	msg, err := parseMessage("42", crlf(multipartMessage), received)
	require.NoError(t, err)

	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, received, msg.InternalDate)
	assert.Equal(t, "Weekly Digest <digest@news.example.com>", msg.Header("From"))
	assert.Contains(t, msg.BodyText, "plain-unsub")
	assert.Contains(t, msg.BodyHTML, "html-unsub")

	rec, err := extract.Extract(msg)
	require.NoError(t, err)
	assert.Equal(t, "digest@news.example.com", rec.SenderEmail)
	assert.Equal(t, "Café weekly", rec.Subject)
	assert.Equal(t, "https://news.example.com/u?id=9", rec.UnsubscribeLink)
	assert.Equal(t, model.OriginHeader, rec.UnsubscribeOrigin)
	assert.True(t, rec.OneClick)
	assert.Equal(t, "https://news.example.com/html-unsub", rec.BodyLink)
}

func TestParseMessageSinglePart(t *testing.T) {
	raw := crlf(`From: shop@example.org
Subject: Deals
Content-Type: text/plain; charset=us-ascii

To stop these emails visit https://example.org/stop
`)
	msg, err := parseMessage("7", raw, time.Time{})
	require.NoError(t, err)
	assert.Contains(t, msg.BodyText, "https://example.org/stop")
	assert.Empty(t, msg.BodyHTML)
}

func TestParseMessageEmpty(t *testing.T) {
	_, err := parseMessage("1", nil, time.Time{})
	assert.ErrorIs(t, err, extract.ErrMalformedMessage)
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, "imap.example.com:993", Config{Host: "imap.example.com", TLS: true}.addr())
	assert.Equal(t, "imap.example.com:143", Config{Host: "imap.example.com"}.addr())
	assert.Equal(t, "imap.example.com:1143", Config{Host: "imap.example.com", Port: 1143}.addr())
}
