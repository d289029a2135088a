package emldir

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxsweep/internal/extract"
	"inboxsweep/internal/model"
)

func writeEML(t *testing.T, dir, name, body string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(body, "\n", "\r\n")), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

const htmlOnly = `From: "Shop" <deals@shop.example>
Subject: Weekend sale
Date: Sat, 07 Sep 2024 08:00:00 +0000
MIME-Version: 1.0
Content-Type: text/html; charset=utf-8

<html><body><p>Big sale</p><a href="https://shop.example/unsubscribe?u=1">Unsubscribe</a></body></html>
`

const headerOnly = `From: news@paper.example
Subject: Morning brief
List-Unsubscribe: <https://paper.example/u/abc>
Content-Type: text/plain

Today's headlines.
`

func TestListAndGet(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	writeEML(t, dir, "old.eml", headerOnly, base)
	writeEML(t, dir, "new.eml", htmlOnly, base.Add(time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	p := NewProvider(dir)
	ctx := context.Background()

	total, err := p.TotalMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	ids, err := p.ListMessages(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new.eml", "old.eml"}, ids)

	ids, err = p.ListMessages(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"new.eml"}, ids)

	msg, err := p.GetMessage(ctx, "new.eml")
	require.NoError(t, err)
	rec, err := extract.Extract(msg)
	require.NoError(t, err)
	assert.Equal(t, "deals@shop.example", rec.SenderEmail)
	assert.Equal(t, model.OriginBody, rec.UnsubscribeOrigin)
	assert.Equal(t, "https://shop.example/unsubscribe?u=1", rec.UnsubscribeLink)

	msg, err = p.GetMessage(ctx, "old.eml")
	require.NoError(t, err)
	rec, err = extract.Extract(msg)
	require.NoError(t, err)
	assert.Equal(t, model.OriginHeader, rec.UnsubscribeOrigin)
	assert.Equal(t, base, rec.SentAt.UTC())
}

func TestGetMessageRejectsPaths(t *testing.T) {
	p := NewProvider(t.TempDir())
	_, err := p.GetMessage(context.Background(), "../etc/passwd")
	assert.Error(t, err)
	_, err = p.GetMessage(context.Background(), "")
	assert.Error(t, err)
}

func TestMissingDir(t *testing.T) {
	p := NewProvider(filepath.Join(t.TempDir(), "nope"))
	_, err := p.ListMessages(context.Background(), "", 10)
	assert.Error(t, err)
}
