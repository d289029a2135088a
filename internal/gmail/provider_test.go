package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func b64(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

func testProvider(t *testing.T, h http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	svc, err := gmailv1.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewProvider(svc, "")
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestListMessagesPagesUntilMax(t *testing.T) {
	var queries []string
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(t, w, gmailv1.ListMessagesResponse{
				Messages:      []*gmailv1.Message{{Id: "m1"}, {Id: "m2"}},
				NextPageToken: "p2",
			})
		case "p2":
			writeJSON(t, w, gmailv1.ListMessagesResponse{
				Messages: []*gmailv1.Message{{Id: "m3"}, {Id: "m4"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	ids, err := p.ListMessages(context.Background(), "", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
	require.NotEmpty(t, queries)
	assert.Equal(t, `is:inbox "unsubscribe"`, queries[0])
}

func TestListMessagesUnlimited(t *testing.T) {
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, gmailv1.ListMessagesResponse{
			Messages: []*gmailv1.Message{{Id: "only"}},
		})
	}))

	ids, err := p.ListMessages(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, ids)
}

func TestGetMessageDecodesHeadersAndBodies(t *testing.T) {
	msg := gmailv1.Message{
		Id:           "abc",
		InternalDate: 1700000000000,
		Payload: &gmailv1.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmailv1.MessagePartHeader{
				{Name: "From", Value: "Weekly <news@example.com>"},
				{Name: "Subject", Value: "Issue 12"},
				{Name: "List-Unsubscribe", Value: "<https://example.com/u>"},
				{Name: "List-Unsubscribe", Value: "<https://forwarded.example/u>"},
				{Name: "X-Ignored", Value: "nope"},
			},
			Parts: []*gmailv1.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmailv1.MessagePart{
						{
							MimeType: "text/plain",
							Headers:  []*gmailv1.MessagePartHeader{{Name: "Content-Type", Value: `text/plain; charset="iso-8859-1"`}},
							Body:     &gmailv1.MessagePartBody{Data: b64("Caf\xe9 news")},
						},
						{
							MimeType: "text/html",
							Body:     &gmailv1.MessagePartBody{Data: b64(`<a href="https://example.com/u">Unsubscribe</a>`)},
						},
					},
				},
				{
					MimeType: "text/plain",
					Filename: "notes.txt",
					Body:     &gmailv1.MessagePartBody{Data: b64("attachment")},
				},
			},
		},
	}
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "full", r.URL.Query().Get("format"))
		writeJSON(t, w, msg)
	}))

	raw, err := p.GetMessage(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", raw.ID)
	assert.Equal(t, "Weekly <news@example.com>", raw.Header("from"))
	assert.Equal(t, "<https://example.com/u>", raw.Header("List-Unsubscribe"))
	assert.Empty(t, raw.Header("X-Ignored"))
	assert.Equal(t, "Café news", raw.BodyText)
	assert.Contains(t, raw.BodyHTML, "Unsubscribe")
	assert.Equal(t, int64(1700000000), raw.InternalDate.Unix())
}

func TestTotalMessages(t *testing.T) {
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, gmailv1.Profile{EmailAddress: "me@example.com", MessagesTotal: 4321})
	}))

	n, err := p.TotalMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4321, n)
}

func TestGetMessageError(t *testing.T) {
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}))

	_, err := p.GetMessage(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestCodeFromInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "  4/abc  ", want: "4/abc"},
		{in: "http://127.0.0.1:8080/?state=x&code=4%2Fxyz", want: "4/xyz"},
		{in: "https://localhost/?state=x", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := codeFromInput(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestTokenFileName(t *testing.T) {
	assert.Equal(t, "token.json", tokenFileName(""))
	assert.Equal(t, "token.json", tokenFileName("me"))
	assert.Equal(t, "token-alice@example.com.json", tokenFileName(" Alice@Example.com "))
	assert.Equal(t, "token-a_b.json", tokenFileName("a/b"))
}
