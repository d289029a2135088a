// Package gmail reads newsletter candidates from a Gmail account.
package gmail

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// loopbackWait bounds how long the loopback redirect is awaited before
// falling back to a pasted code.
const loopbackWait = 120 * time.Second

// Auth locates the OAuth client secret and token cache:
// - Client credentials at <ConfigDir>/client_secret.json
// - Token cache at <ConfigDir>/token-<account>.json
// The prompt is written to Out and pasted codes are read from In.
type Auth struct {
	ConfigDir string
	In        io.Reader
	Out       io.Writer
	Log       *zap.Logger
}

// NewService returns an authorized read-only Gmail service for account,
// reusing the cached token when it is still valid.
func (a Auth) NewService(ctx context.Context, account string) (*gmailv1.Service, error) {
	log := a.Log
	if log == nil {
		log = zap.NewNop()
	}
	credPath := filepath.Join(a.ConfigDir, "client_secret.json")
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credPath, err)
	}

	cfg, err := google.ConfigFromJSON(b, gmailv1.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	tokFile := filepath.Join(a.ConfigDir, tokenFileName(account))
	if tok, err := readToken(tokFile); err == nil {
		// Validate the cached token by making a lightweight API call.
		svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
		if err == nil {
			_, err = svc.Users.GetProfile("me").Context(ctx).Do()
		}
		if err == nil {
			return svc, nil
		}
		log.Info("cached token rejected, re-authenticating", zap.String("account", account), zap.Error(err))
		os.Remove(tokFile)
	}

	tok, err := a.tokenFromWeb(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := saveToken(tokFile, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}

	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// tokenFileName keeps one token per account so several accounts can be
// scanned from the same config directory.
func tokenFileName(account string) string {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" || account == "me" {
		return "token.json"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_', r == '@':
			return r
		}
		return '_'
	}, account)
	return "token-" + safe + ".json"
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(tmp, path)
}

// tokenFromWeb runs a loopback HTTP server to capture the auth code.
// If that fails or times out, it falls back to manual paste (code or URL).
func (a Auth) tokenFromWeb(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	out := a.Out
	if out == nil {
		out = os.Stderr
	}
	in := a.In
	if in == nil {
		in = os.Stdin
	}

	if ln, err := net.Listen("tcp", "127.0.0.1:0"); err == nil {
		tok, err := loopbackExchange(ctx, cfg, ln, out)
		if err == nil || ctx.Err() != nil {
			return tok, err
		}
		fmt.Fprintf(out, "%v; falling back to manual paste.\n", err)
	}

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(out, "Open this URL in your browser to authorize inboxsweep:")
	fmt.Fprintln(out, authURL)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(out, "> ")

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	code, err := codeFromInput(sc.Text())
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	fmt.Fprintln(out, "Authentication successful.")
	return tok, nil
}

func loopbackExchange(ctx context.Context, cfg *oauth2.Config, ln net.Listener, out io.Writer) (*oauth2.Token, error) {
	port := ln.Addr().(*net.TCPAddr).Port
	redirect := fmt.Sprintf("http://127.0.0.1:%d/", port)
	oldRedirect := cfg.RedirectURL
	cfg.RedirectURL = redirect
	defer func() { cfg.RedirectURL = oldRedirect }()

	codes := make(chan string, 1)
	mux := http.NewServeMux()
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authentication complete. You can close this window.")
		select {
		case codes <- code:
		default:
		}
	})
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(out, "Open this URL in your browser to authorize inboxsweep:")
	fmt.Fprintln(out, authURL)
	fmt.Fprintf(out, "Waiting for redirect on %s …\n", redirect)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case code := <-codes:
		// The redirect URL must still match during the exchange.
		tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		fmt.Fprintln(out, "Authentication successful.")
		return tok, nil
	case <-time.After(loopbackWait):
		return nil, errors.New("timeout waiting for redirect")
	}
}

// codeFromInput accepts either the bare auth code or the full redirect URL.
func codeFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}
