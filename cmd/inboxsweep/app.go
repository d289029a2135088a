package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"inboxsweep/internal/browser"
	"inboxsweep/internal/config"
	"inboxsweep/internal/credential"
	"inboxsweep/internal/emldir"
	"inboxsweep/internal/gmail"
	"inboxsweep/internal/imapbox"
	"inboxsweep/internal/mailbox"
	"inboxsweep/internal/model"
	"inboxsweep/internal/store"
	"inboxsweep/internal/sweep"
	"inboxsweep/internal/tui"
	"inboxsweep/internal/unsub"
	"inboxsweep/internal/util"
)

type app struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "scan":
		return a.scan(ctx, args)
	case "unsubscribe":
		return a.unsubscribe(ctx, args)
	case "manual-link":
		return a.manualLink(ctx, args)
	case "whitelist":
		return a.whitelist(ctx, args)
	case "imap-password":
		return a.imapPassword(args)
	case "tui":
		return a.tui(ctx, args)
	default:
		return fmt.Errorf("unknown command %q (run inboxsweep -h)", cmd)
	}
}

// openStore opens the allow-list database.
func (a *app) openStore() (*store.SQLiteStore, error) {
	db, err := store.NewSQLiteStore(a.cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// openAccount connects the configured mailbox provider.
func (a *app) openAccount(ctx context.Context) (*sweep.Account, func(), error) {
	id, p, closeFn, err := a.openProvider(ctx)
	if err != nil {
		return nil, closeFn, err
	}
	return sweep.NewAccount(id, p), closeFn, nil
}

// openProvider returns the account id and provider for the configured
// mailbox backend, plus a func releasing its connection.
func (a *app) openProvider(ctx context.Context) (string, mailbox.Provider, func(), error) {
	noop := func() {}
	switch a.cfg.Mailbox.Provider {
	case "gmail":
		auth := gmail.Auth{ConfigDir: a.cfg.DataDir, In: os.Stdin, Out: os.Stderr, Log: a.log}
		svc, err := auth.NewService(ctx, "me")
		if err != nil {
			return "", nil, noop, err
		}
		return "me", gmail.NewProvider(svc, a.cfg.Mailbox.Query), noop, nil
	case "imap":
		pw, err := credential.IMAPPassword(a.cfg.IMAP.Username)
		if err != nil {
			return "", nil, noop, fmt.Errorf("IMAP password for %s (run inboxsweep imap-password): %w", a.cfg.IMAP.Username, err)
		}
		p := imapbox.NewProvider(imapbox.Config{
			Host:     a.cfg.IMAP.Host,
			Port:     a.cfg.IMAP.Port,
			Username: a.cfg.IMAP.Username,
			Password: pw,
			TLS:      a.cfg.IMAP.TLS,
			Mailbox:  a.cfg.IMAP.Mailbox,
		}, a.log)
		return a.cfg.IMAP.Username, p, func() { _ = p.Close() }, nil
	case "emldir":
		return a.cfg.EMLDir.Path, emldir.NewProvider(a.cfg.EMLDir.Path), noop, nil
	default:
		return "", nil, noop, fmt.Errorf("unsupported mailbox provider %q", a.cfg.Mailbox.Provider)
	}
}

func (a *app) newService(allow store.AllowList) *sweep.Service {
	launcher := browser.NewLauncher(a.cfg.BrowserOptions(), a.log)
	engine := unsub.NewEngine(a.cfg.EngineConfig(), launcher, a.log)
	return sweep.NewService(a.cfg.Classifier(), allow, engine, a.cfg.Scan.Workers, a.log)
}

// session bundles what every mailbox command needs.
type session struct {
	svc   *sweep.Service
	acct  *sweep.Account
	close func()
}

func (a *app) open(ctx context.Context) (*session, error) {
	db, err := a.openStore()
	if err != nil {
		return nil, err
	}
	acct, closeAcct, err := a.openAccount(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &session{
		svc:  a.newService(db),
		acct: acct,
		close: func() {
			closeAcct()
			db.Close()
		},
	}, nil
}

func (a *app) limitFlag(fs *flag.FlagSet) *int {
	return fs.Int("limit", a.cfg.Scan.DefaultLimit, "messages to scan (0 scans everything)")
}

func (a *app) scan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	limit := a.limitFlag(fs)
	tier := fs.String("tier", "", "only list candidates of this tier")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.svc.Scan(ctx, s.acct, *limit)
	if err != nil {
		return err
	}
	printCandidates(a.out, res.Candidates, model.Difficulty(*tier))
	printStats(a.out, res)
	return nil
}

func (a *app) unsubscribe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unsubscribe", flag.ContinueOnError)
	limit := a.limitFlag(fs)
	tier := fs.String("tier", "", "unsubscribe from every candidate of this tier (e.g. easy)")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := fs.Args()
	if len(ids) == 0 && *tier == "" {
		return errors.New("give candidate ids or -tier")
	}

	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.svc.Scan(ctx, s.acct, *limit)
	if err != nil {
		return err
	}
	if *tier != "" {
		for _, c := range res.Candidates {
			if c.Difficulty == model.Difficulty(*tier) {
				ids = append(ids, c.ID)
			}
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(a.out, "Nothing to unsubscribe from.")
		return nil
	}
	if !*yes && !confirm(os.Stdin, a.out, fmt.Sprintf("Unsubscribe from %d senders?", len(ids))) {
		return nil
	}

	agg, err := s.svc.Unsubscribe(ctx, s.acct, ids, func(done, total int, o model.OutcomeRecord) {
		fmt.Fprintf(os.Stderr, "[%d/%d] %s %s\n", done, total, o.Status, o.SenderEmail)
	})
	if err != nil {
		return err
	}
	printOutcomes(a.out, agg)
	return nil
}

func (a *app) manualLink(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("manual-link", flag.ContinueOnError)
	limit := a.limitFlag(fs)
	open := fs.Bool("open", false, "open the link with the default handler")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: inboxsweep manual-link [-limit N] [-open] <id>")
	}

	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if _, err := s.svc.Scan(ctx, s.acct, *limit); err != nil {
		return err
	}
	link, err := s.svc.ManualLink(s.acct, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, link)
	if *open {
		return util.OpenURL(link)
	}
	return nil
}

func (a *app) whitelist(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: inboxsweep whitelist add|remove|list|clear")
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()
	svc := sweep.NewService(a.cfg.Classifier(), db, nil, a.cfg.Scan.Workers, a.log)

	switch args[0] {
	case "add":
		if len(args) < 2 {
			return errors.New("usage: inboxsweep whitelist add <email> [name]")
		}
		name := strings.Join(args[2:], " ")
		changed, err := svc.ToggleWhitelist(ctx, args[1], name, true)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(a.out, "Added %s\n", args[1])
		} else {
			fmt.Fprintf(a.out, "%s is already whitelisted\n", args[1])
		}
	case "remove":
		if len(args) != 2 {
			return errors.New("usage: inboxsweep whitelist remove <email>")
		}
		changed, err := svc.ToggleWhitelist(ctx, args[1], "", false)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(a.out, "Removed %s\n", args[1])
		} else {
			fmt.Fprintf(a.out, "%s was not whitelisted\n", args[1])
		}
	case "list":
		entries, err := svc.Whitelist(ctx)
		if err != nil {
			return err
		}
		printWhitelist(a.out, entries)
	case "clear":
		n, err := svc.ClearWhitelist(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Removed %d senders\n", n)
	default:
		return fmt.Errorf("unknown whitelist command %q", args[0])
	}
	return nil
}

func (a *app) imapPassword(args []string) error {
	fs := flag.NewFlagSet("imap-password", flag.ContinueOnError)
	del := fs.Bool("delete", false, "remove the stored password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user := a.cfg.IMAP.Username
	if user == "" {
		return errors.New("imap.username is not configured")
	}
	if *del {
		return credential.Delete(credential.IMAPKey(user))
	}
	fmt.Fprintf(os.Stderr, "IMAP password for %s: ", user)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return errors.New("no password given")
	}
	pw := strings.TrimRight(sc.Text(), "\r\n")
	if pw == "" {
		return errors.New("no password given")
	}
	return credential.Set(credential.IMAPKey(user), pw)
}

func (a *app) tui(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	limit := a.limitFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	appModel := tui.NewAppModel(s.svc, s.acct, *limit)
	p := tea.NewProgram(&appModel, tea.WithAltScreen(), tea.WithContext(ctx))
	appModel.SetProgram(p)
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
		return m.Err
	}
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		return false
	}
	ans := strings.ToLower(strings.TrimSpace(sc.Text()))
	return ans == "y" || ans == "yes"
}

func printCandidates(w io.Writer, recs []model.TieredRecord, only model.Difficulty) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIER\tSENDER\tORIGIN\tSUBJECT")
	for _, r := range recs {
		if only != "" && r.Difficulty != only {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Difficulty, r.SenderEmail, r.UnsubscribeOrigin, truncate(r.Subject, 60))
	}
	tw.Flush()
}

func printStats(w io.Writer, res model.ScanResult) {
	limit := "all"
	if res.Stats.RecommendedLimit > 0 {
		limit = fmt.Sprintf("%d", res.Stats.RecommendedLimit)
	}
	fmt.Fprintf(w, "\nScanned %d of %d messages: %d newsletters (~%d in the whole mailbox). Suggested scan depth: %s.\n",
		res.Stats.ScannedEmails, res.Stats.TotalEmails, res.Stats.FoundNewsletters, res.Stats.EstimatedNewsletters, limit)
	var parts []string
	for _, d := range model.Difficulties {
		parts = append(parts, fmt.Sprintf("%s %d", d, res.CategoryCounts[d]))
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
	if res.Malformed > 0 {
		fmt.Fprintf(w, "%d messages could not be read and were skipped.\n", res.Malformed)
	}
}

func printOutcomes(w io.Writer, agg model.AggregateOutcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMETHOD\tSENDER\tMESSAGE")
	for _, o := range agg.Outcomes {
		msg := o.Message
		if o.ManualURL != "" {
			msg += " (" + o.ManualURL + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.ID, o.Status, o.Method, o.SenderEmail, msg)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nBatch %s: %d unsubscribed, %d need manual action, %d failed, %d not attempted, %d skipped.\n",
		agg.BatchID, agg.AutoSuccess, agg.ManualRequired, agg.Failed, agg.NotAttempted, agg.Skipped)
}

func printWhitelist(w io.Writer, entries []model.AllowEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Whitelist is empty.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SENDER\tNAME\tADDED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.SenderEmail, e.SenderName, e.AddedAt.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
