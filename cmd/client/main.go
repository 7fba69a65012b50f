package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/MimeLyc/subtitle-studio/internal/config"
	"github.com/MimeLyc/subtitle-studio/internal/console"
	"github.com/MimeLyc/subtitle-studio/internal/flow"
	"github.com/MimeLyc/subtitle-studio/internal/jobclient"
	"github.com/MimeLyc/subtitle-studio/internal/notify"
	"github.com/MimeLyc/subtitle-studio/internal/theme"
	"github.com/MimeLyc/subtitle-studio/pkg/log"
)

const usage = `usage: subtitle-studio [-server URL] [-poll DURATION] <command> [flags]

commands:
  upload [-language auto] [-translate LANG] [-download DIR] FILE
  translate [-download DIR] FILE_ID LANG
  status ID
  theme [toggle|dark|light]
`

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	global := flag.NewFlagSet("subtitle-studio", flag.ExitOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	serverURL := global.String("server", "", "job server base URL, overrides SERVER_URL")
	poll := global.Duration("poll", 0, "status poll interval, overrides POLL_INTERVAL")
	_ = global.Parse(os.Args[1:])

	cfg, err := config.NewFromEnv(config.WithServerURL(*serverURL), config.WithPollInterval(*poll))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, global.Args(), os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app wires one CLI invocation.
type app struct {
	cfg     *config.Config
	client  *jobclient.Client
	prefs   *theme.Store
	palette theme.Palette
	stdout  io.Writer
	stderr  io.Writer
}

func run(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	client, err := jobclient.New(cfg.Client.ServerURL, jobclient.WithTimeout(cfg.Client.RequestTimeout))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	prefs := theme.NewStore(cfg.Client.PreferencesFile)
	current, err := theme.Resolve(prefs, theme.DetectEnv)
	if err != nil {
		log.Warn("Failed to read theme preference: %v", err)
	}

	a := &app{
		cfg:     cfg,
		client:  client,
		prefs:   prefs,
		palette: current.Palette(),
		stdout:  stdout,
		stderr:  stderr,
	}

	switch args[0] {
	case "upload":
		return a.upload(ctx, args[1:])
	case "translate":
		return a.translate(ctx, args[1:])
	case "status":
		return a.status(ctx, args[1:])
	case "theme":
		return a.theme(args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

// session builds a flow session whose views and notices render to stdout
// and stderr. The returned func releases the notice center.
func (a *app) session() (*flow.Session, func()) {
	center := notify.NewCenter(a.cfg.Client.NoticeTTL)
	detach := console.NewNoticePrinter(a.stderr, a.palette).Attach(center)

	linkFor := func(p string) string {
		return strings.TrimRight(a.cfg.Client.ServerURL, "/") + p
	}
	s := flow.NewSession(a.client,
		console.NewProgressView(a.stdout, "upload", a.palette, linkFor),
		console.NewProgressView(a.stdout, "translation", a.palette, linkFor),
		center,
		flow.SessionOptions{PollInterval: a.cfg.Client.PollInterval},
	)
	return s, func() {
		detach()
		center.Close()
	}
}

func (a *app) upload(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	lang := fs.String("language", "auto", "spoken language of the media, or auto")
	target := fs.String("translate", "", "translate the result into this language")
	downloadDir := fs.String("download", "", "save finished subtitles into this directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprint(a.stderr, usage)
		return 2
	}

	s, release := a.session()
	defer release()

	res, err := s.Upload(ctx, fs.Arg(0), *lang).Wait()
	if err != nil {
		return exitCode(err)
	}
	if code := a.save(ctx, *downloadDir, res.JobID); code != 0 {
		return code
	}

	if *target == "" {
		return 0
	}
	res, err = s.Translate(ctx, *target).Wait()
	if err != nil {
		return exitCode(err)
	}
	return a.save(ctx, *downloadDir, res.JobID)
}

func (a *app) translate(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	downloadDir := fs.String("download", "", "save finished subtitles into this directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprint(a.stderr, usage)
		return 2
	}

	s, release := a.session()
	defer release()

	res, err := s.TranslateFile(ctx, fs.Arg(0), fs.Arg(1)).Wait()
	if err != nil {
		return exitCode(err)
	}
	return a.save(ctx, *downloadDir, res.JobID)
}

func (a *app) status(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprint(a.stderr, usage)
		return 2
	}
	st, err := a.client.Status(ctx, args[0])
	if err != nil {
		fmt.Fprintf(a.stderr, "%s\n", err)
		return 1
	}
	fmt.Fprintf(a.stdout, "%s %s %3d%% %s\n", args[0], st.State, st.Percent(), st.Status)
	if st.State == jobclient.StateFailure {
		return 1
	}
	return 0
}

func (a *app) theme(args []string) int {
	var (
		next theme.Theme
		err  error
	)
	switch {
	case len(args) == 0:
		next, err = theme.Resolve(a.prefs, theme.DetectEnv)
	case args[0] == "toggle":
		next, err = theme.Toggle(a.prefs, theme.DetectEnv)
	default:
		var t theme.Theme
		t, err = theme.Parse(args[0])
		if err == nil {
			next, err = theme.Set(a.prefs, t)
		}
	}
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return 1
	}
	p := next.Palette()
	fmt.Fprintf(a.stdout, "%stheme: %s%s\n", p.Accent, next, p.Reset)
	return 0
}

func (a *app) save(ctx context.Context, dir, id string) int {
	if dir == "" || id == "" {
		return 0
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintln(a.stderr, err)
		return 1
	}
	path := filepath.Join(dir, id+".srt")
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return 1
	}
	if _, err := a.client.Download(ctx, id, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		fmt.Fprintln(a.stderr, err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintln(a.stderr, err)
		return 1
	}
	fmt.Fprintf(a.stdout, "saved %s\n", path)
	return 0
}

// exitCode maps a flow error to a process exit code. The notice printer
// has already shown the message.
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, jobclient.ErrValidation):
		return 2
	default:
		return 1
	}
}
