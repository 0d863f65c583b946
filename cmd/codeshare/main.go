// Package main is a small command-line client for a CodeShare server.
//
//	codeshare list [-q text] [-tag slug] [-language name] [-pages n]
//	codeshare push -title "Title" [-description d] [-tags a,b] [-private] file
//	codeshare fmt [-language name] file
//
// list and push talk to the server at $CODESHARE_URL (default
// http://localhost:8080) with the token in $CODESHARE_TOKEN. fmt runs the
// editor pipeline locally, so only the in-process formatters (Go, JSON) are
// available.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sakif/codeshare/internal/client"
	"github.com/sakif/codeshare/internal/editor"
	"github.com/sakif/codeshare/internal/form"
)

const defaultURL = "http://localhost:8080"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: codeshare list|push|fmt [flags]")
		return 2
	}

	var err error
	switch args[0] {
	case "list":
		err = runList(ctx, newClient(getenv), args[1:], stdout)
	case "push":
		err = runPush(ctx, newClient(getenv), args[1:], stdout)
	case "fmt":
		err = runFmt(ctx, logger, args[1:], stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 2
	}
	if err != nil {
		logger.Error(args[0]+" failed", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

func newClient(getenv func(string) string) *client.Client {
	base := getenv("CODESHARE_URL")
	if base == "" {
		base = defaultURL
	}
	return client.New(base, client.WithToken(getenv("CODESHARE_TOKEN")))
}

func runList(ctx context.Context, api *client.Client, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	q := fs.String("q", "", "search text")
	tag := fs.String("tag", "", "tag slug")
	language := fs.String("language", "", "language name")
	pages := fs.Int("pages", 1, "pages to fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	feed := client.NewFeed(api, client.ListParams{Query: *q, Tag: *tag, Language: *language})
	for i := 0; i < *pages && feed.HasMore(); i++ {
		items, err := feed.LoadMore(ctx)
		if err != nil {
			return err
		}
		for _, s := range items {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", s.ID, s.Language, s.Title)
		}
	}
	fmt.Fprintf(stdout, "%d of %d shown\n", len(feed.Items()), feed.Total())
	return nil
}

func runPush(ctx context.Context, api *client.Client, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	title := fs.String("title", "", "snippet title")
	description := fs.String("description", "", "markdown description")
	tags := fs.String("tags", "", "comma separated tags")
	private := fs.Bool("private", false, "hide from the public feed")
	language := fs.String("language", "", "override the language inferred from the file name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("push takes exactly one file")
	}

	path := fs.Arg(0)
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	flow := form.NewCreateFlow(api)
	flow.SetTitle(*title)
	flow.SetDescription(*description)
	flow.SetCode(string(code))
	flow.SetFileName(filepath.Base(path))
	if *language != "" {
		flow.SetLanguage(*language)
	}
	flow.SetPublic(!*private)
	if *tags != "" {
		flow.SetTags(strings.Split(*tags, ","))
	}

	s, err := flow.Submit(ctx)
	if err != nil {
		if msg := flow.SubmitError(); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintf(stdout, "%s\t%s\t%s\n", s.ID, s.Language, s.Complexity)
	return nil
}

func runFmt(ctx context.Context, logger *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fmt", flag.ContinueOnError)
	language := fs.String("language", "", "override the language inferred from the file name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("fmt takes exactly one file")
	}

	path := fs.Arg(0)
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	session := editor.NewSession(string(code), "", editor.NewRegistry(nil, logger), nil)
	session.SetFileName(filepath.Base(path))
	if *language != "" {
		session.SetLanguage(*language)
	}
	if err := session.Format(ctx); err != nil {
		return err
	}
	_, err = io.WriteString(stdout, session.State().Code)
	return err
}
