package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"crawldash/internal/api"
	"crawldash/internal/model"
)

func newSessionClient(fs *flag.FlagSet, args []string) (*api.Client, *flag.FlagSet, error) {
	apiURL := fs.String("api", "", "backend base URL (default: env or "+api.DefaultBaseURL+")")
	token := fs.String("token", "", "bearer token (default: env)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	session, err := api.LoadSession(*apiURL, *token)
	if err != nil {
		return nil, nil, err
	}
	return api.NewClient(session), fs, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runAddURL(args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	rawURL := fs.String("url", "", "URL to track (required)")
	asJSON := fs.Bool("json", false, "print machine-readable output")
	client, fs, err := newSessionClient(fs, args)
	if err != nil {
		return err
	}
	target := strings.TrimSpace(*rawURL)
	if target == "" && fs.NArg() > 0 {
		target = strings.TrimSpace(fs.Arg(0))
	}
	if target == "" {
		return fmt.Errorf("usage: crawldash add --url <url>")
	}

	ctx, cancel := requestContext()
	defer cancel()
	job, err := client.AddURL(ctx, target)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(job)
	}
	fmt.Printf("added %s (%s) status=%s\n", job.URL, job.ID, job.Status)
	return nil
}

func runListURLs(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	page := fs.Int("page", 1, "1-indexed page")
	limit := fs.Int("limit", defaultPageSize, "rows per page")
	asJSON := fs.Bool("json", false, "print machine-readable output")
	client, _, err := newSessionClient(fs, args)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()
	jobs, err := client.ListURLs(ctx, *page, *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(jobs)
	}
	if len(jobs) == 0 {
		fmt.Printf("no URLs on page %d\n", *page)
		return nil
	}
	for _, job := range jobs {
		line := fmt.Sprintf("%-10s %-10s %s", shortID(job.ID), job.Status, job.URL)
		if job.Title != "" {
			line += "  (" + truncateRunes(job.Title, 40) + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runAnalyzeURL(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print machine-readable output")
	client, fs, err := newSessionClient(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: crawldash analyze <id>")
	}
	id := fs.Arg(0)

	ctx, cancel := requestContext()
	defer cancel()
	job, err := client.Analyze(ctx, id)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(job)
	}
	fmt.Printf("analyze accepted for %s status=%s\n", job.ID, job.Status)
	return nil
}

func runRemoveURL(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "skip confirmation")
	client, fs, err := newSessionClient(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: crawldash remove <id>")
	}
	id := fs.Arg(0)

	if !*yes {
		ok, err := promptConfirm(fmt.Sprintf("delete %s? [y/N] ", id))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("cancelled")
			return nil
		}
	}

	ctx, cancel := requestContext()
	defer cancel()
	if err := client.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", id)
	return nil
}

func runShowAnalysis(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print machine-readable output")
	client, fs, err := newSessionClient(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: crawldash show <id>")
	}
	id := fs.Arg(0)

	ctx, cancel := requestContext()
	defer cancel()
	analysis, err := client.GetAnalysis(ctx, id)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(analysis)
	}
	printAnalysis(analysis)
	return nil
}

func printAnalysis(a model.Analysis) {
	fmt.Printf("Analysis for %s\n\n", a.URL)
	fmt.Println(kv("html_version", defaultIfEmpty(a.HTMLVersion, "unknown")))
	fmt.Println(kv("title", defaultIfEmpty(a.Title, "(no title)")))
	fmt.Println(kv("login_form", yesNo(a.LoginForm)))

	if len(a.Headings) > 0 {
		fmt.Println("\nHeadings:")
		for _, h := range a.Headings {
			fmt.Printf("  %-4s %d\n", strings.ToUpper(h.Level), h.Count)
		}
	}

	internal, external := 0, 0
	for _, l := range a.Links {
		if l.IsInternal {
			internal++
		} else {
			external++
		}
	}
	broken := a.BrokenLinks()
	fmt.Printf("\nLinks: %d internal, %d external, %d broken\n", internal, external, len(broken))
	if len(broken) > 0 {
		fmt.Println("\nBroken links:")
		for _, l := range broken {
			fmt.Printf("  %-4d %s\n", l.StatusCode, l.URL)
		}
	}
}
