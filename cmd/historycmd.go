package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

const historyListUsage = `Usage: excel-agent history list [options]

Lists recent sessions, newest first.
`

func runHistoryList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf clientFlags
	cf.register(fs)
	limit := fs.Int("n", 20, "Maximum number of sessions to list")
	fs.Usage = func() {
		fmt.Fprint(stderr, historyListUsage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := cf.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	store, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if store == nil {
		fmt.Fprintln(stderr, "History is disabled (history_db = \"off\")")
		return 1
	}
	defer store.Close()

	sessions, err := store.ListRecent(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Fprintln(stdout, "No sessions recorded yet.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAT ID\tFINISHED\tTRANSPORT\tQUESTION")
	for _, rec := range sessions {
		question := rec.Question
		if len(question) > 60 {
			question = question[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.ChatID, rec.FinishedAt.Format("2006-01-02 15:04:05"), rec.Transport, question)
	}
	w.Flush()
	return 0
}

const historyShowUsage = `Usage: excel-agent history show [options] <chat-id>

Replays a past session's answer sections.
`

func runHistoryShow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf clientFlags
	cf.register(fs)
	fs.Usage = func() {
		fmt.Fprint(stderr, historyShowUsage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprint(stderr, historyShowUsage)
		return 1
	}

	cfg, err := cf.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	store, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if store == nil {
		fmt.Fprintln(stderr, "History is disabled (history_db = \"off\")")
		return 1
	}
	defer store.Close()

	rec, err := store.GetSession(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	st := styles(cfg)
	fmt.Fprintf(stdout, "%s  (%s, %s)\n\n",
		st.Bold.Render(rec.Question), rec.ChatID, rec.FinishedAt.Format("2006-01-02 15:04:05"))
	for _, sec := range rec.Sections {
		payload := strings.TrimRight(sec.Payload, "\n")
		if payload == "" {
			continue
		}
		fmt.Fprintln(stdout, st.Title.Render(strings.ToUpper(sec.ContentType)))
		fmt.Fprintln(stdout, payload)
		fmt.Fprintln(stdout)
	}
	return 0
}

const historyDeleteUsage = `Usage: excel-agent history delete [options] <chat-id>

Deletes a past session and its sections.
`

func runHistoryDelete(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history delete", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf clientFlags
	cf.register(fs)
	fs.Usage = func() {
		fmt.Fprint(stderr, historyDeleteUsage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprint(stderr, historyDeleteUsage)
		return 1
	}

	cfg, err := cf.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	store, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if store == nil {
		fmt.Fprintln(stderr, "History is disabled (history_db = \"off\")")
		return 1
	}
	defer store.Close()

	if err := store.DeleteSession(fs.Arg(0)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Deleted session %s\n", fs.Arg(0))
	return 0
}
