package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/nhle/workcal/internal/model"
	"github.com/nhle/workcal/internal/report"
)

// Commander is the part of client.Client the one-shot commands use.
type Commander interface {
	List(ctx context.Context) (model.Snapshot, error)
	Create(ctx context.Context, date, content string) (model.Record, error)
	SetCompleted(ctx context.Context, id string, completed bool) error
	Delete(ctx context.Context, id string) error
}

const commandTimeout = 30 * time.Second

func runCommand(c Commander, args []string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	name, args := args[0], args[1:]
	switch name {
	case "list", "ls":
		snap, err := c.List(ctx)
		if err != nil {
			return err
		}
		printRecords(out, snap.Records)
		return nil

	case "add":
		if len(args) < 2 {
			return errors.New("usage: workcal add <date> <content...>")
		}
		rec, err := c.Create(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s\n", rec.ID)
		return nil

	case "done", "undo":
		if len(args) != 1 {
			return fmt.Errorf("usage: workcal %s <id>", name)
		}
		if err := c.SetCompleted(ctx, args[0], name == "done"); err != nil {
			return err
		}
		fmt.Fprintf(out, "updated %s\n", args[0])
		return nil

	case "rm", "delete":
		if len(args) != 1 {
			return errors.New("usage: workcal rm <id>")
		}
		if err := c.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", args[0])
		return nil

	case "report":
		return runReport(ctx, c, args, out)
	}

	return fmt.Errorf("unknown command %q", name)
}

func runReport(ctx context.Context, c Commander, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("report", pflag.ContinueOnError)
	fs.Bool("week", true, "weekly report (default)")
	monthly := fs.Bool("month", false, "monthly report")
	date := fs.String("date", "", "any day in the period, YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	day := time.Now()
	if *date != "" {
		d, err := time.Parse(model.DateLayout, *date)
		if err != nil {
			return fmt.Errorf("invalid --date %q, use YYYY-MM-DD", *date)
		}
		day = d
	}

	snap, err := c.List(ctx)
	if err != nil {
		return err
	}
	if *monthly {
		fmt.Fprint(out, report.Monthly(snap.Records, day))
	} else {
		fmt.Fprint(out, report.Weekly(snap.Records, day))
	}
	return nil
}

func printRecords(out io.Writer, records []model.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no work items")
		return
	}
	for _, r := range records {
		mark := " "
		if r.Completed {
			mark = "x"
		}
		fmt.Fprintf(out, "[%s] %s  %s  %s\n", mark, r.ID, r.Date, r.Content)
	}
}
