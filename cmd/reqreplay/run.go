package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/funnyzak/reqreplay/internal/printer"
	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/internal/web"
)

func runReplay(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, args, setupOptions{storage: true, live: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Output.Mode == "console" && !a.cfg.Output.Silence {
		printRunBanner(os.Stdout, a)
	}

	if start, err := cmd.Flags().GetInt("start"); err == nil && cmd.Flags().Changed("start") {
		if err := a.session.JumpTo(start); err != nil {
			return fmt.Errorf("start at record %d: %w", start, err)
		}
	}
	count, _ := cmd.Flags().GetInt("count")
	if count < 0 {
		return fmt.Errorf("count cannot be negative")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("Replay started",
		"session_id", a.session.ID(),
		"records", a.session.Count(),
		"cursor", a.session.Cursor(),
		"count", count,
		"cookie_mode", a.session.CookieMode().String(),
	)

	began := time.Now()
	var responses int
	if count > 0 {
		res, execErr := a.session.ExecuteNext(ctx, count)
		responses, err = len(res), execErr
	} else {
		res, execErr := a.session.ExecuteAll(ctx)
		responses, err = len(res), execErr
	}

	summary := printer.Summary{
		SessionID: a.session.ID(),
		Requested: count,
		Executed:  responses,
		Elapsed:   time.Since(began),
	}

	if errors.Is(err, replay.ErrInsufficientRecords) {
		summary.Exhausted = true
	}
	var transportErr *replay.TransportError
	if errors.As(err, &transportErr) {
		summary.Failed = 1
		a.recordFailure(transportErr.Index, a.session.Prepared(), transportErr.Err)
	}

	if perr := a.printer.PrintSummary(summary); perr != nil {
		a.logger.Error("Failed to print summary", "error", perr)
	}
	a.logger.Info("Replay finished",
		"session_id", summary.SessionID,
		"executed", summary.Executed,
		"failed", summary.Failed,
		"elapsed_ms", summary.Elapsed.Milliseconds(),
	)
	return err
}

func listRecords(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, args, setupOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	return a.printer.PrintRecords(printer.RecordListing{
		Records: a.records,
		Cursor:  a.session.Cursor(),
		Filter:  a.session.MimeFilter(),
	})
}

func exportRecords(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, args, setupOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	format, _ := cmd.Flags().GetString("to")
	path, _ := cmd.Flags().GetString("out")

	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer f.Close()
		w = f
	}

	records := a.session.Export()
	if _, _, err := web.ExportRecords(w, records, format); err != nil {
		return err
	}
	a.logger.Info("Records exported", "format", format, "records", len(records), "path", path)
	return nil
}
