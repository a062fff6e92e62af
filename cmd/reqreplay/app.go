package main

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/funnyzak/reqreplay/internal/capture"
	"github.com/funnyzak/reqreplay/internal/config"
	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/internal/printer"
	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/internal/storage"
	"github.com/funnyzak/reqreplay/internal/transport"
	"github.com/funnyzak/reqreplay/pkg/i18n"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// app holds everything a command needs once the capture is loaded
type app struct {
	cfg     *config.Config
	logger  logger.Logger
	intl    *i18n.Translator
	printer printer.Printer
	store   storage.Store
	session *replay.Session
	records []request.Record
}

// setupOptions selects the optional parts of an app
type setupOptions struct {
	// storage opens the replay store when it is enabled in config
	storage bool
	// live prints every stored response as it arrives
	live bool
}

func setup(cmd *cobra.Command, args []string, opts setupOptions) (*app, error) {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)

	intl, err := i18n.NewTranslator("en")
	if err != nil {
		return nil, err
	}
	p := printer.New(cfg.Output.Mode, log, &cfg.Output, intl, cfg.Output.Locale)

	records, err := capture.LoadFile(cfg.Replay.CaptureFile, cfg.Replay.Format)
	if err != nil {
		return nil, err
	}
	log.Debug("Capture loaded",
		"path", cfg.Replay.CaptureFile,
		"format", cfg.Replay.Format,
		"records", len(records),
	)

	a := &app{cfg: cfg, logger: log, intl: intl, printer: p, records: records}

	if opts.storage && cfg.Storage.Enable {
		store, err := storage.New(&cfg.Storage, log)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	var recorder replay.Recorder
	if opts.live || a.store != nil {
		rec := &liveRecorder{store: a.store, logger: log}
		if opts.live {
			rec.printer = p
		}
		recorder = rec
	}

	nav := replay.InitOptions{
		ReuseConnection: cfg.Replay.ReuseConnection,
		ResetSettings:   cfg.Replay.ResetSettings,
	}
	sess, err := replay.New(records, transport.New(transportOptions(&cfg.Transport), log), replay.Options{
		CookieJarPath: cfg.Replay.CookieJar,
		MimeFilter:    cfg.Replay.MimeFilter,
		Logger:        log,
		Recorder:      recorder,
		Navigation:    &nav,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.session = sess
	return a, nil
}

// Close releases the session and the store
func (a *app) Close() {
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.logger.Warn("Failed to close replay session", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close storage", "error", err)
		}
	}
}

// recordFailure prints and persists a replay the transport could not complete
func (a *app) recordFailure(index int, out request.Outbound, cause error) {
	if err := a.printer.PrintFailure(index, out, cause); err != nil {
		a.logger.Error("Failed to print failure", "error", err, "index", index)
	}
	if a.store == nil {
		return
	}
	if err := a.store.RecordFailure(a.session.ID(), index, out, cause); err != nil {
		a.logger.Error("Failed to record replay failure", "error", err, "index", index)
	}
}

func transportOptions(cfg *config.TransportConfig) transport.Options {
	return transport.Options{
		Timeout:               seconds(cfg.Timeout),
		FollowRedirects:       cfg.FollowRedirects,
		MaxRedirects:          cfg.MaxRedirects,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       seconds(cfg.IdleConnTimeout),
		ResponseHeaderTimeout: seconds(cfg.ResponseHeaderTimeout),
		TLSHandshakeTimeout:   seconds(cfg.TLSHandshakeTimeout),
		ExpectContinueTimeout: seconds(cfg.ExpectContinueTimeout),
		TLSInsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		Verbose:               cfg.Verbose,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// liveRecorder fans each stored response out to the printer and the store
type liveRecorder struct {
	printer printer.Printer
	store   storage.Store
	logger  logger.Logger
}

func (r *liveRecorder) RecordReplay(sessionID string, resp *request.Response) error {
	var group errgroup.Group

	if r.printer != nil {
		group.Go(func() error {
			if err := r.printer.PrintResponse(resp); err != nil {
				r.logger.Error("Failed to print response", "error", err, "index", resp.Index)
			}
			return nil
		})
	}

	if r.store != nil {
		group.Go(func() error {
			return r.store.RecordReplay(sessionID, resp)
		})
	}

	return group.Wait()
}
