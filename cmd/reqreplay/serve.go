package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/funnyzak/reqreplay/internal/server"
	"github.com/funnyzak/reqreplay/internal/web"
)

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, args, setupOptions{storage: true, live: true})
	if err != nil {
		return err
	}
	defer a.Close()

	svc := web.NewService(&a.cfg.Web, a.session, a.logger, web.Options{
		Store:      a.store,
		Translator: a.intl,
		Locale:     a.cfg.Output.Locale,
	})
	srv := server.New(&a.cfg.Web, a.logger, svc)

	if a.cfg.Output.Mode == "console" {
		printServeBanner(os.Stdout, a, srv.Addr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(groupCtx)
	})
	// a listen error cancels groupCtx; release the signal handler with it
	group.Go(func() error {
		<-groupCtx.Done()
		stop()
		return nil
	})

	return group.Wait()
}
