// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"context"
	"io"

	"github.com/joeycumines/go-xlevent"
	"github.com/joeycumines/go-xlevent/internal/batch"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// monitorBuffer bounds the events awaiting output, beyond which they are
// dropped, since the event handler must not block.
const monitorBuffer = 1024

func newMonitorCommand(flags *rootFlags) *cobra.Command {
	var domains []uint

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream domain events as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFlags(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("domain") {
				cfg.Domains = make([]uint32, len(domains))
				for i, v := range domains {
					cfg.Domains[i] = uint32(v)
				}
			}
			level, _ := parseLevel(cfg.LogLevel)
			logger := newLogger(cmd.ErrOrStderr(), level)
			return runMonitor(cmd.Context(), cfg, cfg.opener(), logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().UintSliceVar(&domains, "domain", nil, "domid to watch for death (repeatable, overrides config)")

	return cmd
}

// runMonitor writes each event to out, until ctx is done, or a disaster.
func runMonitor(ctx context.Context, cfg Config, open xlevent.NativeOpener, logger *logiface.Logger[logiface.Event], out io.Writer) error {
	lines := make(chan []byte, monitorBuffer)

	handleEvent := func(ev *xlevent.Event) {
		select {
		case lines <- ev.AppendJSON(nil):
		default:
			logger.Warning().
				Stringer("type", ev.Type).
				Int64("domid", int64(ev.Domid)).
				Log("output buffer full, event dropped")
		}
	}

	handleDisaster := func(d *xlevent.Disaster) {
		select {
		case lines <- d.AppendJSON(nil):
		default:
		}
	}

	opts := append(cfg.loopOptions(logger),
		xlevent.WithEventHandler(handleEvent),
		xlevent.WithDisasterHandler(handleDisaster),
	)

	loop, err := xlevent.New(open, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = loop.Close() }()

	for _, domid := range cfg.Domains {
		if _, err := loop.WatchDomainDeath(xlevent.Domid(domid), uint64(domid)); err != nil {
			return errors.Errorf("watch domain %d: %w", domid, err)
		}
	}

	logger.Info().
		Str("source", cfg.Source).
		Int("domains", len(cfg.Domains)).
		Log("monitoring")

	var g errgroup.Group

	g.Go(func() error {
		defer close(lines)
		err := loop.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		// drains until lines is closed, even after cancellation
		return writeLines(context.WithoutCancel(ctx), cfg.Output.batch(), lines, out)
	})

	return g.Wait()
}

// writeLines writes one batch of lines at a time, returning nil once lines
// is closed.
func writeLines(ctx context.Context, cfg *batch.Config, lines <-chan []byte, out io.Writer) error {
	var buf []byte
	for {
		buf = buf[:0]
		err := batch.Receive(ctx, cfg, lines, func(line []byte) error {
			buf = append(buf, line...)
			buf = append(buf, '\n')
			return nil
		})
		if len(buf) != 0 {
			if _, werr := out.Write(buf); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
