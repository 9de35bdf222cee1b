// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/go-utilpkg/jsonenc"
	"github.com/joeycumines/go-xlevent"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

func newPollCommand(flags *rootFlags) *cobra.Command {
	var (
		specs   []string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "poll --fd FD:INTEREST[,INTEREST...] ...",
		Short: "Wait once for readiness, and print the ready descriptors",
		Long: `Waits until at least one descriptor is ready, then prints each ready
descriptor as a JSON line. Interests: readable, priority, writable, error,
hangup, invalid. Without --timeout, waits indefinitely.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadFlags(flags); err != nil {
				return err
			}
			fds, err := parseFDSpecs(specs)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return runPoll(ctx, fds, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVar(&specs, "fd", nil, "descriptor and interests, e.g. 0:readable")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "maximum time to wait")

	return cmd
}

func runPoll(ctx context.Context, fds []xlevent.FDInterest, out io.Writer) error {
	mux, err := xlevent.NewMultiplexer(nil)
	if err != nil {
		return err
	}
	defer func() { _ = mux.Close() }()

	ready, err := mux.Wait(ctx, fds)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}

	var buf []byte
	for _, r := range ready {
		buf = appendReady(buf, r)
		buf = append(buf, '\n')
	}
	_, err = out.Write(buf)
	return err
}

func appendReady(dst []byte, r xlevent.FDReady) []byte {
	dst = append(dst, `{"fd":`...)
	dst = strconv.AppendInt(dst, int64(r.FD), 10)
	dst = append(dst, `,"observed":[`...)
	for i, v := range r.Observed {
		if i != 0 {
			dst = append(dst, ',')
		}
		dst = jsonenc.AppendString(dst, v.String())
	}
	return append(dst, `]}`...)
}

// parseFDSpecs parses FD:INTEREST[,INTEREST...] values.
func parseFDSpecs(specs []string) ([]xlevent.FDInterest, error) {
	fds := make([]xlevent.FDInterest, 0, len(specs))
	for _, spec := range specs {
		fdStr, interestStr, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, errors.Errorf("invalid fd spec %q: expected FD:INTEREST", spec)
		}
		fd, err := strconv.Atoi(fdStr)
		if err != nil || fd < 0 {
			return nil, errors.Errorf("invalid fd spec %q: bad descriptor", spec)
		}
		interests, err := xlevent.ParseInterests(interestStr)
		if err != nil {
			return nil, errors.Errorf("invalid fd spec %q: %w", spec, err)
		}
		if len(interests) == 0 {
			return nil, errors.Errorf("invalid fd spec %q: no interests", spec)
		}
		fds = append(fds, xlevent.FDInterest{FD: fd, Interests: interests})
	}
	return fds, nil
}
