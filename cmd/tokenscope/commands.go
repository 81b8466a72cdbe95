package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search tokens by substring (or id literal)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.selectDataset(ctx); err != nil {
				return err
			}

			hits, err := a.explorer.Search(args[0], limit)
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "%8d  %q\n", h.ID, h.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of results")
	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <token-id>",
		Short: "Show a token and its nearest neighbors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid token id %q", args[0])
			}

			ctx := cmd.Context()
			if err := a.selectDataset(ctx); err != nil {
				return err
			}

			tok, err := a.explorer.Resolve(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%8d  %q\n", tok.ID, tok.Text)
			for _, n := range tok.Neighbors {
				cached, _ := a.explorer.ResolveCached(n.ID)
				fmt.Fprintf(out, "  %.4f  %8d  %q\n", n.Similarity, n.ID, cached.Text)
			}
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show dataset manifest information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.selectDataset(cmd.Context()); err != nil {
				return err
			}

			stats, ok := a.explorer.Stats()
			if !ok {
				return fmt.Errorf("no dataset loaded")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dataset:       %s\n", a.selector)
			fmt.Fprintf(out, "vocab size:    %d\n", stats.VocabSize)
			fmt.Fprintf(out, "shard size:    %d\n", stats.ShardSize)
			fmt.Fprintf(out, "num shards:    %d\n", stats.NumShards)
			fmt.Fprintf(out, "neighbors (k): %d\n", stats.K)
			return nil
		},
	}
}

func newPrefetchCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "prefetch",
		Short: "Load the full dataset, reporting shard progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			if err := a.selectDataset(ctx); err != nil {
				return err
			}

			stats, ok := a.explorer.Stats()
			if !ok {
				return fmt.Errorf("no dataset loaded")
			}

			out := cmd.OutOrStdout()
			for i := 0; i < stats.NumShards; i++ {
				start := time.Now()
				if _, err := a.explorer.EnsureShard(ctx, i); err != nil {
					return err
				}
				fmt.Fprintf(out, "shard %d/%d  %s\n", i+1, stats.NumShards, time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall timeout (0 = none)")
	return cmd
}
