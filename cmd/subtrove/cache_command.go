package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"subtrove/internal/api"
	"subtrove/internal/engine"
	"subtrove/internal/services"
	"subtrove/internal/subtitles/cache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the subtitle cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheCleanCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheSweepCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheFindCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				stats, err := eng.Stats(cmd.Context())
				if err != nil {
					return err
				}
				resp := api.FromCacheStats(stats)
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				printCacheStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}

func printCacheStats(out io.Writer, stats cache.Stats) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Subtitle Cache", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderField("Directory", stats.Directory))
	fmt.Fprintln(out, renderField("Records", fmt.Sprintf("%d (%d downloaded)", stats.Records, stats.Downloaded)))
	fmt.Fprintln(out, renderField("Media", strconv.Itoa(stats.MediaEntries)))
	fmt.Fprintln(out, renderField("Files", strconv.Itoa(stats.Files)))

	usage := humanBytes(stats.TotalBytes)
	kind := statusOK
	if stats.MaxBytes > 0 {
		usage = fmt.Sprintf("%s of %s", usage, humanBytes(stats.MaxBytes))
		if stats.TotalBytes > stats.MaxBytes {
			kind = statusWarn
		}
	}
	fmt.Fprintln(out, renderStatusLine("Usage", kind, usage, colorize))
	if stats.TotalFSBytes > 0 {
		fmt.Fprintln(out, renderField("Disk free", fmt.Sprintf("%s of %s",
			humanBytes(int64(stats.FreeBytes)), humanBytes(int64(stats.TotalFSBytes)))))
	}
	last := "never"
	if !stats.LastCleanup.IsZero() {
		last = stats.LastCleanup.Local().Format(time.DateTime)
	}
	fmt.Fprintln(out, renderField("Last cleanup", last))
}

func newCacheCleanCommand(ctx *commandContext) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove expired subtitles",
		Long: "Remove subtitles older than cache.expire_days. With --full, also evict down to\n" +
			"the size limit and sweep files the index no longer references.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				var resp api.CleanupResponse
				if full {
					report, err := eng.Maintain(cmd.Context())
					if err != nil {
						return err
					}
					resp = api.FromReport(report)
				} else {
					result, err := eng.CleanExpiredCache(cmd.Context())
					if err != nil {
						return err
					}
					resp = api.FromCleanup(result)
					resp.Expired = &resp.Total
				}
				return printCleanup(cmd, ctx, resp)
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Run a full maintenance pass")
	return cmd
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var targetMB int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Evict the oldest subtitles until the cache fits its size limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetMB < 0 {
				return services.Wrap(services.ErrValidation, "cli", "prune", "--target-mb must not be negative", nil)
			}
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				target := eng.Cache().MaxBytes()
				if cmd.Flags().Changed("target-mb") {
					target = int64(targetMB) * 1024 * 1024
				}
				result, err := eng.Cache().CleanupToSize(cmd.Context(), target)
				if err != nil {
					return err
				}
				resp := api.FromCleanup(result)
				resp.Evicted = &resp.Total
				return printCleanup(cmd, ctx, resp)
			})
		},
	}
	cmd.Flags().IntVar(&targetMB, "target-mb", 0, "Target size in MiB (defaults to cache.max_size_mb)")
	return cmd
}

func newCacheSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete cache files the index no longer references",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				result, err := eng.Cache().SweepOrphans(cmd.Context())
				if err != nil {
					return err
				}
				resp := api.FromCleanup(result)
				resp.Orphans = &resp.Total
				return printCleanup(cmd, ctx, resp)
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached subtitle and index entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return services.Wrap(services.ErrValidation, "cli", "clear", "refusing to clear the cache without --yes", nil)
			}
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				result, err := eng.Cache().Clear(cmd.Context())
				if err != nil {
					return err
				}
				return printCleanup(cmd, ctx, api.FromCleanup(result))
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm removal of all cached subtitles")
	return cmd
}

func printCleanup(cmd *cobra.Command, ctx *commandContext, resp api.CleanupResponse) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, resp)
	}
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, 4)
	add := func(label string, c *api.CleanupCounts) {
		if c == nil {
			return
		}
		rows = append(rows, []string{label, strconv.Itoa(c.Records), strconv.Itoa(c.Files), humanBytes(c.Bytes)})
	}
	add("Expired", resp.Expired)
	add("Evicted", resp.Evicted)
	add("Orphans", resp.Orphans)
	if len(rows) != 1 {
		total := resp.Total
		add("Total", &total)
	}
	fmt.Fprintln(out, renderTable([]column{
		{Header: "Step"},
		{Header: "Records", Align: alignRight},
		{Header: "Files", Align: alignRight},
		{Header: "Freed", Align: alignRight},
	}, rows))
	return nil
}

func newCacheFindCommand(ctx *commandContext) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "find [query]",
		Short: "List downloaded subtitles by title or language name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) > 0 {
				query = args[0]
			}
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				records := eng.Cache().Search(query, lang)
				subs := make([]api.Subtitle, 0, len(records))
				for _, rec := range records {
					subs = append(subs, api.FromRecord(rec))
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, subs)
				}
				out := cmd.OutOrStdout()
				if len(subs) == 0 {
					fmt.Fprintln(out, "No cached subtitles match")
					return nil
				}
				rows := make([][]string, 0, len(subs))
				for _, sub := range subs {
					rows = append(rows, []string{sub.Language, sub.Source, sub.Title, fmt.Sprintf("%.1f", sub.Rating), sub.LocalPath})
				}
				fmt.Fprintln(out, renderTable([]column{
					{Header: "Lang"},
					{Header: "Source"},
					{Header: "Title", MaxWidth: 40},
					{Header: "Rating", Align: alignRight},
					{Header: "Path"},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Only list subtitles in this language")
	return cmd
}
