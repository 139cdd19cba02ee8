package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"subtrove/internal/api"
	"subtrove/internal/engine"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var mf mediaFlags
	var pf policyFlags

	cmd := &cobra.Command{
		Use:   "search [media-file]",
		Short: "Search every enabled provider and rank the results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				d, err := mf.resolve(cmd, eng, args)
				if err != nil {
					return err
				}
				policy, err := pf.policy(cmd, eng.Policy())
				if err != nil {
					return err
				}
				result, err := eng.Search(cmd.Context(), d, policy)
				if err != nil {
					return err
				}
				resp := api.FromSearchResult(result)
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				printSearch(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
	mf.register(cmd)
	pf.register(cmd)
	return cmd
}

func printSearch(out io.Writer, resp api.SearchResponse) {
	colorize := shouldColorize(out)
	origin := "providers"
	if resp.FromCache {
		origin = "cache"
	}
	fmt.Fprintf(out, "Media %s: %d candidate(s) from %s in %s\n",
		resp.FileID, resp.TotalCount, origin, (time.Duration(resp.ElapsedMS) * time.Millisecond).String())

	if len(resp.Matches) == 0 {
		fmt.Fprintln(out, "No subtitles found")
	} else {
		fmt.Fprintln(out, renderTable(matchColumns, matchRows(resp.Matches, colorize)))
	}
	for _, perr := range resp.Errors {
		fmt.Fprintln(out, renderStatusLine(perr.Source, statusWarn, perr.Kind+": "+perr.Message, colorize))
	}
}

var matchColumns = []column{
	{Header: "#", Align: alignRight},
	{Header: "Tier"},
	{Header: "Score", Align: alignRight},
	{Header: "Lang"},
	{Header: "Source"},
	{Header: "Title", MaxWidth: 48},
	{Header: "Format"},
	{Header: "Rating", Align: alignRight},
	{Header: "Downloads", Align: alignRight},
}

func matchRows(matches []api.Match, colorize bool) [][]string {
	rows := make([][]string, 0, len(matches))
	for i, m := range matches {
		sub := m.Subtitle
		lang := sub.Language
		if sub.LanguageName != "" {
			lang = sub.LanguageName
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			tierLabel(m.Tier, colorize),
			fmt.Sprintf("%.0f%%", m.Similarity*100),
			lang,
			sub.Source,
			sub.Title,
			sub.Format,
			fmt.Sprintf("%.1f", sub.Rating),
			strconv.Itoa(sub.Downloads),
		})
	}
	return rows
}
