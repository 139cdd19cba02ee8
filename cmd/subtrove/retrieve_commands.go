package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"subtrove/internal/api"
	"subtrove/internal/engine"
	"subtrove/internal/services"
	"subtrove/internal/subtitles/retrieve"
)

func newSelectCommand(ctx *commandContext) *cobra.Command {
	var mf mediaFlags
	var pf policyFlags
	var noDownload bool
	var save bool

	cmd := &cobra.Command{
		Use:   "select [media-file]",
		Short: "Pick the subtitle to play, downloading one when none is available",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(eng *engine.Engine) error {
				d, err := mf.resolve(cmd, eng, args)
				if err != nil {
					return err
				}
				overrides := pf.overrides(cmd)
				if noDownload {
					disabled := false
					overrides.AutoDownload = &disabled
				}
				policy, err := overrides.Apply(eng.Policy())
				if err != nil {
					return err
				}
				sel, found, err := eng.SelectBest(cmd.Context(), d, policy)
				if err != nil {
					return err
				}
				resp := api.FromSelection(sel, found)
				if found && save && sel.Origin != retrieve.OriginSidecar {
					path, err := retrieve.ExportSidecar(sel.Record, d.FilePath, false)
					if err != nil {
						return err
					}
					resp.Path = path
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				printSelection(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
	mf.register(cmd)
	pf.register(cmd)
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "Only consider sidecar and cached subtitles")
	cmd.Flags().BoolVar(&save, "save", false, "Copy the selected subtitle next to the media file")
	return cmd
}

func printSelection(out io.Writer, resp api.SelectResponse) {
	if !resp.Found || resp.Subtitle == nil {
		fmt.Fprintln(out, "No suitable subtitle found")
		if resp.Search != nil {
			fmt.Fprintf(out, "Searched %d candidate(s); none were compatible with the media\n", resp.Search.TotalCount)
		}
		return
	}
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Selected Subtitle", colorize) {
		fmt.Fprintln(out, line)
	}
	sub := resp.Subtitle
	fmt.Fprintln(out, renderField("Origin", resp.Origin))
	fmt.Fprintln(out, renderField("Language", languageLabel(*sub)))
	fmt.Fprintln(out, renderField("Source", sub.Source))
	fmt.Fprintln(out, renderField("Title", sub.Title))
	fmt.Fprintln(out, renderField("Format", sub.Format+" ("+resp.MIMEType+")"))
	fmt.Fprintln(out, renderField("Path", resp.Path))
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var mf mediaFlags
	var pf policyFlags
	var pick int
	var save bool
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "download [media-file]",
		Short: "Search and download one ranked result into the cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pick < 1 {
				return services.Wrap(services.ErrValidation, "cli", "download", "--pick must be 1 or greater", nil)
			}
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
				if pick > len(result.Matches) {
					return services.Wrap(services.ErrNotFound, "cli", "download",
						fmt.Sprintf("result %d requested but the search returned %d", pick, len(result.Matches)), nil)
				}
				stored, err := eng.Download(cmd.Context(), result.Matches[pick-1].Record, result.FileID)
				if err != nil {
					return err
				}
				resp := api.DownloadResponse{Subtitle: api.FromRecord(stored)}
				if save {
					path, err := retrieve.ExportSidecar(stored, d.FilePath, overwrite)
					if err != nil {
						return err
					}
					resp.Subtitle.LocalPath = path
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Downloaded %s subtitle from %s\n", languageLabel(resp.Subtitle), stored.Source)
				fmt.Fprintln(out, renderField("Path", resp.Subtitle.LocalPath))
				return nil
			})
		},
	}
	mf.register(cmd)
	pf.register(cmd)
	cmd.Flags().IntVarP(&pick, "pick", "n", 1, "Rank of the search result to download")
	cmd.Flags().BoolVar(&save, "save", false, "Copy the subtitle next to the media file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing sidecar when saving")
	return cmd
}

func languageLabel(sub api.Subtitle) string {
	if sub.LanguageName == "" || sub.LanguageName == sub.Language {
		return sub.Language
	}
	return fmt.Sprintf("%s (%s)", sub.LanguageName, sub.Language)
}
