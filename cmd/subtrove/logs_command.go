package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"subtrove/internal/logging"
	"subtrove/internal/logs"
	"subtrove/internal/services"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		raw    bool
		filter logs.Filter
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the service log",
		Long: "Show the service log written under paths.log_dir. Entries can be filtered\n" +
			"by level, component, request id, media id, or free text.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Paths.LogDir) == "" {
				return services.Wrap(services.ErrValidation, "cli", "logs", "paths.log_dir is not configured", nil)
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
			out := cmd.OutOrStdout()
			printLine := func(line string) {
				if raw || ctx.jsonOutput() {
					fmt.Fprintln(out, line)
					return
				}
				fmt.Fprintln(out, formatLogLine(line))
			}

			if follow {
				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return logs.Follow(runCtx, path, lines, filter, printLine)
			}
			result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: -1, Limit: lines, Filter: filter})
			if err != nil {
				return err
			}
			if len(result.Lines) == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "No log entries in %s\n", path)
				return nil
			}
			for _, line := range result.Lines {
				printLine(line)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	flags.BoolVarP(&follow, "follow", "f", false, "Keep printing new entries until interrupted")
	flags.BoolVar(&raw, "raw", false, "Print entries as stored")
	flags.StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	flags.StringVar(&filter.Component, "component", "", "Only entries from this component")
	flags.StringVar(&filter.RequestID, "request", "", "Only entries for this request id")
	flags.StringVar(&filter.MediaID, "media", "", "Only entries for this media id")
	flags.StringVar(&filter.Search, "grep", "", "Only entries containing this text")
	return cmd
}

var logHeaderKeys = map[string]struct{}{
	"ts": {}, "level": {}, "msg": {}, "caller": {}, logging.FieldComponent: {},
}

// formatLogLine renders a JSON entry as "ts LEVEL [component] msg k=v ...".
// Lines that are not JSON are returned unchanged.
func formatLogLine(line string) string {
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line
	}
	var b strings.Builder
	if ts, _ := entry["ts"].(string); ts != "" {
		b.WriteString(ts)
		b.WriteByte(' ')
	}
	level, _ := entry["level"].(string)
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(level))
	if component, _ := entry[logging.FieldComponent].(string); component != "" {
		fmt.Fprintf(&b, " [%s]", component)
	}
	if msg, _ := entry["msg"].(string); msg != "" {
		b.WriteByte(' ')
		b.WriteString(msg)
	}
	keys := make([]string, 0, len(entry))
	for key := range entry {
		if _, skip := logHeaderKeys[key]; !skip {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry[key])
	}
	return b.String()
}
