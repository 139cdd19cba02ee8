package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"subtrove/internal/api"
	"subtrove/internal/daemonctl"
	"subtrove/internal/engine"
)

func newLimitsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show provider request quotas",
		Long: "Show provider request quotas. When the service is running its live counters\n" +
			"are reported; otherwise quotas are unknown until a provider has been queried.",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, live, err := fetchLimits(cmd, ctx)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if !live {
				fmt.Fprintln(out, "Service is not running; showing local quota snapshot")
			}
			if len(resp.Providers) == 0 {
				fmt.Fprintln(out, "No providers are registered")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(resp.Providers))
			for _, p := range resp.Providers {
				rows = append(rows, limitRow(p, colorize))
			}
			fmt.Fprintln(out, renderTable([]column{
				{Header: "Source"},
				{Header: "Used", Align: alignRight},
				{Header: "Remaining", Align: alignRight},
				{Header: "Per Day", Align: alignRight},
				{Header: "Resets"},
				{Header: "Status"},
			}, rows))
			return nil
		},
	}
}

// fetchLimits asks the running service first because its counters reflect
// real traffic; a fresh local engine only knows configured defaults.
func fetchLimits(cmd *cobra.Command, ctx *commandContext) (api.LimitsResponse, bool, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return api.LimitsResponse{}, false, err
	}
	if running, err := daemonctl.Running(cfg); err == nil && running {
		client, err := daemonctl.NewClient(cfg, nil)
		if err == nil {
			if resp, err := client.Limits(cmd.Context()); err == nil {
				return resp, true, nil
			}
		}
	}
	var resp api.LimitsResponse
	err = ctx.withEngine(cmd, func(eng *engine.Engine) error {
		resp = api.FromLimits(eng.ProviderLimits(), time.Now())
		return nil
	})
	return resp, false, err
}

func limitRow(p api.ProviderLimits, colorize bool) []string {
	count := func(v int) string {
		if v < 0 {
			return "?"
		}
		return strconv.Itoa(v)
	}
	reset := "-"
	if p.ResetAt != "" {
		if t, err := time.Parse(time.RFC3339, p.ResetAt); err == nil {
			reset = t.Local().Format(time.DateTime)
		} else {
			reset = p.ResetAt
		}
	}
	status := "ok"
	kind := statusOK
	switch {
	case !p.CanRequest:
		status, kind = "exhausted", statusError
	case p.RequestsPerDay > 0 && p.Remaining >= 0 && p.Remaining*10 < p.RequestsPerDay:
		status, kind = "low", statusWarn
	}
	if colorize {
		status = statusKindColor(kind) + status + ansiReset
	}
	perDay := count(p.RequestsPerDay)
	if p.RequestsPerDay == 0 {
		perDay = "-"
	}
	return []string{p.Source, count(p.Used), count(p.Remaining), perDay, reset, status}
}
