package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subtrove/internal/api"
	"subtrove/internal/daemonctl"
	"subtrove/internal/daemonrun"
	"subtrove/internal/deps"
	"subtrove/internal/preflight"
)

func newServiceCommands(ctx *commandContext) []*cobra.Command {
	var ffprobe string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the subtrove service in the foreground",
		Long: "Run the subtrove service: the HTTP API on paths.api_bind plus scheduled cache\n" +
			"maintenance. Stops on SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel: ctx.logLevel(),
				FFprobe:  strings.TrimSpace(ffprobe),
			})
		},
	}
	serveCmd.Flags().StringVar(&ffprobe, "ffprobe", "ffprobe", "ffprobe binary reported in the dependency check")

	var grace time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running subtrove service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cfg, grace)
			if errors.Is(err, daemonctl.ErrServiceNotRunning) {
				fmt.Fprintln(out, "Service is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Service did not exit within %s; killed pid %d\n", grace, result.PID)
				return nil
			}
			fmt.Fprintf(out, "Service stopped (pid %d)\n", result.PID)
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&grace, "grace", 5*time.Second, "Time to wait before force-killing the service")

	var (
		probe         bool
		statusFFprobe string
	)
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show service, provider, and cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status := api.ServiceStatus{LockFilePath: cfg.LockPath(), CacheDir: cfg.Paths.CacheDir}
			running, err := daemonctl.Running(cfg)
			if err != nil {
				return err
			}
			var fetchErr error
			if running {
				client, err := daemonctl.NewClient(cfg, nil)
				if err != nil {
					return err
				}
				if status, fetchErr = client.Status(cmd.Context()); fetchErr != nil {
					status = api.ServiceStatus{Running: true, LockFilePath: cfg.LockPath(), CacheDir: cfg.Paths.CacheDir}
					if pid, ok := daemonrun.ReadPID(cfg); ok {
						status.PID = pid
					}
				}
			}
			report := statusReport{
				ServiceStatus: status,
				Checks:        preflight.RunAll(cmd.Context(), cfg, preflight.Options{Network: probe}),
				Dependencies:  preflight.CheckSystemDeps(cmd.Context(), statusFFprobe),
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			printStatus(out, cfg.Paths.APIBind, status, fetchErr)
			printChecks(out, report.Checks, report.Dependencies)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&probe, "probe", false, "Contact each enabled provider to verify reachability and credentials")
	statusCmd.Flags().StringVar(&statusFFprobe, "ffprobe", "ffprobe", "ffprobe binary to check; empty skips the check")

	return []*cobra.Command{serveCmd, stopCmd, statusCmd}
}

// statusReport extends the service status with local readiness checks.
type statusReport struct {
	api.ServiceStatus
	Checks       []preflight.Result `json:"checks"`
	Dependencies []deps.Status      `json:"dependencies,omitempty"`
}

func printStatus(out io.Writer, bind string, status api.ServiceStatus, fetchErr error) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Service", colorize) {
		fmt.Fprintln(out, line)
	}
	if !status.Running {
		fmt.Fprintln(out, renderStatusLine("Service", statusWarn, "not running", colorize))
		fmt.Fprintln(out, renderField("Lock file", status.LockFilePath))
		fmt.Fprintln(out, renderField("Cache", status.CacheDir))
		return
	}
	detail := "running"
	if status.PID > 0 {
		detail += " (pid " + strconv.Itoa(status.PID) + ")"
	}
	fmt.Fprintln(out, renderStatusLine("Service", statusOK, detail, colorize))
	if status.StartedAt != "" {
		fmt.Fprintln(out, renderField("Started", status.StartedAt))
	}
	if fetchErr != nil {
		fmt.Fprintln(out, renderStatusLine("API", statusError, fetchErr.Error(), colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine("API", statusOK, bind, colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Subtitles", colorize) {
		fmt.Fprintln(out, line)
	}
	sources := "none"
	kind := statusWarn
	if len(status.Sources) > 0 {
		sources, kind = strings.Join(status.Sources, ", "), statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Sources", kind, sources, colorize))
	fmt.Fprintln(out, renderField("Languages", strings.Join(status.Languages, ", ")))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Cache", colorize) {
		fmt.Fprintln(out, line)
	}
	c := status.Cache
	fmt.Fprintln(out, renderField("Directory", c.Directory))
	fmt.Fprintln(out, renderField("Records", fmt.Sprintf("%d (%d downloaded)", c.Records, c.Downloaded)))
	usage := humanBytes(c.TotalBytes)
	if c.MaxBytes > 0 {
		usage += " of " + humanBytes(c.MaxBytes)
	}
	fmt.Fprintln(out, renderField("Usage", usage))
	last := c.LastCleanup
	if last == "" {
		last = "never"
	}
	fmt.Fprintln(out, renderField("Last cleanup", last))
}

func printChecks(out io.Writer, checks []preflight.Result, dependencies []deps.Status) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("System Checks", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	if len(dependencies) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range dependencies {
		kind, detail := statusOK, dep.Path
		switch {
		case !dep.Available && dep.Optional:
			kind, detail = statusWarn, dep.Detail+" (optional)"
		case !dep.Available:
			kind, detail = statusError, dep.Detail
		case dep.Version != "":
			detail += " (" + dep.Version + ")"
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
	}
}
