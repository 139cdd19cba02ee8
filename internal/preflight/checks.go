package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"subtrove/internal/config"
	"subtrove/internal/deps"
	"subtrove/internal/subtitles"
)

const probeTimeout = 5 * time.Second

// CheckSources reports one result per enabled source. Without network the
// check only confirms that required credentials are present.
func CheckSources(ctx context.Context, cfg *config.Config, network bool) []Result {
	var results []Result
	for _, name := range cfg.Subtitles.EnabledSources {
		switch subtitles.Source(name) {
		case subtitles.SourceOpenSubtitles:
			if network {
				results = append(results, CheckOpenSubtitles(ctx, cfg.OpenSubtitles))
			} else {
				results = append(results, credentialResult("OpenSubtitles", cfg.OpenSubtitles.APIKey, "api key"))
			}
		case subtitles.SourceAssrt:
			if network {
				results = append(results, CheckAssrt(ctx, cfg.Assrt))
			} else {
				results = append(results, credentialResult("Assrt", cfg.Assrt.Token, "token"))
			}
		case subtitles.SourceSubscene:
			if network {
				results = append(results, CheckSubscene(ctx, cfg.Subscene))
			} else {
				results = append(results, Result{Name: "Subscene", Passed: true, Detail: "no credentials required"})
			}
		default:
			results = append(results, Result{Name: name, Detail: "unknown source"})
		}
	}
	return results
}

func credentialResult(name, value, what string) Result {
	if strings.TrimSpace(value) == "" {
		return Result{Name: name, Detail: "missing " + what}
	}
	return Result{Name: name, Passed: true, Detail: what + " configured"}
}

// CheckOpenSubtitles verifies the REST API accepts the configured key.
func CheckOpenSubtitles(ctx context.Context, cfg config.OpenSubtitles) Result {
	const name = "OpenSubtitles"
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	return probe(ctx, name, base+"/infos/formats", map[string]string{
		"Api-Key":    strings.TrimSpace(cfg.APIKey),
		"User-Agent": cfg.UserAgent,
		"Accept":     "application/json",
	}, "invalid api key")
}

// CheckAssrt verifies the quota endpoint accepts the configured token.
func CheckAssrt(ctx context.Context, cfg config.Assrt) Result {
	const name = "Assrt"
	if strings.TrimSpace(cfg.Token) == "" {
		return Result{Name: name, Detail: "missing token"}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	query := url.Values{"token": {strings.TrimSpace(cfg.Token)}}
	return probe(ctx, name, base+"/v1/user/quota?"+query.Encode(), nil, "invalid token")
}

// CheckSubscene verifies the site answers.
func CheckSubscene(ctx context.Context, cfg config.Subscene) Result {
	const name = "Subscene"
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	return probe(ctx, name, base+"/", nil, "access denied")
}

func probe(ctx context.Context, name, target string, headers map[string]string, authDetail string) Result {
	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client := &http.Client{Timeout: probeTimeout}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("reachability check failed (%v)", err)}
	}
	for key, value := range headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("reachability check failed (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: fmt.Sprintf("auth failed (%s)", authDetail)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{Name: name, Passed: true, Detail: "Reachable (rate limited)"}
	case resp.StatusCode >= 400:
		return Result{Name: name, Detail: fmt.Sprintf("reachability check failed (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the helper binaries subtrove can use. Both the
// service and the CLI status command share this list. An empty ffprobe
// skips media probing entirely.
func CheckSystemDeps(ctx context.Context, ffprobe string) []deps.Status {
	if strings.TrimSpace(ffprobe) == "" {
		return nil
	}
	return deps.CheckBinaries(ctx, []deps.Requirement{
		{
			Name:        "FFprobe",
			Command:     ffprobe,
			Description: "Fills runtime, resolution, and frame rate for media files",
			Optional:    true,
			VersionArgs: []string{"-version"},
		},
	})
}
