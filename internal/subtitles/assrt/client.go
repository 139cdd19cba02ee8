package assrt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"subtrove/internal/subtitles/provider"
)

const (
	defaultBaseURL = "https://api.assrt.net"
	providerName   = "assrt"
	// maxCount is the largest page the search endpoint accepts.
	maxCount = 15
)

// Status codes reported in the JSON envelope.
const (
	statusOK           = 0
	statusInvalidToken = 101
	statusQuota        = 509
)

// ErrStatus is returned when the envelope carries a non-zero status.
var ErrStatus = errors.New("assrt: api status")

// StatusError carries the envelope status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("assrt: api status %d", e.Code)
	}
	return fmt.Sprintf("assrt: api status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Config describes the Assrt client configuration.
type Config struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// Client wraps the Assrt v1 API.
type Client struct {
	token   string
	baseURL *url.URL
	http    *http.Client
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("assrt: token is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("assrt: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = provider.NewHTTPClient()
	}
	return &Client{token: token, baseURL: baseURL, http: client}, nil
}

// SearchItem is one search hit.
type SearchItem struct {
	ID          int64
	NativeName  string
	VideoName   string
	Subtype     string
	LangDesc    string
	LangList    []string
	UploadTime  string
	VoteScore   float64
	ReleaseSite string
}

// FileEntry is one file inside a subtitle package.
type FileEntry struct {
	URL      string
	Name     string
	SizeText string
}

// Detail describes a subtitle package.
type Detail struct {
	ID        int64
	Title     string
	URL       string
	FileName  string
	Size      int64
	Downloads int
	Files     []FileEntry
}

// Search queries /v1/sub/search. Entries that fail to decode are skipped and
// counted.
func (c *Client) Search(ctx context.Context, query string, count int) ([]SearchItem, int, error) {
	if count <= 0 || count > maxCount {
		count = maxCount
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("cnt", strconv.Itoa(count))
	params.Set("no_muxer", "1")

	var envelope struct {
		Sub struct {
			Subs []json.RawMessage `json:"subs"`
		} `json:"sub"`
	}
	if err := c.get(ctx, "/v1/sub/search", params, &envelope); err != nil {
		return nil, 0, err
	}

	items := make([]SearchItem, 0, len(envelope.Sub.Subs))
	skipped := 0
	for _, raw := range envelope.Sub.Subs {
		var entry searchEntry
		if err := json.Unmarshal(raw, &entry); err != nil || entry.ID == 0 {
			skipped++
			continue
		}
		langs := make([]string, 0, len(entry.Lang.LangList))
		for key, on := range entry.Lang.LangList {
			if on {
				langs = append(langs, key)
			}
		}
		sort.Strings(langs)
		items = append(items, SearchItem{
			ID:          entry.ID,
			NativeName:  entry.NativeName,
			VideoName:   entry.VideoName,
			Subtype:     entry.Subtype,
			LangDesc:    entry.Lang.Desc,
			LangList:    langs,
			UploadTime:  entry.UploadTime,
			VoteScore:   entry.VoteScore,
			ReleaseSite: entry.ReleaseSite,
		})
	}
	return items, skipped, nil
}

// Detail fetches /v1/sub/detail for one package.
func (c *Client) Detail(ctx context.Context, id int64) (Detail, error) {
	params := url.Values{}
	params.Set("id", strconv.FormatInt(id, 10))
	var envelope struct {
		Sub struct {
			Subs []detailEntry `json:"subs"`
		} `json:"sub"`
	}
	if err := c.get(ctx, "/v1/sub/detail", params, &envelope); err != nil {
		return Detail{}, err
	}
	if len(envelope.Sub.Subs) == 0 {
		return Detail{}, provider.ParseError(providerName, "detail", errors.New("no detail items"))
	}
	entry := envelope.Sub.Subs[0]
	detail := Detail{
		ID:        entry.ID,
		Title:     entry.Title,
		URL:       entry.URL,
		FileName:  entry.FileName,
		Size:      entry.Size,
		Downloads: entry.DownCount,
	}
	for _, f := range entry.FileList {
		if strings.TrimSpace(f.URL) == "" {
			continue
		}
		detail.Files = append(detail.Files, FileEntry{URL: f.URL, Name: f.Name, SizeText: f.Size})
	}
	return detail, nil
}

// Quota returns the remaining request budget from /v1/user/quota.
func (c *Client) Quota(ctx context.Context) (int, error) {
	var envelope struct {
		User struct {
			Quota int `json:"quota"`
		} `json:"user"`
	}
	if err := c.get(ctx, "/v1/user/quota", url.Values{}, &envelope); err != nil {
		return 0, err
	}
	return envelope.User.Quota, nil
}

// Fetch downloads a file URL returned by Detail.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := c.baseURL.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("assrt: parse file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("assrt: build file request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assrt: fetch file: %w", err)
	}
	defer resp.Body.Close()
	if err := provider.CheckResponse(providerName, resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("assrt: read file: %w", err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL.JoinPath(path)
	params.Set("token", c.token)
	endpoint.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("assrt: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("assrt: request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := provider.CheckResponse(providerName, resp); err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("assrt: read response: %w", err)
	}
	var status struct {
		Status int    `json:"status"`
		Errmsg string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return provider.ParseError(providerName, path, err)
	}
	if status.Status != statusOK {
		return &StatusError{Code: status.Status, Message: status.Errmsg}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return provider.ParseError(providerName, path, err)
	}
	return nil
}

type searchEntry struct {
	ID          int64   `json:"id"`
	NativeName  string  `json:"native_name"`
	VideoName   string  `json:"videoname"`
	Subtype     string  `json:"subtype"`
	UploadTime  string  `json:"upload_time"`
	VoteScore   float64 `json:"vote_score"`
	ReleaseSite string  `json:"release_site"`
	Lang        struct {
		Desc     string          `json:"desc"`
		LangList map[string]bool `json:"langlist"`
	} `json:"lang"`
}

type detailEntry struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	FileName  string `json:"filename"`
	Size      int64  `json:"size"`
	DownCount int    `json:"down_count"`
	FileList  []struct {
		URL  string `json:"url"`
		Name string `json:"f"`
		Size string `json:"s"`
	} `json:"filelist"`
}
