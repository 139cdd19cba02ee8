package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"subtrove/internal/subtitles/provider"
)

const (
	defaultBaseURL   = "https://api.opensubtitles.com/api/v1"
	defaultUserAgent = "Subtrove/dev"
	// tokenLifetime stays under the provider's 24h token expiry.
	tokenLifetime = 23 * time.Hour
	providerName  = "opensubtitles"
)

// Config describes the OpenSubtitles client configuration.
type Config struct {
	APIKey     string
	UserAgent  string
	Username   string
	Password   string
	UserToken  string
	BaseURL    string
	HTTPClient *http.Client
}

// Client wraps the OpenSubtitles REST API.
type Client struct {
	apiKey    string
	userAgent string
	username  string
	password  string
	baseURL   *url.URL
	http      *http.Client

	authMu    sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time

	onHeaders func(http.Header)
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("opensubtitles: api key is required")
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = provider.NewHTTPClient()
	}
	c := &Client{
		apiKey:    apiKey,
		userAgent: userAgent,
		username:  strings.TrimSpace(cfg.Username),
		password:  cfg.Password,
		baseURL:   baseURL,
		http:      client,
		now:       time.Now,
	}
	if token := strings.TrimSpace(cfg.UserToken); token != "" {
		c.token = token
		c.expiresAt = c.now().Add(tokenLifetime)
	}
	return c, nil
}

// CanLogin reports whether credentials for /login are configured.
func (c *Client) CanLogin() bool {
	return c.username != "" && c.password != ""
}

// EnsureToken logs in when credentials are configured and the current token
// is missing or expired. Concurrent callers share one login round-trip.
func (c *Client) EnsureToken(ctx context.Context) error {
	if c == nil {
		return errors.New("opensubtitles: client is nil")
	}
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return nil
	}
	if !c.CanLogin() {
		// Api-Key only access: searches and limited downloads still work.
		c.token = ""
		return nil
	}
	token, err := c.login(ctx)
	if err != nil {
		return err
	}
	c.token = token
	c.expiresAt = c.now().Add(tokenLifetime)
	return nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	if err != nil {
		return "", fmt.Errorf("opensubtitles: encode login request: %w", err)
	}
	endpoint := c.baseURL.JoinPath("login")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("opensubtitles: build login request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Api-Key", c.apiKey)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("opensubtitles: login request failed: %w", err)
	}
	defer resp.Body.Close()
	c.observe(resp.Header)
	if err := provider.CheckResponse(providerName, resp); err != nil {
		return "", err
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", provider.ParseError(providerName, "login", err)
	}
	if strings.TrimSpace(body.Token) == "" {
		return "", provider.ParseError(providerName, "login", errors.New("login response missing token"))
	}
	return body.Token, nil
}

// SearchRequest describes subtitle discovery filters.
type SearchRequest struct {
	TMDBID          int64
	IMDBID          string
	Query           string
	Languages       []string
	Season          int
	Episode         int
	MediaType       string
	Year            int
	HearingImpaired string
	MachineFilter   string
}

// Subtitle represents a subtitle candidate returned by OpenSubtitles.
type Subtitle struct {
	ID                string
	FileID            int64
	FileName          string
	Language          string
	Release           string
	FeatureTitle      string
	FeatureYear       int
	FeatureType       string
	Season            int
	Episode           int
	Downloads         int
	Rating            float64
	UploadedAt        time.Time
	Uploader          string
	HearingImpaired   bool
	HD                bool
	MachineTranslated bool
	FPS               float64
}

// SearchResponse bundles the subtitles returned by a query. Skipped counts
// entries that could not be decoded.
type SearchResponse struct {
	Subtitles []Subtitle
	Total     int
	Skipped   int
}

// DownloadResult captures the downloaded subtitle payload. Requests and
// Remaining are -1 when the response omitted them.
type DownloadResult struct {
	Data        []byte
	FileName    string
	DownloadURL string
	Requests    int
	Remaining   int
	ResetAt     time.Time
}

// Search queries the OpenSubtitles API for matching subtitles.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if c == nil {
		return SearchResponse{}, errors.New("opensubtitles: client is nil")
	}
	endpoint := c.baseURL.JoinPath("subtitles")
	endpoint.RawQuery = searchParams(req).Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("opensubtitles: build search request: %w", err)
	}
	c.applyHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("opensubtitles: search request failed: %w", err)
	}
	defer resp.Body.Close()
	c.observe(resp.Header)

	if err := provider.CheckResponse(providerName, resp); err != nil {
		return SearchResponse{}, err
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return SearchResponse{}, provider.ParseError(providerName, "search", err)
	}

	out := SearchResponse{Total: payload.Meta.Total}
	for _, raw := range payload.Data {
		var entry searchEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			out.Skipped++
			continue
		}
		attrs := entry.Attributes
		if attrs.Language == "" {
			continue
		}
		file := attrs.primaryFile()
		if file.FileID == 0 {
			continue
		}
		out.Subtitles = append(out.Subtitles, Subtitle{
			ID:                entry.ID,
			FileID:            file.FileID,
			FileName:          file.FileName,
			Language:          attrs.Language,
			Release:           attrs.Release,
			FeatureTitle:      attrs.FeatureDetails.Title,
			FeatureYear:       attrs.FeatureDetails.Year,
			FeatureType:       attrs.FeatureDetails.FeatureType,
			Season:            attrs.FeatureDetails.SeasonNumber,
			Episode:           attrs.FeatureDetails.EpisodeNumber,
			Downloads:         attrs.DownloadCount,
			Rating:            attrs.Ratings,
			UploadedAt:        attrs.UploadDate,
			Uploader:          attrs.Uploader.Name,
			HearingImpaired:   attrs.HearingImpaired,
			HD:                attrs.HD,
			MachineTranslated: attrs.AITranslated || attrs.MachineTranslated,
			FPS:               attrs.FPS,
		})
	}
	return out, nil
}

func searchParams(req SearchRequest) url.Values {
	params := url.Values{}
	if req.TMDBID > 0 {
		params.Set("tmdb_id", strconv.FormatInt(req.TMDBID, 10))
	}
	if imdb := sanitizeIMDBID(req.IMDBID); imdb != "" {
		params.Set("imdb_id", imdb)
	}
	if req.Query != "" {
		params.Set("query", req.Query)
	}
	if len(req.Languages) > 0 {
		params.Set("languages", strings.Join(req.Languages, ","))
	}
	if req.Season > 0 {
		params.Set("season_number", strconv.Itoa(req.Season))
	}
	if req.Episode > 0 {
		params.Set("episode_number", strconv.Itoa(req.Episode))
	}
	if req.Year > 0 {
		params.Set("year", strconv.Itoa(req.Year))
	}
	if req.HearingImpaired != "" {
		params.Set("hearing_impaired", req.HearingImpaired)
	}
	if req.MachineFilter != "" {
		params.Set("machine_translated", req.MachineFilter)
		params.Set("ai_translated", req.MachineFilter)
	}
	mediaType := req.MediaType
	if mediaType == "" {
		if req.Season > 0 || req.Episode > 0 {
			mediaType = "episode"
		} else {
			mediaType = "movie"
		}
	}
	params.Set("type", mediaType)
	params.Set("order_by", "download_count")
	params.Set("order_direction", "desc")
	return params
}

// Download retrieves the subtitle contents for the specified subtitle file.
func (c *Client) Download(ctx context.Context, fileID int64) (DownloadResult, error) {
	if c == nil {
		return DownloadResult{}, errors.New("opensubtitles: client is nil")
	}
	if fileID <= 0 {
		return DownloadResult{}, errors.New("opensubtitles: invalid file id")
	}
	payload, err := json.Marshal(map[string]any{"file_id": fileID, "sub_format": "srt"})
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: encode download request: %w", err)
	}

	endpoint := c.baseURL.JoinPath("download")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: build download request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.applyHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: download request failed: %w", err)
	}
	defer resp.Body.Close()
	c.observe(resp.Header)

	if err := provider.CheckResponse(providerName, resp); err != nil {
		return DownloadResult{}, err
	}

	var info downloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return DownloadResult{}, provider.ParseError(providerName, "download", err)
	}
	if info.Link == "" {
		return DownloadResult{}, provider.ParseError(providerName, "download", errors.New("download response missing link"))
	}

	downloadURL, err := endpoint.Parse(info.Link)
	if err != nil {
		return DownloadResult{}, provider.ParseError(providerName, "download", fmt.Errorf("parse download url: %w", err))
	}

	dataReq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL.String(), nil)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: build link request: %w", err)
	}
	dataReq.Header.Set("User-Agent", c.userAgent)
	dataResp, err := c.http.Do(dataReq)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: fetch subtitle payload: %w", err)
	}
	defer dataResp.Body.Close()

	if err := provider.CheckResponse(providerName, dataResp); err != nil {
		return DownloadResult{}, err
	}
	data, err := io.ReadAll(dataResp.Body)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: read subtitle data: %w", err)
	}

	return DownloadResult{
		Data:        data,
		FileName:    info.FileName,
		DownloadURL: downloadURL.String(),
		Requests:    intOrUnknown(info.Requests),
		Remaining:   intOrUnknown(info.Remaining),
		ResetAt:     info.ResetTimeUTC,
	}, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	c.authMu.Lock()
	token := c.token
	c.authMu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) observe(header http.Header) {
	if c.onHeaders != nil {
		c.onHeaders(header)
	}
}

func intOrUnknown(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

func sanitizeIMDBID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.TrimPrefix(strings.ToLower(value), "tt")
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return ""
	}
	return value
}

type searchResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		Total int `json:"total_count"`
	} `json:"meta"`
}

type searchEntry struct {
	ID         string           `json:"id"`
	Attributes searchAttributes `json:"attributes"`
}

type searchAttributes struct {
	Language          string         `json:"language"`
	Release           string         `json:"release"`
	DownloadCount     int            `json:"download_count"`
	Ratings           float64        `json:"ratings"`
	UploadDate        time.Time      `json:"upload_date"`
	HearingImpaired   bool           `json:"hearing_impaired"`
	HD                bool           `json:"hd"`
	FPS               float64        `json:"fps"`
	AITranslated      bool           `json:"ai_translated"`
	MachineTranslated bool           `json:"machine_translated"`
	Uploader          uploader       `json:"uploader"`
	FeatureDetails    featureDetails `json:"feature_details"`
	Files             []searchFile   `json:"files"`
}

func (a searchAttributes) primaryFile() searchFile {
	if len(a.Files) == 0 {
		return searchFile{}
	}
	return a.Files[0]
}

type uploader struct {
	Name string `json:"name"`
}

type featureDetails struct {
	FeatureType   string `json:"feature_type"`
	Title         string `json:"title"`
	Year          int    `json:"year"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
}

type searchFile struct {
	FileID   int64  `json:"file_id"`
	FileName string `json:"file_name"`
}

type downloadResponse struct {
	Link         string    `json:"link"`
	FileName     string    `json:"file_name"`
	Requests     *int      `json:"requests"`
	Remaining    *int      `json:"remaining"`
	ResetTimeUTC time.Time `json:"reset_time_utc"`
}
