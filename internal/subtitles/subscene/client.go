package subscene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"subtrove/internal/subtitles/provider"
)

const (
	defaultBaseURL   = "https://subscene.com"
	providerName     = "subscene"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) subtrove"
	// maxPageBytes bounds HTML pages; archives use maxArchiveBytes.
	maxPageBytes    = 4 << 20
	maxArchiveBytes = 16 << 20
)

// Config describes the Subscene client configuration.
type Config struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// Client fetches and parses Subscene pages.
type Client struct {
	baseURL   *url.URL
	userAgent string
	http      *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("subscene: parse base url: %w", err)
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		client = provider.NewHTTPClient()
	}
	return &Client{baseURL: baseURL, userAgent: ua, http: client}, nil
}

// TitleHit is one entry of the title search page.
type TitleHit struct {
	Name string
	Year int
	URL  string
}

// Row is one subtitle listed on a title page.
type Row struct {
	DetailURL       string
	Language        string
	Release         string
	Files           int
	HearingImpaired bool
	Uploader        string
	Comment         string
}

// SearchTitles posts the query to the title search page.
func (c *Client) SearchTitles(ctx context.Context, query string) ([]TitleHit, error) {
	endpoint := c.baseURL.JoinPath("/subtitles/searchbytitle")
	params := url.Values{}
	params.Set("query", query)
	endpoint.RawQuery = params.Encode()
	page, err := c.fetch(ctx, endpoint.String(), maxPageBytes)
	if err != nil {
		return nil, err
	}
	return ParseTitles(page, endpoint)
}

// TitleRows lists the subtitle rows on a title page.
func (c *Client) TitleRows(ctx context.Context, titleURL string) ([]Row, error) {
	target, err := c.baseURL.Parse(titleURL)
	if err != nil {
		return nil, fmt.Errorf("subscene: parse title url: %w", err)
	}
	page, err := c.fetch(ctx, target.String(), maxPageBytes)
	if err != nil {
		return nil, err
	}
	return ParseRows(page, target)
}

// DownloadArchive follows a detail page to its archive and returns the bytes.
func (c *Client) DownloadArchive(ctx context.Context, detailURL string) ([]byte, error) {
	target, err := c.baseURL.Parse(detailURL)
	if err != nil {
		return nil, fmt.Errorf("subscene: parse detail url: %w", err)
	}
	page, err := c.fetch(ctx, target.String(), maxPageBytes)
	if err != nil {
		return nil, err
	}
	link, err := ParseDownloadLink(page, target)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, link, maxArchiveBytes)
}

func (c *Client) fetch(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("subscene: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscene: request %s: %w", target, err)
	}
	defer resp.Body.Close()
	if err := provider.CheckResponse(providerName, resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("subscene: read body: %w", err)
	}
	return data, nil
}

var titleYearPattern = regexp.MustCompile(`\((\d{4})\)\s*$`)

// ParseTitles extracts title hits from a search page. An empty result page
// yields no hits and no error.
func ParseTitles(page []byte, pageURL *url.URL) ([]TitleHit, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, provider.ParseError(providerName, "titles", err)
	}
	seen := map[string]struct{}{}
	var hits []TitleHit
	doc.Find("div.search-result div.title a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		abs := resolve(pageURL, href)
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		name := normSpace(s.Text())
		hit := TitleHit{Name: name, URL: abs}
		if m := titleYearPattern.FindStringSubmatch(name); m != nil {
			hit.Year, _ = strconv.Atoi(m[1])
			hit.Name = strings.TrimSpace(strings.TrimSuffix(name, m[0]))
		}
		hits = append(hits, hit)
	})
	return hits, nil
}

// ParseRows extracts the subtitle table of a title page.
func ParseRows(page []byte, pageURL *url.URL) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, provider.ParseError(providerName, "rows", err)
	}
	var rows []Row
	doc.Find("table tbody tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find("td.a1 a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		spans := link.Find("span")
		row := Row{
			DetailURL:       resolve(pageURL, href),
			Language:        normSpace(spans.Eq(0).Text()),
			Release:         normSpace(spans.Eq(1).Text()),
			HearingImpaired: tr.Find("td.a41").Length() > 0,
			Uploader:        normSpace(tr.Find("td.a5 a").Text()),
			Comment:         normSpace(tr.Find("td.a6").Text()),
		}
		row.Files, _ = strconv.Atoi(normSpace(tr.Find("td.a3").Text()))
		if row.Language == "" || row.Release == "" {
			return
		}
		rows = append(rows, row)
	})
	return rows, nil
}

// ParseDownloadLink returns the archive URL of a detail page.
func ParseDownloadLink(page []byte, pageURL *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", provider.ParseError(providerName, "detail", err)
	}
	href, ok := doc.Find("#downloadButton").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", provider.ParseError(providerName, "detail", errors.New("download button not found"))
	}
	return resolve(pageURL, href), nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
