package comick

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lysyi3m/manga-notifier/app/cache"
)

const (
	DefaultBaseURL  = "https://api.comick.fun"
	DefaultProxyURL = "https://api.zenrows.com/v1/"
	DefaultProbeURL = "https://httpbin.org/ip"

	proxyTimeout = 30 * time.Second
	probeTimeout = 10 * time.Second
)

var (
	ErrProxyDisabled = errors.New("proxy API key not configured")
	ErrNoChapters    = errors.New("response has no chapters field")
)

// ResolutionCache stores client manga id resolutions between lookups
type ResolutionCache interface {
	GetManga(ctx context.Context, id string) (*cache.MangaEntry, bool, error)
	SetManga(ctx context.Context, id string, entry cache.MangaEntry) error
}

type Options struct {
	BaseURL     string
	ProxyURL    string
	ProxyAPIKey string
	ProbeURL    string
	UserAgent   string
	Timeout     time.Duration // direct fetch timeout
	HTTPClient  *http.Client
	Cache       ResolutionCache // optional
}

// Client fetches chapter lists and manga metadata from the comick API,
// through the scraping proxy when configured and directly otherwise.
type Client struct {
	baseURL     string
	proxyURL    string
	proxyAPIKey string
	probeURL    string
	userAgent   string
	timeout     time.Duration
	httpClient  *http.Client
	cache       ResolutionCache
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		proxyURL:    opts.ProxyURL,
		proxyAPIKey: opts.ProxyAPIKey,
		probeURL:    opts.ProbeURL,
		userAgent:   opts.UserAgent,
		timeout:     opts.Timeout,
		httpClient:  opts.HTTPClient,
		cache:       opts.Cache,
	}

	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.proxyURL == "" {
		c.proxyURL = DefaultProxyURL
	}
	if c.probeURL == "" {
		c.probeURL = DefaultProbeURL
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}

	return c
}

// ProxyEnabled reports whether a proxy API key is configured
func (c *Client) ProxyEnabled() bool {
	return c.proxyAPIKey != ""
}

func (c *Client) chaptersURL(hid string) string {
	return fmt.Sprintf("%s/comic/%s/chapters?date-order=2&lang=en", c.baseURL, url.PathEscape(hid))
}

func (c *Client) comicURL(id string) string {
	return fmt.Sprintf("%s/comic/%s/", c.baseURL, url.PathEscape(id))
}

// FetchChapters returns the chapter list of hid, newest first. It never
// fails: an empty result means the source was unavailable.
func (c *Client) FetchChapters(ctx context.Context, hid string) []Chapter {
	if c.ProxyEnabled() {
		chapters, err := c.FetchChaptersViaProxy(ctx, hid)
		if err == nil {
			slog.Debug("Fetched chapters via proxy", "hid", hid, "count", len(chapters))
			return chapters
		}
		slog.Warn("Proxy fetch failed, trying direct request", "hid", hid, "error", err)
	}

	chapters, err := c.FetchChaptersDirect(ctx, hid)
	if err != nil {
		slog.Error("Failed to fetch chapters", "hid", hid, "error", err)
		return nil
	}

	slog.Debug("Fetched chapters directly", "hid", hid, "count", len(chapters))
	return chapters
}

// FetchChaptersViaProxy fetches the chapter list of hid through the proxy only
func (c *Client) FetchChaptersViaProxy(ctx context.Context, hid string) ([]Chapter, error) {
	if !c.ProxyEnabled() {
		return nil, ErrProxyDisabled
	}

	body, err := c.getViaProxy(ctx, c.chaptersURL(hid))
	if err != nil {
		return nil, err
	}

	return decodeChapters(body)
}

// FetchChaptersDirect fetches the chapter list of hid without the proxy
func (c *Client) FetchChaptersDirect(ctx context.Context, hid string) ([]Chapter, error) {
	body, err := c.getDirect(ctx, c.chaptersURL(hid))
	if err != nil {
		return nil, err
	}

	return decodeChapters(body)
}

// ResolveManga maps a client manga id to its handle and title. It returns
// nil when the source does not know the id or is unavailable.
func (c *Client) ResolveManga(ctx context.Context, id string) *MangaInfo {
	if c.cache != nil {
		entry, ok, err := c.cache.GetManga(ctx, id)
		if err != nil {
			slog.Warn("Resolution cache lookup failed", "id", id, "error", err)
		} else if ok {
			return &MangaInfo{HID: entry.HID, Title: entry.Title}
		}
	}

	info, err := c.FetchMangaInfo(ctx, id)
	if err != nil {
		slog.Error("Failed to resolve manga", "id", id, "error", err)
		return nil
	}

	if c.cache != nil {
		if err := c.cache.SetManga(ctx, id, cache.MangaEntry{HID: info.HID, Title: info.Title}); err != nil {
			slog.Warn("Failed to cache manga resolution", "id", id, "error", err)
		}
	}

	return info
}

// FetchMangaInfo reads the handle and title of a client manga id from the source
func (c *Client) FetchMangaInfo(ctx context.Context, id string) (*MangaInfo, error) {
	target := c.comicURL(id)

	var body []byte
	var err error
	if c.ProxyEnabled() {
		body, err = c.getViaProxy(ctx, target)
		if err != nil {
			slog.Warn("Proxy fetch failed, trying direct request", "id", id, "error", err)
			body, err = c.getDirect(ctx, target)
		}
	} else {
		body, err = c.getDirect(ctx, target)
	}
	if err != nil {
		return nil, err
	}

	var resp comicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, describeInvalidBody(body, err)
	}

	if resp.Comic.HID == "" || resp.Comic.Title == "" {
		return nil, fmt.Errorf("missing hid or title for manga %s", id)
	}

	return &MangaInfo{HID: resp.Comic.HID, Title: resp.Comic.Title}, nil
}

// TestProxy checks that the proxy answers a trivial request
func (c *Client) TestProxy(ctx context.Context) bool {
	if !c.ProxyEnabled() {
		slog.Warn("Proxy API key not configured")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("url", c.probeURL)
	params.Set("apikey", c.proxyAPIKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.proxyURL+"?"+params.Encode(), nil)
	if err != nil {
		slog.Error("Failed to create proxy probe request", "error", err)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Proxy connection test failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		slog.Error("Proxy connection test failed", "status", resp.StatusCode)
		return false
	}

	slog.Info("Proxy connection test successful")
	return true
}

func (c *Client) getViaProxy(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, proxyTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("url", target)
	params.Set("apikey", c.proxyAPIKey)
	params.Set("js_render", "true")
	params.Set("premium_proxy", "true")

	req, err := http.NewRequestWithContext(ctx, "GET", c.proxyURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req)
}

func (c *Client) getDirect(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusForbidden {
			slog.Warn("Source returned 403, bot protection is likely active; configure ZENROWS_API_KEY to fetch through the proxy")
		}
		return nil, err
	}

	return body, nil
}

// StatusError is returned for non-200 responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.Code, e.Body)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if reason, ok := detectChallenge(body); ok {
			slog.Warn("Bot protection challenge detected", "url", req.URL.Host, "marker", reason)
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: preview(body)}
	}

	return body, nil
}

func decodeChapters(body []byte) ([]Chapter, error) {
	var resp chaptersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, describeInvalidBody(body, err)
	}

	if resp.Chapters == nil {
		return nil, ErrNoChapters
	}

	return *resp.Chapters, nil
}

func describeInvalidBody(body []byte, err error) error {
	if reason, ok := detectChallenge(body); ok {
		return fmt.Errorf("received bot protection challenge (%s) instead of JSON", reason)
	}
	return fmt.Errorf("invalid JSON response: %w: %s", err, preview(body))
}
