// Package metadata fetches popularity data for catalog kinds from The Movie
// Database (TMDB) v3 API.
//
// Requests are rate limited and pass through a circuit breaker so that an
// unavailable API fails fast instead of stalling every popular listing.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/poiesic/plexrec/core"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the TMDB v3 API root.
	DefaultBaseURL = "https://api.themoviedb.org/3"

	// DefaultRateLimit is the sustained request rate in requests per second.
	DefaultRateLimit = 20
	// DefaultBurst is the maximum request burst.
	DefaultBurst = 5

	breakerName = "tmdb-api"
)

// MediaType is a TMDB media collection.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

// MediaTypeFor maps a catalog kind onto the TMDB collection that serves it.
// Anime is listed under tv.
func MediaTypeFor(kind core.Kind) (MediaType, error) {
	switch kind {
	case core.KindMovies:
		return MediaMovie, nil
	case core.KindSeries, core.KindAnime:
		return MediaTV, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrInvalidKind, string(kind))
}

// Client is a TMDB v3 client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*page]
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL overrides the API root, e.g. for a proxy or a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base url %q", baseURL)
		}
		c.baseURL = strings.TrimSuffix(baseURL, "/")
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for requests.
// Default has a 10 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client must not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithRateLimit sets the sustained rate in requests per second and the burst size.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) error {
		if perSecond <= 0 || burst < 1 {
			return fmt.Errorf("invalid rate limit %v/s burst %d", perSecond, burst)
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "tmdb")
		return nil
	}
}

// NewClient creates a TMDB client. An empty apiKey yields ErrNoAPIKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(DefaultRateLimit, DefaultBurst),
		logger:     slog.Default().With("component", "tmdb"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.breaker = gobreaker.NewCircuitBreaker[*page](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejected key or a bad request says nothing about API health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidMediaType) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// Popular returns one page of the most popular titles of mediaType.
func (c *Client) Popular(ctx context.Context, mediaType MediaType, pageNum int) ([]core.Item, error) {
	if pageNum < 1 {
		pageNum = 1
	}
	params := url.Values{"page": {strconv.Itoa(pageNum)}}
	return c.list(ctx, mediaType, string(mediaType)+"/popular", params)
}

// Search returns the first page of titles of mediaType matching query.
func (c *Client) Search(ctx context.Context, mediaType MediaType, query string) ([]core.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []core.Item{}, nil
	}
	params := url.Values{"query": {query}}
	return c.list(ctx, mediaType, "search/"+string(mediaType), params)
}

func (c *Client) list(ctx context.Context, mediaType MediaType, path string, params url.Values) ([]core.Item, error) {
	if mediaType != MediaMovie && mediaType != MediaTV {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMediaType, string(mediaType))
	}

	p, err := c.breaker.Execute(func() (*page, error) {
		return c.get(ctx, path, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("tmdb request rejected by circuit breaker", "path", path)
		}
		return nil, fmt.Errorf("tmdb %s: %w", path, err)
	}
	return p.items(), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.redact(err)
	}
	defer resp.Body.Close()

	c.logger.Debug("tmdb request", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode tmdb response: %w", err)
	}
	return &p, nil
}

// redact strips the API key from the request URL carried by transport errors.
func (c *Client) redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, url.QueryEscape(c.apiKey), "REDACTED")
		uerr.URL = strings.ReplaceAll(uerr.URL, c.apiKey, "REDACTED")
	}
	return err
}

type page struct {
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
	Results    []result `json:"results"`
}

type result struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	GenreIDs     []int   `json:"genre_ids"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	Popularity   float64 `json:"popularity"`
}

// items converts results to catalog items, skipping untitled ones.
// Genre ids are not resolved to names.
func (p *page) items() []core.Item {
	items := make([]core.Item, 0, len(p.Results))
	for _, r := range p.Results {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = strings.TrimSpace(r.Name)
		}
		if title == "" {
			continue
		}
		date := r.ReleaseDate
		if date == "" {
			date = r.FirstAirDate
		}
		year := ""
		if len(date) >= 4 {
			year = date[:4]
		}
		pos := len(items)
		items = append(items, core.Item{
			Position:    pos,
			OrigIndex:   pos,
			ID:          strconv.FormatInt(r.ID, 10),
			Title:       title,
			Description: r.Overview,
			Year:        year,
			Rating:      core.Float(r.VoteAverage),
			Popularity:  core.Float(r.Popularity),
			Extra:       map[string]string{"source": "tmdb"},
		})
	}
	return items
}
