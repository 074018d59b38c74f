// Package arrclient talks to Radarr and Sonarr over their v3 REST API.
package arrclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/jmylchreest/releasarr/internal/arrstatus"
	"github.com/jmylchreest/releasarr/internal/config"
	"github.com/jmylchreest/releasarr/internal/httpclient"
	"github.com/jmylchreest/releasarr/internal/library"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/observability"
	"github.com/jmylchreest/releasarr/internal/repository"
)

const (
	pathMovies = "/api/v3/movie"
	pathSeries = "/api/v3/series"

	headerAPIKey         = "X-Api-Key"
	maxErrorBodyReadSize = 1024
)

// Client fetches library contents. Each app gets its own resilient HTTP
// client so one unreachable app cannot trip the breaker of another.
type Client struct {
	cfg    config.LibraryConfig
	apps   repository.LibraryAppRepository
	logger *slog.Logger

	mu      sync.Mutex
	clients map[models.ULID]*httpclient.Client
}

// New creates a client. apps is used by FetchExisting to list the apps to
// query and may be nil when only FetchLibrary is needed.
func New(cfg config.LibraryConfig, apps repository.LibraryAppRepository) *Client {
	return &Client{
		cfg:     cfg,
		apps:    apps,
		logger:  slog.Default(),
		clients: make(map[models.ULID]*httpclient.Client),
	}
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = observability.WithComponent(logger, "arrclient")
	return c
}

func (c *Client) httpClient(app *models.LibraryApp) *httpclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.clients[app.ID]; ok {
		return hc
	}
	hc := httpclient.New(httpclient.Config{
		Name:              app.Name,
		Timeout:           c.cfg.HTTPTimeout,
		RetryAttempts:     httpclient.DefaultRetryAttempts,
		RetryDelay:        httpclient.DefaultRetryDelay,
		RetryMaxDelay:     httpclient.DefaultRetryMaxDelay,
		BackoffMultiplier: httpclient.DefaultBackoffMultiplier,
		BreakerFailures:   c.cfg.BreakerFailures,
		BreakerTimeout:    c.cfg.BreakerTimeout,
		RateLimit:         c.cfg.RateLimit,
		RateBurst:         c.cfg.RateBurst,
		UserAgent:         httpclient.DefaultConfig().UserAgent,
		Logger:            c.logger,
	})
	c.clients[app.ID] = hc
	return hc
}

// CircuitStates returns the breaker state of every app contacted so far,
// keyed by app name.
func (c *Client) CircuitStates() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.clients))
	for _, hc := range c.clients {
		out[hc.Name()] = hc.CircuitState()
	}
	return out
}

// FetchLibrary returns the full library of app: movies for Radarr, series
// for Sonarr.
func (c *Client) FetchLibrary(ctx context.Context, app *models.LibraryApp) ([]models.LibraryItem, error) {
	switch app.Kind {
	case models.LibraryKindRadarr:
		var movies []movieResource
		if err := c.get(ctx, app, pathMovies, &movies); err != nil {
			return nil, err
		}
		return moviesToItems(app, movies), nil
	case models.LibraryKindSonarr:
		var series []seriesResource
		if err := c.get(ctx, app, pathSeries, &series); err != nil {
			return nil, err
		}
		return seriesToItems(app, series), nil
	default:
		return nil, models.ErrInvalidLibraryKind
	}
}

// FetchExisting queries every enabled app serving mediaType. Failing apps
// are logged and skipped; an error is returned only when none answered.
func (c *Client) FetchExisting(ctx context.Context, mediaType models.MediaType) ([]arrstatus.ExternalEntry, error) {
	if c.apps == nil {
		return nil, errors.New("no library app repository configured")
	}
	apps, err := c.apps.GetEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing library apps: %w", err)
	}

	var entries []arrstatus.ExternalEntry
	var errs []error
	queried := 0
	for _, app := range apps {
		if app.Kind.MediaType() != mediaType {
			continue
		}
		queried++
		items, err := c.FetchLibrary(ctx, app)
		if err != nil {
			c.logger.Warn("library app unavailable",
				slog.String("app", app.Name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		for _, item := range items {
			entries = append(entries, arrstatus.ExternalEntry{App: app, Item: item})
		}
	}
	if queried > 0 && len(errs) == queried {
		return nil, errors.Join(errs...)
	}
	return entries, nil
}

// get performs a GET against app and decodes the JSON body into target.
func (c *Client) get(ctx context.Context, app *models.LibraryApp, path string, target any) error {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if app.APIKey != "" {
		header.Set(headerAPIKey, app.APIKey)
	}

	resp, err := c.httpClient(app).Get(ctx, strings.TrimRight(app.BaseURL, "/")+path, header)
	if err != nil {
		return fmt.Errorf("fetching %s from %s: %w", path, app.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyReadSize))
		return fmt.Errorf("%s returned status %d: %s", app.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding %s response: %w", app.Name, err)
	}
	return nil
}

func moviesToItems(app *models.LibraryApp, movies []movieResource) []models.LibraryItem {
	items := make([]models.LibraryItem, 0, len(movies))
	for _, m := range movies {
		items = append(items, models.LibraryItem{
			AppID:           app.ID,
			MediaType:       models.MediaTypeMovie,
			InternalID:      m.ID,
			TmdbID:          optionalID(m.TmdbID),
			Title:           m.Title,
			OriginalTitle:   m.OriginalTitle,
			TitleSlug:       m.TitleSlug,
			Year:            m.Year,
			AlternateTitles: titles(m.AlternateTitles),
		})
	}
	return items
}

func seriesToItems(app *models.LibraryApp, series []seriesResource) []models.LibraryItem {
	items := make([]models.LibraryItem, 0, len(series))
	for _, s := range series {
		items = append(items, models.LibraryItem{
			AppID:           app.ID,
			MediaType:       models.MediaTypeSeries,
			InternalID:      s.ID,
			TmdbID:          optionalID(s.TmdbID),
			TvdbID:          optionalID(s.TvdbID),
			Title:           s.Title,
			TitleSlug:       s.TitleSlug,
			Year:            s.Year,
			AlternateTitles: titles(s.AlternateTitles),
		})
	}
	return items
}

// optionalID maps the APIs' zero id to nil.
func optionalID(id int) *int {
	if id <= 0 {
		return nil
	}
	return &id
}

func titles(alts []alternateTitle) models.StringList {
	if len(alts) == 0 {
		return nil
	}
	out := make(models.StringList, 0, len(alts))
	for _, a := range alts {
		if t := strings.TrimSpace(a.Title); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var (
	_ library.Fetcher           = (*Client)(nil)
	_ arrstatus.ExistenceSource = (*Client)(nil)
)
