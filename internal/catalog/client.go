package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"hatsubai/internal/config"
	"hatsubai/internal/release"
	"hatsubai/internal/util"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var NilLogger = log.New(io.Discard, "", 0)

var ErrArtistNotFound = errors.New("artist not found on Spotify")

var releaseGroups = []spotify.AlbumType{
	spotify.AlbumTypeAlbum,
	spotify.AlbumTypeSingle,
	spotify.AlbumTypeCompilation,
}

type Artist struct {
	ID   string
	Name string
	URL  string
}

type Client struct {
	api           *spotify.Client
	tokens        *TokenSource
	limiter       *rate.Limiter
	pageSize      int
	minSimilarity float64
	logger        *log.Logger
}

func NewClient(cfg config.Config, appLogger *log.Logger) *Client {
	if appLogger == nil {
		appLogger = log.Default()
	}
	timeout := cfg.SpotifyTimeout()
	tokens := NewTokenSource(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.TokenURL,
		&http.Client{Timeout: timeout})
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &oauth2.Transport{Source: tokens, Base: http.DefaultTransport},
	}

	limit := rate.Inf
	if interval := cfg.RequestInterval(); interval > 0 {
		limit = rate.Every(interval)
	}

	return &Client{
		api:           spotify.New(httpClient, spotify.WithBaseURL(cfg.Spotify.APIBaseURL)),
		tokens:        tokens,
		limiter:       rate.NewLimiter(limit, 1),
		pageSize:      cfg.Spotify.PageSize,
		minSimilarity: cfg.Spotify.MinMatchSimilarity,
		logger:        appLogger,
	}
}

func (c *Client) GetLogger() *log.Logger {
	if c.logger == nil {
		return NilLogger
	}
	return c.logger
}

func (c *Client) SetLogger(logger *log.Logger) {
	if logger == nil {
		c.logger = NilLogger
	} else {
		c.logger = logger
	}
}

// EnsureToken makes sure an access token is cached before a scan starts. A
// failure is logged and returned; callers carry on and every API call will
// try the exchange again.
func (c *Client) EnsureToken(ctx context.Context) error {
	hadToken := c.tokens.Cached().Valid()
	tok, err := c.tokens.TokenContext(ctx)
	if err != nil {
		log.Printf("  %s Failed to get Spotify access token: %v", util.RedBold("!!! ERROR [SPOTIFY]"), err)
		return err
	}
	if !hadToken {
		c.GetLogger().Printf("  %s Access token acquired (%s, expires %s).",
			util.Cyan("[SPOTIFY]"), util.Gray(util.Mask(tok.AccessToken, 6)), tok.Expiry.Format("15:04:05"))
	}
	return nil
}

// call paces fn through the shared limiter and retries once with a fresh
// token when the API answers 401.
func (c *Client) call(ctx context.Context, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := fn()
	if !isUnauthorized(err) {
		return err
	}
	c.GetLogger().Printf("  %s Access token rejected, refreshing.", util.Yellow("[SPOTIFY]"))
	c.tokens.Invalidate()
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn()
}

func isUnauthorized(err error) bool {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Status == http.StatusUnauthorized
	}
	return false
}

// FindArtist searches by free-text name and takes the top match only.
func (c *Client) FindArtist(ctx context.Context, name string) (Artist, error) {
	var result *spotify.SearchResult
	err := c.call(ctx, func() error {
		var err error
		result, err = c.api.Search(ctx, name, spotify.SearchTypeArtist, spotify.Limit(1))
		return err
	})
	if err != nil {
		return Artist{}, fmt.Errorf("failed to search artist '%s': %w", name, err)
	}

	currentLogger := c.GetLogger()
	if result.Artists == nil || len(result.Artists.Artists) == 0 {
		currentLogger.Printf("  %s Artist '%s' %s on %s.",
			util.Cyan("[SPOTIFY]"), name, util.RedBold("not found"), util.Cyan("Spotify"))
		return Artist{}, fmt.Errorf("%w: '%s'", ErrArtistNotFound, name)
	}

	top := result.Artists.Artists[0]
	if c.minSimilarity > 0 {
		score := strutil.Similarity(strings.ToLower(name), strings.ToLower(top.Name), metrics.NewJaroWinkler())
		if score < c.minSimilarity {
			currentLogger.Printf("  %s Top match %s for '%s' scored %.2f (< %.2f), skipping.",
				util.Yellow("[SPOTIFY]"), util.Blue(fmt.Sprintf("'%s'", top.Name)), name, score, c.minSimilarity)
			return Artist{}, fmt.Errorf("%w: top match '%s' too far from '%s'", ErrArtistNotFound, top.Name, name)
		}
	}

	artist := Artist{ID: string(top.ID), Name: top.Name, URL: top.ExternalURLs["spotify"]}
	currentLogger.Printf("  %s Artist %s (ID: %s)",
		util.Cyan("[SPOTIFY]"),
		util.Blue(fmt.Sprintf("'%s'", artist.Name)),
		util.Yellow(artist.ID))
	return artist, nil
}

// ArtistReleases returns the first page of the artist's albums, singles and
// compilations.
func (c *Client) ArtistReleases(ctx context.Context, artistID string) ([]release.Entry, error) {
	var page *spotify.SimpleAlbumPage
	err := c.call(ctx, func() error {
		var err error
		page, err = c.api.GetArtistAlbums(ctx, spotify.ID(artistID), releaseGroups, spotify.Limit(c.pageSize))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch releases for artist ID %s: %w", artistID, err)
	}

	entries := make([]release.Entry, 0, len(page.Albums))
	for _, album := range page.Albums {
		entries = append(entries, toEntry(album))
	}
	c.GetLogger().Printf("  %s Releases: %s on the first page.",
		util.Cyan("[SPOTIFY]"), util.Green(fmt.Sprint(len(entries))))
	return entries, nil
}

func (c *Client) FindArtistAndReleases(ctx context.Context, name string) (Artist, []release.Entry, error) {
	artist, err := c.FindArtist(ctx, name)
	if err != nil {
		return Artist{}, nil, err
	}
	entries, err := c.ArtistReleases(ctx, artist.ID)
	if err != nil {
		return artist, nil, err
	}
	return artist, entries, nil
}

func toEntry(album spotify.SimpleAlbum) release.Entry {
	kind := strings.ToLower(album.AlbumType)
	if kind == "" {
		kind = strings.ToLower(album.AlbumGroup)
	}
	url := album.ExternalURLs["spotify"]
	if url == "" {
		url = "https://open.spotify.com/album/" + string(album.ID)
	}
	var image string
	if len(album.Images) > 0 {
		image = album.Images[0].URL
	}
	return release.Entry{
		ID:          string(album.ID),
		Title:       album.Name,
		Type:        kind,
		ReleaseDate: album.ReleaseDate,
		Precision:   album.ReleaseDatePrecision,
		URL:         url,
		ImageURL:    image,
	}
}
