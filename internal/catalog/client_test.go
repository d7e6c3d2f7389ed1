package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hatsubai/internal/config"
	"hatsubai/internal/release"
)

// fakeSpotify serves the token, search and artist-albums endpoints.
type fakeSpotify struct {
	mu           sync.Mutex
	tokenCalls   int
	apiCalls     int
	rejectTokens map[string]bool
	lastAlbumsQ  string
	failToken    bool
}

func (f *fakeSpotify) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokenCalls++
		n := f.tokenCalls
		fail := f.failToken
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client-id" || secret != "client-secret" {
			t.Errorf("token request without expected Basic auth: ok=%v id=%q", ok, id)
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", r.PostForm.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-" + string(rune('0'+n)),
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		f.mu.Lock()
		f.apiCalls++
		rejected := f.rejectTokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		f.mu.Unlock()
		if rejected {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"status":401,"message":"The access token expired"}}`))
			return false
		}
		return true
	}
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		q := r.URL.Query()
		if q.Get("type") != "artist" || q.Get("limit") != "1" {
			t.Errorf("search query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		switch q.Get("q") {
		case "Nobody":
			w.Write([]byte(`{"artists":{"items":[]}}`))
		case "Boom":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"status":500,"message":"boom"}}`))
		case "Aimerr":
			w.Write([]byte(`{"artists":{"items":[{"id":"zz","name":"Completely Different Band"}]}}`))
		default:
			w.Write([]byte(`{"artists":{"items":[{"id":"art1","name":"` + q.Get("q") + `","external_urls":{"spotify":"https://open.spotify.com/artist/art1"}}]}}`))
		}
	})
	mux.HandleFunc("/v1/artists/art1/albums", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		f.mu.Lock()
		f.lastAlbumsQ = r.URL.RawQuery
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"id":"alb1","name":"Night Drive","album_type":"single","album_group":"single",
			 "release_date":"2026-10-18","release_date_precision":"day",
			 "external_urls":{"spotify":"https://open.spotify.com/album/alb1"},
			 "images":[{"url":"https://i.scdn.co/image/alb1","height":640,"width":640}]},
			{"id":"alb2","name":"Old Record","album_type":"album","album_group":"album",
			 "release_date":"2019","release_date_precision":"year"}
		]}`))
	})
	return mux
}

func (f *fakeSpotify) calls() (token, api int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.apiCalls
}

func (f *fakeSpotify) albumsQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAlbumsQ
}

func newTestClient(t *testing.T, f *fakeSpotify, interval int) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	var cfg config.Config
	cfg.Spotify.ClientID = "client-id"
	cfg.Spotify.ClientSecret = "client-secret"
	cfg.Spotify.TokenURL = srv.URL + "/api/token"
	cfg.Spotify.APIBaseURL = srv.URL + "/v1/"
	cfg.Spotify.TimeoutSeconds = 5
	cfg.Spotify.RequestIntervalMS = interval
	cfg.Spotify.PageSize = 20
	return NewClient(cfg, NilLogger)
}

func TestFindArtistAndReleases(t *testing.T) {
	f := &fakeSpotify{}
	c := newTestClient(t, f, 0)

	artist, entries, err := c.FindArtistAndReleases(context.Background(), "Aimer")
	if err != nil {
		t.Fatalf("FindArtistAndReleases() error = %v", err)
	}
	if artist.ID != "art1" || artist.Name != "Aimer" {
		t.Errorf("artist = %+v", artist)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	want := release.Entry{
		ID: "alb1", Title: "Night Drive", Type: "single",
		ReleaseDate: "2026-10-18", Precision: "day",
		URL: "https://open.spotify.com/album/alb1", ImageURL: "https://i.scdn.co/image/alb1",
	}
	if entries[0] != want {
		t.Errorf("entries[0] = %+v, want %+v", entries[0], want)
	}
	if entries[1].URL != "https://open.spotify.com/album/alb2" {
		t.Errorf("missing external url should fall back to the album link, got %q", entries[1].URL)
	}
	query := f.albumsQuery()
	for _, group := range []string{"album", "single", "compilation", "limit=20"} {
		if !strings.Contains(query, group) {
			t.Errorf("albums query %q missing %q", query, group)
		}
	}
	if strings.Contains(query, "appears_on") {
		t.Errorf("albums query %q should not request appears_on", query)
	}
	if tokens, _ := f.calls(); tokens != 1 {
		t.Errorf("token fetched %d times, want 1", tokens)
	}
}

func TestFindArtistNotFound(t *testing.T) {
	c := newTestClient(t, &fakeSpotify{}, 0)

	_, err := c.FindArtist(context.Background(), "Nobody")
	if !errors.Is(err, ErrArtistNotFound) {
		t.Fatalf("FindArtist() error = %v, want ErrArtistNotFound", err)
	}
}

func TestFindArtistServerError(t *testing.T) {
	c := newTestClient(t, &fakeSpotify{}, 0)

	_, err := c.FindArtist(context.Background(), "Boom")
	if err == nil || errors.Is(err, ErrArtistNotFound) {
		t.Fatalf("FindArtist() error = %v, want a request error", err)
	}
}

func TestFindArtistSimilarityGate(t *testing.T) {
	c := newTestClient(t, &fakeSpotify{}, 0)
	c.minSimilarity = 0.8

	if _, err := c.FindArtist(context.Background(), "Aimerr"); !errors.Is(err, ErrArtistNotFound) {
		t.Errorf("distant top match should be rejected, got %v", err)
	}
	if _, err := c.FindArtist(context.Background(), "Aimer"); err != nil {
		t.Errorf("exact top match should pass, got %v", err)
	}
}

func TestTokenReusedUntilRejected(t *testing.T) {
	f := &fakeSpotify{rejectTokens: map[string]bool{}}
	c := newTestClient(t, f, 0)
	ctx := context.Background()

	if err := c.EnsureToken(ctx); err != nil {
		t.Fatalf("EnsureToken() error = %v", err)
	}
	if err := c.EnsureToken(ctx); err != nil {
		t.Fatalf("EnsureToken() error = %v", err)
	}
	if tokens, _ := f.calls(); tokens != 1 {
		t.Fatalf("valid token should be reused, fetched %d times", tokens)
	}

	f.mu.Lock()
	f.rejectTokens["tok-1"] = true
	f.mu.Unlock()

	if _, err := c.FindArtist(ctx, "Aimer"); err != nil {
		t.Fatalf("FindArtist() after 401 should succeed with a fresh token, got %v", err)
	}
	if tokens, _ := f.calls(); tokens != 2 {
		t.Errorf("token fetched %d times, want 2 (initial + refresh after 401)", tokens)
	}
	if tok := c.tokens.Cached(); tok == nil || tok.AccessToken != "tok-2" {
		t.Errorf("cached token = %+v, want tok-2", tok)
	}
}

func TestEnsureTokenFailure(t *testing.T) {
	f := &fakeSpotify{failToken: true}
	c := newTestClient(t, f, 0)

	if err := c.EnsureToken(context.Background()); err == nil {
		t.Fatal("EnsureToken() should fail when the token endpoint rejects the client")
	}
	if _, err := c.FindArtist(context.Background(), "Aimer"); err == nil {
		t.Error("API calls without a token should fail")
	}
	if _, api := f.calls(); api != 0 {
		t.Errorf("no API request should reach the server without a token, got %d", api)
	}
}

func TestMissingCredentials(t *testing.T) {
	ts := NewTokenSource("", "", "http://127.0.0.1:0/token", nil)
	_, err := ts.Token()
	if err == nil || !strings.Contains(err.Error(), "missing client id/secret") {
		t.Errorf("Token() error = %v, want missing credentials", err)
	}
}

func TestRequestsArePaced(t *testing.T) {
	c := newTestClient(t, &fakeSpotify{}, 40)

	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, _, err := c.FindArtistAndReleases(context.Background(), "Aimer"); err != nil {
			t.Fatalf("FindArtistAndReleases() error = %v", err)
		}
	}
	// four requests, the first one free: at least three intervals
	if elapsed := time.Since(start); elapsed < 110*time.Millisecond {
		t.Errorf("four paced requests took %v, want >= ~120ms", elapsed)
	}
}

func TestPacingHonoursContext(t *testing.T) {
	c := newTestClient(t, &fakeSpotify{}, 1000)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := c.FindArtist(ctx, "Aimer"); err != nil {
		t.Fatalf("first request should not wait, got %v", err)
	}
	cancel()
	if _, err := c.FindArtist(ctx, "Aimer"); err == nil {
		t.Error("a cancelled context should abort the paced wait")
	}
}
