package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"briefd/internal/config"
	"briefd/internal/model"
)

func socialTestServer(t *testing.T, listing string) (*httptest.Server, *int) {
	t.Helper()
	tokenCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenCalls++
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client-id" || pass != "client-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"tok-123","expires_in":3600}`))
		case "/r/golang/new.json":
			if r.Header.Get("Authorization") != "Bearer tok-123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(listing))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return server, &tokenCalls
}

func socialConfig(serverURL string) config.SocialConfig {
	return config.SocialConfig{
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		UserAgent:       "briefd-test/1.0",
		TokenURL:        serverURL + "/api/v1/access_token",
		APIBaseURL:      serverURL,
		MaxPostAgeHours: 48,
	}
}

func TestSocialFetcherFiltersLinkPosts(t *testing.T) {
	recent := time.Now().Add(-2 * time.Hour).Unix()
	stale := time.Now().Add(-100 * time.Hour).Unix()

	// Six posts, exactly one qualifies: the others are a self post, a
	// stickied post, an adult-flagged post, a platform-media post and a
	// stale post.
	listing := fmt.Sprintf(`{"data":{"children":[
	  {"data":{"name":"t3_a","title":"Self post","url":"","selftext":"body","is_self":true,"created_utc":%d}},
	  {"data":{"name":"t3_b","title":"Pinned","url":"https://example.com/pinned","domain":"example.com","stickied":true,"created_utc":%d}},
	  {"data":{"name":"t3_c","title":"Adult","url":"https://example.com/adult","domain":"example.com","over_18":true,"created_utc":%d}},
	  {"data":{"name":"t3_d","title":"Image","url":"https://i.redd.it/x.png","domain":"i.redd.it","created_utc":%d}},
	  {"data":{"name":"t3_e","title":"Old news","url":"https://example.com/old","domain":"example.com","created_utc":%d}},
	  {"data":{"name":"t3_f","title":"Good article","url":"https://example.com/article","domain":"example.com","author":"alice","score":42,"num_comments":7,"created_utc":%d}}
	]}}`, recent, recent, recent, recent, stale, recent)

	server, _ := socialTestServer(t, listing)
	defer server.Close()

	f := NewSocialFetcher(socialConfig(server.URL), 5*time.Second, zap.NewNop())
	src := &model.Source{URL: "golang", Type: model.SourceTypeSocialLink}

	result, err := f.Fetch(context.Background(), src, time.Time{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected exactly 1 qualifying post, got %d", len(result.Items))
	}

	it := result.Items[0]
	if it.GUID != "reddit:t3_f" {
		t.Fatalf("expected fullname-based guid, got %q", it.GUID)
	}
	if it.Link != "https://example.com/article" {
		t.Fatalf("unexpected link %q", it.Link)
	}
	if it.Author != "alice" {
		t.Fatalf("unexpected author %q", it.Author)
	}
	if it.RawContent != "score: 42 | comments: 7 | posted by alice in r/golang" {
		t.Fatalf("unexpected raw content %q", it.RawContent)
	}
}

func TestSocialFetcherTokenIsCached(t *testing.T) {
	listing := `{"data":{"children":[]}}`
	server, tokenCalls := socialTestServer(t, listing)
	defer server.Close()

	f := NewSocialFetcher(socialConfig(server.URL), 5*time.Second, zap.NewNop())
	src := &model.Source{URL: "golang", Type: model.SourceTypeSocialLink}

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), src, time.Time{}); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if *tokenCalls != 1 {
		t.Fatalf("expected a single token request, got %d", *tokenCalls)
	}
}

func TestSocialFetcherValidate(t *testing.T) {
	f := NewSocialFetcher(config.SocialConfig{}, time.Second, zap.NewNop())

	valid := []string{"go", "golang", "Machine_Learning", "a2345678901234567890b"}
	for _, id := range valid {
		if err := f.Validate(context.Background(), id); err != nil {
			t.Fatalf("expected %q valid: %v", id, err)
		}
	}

	invalid := []string{"", "a", "has space", "has-dash", "a23456789012345678901x", "r/golang"}
	for _, id := range invalid {
		if err := f.Validate(context.Background(), id); !errors.Is(err, ErrInvalidSource) {
			t.Fatalf("expected %q invalid, got %v", id, err)
		}
	}
}

func TestSocialFetcherMissingCommunityIsInvalid(t *testing.T) {
	server, _ := socialTestServer(t, `{"data":{"children":[]}}`)
	defer server.Close()

	f := NewSocialFetcher(socialConfig(server.URL), 5*time.Second, zap.NewNop())
	src := &model.Source{URL: "gone_sub", Type: model.SourceTypeSocialLink}

	_, err := f.Fetch(context.Background(), src, time.Time{})
	if !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource for 404 community, got %v", err)
	}
}
