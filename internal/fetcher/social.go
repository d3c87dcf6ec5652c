package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"briefd/internal/config"
	"briefd/internal/model"
)

// identifierPattern is the platform's community-name rule.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// mediaHostDomains are the platform's own media hosts; link posts pointing at
// them carry no external article worth scoring.
var mediaHostDomains = map[string]struct{}{
	"i.redd.it":      {},
	"v.redd.it":      {},
	"reddit.com":     {},
	"redd.it":        {},
	"www.reddit.com": {},
}

// SocialFetcher lists recent link posts from a community on the social
// platform using a client-credentials OAuth token.
type SocialFetcher struct {
	cfg    config.SocialConfig
	client *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewSocialFetcher(cfg config.SocialConfig, timeout time.Duration, logger *zap.Logger) *SocialFetcher {
	return &SocialFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (f *SocialFetcher) Type() model.SourceType {
	return model.SourceTypeSocialLink
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached client-credentials access token, refreshing it one
// minute before expiry.
func (f *SocialFetcher) token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.accessToken != "" && time.Now().Before(f.tokenExpiry.Add(-time.Minute)) {
		return f.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(f.cfg.ClientID, f.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: unexpected status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("token decode: %w", err)
	}

	f.accessToken = tr.AccessToken
	f.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return f.accessToken, nil
}

// post is the subset of the listing payload the filter needs.
type post struct {
	Name        string  `json:"name"` // platform fullname, e.g. t3_abc123
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Author      string  `json:"author"`
	Domain      string  `json:"domain"`
	Selftext    string  `json:"selftext"`
	IsSelf      bool    `json:"is_self"`
	Stickied    bool    `json:"stickied"`
	Over18      bool    `json:"over_18"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch lists recent posts and keeps only external link posts: self/text,
// stickied, adult-flagged, platform-media-host, and stale posts are dropped.
func (f *SocialFetcher) Fetch(ctx context.Context, src *model.Source, since time.Time) (*FetchResult, error) {
	identifier := src.URL
	if err := f.Validate(ctx, identifier); err != nil {
		return nil, err
	}

	tok, err := f.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("social token: %w", err)
	}

	listURL := fmt.Sprintf("%s/r/%s/new.json?limit=50", strings.TrimSuffix(f.cfg.APIBaseURL, "/"), identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("social listing %s: %w", identifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: community %q returned %d", ErrInvalidSource, identifier, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("social listing %s: unexpected status %d", identifier, resp.StatusCode)
	}

	var listing listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("social listing decode: %w", err)
	}

	maxAge := time.Duration(f.cfg.MaxPostAgeHours) * time.Hour
	now := time.Now()
	result := &FetchResult{}

	for _, child := range listing.Data.Children {
		p := child.Data
		if !f.qualifies(p, now, maxAge, since) {
			continue
		}

		result.Items = append(result.Items, FetchedItem{
			GUID:        "reddit:" + p.Name,
			Title:       p.Title,
			Link:        p.URL,
			Author:      p.Author,
			PublishedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
			RawContent: fmt.Sprintf("score: %d | comments: %d | posted by %s in r/%s",
				p.Score, p.NumComments, p.Author, identifier),
			CleanContent: p.Title,
		})
	}

	return result, nil
}

func (f *SocialFetcher) qualifies(p post, now time.Time, maxAge time.Duration, since time.Time) bool {
	if p.IsSelf || p.URL == "" {
		return false
	}
	if p.Stickied || p.Over18 {
		return false
	}
	if _, media := mediaHostDomains[strings.ToLower(p.Domain)]; media {
		return false
	}
	created := time.Unix(int64(p.CreatedUTC), 0)
	if maxAge > 0 && now.Sub(created) > maxAge {
		return false
	}
	if !since.IsZero() && created.Before(since) {
		return false
	}
	return true
}

// Validate enforces the platform's 2-21 character alphanumeric/underscore
// community-name rule. This check is local and permanent.
func (f *SocialFetcher) Validate(ctx context.Context, identifier string) error {
	if !identifierPattern.MatchString(identifier) {
		return fmt.Errorf("%w: invalid community name %q", ErrInvalidSource, identifier)
	}
	return nil
}
