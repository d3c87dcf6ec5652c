package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// articleSelectors are tried in order when looking for the main content node.
var articleSelectors = []string{
	"article",
	"main",
	"[role=main]",
	"#content",
	".post-content",
	".article-body",
	".entry-content",
}

// chromeSelectors are stripped before text extraction.
const chromeSelectors = "script, style, nav, header, footer, aside, form, iframe, noscript"

// WebExtractor fetches a page on demand and extracts the main article text.
// It is not registered for scheduled fetching: the processing worker uses it
// to pull full content for items whose source only carries a teaser.
//
// Failures never become pipeline errors. Extract returns an empty string and
// processing continues with the original content.
type WebExtractor struct {
	client       *http.Client
	logger       *zap.Logger
	allowPrivate bool // tests only
}

func NewWebExtractor(timeout time.Duration, logger *zap.Logger) *WebExtractor {
	return &WebExtractor{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				// Re-check every redirect hop against the SSRF guard.
				return CheckURL(req.URL.String())
			},
		},
		logger: logger,
	}
}

// CheckURL is the SSRF guard: only http/https on standard ports, and the
// host must not resolve to loopback, private, link-local or unspecified
// address space.
func CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		return fmt.Errorf("non-standard port %s", port)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}

	ips := []net.IP{}
	if ip := net.ParseIP(host); ip != nil {
		ips = append(ips, ip)
	} else {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return fmt.Errorf("cannot resolve host %q: %w", host, err)
		}
		ips = resolved
	}

	for _, ip := range ips {
		if isForbiddenIP(ip) {
			return fmt.Errorf("address %s is not publicly routable", ip)
		}
	}
	return nil
}

func isForbiddenIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// Extract fetches the page and returns the main article text, or "" on any
// failure.
func (w *WebExtractor) Extract(ctx context.Context, pageURL string) string {
	if !w.allowPrivate {
		if err := CheckURL(pageURL); err != nil {
			w.logger.Debug("Web extract rejected by SSRF guard",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			return ""
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "briefd-extract/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Debug("Web extract fetch failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		w.logger.Debug("Web extract parse failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}

	doc.Find(chromeSelectors).Remove()

	for _, sel := range articleSelectors {
		node := doc.Find(sel).First()
		if node.Length() > 0 {
			if text := collapseWhitespace(node.Text()); text != "" {
				return text
			}
		}
	}

	return collapseWhitespace(doc.Find("body").Text())
}
