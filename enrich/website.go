package enrich

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// WebsiteProber fetches a lead's own website and harvests contact links.
// Runs after the resolver: cheap, and sites often publish what profiles hide.
type WebsiteProber struct {
	httpClient *http.Client
}

func NewWebsiteProber(httpClient *http.Client) *WebsiteProber {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &WebsiteProber{httpClient: httpClient}
}

// ExtractContacts pulls mailto:/tel: links out of the page.
func (p *WebsiteProber) ExtractContacts(ctx context.Context, siteURL string) (ContactInfo, error) {
	if !strings.HasPrefix(siteURL, "http://") && !strings.HasPrefix(siteURL, "https://") {
		siteURL = "https://" + siteURL
	}

	req, err := http.NewRequestWithContext(ctx, "GET", siteURL, nil)
	if err != nil {
		return ContactInfo{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ContactInfo{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ContactInfo{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ContactInfo{}, fmt.Errorf("parse html: %w", err)
	}

	info := ExtractContactLinks(doc)
	info.Website = siteURL
	return info, nil
}

// ExtractContactLinks scans a parsed document for contact anchors.
func ExtractContactLinks(doc *goquery.Document) ContactInfo {
	var info ContactInfo

	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		switch {
		case strings.HasPrefix(href, "mailto:") && info.Email == "":
			info.Email = cleanContactHref(href, "mailto:")
		case strings.HasPrefix(href, "tel:") && info.Phone == "":
			info.Phone = cleanContactHref(href, "tel:")
		}
		return info.Email == "" || info.Phone == ""
	})

	return info
}

func cleanContactHref(href, scheme string) string {
	v := strings.TrimPrefix(href, scheme)
	if i := strings.IndexByte(v, '?'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
