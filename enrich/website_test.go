package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func docFromString(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestExtractContactLinks(t *testing.T) {
	doc := docFromString(t, `
		<html><body>
			<a href="/about">About</a>
			<a href="mailto:hello@example.com?subject=hi">Email us</a>
			<a href="tel:+1-555-0100">Call us</a>
			<a href="mailto:second@example.com">Other</a>
		</body></html>`)

	info := ExtractContactLinks(doc)

	if info.Email != "hello@example.com" {
		t.Fatalf("expected first mailto without query, got %q", info.Email)
	}
	if info.Phone != "+1-555-0100" {
		t.Fatalf("expected tel target, got %q", info.Phone)
	}
}

func TestExtractContactLinksNothingFound(t *testing.T) {
	doc := docFromString(t, `<html><body><a href="/contact">Contact</a></body></html>`)

	info := ExtractContactLinks(doc)
	if info.Email != "" || info.Phone != "" {
		t.Fatalf("expected empty result, got %+v", info)
	}
}

func TestExtractContacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="mailto:site@example.com">Mail</a></body></html>`)
	}))
	defer srv.Close()

	p := NewWebsiteProber(srv.Client())
	info, err := p.ExtractContacts(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if info.Email != "site@example.com" {
		t.Fatalf("unexpected email %q", info.Email)
	}
	if info.Website != srv.URL {
		t.Fatalf("website should echo the probed URL, got %q", info.Website)
	}
}

func TestExtractContactsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewWebsiteProber(srv.Client())
	if _, err := p.ExtractContacts(context.Background(), srv.URL); err == nil {
		t.Fatal("404 should surface an error")
	}
}
