package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseContactJSON(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    ContactInfo
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"email":"a@b.com","phone":"","website":"https://a.example.com"}`,
			want:    ContactInfo{Email: "a@b.com", Website: "https://a.example.com"},
		},
		{
			name: "code fence",
			content: "Here you go:\n```json\n" +
				`{"email":"a@b.com","phone":"+1555","website":""}` + "\n```\nHope that helps.",
			want: ContactInfo{Email: "a@b.com", Phone: "+1555"},
		},
		{
			name:    "no object",
			content: "I could not find any contact information.",
			wantErr: true,
		},
		{
			name:    "broken json",
			content: `{"email": unquoted}`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseContactJSON(tc.content)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"email\":\"found@example.com\",\"phone\":\"\",\"website\":\"\"}"}}]}`)
	}))
	defer srv.Close()

	r := NewPerplexityResolver(srv.Client(), "test-key", "test-model")
	r.SetAPIURL(srv.URL)

	info, err := r.Resolve(context.Background(), "alice", ContactInfo{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if info.Email != "found@example.com" {
		t.Fatalf("unexpected result: %+v", info)
	}
}

func TestResolveNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := NewPerplexityResolver(srv.Client(), "test-key", "test-model")
	r.SetAPIURL(srv.URL)

	if _, err := r.Resolve(context.Background(), "alice", ContactInfo{}); err == nil {
		t.Fatal("non-200 should surface an error")
	}
}

func TestResolveEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	r := NewPerplexityResolver(srv.Client(), "test-key", "test-model")
	r.SetAPIURL(srv.URL)

	if _, err := r.Resolve(context.Background(), "alice", ContactInfo{}); err == nil {
		t.Fatal("empty choices should surface an error")
	}
}
