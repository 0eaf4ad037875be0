package storage

import (
	"testing"

	"ig_leadgen/config"
)

func TestPublicURLCustomEndpoint(t *testing.T) {
	cfg := config.S3Config{
		Bucket:   "leads-media",
		Region:   "nyc3",
		Endpoint: "https://nyc3.digitaloceanspaces.com",
	}

	got := publicURL(cfg, "avatars/ab/abc.jpg")
	want := "https://leads-media.nyc3.digitaloceanspaces.com/avatars/ab/abc.jpg"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPublicURLDefaultAWS(t *testing.T) {
	cfg := config.S3Config{Bucket: "leads-media", Region: "us-east-1"}

	got := publicURL(cfg, "avatars/ab/abc.jpg")
	want := "https://leads-media.s3.us-east-1.amazonaws.com/avatars/ab/abc.jpg"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
