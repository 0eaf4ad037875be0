package workers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"ig_leadgen/storage"
)

// Uploader is the S3-compatible sink avatars are archived to. PublicURL maps
// a stored key to the browser-reachable address recorded on the lead.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	PublicURL(key string) string
}

// AvatarWorker archives lead profile pictures: profile picture CDN links
// expire, so a copy is stored under a content-hash key.
type AvatarWorker struct {
	store      *storage.SQLiteStore
	uploader   Uploader
	httpClient *http.Client
	trigger    chan struct{}
}

func NewAvatarWorker(store *storage.SQLiteStore, uploader Uploader, httpClient *http.Client) *AvatarWorker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &AvatarWorker{
		store:      store,
		uploader:   uploader,
		httpClient: httpClient,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger requests an immediate pass.
func (w *AvatarWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run starts the archive loop.
func (w *AvatarWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Avatar worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.trigger:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *AvatarWorker) processBatch(ctx context.Context, batchSize int) {
	leads, err := w.store.GetLeadsNeedingAvatar(batchSize)
	if err != nil {
		log.Printf("Avatar: query error: %v", err)
		return
	}
	if len(leads) == 0 {
		return
	}

	log.Printf("Avatar: archiving %d pictures", len(leads))

	for i := range leads {
		l := &leads[i]

		key, err := w.archive(ctx, l.ProfilePicURL)
		if err != nil {
			log.Printf("Avatar: failed for %s: %v", l.Username, err)
			continue
		}

		if err := w.store.SetLeadAvatar(l.ID, key, w.uploader.PublicURL(key)); err != nil {
			log.Printf("Avatar: failed to record key for %s: %v", l.Username, err)
			continue
		}

		log.Printf("Avatar: archived %s -> %s", l.Username, key)

		// Rate limit between downloads
		time.Sleep(200 * time.Millisecond)
	}
}

// archive downloads the picture, hashes it and uploads it under
// avatars/{hash_prefix}/{hash}{ext}.
func (w *AvatarWorker) archive(ctx context.Context, picURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", picURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	hash := sha256.Sum256(data)
	digest := hex.EncodeToString(hash[:])
	ext := guessExtension(picURL, resp.Header.Get("Content-Type"))
	key := fmt.Sprintf("avatars/%s/%s%s", digest[:2], digest, ext)

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	if err := w.uploader.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	return key, nil
}

func guessExtension(url, contentType string) string {
	ext := strings.ToLower(path.Ext(url))
	if i := strings.IndexByte(ext, '?'); i >= 0 {
		ext = ext[:i]
	}
	if isImageExt(ext) {
		return ext
	}

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// NoOpUploader drains uploads without storing them, used when no bucket is
// configured and in tests.
type NoOpUploader struct{}

func (u *NoOpUploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	io.Copy(io.Discard, data)
	return nil
}

func (u *NoOpUploader) PublicURL(key string) string {
	return ""
}

func NewNoOpUploader() *NoOpUploader {
	return &NoOpUploader{}
}
