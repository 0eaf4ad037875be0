package apify

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"runtime"
	"time"

	"ig_leadgen/models"
)

// HashtagStreamer pulls a hashtag search from the discovery actor and folds
// its result stream into a deduplicated candidate list. Memory is bounded by
// a hard unit cap: the upstream feed is treated as adversarial and may be far
// larger than anything we are willing to hold.
type HashtagStreamer struct {
	client    *Client
	actorID   string
	gcEvery   int
	unitSleep time.Duration
	sleep     func(time.Duration)
}

func NewHashtagStreamer(client *Client, actorID string, gcEvery int, unitSleep time.Duration) *HashtagStreamer {
	if gcEvery <= 0 {
		gcEvery = 10
	}
	return &HashtagStreamer{
		client:    client,
		actorID:   actorID,
		gcEvery:   gcEvery,
		unitSleep: unitSleep,
		sleep:     time.Sleep,
	}
}

// hashtagUnit is one item of the discovery dataset: a hashtag page carrying
// embedded post lists.
type hashtagUnit struct {
	Name        string        `json:"name"`
	LatestPosts []hashtagPost `json:"latestPosts"`
	TopPosts    []hashtagPost `json:"topPosts"`
}

type hashtagPost struct {
	OwnerUsername string `json:"ownerUsername"`
	Timestamp     string `json:"timestamp"`
	URL           string `json:"url"`
	Caption       string `json:"caption"`
}

// Discover runs the hashtag search and returns the deduplicated candidates.
// Any upstream failure degrades to an empty result: discovery never aborts
// the pipeline.
func (s *HashtagStreamer) Discover(ctx context.Context, tag string, searchLimit, unitCap int) []models.Candidate {
	input := map[string]interface{}{
		"search":      tag,
		"searchType":  "hashtag",
		"searchLimit": searchLimit,
	}

	datasetID, err := s.client.RunActor(ctx, s.actorID, input)
	if err != nil {
		log.Printf("Discovery: actor run failed for #%s: %v", tag, err)
		return nil
	}

	it, err := s.client.StreamDataset(ctx, datasetID)
	if err != nil {
		log.Printf("Discovery: dataset stream failed for #%s: %v", tag, err)
		return nil
	}
	defer it.Close()

	return s.consume(it, tag, unitCap)
}

// consume folds dataset units into a candidate map keyed by username,
// last-seen-wins on timestamp recency, stopping at unitCap units.
func (s *HashtagStreamer) consume(it ItemIterator, tag string, unitCap int) []models.Candidate {
	byUser := make(map[string]*models.Candidate)
	var order []string
	units := 0

	for unitCap <= 0 || units < unitCap {
		raw, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Discovery: stream error after %d units: %v", units, err)
			break
		}
		units++

		var unit hashtagUnit
		if err := json.Unmarshal(raw, &unit); err != nil {
			log.Printf("Discovery: skipping malformed unit %d: %v", units, err)
			continue
		}

		tagVariant := unit.Name
		if tagVariant == "" {
			tagVariant = tag
		}

		for _, post := range append(unit.LatestPosts, unit.TopPosts...) {
			s.fold(byUser, &order, tagVariant, post)
		}

		if units%s.gcEvery == 0 {
			// Smooth memory and request pressure on long streams
			runtime.GC()
			s.sleep(s.unitSleep)
		}
	}

	out := make([]models.Candidate, 0, len(order))
	for _, u := range order {
		out = append(out, *byUser[u])
	}

	log.Printf("Discovery: #%s yielded %d candidates from %d units", tag, len(out), units)
	return out
}

func (s *HashtagStreamer) fold(byUser map[string]*models.Candidate, order *[]string, tag string, post hashtagPost) {
	if post.OwnerUsername == "" {
		return
	}

	ts := parsePostTime(post.Timestamp)

	existing, ok := byUser[post.OwnerUsername]
	if !ok {
		byUser[post.OwnerUsername] = &models.Candidate{
			Tag:             tag,
			Username:        post.OwnerUsername,
			SourceTimestamp: ts,
			SourceURL:       post.URL,
			SourceExcerpt:   truncate(post.Caption, 280),
		}
		*order = append(*order, post.OwnerUsername)
		return
	}

	// Last seen wins: a more recent post replaces the source fields
	if ts != nil && (existing.SourceTimestamp == nil || ts.After(*existing.SourceTimestamp)) {
		existing.SourceTimestamp = ts
		existing.SourceURL = post.URL
		existing.SourceExcerpt = truncate(post.Caption, 280)
	}
}

func parsePostTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
