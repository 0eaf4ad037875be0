package enrich

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"ig_leadgen/apify"
	"ig_leadgen/models"
)

// ProfileSource is the primary profile-data service.
type ProfileSource interface {
	FetchProfiles(ctx context.Context, usernames []string) (map[string]*apify.Profile, error)
}

// ContactResolver is the secondary contact-resolution service, consulted
// only when the profile left contact fields empty.
type ContactResolver interface {
	Resolve(ctx context.Context, username string, known ContactInfo) (ContactInfo, error)
}

// SiteProber is the tertiary pass over the lead's own website. Optional.
type SiteProber interface {
	ExtractContacts(ctx context.Context, siteURL string) (ContactInfo, error)
}

// Orchestrator enriches one batch of candidates. It always returns exactly
// one record per input username, in input order: a missing upstream result
// becomes an all-empty record, never a dropped id.
type Orchestrator struct {
	profiles ProfileSource
	resolver ContactResolver
	prober   SiteProber

	// External services throttle per account, not per batch, so in-flight
	// enrichments are capped independently of (and tighter than) batch size.
	sem *semaphore.Weighted

	jitterMin time.Duration
	jitterMax time.Duration
	sleep     func(time.Duration)
}

func NewOrchestrator(profiles ProfileSource, resolver ContactResolver, prober SiteProber, maxInFlight int, jitterMin, jitterMax time.Duration) *Orchestrator {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Orchestrator{
		profiles:  profiles,
		resolver:  resolver,
		prober:    prober,
		sem:       semaphore.NewWeighted(int64(maxInFlight)),
		jitterMin: jitterMin,
		jitterMax: jitterMax,
		sleep:     time.Sleep,
	}
}

// SetSleep replaces the delay function, used by tests.
func (o *Orchestrator) SetSleep(fn func(time.Duration)) {
	o.sleep = fn
}

// EnrichBatch enriches the batch. Every external failure is logged and
// absorbed; the caller always gets len(usernames) records back.
func (o *Orchestrator) EnrichBatch(ctx context.Context, tag string, usernames []string) []models.Lead {
	// Randomized delay before the batch call defeats fixed-interval abuse
	// heuristics that batch-level pacing alone would not.
	o.sleep(o.jitter())

	profiles, err := o.profiles.FetchProfiles(ctx, usernames)
	if err != nil {
		log.Printf("Enrich: profile fetch failed for batch of %d: %v", len(usernames), err)
		profiles = map[string]*apify.Profile{}
	}

	leads := make([]models.Lead, len(usernames))
	var wg sync.WaitGroup

	for i, username := range usernames {
		wg.Add(1)
		go func(i int, username string) {
			defer wg.Done()

			if err := o.sem.Acquire(ctx, 1); err != nil {
				leads[i] = models.Lead{Tag: tag, Username: username}
				return
			}
			defer o.sem.Release(1)

			leads[i] = o.enrichOne(ctx, tag, username, profiles[strings.ToLower(username)])
		}(i, username)
	}

	wg.Wait()
	return leads
}

func (o *Orchestrator) enrichOne(ctx context.Context, tag, username string, profile *apify.Profile) models.Lead {
	lead := models.Lead{Tag: tag, Username: username}

	if profile != nil {
		lead.FullName = profile.FullName
		lead.Bio = profile.Bio
		lead.Email = profile.Email
		lead.Phone = profile.Phone
		lead.Website = profile.Website
		lead.ProfilePicURL = profile.ProfilePicURL
		lead.Location = profile.Location
		lead.FollowersCount = profile.Followers
		lead.FollowingCount = profile.Following
		lead.PostsCount = profile.Posts
		lead.IsVerified = profile.Verified
		lead.IsBusiness = profile.Business
	}

	if !lead.HasContact() && o.resolver != nil {
		o.sleep(o.jitter())

		known := ContactInfo{Email: lead.Email, Phone: lead.Phone, Website: lead.Website}
		found, err := o.resolver.Resolve(ctx, username, known)
		if err != nil {
			log.Printf("Enrich: contact resolution failed for %s: %v", username, err)
		} else {
			merged := known.Merge(found)
			lead.Email = merged.Email
			lead.Phone = merged.Phone
			lead.Website = merged.Website
		}
	}

	if lead.Email == "" && lead.Phone == "" && lead.Website != "" && o.prober != nil {
		found, err := o.prober.ExtractContacts(ctx, lead.Website)
		if err != nil {
			log.Printf("Enrich: website probe failed for %s (%s): %v", username, lead.Website, err)
		} else {
			if lead.Email == "" {
				lead.Email = found.Email
			}
			if lead.Phone == "" {
				lead.Phone = found.Phone
			}
		}
	}

	return lead
}

func (o *Orchestrator) jitter() time.Duration {
	if o.jitterMax <= o.jitterMin {
		return o.jitterMin
	}
	return o.jitterMin + time.Duration(rand.Int63n(int64(o.jitterMax-o.jitterMin)))
}
