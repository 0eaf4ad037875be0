package apify

import (
	"context"
	"encoding/json"
	"log"
	"strings"
)

// Profile is the normalized shape of one profile-actor result.
type Profile struct {
	Username      string
	FullName      string
	Bio           string
	Email         string
	Phone         string
	Website       string
	ProfilePicURL string
	Location      string
	Followers     int
	Following     int
	Posts         int
	Verified      bool
	Business      bool
}

// Upstream field names are not stable across actor versions, so every
// normalized field maps from an ordered list of candidate keys, tried in
// priority order.
var profileAliases = map[string][]string{
	"username":  {"username", "userName", "ownerUsername"},
	"fullName":  {"fullName", "full_name", "name"},
	"bio":       {"biography", "bio"},
	"email":     {"email", "public_email", "publicEmail", "business_email", "businessEmail"},
	"phone":     {"phone", "contact_phone_number", "contactPhoneNumber", "public_phone_number", "publicPhoneNumber"},
	"website":   {"website", "external_url", "externalUrl", "url"},
	"pic":       {"profilePicUrlHD", "profilePicUrl", "profile_pic_url_hd", "profile_pic_url"},
	"location":  {"city_name", "cityName", "location"},
	"followers": {"followersCount", "follower_count", "followers_count", "followers", "followerCount"},
	"following": {"followingCount", "following_count", "follows_count", "following"},
	"posts":     {"postsCount", "posts_count", "media_count", "mediaCount", "posts"},
	"verified":  {"isVerified", "is_verified", "verified"},
	"business":  {"isBusinessAccount", "is_business_account", "is_business"},
}

// ProfileFetcher calls the profile actor for a batch of usernames and
// normalizes the results.
type ProfileFetcher struct {
	client    *Client
	actorID   string
	sessionID string
}

func NewProfileFetcher(client *Client, actorID, sessionID string) *ProfileFetcher {
	return &ProfileFetcher{client: client, actorID: actorID, sessionID: sessionID}
}

// FetchProfiles returns whatever profiles the actor produced, keyed by
// username. Missing usernames are simply absent from the map; callers fill
// in empty records.
func (f *ProfileFetcher) FetchProfiles(ctx context.Context, usernames []string) (map[string]*Profile, error) {
	input := map[string]interface{}{
		"usernames": usernames,
		"sessionid": f.sessionID,
	}

	datasetID, err := f.client.RunActor(ctx, f.actorID, input)
	if err != nil {
		return nil, err
	}

	it, err := f.client.StreamDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	items, err := CollectDataset(it)
	if err != nil {
		log.Printf("Profiles: dataset truncated after %d items: %v", len(items), err)
	}

	out := make(map[string]*Profile, len(items))
	for _, raw := range items {
		p, err := ParseProfile(raw)
		if err != nil {
			log.Printf("Profiles: skipping malformed item: %v", err)
			continue
		}
		if p.Username == "" {
			continue
		}
		out[strings.ToLower(p.Username)] = p
	}

	return out, nil
}

// ParseProfile maps one raw actor item onto a Profile via the alias table.
func ParseProfile(raw json.RawMessage) (*Profile, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	return &Profile{
		Username:      pickString(fields, "username"),
		FullName:      pickString(fields, "fullName"),
		Bio:           pickString(fields, "bio"),
		Email:         pickString(fields, "email"),
		Phone:         pickString(fields, "phone"),
		Website:       pickString(fields, "website"),
		ProfilePicURL: pickString(fields, "pic"),
		Location:      pickString(fields, "location"),
		Followers:     pickInt(fields, "followers"),
		Following:     pickInt(fields, "following"),
		Posts:         pickInt(fields, "posts"),
		Verified:      pickBool(fields, "verified"),
		Business:      pickBool(fields, "business"),
	}, nil
}

func pickString(fields map[string]interface{}, name string) string {
	for _, key := range profileAliases[name] {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func pickInt(fields map[string]interface{}, name string) int {
	for _, key := range profileAliases[name] {
		if v, ok := fields[key]; ok {
			if n, ok := v.(float64); ok {
				return int(n)
			}
		}
	}
	return 0
}

func pickBool(fields map[string]interface{}, name string) bool {
	for _, key := range profileAliases[name] {
		if v, ok := fields[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	return false
}
