package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const perplexityAPIURL = "https://api.perplexity.ai/chat/completions"

// ContactInfo is the output of a contact-resolution pass. Empty strings mean
// "nothing found".
type ContactInfo struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
}

// Merge fills gaps from other without overriding anything already set.
func (c ContactInfo) Merge(other ContactInfo) ContactInfo {
	if c.Email == "" {
		c.Email = other.Email
	}
	if c.Phone == "" {
		c.Phone = other.Phone
	}
	if c.Website == "" {
		c.Website = other.Website
	}
	return c
}

func (c ContactInfo) Empty() bool {
	return c.Email == "" && c.Phone == "" && c.Website == ""
}

// PerplexityResolver finds publicly listed contact data for a profile via an
// online-search chat model that answers in JSON.
type PerplexityResolver struct {
	httpClient *http.Client
	apiKey     string
	model      string
	apiURL     string
}

func NewPerplexityResolver(httpClient *http.Client, apiKey, model string) *PerplexityResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &PerplexityResolver{
		httpClient: httpClient,
		apiKey:     apiKey,
		model:      model,
		apiURL:     perplexityAPIURL,
	}
}

// SetAPIURL overrides the endpoint, used by tests.
func (r *PerplexityResolver) SetAPIURL(u string) {
	r.apiURL = u
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Resolve asks for email, phone and website of the given profile. Known
// fields are passed along as search priors; the model's job is to fill the
// gaps, not to override.
func (r *PerplexityResolver) Resolve(ctx context.Context, username string, known ContactInfo) (ContactInfo, error) {
	prompt := fmt.Sprintf(
		"Find the email address, phone number or website of the Instagram profile https://www.instagram.com/%s/.",
		username)
	if !known.Empty() {
		prompt += fmt.Sprintf(" Already known: email=%q phone=%q website=%q; fill in only what is missing.",
			known.Email, known.Phone, known.Website)
	}
	prompt += ` Answer only as JSON: { "email": "...", "phone": "...", "website": "..." }`

	reqBody := chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a research assistant that finds publicly available contact information."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", r.apiURL, bytes.NewReader(body))
	if err != nil {
		return ContactInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return ContactInfo{}, fmt.Errorf("perplexity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return ContactInfo{}, fmt.Errorf("perplexity status %d: %s", resp.StatusCode, string(respBody))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return ContactInfo{}, fmt.Errorf("decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return ContactInfo{}, fmt.Errorf("empty choices")
	}

	return parseContactJSON(chat.Choices[0].Message.Content)
}

// parseContactJSON extracts the JSON object from model output, tolerating
// code fences and surrounding prose.
func parseContactJSON(content string) (ContactInfo, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ContactInfo{}, fmt.Errorf("no JSON object in response")
	}

	var info ContactInfo
	if err := json.Unmarshal([]byte(content[start:end+1]), &info); err != nil {
		return ContactInfo{}, fmt.Errorf("parse contact JSON: %w", err)
	}
	return info, nil
}
