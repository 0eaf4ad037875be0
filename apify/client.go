package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	apiBase     = "https://api.apify.com/v2"
	pollTimeout = 15 * time.Minute
	pollDelay   = 10 * time.Second
)

// Client drives hosted actor runs: start, poll to completion, stream the
// result dataset.
type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
}

func NewClient(httpClient *http.Client, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{httpClient: httpClient, token: token, baseURL: apiBase}
}

// SetBaseURL overrides the API endpoint, used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// RunActor starts an actor run with the given input and polls until it
// finishes, returning the default dataset id.
func (c *Client) RunActor(ctx context.Context, actorID string, input map[string]interface{}) (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("apify token not set")
	}

	runID, err := c.startRun(ctx, actorID, input)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	log.Printf("Apify run started: %s (actor: %s)", runID, actorID)

	datasetID, err := c.waitForRun(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("wait for run: %w", err)
	}
	log.Printf("Apify run complete, dataset: %s", datasetID)

	return datasetID, nil
}

func (c *Client) startRun(ctx context.Context, actorID string, input map[string]interface{}) (string, error) {
	body, _ := json.Marshal(input)
	url := fmt.Sprintf("%s/acts/%s/runs?token=%s", c.baseURL, actorID, c.token)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.ID, nil
}

func (c *Client) waitForRun(ctx context.Context, runID string) (string, error) {
	url := fmt.Sprintf("%s/actor-runs/%s?token=%s", c.baseURL, runID, c.token)
	deadline := time.Now().Add(pollTimeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return "", err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			time.Sleep(pollDelay)
			continue
		}

		var result struct {
			Data struct {
				Status           string `json:"status"`
				DefaultDatasetID string `json:"defaultDatasetId"`
			} `json:"data"`
		}
		json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()

		switch result.Data.Status {
		case "SUCCEEDED":
			return result.Data.DefaultDatasetID, nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return "", fmt.Errorf("run %s: %s", runID, result.Data.Status)
		}

		time.Sleep(pollDelay)
	}

	return "", fmt.Errorf("timeout waiting for run %s", runID)
}

// ItemIterator yields dataset items one at a time. Next returns io.EOF when
// the set is exhausted.
type ItemIterator interface {
	Next() (json.RawMessage, error)
	Close() error
}

// StreamDataset opens the dataset and returns an iterator over its items.
// Items are decoded one at a time off the wire; the full result set is never
// held in memory.
func (c *Client) StreamDataset(ctx context.Context, datasetID string) (ItemIterator, error) {
	url := fmt.Sprintf("%s/datasets/%s/items?token=%s&format=json", c.baseURL, datasetID, c.token)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("dataset fetch failed %d: %s", resp.StatusCode, string(respBody))
	}

	dec := json.NewDecoder(resp.Body)

	// Consume the opening bracket of the JSON array
	tok, err := dec.Token()
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected dataset token: %v", tok)
	}

	return &datasetIterator{body: resp.Body, dec: dec}, nil
}

type datasetIterator struct {
	body io.ReadCloser
	dec  *json.Decoder
}

func (it *datasetIterator) Next() (json.RawMessage, error) {
	if !it.dec.More() {
		return nil, io.EOF
	}
	var raw json.RawMessage
	if err := it.dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (it *datasetIterator) Close() error {
	return it.body.Close()
}

// CollectDataset drains the iterator into a slice, for small result sets
// where streaming buys nothing.
func CollectDataset(it ItemIterator) ([]json.RawMessage, error) {
	defer it.Close()

	var items []json.RawMessage
	for {
		raw, err := it.Next()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, raw)
	}
}
