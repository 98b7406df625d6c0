// Package notion creates pages in a Notion database. One request per page,
// no retry.
package notion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	DefaultAPIURL = "https://api.notion.com"
	apiVersion    = "2022-06-28"
)

var ErrNotConfigured = errors.New("notion: not configured")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Page struct {
	TicketID    string
	Title       string
	UseCase     string
	Status      string
	Priority    string
	Category    string
	Tags        []string
	Description string
}

type ItfNotion interface {
	Configured() bool
	CreatePage(ctx context.Context, p Page) (string, error)
}

type Client struct {
	Token      string
	DatabaseID string
	BaseURL    string
	HTTP       *http.Client
}

func New() *Client {
	base := os.Getenv("NOTION_API_URL")
	if base == "" {
		base = DefaultAPIURL
	}
	return &Client{
		Token:      os.Getenv("NOTION_TOKEN"),
		DatabaseID: os.Getenv("NOTION_DATABASE_ID"),
		BaseURL:    strings.TrimRight(base, "/"),
		HTTP:       &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether both the token and the target database are set.
func (c *Client) Configured() bool {
	return c.Token != "" && c.DatabaseID != ""
}

func (c *Client) CreatePage(ctx context.Context, p Page) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(pageRequest(c.DatabaseID, p))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/pages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", apiVersion)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return "", fmt.Errorf("notion: %s: %s", apiErr.Code, apiErr.Message)
		}
		return "", fmt.Errorf("notion: unexpected status %s", resp.Status)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("notion: decode response: %w", err)
	}
	return created.ID, nil
}

func text(s string) []map[string]interface{} {
	return []map[string]interface{}{{"text": map[string]string{"content": s}}}
}

func pageRequest(databaseID string, p Page) map[string]interface{} {
	tags := make([]map[string]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, map[string]string{"name": t})
	}

	props := map[string]interface{}{
		"Name":      map[string]interface{}{"title": text(p.Title)},
		"Ticket ID": map[string]interface{}{"rich_text": text(p.TicketID)},
		"Use Case":  map[string]interface{}{"select": map[string]string{"name": p.UseCase}},
		"Status":    map[string]interface{}{"select": map[string]string{"name": p.Status}},
		"Priority":  map[string]interface{}{"select": map[string]string{"name": p.Priority}},
		"Tags":      map[string]interface{}{"multi_select": tags},
	}
	if p.Category != "" {
		props["Category"] = map[string]interface{}{"select": map[string]string{"name": p.Category}}
	}

	req := map[string]interface{}{
		"parent":     map[string]string{"database_id": databaseID},
		"properties": props,
	}
	if p.Description != "" {
		req["children"] = []map[string]interface{}{{
			"object":    "block",
			"type":      "paragraph",
			"paragraph": map[string]interface{}{"rich_text": text(p.Description)},
		}}
	}
	return req
}
