// Package findb queries the financial document vector search service.
package findb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"copilots/internal/chat"

	"github.com/golang-jwt/jwt/v4"
	"github.com/tidwall/sjson"
)

// DefaultLimit is the number of chunks requested per search.
const DefaultLimit = 12

const searchPath = "/v1/documents/search"

type Result struct {
	Content       string    `json:"content"`
	Symbol        string    `json:"symbol"`
	PageNumber    *int      `json:"page_number"`
	ChunkNumber   *int      `json:"chunk_number"`
	CompanyName   string    `json:"company_name"`
	DocumentDate  time.Time `json:"document_date"`
	DocumentType  string    `json:"document_type"`
	FormType      *string   `json:"form_type"`
	FiscalQuarter string    `json:"fiscal_quarter"`
	FiscalYear    int       `json:"fiscal_year"`
	Period        string    `json:"period"`
	S3URI         string    `json:"s3_uri"`
}

// Query filters a search. Empty filters are sent as null.
type Query struct {
	Query         string
	Symbol        string
	DocumentType  string // sec_filing or earnings_transcript
	FormType      string // 10-K or 10-Q
	FiscalYear    int
	FiscalQuarter string // Q1, Q2, Q3 or FY
	Limit         int
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient signs the service token once. The token carries only the findb
// scope and no expiry.
func NewClient(baseURL, secret string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("findb: base URL is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("findb: secret is required")
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scopes": []string{"findb"},
	}).SignedString([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("findb: sign token: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Search(ctx context.Context, q Query) ([]Result, error) {
	body, err := payload(q)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: vector database: %v", chat.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: something went wrong with the vector database: status %d: %s",
			chat.ErrUpstreamUnavailable, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: decode search results: %v", chat.ErrUpstreamProtocol, err)
	}
	return results, nil
}

func payload(q Query) ([]byte, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	body := []byte(`{"form_type":null,"fiscal_year":null,"fiscal_quarter":null,"document_type":null}`)
	sets := []struct {
		path  string
		value any
		ok    bool
	}{
		{"query", q.Query, true},
		{"symbol", q.Symbol, true},
		{"limit", limit, true},
		{"document_type", q.DocumentType, q.DocumentType != ""},
		{"form_type", q.FormType, q.FormType != ""},
		{"fiscal_year", q.FiscalYear, q.FiscalYear != 0},
		{"fiscal_quarter", q.FiscalQuarter, q.FiscalQuarter != ""},
	}
	var err error
	for _, s := range sets {
		if !s.ok {
			continue
		}
		if body, err = sjson.SetBytes(body, s.path, s.value); err != nil {
			return nil, fmt.Errorf("findb: build payload: %w", err)
		}
	}
	return body, nil
}
