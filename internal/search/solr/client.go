// Package solr is the HTTP client for the conflict-search index. The index
// holds every examined name plus trademark and corporate-history cores; the
// examination screens query it through the analysis endpoints.
package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"namereg/internal/platform/config"
	dErrors "namereg/pkg/domain-errors"
)

// Conflict buckets, in the order the examination screen shows them.
const (
	BucketSynonym       = "synonym"
	BucketCobrsPhonetic = "cobrs_phonetic"
	BucketPhonetic      = "phonetic"
)

// Cores the client queries. The names core is configurable; the rest are
// fixed by the index layout.
const (
	coreConflicts  = "possible.conflicts"
	coreTrademarks = "trademarks"
	coreRestricted = "restricted.words"
)

// Client queries and maintains the search index.
type Client struct {
	baseURL   string
	namesCore string
	http      *http.Client
	logger    *slog.Logger
}

// New constructs a Solr client.
func New(cfg config.Solr, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		namesCore: cfg.NamesCore,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

// Hit is one index match.
type Hit struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	NRNum  string  `json:"nr_num,omitempty"`
	State  string  `json:"state,omitempty"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// Result is a scored result list for one bucket or core.
type Result struct {
	Bucket string `json:"bucket,omitempty"`
	Total  int    `json:"total"`
	Hits   []Hit  `json:"hits"`
}

type selectResponse struct {
	Response struct {
		NumFound int `json:"numFound"`
		Docs     []struct {
			ID     string  `json:"id"`
			Name   string  `json:"name"`
			NRNum  string  `json:"nr_num"`
			State  string  `json:"state_cd"`
			Source string  `json:"source"`
			Score  float64 `json:"score"`
		} `json:"docs"`
	} `json:"response"`
}

// Conflicts queries one conflict bucket for a proposed name. exact narrows
// the match to the exact phrase.
func (c *Client) Conflicts(ctx context.Context, bucket, name string, exact bool, rows int) (*Result, error) {
	var q string
	switch bucket {
	case BucketSynonym:
		q = fmt.Sprintf("name_with_synonyms:(%s)", escape(name))
	case BucketCobrsPhonetic:
		q = fmt.Sprintf("cobrs_phonetic:(%s)", escape(name))
	case BucketPhonetic:
		q = fmt.Sprintf("dblmetaphone_name:(%s)", escape(name))
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown conflict bucket %q", bucket))
	}
	if exact {
		q = fmt.Sprintf("name:%q", name)
	}
	res, err := c.query(ctx, coreConflicts, q, rows)
	if err != nil {
		return nil, err
	}
	res.Bucket = bucket
	return res, nil
}

// Histories returns previously examined names matching the proposed name.
func (c *Client) Histories(ctx context.Context, name string, rows int) (*Result, error) {
	return c.query(ctx, c.namesCore, fmt.Sprintf("name:(%s)", escape(name)), rows)
}

// Trademarks returns trademark matches for the proposed name.
func (c *Client) Trademarks(ctx context.Context, name string, rows int) (*Result, error) {
	return c.query(ctx, coreTrademarks, fmt.Sprintf("name:(%s)", escape(name)), rows)
}

// RestrictedWords returns the restricted-word conditions matching any word
// of the proposed name.
func (c *Client) RestrictedWords(ctx context.Context, name string, rows int) (*Result, error) {
	words := strings.Fields(name)
	if len(words) == 0 {
		return &Result{}, nil
	}
	escaped := make([]string, 0, len(words))
	for _, w := range words {
		escaped = append(escaped, escape(w))
	}
	q := fmt.Sprintf("word:(%s)", strings.Join(escaped, " OR "))
	return c.query(ctx, coreRestricted, q, rows)
}

// NameNRSearch is the combined lookup behind the public search box: NR
// numbers and name text in one query.
func (c *Client) NameNRSearch(ctx context.Context, query string, rows int) (*Result, error) {
	q := fmt.Sprintf("name:(%s) OR nr_num:(%s)", escape(query), escape(query))
	return c.query(ctx, c.namesCore, q, rows)
}

func (c *Client) query(ctx context.Context, core, q string, rows int) (*Result, error) {
	if rows <= 0 {
		rows = 10
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("rows", strconv.Itoa(rows))
	params.Set("fl", "id,name,nr_num,state_cd,source,score")
	params.Set("wt", "json")

	endpoint := fmt.Sprintf("%s/%s/select?%s", c.baseURL, url.PathEscape(core), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build solr query: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "search index unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("search index returned %d: %s", resp.StatusCode, string(body)))
	}

	var sr selectResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode search response")
	}

	out := &Result{Total: sr.Response.NumFound}
	for _, d := range sr.Response.Docs {
		out.Hits = append(out.Hits, Hit{
			ID:     d.ID,
			Name:   d.Name,
			NRNum:  d.NRNum,
			State:  d.State,
			Source: d.Source,
			Score:  d.Score,
		})
	}
	return out, nil
}

// Document is one indexed name.
type Document struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	NRNum string `json:"nr_num"`
	State string `json:"state_cd"`
}

// Upsert adds or replaces documents in the conflicts core.
func (c *Client) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal index documents: %w", err)
	}
	return c.update(ctx, payload)
}

// DeleteByNRNum removes every document for an NR from the conflicts core.
func (c *Client) DeleteByNRNum(ctx context.Context, nrNum string) error {
	payload, err := json.Marshal(map[string]any{
		"delete": map[string]string{"query": fmt.Sprintf("nr_num:%q", nrNum)},
	})
	if err != nil {
		return fmt.Errorf("marshal index delete: %w", err)
	}
	return c.update(ctx, payload)
}

func (c *Client) update(ctx context.Context, payload []byte) error {
	endpoint := fmt.Sprintf("%s/%s/update?commit=true", c.baseURL, url.PathEscape(coreConflicts))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build solr update: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "search index unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("search index update returned %d: %s", resp.StatusCode, string(body)))
	}
	return nil
}

// escape neutralizes the Lucene special characters in user input.
func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '+', '-', '&', '|', '!', '(', ')', '{', '}', '[', ']', '^', '"', '~', '*', '?', ':', '\\', '/':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
