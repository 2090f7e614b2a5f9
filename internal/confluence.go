package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	userAgent            = "tablepush"
	updateVersionMessage = "Updated by tablepush"
)

// Credentials authenticate every request of a run with Basic-Auth.
type Credentials struct {
	Email string
	Token string
}

// PageRef identifies a page and the version observed when it was looked up.
type PageRef struct {
	ID      string
	Version int
}

// LookupQuery selects a page by exact title.
type LookupQuery struct {
	Title string
	// SpaceID narrows the lookup to one space when set.
	SpaceID string
	// Strict fails the lookup when more than one page matches.
	Strict bool
}

// PageUpdate replaces the body of an existing page.
type PageUpdate struct {
	Ref   PageRef
	Title string
	HTML  string
}

// ConfluenceClient talks to the pages endpoints of the v2 REST API.
type ConfluenceClient struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	log     *slog.Logger
}

// NewConfluenceClient returns a client for baseURL. A nil httpClient means
// http.DefaultClient.
func NewConfluenceClient(baseURL string, creds Credentials, httpClient *http.Client, logger *slog.Logger) *ConfluenceClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ConfluenceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    httpClient,
		log:     logger,
	}
}

// pageID accepts both string and numeric ids.
type pageID string

func (id *pageID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = pageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = pageID(n.String())
	return nil
}

type pageVersion struct {
	Number  int    `json:"number"`
	Message string `json:"message,omitempty"`
}

type pageResult struct {
	ID      pageID       `json:"id"`
	Title   string       `json:"title"`
	Version *pageVersion `json:"version"`
}

type pageList struct {
	Results *[]pageResult `json:"results"`
}

type storageBody struct {
	Representation string `json:"representation"`
	Value          string `json:"value"`
}

type pageUpdateRequest struct {
	ID      string      `json:"id"`
	Status  string      `json:"status"`
	Title   string      `json:"title"`
	Version pageVersion `json:"version"`
	Body    storageBody `json:"body"`
}

// FindPage resolves a title to the page id and its current version. Only the
// first result is used unless q.Strict is set.
func (c *ConfluenceClient) FindPage(ctx context.Context, q LookupQuery) (PageRef, error) {
	const op = "find page"

	params := url.Values{}
	params.Set("title", q.Title)
	params.Set("expand", "version")
	if q.SpaceID != "" {
		params.Set("space-id", q.SpaceID)
	}

	c.log.Debug("looking up page", "title", q.Title, "space_id", q.SpaceID)

	resp, body, err := c.do(ctx, op, http.MethodGet, "/api/v2/pages?"+params.Encode(), nil)
	if err != nil {
		return PageRef{}, err
	}
	if err := c.checkStatus(op, resp, body, "title", q.Title); err != nil {
		return PageRef{}, err
	}

	var list pageList
	if err := json.Unmarshal(body, &list); err != nil {
		return PageRef{}, &MalformedResponseError{Op: op, Reason: err.Error()}
	}

	if list.Results == nil {
		return PageRef{}, &MalformedResponseError{Op: op, Reason: "no results list"}
	}
	results := *list.Results

	switch {
	case len(results) == 0:
		return PageRef{}, &NotFoundError{Title: q.Title}
	case len(results) > 1 && q.Strict:
		return PageRef{}, &AmbiguousTitleError{Title: q.Title, Count: len(results)}
	case len(results) > 1:
		c.log.Warn("several pages share the title, using the first", "title", q.Title, "count", len(results))
	}

	first := results[0]
	if first.ID == "" {
		return PageRef{}, &MalformedResponseError{Op: op, Reason: "result has no id"}
	}
	if first.Version == nil || first.Version.Number <= 0 {
		return PageRef{}, &MalformedResponseError{Op: op, Reason: "result has no positive version number"}
	}

	ref := PageRef{ID: string(first.ID), Version: first.Version.Number}
	c.log.Debug("found page", "title", q.Title, "id", ref.ID, "version", ref.Version)

	return ref, nil
}

// UpdatePage overwrites the page body at the version following u.Ref.Version.
// The server rejects the write when someone else updated the page since the
// lookup.
func (c *ConfluenceClient) UpdatePage(ctx context.Context, u PageUpdate) (int, error) {
	const op = "update page"

	payload, err := json.Marshal(pageUpdateRequest{
		ID:     u.Ref.ID,
		Status: "current",
		Title:  u.Title,
		Version: pageVersion{
			Number:  u.Ref.Version + 1,
			Message: updateVersionMessage,
		},
		Body: storageBody{
			Representation: "storage",
			Value:          u.HTML,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("%s: encode request: %w", op, err)
	}

	c.log.Debug("updating page", "id", u.Ref.ID, "version", u.Ref.Version+1, "bytes", len(u.HTML))

	resp, body, err := c.do(ctx, op, http.MethodPut, "/api/v2/pages/"+url.PathEscape(u.Ref.ID), payload)
	if err != nil {
		return 0, err
	}
	if err := c.checkStatus(op, resp, body, "id", u.Ref.ID); err != nil {
		return resp.StatusCode, err
	}

	return resp.StatusCode, nil
}

func (c *ConfluenceClient) do(ctx context.Context, op, method, path string, payload []byte) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.SetBasicAuth(c.creds.Email, c.creds.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("request failed", "op", op, "method", method, "error", err)
		return nil, nil, &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Error("reading response failed", "op", op, "status", resp.StatusCode, "error", err)
		return nil, nil, &RemoteError{Op: op, Status: resp.StatusCode, Err: err}
	}

	c.log.Debug("response received", "op", op, "status", resp.StatusCode)

	return resp, body, nil
}

func (c *ConfluenceClient) checkStatus(op string, resp *http.Response, body []byte, key, value string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	c.log.Error("unexpected status", "op", op, key, value, "status", resp.StatusCode, "body", string(body))
	return &RemoteError{Op: op, Status: resp.StatusCode, Body: string(body)}
}
