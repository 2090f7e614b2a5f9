package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// fakeWiki serves canned responses per method and records every request.
type fakeWiki struct {
	mu       sync.Mutex
	requests []recordedRequest

	lookupStatus int
	lookupBody   string
	updateStatus int
	updateBody   string
}

func newFakeWiki(t *testing.T, w *fakeWiki) *httptest.Server {
	t.Helper()
	if w.lookupStatus == 0 {
		w.lookupStatus = http.StatusOK
	}
	if w.updateStatus == 0 {
		w.updateStatus = http.StatusOK
	}

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		w.mu.Lock()
		w.requests = append(w.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		w.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			rw.WriteHeader(w.lookupStatus)
			io.WriteString(rw, w.lookupBody)
		case http.MethodPut:
			rw.WriteHeader(w.updateStatus)
			io.WriteString(rw, w.updateBody)
		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func (w *fakeWiki) recorded() []recordedRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]recordedRequest(nil), w.requests...)
}

func (w *fakeWiki) methods() []string {
	var methods []string
	for _, r := range w.recorded() {
		methods = append(methods, r.Method)
	}
	return methods
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(url string, logger *slog.Logger) *ConfluenceClient {
	return NewConfluenceClient(url+"/", Credentials{Email: "bot@example.com", Token: "s3cret"}, nil, logger)
}

func TestFindPage(t *testing.T) {
	wiki := &fakeWiki{lookupBody: `{"results":[{"id":"123","title":"Report","version":{"number":5}}]}`}
	srv := newFakeWiki(t, wiki)

	ref, err := testClient(srv.URL, discardLogger()).FindPage(context.Background(), LookupQuery{Title: "Q3 Report & more"})
	require.NoError(t, err)
	assert.Equal(t, PageRef{ID: "123", Version: 5}, ref)

	reqs := wiki.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "/api/v2/pages", reqs[0].Path)
	assert.Equal(t, "expand=version&title=Q3+Report+%26+more", reqs[0].Query)

	req := &http.Request{Header: reqs[0].Header}
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "bot@example.com", user)
	assert.Equal(t, "s3cret", pass)
}

func TestFindPageNumericID(t *testing.T) {
	wiki := &fakeWiki{lookupBody: `{"results":[{"id":42,"version":{"number":3}}]}`}
	srv := newFakeWiki(t, wiki)

	ref, err := testClient(srv.URL, discardLogger()).FindPage(context.Background(), LookupQuery{Title: "Report"})
	require.NoError(t, err)
	assert.Equal(t, PageRef{ID: "42", Version: 3}, ref)
}

func TestFindPageSpaceID(t *testing.T) {
	wiki := &fakeWiki{lookupBody: `{"results":[{"id":"1","version":{"number":1}}]}`}
	srv := newFakeWiki(t, wiki)

	_, err := testClient(srv.URL, discardLogger()).FindPage(context.Background(), LookupQuery{Title: "Report", SpaceID: "987"})
	require.NoError(t, err)
	assert.Equal(t, "expand=version&space-id=987&title=Report", wiki.recorded()[0].Query)
}

func TestFindPageNotFound(t *testing.T) {
	wiki := &fakeWiki{lookupBody: `{"results":[]}`}
	srv := newFakeWiki(t, wiki)

	_, err := testClient(srv.URL, discardLogger()).FindPage(context.Background(), LookupQuery{Title: "Missing"})

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "Missing", notFound.Title)
	assert.Equal(t, []string{http.MethodGet}, wiki.methods())
}

func TestFindPageMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"no id":            `{"results":[{"version":{"number":2}}]}`,
		"empty id":         `{"results":[{"id":"","version":{"number":2}}]}`,
		"no version":       `{"results":[{"id":"7"}]}`,
		"zero version":     `{"results":[{"id":"7","version":{"number":0}}]}`,
		"negative version": `{"results":[{"id":"7","version":{"number":-1}}]}`,
		"no results key":   `{}`,
		"null results":     `{"results":null}`,
		"not json":         `<html>maintenance</html>`,
		"wrong id shape":   `{"results":[{"id":{"x":1},"version":{"number":2}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := newFakeWiki(t, &fakeWiki{lookupBody: body})

			_, err := testClient(srv.URL, discardLogger()).FindPage(context.Background(), LookupQuery{Title: "Report"})

			var malformed *MalformedResponseError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, ExitMalformed, ExitCode(err))
		})
	}
}

func TestFindPageDuplicateTitles(t *testing.T) {
	body := `{"results":[{"id":"1","version":{"number":4}},{"id":"2","version":{"number":9}}]}`

	t.Run("first wins", func(t *testing.T) {
		srv := newFakeWiki(t, &fakeWiki{lookupBody: body})

		ref, err := testClient(srv.URL, discardLogger()).FindPage(context.Background(), LookupQuery{Title: "Report"})
		require.NoError(t, err)
		assert.Equal(t, PageRef{ID: "1", Version: 4}, ref)
	})

	t.Run("strict", func(t *testing.T) {
		srv := newFakeWiki(t, &fakeWiki{lookupBody: body})

		_, err := testClient(srv.URL, discardLogger()).FindPage(context.Background(), LookupQuery{Title: "Report", Strict: true})

		var ambiguous *AmbiguousTitleError
		require.True(t, errors.As(err, &ambiguous), "got %v", err)
		assert.Equal(t, 2, ambiguous.Count)
	})
}

func TestFindPageRemoteError(t *testing.T) {
	wiki := &fakeWiki{lookupStatus: http.StatusUnauthorized, lookupBody: `{"message":"bad token"}`}
	srv := newFakeWiki(t, wiki)

	logs := &bytes.Buffer{}
	_, err := testClient(srv.URL, slog.New(slog.NewTextHandler(logs, nil))).FindPage(context.Background(), LookupQuery{Title: "Report"})

	var remote *RemoteError
	require.True(t, errors.As(err, &remote), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, remote.Status)
	assert.Equal(t, `{"message":"bad token"}`, remote.Body)
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "status=401")
}

func TestUpdatePage(t *testing.T) {
	wiki := &fakeWiki{updateBody: `{"id":"123"}`}
	srv := newFakeWiki(t, wiki)

	status, err := testClient(srv.URL, discardLogger()).UpdatePage(context.Background(), PageUpdate{
		Ref:   PageRef{ID: "123", Version: 5},
		Title: "Report",
		HTML:  "<table></table>",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	reqs := wiki.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, "/api/v2/pages/123", reqs[0].Path)
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &got))
	want := map[string]any{
		"id":     "123",
		"status": "current",
		"title":  "Report",
		"version": map[string]any{
			"number":  float64(6),
			"message": updateVersionMessage,
		},
		"body": map[string]any{
			"representation": "storage",
			"value":          "<table></table>",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("update payload mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePageConflict(t *testing.T) {
	wiki := &fakeWiki{updateStatus: http.StatusConflict, updateBody: `{"message":"version must be incremented"}`}
	srv := newFakeWiki(t, wiki)

	status, err := testClient(srv.URL, discardLogger()).UpdatePage(context.Background(), PageUpdate{
		Ref:   PageRef{ID: "123", Version: 5},
		Title: "Report",
	})

	var remote *RemoteError
	require.True(t, errors.As(err, &remote), "got %v", err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, http.StatusConflict, remote.Status)
	assert.Contains(t, err.Error(), "version must be incremented")
	assert.Equal(t, []string{http.MethodPut}, wiki.methods())
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewConfluenceClient(srv.URL, Credentials{}, httpClient(50*time.Millisecond), discardLogger())
	_, err := client.FindPage(context.Background(), LookupQuery{Title: "Report"})

	var remote *RemoteError
	require.True(t, errors.As(err, &remote), "got %v", err)
	assert.Zero(t, remote.Status)
	assert.Equal(t, ExitRemote, ExitCode(err))
}
