package solr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namereg/internal/platform/config"
	"namereg/internal/platform/logger"
	dErrors "namereg/pkg/domain-errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(config.Solr{BaseURL: srv.URL, NamesCore: "names", Timeout: 5 * time.Second}, logger.New())
	return c, srv
}

func selectBody(numFound int, docs ...map[string]any) string {
	b, _ := json.Marshal(map[string]any{
		"response": map[string]any{"numFound": numFound, "docs": docs},
	})
	return string(b)
}

func TestConflictsQueriesBucketField(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		io.WriteString(w, selectBody(1, map[string]any{
			"id": "NR 1234567-1", "name": "PACIFIC WIDGETS LTD.", "nr_num": "NR 1234567", "score": 4.2,
		}))
	})

	res, err := c.Conflicts(context.Background(), BucketSynonym, "PACIFIC WIDGETS", false, 10)
	require.NoError(t, err)
	assert.Equal(t, "name_with_synonyms:(PACIFIC WIDGETS)", gotQuery)
	assert.Equal(t, BucketSynonym, res.Bucket)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "NR 1234567", res.Hits[0].NRNum)
}

func TestConflictsExactPhrase(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		io.WriteString(w, selectBody(0))
	})

	_, err := c.Conflicts(context.Background(), BucketPhonetic, "PACIFIC WIDGETS", true, 10)
	require.NoError(t, err)
	assert.Equal(t, `name:"PACIFIC WIDGETS"`, gotQuery)
}

func TestConflictsUnknownBucket(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.Conflicts(context.Background(), "bogus", "NAME", false, 10)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestQueryEscapesLuceneCharacters(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		io.WriteString(w, selectBody(0))
	})

	_, err := c.Histories(context.Background(), "A+B (HOLDINGS)", 5)
	require.NoError(t, err)
	assert.Equal(t, `name:(A\+B \(HOLDINGS\))`, gotQuery)
}

func TestRestrictedWordsQueriesEachWord(t *testing.T) {
	var gotCore, gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotCore = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		io.WriteString(w, selectBody(1, map[string]any{"id": "rw-1", "name": "BANK"}))
	})

	res, err := c.RestrictedWords(context.Background(), "PACIFIC BANK HOLDINGS", 10)
	require.NoError(t, err)
	assert.Equal(t, "/restricted.words/select", gotCore)
	assert.Equal(t, "word:(PACIFIC OR BANK OR HOLDINGS)", gotQuery)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "BANK", res.Hits[0].Name)
}

func TestRestrictedWordsEmptyName(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	res, err := c.RestrictedWords(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
}

func TestQueryErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "core is down", http.StatusInternalServerError)
	})

	_, err := c.Trademarks(context.Background(), "WIDGETS", 5)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestUpsertAndDelete(t *testing.T) {
	var bodies []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "true", r.URL.Query().Get("commit"))
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		io.WriteString(w, `{}`)
	})

	err := c.Upsert(context.Background(), []Document{
		{ID: "NR 1234567-1", Name: "PACIFIC WIDGETS LTD.", NRNum: "NR 1234567", State: "APPROVED"},
	})
	require.NoError(t, err)

	err = c.DeleteByNRNum(context.Background(), "NR 1234567")
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], `"PACIFIC WIDGETS LTD."`)
	assert.Contains(t, bodies[1], `nr_num:\"NR 1234567\"`)
}

func TestUpsertNoDocumentsIsNoop(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	require.NoError(t, c.Upsert(context.Background(), nil))
}
