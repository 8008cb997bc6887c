package census

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/censusflow/censusflow/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(Options{
		BaseURL:     server.URL + "/data/%d/acs/acs1",
		APIKey:      "test-key",
		MaxAttempts: 1,
	}, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func TestGroupData(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2023/acs/acs1", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "group(B01001)", q.Get("get"))
		assert.Equal(t, "place:*", q.Get("for"))
		assert.Equal(t, "state:17", q.Get("in"))
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "true", q.Get("descriptive"))

		fmt.Fprint(w, `[
			["GEO_ID","NAME","B01001_001E","state","place"],
			["Geography","Geographic Area Name","Estimate!!Total:","State","Place"],
			["1600000US1765000","Springfield city, Illinois","112544","17","65000"],
			["1600000US1714000","Chicago city, Illinois",null,"17","14000"]
		]`)
	}))

	table, err := c.GroupData(context.Background(), 2023, "17", "B01001")
	require.NoError(t, err)
	require.False(t, table.Empty())

	assert.Equal(t, []string{"GEO_ID", "NAME", "B01001_001E", "state", "place"}, table.Codes)
	assert.Equal(t, "Estimate!!Total:", table.Labels[2])
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "112544", table.Rows[0][2])
	assert.Equal(t, "", table.Rows[1][2], "JSON null arrives as empty string")
}

func TestGroupDataNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := c.GroupData(context.Background(), 2020, "17", "B01001")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err), "404 maps to not_found, not a retryable failure")
}

func TestGroupDataHeadersOnly(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[["GEO_ID","NAME"],["Geography","Geographic Area Name"]]`)
	}))

	table, err := c.GroupData(context.Background(), 2023, "17", "B01001")
	require.NoError(t, err)
	assert.True(t, table.Empty(), "headers without data rows count as empty")
}

func TestGroupDataRetriesTransientFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[["NAME","state","place"],["Name","State","Place"],["Springfield","17","65000"]]`)
	}))
	defer server.Close()

	c := NewClient(Options{
		BaseURL:     server.URL + "/data/%d/acs/acs1",
		APIKey:      "test-key",
		MaxAttempts: 3,
	}, zap.NewNop())
	defer c.Close()
	// Shrink the backoff so the retry is immediate
	c.retry.InitialDelay = 0

	table, err := c.GroupData(context.Background(), 2023, "17", "B01001")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, table.Rows, 1)
}

func TestGroupDescriptions(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2023/acs/acs1/groups.json", r.URL.Path)
		fmt.Fprint(w, `{"groups":[
			{"name":"B01001","description":"SEX BY AGE","variables":"..."},
			{"name":"B19083","description":"GINI INDEX OF INCOME INEQUALITY"}
		]}`)
	}))

	descriptions, err := c.GroupDescriptions(context.Background(), 2023)
	require.NoError(t, err)
	assert.Equal(t, "SEX BY AGE", descriptions["B01001"])
	assert.Equal(t, "GINI INDEX OF INCOME INEQUALITY", descriptions["B19083"])
}

func TestGroupDataMalformedJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}))

	_, err := c.GroupData(context.Background(), 2023, "17", "B01001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeData))
}
