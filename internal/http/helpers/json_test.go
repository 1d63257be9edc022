package helpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadJSON(t *testing.T) {
	var dst struct {
		Content string `json:"content"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content":"hello","extra":1}`))
	r.Header.Set("Content-Type", "application/json")
	require.True(t, ReadJSON(httptest.NewRecorder(), r, &dst))
	require.Equal(t, "hello", dst.Content)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content":`))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	require.False(t, ReadJSON(rec, r, &dst))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_JSON")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	require.False(t, ReadJSON(rec, r, &dst))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=3&size=abc&zero=0", nil)

	n, err := QueryInt(r, "page", 1)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = QueryInt(r, "missing", 10)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	_, err = QueryInt(r, "size", 10)
	require.Error(t, err)
	_, err = QueryInt(r, "zero", 10)
	require.Error(t, err)
}
