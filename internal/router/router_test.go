package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calndr/calndr/internal/custody"
	"github.com/calndr/calndr/internal/storage"
)

func newTestRouter() *Router {
	return &Router{logger: zerolog.Nop(), maxBody: 1 << 20}
}

func TestHealthzIsOpen(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMissingBearerIsUnauthorized(t *testing.T) {
	for _, header := range []string{"", "Basic dXNlcjpwdw==", "bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/custody/2024/6", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		newTestRouter().routes().ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrConflict, http.StatusConflict},
		{custody.ErrUnsupportedPattern, http.StatusBadRequest},
		{custody.ErrInsufficientFamilyMembers, http.StatusBadRequest},
		{&custody.ValidationError{Msg: "invalid date"}, http.StatusBadRequest},
		{errors.New("pool exhausted"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		newTestRouter().writeError(rec, c.err)
		assert.Equal(t, c.status, rec.Code, c.err.Error())
	}

	// Internal errors never leak their message.
	rec := httptest.NewRecorder()
	newTestRouter().writeError(rec, errors.New("dsn=postgres://secret"))
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestMonthParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("year", "2024")
	req.SetPathValue("month", "6")
	year, month, ok := monthParams(req)
	require.True(t, ok)
	assert.Equal(t, 2024, year)
	assert.Equal(t, "June", month.String())

	for _, bad := range [][2]string{{"0", "6"}, {"2024", "0"}, {"2024", "13"}, {"x", "6"}, {"2024", "y"}} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("year", bad[0])
		req.SetPathValue("month", bad[1])
		_, _, ok := monthParams(req)
		assert.False(t, ok, "year=%s month=%s", bad[0], bad[1])
	}
}

func TestDecodeRejectsBadBodies(t *testing.T) {
	r := newTestRouter()
	for _, body := range []string{"", "{not json", `{"unknown_field":1}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		var dst custodyBody
		assert.False(t, r.decode(rec, req, &dst), "body %q", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2024-06-10","custodian_id":"x"}`))
	rec := httptest.NewRecorder()
	var dst custodyBody
	require.True(t, r.decode(rec, req, &dst))
	assert.Equal(t, "2024-06-10", dst.Date)
}
