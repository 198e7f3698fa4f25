package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RequestID_RoundTrip(t *testing.T) {
	// given
	ctx := WithRequestID(context.Background(), "req-123")

	// when
	id, ok := GetRequestID(ctx)

	// then
	require.True(t, ok)
	assert.Equal(t, "req-123", id)
}

func Test_GetRequestID_Absent(t *testing.T) {
	// when
	id, ok := GetRequestID(context.Background())

	// then
	assert.False(t, ok)
	assert.Empty(t, id)
}

func Test_RequestIDInjector_GeneratesID(t *testing.T) {
	// given
	var id string
	var ok bool
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		id, ok = GetRequestID(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	// when
	RequestIDInjector(next).ServeHTTP(httptest.NewRecorder(), req)

	// then
	require.True(t, ok)
	assert.NotEmpty(t, id)
}
