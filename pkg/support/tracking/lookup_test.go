package tracking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	s := NewStatic(Snapshot{Identifier: "mscu7364555", POL: "CNSHA", POD: "NLRTM"})

	got, err := s.Snapshot(context.Background(), "MSCU7364555")
	require.NoError(t, err)
	assert.Equal(t, "NLRTM", got.POD)

	_, err = s.Snapshot(context.Background(), "MAEU1234567")
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Snapshot(ctx, "MSCU7364555")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/containers/MSCU7364555":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"identifier":"MSCU7364555","pol":"CNSHA","pod":"NLRTM","gate_in":"2024-05-10T00:00:00Z"}}`))
		case "/containers/SLOW0000000":
			time.Sleep(200 * time.Millisecond)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	h := NewHTTPLookup(srv.URL+"/", "secret", time.Second)

	got, err := h.Snapshot(context.Background(), "MSCU7364555")
	require.NoError(t, err)
	assert.Equal(t, "CNSHA", got.POL)
	require.NotNil(t, got.GateIn)
	assert.Equal(t, 10, got.GateIn.Day())

	_, err = h.Snapshot(context.Background(), "MAEU1234567")
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Snapshot(ctx, "SLOW0000000")
	assert.Error(t, err)
}
