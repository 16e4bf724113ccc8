package amm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionSendsSignedRequest(t *testing.T) {
	var got provisionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/pools", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-LP-API-KEY"))
		assert.NotEmpty(t, r.Header.Get("X-LP-TIMESTAMP"))
		assert.NotEmpty(t, r.Header.Get("X-LP-SIGNATURE"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(poolResponse{
			PoolID:   "pool-1",
			MarketID: got.MarketID,
			Symbol:   got.Symbol,
			Status:   "active",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", "secret", 0)

	err := c.Provision(context.Background(), 7, "AGX",
		uint256.NewInt(500_000), uint256.NewInt(2_000_000))
	require.NoError(t, err)

	assert.Equal(t, int64(7), got.MarketID)
	assert.Equal(t, "AGX", got.Symbol)
	assert.Equal(t, "500000", got.Tokens)
	assert.Equal(t, "2000000", got.Value)
}

func TestProvisionRejectsFailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(poolResponse{PoolID: "pool-1", Status: "failed"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", "secret", 0)

	err := c.Provision(context.Background(), 7, "AGX", uint256.NewInt(1), uint256.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestProvisionSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(errorResponse{Code: "pool_exists", Message: "pool already exists"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", "secret", 0)

	err := c.Provision(context.Background(), 7, "AGX", uint256.NewInt(1), uint256.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
	assert.Contains(t, err.Error(), "pool_exists")
}
