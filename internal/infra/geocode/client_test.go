// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{
  "status": "OK",
  "results": [{
    "address_components": [
      {"long_name": "12", "types": ["street_number"]},
      {"long_name": "King Fahd Road", "types": ["route"]},
      {"long_name": "Dhahran", "types": ["locality", "political"]},
      {"long_name": "Eastern Province", "types": ["administrative_area_level_1", "political"]}
    ]
  }]
}`

func TestLookupParsesStreetAndLocality(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 0, time.Second)
	addr, err := c.Lookup(context.Background(), model.LatLng{Lat: 26.3, Lng: 50.1})
	require.NoError(t, err)
	assert.Equal(t, "King Fahd Road, Dhahran", addr.String())
	assert.Contains(t, gotQuery, "latlng=26.300000%2C50.100000")
	assert.Contains(t, gotQuery, "key=secret")
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    model.Address
		wantErr bool
	}{
		{
			name: "district fallback",
			body: `{"status":"OK","results":[{"address_components":[
				{"long_name":"Main St","types":["route"]},
				{"long_name":"County","types":["administrative_area_level_2"]}]}]}`,
			want: model.Address{Street: "Main St", Locality: "County"},
		},
		{
			name: "missing street",
			body: `{"status":"OK","results":[{"address_components":[
				{"long_name":"Town","types":["locality"]}]}]}`,
			wantErr: true,
		},
		{name: "zero results", body: `{"status":"ZERO_RESULTS","results":[]}`, wantErr: true},
		{name: "denied", body: `{"status":"REQUEST_DENIED","error_message":"bad key"}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAddress([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrGeocodeFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 0, time.Second).Lookup(context.Background(), model.LatLng{})
	assert.ErrorIs(t, err, model.ErrGeocodeFailed)
}

func TestLookupHonorsCancelledContextWhileRateLimited(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", 0.001, time.Second)
	require.True(t, c.Limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Lookup(ctx, model.LatLng{})
	assert.ErrorIs(t, err, model.ErrGeocodeFailed)
}
