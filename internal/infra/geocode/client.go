// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package geocode reverse-geocodes coordinates through the Google
// Geocoding JSON API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

// Client performs one lookup per call; it never retries.
type Client struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
	Limiter  *rate.Limiter
}

var _ ports.Geocoder = (*Client)(nil)

// NewClient limits lookups to ratePerSecond with a burst of one.
func NewClient(endpoint, apiKey string, ratePerSecond float64, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Client{
		Endpoint: endpoint,
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: timeout},
		Limiter:  rate.NewLimiter(limit, 1),
	}
}

type response struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

func (c *Client) Lookup(ctx context.Context, at model.LatLng) (model.Address, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return model.Address{}, fmt.Errorf("%w: rate limit: %v", model.ErrGeocodeFailed, err)
		}
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return model.Address{}, fmt.Errorf("%w: endpoint: %v", model.ErrGeocodeFailed, err)
	}
	q := u.Query()
	q.Set("latlng", strconv.FormatFloat(at.Lat, 'f', 6, 64)+","+strconv.FormatFloat(at.Lng, 'f', 6, 64))
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.Address{}, fmt.Errorf("%w: %v", model.ErrGeocodeFailed, err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return model.Address{}, fmt.Errorf("%w: %v", model.ErrGeocodeFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return model.Address{}, fmt.Errorf("%w: http status %d", model.ErrGeocodeFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Address{}, fmt.Errorf("%w: read body: %v", model.ErrGeocodeFailed, err)
	}
	return parseAddress(body)
}

// parseAddress takes the street from the route component and the locality
// from locality, falling back to administrative_area_level_2, of the first
// result. Only the first type of each component is considered.
func parseAddress(body []byte) (model.Address, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return model.Address{}, fmt.Errorf("%w: decode: %v", model.ErrGeocodeFailed, err)
	}
	if r.Status != "OK" {
		return model.Address{}, fmt.Errorf("%w: status %s %s", model.ErrGeocodeFailed, r.Status, r.ErrorMessage)
	}
	if len(r.Results) == 0 {
		return model.Address{}, fmt.Errorf("%w: no results", model.ErrGeocodeFailed)
	}

	var street, locality, district string
	for _, comp := range r.Results[0].AddressComponents {
		if len(comp.Types) == 0 {
			continue
		}
		switch comp.Types[0] {
		case "route":
			street = comp.LongName
		case "locality":
			locality = comp.LongName
		case "administrative_area_level_2":
			district = comp.LongName
		}
	}
	if locality == "" {
		locality = district
	}
	if street == "" || locality == "" {
		return model.Address{}, fmt.Errorf("%w: result lacks street or locality", model.ErrGeocodeFailed)
	}
	return model.Address{Street: street, Locality: locality}, nil
}
