// Package geocode resolves street addresses to coordinates and back using a
// Nominatim-compatible service.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"backend-platego/internal/shared/geo"

	"github.com/doyensec/safeurl"
)

var ErrNoResult = errors.New("geocode: no result")

type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client whose outbound requests refuse private and loopback
// destinations. Third-party geocoders live on the public internet; anything
// else in the configured URL is a misconfiguration or an attack.
func New(baseURL string) *Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(10*time.Second).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return &Client{baseURL: baseURL, http: safeurl.Client(config).Client}
}

// NewWithHTTPClient is for tests and for deployments that front the geocoder
// with an internal proxy.
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, http: httpClient}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Forward resolves an address string to a coordinate pair.
func (c *Client) Forward(ctx context.Context, address string) (geo.Point, error) {
	if address == "" {
		return geo.Point{}, ErrNoResult
	}

	endpoint := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", c.baseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.Point{}, err
	}
	req.Header.Set("Accept-Language", "en")

	resp, err := c.http.Do(req)
	if err != nil {
		return geo.Point{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("geocode: status %d", resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return geo.Point{}, err
	}
	if len(results) == 0 {
		return geo.Point{}, ErrNoResult
	}

	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lng, errLng := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLng != nil {
		return geo.Point{}, ErrNoResult
	}

	p := geo.Point{Lat: lat, Lng: lng}
	if !p.Valid() || !p.Known() {
		return geo.Point{}, ErrNoResult
	}
	return p, nil
}

type reverseResult struct {
	DisplayName string `json:"display_name"`
}

// Reverse resolves a coordinate pair to a human-readable address.
func (c *Client) Reverse(ctx context.Context, p geo.Point) (string, error) {
	if !p.Known() {
		return "", ErrNoResult
	}

	endpoint := fmt.Sprintf("%s/reverse?format=json&lat=%g&lon=%g", c.baseURL, p.Lat, p.Lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept-Language", "en")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode: status %d", resp.StatusCode)
	}

	var result reverseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.DisplayName == "" {
		return "", ErrNoResult
	}
	return result.DisplayName, nil
}
