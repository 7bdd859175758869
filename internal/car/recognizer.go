package car

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var ErrNoPlate = errors.New("no plate detected")

// Recognizer calls the automatic plate recognition service with a hosted
// image URL.
type Recognizer struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewRecognizer(endpoint, token string) *Recognizer {
	config := safeurl.GetConfigBuilder().
		SetTimeout(15*time.Second).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return &Recognizer{endpoint: endpoint, token: token, http: safeurl.Client(config).Client}
}

func NewRecognizerWithHTTPClient(endpoint, token string, httpClient *http.Client) *Recognizer {
	return &Recognizer{endpoint: endpoint, token: token, http: httpClient}
}

type recognizerResponse struct {
	Results []struct {
		Plate string `json:"plate"`
	} `json:"results"`
}

func (r *Recognizer) Read(ctx context.Context, imageURL string) (string, error) {
	form := url.Values{"upload_url": {imageURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Token "+r.token)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("plate recognition: status %d", resp.StatusCode)
	}

	var parsed recognizerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Results) == 0 || parsed.Results[0].Plate == "" {
		return "", ErrNoPlate
	}
	return parsed.Results[0].Plate, nil
}
