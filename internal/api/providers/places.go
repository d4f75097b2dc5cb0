package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

type PlacesConfig struct {
	BaseURL       string
	APIKey        string
	PhotoMaxWidth int
	MaxRetries    uint64
}

type PlacePhoto struct {
	PhotoReference string `json:"photo_reference"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

// PlaceDetails is the "result" object of a place details lookup.
type PlaceDetails struct {
	PlaceID          string          `json:"place_id"`
	Name             string          `json:"name"`
	FormattedAddress string          `json:"formatted_address"`
	Photos           []PlacePhoto    `json:"photos"`
	Raw              json.RawMessage `json:"-"`
}

// PhotoReferences returns at most n photo references in provider order.
func (p *PlaceDetails) PhotoReferences(n int) []string {
	refs := make([]string, 0, min(n, len(p.Photos)))
	for _, photo := range p.Photos {
		if len(refs) == n {
			break
		}
		if photo.PhotoReference != "" {
			refs = append(refs, photo.PhotoReference)
		}
	}
	return refs
}

type PlacesClient struct {
	cfg  PlacesConfig
	http *doer
}

func NewPlacesClient(cfg PlacesConfig, httpClient *http.Client, logger *slog.Logger) *PlacesClient {
	if cfg.PhotoMaxWidth <= 0 {
		cfg.PhotoMaxWidth = 1600
	}
	return &PlacesClient{cfg: cfg, http: newDoer("google_places", httpClient, cfg.MaxRetries, logger)}
}

func (c *PlacesClient) Details(ctx context.Context, placeID string) (*PlaceDetails, error) {
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("key", c.cfg.APIKey)

	body, err := c.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/details/json?"+q.Encode(), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch place details: %w", err)
	}

	var envelope struct {
		Status       string          `json:"status"`
		ErrorMessage string          `json:"error_message"`
		Result       json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode place details: %w", err)
	}
	if envelope.Status != "OK" || len(envelope.Result) == 0 {
		return nil, fmt.Errorf("place details for %s: status %q %s: %w", placeID, envelope.Status, envelope.ErrorMessage, ErrNoData)
	}

	var details PlaceDetails
	if err := json.Unmarshal(envelope.Result, &details); err != nil {
		return nil, fmt.Errorf("failed to decode place details result: %w", err)
	}
	details.Raw = envelope.Result
	return &details, nil
}

// Photo downloads the image bytes behind a photo reference.
func (c *PlacesClient) Photo(ctx context.Context, reference string) ([]byte, error) {
	q := url.Values{}
	q.Set("maxwidth", strconv.Itoa(c.cfg.PhotoMaxWidth))
	q.Set("photo_reference", reference)
	q.Set("key", c.cfg.APIKey)

	body, err := c.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/photo?"+q.Encode(), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photo: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("photo %s: %w", reference, ErrNoData)
	}
	return body, nil
}
