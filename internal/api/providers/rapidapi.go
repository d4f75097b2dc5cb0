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

type RapidAPIConfig struct {
	BaseURL    string
	Host       string
	APIKey     string
	MaxRetries uint64
}

func rapidRequest(ctx context.Context, cfg RapidAPIConfig, path string, q url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", cfg.APIKey)
	req.Header.Set("X-RapidAPI-Host", cfg.Host)
	return req, nil
}

// MeteostatClient fetches climate normals for a coordinate.
type MeteostatClient struct {
	cfg       RapidAPIConfig
	startYear int
	endYear   int
	http      *doer
}

func NewMeteostatClient(cfg RapidAPIConfig, startYear, endYear int, httpClient *http.Client, logger *slog.Logger) *MeteostatClient {
	return &MeteostatClient{
		cfg:       cfg,
		startYear: startYear,
		endYear:   endYear,
		http:      newDoer("meteostat", httpClient, cfg.MaxRetries, logger),
	}
}

// Normals returns the raw per-month series for the reference period.
func (c *MeteostatClient) Normals(ctx context.Context, lat, lng float64) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("start", strconv.Itoa(c.startYear))
	q.Set("end", strconv.Itoa(c.endYear))

	body, err := c.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return rapidRequest(ctx, c.cfg, "/point/normals", q)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch climate normals: %w", err)
	}

	var payload struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode climate normals: %w", err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("climate normals: %w", ErrNoData)
	}
	series, err := json.Marshal(payload.Data)
	if err != nil {
		return nil, err
	}
	return series, nil
}

// CostOfLivingClient fetches price listings for a city.
type CostOfLivingClient struct {
	cfg  RapidAPIConfig
	http *doer
}

func NewCostOfLivingClient(cfg RapidAPIConfig, httpClient *http.Client, logger *slog.Logger) *CostOfLivingClient {
	return &CostOfLivingClient{cfg: cfg, http: newDoer("cost_of_living", httpClient, cfg.MaxRetries, logger)}
}

// Prices returns the whole provider payload when it lists at least one price.
func (c *CostOfLivingClient) Prices(ctx context.Context, city, country string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("city_name", city)
	q.Set("country_name", country)

	body, err := c.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return rapidRequest(ctx, c.cfg, "/prices", q)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cost of living: %w", err)
	}

	var payload struct {
		Prices []json.RawMessage `json:"prices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode cost of living: %w", err)
	}
	if len(payload.Prices) == 0 {
		return nil, fmt.Errorf("cost of living for %s, %s: %w", city, country, ErrNoData)
	}
	return json.RawMessage(body), nil
}
