package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const amadeusTokenKey = "amadeus_access_token"

type AmadeusConfig struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	RadiusKm          int
	POIPageSize       int
	POIMaxResults     int
	RequestsPerSecond float64
	MaxRetries        uint64
}

type GeoCode struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type AmadeusPOI struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Tags     []string        `json:"tags"`
	GeoCode  GeoCode         `json:"geoCode"`
	Raw      json.RawMessage `json:"-"`
}

type AmadeusActivity struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ShortDescription string          `json:"shortDescription"`
	Pictures         []string        `json:"pictures"`
	BookingLink      string          `json:"bookingLink"`
	GeoCode          GeoCode         `json:"geoCode"`
	Raw              json.RawMessage `json:"-"`
}

type AmadeusHotel struct {
	Name      string          `json:"name"`
	ChainCode string          `json:"chainCode"`
	IATACode  string          `json:"iataCode"`
	DupeID    int64           `json:"dupeId"`
	HotelID   string          `json:"hotelId"`
	GeoCode   json.RawMessage `json:"geoCode"`
	Address   json.RawMessage `json:"address"`
}

// AmadeusClient searches points of interest, bookable activities and hotels
// around a coordinate. The OAuth2 client-credentials token is cached until
// shortly before it expires.
type AmadeusClient struct {
	cfg     AmadeusConfig
	http    *doer
	tokens  *cache.Cache
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewAmadeusClient(cfg AmadeusConfig, httpClient *http.Client, logger *slog.Logger) *AmadeusClient {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 10
	}
	if cfg.POIPageSize <= 0 {
		cfg.POIPageSize = 10
	}
	if cfg.POIMaxResults <= 0 {
		cfg.POIMaxResults = 50
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &AmadeusClient{
		cfg:     cfg,
		http:    newDoer("amadeus", httpClient, cfg.MaxRetries, logger),
		tokens:  cache.New(30*time.Minute, 10*time.Minute),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With(slog.String("provider", "amadeus")),
	}
}

type amadeusToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *AmadeusClient) accessToken(ctx context.Context) (string, error) {
	if token, ok := c.tokens.Get(amadeusTokenKey); ok {
		return token.(string), nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.APIKey)
	form.Set("client_secret", c.cfg.APISecret)

	body, err := c.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to obtain amadeus access token: %w", err)
	}

	var token amadeusToken
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("failed to decode amadeus access token: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("failed to obtain amadeus access token: empty token")
	}

	ttl := time.Duration(token.ExpiresIn)*time.Second - 30*time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.tokens.Set(amadeusTokenKey, token.AccessToken, ttl)
	return token.AccessToken, nil
}

func (c *AmadeusClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
}

func (c *AmadeusClient) geoQuery(lat, lng float64) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(c.cfg.RadiusKm))
	return q
}

type amadeusPage struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
}

// SearchPOIs pages through points of interest until the provider runs out or
// POIMaxResults is reached. Pages already fetched are returned with the error
// of a failing later page.
func (c *AmadeusClient) SearchPOIs(ctx context.Context, lat, lng float64) ([]AmadeusPOI, error) {
	var results []AmadeusPOI
	for offset := 0; len(results) < c.cfg.POIMaxResults; offset += c.cfg.POIPageSize {
		q := c.geoQuery(lat, lng)
		q.Set("page[offset]", strconv.Itoa(offset))
		q.Set("page[limit]", strconv.Itoa(c.cfg.POIPageSize))

		body, err := c.get(ctx, "/v1/reference-data/locations/pois", q)
		if err != nil {
			return results, fmt.Errorf("failed to fetch POIs: %w", err)
		}
		var page amadeusPage
		if err := json.Unmarshal(body, &page); err != nil {
			return results, fmt.Errorf("failed to decode POIs: %w", err)
		}
		for _, raw := range page.Data {
			var poi AmadeusPOI
			if err := json.Unmarshal(raw, &poi); err != nil {
				c.logger.WarnContext(ctx, "Skipping undecodable POI", slog.Any("error", err))
				continue
			}
			poi.Raw = raw
			results = append(results, poi)
		}
		if len(page.Data) == 0 || len(results) >= page.Meta.Count {
			break
		}
	}
	if len(results) > c.cfg.POIMaxResults {
		results = results[:c.cfg.POIMaxResults]
	}
	return results, nil
}

// SearchActivities returns bookable activities that have at least one picture.
func (c *AmadeusClient) SearchActivities(ctx context.Context, lat, lng float64) ([]AmadeusActivity, error) {
	body, err := c.get(ctx, "/v1/shopping/activities", c.geoQuery(lat, lng))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activities: %w", err)
	}
	var page amadeusPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}
	results := make([]AmadeusActivity, 0, len(page.Data))
	for _, raw := range page.Data {
		var activity AmadeusActivity
		if err := json.Unmarshal(raw, &activity); err != nil {
			c.logger.WarnContext(ctx, "Skipping undecodable activity", slog.Any("error", err))
			continue
		}
		if len(activity.Pictures) == 0 {
			continue
		}
		activity.Raw = raw
		results = append(results, activity)
	}
	return results, nil
}

func (c *AmadeusClient) SearchHotels(ctx context.Context, lat, lng float64) ([]AmadeusHotel, error) {
	q := c.geoQuery(lat, lng)
	q.Set("radiusUnit", "KM")
	body, err := c.get(ctx, "/v1/reference-data/locations/hotels/by-geocode", q)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hotels: %w", err)
	}
	var page struct {
		Data []AmadeusHotel `json:"data"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode hotels: %w", err)
	}
	return page.Data, nil
}
