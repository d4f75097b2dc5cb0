package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Destination struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	GooglePlaceID   string          `json:"googlePlaceId"`
	GeocoderResults json.RawMessage `json:"geocoderResults,omitempty"`
	PlaceDetails    json.RawMessage `json:"placeDetails,omitempty"`
	ClimateData     json.RawMessage `json:"climateData,omitempty"`
	CostOfLiving    json.RawMessage `json:"costOfLiving,omitempty"`
	Description     string          `json:"description"`
	Image           string          `json:"image,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Complete reports whether every enrichable field has been filled.
func (d *Destination) Complete() bool {
	return d.Title != "" &&
		d.Description != "" &&
		len(d.GeocoderResults) > 0 &&
		len(d.PlaceDetails) > 0 &&
		len(d.ClimateData) > 0 &&
		len(d.CostOfLiving) > 0
}

type Activity struct {
	ID              uuid.UUID       `json:"id"`
	DestinationID   uuid.UUID       `json:"destinationId"`
	Category        string          `json:"category"`
	Title           string          `json:"title"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	BookingLink     string          `json:"bookingLink,omitempty"`
	ExternalPlaceID string          `json:"externalPlaceId"`
	CreatedAt       time.Time       `json:"createdAt"`
}

const (
	ActivityCategorySights     = "sights"
	ActivityCategoryRestaurant = "restaurant"
	ActivityCategoryShopping   = "shopping"
	ActivityCategoryActivity   = "activity"
)

type Hotel struct {
	ID            uuid.UUID       `json:"id"`
	DestinationID uuid.UUID       `json:"destinationId"`
	Name          string          `json:"name"`
	ChainCode     string          `json:"chainCode"`
	IATACode      string          `json:"iataCode"`
	DupeID        int64           `json:"dupeId"`
	HotelID       string          `json:"hotelId"`
	GeoCode       json.RawMessage `json:"geoCode,omitempty"`
	Address       json.RawMessage `json:"address,omitempty"`
}

type DestinationImage struct {
	ID            uuid.UUID  `json:"id"`
	DestinationID *uuid.UUID `json:"destinationId,omitempty"`
	Image         string     `json:"image"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// GeocodedPlace is a geocoder result as produced by the places provider.
// Only the fields the orchestrator reads are decoded; Raw keeps the full
// payload so it can be stored unchanged.
type GeocodedPlace struct {
	PlaceID           string
	FormattedAddress  string
	Location          LatLng
	AddressComponents []AddressComponent
	Raw               json.RawMessage
}

type geocodedPlaceWire struct {
	PlaceID          string `json:"place_id"`
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location LatLng `json:"location"`
	} `json:"geometry"`
	AddressComponents []AddressComponent `json:"address_components,omitempty"`
}

func (g *GeocodedPlace) UnmarshalJSON(b []byte) error {
	var wire geocodedPlaceWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	g.PlaceID = wire.PlaceID
	g.FormattedAddress = wire.FormattedAddress
	g.Location = wire.Geometry.Location
	g.AddressComponents = wire.AddressComponents
	g.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (g GeocodedPlace) MarshalJSON() ([]byte, error) {
	if len(g.Raw) > 0 {
		return g.Raw, nil
	}
	var wire geocodedPlaceWire
	wire.PlaceID = g.PlaceID
	wire.FormattedAddress = g.FormattedAddress
	wire.Geometry.Location = g.Location
	wire.AddressComponents = g.AddressComponents
	return json.Marshal(wire)
}

// ParseGeocodedPlace decodes a stored geocoder payload.
func ParseGeocodedPlace(raw json.RawMessage) (*GeocodedPlace, error) {
	var g GeocodedPlace
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

type DestinationDetailsResponse struct {
	Response string `json:"response"`
}
