package destination

import (
	"slices"
	"strings"

	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

// CityCountry extracts the city and country used for price lookups.
// Structured address components win; whichever of the two is missing is
// taken from the first two ", " segments of the formatted address.
func CityCountry(place *types.GeocodedPlace) (city, country string) {
	if place == nil {
		return "", ""
	}
	for _, c := range place.AddressComponents {
		switch {
		case city == "" && slices.Contains(c.Types, "locality"):
			city = c.LongName
		case country == "" && slices.Contains(c.Types, "country"):
			country = c.LongName
		}
	}
	if city != "" && country != "" {
		return city, country
	}

	parts := strings.Split(place.FormattedAddress, ", ")
	if len(parts) < 2 {
		return "", ""
	}
	if city == "" {
		city = strings.TrimSpace(parts[0])
	}
	if country == "" {
		country = strings.TrimSpace(parts[1])
	}
	return city, country
}
