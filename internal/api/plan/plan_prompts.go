package plan

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

const outlineSystemPrompt = `You are a travel agent. Plan a trip itinerary based on the parameters provided by the user and give an outline of the trip day by day for future use. Provide an itinerary of activities, attractions, hotel, dining and lunch options. Include information about museums, parks and local events. Put the notes and the hotel recommendation at the end.`

const summarySystemPrompt = `You are a travel agent. Write a trip plan summary of a few sentences. Make it sound like promotional text written by a travel agency.`

const dayPlanSystemPrompt = `
You are a travel agent. You will be provided a general plan of a trip by the user. Write a detailed schedule for the day of the trip specified by the user. Don't mention anything from the other days. Don't add any notes, only the requested structure.
Don't add the day number as a separate title. The structure is text divided into sections, each identified by a title (e.g. "Morning", "Afternoon", "Evening"). Titles introduce the purpose of each section and are followed by its content.
The response must always be JSON.
Return the information STRICTLY in this format:
[
  {
    "title": "Morning",
    "content": ["ABC", "XYZ"],
    "places": ["ABC"]
  },
  {
    "title": "Afternoon",
    "content": ["ABC", "XYZ", "QWE"],
    "places": ["ABC"]
  }
]
`

// TripProperties renders the plan parameters as "Label: value" lines,
// skipping empty values and the default traveler count.
func TripProperties(p types.PlanParameters) []string {
	var properties []string
	add := func(label, value string) {
		if value != "" {
			properties = append(properties, fmt.Sprintf("%s: %s", label, value))
		}
	}

	add("Trip Type", p.TripType)
	add("Destination", p.Destination)
	add("Duration", p.Duration)
	add("Trip Budget", p.TripBudget)
	add("Accommodation Booking", p.AccommodationBooking)
	if p.TravelersCount != 1 {
		add("Travelers Count", fmt.Sprintf("%d", p.TravelersCount))
	}
	add("Special Requests", p.SpecialRequests)
	return properties
}

// activitiesPrompt lists the known destination activities by category so the
// outline can refer to real places.
func activitiesPrompt(destination string, activities []types.Activity) string {
	titles := func(category string) string {
		var out []string
		for _, a := range activities {
			if a.Category == category {
				out = append(out, a.Title)
			}
		}
		return strings.Join(out, ", ")
	}

	return fmt.Sprintf(`Some of the things you can do while visiting %s are
visiting %s,
eating in %s,
shopping in %s,
attending %s`,
		destination,
		titles(types.ActivityCategorySights),
		titles(types.ActivityCategoryRestaurant),
		titles(types.ActivityCategoryShopping),
		titles(types.ActivityCategoryActivity),
	)
}

func dayPlanUserPrompt(day int, properties []string, outline string) string {
	return fmt.Sprintf(`
Build plan for day %d

General information about the trip:
%s

Outline:
%s
`, day, strings.Join(properties, "; "), outline)
}
