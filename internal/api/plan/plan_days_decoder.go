package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/FACorreiaa/go-trip-planner/internal/types"
)

var (
	ErrDayPlanNotJSON  = errors.New("day plan is not valid JSON")
	ErrDayPlanNotArray = errors.New("day plan is not a JSON array")
	ErrDayPlanSection  = errors.New("day plan section does not match {title, content[], places[]}")
)

// DayPlanDecoding is the outcome of decoding one model reply. Err is nil for
// an accepted reply and names the rejection reason otherwise.
type DayPlanDecoding struct {
	Sections []types.DaySection
	Err      error
}

func (d DayPlanDecoding) Valid() bool { return d.Err == nil }

// DecodeDayPlan validates a reply against the day plan shape: an array of
// objects whose title is a string and whose content and places are arrays of
// strings. Markdown code fences around the JSON are tolerated.
func DecodeDayPlan(reply string) DayPlanDecoding {
	raw := []byte(stripCodeFence(reply))
	if !json.Valid(raw) {
		return DayPlanDecoding{Err: ErrDayPlanNotJSON}
	}
	if len(raw) == 0 || raw[0] != '[' {
		return DayPlanDecoding{Err: ErrDayPlanNotArray}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return DayPlanDecoding{Err: fmt.Errorf("%w: %v", ErrDayPlanNotArray, err)}
	}

	sections := make([]types.DaySection, 0, len(items))
	for i, item := range items {
		section, err := decodeSection(item)
		if err != nil {
			return DayPlanDecoding{Err: fmt.Errorf("%w: section %d: %v", ErrDayPlanSection, i, err)}
		}
		sections = append(sections, section)
	}
	return DayPlanDecoding{Sections: sections}
}

func decodeSection(item json.RawMessage) (types.DaySection, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return types.DaySection{}, errors.New("not an object")
	}

	var section types.DaySection
	var err error
	if section.Title, err = decodeString(fields["title"]); err != nil {
		return types.DaySection{}, fmt.Errorf("title: %w", err)
	}
	if section.Content, err = decodeStrings(fields["content"]); err != nil {
		return types.DaySection{}, fmt.Errorf("content: %w", err)
	}
	if section.Places, err = decodeStrings(fields["places"]); err != nil {
		return types.DaySection{}, fmt.Errorf("places: %w", err)
	}
	return section, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("missing")
	}
	if raw[0] != '"' {
		return "", errors.New("not a string")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func decodeStrings(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("missing")
	}
	if raw[0] != '[' {
		return nil, errors.New("not an array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := decodeString(item)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func stripCodeFence(reply string) string {
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "```json") {
		reply = strings.TrimPrefix(reply, "```json")
	} else if strings.HasPrefix(reply, "```") {
		reply = strings.TrimPrefix(reply, "```")
	}
	reply = strings.TrimSuffix(reply, "```")
	return strings.TrimSpace(reply)
}
