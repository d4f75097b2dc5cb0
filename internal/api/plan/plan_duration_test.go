package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDaysOf(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"1 day", 1},
		{"4 days", 4},
		{"10 days", 10},
		{"1 week", 7},
		{"2 weeks", 14},
		{"3 weeks", 21},
		{"1 month", 30},
		{"2 months", 60},
		{"4 fortnights", 0},
		{"days", 0},
		{"", 0},
		{"four days", 0},
		{"0 days", 0},
		{"-2 days", 0},
		{"4 Days", 0},
		{"4 days please", 0},
		{"7993589098607472367 months", 0},
		{"1317624576693539402 weeks", 0},
		{"99999999999999999999 days", 0},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysOf(tt.label))
		})
	}
}
