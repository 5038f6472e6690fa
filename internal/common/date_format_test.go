package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayPrefix(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
		ok    bool
	}{
		{"plain day", "2023-01-09", "2023-01-09", true},
		{"with time", "2023-01-09T00:00", "2023-01-09", true},
		{"selector label", "2023-01-05 (Cloud: 3.21%)", "2023-01-05", true},
		{"empty", "", "", false},
		{"too short", "2023-01", "", false},
		{"not a date", "yesterday!!", "", false},
		{"invalid month", "2023-13-01", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DayPrefix(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompactDay(t *testing.T) {
	assert.Equal(t, "20230109", CompactDay("2023-01-09"))
}

func TestNextDay(t *testing.T) {
	next, err := NextDay("2023-01-31")
	require.NoError(t, err)
	assert.Equal(t, "2023-02-01", next)

	_, err = NextDay("nope")
	assert.Error(t, err)
}

func TestValidateISO8601(t *testing.T) {
	assert.True(t, ValidateISO8601("2023-02-05"))
	assert.False(t, ValidateISO8601(""))
	assert.False(t, ValidateISO8601("05/02/2023"))
}
