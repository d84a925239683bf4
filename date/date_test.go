package date

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTime assert that the time() is cannonical and gives comparable times.
func TestTime(t *testing.T) {
	d1 := New(2025, 7, 31)
	d2 := New(2025, 7, 31)
	assert.Equal(t, d1.time(), d2.time(), "same day gives two different time")
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{"2025-07-01", New(2025, time.July, 1), false},
		{"2025-7-1", New(2025, time.July, 1), false},
		{"2025/07/01", Date{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateJSON(t *testing.T) {
	var v struct {
		On    Date `json:"on"`
		Empty Date `json:"empty"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"on":"2024-3-1","empty":null}`), &v))
	assert.Equal(t, New(2024, time.March, 1), v.On)
	assert.True(t, v.Empty.IsZero())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"on":"2024-03-01","empty":null}`, string(out))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 10, MustParse("2024-01-01").DaysBetween(MustParse("2024-01-11")))
	assert.Equal(t, 10, MustParse("2024-01-11").DaysBetween(MustParse("2024-01-01")))
}

func TestMonth(t *testing.T) {
	m := MustParseMonth("2024-02")
	assert.Equal(t, "2024-02", m.String())
	assert.Equal(t, New(2024, time.February, 1), m.First())
	assert.Equal(t, New(2024, time.February, 29), m.Last())
	assert.True(t, m.Contains(MustParse("2024-02-15")))
	assert.False(t, m.Contains(MustParse("2024-03-01")))
	assert.Equal(t, m, MustParse("2024-02-29").MonthOf())
	assert.Equal(t, -1, m.Compare(MustParseMonth("2024-03")))
	assert.Equal(t, 1, m.Compare(MustParseMonth("2023-12")))

	fromDate, err := ParseMonth("2024-02-10")
	require.NoError(t, err)
	assert.Equal(t, m, fromDate)

	_, err = ParseMonth("feb")
	assert.Error(t, err)
}

func TestRangeContains(t *testing.T) {
	r := Range{From: MustParse("2024-01-01"), To: MustParse("2024-01-31")}
	assert.True(t, r.Contains(MustParse("2024-01-01")))
	assert.True(t, r.Contains(MustParse("2024-01-31")))
	assert.False(t, r.Contains(MustParse("2024-02-01")))

	open := Range{From: MustParse("2024-01-01")}
	assert.True(t, open.Contains(MustParse("2030-01-01")))
}
