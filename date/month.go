package date

import (
	"encoding/json"
	"fmt"
	"time"
)

// MonthFormat is the "YYYY-MM" key used for monthly reports.
const MonthFormat = "2006-01"

// Month identifies a calendar month.
type Month struct {
	y int
	m time.Month
}

// NewMonth returns the normalized Month.
func NewMonth(year int, month time.Month) Month {
	return New(year, month, 1).MonthOf()
}

// ParseMonth parses a "YYYY-MM" month key. A full date is accepted too.
func ParseMonth(str string) (Month, error) {
	if on, err := time.Parse(MonthFormat, str); err == nil {
		return NewMonth(on.Year(), on.Month()), nil
	}
	d, err := Parse(str)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q want format %q", str, MonthFormat)
	}
	return d.MonthOf(), nil
}

// MustParseMonth is like ParseMonth but panics on error.
func MustParseMonth(str string) Month {
	m, err := ParseMonth(str)
	if err != nil {
		panic(err.Error())
	}
	return m
}

func (m Month) IsZero() bool { return m == Month{} }

// First returns the first day of the month.
func (m Month) First() Date { return New(m.y, m.m, 1) }

// Last returns the last day of the month.
func (m Month) Last() Date { return New(m.y, m.m+1, 0) }

// Range returns the whole month as a Range.
func (m Month) Range() Range { return Range{From: m.First(), To: m.Last()} }

// Contains reports whether d falls into the month.
func (m Month) Contains(d Date) bool { return d.y == m.y && d.m == m.m }

func (m Month) Compare(x Month) int {
	switch {
	case m.y != x.y:
		return cmpInt(m.y, x.y)
	default:
		return cmpInt(int(m.m), int(x.m))
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.y, m.m)
}

func (m Month) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

func (m *Month) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	v, err := ParseMonth(str)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
