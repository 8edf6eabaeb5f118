package models

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
)

// WeekdayArray stores recurring days of week as SMALLINT[] (0 = Sunday)
type WeekdayArray []time.Weekday

// Value implements the driver.Valuer interface
func (a WeekdayArray) Value() (driver.Value, error) {
	out := make([]int64, len(a))
	for i, d := range a {
		out[i] = int64(d)
	}
	return pq.Array(out).Value()
}

// Scan implements the sql.Scanner interface
func (a *WeekdayArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	var raw pq.Int64Array
	if err := raw.Scan(src); err != nil {
		return err
	}
	out := make(WeekdayArray, 0, len(raw))
	for _, v := range raw {
		if v < 0 || v > 6 {
			return fmt.Errorf("invalid weekday %d", v)
		}
		out = append(out, time.Weekday(v))
	}
	*a = out
	return nil
}

// Contains reports whether d is one of the recurring days
func (a WeekdayArray) Contains(d time.Weekday) bool {
	for _, v := range a {
		if v == d {
			return true
		}
	}
	return false
}

// SeatSet is a set of seat numbers
type SeatSet map[int]struct{}

// NewSeatSet builds a set from seat numbers
func NewSeatSet(seats ...int) SeatSet {
	s := make(SeatSet, len(seats))
	for _, n := range seats {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether seat n is in the set
func (s SeatSet) Has(n int) bool {
	_, ok := s[n]
	return ok
}

// Sorted returns the seat numbers in ascending order
func (s SeatSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
