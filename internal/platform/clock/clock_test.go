package clock

import (
	"testing"
	"time"
)

func TestFixed_Advance(t *testing.T) {
	start := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	c := NewFixed(start)

	c.Advance(36 * time.Hour)

	want := time.Date(2024, 7, 2, 21, 0, 0, 0, time.UTC)
	if !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}
}

func TestDate(t *testing.T) {
	got := Date(time.Date(2024, 7, 1, 23, 59, 59, 5, time.UTC))
	want := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Date() = %v, want %v", got, want)
	}
}
