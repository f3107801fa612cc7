package models

import (
	"testing"
	"time"
)

func TestParseEpoch(t *testing.T) {
	want := time.Date(2021, 7, 31, 16, 45, 0, 0, time.UTC)
	ms := want.UnixMilli()

	cases := []struct {
		name   string
		in     interface{}
		wantOK bool
	}{
		{name: "int", in: int(ms), wantOK: true},
		{name: "int64", in: ms, wantOK: true},
		{name: "float64", in: float64(ms), wantOK: true},
		{name: "numeric string", in: " 1627749900000 ", wantOK: true},
		{name: "time", in: want, wantOK: true},
		{name: "garbage string", in: "7/31/2021_16:45", wantOK: false},
		{name: "bool", in: true, wantOK: false},
		{name: "nil time pointer", in: (*time.Time)(nil), wantOK: false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := ParseEpoch(c.in)
			if ok != c.wantOK {
				t.Fatalf("ok = %v; want %v", ok, c.wantOK)
			}
			if ok && !got.Equal(want) {
				t.Errorf("got %v; want %v", got, want)
			}
		})
	}
}

func TestEpochRoundTrip(t *testing.T) {
	orig := time.Date(2024, 2, 29, 12, 0, 0, 123e6, time.UTC)
	got, ok := ParseEpoch(EpochMillis(orig))
	if !ok {
		t.Fatal("round trip failed to parse")
	}
	if EpochMillis(got) != EpochMillis(orig) {
		t.Errorf("round trip = %d; want %d", EpochMillis(got), EpochMillis(orig))
	}
}
