package models

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFilterSpec(t *testing.T) {
	q := url.Values{}
	q.Set("query", "  ocean ")
	q.Set("status", "Delayed, in-transit,,")
	q.Set("courier", "SwiftShip")
	q.Set("mine", "1")
	q.Set("from", "2025-03-01T10:00:00Z")
	q.Set("to", "2025-03-02")

	f := ParseFilterSpec(q)
	require.Equal(t, "ocean", f.Query)
	require.Equal(t, []DeliveryStatus{StatusDelayed, StatusInTransit}, f.Statuses)
	require.Equal(t, "SwiftShip", f.Courier)
	require.True(t, f.MineOnly)
	require.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), *f.From)
	// дата без времени покрывает весь день
	require.Equal(t, time.Date(2025, 3, 2, 23, 59, 59, 999999999, time.UTC), *f.To)
}

func TestParseFilterSpec_StatusSynonyms(t *testing.T) {
	f := ParseFilterSpec(url.Values{"status": {"IN_TRANSIT,Delay,exception-weather,in transit,lost"}})
	require.Equal(t, []DeliveryStatus{StatusInTransit, StatusDelayed, "lost"}, f.Statuses)
}

func TestLookupStatus(t *testing.T) {
	for raw, want := range map[string]DeliveryStatus{
		"DELIVERED":         StatusDelivered,
		" in_transit ":      StatusInTransit,
		"InTransit":         StatusInTransit,
		"Exception":         StatusDelayed,
		"exception: damage": StatusDelayed,
	} {
		got, ok := LookupStatus(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}
	_, ok := LookupStatus("lost")
	require.False(t, ok)
}

func TestParseFilterSpec_EmptyAndInvalid(t *testing.T) {
	f := ParseFilterSpec(url.Values{"from": {"yesterday"}, "mine": {"no"}})
	require.Empty(t, f.Statuses)
	require.False(t, f.MineOnly)
	require.Nil(t, f.From)
	require.Nil(t, f.To)
}

func TestFilterSpec_ValuesParsesBack(t *testing.T) {
	from := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := FilterSpec{
		Query:    "ann",
		Statuses: []DeliveryStatus{StatusDelivered},
		Courier:  "NorthStar",
		MineOnly: true,
		From:     &from,
	}
	q := f.Values()
	require.Equal(t, "delivered", q.Get("status"))
	require.Equal(t, "true", q.Get("mine"))
	back := ParseFilterSpec(q)
	require.True(t, from.Equal(*back.From))
	back.From, f.From = nil, nil
	require.Equal(t, f, back)
}

func TestDefaultFilterSpec(t *testing.T) {
	f := DefaultFilterSpec()
	require.Equal(t, AllStatuses, f.Statuses)
	f.Statuses[0] = StatusDelayed
	require.Equal(t, StatusInTransit, AllStatuses[0])
}

func TestIntersect_Conflicts(t *testing.T) {
	_, ok := FilterSpec{Statuses: []DeliveryStatus{StatusDelayed}}.Intersect(FilterSpec{Statuses: []DeliveryStatus{StatusDelivered}})
	require.False(t, ok)
	_, ok = FilterSpec{Courier: "A"}.Intersect(FilterSpec{Courier: "B"})
	require.False(t, ok)

	a := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(48 * time.Hour)
	got, ok := FilterSpec{From: &a, MineOnly: true}.Intersect(FilterSpec{From: &b, Courier: "A"})
	require.True(t, ok)
	require.Equal(t, b, *got.From)
	require.Equal(t, "A", got.Courier)
	require.True(t, got.MineOnly)
}
