package ocl

import (
	"math"
	"testing"
)

func TestResolverInitial(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name     string
		resolver Resolver
		want     BottomDepth
	}{
		{name: "header only", resolver: Resolver{Header: 120.5, Database: nan, Latitude: 10}, want: BottomDepth{120.5, SourceHeader}},
		{name: "agreement keeps header", resolver: Resolver{Header: 1000, Database: 1080, Latitude: 10}, want: BottomDepth{1000, SourceHeader}},
		{name: "disagreement picks database", resolver: Resolver{Header: 1000, Database: 1081, Latitude: -10}, want: BottomDepth{1081, SourceDatabase}},
		{name: "database outside band ignored", resolver: Resolver{Header: 1000, Database: 3000, Latitude: 72.5}, want: BottomDepth{1000, SourceHeader}},
		{name: "band edge included", resolver: Resolver{Header: 1000, Database: 3000, Latitude: -72}, want: BottomDepth{3000, SourceDatabase}},
		{name: "database without header", resolver: Resolver{Header: nan, Database: 450, Latitude: 0}, want: BottomDepth{450, SourceDatabase}},
		{name: "nothing", resolver: Resolver{Header: nan, Database: nan, Latitude: 0}, want: BottomDepth{nan, SourceNone}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.resolver.Initial()
			if got.Source != tc.want.Source {
				t.Fatalf("source = %v, want %v", got.Source, tc.want.Source)
			}
			if tc.want.Source != SourceNone && got.Value != tc.want.Value {
				t.Fatalf("value = %v, want %v", got.Value, tc.want.Value)
			}
		})
	}
}

func TestResolverFinal(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name     string
		resolver Resolver
		choice   BottomDepth
		deepest  float64
		want     BottomDepth
	}{
		{name: "none takes profile", resolver: Resolver{Header: nan, Database: nan}, choice: BottomDepth{nan, SourceNone}, deepest: 50, want: BottomDepth{50, SourceProfile}},
		{name: "deep header kept", resolver: Resolver{Header: 100, Database: nan}, choice: BottomDepth{100, SourceHeader}, deepest: 50, want: BottomDepth{100, SourceHeader}},
		{name: "shallow header falls back to database", resolver: Resolver{Header: 40, Database: 60, Latitude: 5}, choice: BottomDepth{40, SourceHeader}, deepest: 50, want: BottomDepth{60, SourceDatabase}},
		{name: "shallow header and database use profile", resolver: Resolver{Header: 40, Database: 45, Latitude: 5}, choice: BottomDepth{40, SourceHeader}, deepest: 50, want: BottomDepth{50, SourceProfile}},
		{name: "shallow header without database", resolver: Resolver{Header: 40, Database: nan}, choice: BottomDepth{40, SourceHeader}, deepest: 50, want: BottomDepth{50, SourceProfile}},
		{name: "shallow header polar database unused", resolver: Resolver{Header: 40, Database: 900, Latitude: 80}, choice: BottomDepth{40, SourceHeader}, deepest: 50, want: BottomDepth{50, SourceProfile}},
		{name: "shallow database uses profile", resolver: Resolver{Header: nan, Database: 40, Latitude: 5}, choice: BottomDepth{40, SourceDatabase}, deepest: 50, want: BottomDepth{50, SourceProfile}},
		{name: "deep database kept", resolver: Resolver{Header: nan, Database: 60, Latitude: 5}, choice: BottomDepth{60, SourceDatabase}, deepest: 50, want: BottomDepth{60, SourceDatabase}},
		{name: "no profile depth", resolver: Resolver{Header: 40, Database: nan}, choice: BottomDepth{40, SourceHeader}, deepest: nan, want: BottomDepth{40, SourceHeader}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.resolver.Final(tc.choice, tc.deepest)
			if got != tc.want {
				t.Fatalf("Final = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestNewResolverUsesLastHeaderDepth(t *testing.T) {
	st := &Station{
		Latitude: 10,
		SecondaryHeader: []SecondaryHeaderEntry{
			{Code: BottomDepthCode, Value: 100},
			{Code: 3, Value: 1},
			{Code: BottomDepthCode, Value: 200},
			{Code: BottomDepthCode, Value: math.NaN()},
		},
	}
	r := NewResolver(st, math.NaN())
	if r.Header != 200 {
		t.Fatalf("header = %v, want 200", r.Header)
	}
	if r.DatabaseAvailable() {
		t.Fatalf("NaN database reported available")
	}
}
