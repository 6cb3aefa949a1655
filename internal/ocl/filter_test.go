package ocl

import "testing"

func TestCriteriaEvaluate(t *testing.T) {
	base := func() *Station {
		return &Station{
			Year: 1995, Month: 3, Latitude: 12.5, Longitude: -40, LevelCount: 8,
			Variables: []VariableColumn{{Code: 1}, {Code: 2}, {Code: 25}},
		}
	}
	tests := []struct {
		name     string
		criteria Criteria
		mutate   func(*Station)
		pass     bool
		reasons  []string
	}{
		{name: "empty criteria", pass: true},
		{name: "variables present", criteria: Criteria{Variables: []int64{1, 25}}, pass: true},
		{name: "variable absent", criteria: Criteria{Variables: []int64{1, 3}}, reasons: []string{"variables"}},
		{name: "variable column flagged", criteria: Criteria{Variables: []int64{2}}, mutate: func(s *Station) { s.Variables[1].ErrorFlag = 1 }, reasons: []string{"variables"}},
		{name: "unrequested column flagged", criteria: Criteria{Variables: []int64{1}}, mutate: func(s *Station) { s.Variables[1].ErrorFlag = 1 }, pass: true},
		{name: "region boundary inclusive", criteria: Criteria{Region: &Region{West: -40, East: 0, South: 0, North: 12.5}}, pass: true},
		{name: "west of region", criteria: Criteria{Region: &Region{West: -39, East: 0, South: 0, North: 20}}, reasons: []string{"region"}},
		{name: "years", criteria: Criteria{Years: &IntRange{Min: 1996, Max: 2000}}, reasons: []string{"years"}},
		{name: "months", criteria: Criteria{Months: &IntRange{Min: 3, Max: 3}}, pass: true},
		{name: "too few levels", criteria: Criteria{MinLevels: 9}, reasons: []string{"levels"}},
		{name: "bad zero latitude", criteria: Criteria{GridSquare: "7101"}, mutate: func(s *Station) { s.Latitude = 0 }, reasons: []string{"zero-coordinate"}},
		{name: "zero latitude on equator square", criteria: Criteria{GridSquare: "7001"}, mutate: func(s *Station) { s.Latitude = 0 }, pass: true},
		{name: "zero longitude on meridian square", criteria: Criteria{GridSquare: "7100"}, mutate: func(s *Station) { s.Longitude = 0.00000001 }, pass: true},
		{name: "bad zero longitude", criteria: Criteria{GridSquare: "7101"}, mutate: func(s *Station) { s.Longitude = 0 }, reasons: []string{"zero-coordinate"}},
		{name: "several failures", criteria: Criteria{MinLevels: 9, Years: &IntRange{Min: 1900, Max: 1901}}, reasons: []string{"years", "levels"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := base()
			if tc.mutate != nil {
				tc.mutate(st)
			}
			flags := tc.criteria.Evaluate(st)
			if flags.Pass() != tc.pass {
				t.Fatalf("Pass = %v, want %v (%+v)", flags.Pass(), tc.pass, flags)
			}
			got := flags.Reasons()
			if len(got) != len(tc.reasons) {
				t.Fatalf("Reasons = %v, want %v", got, tc.reasons)
			}
			for i := range got {
				if got[i] != tc.reasons[i] {
					t.Fatalf("Reasons = %v, want %v", got, tc.reasons)
				}
			}
		})
	}
}

func TestUsableCoordinate(t *testing.T) {
	if UsableCoordinate(73, 10, "1101") {
		t.Fatalf("polar latitude reported usable")
	}
	if UsableCoordinate(0, 10, "1101") {
		t.Fatalf("suspicious zero latitude reported usable")
	}
	if !UsableCoordinate(0, 10, "1001") {
		t.Fatalf("equatorial zero latitude reported unusable")
	}
}

func TestDepthWindowAdmits(t *testing.T) {
	w := DepthWindow{Shallow: 100, Deep: 500}
	cases := []struct {
		bottom BottomDepth
		want   bool
	}{
		{BottomDepth{Value: 100, Source: SourceHeader}, true},
		{BottomDepth{Value: 500, Source: SourceProfile}, true},
		{BottomDepth{Value: 99.9, Source: SourceDatabase}, false},
		{BottomDepth{Value: 501, Source: SourceHeader}, false},
		{BottomDepth{Source: SourceNone}, true},
	}
	for _, tc := range cases {
		if got := w.Admits(tc.bottom); got != tc.want {
			t.Fatalf("Admits(%+v) = %v, want %v", tc.bottom, got, tc.want)
		}
	}
}
