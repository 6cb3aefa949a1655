package config

import (
	"fmt"
	"strconv"
	"strings"

	"example.com/oclfilt/internal/ocl"
)

// ParseRegion reads "west/east/south/north".
func ParseRegion(s string) (*ocl.Region, error) {
	vals, err := parseFloats(s, "/", 4)
	if err != nil {
		return nil, fmt.Errorf("region %q: %w", s, err)
	}
	r := &ocl.Region{West: vals[0], East: vals[1], South: vals[2], North: vals[3]}
	if r.West > r.East || r.South > r.North {
		return nil, fmt.Errorf("%w: region %q is empty", ErrInvalidProfile, s)
	}
	return r, nil
}

// ParseIntRange reads "min,max".
func ParseIntRange(s string) (*ocl.IntRange, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: range %q must be min,max", ErrInvalidProfile, s)
	}
	lo, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", s, err)
	}
	hi, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", s, err)
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: range %q is empty", ErrInvalidProfile, s)
	}
	return &ocl.IntRange{Min: lo, Max: hi}, nil
}

// ParseDepthWindow reads "shallow,deep".
func ParseDepthWindow(s string) (*ocl.DepthWindow, error) {
	vals, err := parseFloats(s, ",", 2)
	if err != nil {
		return nil, fmt.Errorf("bottom window %q: %w", s, err)
	}
	if vals[0] > vals[1] {
		return nil, fmt.Errorf("%w: bottom window %q is empty", ErrInvalidProfile, s)
	}
	return &ocl.DepthWindow{Shallow: vals[0], Deep: vals[1]}, nil
}

// ParseCodes reads a comma-separated list of variable codes.
func ParseCodes(s string) ([]int64, error) {
	var codes []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: variable code %q", ErrInvalidProfile, part)
		}
		codes = append(codes, v)
	}
	return codes, nil
}

func parseFloats(s, sep string, n int) ([]float64, error) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, fmt.Errorf("%w: want %d values separated by %q", ErrInvalidProfile, n, sep)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
