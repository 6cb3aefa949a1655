package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"example.com/oclfilt/internal/common"
	"example.com/oclfilt/internal/config"
	"example.com/oclfilt/internal/ocl"
	"example.com/oclfilt/internal/pipeline"
	"example.com/oclfilt/internal/report"
)

// FilterRequest is the JSON form of a /filter call. Input and Bathymetry
// name uploaded artifacts or files below the data directory. Filter
// replaces the named profile when both are given. Full adds the profile
// levels to every station event.
type FilterRequest struct {
	Input      string          `json:"input"`
	Bathymetry string          `json:"bathymetry,omitempty"`
	Profile    string          `json:"profile,omitempty"`
	Filter     *config.Profile `json:"filter,omitempty"`
	Full       bool            `json:"full,omitempty"`
}

type filterJob struct {
	input   io.Reader
	bathy   io.Reader
	profile config.Profile
	levels  bool
	closers []io.Closer
}

func (j *filterJob) close() {
	for _, c := range j.closers {
		c.Close()
	}
}

// handleFilter decodes an OCL stream and streams the passing stations back,
// followed by a summary event, or an error event when decoding fails.
// The body is either a FilterRequest (application/json) or the raw stream,
// filtered by the named profile with query parameters layered on top.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, status, err := s.prepareFilter(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	defer job.close()

	if err := s.acquire(r.Context()); err != nil {
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}
	defer s.release()

	opts, err := decodeOptions(job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	runID := uuid.NewString()
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-Run-ID", runID)
	events := NewEventWriter(w, format)

	sink := pipeline.SinkFunc(func(st *ocl.Station) error {
		rec := report.NewStationRecord(st, job.levels)
		return events.WriteEvent(Event{Type: "station", Station: &rec})
	})
	summary, err := pipeline.Run(r.Context(), job.input, sink, pipeline.Options{
		Decoder: opts,
		Bottom:  job.profile.Bottom,
		Limit:   job.profile.Limit,
		RunID:   runID,
	})
	if err != nil {
		common.Logf("filter %s: %v", runID, err)
		if r.Context().Err() != nil {
			return
		}
		_ = events.WriteEvent(Event{Type: "error", Error: err.Error(), Summary: &summary})
		return
	}
	common.Logf("filter %s: %d / %d stations", runID, summary.OutputStations, summary.TotalStations)
	_ = events.WriteEvent(Event{Type: "summary", Summary: &summary})
}

func (s *Server) prepareFilter(r *http.Request) (*filterJob, int, error) {
	job := &filterJob{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req FilterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err)
		}
		if err := s.selectProfile(job, req.Profile, req.Filter); err != nil {
			return nil, http.StatusBadRequest, err
		}
		job.levels = req.Full
		in, err := s.openInput(req.Input)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("input: %w", err)
		}
		job.input = in
		job.closers = append(job.closers, in)
		if req.Bathymetry != "" {
			bathy, err := s.openInput(req.Bathymetry)
			if err != nil {
				job.close()
				return nil, http.StatusBadRequest, fmt.Errorf("bathymetry: %w", err)
			}
			job.bathy = bathy
			job.closers = append(job.closers, bathy)
		}
	} else {
		q := r.URL.Query()
		if err := s.selectProfile(job, q.Get("profile"), nil); err != nil {
			return nil, http.StatusBadRequest, err
		}
		if err := applyQuery(&job.profile, q); err != nil {
			return nil, http.StatusBadRequest, err
		}
		if v := q.Get("full"); v != "" {
			full, err := strconv.ParseBool(v)
			if err != nil {
				return nil, http.StatusBadRequest, fmt.Errorf("full: %w", err)
			}
			job.levels = full
		}
		job.input = r.Body
	}
	if job.bathy == nil && job.profile.Bathymetry != "" {
		f, err := os.Open(job.profile.Bathymetry)
		if err != nil {
			job.close()
			return nil, http.StatusInternalServerError, fmt.Errorf("profile bathymetry: %w", err)
		}
		job.bathy = f
		job.closers = append(job.closers, f)
	}
	return job, http.StatusOK, nil
}

func (s *Server) selectProfile(job *filterJob, name string, inline *config.Profile) error {
	if inline != nil {
		if err := inline.Validate(); err != nil {
			return err
		}
		job.profile = *inline
		job.profile.Bathymetry = ""
		return nil
	}
	if name == "" {
		return nil
	}
	p, ok := s.profiles[name]
	if !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	job.profile = p
	return nil
}

// applyQuery overrides profile fields with the filter query parameters
// (vars, levels, region, years, months, grid, skip, limit, bottom).
func applyQuery(p *config.Profile, q url.Values) error {
	var err error
	if v := q.Get("vars"); v != "" {
		if p.Variables, err = config.ParseCodes(v); err != nil {
			return fmt.Errorf("vars: %w", err)
		}
	}
	for _, f := range []struct {
		key string
		dst *int64
	}{{"levels", &p.MinLevels}, {"skip", &p.SkipTo}, {"limit", &p.Limit}} {
		v := q.Get(f.key)
		if v == "" {
			continue
		}
		if *f.dst, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}
	if v := q.Get("region"); v != "" {
		if p.Region, err = config.ParseRegion(v); err != nil {
			return err
		}
	}
	if v := q.Get("years"); v != "" {
		if p.Years, err = config.ParseIntRange(v); err != nil {
			return fmt.Errorf("years: %w", err)
		}
	}
	if v := q.Get("months"); v != "" {
		if p.Months, err = config.ParseIntRange(v); err != nil {
			return fmt.Errorf("months: %w", err)
		}
	}
	if v := q.Get("bottom"); v != "" {
		if p.Bottom, err = config.ParseDepthWindow(v); err != nil {
			return err
		}
	}
	if v := q.Get("grid"); v != "" {
		p.GridSquare = v
	}
	return p.Validate()
}

func (s *Server) openInput(token string) (*os.File, error) {
	path, err := s.resolvePath(token)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func decodeOptions(job *filterJob) (ocl.Options, error) {
	check, err := ocl.ParseBathymetryCheck(job.profile.BathymetryCheck)
	if err != nil {
		return ocl.Options{}, err
	}
	opts := ocl.Options{
		WantProfile:     job.levels,
		SkipTo:          job.profile.SkipTo,
		Criteria:        job.profile.Criteria(),
		BathymetryCheck: check,
		MaxLevels:       job.profile.MaxLevels,
	}
	if job.bathy != nil {
		opts.Bathymetry = ocl.NewBathymetryReader(job.bathy)
	}
	return opts, nil
}

func (s *Server) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) release() {
	<-s.slots
}
