// Package pipeline runs a decoder over a stream and routes each station to
// an output sink, the audit log and the run summary.
package pipeline

import (
	"context"
	"errors"
	"io"

	"example.com/oclfilt/internal/common"
	"example.com/oclfilt/internal/ocl"
	"example.com/oclfilt/internal/report"
)

// ReasonBottom is the rejection reason for stations outside the bottom
// window.
const ReasonBottom = "bottom"

// Sink receives every station that passes the filter.
type Sink interface {
	WriteStation(st *ocl.Station) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(st *ocl.Station) error

func (f SinkFunc) WriteStation(st *ocl.Station) error { return f(st) }

// Options configures a run.
type Options struct {
	Decoder ocl.Options
	// Bottom rejects stations whose resolved depth lies outside the window.
	Bottom *ocl.DepthWindow
	// Limit stops the run after this many output stations.
	Limit   int64
	RunID   string
	Audit   *common.AuditLog
	Metrics *common.Metrics
}

// Run decodes r until it ends, the limit is reached or ctx is cancelled.
// The summary is returned in every case; a fatal decode error is also
// recorded in it.
func Run(ctx context.Context, r io.Reader, sink Sink, opts Options) (report.Summary, error) {
	dec := ocl.NewDecoder(r, opts.Decoder)
	if opts.Metrics != nil {
		dec.SetMetrics(opts.Metrics)
		opts.Metrics.Start()
		defer opts.Metrics.Stop()
	}
	sum := report.NewSummaryBuilder(opts.RunID)
	var output int64
	for {
		if err := ctx.Err(); err != nil {
			sum.Fail(err)
			return sum.Summary(), err
		}
		if opts.Limit > 0 && output >= opts.Limit {
			break
		}
		st, status, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			common.Logf("station %d: %v", dec.Index()-1, err)
			sum.Fail(err)
			return sum.Summary(), err
		}
		decision, reasons := classify(st, status, opts.Bottom)
		switch decision {
		case common.DecisionSkipped:
			sum.Skipped(st)
		case common.DecisionRejected:
			sum.Rejected(st, reasons)
			if opts.Metrics != nil {
				opts.Metrics.IncRejected()
			}
		default:
			if err := sink.WriteStation(st); err != nil {
				sum.Fail(err)
				return sum.Summary(), err
			}
			output++
			sum.Output(st)
			if opts.Metrics != nil {
				opts.Metrics.AddOutput(st.RecordLength)
			}
		}
		if err := audit(opts.Audit, st, decision, reasons); err != nil {
			sum.Fail(err)
			return sum.Summary(), err
		}
	}
	return sum.Summary(), nil
}

func classify(st *ocl.Station, status ocl.Status, window *ocl.DepthWindow) (string, []string) {
	if status == ocl.StatusSkipped {
		return common.DecisionSkipped, nil
	}
	if !st.Flags.Pass() {
		return common.DecisionRejected, st.Flags.Reasons()
	}
	if window != nil && !window.Admits(st.Bottom) {
		return common.DecisionRejected, []string{ReasonBottom}
	}
	return common.DecisionOutput, nil
}

func audit(log *common.AuditLog, st *ocl.Station, decision string, reasons []string) error {
	if log == nil {
		return nil
	}
	entry := common.DecisionEntry{
		Index:        st.Index,
		StationID:    st.StationID,
		Offset:       st.Offset,
		Bytes:        st.RecordLength,
		Decision:     decision,
		Reasons:      reasons,
		BottomSource: st.Bottom.Source.String(),
	}
	if st.Bottom.Known() {
		v := st.Bottom.Value
		entry.BottomDepth = &v
	}
	return log.Append(entry)
}
