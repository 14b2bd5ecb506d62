package repository

import (
	"context"
	"errors"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
)

// ReportFanout delivers each report to every sink and joins their errors.
type ReportFanout struct {
	sinks []domrepo.ReportSink
}

func NewReportFanout(sinks ...domrepo.ReportSink) *ReportFanout {
	out := make([]domrepo.ReportSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &ReportFanout{sinks: out}
}

// Add appends a sink. Not safe to call while reports are flowing.
func (f *ReportFanout) Add(s domrepo.ReportSink) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

func (f *ReportFanout) Report(ctx context.Context, r models.DecisionReport) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *ReportFanout) Len() int { return len(f.sinks) }

var _ domrepo.ReportSink = (*ReportFanout)(nil)
