package audit

import (
	"context"
	"time"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
)

// Report summarizes audit activity over a window.
type Report struct {
	Since       time.Time                     `json:"since"`
	Until       time.Time                     `json:"until"`
	Total       int                           `json:"total"`
	Succeeded   int                           `json:"succeeded"`
	Failed      int                           `json:"failed"`
	SuccessRate float64                       `json:"success_rate"`
	ByEventType map[domain.AuditEventType]int `json:"by_event_type"`
	ByAction    map[string]int                `json:"by_action"`
}

// Report aggregates counts by event kind and the overall success rate for
// the given window. A zero until means "now".
func (s *Service) Report(ctx context.Context, since, until time.Time) (*Report, error) {
	if until.IsZero() {
		until = s.now().UTC()
	}

	report := &Report{
		Since:       since,
		Until:       until,
		ByEventType: make(map[domain.AuditEventType]int),
		ByAction:    make(map[string]int),
	}

	const pageSize = 500
	offset := 0
	for {
		page, err := s.events.List(ctx, store.ListOptions{
			Limit:  pageSize,
			Offset: offset,
			Since:  since,
			Until:  until,
		})
		if err != nil {
			return nil, err
		}
		for _, evt := range page.Items {
			report.Total++
			report.ByEventType[evt.EventType]++
			report.ByAction[evt.Action]++
			if evt.Success {
				report.Succeeded++
			} else {
				report.Failed++
			}
		}
		offset += len(page.Items)
		if len(page.Items) < pageSize || offset >= page.Total {
			break
		}
	}

	if report.Total > 0 {
		report.SuccessRate = float64(report.Succeeded) / float64(report.Total)
	}
	return report, nil
}
