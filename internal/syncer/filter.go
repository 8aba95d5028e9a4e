package syncer

import (
	"time"

	"github.com/johnwards/hsevents/internal/domain"
)

const statusPast = "PAST"

// filterByStatus applies the event status filter. Only marketing events are
// judged; anything else is kept.
func filterByStatus(recs []domain.UpstreamRecord, filter string, now time.Time) []domain.UpstreamRecord {
	if filter != domain.StatusFilterPast && filter != domain.StatusFilterUpcoming {
		return recs
	}
	wantPast := filter == domain.StatusFilterPast

	out := make([]domain.UpstreamRecord, 0, len(recs))
	for i := range recs {
		if recs[i].MarketingEvent == nil || isPast(recs[i].MarketingEvent, now) == wantPast {
			out = append(out, recs[i])
		}
	}
	return out
}

func isPast(me *domain.MarketingEvent, now time.Time) bool {
	if me.EventStatus == statusPast {
		return true
	}
	start, ok := domain.ParseTimestamp(me.StartDateTime)
	return ok && start.Before(now)
}

// eventTypes lists the distinct non-empty event types in first-seen order.
func eventTypes(recs []domain.UpstreamRecord) []string {
	seen := map[string]bool{}
	out := []string{}
	for i := range recs {
		t := recs[i].EventType()
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
