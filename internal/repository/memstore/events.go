package memstore

import (
	"context"

	"github.com/spec-kit/queue-service/internal/domain"
)

type eventView struct{ *view }

func (v eventView) Append(_ context.Context, event *domain.Event) error {
	st, release := v.acquire()
	defer release()
	st.events = append(st.events, *event)
	return nil
}

// ListByQueue returns newest entries first.
func (v eventView) ListByQueue(_ context.Context, queueID string, limit, offset int) ([]domain.Event, error) {
	st, release := v.acquire()
	defer release()
	if limit <= 0 {
		limit = 50
	}
	var matched []domain.Event
	for i := len(st.events) - 1; i >= 0; i-- {
		if st.events[i].QueueID == queueID {
			matched = append(matched, st.events[i])
		}
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	return matched[offset:min(offset+limit, len(matched))], nil
}
