package metrics

import (
	"time"

	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/models"
)

// RecordInvocation updates the invocation collectors for one handler call.
// batch is ignored when err is non-nil.
func RecordInvocation(connector string, batch *models.SyncBatch, err error) {
	if err != nil {
		Invocations.WithLabelValues(connector, string(errors.TypeOf(err))).Inc()
		return
	}
	Invocations.WithLabelValues(connector, "success").Inc()

	for table, records := range batch.Insert {
		RecordsEmitted.WithLabelValues(connector, table).Add(float64(len(records)))
	}

	if batch.HasMore {
		PagesPending.WithLabelValues(connector).Inc()
		return
	}

	if ts, perr := time.Parse(models.TimestampLayout, batch.State.LastUpdated()); perr == nil {
		Watermark.WithLabelValues(connector).Set(float64(ts.Unix()))
	}
}
