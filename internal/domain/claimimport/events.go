package claimimport

import (
	"context"

	"github.com/claimsdesk/claims/internal/platform/live"
)

// Event types published while an import runs.
const (
	EventStarted  = "import.started"
	EventProgress = "import.progress"
	EventFinished = "import.finished"
)

// Progress is the payload of an import.progress event, sent after each row.
type Progress struct {
	Row            int `json:"row"`
	TotalRecords   int `json:"total_records"`
	ProcessedCount int `json:"processed_count"`
	ErrorCount     int `json:"error_count"`
}

// WithEvents publishes the lifecycle of every import to p, on the shared
// imports topic and on the job's own topic.
func WithEvents(p live.Publisher) Option {
	return func(im *Importer) { im.events = p }
}

func (im *Importer) emit(ctx context.Context, eventType string, job *Job, data interface{}) {
	if im.events == nil {
		return
	}
	id := job.ID.String()
	for _, topic := range []string{live.ImportsTopic, live.ImportTopic(id)} {
		ev, err := live.NewEvent(eventType, topic, id, data)
		if err == nil {
			err = im.events.Publish(ctx, ev)
		}
		if err != nil {
			im.logger.Warn().Err(err).Str("event", eventType).Str("job_id", id).Msg("could not publish import event")
		}
	}
}
