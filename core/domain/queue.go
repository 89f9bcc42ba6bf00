package domain

import "time"

// QueuedMessageStatus is the lifecycle state of a QueuedMessage (spec §3).
type QueuedMessageStatus string

const (
	QMPending    QueuedMessageStatus = "PENDING"
	QMProcessing QueuedMessageStatus = "PROCESSING"
	QMProcessed  QueuedMessageStatus = "PROCESSED"
	QMFailed     QueuedMessageStatus = "FAILED"
	QMRetry      QueuedMessageStatus = "RETRY"
	QMExpired    QueuedMessageStatus = "EXPIRED"
	QMCancelled  QueuedMessageStatus = "CANCELLED"
)

// IsTerminal reports whether status is one from which the queue loop will
// never pick the message up again.
func (s QueuedMessageStatus) IsTerminal() bool {
	return s == QMProcessed || s == QMExpired || s == QMCancelled
}

// QueuedMessage is a deferred outbound call created when a C3 fallback fires
// or a retry is scheduled (spec §3/§4.8).
type QueuedMessage struct {
	MessageID              string
	Type                   string
	TenantID               string
	ServiceName            string
	URL                    string
	Method                 string
	Payload                []byte
	Headers                map[string]string
	Status                 QueuedMessageStatus
	Priority               int
	RetryCount             int
	MaxRetries             int
	NextRetryAt            time.Time
	ExpiresAt              time.Time
	ProcessingStartedAt    *time.Time
	ProcessingCompletedAt  *time.Time
	ProcessingTimeMS       int64
	Result                 string
	ErrorDetail            string
	CorrelationID          string
	ParentMessageID        string
	ClaimToken             string
	CreatedAt              time.Time
}
