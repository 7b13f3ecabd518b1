package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"pulsechat-backend/internal/database"
	"pulsechat-backend/internal/domain"
	"pulsechat-backend/pkg/resilience"
)

// Call direction as seen by the user owning the history row
const (
	directionOutgoing = "outgoing"
	directionIncoming = "incoming"
)

// CallLogRepository writes call history to Cassandra.
// Rows are partitioned per user and month so history reads stay on one partition.
type CallLogRepository struct {
	db      *database.CassandraDB
	breaker *resilience.CircuitBreaker
}

// NewCallLogRepository creates a new CallLogRepository.
// Writes fail fast through breaker while Cassandra keeps failing; breaker may be nil.
func NewCallLogRepository(db *database.CassandraDB, breaker *resilience.CircuitBreaker) *CallLogRepository {
	return &CallLogRepository{db: db, breaker: breaker}
}

// CalculateBucket returns the monthly partition bucket (YYYYMM) for t
func CalculateBucket(t time.Time) int {
	t = t.UTC()
	return t.Year()*100 + int(t.Month())
}

// RecordCall writes one history row for each party in a single logged batch
func (r *CallLogRepository) RecordCall(ctx context.Context, log *domain.CallLog) error {
	if r.breaker == nil {
		return r.recordCall(ctx, log)
	}
	return r.breaker.Execute(ctx, "record_call", func(ctx context.Context) error {
		return r.recordCall(ctx, log)
	})
}

func (r *CallLogRepository) recordCall(ctx context.Context, log *domain.CallLog) error {
	query := `
		INSERT INTO call_logs_by_user (
			user_id, bucket, started_at, call_id, peer_id, direction,
			call_type, status, reason, duration_minutes, talk_seconds,
			accepted_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	bucket := CalculateBucket(log.StartedAt)
	batch := r.db.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	rows := []struct {
		owner, peer uuid.UUID
		direction   string
	}{
		{log.CallerID, log.ReceiverID, directionOutgoing},
		{log.ReceiverID, log.CallerID, directionIncoming},
	}
	for _, row := range rows {
		batch.Query(query,
			gocql.UUID(row.owner),
			bucket,
			log.StartedAt,
			log.CallID,
			gocql.UUID(row.peer),
			row.direction,
			string(log.Type),
			string(log.Status),
			log.Reason,
			log.DurationMinutes,
			log.TalkSeconds,
			log.AcceptedAt,
			log.EndedAt,
		)
	}

	if err := r.db.Session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to record call log: %w", err)
	}

	return nil
}
