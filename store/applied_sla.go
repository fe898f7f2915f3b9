package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

func (s *Store) CreateAppliedSLA(ctx context.Context, sla *AppliedSLA) error {
	if sla.Status == "" {
		sla.Status = SLAStatusActive
	}
	if sla.CreatedAt.IsZero() {
		sla.CreatedAt = time.Now()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO applied_slas (account_id, conversation_id, sla_policy_id, sla_status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		sla.AccountID, sla.ConversationID, sla.SLAPolicyID, sla.Status, sla.CreatedAt)
	return row.Scan(&sla.ID)
}

// SLAMetrics aggregates hit/missed applied-SLA rows for an account,
// optionally bounded by a created_at window and by the conversation's
// assignee. Rows with sla_status = active are excluded.
func (s *Store) SLAMetrics(ctx context.Context, accountID int64, since, until *time.Time, agentIDs []int64) (*SLAMetrics, error) {
	query := `
		SELECT s.sla_status, COUNT(*)
		  FROM applied_slas s
		  JOIN conversations c ON c.id = s.conversation_id
		 WHERE s.account_id = $1
		   AND s.sla_status IN ('hit', 'missed')`
	args := []any{accountID}
	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(" AND s.created_at >= $%d", len(args))
	}
	if until != nil {
		args = append(args, *until)
		query += fmt.Sprintf(" AND s.created_at <= $%d", len(args))
	}
	if len(agentIDs) > 0 {
		placeholders := make([]string, len(agentIDs))
		for i, id := range agentIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(" AND c.assignee_id IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " GROUP BY s.sla_status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits, misses int
	for rows.Next() {
		var status SLAStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case SLAStatusHit:
			hits = count
		case SLAStatusMissed:
			misses = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ComputeSLAMetrics(hits, misses), nil
}

// ComputeSLAMetrics turns hit/missed counts into the reported metrics.
// hit_percentage is rounded to one decimal and defined as 100.0 when there
// is no data.
func ComputeSLAMetrics(hits, misses int) *SLAMetrics {
	metrics := &SLAMetrics{NumberOfBreaches: misses}
	total := hits + misses
	if total == 0 {
		metrics.HitPercentage = 100.0
		return metrics
	}
	metrics.HitPercentage = math.Round(100*float64(hits)/float64(total)*10) / 10
	return metrics
}
