package persistence

import (
	"context"
	"fmt"
	"time"
)

// RetentionResult holds counts of purged records from a retention run.
type RetentionResult struct {
	PurgedLLMMessages int64 `json:"purged_llm_messages"`
}

// RunRetention deletes generation audit rows older than the retention window.
// Fact versions are permanent history and are never purged. The job is
// idempotent.
func (s *Store) RunRetention(ctx context.Context, llmMessageDays int) (RetentionResult, error) {
	var result RetentionResult
	if llmMessageDays <= 0 {
		return result, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -llmMessageDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM llm_messages WHERE created_at < ?;`, cutoff)
	if err != nil {
		return result, fmt.Errorf("purge llm_messages: %w", err)
	}
	result.PurgedLLMMessages, _ = res.RowsAffected()
	return result, nil
}
