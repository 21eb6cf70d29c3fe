package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/medforge/contentgen/internal/domain/model"
	apperrors "github.com/medforge/contentgen/internal/errors"
)

// TopicRepo reads topics and writes generated long-form text back to them.
type TopicRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewTopicRepo creates a new TopicRepo.
func NewTopicRepo(db *sql.DB, tp TimeProvider) *TopicRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &TopicRepo{DB: db, timeProvider: tp}
}

// GetByID loads a topic. Missing topics return ErrTopicNotFound.
func (r *TopicRepo) GetByID(ctx context.Context, id string) (*model.Topic, error) {
	var t model.Topic
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, title, parent_grouping_name, specialty,
		       COALESCE(full_text, ''), COALESCE(high_yield, '')
		FROM topics
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Title, &t.ParentGroupingName, &t.Specialty, &t.FullText, &t.HighYield)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", apperrors.MapDBError(err))
	}
	return &t, nil
}

// UpdateFullText stores the fulltext stage output and its provenance.
func (r *TopicRepo) UpdateFullText(ctx context.Context, u model.TopicFullTextUpdate) error {
	sources, err := json.Marshal(nonNilStrings(u.Sources))
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	warnings, err := json.Marshal(nonNilStrings(u.Warnings))
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE topics
		SET full_text = $2,
		    full_text_confidence = $3,
		    generation_cost = $4,
		    generation_model = $5,
		    sources = $6,
		    warnings = $7,
		    generation_status = $8,
		    updated_at = $9
		WHERE id = $1
	`, u.TopicID, u.FullText, u.Confidence, u.Cost, u.Model, sources, warnings, u.Status, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update topic full text: %w", apperrors.MapDBError(err))
	}
	return requireTopicRow(res, u.TopicID)
}

// UpdateHighYield stores the high-yield summary.
func (r *TopicRepo) UpdateHighYield(ctx context.Context, topicID, text string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE topics SET high_yield = $2, updated_at = $3 WHERE id = $1
	`, topicID, text, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update topic high yield: %w", apperrors.MapDBError(err))
	}
	return requireTopicRow(res, topicID)
}

func requireTopicRow(res sql.Result, topicID string) error {
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, topicID)
	}
	return nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
