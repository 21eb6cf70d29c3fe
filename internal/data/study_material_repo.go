package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medforge/contentgen/internal/data/pgxutil"
	"github.com/medforge/contentgen/internal/domain/model"
	apperrors "github.com/medforge/contentgen/internal/errors"
)

// FlashcardRepo persists generated flashcards.
type FlashcardRepo struct {
	DB *sql.DB
}

// NewFlashcardRepo creates a new FlashcardRepo.
func NewFlashcardRepo(db *sql.DB) *FlashcardRepo {
	return &FlashcardRepo{DB: db}
}

// BulkInsert writes cards atomically and returns how many were stored.
func (r *FlashcardRepo) BulkInsert(ctx context.Context, cards []model.Flashcard) (int, error) {
	batch := &pgx.Batch{}
	for _, c := range cards {
		difficulty := c.Difficulty
		if difficulty == "" {
			difficulty = model.DefaultFlashcardDifficulty
		}
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(`
			INSERT INTO flashcards (topic_id, front, back, difficulty, tags, confidence)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.TopicID, c.Front, c.Back, difficulty, tags, c.Confidence)
	}
	n, err := pgxutil.ExecBatch(ctx, r.DB, batch)
	if err != nil {
		return 0, fmt.Errorf("insert flashcards: %w", apperrors.MapDBError(err))
	}
	return int(n), nil
}

// QuestionRepo persists generated quiz questions.
type QuestionRepo struct {
	DB *sql.DB
}

// NewQuestionRepo creates a new QuestionRepo.
func NewQuestionRepo(db *sql.DB) *QuestionRepo {
	return &QuestionRepo{DB: db}
}

// BulkInsert writes questions atomically and returns how many were stored.
func (r *QuestionRepo) BulkInsert(ctx context.Context, questions []model.Question) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range questions {
		difficulty := q.Difficulty
		if difficulty == "" {
			difficulty = model.DefaultFlashcardDifficulty
		}
		payload := q.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		batch.Queue(`
			INSERT INTO questions (topic_id, stem, payload, difficulty)
			VALUES ($1, $2, $3, $4)
		`, q.TopicID, q.Stem, string(payload), difficulty)
	}
	n, err := pgxutil.ExecBatch(ctx, r.DB, batch)
	if err != nil {
		return 0, fmt.Errorf("insert questions: %w", apperrors.MapDBError(err))
	}
	return int(n), nil
}
