package data

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/testutil"
)

func newTestJobRepo(db *sql.DB) (*GenerationJobRepo, *FixedTimeProvider) {
	tp := NewFixedTimeProvider(testutil.TestTime())
	return NewGenerationJobRepo(db, RepoConfig{TimeProvider: tp}), tp
}

func claimOf(j *model.GenerationJob) core.JobClaim {
	return core.JobClaim{JobID: j.ID, Attempt: j.Attempts}
}

func enqueue(t *testing.T, repo *GenerationJobRepo, params ...model.CreateJobParams) []*model.GenerationJob {
	t.Helper()
	jobs, err := repo.CreateBatch(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, jobs, len(params))
	return jobs
}

func TestGenerationJobRepo_CreateBatch(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, _ := newTestJobRepo(db)
		ctx := context.Background()

		jobs := enqueue(t, repo,
			model.CreateJobParams{TopicID: "t-1", Modes: []model.Mode{model.ModeFullText, model.ModeFlashcards}, Priority: 10, SubmittedBy: "ops", MaxAttempts: 3},
			model.CreateJobParams{TopicID: "t-2", Modes: []model.Mode{model.ModeHighYield}, Priority: 9},
		)

		assert.Equal(t, "t-1", jobs[0].TopicID)
		assert.Equal(t, model.JobStatusPending, jobs[0].Status)
		assert.Equal(t, []model.Mode{model.ModeFullText, model.ModeFlashcards}, jobs[0].RequestedModes)
		assert.Equal(t, 3, jobs[0].MaxAttempts)
		assert.Equal(t, "ops", jobs[0].SubmittedBy)
		assert.Equal(t, 0, jobs[0].Attempts)
		assert.Nil(t, jobs[0].CompletedAt)
		assert.Equal(t, 1, jobs[1].MaxAttempts, "max attempts clamps to 1")

		got, err := repo.GetByID(ctx, jobs[1].ID)
		require.NoError(t, err)
		assert.Equal(t, jobs[1].ID, got.ID)
		assert.Equal(t, 9, got.Priority)

		_, err = repo.CreateBatch(ctx, nil)
		require.Error(t, err)
	})
}

func TestGenerationJobRepo_GetByID_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, _ := newTestJobRepo(db)
		_, err := repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestGenerationJobRepo_ClaimNext(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("claims by priority then age", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo, tp := newTestJobRepo(db)
			ctx := context.Background()

			first := enqueue(t, repo, model.CreateJobParams{TopicID: "low", Modes: []model.Mode{model.ModeFullText}, Priority: 1})
			tp.AddTime(time.Second)
			second := enqueue(t, repo,
				model.CreateJobParams{TopicID: "high", Modes: []model.Mode{model.ModeFullText}, Priority: 5},
				model.CreateJobParams{TopicID: "mid", Modes: []model.Mode{model.ModeFullText}, Priority: 1},
			)

			var order []string
			for range 3 {
				job, err := repo.ClaimNext(ctx, 60)
				require.NoError(t, err)
				assert.Equal(t, model.JobStatusProcessing, job.Status)
				assert.Equal(t, 1, job.Attempts)
				require.NotNil(t, job.LeaseExpiresAt)
				assert.True(t, job.LeaseExpiresAt.Equal(tp.Now().Add(60*time.Second).UTC()))
				order = append(order, job.ID)
			}
			assert.Equal(t, []string{second[0].ID, first[0].ID, second[1].ID}, order)

			_, err := repo.ClaimNext(ctx, 60)
			require.ErrorIs(t, err, model.ErrNoJobsAvailable)
		})
	})

	t.Run("concurrent claimers never share a job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo, _ := newTestJobRepo(db)
			ctx := context.Background()

			params := make([]model.CreateJobParams, 0, 10)
			for i := range 10 {
				params = append(params, model.CreateJobParams{TopicID: "topic", Modes: []model.Mode{model.ModeFullText}, Priority: i})
			}
			enqueue(t, repo, params...)

			var mu sync.Mutex
			seen := map[string]int{}
			var wg sync.WaitGroup
			for range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						job, err := repo.ClaimNext(ctx, 60)
						if err != nil {
							return
						}
						mu.Lock()
						seen[job.ID]++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Len(t, seen, 10)
			for id, n := range seen {
				assert.Equal(t, 1, n, "job %s claimed more than once", id)
			}
		})
	})

	t.Run("rejects non-positive lease", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo, _ := newTestJobRepo(db)
			_, err := repo.ClaimNext(context.Background(), 0)
			require.Error(t, err)
		})
	})
}

func TestGenerationJobRepo_HeartbeatAndFinish(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, tp := newTestJobRepo(db)
		ctx := context.Background()

		enqueue(t, repo, model.CreateJobParams{TopicID: "t-1", Modes: []model.Mode{model.ModeFullText}})
		job, err := repo.ClaimNext(ctx, 30)
		require.NoError(t, err)

		tp.AddTime(20 * time.Second)
		ok, err := repo.Heartbeat(ctx, claimOf(job), 30)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, got.LeaseExpiresAt.Equal(tp.Now().Add(30*time.Second).UTC()))

		result := model.JobResult{model.ModeFullText: {Status: model.OutcomeSucceeded, Model: "claude-sonnet-4-20250514", Cost: 0.0123}}
		ok, err = repo.Complete(ctx, core.FinishJobParams{JobID: job.ID, Attempt: job.Attempts, Result: result})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err = repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
		assert.Nil(t, got.LeaseExpiresAt)
		assert.Equal(t, result, got.Result)

		ok, err = repo.Heartbeat(ctx, claimOf(job), 30)
		require.NoError(t, err)
		assert.False(t, ok, "terminal jobs cannot be heartbeated")

		ok, err = repo.Fail(ctx, core.FinishJobParams{JobID: job.ID, Attempt: job.Attempts, ErrorMessage: "late"})
		require.NoError(t, err)
		assert.False(t, ok, "terminal status is final")
	})
}

func TestGenerationJobRepo_StaleClaimCannotFinish(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, tp := newTestJobRepo(db)
		ctx := context.Background()

		enqueue(t, repo, model.CreateJobParams{TopicID: "t-1", Modes: []model.Mode{model.ModeFullText}, MaxAttempts: 3})
		first, err := repo.ClaimNext(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, 1, first.Attempts)

		// the first worker stalls past its lease; the next claim reclaims and takes the job
		tp.AddTime(31 * time.Second)
		second, err := repo.ClaimNext(ctx, 30)
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, 2, second.Attempts)

		ok, err := repo.Heartbeat(ctx, claimOf(first), 30)
		require.NoError(t, err)
		assert.False(t, ok, "stale claim must not extend the new lease")

		ok, err = repo.Complete(ctx, core.FinishJobParams{JobID: first.ID, Attempt: first.Attempts})
		require.NoError(t, err)
		assert.False(t, ok, "stale claim must not finish the job")

		ok, err = repo.Fail(ctx, core.FinishJobParams{JobID: first.ID, Attempt: first.Attempts, ErrorMessage: "late"})
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusProcessing, got.Status)
		assert.True(t, got.LeaseExpiresAt.Equal(tp.Now().Add(30*time.Second).UTC()))

		ok, err = repo.Complete(ctx, core.FinishJobParams{JobID: second.ID, Attempt: second.Attempts})
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestGenerationJobRepo_Fail(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, _ := newTestJobRepo(db)
		ctx := context.Background()

		enqueue(t, repo, model.CreateJobParams{TopicID: "t-1", Modes: []model.Mode{model.ModeFlashcards}})
		job, err := repo.ClaimNext(ctx, 30)
		require.NoError(t, err)

		ok, err := repo.Fail(ctx, core.FinishJobParams{JobID: job.ID, Attempt: job.Attempts, ErrorMessage: "topic not found: t-1"})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "topic not found: t-1", *got.ErrorMessage)
		assert.Empty(t, got.Result)
	})
}

func TestGenerationJobRepo_StatsAndListRecent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, tp := newTestJobRepo(db)
		ctx := context.Background()

		enqueue(t, repo, model.CreateJobParams{TopicID: "a", Modes: []model.Mode{model.ModeFullText}})
		tp.AddTime(time.Second)
		enqueue(t, repo, model.CreateJobParams{TopicID: "b", Modes: []model.Mode{model.ModeFullText}})
		tp.AddTime(time.Second)
		enqueue(t, repo, model.CreateJobParams{TopicID: "c", Modes: []model.Mode{model.ModeFullText}})

		job, err := repo.ClaimNext(ctx, 30)
		require.NoError(t, err)
		_, err = repo.Complete(ctx, core.FinishJobParams{JobID: job.ID, Attempt: job.Attempts})
		require.NoError(t, err)
		_, err = repo.ClaimNext(ctx, 30)
		require.NoError(t, err)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.JobStats{Pending: 1, Processing: 1, Completed: 1}, *stats)

		recent, err := repo.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "c", recent[0].TopicID)
		assert.Equal(t, "b", recent[1].TopicID)
	})
}

func TestGenerationJobRepo_WaitForNotification(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, _ := newTestJobRepo(db)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		listening := make(chan error, 1)
		go func() { listening <- repo.WaitForNotification(ctx) }()

		// Give the listener a moment to register before notifying.
		require.Eventually(t, func() bool {
			var n int
			_ = db.QueryRowContext(ctx, `SELECT count(*) FROM pg_stat_activity WHERE query LIKE 'LISTEN%'`).Scan(&n)
			return n > 0
		}, 2*time.Second, 20*time.Millisecond)

		enqueue(t, repo, model.CreateJobParams{TopicID: "t", Modes: []model.Mode{model.ModeFullText}})
		require.NoError(t, <-listening)
	})
}
