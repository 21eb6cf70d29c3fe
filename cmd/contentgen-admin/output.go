package main

import (
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/util"
)

const errorColumnWidth = 60

func printEnqueued(w io.Writer, jobs []*model.GenerationJob) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "JOB\tTOPIC\tPRIORITY\tMODES\n"); err != nil {
		return err
	}
	for _, j := range jobs {
		if err := writef(tw, "%s\t%s\t%d\t%s\n", j.ID, j.TopicID, j.Priority, joinModes(j.RequestedModes)); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "queued %d job(s)\n", len(jobs))
}

func printDrainResults(w io.Writer, results []model.DrainResult) error {
	if len(results) == 0 {
		return writef(w, "no pending jobs\n")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "JOB\tTOPIC\tSTATUS\tMODES\tERROR\n"); err != nil {
		return err
	}
	for _, r := range results {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.JobID, r.TopicID, r.Status, summarizeOutcomes(r.Result), util.Truncate(r.Error, errorColumnWidth)); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "processed %d job(s)\n", len(results))
}

func printQueueStatus(w io.Writer, status *model.QueueStatus) error {
	for _, s := range []model.JobStatus{
		model.JobStatusPending, model.JobStatusProcessing, model.JobStatusCompleted, model.JobStatusFailed,
	} {
		if err := writef(w, "%-11s %d\n", s, status.Counts[s]); err != nil {
			return err
		}
	}
	if len(status.Recent) == 0 {
		return nil
	}

	if err := writef(w, "\nRecent jobs:\n"); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "JOB\tTOPIC\tSTATUS\tPRIORITY\tATTEMPTS\tCREATED\tDURATION\tERROR\n"); err != nil {
		return err
	}
	for _, j := range status.Recent {
		errMsg := ""
		if j.ErrorMessage != nil {
			errMsg = util.Truncate(*j.ErrorMessage, errorColumnWidth)
		}
		if err := writef(tw, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\t%s\n",
			j.ID, j.TopicID, j.Status, j.Priority, j.Attempts, j.MaxAttempts,
			j.CreatedAt.UTC().Format(time.RFC3339),
			util.FormatProcessingDuration(util.JobDuration(j.StartedAt, j.CompletedAt)),
			errMsg,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func joinModes(modes []model.Mode) string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ",")
}

// summarizeOutcomes renders "fulltext=succeeded(cached) flashcards=skipped" in plan order.
func summarizeOutcomes(res model.JobResult) string {
	if len(res) == 0 {
		return "-"
	}
	order := make(map[model.Mode]int, len(model.AllModes()))
	for i, m := range model.AllModes() {
		order[m] = i
	}
	modes := make([]model.Mode, 0, len(res))
	for m := range res {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return order[modes[i]] < order[modes[j]] })

	parts := make([]string, len(modes))
	for i, m := range modes {
		o := res[m]
		parts[i] = string(m) + "=" + string(o.Status)
		if o.CacheHit {
			parts[i] += "(cached)"
		}
	}
	return strings.Join(parts, " ")
}
