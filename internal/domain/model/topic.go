package model

import "strings"

// Topic is the subset of the topic record the pipeline reads.
type Topic struct {
	ID                 string `json:"id"                   db:"id"`
	Title              string `json:"title"                db:"title"`
	ParentGroupingName string `json:"parent_grouping_name" db:"parent_grouping_name"`
	Specialty          string `json:"specialty"            db:"specialty"`
	FullText           string `json:"full_text"            db:"full_text"`
	HighYield          string `json:"high_yield"           db:"high_yield"`
}

// HasFullText reports whether earlier runs already produced long-form text.
func (t *Topic) HasFullText() bool {
	return t != nil && strings.TrimSpace(t.FullText) != ""
}

// Context builds the generation context for the topic.
func (t *Topic) Context() GenerationContext {
	return GenerationContext{
		Specialty:      t.Specialty,
		ParentGrouping: t.ParentGroupingName,
		Title:          t.Title,
		FullText:       t.FullText,
	}
}

// Generation status values written to topics.generation_status.
const (
	TopicGenerationGenerated = "generated"
	TopicGenerationCached    = "cached"
)

// TopicFullTextUpdate is written back by the fulltext stage.
type TopicFullTextUpdate struct {
	TopicID    string
	FullText   string
	Confidence float64
	Cost       float64
	Model      string
	Sources    []string
	Warnings   []string
	Status     string
}

// Flashcard defaults applied when the provider omits a field.
const (
	DefaultFlashcardDifficulty = "medium"
	DefaultFlashcardConfidence = 0.8
)

// Flashcard is one generated study card.
type Flashcard struct {
	TopicID    string   `json:"topic_id"   db:"topic_id"`
	Front      string   `json:"front"      db:"front"`
	Back       string   `json:"back"       db:"back"`
	Difficulty string   `json:"difficulty" db:"difficulty"`
	Tags       []string `json:"tags"       db:"tags"`
	Confidence float64  `json:"confidence" db:"confidence"`
}

// Question is one generated quiz item. Payload holds options, answer and explanation as JSON.
type Question struct {
	TopicID    string `json:"topic_id"   db:"topic_id"`
	Stem       string `json:"stem"       db:"stem"`
	Payload    []byte `json:"payload"    db:"payload"`
	Difficulty string `json:"difficulty" db:"difficulty"`
}
