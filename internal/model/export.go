package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID        int64           `json:"exam_id"`
	Title         string          `json:"title"`
	Subject       string          `json:"subject"`
	PromptVariant string          `json:"prompt_variant"`
	NumQuestions  int             `json:"num_questions"`
	TotalMarks    int             `json:"total_marks"`
	Results       []StudentResult `json:"results"`
}

// StudentResult holds one student's attempt data for export.
type StudentResult struct {
	Email         string           `json:"email"`
	DisplayName   string           `json:"display_name"`
	AttemptNumber int              `json:"attempt_number"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	TotalScore    int              `json:"total_score"`
	ScoreOutOf    int              `json:"score_out_of"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionNumber string       `json:"question_number"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"question_type"`
	Marks          int          `json:"marks"`
	Skipped        bool         `json:"skipped"`
	Response       string       `json:"response,omitempty"`
	AIScore        *int         `json:"ai_score,omitempty"`
	AIFeedback     string       `json:"ai_feedback,omitempty"`
	ImprovementTip string       `json:"improvement_tip,omitempty"`
}
