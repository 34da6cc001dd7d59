package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// CanReview reports whether the user may see other users' attempts.
func (u *User) CanReview() bool {
	return u != nil && (u.Role == UserRoleTeacher || u.Role == UserRoleAdmin)
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// QuestionType classifies how a question expects to be answered.
type QuestionType string

const (
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionLongAnswer     QuestionType = "long_answer"
	QuestionMultipleChoice QuestionType = "multiple_choice"
)

// ParseQuestionType maps a model-supplied type label to a known type.
// Unrecognized labels fall back to short_answer.
func ParseQuestionType(s string) QuestionType {
	switch s {
	case "short_answer", "short":
		return QuestionShortAnswer
	case "long_answer", "long", "essay":
		return QuestionLongAnswer
	case "multiple_choice", "mcq", "multiple-choice":
		return QuestionMultipleChoice
	default:
		return QuestionShortAnswer
	}
}

// Exam is a digitized exam paper.
type Exam struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Subject   string    `json:"subject"`
	OwnerID   int64     `json:"owner_id"`
	FileKey   string    `json:"file_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Question is a single question of an exam.
type Question struct {
	ID             int64        `json:"id"`
	ExamID         int64        `json:"exam_id"`
	Position       int          `json:"position"`
	QuestionNumber string       `json:"question_number"`
	Text           string       `json:"text"`
	Marks          int          `json:"marks"`
	Type           QuestionType `json:"question_type"`
	MarkScheme     string       `json:"mark_scheme"`
}

// ExamAttempt is one student's pass through an exam.
type ExamAttempt struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	ExamID      int64      `json:"exam_id"`
	ScoreOutOf  int        `json:"score_out_of"`
	TotalScore  int        `json:"total_score"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether grading of the attempt has finished.
func (a ExamAttempt) Completed() bool {
	return a.CompletedAt != nil
}

// UserAnswer is the graded response to one answered question.
type UserAnswer struct {
	ID             int64  `json:"id"`
	AttemptID      int64  `json:"attempt_id"`
	QuestionID     int64  `json:"question_id"`
	UserResponse   string `json:"user_response"`
	AIScore        *int   `json:"ai_score"`
	AIFeedback     string `json:"ai_feedback"`
	ImprovementTip string `json:"improvement_tip,omitempty"`
}

// StructuredQuestion is a validated question extracted from raw exam text.
type StructuredQuestion struct {
	QuestionNumber string
	Text           string
	Marks          int
	Type           QuestionType
}

// StructuredExam is the validated result of structuring raw exam text.
type StructuredExam struct {
	Title     string
	Subject   string
	Questions []StructuredQuestion
}

// TotalMarks sums the marks of all questions.
func (e StructuredExam) TotalMarks() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Marks
	}
	return total
}

// GradeResult holds the model's assessment of a single answer.
type GradeResult struct {
	ScoreAwarded   int
	Feedback       string
	ImprovementTip string
	// Failed is set when the score is a degraded default rather than a model verdict.
	Failed bool
}

// ExamView combines an exam with its ordered questions.
type ExamView struct {
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
}

// TotalMarks sums the marks of all questions in the exam.
func (v ExamView) TotalMarks() int {
	total := 0
	for _, q := range v.Questions {
		total += q.Marks
	}
	return total
}

// AnswerView pairs a question with the student's graded answer, if any.
type AnswerView struct {
	Question Question    `json:"question"`
	Answer   *UserAnswer `json:"answer,omitempty"`
}

// AttemptView combines an attempt with its exam and per-question answers.
type AttemptView struct {
	Attempt ExamAttempt  `json:"attempt"`
	Exam    Exam         `json:"exam"`
	Answers []AnswerView `json:"answers"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath       string   // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies  bool     // Set Secure flag on cookies (disable for local dev)
	MaxUploadMB    int      // Upload size limit
	PromptVariant  string   // Grading prompt variant (strict, standard, lenient)
	AllowedOrigins []string // CORS origins for the JSON API
}
