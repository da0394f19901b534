package assessment

import (
	"fmt"
	"time"

	"github.com/tathmini/backend/core"
)

type Assessment struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description,omitempty" db:"description"`
	CourseID    string    `json:"course_id" db:"course_id"`
	GroupID     string    `json:"group_id" db:"group_id"`
	TeacherID   string    `json:"teacher_id" db:"teacher_id"`
	DueDate     time.Time `json:"due_date" db:"due_date"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC

	// joined names, populated by queries
	CourseName string `json:"course_name,omitempty" db:"course_name"`
	GroupName  string `json:"group_name,omitempty" db:"group_name"`
}

// Criterion is one scored dimension of an Assessment. The criteria set is
// fixed at creation; no mutation is exposed once the assessment exists.
type Criterion struct {
	ID           string  `json:"id" db:"id"`
	AssessmentID string  `json:"-" db:"assessment_id"`
	Name         string  `json:"name" db:"name"`
	Description  string  `json:"description,omitempty" db:"description"`
	MinScore     float64 `json:"min_score" db:"min_score"`
	MaxScore     float64 `json:"max_score" db:"max_score"`
}

// Response is one student's peer-evaluation submission for one Assessment.
// A nil SubmittedAt marks a draft; this engine only ever writes submitted
// responses (creation and submission are a single atomic step).
type Response struct {
	ID           string     `json:"id" db:"id"`
	AssessmentID string     `json:"assessment_id" db:"assessment_id"`
	StudentID    string     `json:"student_id" db:"student_id"`
	Feedback     string     `json:"feedback,omitempty" db:"feedback"`
	SubmittedAt  *time.Time `json:"submitted_at" db:"submitted_at"`
}

func (r Response) IsSubmitted() bool { return r.SubmittedAt != nil }

// Result is one (criterion, evaluated peer) score within a Response.
type Result struct {
	ID          string  `json:"id" db:"id"`
	ResponseID  string  `json:"-" db:"response_id"`
	CriterionID string  `json:"criteria_id" db:"criteria_id"`
	StudentID   string  `json:"student_id" db:"student_id"` // the evaluated peer
	GivenScore  float64 `json:"given_score" db:"given_score"`
}

// NewCriterion is one rubric row of a NewAssessment. Scores are pointers so
// a missing value fails validation instead of defaulting to zero.
type NewCriterion struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	MinScore    *float64 `json:"min_score" validate:"required"`
	MaxScore    *float64 `json:"max_score" validate:"required"`
}

// NewAssessment contains information needed to create assessments; one
// Assessment row is created per target group, all sharing title/criteria.
type NewAssessment struct {
	Title       string         `json:"title" validate:"required"`
	Description string         `json:"description"`
	CourseID    string         `json:"course_id" validate:"required"`
	GroupIDs    []string       `json:"group_ids" validate:"required,min=1,dive,required"`
	DueDate     time.Time      `json:"due_date" validate:"required"`
	Criteria    []NewCriterion `json:"criteria" validate:"required,min=1,dive"`
}

func (na *NewAssessment) Validate() error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)

	if err := core.Validate.Struct(na); err != nil {
		return err
	}
	for i, c := range na.Criteria {
		if *c.MaxScore < *c.MinScore {
			return core.NewValidationError(nil, core.FieldError{
				Field: fmt.Sprintf("criteria[%d].max_score", i),
				Error: "max_score must be greater than or equal to min_score",
			})
		}
	}
	return nil
}

// ScoreEntry is one peer/criterion score within a submission.
type ScoreEntry struct {
	CriterionID string   `json:"criteria_id" validate:"required"`
	StudentID   string   `json:"student_id" validate:"required"` // the evaluated peer
	Score       *float64 `json:"score" validate:"required"`
}

// ResponseSubmission is a student's complete peer-evaluation payload.
type ResponseSubmission struct {
	Feedback string       `json:"feedback"`
	Scores   []ScoreEntry `json:"scores" validate:"required,min=1,dive"`
}

func (rs *ResponseSubmission) Validate() error {
	rs.Feedback = core.CleanString(rs.Feedback)
	return core.Validate.Struct(rs)
}

// SubmissionReceipt echoes the persisted response and the per-evaluatee
// averages of the just-submitted scores; the authoritative aggregates live
// in the results view.
type SubmissionReceipt struct {
	ResponseID    string             `json:"response_id"`
	AverageScores []EvaluateeAverage `json:"average_scores"`
}

type EvaluateeAverage struct {
	StudentID string  `json:"student_id"`
	Average   float64 `json:"average"`
}

// RosterEntry is a group student with their submission status for one
// assessment. Email is internal (notifications); status fields are for the
// teacher projection only.
type RosterEntry struct {
	ID           string     `db:"id"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	QNumber      string     `db:"q_number"`
	Email        string     `db:"email"`
	HasSubmitted bool       `db:"has_submitted"`
	SubmittedAt  *time.Time `db:"submitted_at"`
}

func (e RosterEntry) FullName() string { return e.FirstName + " " + e.LastName }

// Detail is the full, unprojected assessment detail; the visibility filter
// derives both role shapes from it.
type Detail struct {
	Assessment Assessment
	Criteria   []Criterion
	Roster     []RosterEntry

	// the requesting student's own state, nil for teacher/admin views
	OwnResponse *Response
	GivenScores []Result
}

// ListRow backs the pending/completed lists for both roles; count fields
// are only populated for teacher-owned queries.
type ListRow struct {
	ID              string     `db:"id"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	CourseName      string     `db:"course_name"`
	GroupName       string     `db:"group_name"`
	DueDate         time.Time  `db:"due_date"`
	SubmittedAt     *time.Time `db:"submitted_at"` // student's own submission
	ResponsesCount  int        `db:"responses_count"`
	StudentsCount   int        `db:"students_count"`
	FeedbackCount   int        `db:"feedback_count"`
	LastSubmittedAt *time.Time `db:"last_submitted_at"`
}

// Aggregate rows returned by the set-based results queries.

type CriterionAverageRow struct {
	StudentID   string  `db:"student_id"`
	CriterionID string  `db:"criteria_id"`
	Total       float64 `db:"total"`
	Count       int     `db:"count"`
}

type OverallAverageRow struct {
	StudentID string  `db:"student_id"`
	Total     float64 `db:"total"`
	MaxTotal  float64 `db:"max_total"`
	Count     int     `db:"count"`
}

type FeedbackReceivedRow struct {
	StudentID   string    `db:"student_id"` // the evaluatee
	Feedback    string    `db:"feedback"`
	FirstName   string    `db:"first_name"` // the evaluator
	LastName    string    `db:"last_name"`
	SubmittedAt time.Time `db:"submitted_at"`
}

type FeedbackGivenRow struct {
	ResponseID        string    `db:"response_id"`
	StudentID         string    `db:"student_id"` // the evaluator
	FirstName         string    `db:"first_name"`
	LastName          string    `db:"last_name"`
	QNumber           string    `db:"q_number"`
	Feedback          string    `db:"feedback"`
	EvaluatedStudents string    `db:"evaluated_students"` // distinct full names, comma-joined
	SubmittedAt       time.Time `db:"submitted_at"`
}
