package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/assessment"
)

type assessmentRepository struct {
	db core.DBExecutor
}

var _ assessment.Repository = (*assessmentRepository)(nil) // interface compliance check

func NewAssessmentRepository(db core.DBExecutor) assessment.Repository {
	return &assessmentRepository{db: db}
}

func (repo *assessmentRepository) CreateAssessment(ctx context.Context, asmt assessment.Assessment, criteria []assessment.Criterion, exec ...core.DBExecutor) error {
	ex := executor(repo.db, exec)

	_, err := ex.ExecContext(ctx,
		`INSERT INTO assessment (id, title, description, course_id, group_id, teacher_id, due_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		asmt.ID, asmt.Title, asmt.Description, asmt.CourseID, asmt.GroupID, asmt.TeacherID,
		asmt.DueDate, asmt.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "creating assessment")
	}

	for _, crit := range criteria {
		_, err = ex.ExecContext(ctx,
			`INSERT INTO criteria (id, assessment_id, name, description, min_score, max_score)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			crit.ID, asmt.ID, crit.Name, crit.Description, crit.MinScore, crit.MaxScore,
		)
		if err != nil {
			return errors.Wrap(err, "creating criterion")
		}
	}
	return nil
}

func (repo *assessmentRepository) GetAssessment(ctx context.Context, id string, exec ...core.DBExecutor) (assessment.Assessment, error) {
	ex := executor(repo.db, exec)

	var asmts []assessment.Assessment
	err := selectCtx(ctx, ex, &asmts,
		`SELECT a.id, a.title, a.description, a.course_id, a.group_id, a.teacher_id, a.due_date, a.created_at,
				c.name AS course_name, g.name AS group_name
		 FROM assessment a
		 JOIN course c ON c.id = a.course_id
		 JOIN "group" g ON g.id = a.group_id
		 WHERE a.id = $1`, id)
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "getting assessment")
	}
	if len(asmts) == 0 {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	return asmts[0], nil
}

func (repo *assessmentRepository) QueryCriteria(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.Criterion, error) {
	ex := executor(repo.db, exec)

	var criteria []assessment.Criterion
	err := selectCtx(ctx, ex, &criteria,
		`SELECT id, assessment_id, name, description, min_score, max_score
		 FROM criteria WHERE assessment_id = $1 ORDER BY name`, assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying criteria")
	}
	return criteria, nil
}

func (repo *assessmentRepository) RosterWithStatus(ctx context.Context, assessmentID, groupID string, exec ...core.DBExecutor) ([]assessment.RosterEntry, error) {
	ex := executor(repo.db, exec)

	var roster []assessment.RosterEntry
	err := selectCtx(ctx, ex, &roster,
		`SELECT u.id, u.first_name, u.last_name, u.q_number, u.email,
				r.id IS NOT NULL AS has_submitted, r.submitted_at
		 FROM group_student gs
		 JOIN "user" u ON u.id = gs.student_id
		 LEFT JOIN response r ON r.assessment_id = $1 AND r.student_id = u.id AND r.submitted_at IS NOT NULL
		 WHERE gs.group_id = $2
		 ORDER BY u.last_name, u.first_name`, assessmentID, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}
	return roster, nil
}

const responseColumns = `id, assessment_id, student_id, feedback, submitted_at`

func (repo *assessmentRepository) GetResponse(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (assessment.Response, error) {
	return repo.getResponse(ctx, executor(repo.db, exec), assessmentID, studentID, false)
}

// GetResponseForUpdate takes a row lock; concurrent submissions by the same
// student serialize on it until the transaction ends.
func (repo *assessmentRepository) GetResponseForUpdate(ctx context.Context, assessmentID, studentID string, tx core.DBTransactor) (assessment.Response, error) {
	return repo.getResponse(ctx, tx, assessmentID, studentID, true)
}

func (repo *assessmentRepository) getResponse(ctx context.Context, ex core.DBExecutor, assessmentID, studentID string, forUpdate bool) (assessment.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM response WHERE assessment_id = $1 AND student_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var resps []assessment.Response
	err := selectCtx(ctx, ex, &resps, query, assessmentID, studentID)
	if err != nil {
		return assessment.Response{}, errors.Wrap(err, "getting response")
	}
	if len(resps) == 0 {
		return assessment.Response{}, assessment.ErrResponseNotFound
	}
	return resps[0], nil
}

func (repo *assessmentRepository) CreateResponse(ctx context.Context, resp assessment.Response, exec ...core.DBExecutor) error {
	ex := executor(repo.db, exec)

	_, err := ex.ExecContext(ctx,
		`INSERT INTO response (id, assessment_id, student_id, feedback, submitted_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		resp.ID, resp.AssessmentID, resp.StudentID, resp.Feedback, resp.SubmittedAt,
	)
	return errors.Wrap(err, "creating response")
}

func (repo *assessmentRepository) UpdateResponse(ctx context.Context, resp assessment.Response, exec ...core.DBExecutor) error {
	ex := executor(repo.db, exec)

	res, err := ex.ExecContext(ctx,
		`UPDATE response SET feedback = $2, submitted_at = $3 WHERE id = $1`,
		resp.ID, resp.Feedback, resp.SubmittedAt,
	)
	if err != nil {
		return errors.Wrap(err, "updating response")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assessment.ErrResponseNotFound
	}
	return nil
}

func (repo *assessmentRepository) DeleteResults(ctx context.Context, responseID string, exec ...core.DBExecutor) error {
	ex := executor(repo.db, exec)

	_, err := ex.ExecContext(ctx, `DELETE FROM result WHERE response_id = $1`, responseID)
	return errors.Wrap(err, "deleting results")
}

func (repo *assessmentRepository) CreateResults(ctx context.Context, results []assessment.Result, exec ...core.DBExecutor) error {
	ex := executor(repo.db, exec)

	for _, res := range results {
		_, err := ex.ExecContext(ctx,
			`INSERT INTO result (id, response_id, criteria_id, student_id, given_score)
			 VALUES ($1, $2, $3, $4, $5)`,
			res.ID, res.ResponseID, res.CriterionID, res.StudentID, res.GivenScore,
		)
		if err != nil {
			return errors.Wrap(err, "creating result")
		}
	}
	return nil
}

func (repo *assessmentRepository) QueryResultsForResponse(ctx context.Context, responseID string, exec ...core.DBExecutor) ([]assessment.Result, error) {
	ex := executor(repo.db, exec)

	var results []assessment.Result
	err := selectCtx(ctx, ex, &results,
		`SELECT id, response_id, criteria_id, student_id, given_score
		 FROM result WHERE response_id = $1`, responseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	return results, nil
}

func (repo *assessmentRepository) QueryPendingForStudent(ctx context.Context, studentID string, now time.Time, exec ...core.DBExecutor) ([]assessment.ListRow, error) {
	ex := executor(repo.db, exec)

	var rows []assessment.ListRow
	err := selectCtx(ctx, ex, &rows,
		`SELECT a.id, a.title, a.description, c.name AS course_name, g.name AS group_name, a.due_date
		 FROM assessment a
		 JOIN course c ON c.id = a.course_id
		 JOIN "group" g ON g.id = a.group_id
		 JOIN group_student gs ON gs.group_id = a.group_id AND gs.student_id = $1
		 LEFT JOIN response r ON r.assessment_id = a.id AND r.student_id = $1 AND r.submitted_at IS NOT NULL
		 WHERE a.due_date > $2 AND r.id IS NULL
		 ORDER BY a.due_date`, studentID, now)
	if err != nil {
		return nil, errors.Wrap(err, "querying pending assessments")
	}
	return rows, nil
}

func (repo *assessmentRepository) QueryCompletedForStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]assessment.ListRow, error) {
	ex := executor(repo.db, exec)

	var rows []assessment.ListRow
	err := selectCtx(ctx, ex, &rows,
		`SELECT a.id, a.title, a.description, c.name AS course_name, g.name AS group_name, a.due_date,
				r.submitted_at
		 FROM assessment a
		 JOIN course c ON c.id = a.course_id
		 JOIN "group" g ON g.id = a.group_id
		 JOIN response r ON r.assessment_id = a.id AND r.student_id = $1 AND r.submitted_at IS NOT NULL
		 ORDER BY a.due_date`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying completed assessments")
	}
	return rows, nil
}

func (repo *assessmentRepository) QueryForTeacher(ctx context.Context, teacherID string, exec ...core.DBExecutor) ([]assessment.ListRow, error) {
	ex := executor(repo.db, exec)

	var rows []assessment.ListRow
	err := selectCtx(ctx, ex, &rows,
		`SELECT a.id, a.title, a.description, c.name AS course_name, g.name AS group_name, a.due_date,
				COUNT(DISTINCT r.id) AS responses_count,
				COUNT(DISTINCT gs.student_id) AS students_count,
				COUNT(DISTINCT r.id) FILTER (WHERE r.feedback <> '') AS feedback_count,
				MAX(r.submitted_at) AS last_submitted_at
		 FROM assessment a
		 JOIN course c ON c.id = a.course_id
		 JOIN "group" g ON g.id = a.group_id
		 LEFT JOIN group_student gs ON gs.group_id = a.group_id
		 LEFT JOIN response r ON r.assessment_id = a.id AND r.submitted_at IS NOT NULL
		 WHERE a.teacher_id = $1
		 GROUP BY a.id, a.title, a.description, c.name, g.name, a.due_date
		 ORDER BY a.due_date`, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying teacher assessments")
	}
	return rows, nil
}

// The aggregate queries below compute the whole results matrix set-based;
// no per-student round-trips.

func (repo *assessmentRepository) QueryCriterionAverages(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.CriterionAverageRow, error) {
	ex := executor(repo.db, exec)

	var rows []assessment.CriterionAverageRow
	err := selectCtx(ctx, ex, &rows,
		`SELECT res.student_id, res.criteria_id, SUM(res.given_score) AS total, COUNT(*) AS count
		 FROM result res
		 JOIN response r ON r.id = res.response_id
		 WHERE r.assessment_id = $1 AND r.submitted_at IS NOT NULL
		 GROUP BY res.student_id, res.criteria_id`, assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying criterion averages")
	}
	return rows, nil
}

func (repo *assessmentRepository) QueryOverallAverages(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.OverallAverageRow, error) {
	ex := executor(repo.db, exec)

	var rows []assessment.OverallAverageRow
	err := selectCtx(ctx, ex, &rows,
		`SELECT res.student_id, SUM(res.given_score) AS total, SUM(cr.max_score) AS max_total, COUNT(*) AS count
		 FROM result res
		 JOIN response r ON r.id = res.response_id
		 JOIN criteria cr ON cr.id = res.criteria_id
		 WHERE r.assessment_id = $1 AND r.submitted_at IS NOT NULL
		 GROUP BY res.student_id`, assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying overall averages")
	}
	return rows, nil
}

func (repo *assessmentRepository) QueryFeedbackReceived(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.FeedbackReceivedRow, error) {
	ex := executor(repo.db, exec)

	var rows []assessment.FeedbackReceivedRow
	err := selectCtx(ctx, ex, &rows,
		`SELECT DISTINCT res.student_id, r.feedback, u.first_name, u.last_name, r.submitted_at
		 FROM response r
		 JOIN result res ON res.response_id = r.id
		 JOIN "user" u ON u.id = r.student_id
		 WHERE r.assessment_id = $1 AND r.submitted_at IS NOT NULL AND r.feedback <> ''
		 ORDER BY r.submitted_at`, assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying feedback received")
	}
	return rows, nil
}

func (repo *assessmentRepository) QueryFeedbackGiven(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.FeedbackGivenRow, error) {
	ex := executor(repo.db, exec)

	var rows []assessment.FeedbackGivenRow
	err := selectCtx(ctx, ex, &rows,
		`SELECT r.id AS response_id, r.student_id, u.first_name, u.last_name, u.q_number, r.feedback,
				COALESCE(string_agg(DISTINCT u2.first_name || ' ' || u2.last_name, ', '), '') AS evaluated_students,
				r.submitted_at
		 FROM response r
		 JOIN "user" u ON u.id = r.student_id
		 LEFT JOIN result res ON res.response_id = r.id
		 LEFT JOIN "user" u2 ON u2.id = res.student_id
		 WHERE r.assessment_id = $1 AND r.submitted_at IS NOT NULL
		 GROUP BY r.id, r.student_id, u.first_name, u.last_name, u.q_number, r.feedback, r.submitted_at
		 ORDER BY r.submitted_at`, assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying feedback given")
	}
	return rows, nil
}
