package assessment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("assessment not found")
	ErrForbidden        = errors.New("permission denied")
	ErrResponseNotFound = errors.New("response not found")
)

type (
	Repository interface {
		CreateAssessment(ctx context.Context, asmt Assessment, criteria []Criterion, exec ...core.DBExecutor) error
		GetAssessment(ctx context.Context, id string, exec ...core.DBExecutor) (Assessment, error)
		QueryCriteria(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]Criterion, error)
		// RosterWithStatus returns the target group's students with their
		// submission status for the assessment.
		RosterWithStatus(ctx context.Context, assessmentID, groupID string, exec ...core.DBExecutor) ([]RosterEntry, error)

		GetResponse(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (Response, error)
		// GetResponseForUpdate locks the response row for the duration of
		// the surrounding transaction, serializing concurrent resubmission
		// by the same student.
		GetResponseForUpdate(ctx context.Context, assessmentID, studentID string, tx core.DBTransactor) (Response, error)
		CreateResponse(ctx context.Context, resp Response, exec ...core.DBExecutor) error
		UpdateResponse(ctx context.Context, resp Response, exec ...core.DBExecutor) error
		DeleteResults(ctx context.Context, responseID string, exec ...core.DBExecutor) error
		CreateResults(ctx context.Context, results []Result, exec ...core.DBExecutor) error
		QueryResultsForResponse(ctx context.Context, responseID string, exec ...core.DBExecutor) ([]Result, error)

		QueryPendingForStudent(ctx context.Context, studentID string, now time.Time, exec ...core.DBExecutor) ([]ListRow, error)
		QueryCompletedForStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]ListRow, error)
		QueryForTeacher(ctx context.Context, teacherID string, exec ...core.DBExecutor) ([]ListRow, error)

		// set-based aggregates: the whole matrix in a few round-trips
		QueryCriterionAverages(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]CriterionAverageRow, error)
		QueryOverallAverages(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]OverallAverageRow, error)
		QueryFeedbackReceived(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]FeedbackReceivedRow, error)
		QueryFeedbackGiven(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]FeedbackGivenRow, error)
	}

	// MembershipService gates every authorization decision; the admin role
	// bypasses it unconditionally.
	MembershipService interface {
		IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)
		IsCourseTeacher(ctx context.Context, courseID, teacherID string) (bool, error)
	}

	Service struct {
		db      core.DB
		repo    Repository
		members MembershipService
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(db core.DB, repo Repository, members MembershipService, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, members: members, mailSvc: mailSvc, conf: conf}
}

// Create creates one Assessment (plus criteria) per target group in a
// single transaction and returns the created ids in group order.
// Group students are notified by email after commit.
func (svc *Service) Create(ctx context.Context, prin user.Principal, na NewAssessment) ([]string, error) {
	if !(prin.IsTeacher() || prin.IsAdmin()) {
		return nil, ErrForbidden
	}
	if err := na.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ids := make([]string, 0, len(na.GroupIDs))
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		for _, groupID := range na.GroupIDs {
			asmt := Assessment{
				ID:          uuid.New().String(),
				Title:       na.Title,
				Description: na.Description,
				CourseID:    na.CourseID,
				GroupID:     groupID,
				TeacherID:   prin.ID,
				DueDate:     na.DueDate.UTC(),
				CreatedAt:   now,
			}
			criteria := make([]Criterion, 0, len(na.Criteria))
			for _, nc := range na.Criteria {
				criteria = append(criteria, Criterion{
					ID:           uuid.New().String(),
					AssessmentID: asmt.ID,
					Name:         core.CleanString(nc.Name),
					Description:  core.CleanString(nc.Description),
					MinScore:     *nc.MinScore,
					MaxScore:     *nc.MaxScore,
				})
			}
			if err := svc.repo.CreateAssessment(ctx, asmt, criteria, tx); err != nil {
				return err
			}
			ids = append(ids, asmt.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, groupID := range na.GroupIDs {
		svc.notifyGroup(ctx, ids[i], groupID, na.Title, na.DueDate)
	}
	return ids, nil
}

// GetDetail fetches the full assessment detail once; callers shape it per
// role with ProjectDetail.
func (svc *Service) GetDetail(ctx context.Context, prin user.Principal, id string) (Detail, error) {
	asmt, err := svc.repo.GetAssessment(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if err = svc.checkViewAccess(ctx, prin, asmt); err != nil {
		return Detail{}, err
	}

	criteria, err := svc.repo.QueryCriteria(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	roster, err := svc.repo.RosterWithStatus(ctx, id, asmt.GroupID)
	if err != nil {
		return Detail{}, err
	}

	detail := Detail{Assessment: asmt, Criteria: criteria, Roster: roster}

	if prin.IsStudent() {
		resp, err := svc.repo.GetResponse(ctx, id, prin.ID)
		switch err {
		case nil:
			detail.OwnResponse = &resp
			if resp.IsSubmitted() {
				if detail.GivenScores, err = svc.repo.QueryResultsForResponse(ctx, resp.ID); err != nil {
					return Detail{}, err
				}
			}
		case ErrResponseNotFound:
		default:
			return Detail{}, err
		}
	}
	return detail, nil
}

// checkViewAccess: students must be in the target group, teachers must
// teach the course; admins always pass.
func (svc *Service) checkViewAccess(ctx context.Context, prin user.Principal, asmt Assessment) error {
	switch {
	case prin.IsAdmin():
		return nil
	case prin.IsStudent():
		ok, err := svc.members.IsGroupMember(ctx, asmt.GroupID, prin.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}
	case prin.IsTeacher():
		ok, err := svc.members.IsCourseTeacher(ctx, asmt.CourseID, prin.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	return nil
}

// ListPending returns the role-shaped pending list: for students,
// assessments in their groups not yet submitted and not past due; for
// teachers/admins, their own assessments that are neither past due nor
// fully submitted. Pending/completed are derived, never stored.
func (svc *Service) ListPending(ctx context.Context, prin user.Principal) (interface{}, error) {
	now := time.Now().UTC()
	if prin.IsStudent() {
		rows, err := svc.repo.QueryPendingForStudent(ctx, prin.ID, now)
		if err != nil {
			return nil, err
		}
		return projectStudentPending(rows), nil
	}

	rows, err := svc.repo.QueryForTeacher(ctx, prin.ID)
	if err != nil {
		return nil, err
	}
	pending := rows[:0:0]
	for _, row := range rows {
		if !IsCompleted(now, row.DueDate, row.ResponsesCount, row.StudentsCount) {
			pending = append(pending, row)
		}
	}
	return projectTeacherRows(now, pending, false /* completed */), nil
}

// ListCompleted mirrors ListPending for the completed side: a student's
// own submitted assessments, or a teacher's past-due/fully-submitted ones.
func (svc *Service) ListCompleted(ctx context.Context, prin user.Principal) (interface{}, error) {
	now := time.Now().UTC()
	if prin.IsStudent() {
		rows, err := svc.repo.QueryCompletedForStudent(ctx, prin.ID)
		if err != nil {
			return nil, err
		}
		return projectStudentCompleted(rows), nil
	}

	rows, err := svc.repo.QueryForTeacher(ctx, prin.ID)
	if err != nil {
		return nil, err
	}
	completed := rows[:0:0]
	for _, row := range rows {
		if IsCompleted(now, row.DueDate, row.ResponsesCount, row.StudentsCount) {
			completed = append(completed, row)
		}
	}
	return projectTeacherRows(now, completed, true /* completed */), nil
}

// Submit validates and records a student's peer-evaluation response.
// Resubmission is a destructive replace: prior results are deleted before
// the new set is inserted, all inside one transaction with the response
// row locked. Validation runs before any write; a failed submission never
// touches previously persisted data.
func (svc *Service) Submit(ctx context.Context, prin user.Principal, assessmentID string, sub ResponseSubmission) (SubmissionReceipt, error) {
	if !prin.IsStudent() {
		return SubmissionReceipt{}, ErrForbidden
	}
	if err := sub.Validate(); err != nil {
		return SubmissionReceipt{}, err
	}

	asmt, err := svc.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return SubmissionReceipt{}, err
	}
	// non-members get the same NotFound as a missing assessment so that
	// existence is not leaked
	member, err := svc.members.IsGroupMember(ctx, asmt.GroupID, prin.ID)
	if err != nil {
		return SubmissionReceipt{}, err
	}
	if !member {
		return SubmissionReceipt{}, ErrNotFound
	}

	criteria, err := svc.repo.QueryCriteria(ctx, assessmentID)
	if err != nil {
		return SubmissionReceipt{}, err
	}
	critByID := make(map[string]Criterion, len(criteria))
	for _, crit := range criteria {
		critByID[crit.ID] = crit
	}
	for i, entry := range sub.Scores {
		crit, ok := critByID[entry.CriterionID]
		if !ok {
			return SubmissionReceipt{}, core.NewValidationError(nil, core.FieldError{
				Field: fmt.Sprintf("scores[%d].criteria_id", i),
				Error: "criterion does not belong to this assessment",
			})
		}
		if score := *entry.Score; score < crit.MinScore || score > crit.MaxScore {
			return SubmissionReceipt{}, core.NewValidationError(nil, core.FieldError{
				Field: fmt.Sprintf("scores[%d].score", i),
				Error: fmt.Sprintf("score must be between %v and %v", crit.MinScore, crit.MaxScore),
			})
		}
	}

	now := time.Now().UTC()
	var responseID string
	err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		resp, err := svc.repo.GetResponseForUpdate(ctx, assessmentID, prin.ID, tx)
		switch err {
		case nil:
			resp.Feedback = sub.Feedback
			resp.SubmittedAt = &now
			if err = svc.repo.UpdateResponse(ctx, resp, tx); err != nil {
				return err
			}
			if err = svc.repo.DeleteResults(ctx, resp.ID, tx); err != nil {
				return err
			}
		case ErrResponseNotFound:
			resp = Response{
				ID:           uuid.New().String(),
				AssessmentID: assessmentID,
				StudentID:    prin.ID,
				Feedback:     sub.Feedback,
				SubmittedAt:  &now,
			}
			if err = svc.repo.CreateResponse(ctx, resp, tx); err != nil {
				return err
			}
		default:
			return err
		}
		responseID = resp.ID

		results := make([]Result, 0, len(sub.Scores))
		for _, entry := range sub.Scores {
			results = append(results, Result{
				ID:          uuid.New().String(),
				ResponseID:  resp.ID,
				CriterionID: entry.CriterionID,
				StudentID:   entry.StudentID,
				GivenScore:  *entry.Score,
			})
		}
		return svc.repo.CreateResults(ctx, results, tx)
	})
	if err != nil {
		return SubmissionReceipt{}, err
	}

	return SubmissionReceipt{
		ResponseID:    responseID,
		AverageScores: EvaluateeAverages(sub.Scores),
	}, nil
}

// Results returns the full per-student aggregate breakdown; teacher/admin
// only, with teachers restricted to courses they teach.
func (svc *Service) Results(ctx context.Context, prin user.Principal, id string) (ResultsView, error) {
	asmt, err := svc.getForTeacherView(ctx, prin, id)
	if err != nil {
		return ResultsView{}, err
	}

	criteria, err := svc.repo.QueryCriteria(ctx, id)
	if err != nil {
		return ResultsView{}, err
	}
	roster, err := svc.repo.RosterWithStatus(ctx, id, asmt.GroupID)
	if err != nil {
		return ResultsView{}, err
	}
	critAvgs, err := svc.repo.QueryCriterionAverages(ctx, id)
	if err != nil {
		return ResultsView{}, err
	}
	overallAvgs, err := svc.repo.QueryOverallAverages(ctx, id)
	if err != nil {
		return ResultsView{}, err
	}
	received, err := svc.repo.QueryFeedbackReceived(ctx, id)
	if err != nil {
		return ResultsView{}, err
	}
	given, err := svc.repo.QueryFeedbackGiven(ctx, id)
	if err != nil {
		return ResultsView{}, err
	}

	return buildResults(asmt, criteria, roster, critAvgs, overallAvgs, received, given), nil
}

// Feedback returns the flattened list of submitted, non-empty feedback;
// teacher/admin only.
func (svc *Service) Feedback(ctx context.Context, prin user.Principal, id string) (FeedbackView, error) {
	asmt, err := svc.getForTeacherView(ctx, prin, id)
	if err != nil {
		return FeedbackView{}, err
	}

	rows, err := svc.repo.QueryFeedbackGiven(ctx, id)
	if err != nil {
		return FeedbackView{}, err
	}
	withFeedback := rows[:0:0]
	for _, row := range rows {
		if row.Feedback != "" {
			withFeedback = append(withFeedback, row)
		}
	}
	return buildFeedbackView(asmt, withFeedback), nil
}

func (svc *Service) getForTeacherView(ctx context.Context, prin user.Principal, id string) (Assessment, error) {
	if prin.IsStudent() {
		return Assessment{}, ErrForbidden
	}
	asmt, err := svc.repo.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	if !prin.IsAdmin() {
		ok, err := svc.members.IsCourseTeacher(ctx, asmt.CourseID, prin.ID)
		if err != nil {
			return Assessment{}, err
		}
		if !ok {
			return Assessment{}, ErrForbidden
		}
	}
	return asmt, nil
}

func (svc *Service) notifyGroup(ctx context.Context, assessmentID, groupID, title string, dueDate time.Time) {
	roster, err := svc.repo.RosterWithStatus(ctx, assessmentID, groupID)
	if err != nil {
		return // notification is best-effort
	}
	messages := make([]*core.EmailMessage, 0, len(roster))
	for _, student := range roster {
		if student.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:      []mail.Address{{Name: student.FullName(), Address: student.Email}},
			Subject: "New peer assessment: " + title,
			BodyStr: fmt.Sprintf(
				"Hi %s,\n\nA new peer assessment %q is due on %s. Complete it at %s.",
				student.FirstName, title, dueDate.Format("Mon, 02 Jan 2006 15:04"), svc.conf.FrontendBaseURL,
			),
		})
	}
	svc.mailSvc.SendMessages(messages...)
}
