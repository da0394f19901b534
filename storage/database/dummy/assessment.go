package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/assessment"
)

type assessmentRepository struct {
	db *DB
}

var _ assessment.Repository = (*assessmentRepository)(nil) // interface compliance check

func NewAssessmentRepository(db *DB) assessment.Repository {
	return &assessmentRepository{db: db}
}

func (repo *assessmentRepository) CreateAssessment(ctx context.Context, asmt assessment.Assessment, criteria []assessment.Criterion, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.assessments[asmt.ID] = &asmt
	repo.db.criteria[asmt.ID] = append([]assessment.Criterion(nil), criteria...)
	return nil
}

func (repo *assessmentRepository) GetAssessment(ctx context.Context, id string, exec ...core.DBExecutor) (assessment.Assessment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	asmt, ok := repo.db.assessments[id]
	if !ok {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	return repo.withNames(*asmt), nil
}

// withNames mimics the course/group name join; callers must hold the lock.
func (repo *assessmentRepository) withNames(asmt assessment.Assessment) assessment.Assessment {
	if crs, ok := repo.db.courses[asmt.CourseID]; ok {
		asmt.CourseName = crs.Name
	}
	if grp, ok := repo.db.groups[asmt.GroupID]; ok {
		asmt.GroupName = grp.Name
	}
	return asmt
}

func (repo *assessmentRepository) QueryCriteria(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.Criterion, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return append([]assessment.Criterion(nil), repo.db.criteria[assessmentID]...), nil
}

func (repo *assessmentRepository) RosterWithStatus(ctx context.Context, assessmentID, groupID string, exec ...core.DBExecutor) ([]assessment.RosterEntry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	roster := make([]assessment.RosterEntry, 0)
	for _, sid := range repo.db.groupStudents[groupID] {
		usr, ok := repo.db.users[sid]
		if !ok {
			continue
		}
		entry := assessment.RosterEntry{
			ID:        usr.ID,
			FirstName: usr.FirstName,
			LastName:  usr.LastName,
			QNumber:   usr.QNumber,
			Email:     usr.Email,
		}
		if resp := repo.findResponse(assessmentID, sid); resp != nil && resp.IsSubmitted() {
			entry.HasSubmitted = true
			entry.SubmittedAt = resp.SubmittedAt
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

// findResponse scans the responses table; callers must hold the lock.
func (repo *assessmentRepository) findResponse(assessmentID, studentID string) *assessment.Response {
	for _, resp := range repo.db.responses {
		if resp.AssessmentID == assessmentID && resp.StudentID == studentID {
			return resp
		}
	}
	return nil
}

func (repo *assessmentRepository) GetResponse(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (assessment.Response, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if resp := repo.findResponse(assessmentID, studentID); resp != nil {
		return *resp, nil
	}
	return assessment.Response{}, assessment.ErrResponseNotFound
}

// GetResponseForUpdate has nothing to lock here; repository methods are
// already serialized by the table mutex.
func (repo *assessmentRepository) GetResponseForUpdate(ctx context.Context, assessmentID, studentID string, tx core.DBTransactor) (assessment.Response, error) {
	return repo.GetResponse(ctx, assessmentID, studentID)
}

func (repo *assessmentRepository) CreateResponse(ctx context.Context, resp assessment.Response, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.responses[resp.ID] = &resp
	return nil
}

func (repo *assessmentRepository) UpdateResponse(ctx context.Context, resp assessment.Response, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.responses[resp.ID]; !ok {
		return assessment.ErrResponseNotFound
	}
	repo.db.responses[resp.ID] = &resp
	return nil
}

func (repo *assessmentRepository) DeleteResults(ctx context.Context, responseID string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.results, responseID)
	return nil
}

func (repo *assessmentRepository) CreateResults(ctx context.Context, results []assessment.Result, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, res := range results {
		repo.db.results[res.ResponseID] = append(repo.db.results[res.ResponseID], res)
	}
	return nil
}

func (repo *assessmentRepository) QueryResultsForResponse(ctx context.Context, responseID string, exec ...core.DBExecutor) ([]assessment.Result, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return append([]assessment.Result(nil), repo.db.results[responseID]...), nil
}

func (repo *assessmentRepository) QueryPendingForStudent(ctx context.Context, studentID string, now time.Time, exec ...core.DBExecutor) ([]assessment.ListRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]assessment.ListRow, 0)
	for _, asmt := range repo.db.assessments {
		if !repo.isGroupStudent(asmt.GroupID, studentID) || !asmt.DueDate.After(now) {
			continue
		}
		if resp := repo.findResponse(asmt.ID, studentID); resp != nil && resp.IsSubmitted() {
			continue
		}
		rows = append(rows, repo.listRow(*asmt, studentID))
	}
	sortRowsByDueDate(rows)
	return rows, nil
}

func (repo *assessmentRepository) QueryCompletedForStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]assessment.ListRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]assessment.ListRow, 0)
	for _, asmt := range repo.db.assessments {
		if !repo.isGroupStudent(asmt.GroupID, studentID) {
			continue
		}
		if resp := repo.findResponse(asmt.ID, studentID); resp != nil && resp.IsSubmitted() {
			rows = append(rows, repo.listRow(*asmt, studentID))
		}
	}
	sortRowsByDueDate(rows)
	return rows, nil
}

func (repo *assessmentRepository) QueryForTeacher(ctx context.Context, teacherID string, exec ...core.DBExecutor) ([]assessment.ListRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]assessment.ListRow, 0)
	for _, asmt := range repo.db.assessments {
		if asmt.TeacherID != teacherID {
			continue
		}
		rows = append(rows, repo.listRow(*asmt, ""))
	}
	sortRowsByDueDate(rows)
	return rows, nil
}

// listRow assembles the counts the SQL list queries compute; callers must
// hold the lock. studentID scopes the SubmittedAt column to one student's
// own submission.
func (repo *assessmentRepository) listRow(asmt assessment.Assessment, studentID string) assessment.ListRow {
	asmt = repo.withNames(asmt)
	row := assessment.ListRow{
		ID:            asmt.ID,
		Title:         asmt.Title,
		Description:   asmt.Description,
		CourseName:    asmt.CourseName,
		GroupName:     asmt.GroupName,
		DueDate:       asmt.DueDate,
		StudentsCount: len(repo.db.groupStudents[asmt.GroupID]),
	}
	for _, resp := range repo.db.responses {
		if resp.AssessmentID != asmt.ID || !resp.IsSubmitted() {
			continue
		}
		row.ResponsesCount++
		if resp.Feedback != "" {
			row.FeedbackCount++
		}
		if row.LastSubmittedAt == nil || resp.SubmittedAt.After(*row.LastSubmittedAt) {
			row.LastSubmittedAt = resp.SubmittedAt
		}
		if resp.StudentID == studentID {
			row.SubmittedAt = resp.SubmittedAt
		}
	}
	return row
}

func (repo *assessmentRepository) isGroupStudent(groupID, studentID string) bool {
	for _, sid := range repo.db.groupStudents[groupID] {
		if sid == studentID {
			return true
		}
	}
	return false
}

func sortRowsByDueDate(rows []assessment.ListRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].DueDate.Before(rows[j].DueDate) })
}

func (repo *assessmentRepository) QueryCriterionAverages(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.CriterionAverageRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	type key struct{ student, criterion string }
	sums := make(map[key]*assessment.CriterionAverageRow)
	var order []key
	repo.eachSubmittedResult(assessmentID, func(resp assessment.Response, res assessment.Result) {
		k := key{res.StudentID, res.CriterionID}
		row, ok := sums[k]
		if !ok {
			row = &assessment.CriterionAverageRow{StudentID: res.StudentID, CriterionID: res.CriterionID}
			sums[k] = row
			order = append(order, k)
		}
		row.Total += res.GivenScore
		row.Count++
	})

	rows := make([]assessment.CriterionAverageRow, 0, len(order))
	for _, k := range order {
		rows = append(rows, *sums[k])
	}
	return rows, nil
}

func (repo *assessmentRepository) QueryOverallAverages(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.OverallAverageRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	critMax := make(map[string]float64)
	for _, crit := range repo.db.criteria[assessmentID] {
		critMax[crit.ID] = crit.MaxScore
	}

	sums := make(map[string]*assessment.OverallAverageRow)
	var order []string
	repo.eachSubmittedResult(assessmentID, func(resp assessment.Response, res assessment.Result) {
		row, ok := sums[res.StudentID]
		if !ok {
			row = &assessment.OverallAverageRow{StudentID: res.StudentID}
			sums[res.StudentID] = row
			order = append(order, res.StudentID)
		}
		row.Total += res.GivenScore
		row.MaxTotal += critMax[res.CriterionID]
		row.Count++
	})

	rows := make([]assessment.OverallAverageRow, 0, len(order))
	for _, sid := range order {
		rows = append(rows, *sums[sid])
	}
	return rows, nil
}

func (repo *assessmentRepository) QueryFeedbackReceived(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.FeedbackReceivedRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]assessment.FeedbackReceivedRow, 0)
	for _, resp := range repo.db.responses {
		if resp.AssessmentID != assessmentID || !resp.IsSubmitted() || resp.Feedback == "" {
			continue
		}
		evaluator, ok := repo.db.users[resp.StudentID]
		if !ok {
			continue
		}
		seen := make(map[string]bool)
		for _, res := range repo.db.results[resp.ID] {
			if seen[res.StudentID] {
				continue
			}
			seen[res.StudentID] = true
			rows = append(rows, assessment.FeedbackReceivedRow{
				StudentID:   res.StudentID,
				Feedback:    resp.Feedback,
				FirstName:   evaluator.FirstName,
				LastName:    evaluator.LastName,
				SubmittedAt: *resp.SubmittedAt,
			})
		}
	}
	return rows, nil
}

func (repo *assessmentRepository) QueryFeedbackGiven(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.FeedbackGivenRow, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]assessment.FeedbackGivenRow, 0)
	for _, resp := range repo.db.responses {
		if resp.AssessmentID != assessmentID || !resp.IsSubmitted() {
			continue
		}
		evaluator, ok := repo.db.users[resp.StudentID]
		if !ok {
			continue
		}
		var names []string
		seen := make(map[string]bool)
		for _, res := range repo.db.results[resp.ID] {
			if seen[res.StudentID] {
				continue
			}
			seen[res.StudentID] = true
			if usr, ok := repo.db.users[res.StudentID]; ok {
				names = append(names, usr.FullName())
			}
		}
		sort.Strings(names)
		rows = append(rows, assessment.FeedbackGivenRow{
			ResponseID:        resp.ID,
			StudentID:         resp.StudentID,
			FirstName:         evaluator.FirstName,
			LastName:          evaluator.LastName,
			QNumber:           evaluator.QNumber,
			Feedback:          resp.Feedback,
			EvaluatedStudents: strings.Join(names, ", "),
			SubmittedAt:       *resp.SubmittedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SubmittedAt.Before(rows[j].SubmittedAt) })
	return rows, nil
}

// eachSubmittedResult visits every result of every submitted response for
// the assessment; callers must hold the lock.
func (repo *assessmentRepository) eachSubmittedResult(assessmentID string, fn func(assessment.Response, assessment.Result)) {
	respIDs := make([]string, 0)
	for id, resp := range repo.db.responses {
		if resp.AssessmentID == assessmentID && resp.IsSubmitted() {
			respIDs = append(respIDs, id)
		}
	}
	sort.Strings(respIDs)
	for _, id := range respIDs {
		for _, res := range repo.db.results[id] {
			fn(*repo.db.responses[id], res)
		}
	}
}
