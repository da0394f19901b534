package assessment

import (
	"fmt"
	"time"

	"github.com/tathmini/backend/core/user"
)

// Role-based projections of assessment data. All functions here are pure:
// both shapes derive from the same fetched data, and the student shapes
// never carry scores, counts or other students' submission status.

type (
	// StudentListItem is the student-safe pending/completed list entry.
	StudentListItem struct {
		ID            string     `json:"id"`
		Title         string     `json:"title"`
		CourseName    string     `json:"course_name"`
		GroupName     string     `json:"group_name"`
		Description   string     `json:"description"`
		DueDate       *time.Time `json:"due_date,omitempty"`
		Progress      *int       `json:"progress,omitempty"`
		CompletedDate *time.Time `json:"completed_date,omitempty"`
	}

	// TeacherListItem carries the per-assessment progress counters.
	TeacherListItem struct {
		ID             string     `json:"id"`
		Title          string     `json:"title"`
		CourseName     string     `json:"course_name"`
		GroupName      string     `json:"group_name"`
		Description    string     `json:"description"`
		DueDate        time.Time  `json:"due_date"`
		CompletedDate  *time.Time `json:"completed_date"`
		ResponsesCount int        `json:"responses_count"`
		StudentsCount  int        `json:"students_count"`
		FeedbackCount  int        `json:"feedback_count"`
		Progress       *int       `json:"progress,omitempty"`
		CompletionRate string     `json:"completion_rate,omitempty"`
	}

	// EvaluateePreview is a fellow group member a student may score.
	EvaluateePreview struct {
		ID        string `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		QNumber   string `json:"q_number"`
	}

	// RosterStatus is a roster entry with submission state (teacher view).
	RosterStatus struct {
		EvaluateePreview
		HasSubmitted bool       `json:"has_submitted"`
		SubmittedAt  *time.Time `json:"submitted_at"`
	}

	StudentDetail struct {
		ID                 string             `json:"id"`
		Title              string             `json:"title"`
		CourseName         string             `json:"course_name"`
		GroupName          string             `json:"group_name"`
		Description        string             `json:"description"`
		DueDate            time.Time          `json:"due_date"`
		Criteria           []Criterion        `json:"criteria"`
		StudentsToEvaluate []EvaluateePreview `json:"students_to_evaluate"`
		ResponseID         string             `json:"response_id,omitempty"`
		Feedback           string             `json:"feedback,omitempty"`
		Submitted          bool               `json:"submitted"`
		GivenScores        []Result           `json:"given_scores"`
	}

	TeacherDetail struct {
		ID             string         `json:"id"`
		Title          string         `json:"title"`
		CourseName     string         `json:"course_name"`
		GroupName      string         `json:"group_name"`
		Description    string         `json:"description"`
		DueDate        time.Time      `json:"due_date"`
		Criteria       []Criterion    `json:"criteria"`
		Students       []RosterStatus `json:"students"`
		ResponsesCount int            `json:"responses_count"`
		StudentsCount  int            `json:"students_count"`
		Progress       int            `json:"progress"`
	}

	// Results view (teacher/admin only).

	StudentRef struct {
		ID        string `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		QNumber   string `json:"q_number"`
	}

	CriterionScore struct {
		CriterionID     string  `json:"criteria_id"`
		CriterionName   string  `json:"criteria_name"`
		MaxScore        float64 `json:"max_score"`
		AverageScore    Average `json:"average_score"`
		NumberOfRatings int     `json:"number_of_ratings"`
		ScoreDisplay    string  `json:"score_display"`
		ScoreColor      string  `json:"score_color"`
	}

	FeedbackReceived struct {
		Feedback    string    `json:"feedback"`
		FirstName   string    `json:"first_name"`
		LastName    string    `json:"last_name"`
		SubmittedAt time.Time `json:"submitted_at"`
	}

	FeedbackGiven struct {
		Feedback          string    `json:"feedback"`
		EvaluatedStudents string    `json:"evaluated_students"`
		SubmittedAt       time.Time `json:"submitted_at"`
	}

	StudentResult struct {
		Student               StudentRef         `json:"student"`
		CriteriaScores        []CriterionScore   `json:"criteria_scores"`
		OverallAverage        Average            `json:"overall_average"`
		OverallAverageDisplay string             `json:"overall_average_display"`
		OverallScoreColor     string             `json:"overall_score_color"`
		FeedbackReceived      []FeedbackReceived `json:"feedback_received"`
		FeedbackGiven         *FeedbackGiven     `json:"feedback_given"`
	}

	ResultsView struct {
		ID          string          `json:"id"`
		Title       string          `json:"title"`
		CourseName  string          `json:"course_name"`
		GroupName   string          `json:"group_name"`
		Description string          `json:"description"`
		DueDate     time.Time       `json:"due_date"`
		MaxScore    float64         `json:"max_score"` // mean of criteria maxima
		Criteria    []Criterion     `json:"criteria"`
		Results     []StudentResult `json:"results"`
	}

	// Feedback view (teacher/admin only).

	FeedbackItem struct {
		ResponseID        string     `json:"response_id"`
		Feedback          string     `json:"feedback"`
		SubmittedAt       time.Time  `json:"submitted_at"`
		Student           StudentRef `json:"student"`
		EvaluatedStudents string     `json:"evaluated_students"`
	}

	AssessmentRef struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	FeedbackView struct {
		Assessment AssessmentRef  `json:"assessment"`
		Feedback   []FeedbackItem `json:"feedback"`
	}
)

func projectStudentPending(rows []ListRow) []StudentListItem {
	items := make([]StudentListItem, 0, len(rows))
	for _, row := range rows {
		row := row
		zero := 0
		items = append(items, StudentListItem{
			ID:          row.ID,
			Title:       row.Title,
			CourseName:  row.CourseName,
			GroupName:   row.GroupName,
			Description: row.Description,
			DueDate:     &row.DueDate,
			Progress:    &zero,
		})
	}
	return items
}

func projectStudentCompleted(rows []ListRow) []StudentListItem {
	items := make([]StudentListItem, 0, len(rows))
	for _, row := range rows {
		// no score or time-spent data here: students only see their own
		// completion timestamp
		items = append(items, StudentListItem{
			ID:            row.ID,
			Title:         row.Title,
			CourseName:    row.CourseName,
			GroupName:     row.GroupName,
			Description:   row.Description,
			CompletedDate: row.SubmittedAt,
		})
	}
	return items
}

func projectTeacherRows(now time.Time, rows []ListRow, completed bool) []TeacherListItem {
	items := make([]TeacherListItem, 0, len(rows))
	for _, row := range rows {
		pct := CompletionPercentage(row.ResponsesCount, row.StudentsCount)
		item := TeacherListItem{
			ID:             row.ID,
			Title:          row.Title,
			CourseName:     row.CourseName,
			GroupName:      row.GroupName,
			Description:    row.Description,
			DueDate:        row.DueDate,
			CompletedDate:  CompletionDate(now, row.DueDate, row.LastSubmittedAt, row.ResponsesCount, row.StudentsCount),
			ResponsesCount: row.ResponsesCount,
			StudentsCount:  row.StudentsCount,
			FeedbackCount:  row.FeedbackCount,
		}
		if completed {
			item.CompletionRate = fmt.Sprintf("%d%%", pct)
		} else {
			item.Progress = &pct
		}
		items = append(items, item)
	}
	return items
}

// ProjectDetail shapes the full detail per role: students never see the
// roster's submission status or counts, teachers/admins never see a
// student's own draft state.
func ProjectDetail(prin user.Principal, d Detail) interface{} {
	if prin.IsStudent() {
		return projectStudentDetail(prin, d)
	}
	return projectTeacherDetail(d)
}

func projectStudentDetail(prin user.Principal, d Detail) StudentDetail {
	peers := make([]EvaluateePreview, 0, len(d.Roster))
	for _, e := range d.Roster {
		if e.ID == prin.ID {
			continue
		}
		peers = append(peers, EvaluateePreview{ID: e.ID, FirstName: e.FirstName, LastName: e.LastName, QNumber: e.QNumber})
	}

	detail := StudentDetail{
		ID:                 d.Assessment.ID,
		Title:              d.Assessment.Title,
		CourseName:         d.Assessment.CourseName,
		GroupName:          d.Assessment.GroupName,
		Description:        d.Assessment.Description,
		DueDate:            d.Assessment.DueDate,
		Criteria:           d.Criteria,
		StudentsToEvaluate: peers,
		GivenScores:        []Result{},
	}
	if d.OwnResponse != nil {
		detail.ResponseID = d.OwnResponse.ID
		detail.Feedback = d.OwnResponse.Feedback
		detail.Submitted = d.OwnResponse.IsSubmitted()
		if detail.Submitted && d.GivenScores != nil {
			detail.GivenScores = d.GivenScores
		}
	}
	return detail
}

func projectTeacherDetail(d Detail) TeacherDetail {
	students := make([]RosterStatus, 0, len(d.Roster))
	var responses int
	for _, e := range d.Roster {
		if e.HasSubmitted {
			responses++
		}
		students = append(students, RosterStatus{
			EvaluateePreview: EvaluateePreview{ID: e.ID, FirstName: e.FirstName, LastName: e.LastName, QNumber: e.QNumber},
			HasSubmitted:     e.HasSubmitted,
			SubmittedAt:      e.SubmittedAt,
		})
	}
	return TeacherDetail{
		ID:             d.Assessment.ID,
		Title:          d.Assessment.Title,
		CourseName:     d.Assessment.CourseName,
		GroupName:      d.Assessment.GroupName,
		Description:    d.Assessment.Description,
		DueDate:        d.Assessment.DueDate,
		Criteria:       d.Criteria,
		Students:       students,
		ResponsesCount: responses,
		StudentsCount:  len(d.Roster),
		Progress:       CompletionPercentage(responses, len(d.Roster)),
	}
}

// buildResults assembles the per-student aggregate matrix from the
// set-based query rows; one pass per input, no per-student queries.
func buildResults(
	asmt Assessment,
	criteria []Criterion,
	roster []RosterEntry,
	critAvgs []CriterionAverageRow,
	overallAvgs []OverallAverageRow,
	received []FeedbackReceivedRow,
	given []FeedbackGivenRow,
) ResultsView {
	critByStudent := make(map[string]map[string]CriterionAverageRow, len(roster))
	for _, row := range critAvgs {
		m, ok := critByStudent[row.StudentID]
		if !ok {
			m = make(map[string]CriterionAverageRow)
			critByStudent[row.StudentID] = m
		}
		m[row.CriterionID] = row
	}
	overallByStudent := make(map[string]OverallAverageRow, len(overallAvgs))
	for _, row := range overallAvgs {
		overallByStudent[row.StudentID] = row
	}
	receivedByStudent := make(map[string][]FeedbackReceived)
	for _, row := range received {
		receivedByStudent[row.StudentID] = append(receivedByStudent[row.StudentID], FeedbackReceived{
			Feedback:    row.Feedback,
			FirstName:   row.FirstName,
			LastName:    row.LastName,
			SubmittedAt: row.SubmittedAt,
		})
	}
	givenByStudent := make(map[string]*FeedbackGiven, len(given))
	for _, row := range given {
		row := row
		givenByStudent[row.StudentID] = &FeedbackGiven{
			Feedback:          row.Feedback,
			EvaluatedStudents: row.EvaluatedStudents,
			SubmittedAt:       row.SubmittedAt,
		}
	}

	results := make([]StudentResult, 0, len(roster))
	for _, student := range roster {
		scores := make([]CriterionScore, 0, len(criteria))
		for _, crit := range criteria {
			var avg Average
			var ratings int
			if row, ok := critByStudent[student.ID][crit.ID]; ok {
				avg = NewAverage(row.Total, row.Count)
				ratings = row.Count
			}
			scores = append(scores, CriterionScore{
				CriterionID:     crit.ID,
				CriterionName:   crit.Name,
				MaxScore:        crit.MaxScore,
				AverageScore:    avg,
				NumberOfRatings: ratings,
				ScoreDisplay:    avg.Display(crit.MaxScore),
				ScoreColor:      Band(avg, crit.MaxScore),
			})
		}

		var overall Average
		var overallDisplay string
		var overallColor string
		if row, ok := overallByStudent[student.ID]; ok && row.Count > 0 {
			overall = NewAverage(row.Total, row.Count)
			maxAvg := NewAverage(row.MaxTotal, row.Count)
			overallDisplay = overall.String() + "/" + maxAvg.String()
			overallColor = Band(overall, maxAvg.Value)
		} else {
			overallDisplay = "N/A"
			overallColor = BandNeutral
		}

		fbReceived := receivedByStudent[student.ID]
		if fbReceived == nil {
			fbReceived = []FeedbackReceived{}
		}

		results = append(results, StudentResult{
			Student: StudentRef{
				ID:        student.ID,
				FirstName: student.FirstName,
				LastName:  student.LastName,
				QNumber:   student.QNumber,
			},
			CriteriaScores:        scores,
			OverallAverage:        overall,
			OverallAverageDisplay: overallDisplay,
			OverallScoreColor:     overallColor,
			FeedbackReceived:      fbReceived,
			FeedbackGiven:         givenByStudent[student.ID],
		})
	}

	var maxTotal float64
	for _, crit := range criteria {
		maxTotal += crit.MaxScore
	}
	maxScore := 5.0
	if len(criteria) > 0 {
		maxScore = maxTotal / float64(len(criteria))
	}

	return ResultsView{
		ID:          asmt.ID,
		Title:       asmt.Title,
		CourseName:  asmt.CourseName,
		GroupName:   asmt.GroupName,
		Description: asmt.Description,
		DueDate:     asmt.DueDate,
		MaxScore:    maxScore,
		Criteria:    criteria,
		Results:     results,
	}
}

func buildFeedbackView(asmt Assessment, rows []FeedbackGivenRow) FeedbackView {
	items := make([]FeedbackItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, FeedbackItem{
			ResponseID:  row.ResponseID,
			Feedback:    row.Feedback,
			SubmittedAt: row.SubmittedAt,
			Student: StudentRef{
				ID:        row.StudentID,
				FirstName: row.FirstName,
				LastName:  row.LastName,
				QNumber:   row.QNumber,
			},
			EvaluatedStudents: row.EvaluatedStudents,
		})
	}
	return FeedbackView{
		Assessment: AssessmentRef{ID: asmt.ID, Title: asmt.Title},
		Feedback:   items,
	}
}
