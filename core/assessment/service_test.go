package assessment_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/assessment"
	"github.com/tathmini/backend/core/course"
	"github.com/tathmini/backend/core/user"
	emailsvc "github.com/tathmini/backend/services/email"
	dummydb "github.com/tathmini/backend/storage/database/dummy"
	testutil "github.com/tathmini/backend/tests"
)

var ctx = context.Background()

type fixture struct {
	svc    *assessment.Service
	crsSvc *course.Service

	teacher  user.User // teaches crs
	outsider user.User // teacher of nothing
	admin    user.User
	alice    user.User // grp members
	bob      user.User
	eve      user.User
	zoe      user.User // enrolled in crs, not in grp

	crs course.Course
	grp course.Group
}

func newFixture(t *testing.T) *fixture {
	db := testutil.PrepareDB(t)
	conf := testutil.NewConfig()

	usrRepo := dummydb.NewUserRepository(db)
	crsRepo := dummydb.NewCourseRepository(db)
	crsSvc := course.NewService(db, crsRepo)
	svc := assessment.NewService(db, dummydb.NewAssessmentRepository(db), crsSvc, emailsvc.NewConsoleServiceMock(conf), conf)

	f := &fixture{
		svc:      svc,
		crsSvc:   crsSvc,
		teacher:  testutil.CreateUser(t, usrRepo, "Tess", "Mwalimu", "tess@test.cd", "", user.RoleTeacher, "pwd", true),
		outsider: testutil.CreateUser(t, usrRepo, "Omar", "Okoth", "omar@test.cd", "", user.RoleTeacher, "pwd", true),
		admin:    testutil.CreateUser(t, usrRepo, "Ada", "Admin", "ada@test.cd", "", user.RoleAdmin, "pwd", true),
		alice:    testutil.CreateUser(t, usrRepo, "Alice", "Abura", "alice@test.cd", "q1", user.RoleStudent, "pwd", true),
		bob:      testutil.CreateUser(t, usrRepo, "Bob", "Baraka", "bob@test.cd", "q2", user.RoleStudent, "pwd", true),
		eve:      testutil.CreateUser(t, usrRepo, "Eve", "Etana", "eve@test.cd", "q3", user.RoleStudent, "pwd", true),
		zoe:      testutil.CreateUser(t, usrRepo, "Zoe", "Zuri", "zoe@test.cd", "q4", user.RoleStudent, "pwd", true),
	}

	f.crs = testutil.CreateCourse(t, crsRepo, f.teacher.ID, "Software Engineering", "SE101")
	if err := crsRepo.EnrollStudents(ctx, f.crs.ID, []string{f.alice.ID, f.bob.ID, f.eve.ID, f.zoe.ID}); err != nil {
		t.Fatalf("EnrollStudents() failed: %v", err)
	}
	f.grp = testutil.CreateGroup(t, crsRepo, f.crs.ID, "Group A", f.alice.ID, f.bob.ID, f.eve.ID)
	return f
}

func fptr(v float64) *float64 { return &v }

func (f *fixture) newAssessment(dueDate time.Time) assessment.NewAssessment {
	return assessment.NewAssessment{
		Title:    "Sprint 1 peer review",
		CourseID: f.crs.ID,
		GroupIDs: []string{f.grp.ID},
		DueDate:  dueDate,
		Criteria: []assessment.NewCriterion{
			{Name: "Collaboration", MinScore: fptr(0), MaxScore: fptr(10)},
			{Name: "Communication", MinScore: fptr(0), MaxScore: fptr(10)},
		},
	}
}

// createAssessment creates one assessment for the fixture group, due in 2 days.
func (f *fixture) createAssessment(t *testing.T) string {
	ids, err := f.svc.Create(ctx, f.teacher.Principal(), f.newAssessment(time.Now().Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return ids[0]
}

// criteria fetches the created criteria in rubric order.
func (f *fixture) criteria(t *testing.T, id string) []assessment.Criterion {
	detail, err := f.svc.GetDetail(ctx, f.teacher.Principal(), id)
	if err != nil {
		t.Fatalf("GetDetail() failed: %v", err)
	}
	return detail.Criteria
}

func (f *fixture) submission(t *testing.T, id string, feedback string) assessment.ResponseSubmission {
	crits := f.criteria(t, id)
	return assessment.ResponseSubmission{
		Feedback: feedback,
		Scores: []assessment.ScoreEntry{
			{CriterionID: crits[0].ID, StudentID: f.bob.ID, Score: fptr(8)},
			{CriterionID: crits[1].ID, StudentID: f.bob.ID, Score: fptr(7)},
			{CriterionID: crits[0].ID, StudentID: f.eve.ID, Score: fptr(6)},
			{CriterionID: crits[1].ID, StudentID: f.eve.ID, Score: fptr(5)},
		},
	}
}

func validationField(t *testing.T, err error) string {
	t.Helper()
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("expected *core.ValidationError, got %v", err)
	}
	if len(vErr.Fields) == 0 {
		t.Fatal("expected field errors")
	}
	return vErr.Fields[0].Field
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	dueDate := time.Now().Add(48 * time.Hour)

	t.Run("students may not create", func(t *testing.T) {
		if _, err := f.svc.Create(ctx, f.alice.Principal(), f.newAssessment(dueDate)); err != assessment.ErrForbidden {
			t.Errorf("Create() error = %v, want %v", err, assessment.ErrForbidden)
		}
	})

	t.Run("missing title", func(t *testing.T) {
		na := f.newAssessment(dueDate)
		na.Title = " "
		if _, err := f.svc.Create(ctx, f.teacher.Principal(), na); err == nil {
			t.Error("Create() expected a validation error")
		}
	})

	t.Run("max_score below min_score", func(t *testing.T) {
		na := f.newAssessment(dueDate)
		na.Criteria[1].MinScore = fptr(5)
		na.Criteria[1].MaxScore = fptr(1)
		_, err := f.svc.Create(ctx, f.teacher.Principal(), na)
		if field := validationField(t, err); field != "criteria[1].max_score" {
			t.Errorf("field = %s, want criteria[1].max_score", field)
		}
	})

	t.Run("one assessment per group, students notified", func(t *testing.T) {
		sentBefore := len(emailsvc.SentMessages)

		ids, err := f.svc.Create(ctx, f.teacher.Principal(), f.newAssessment(dueDate))
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if len(ids) != 1 {
			t.Fatalf("len(ids) = %d, want 1", len(ids))
		}

		detail, err := f.svc.GetDetail(ctx, f.teacher.Principal(), ids[0])
		if err != nil {
			t.Fatalf("GetDetail() failed: %v", err)
		}
		if len(detail.Criteria) != 2 {
			t.Errorf("len(Criteria) = %d, want 2", len(detail.Criteria))
		}
		if len(detail.Roster) != 3 {
			t.Errorf("len(Roster) = %d, want 3", len(detail.Roster))
		}
		if got := len(emailsvc.SentMessages) - sentBefore; got != 3 {
			t.Errorf("sent %d notification emails, want 3", got)
		}
	})
}

func TestService_Submit(t *testing.T) {
	f := newFixture(t)
	id := f.createAssessment(t)
	crits := f.criteria(t, id)

	t.Run("teachers may not submit", func(t *testing.T) {
		if _, err := f.svc.Submit(ctx, f.teacher.Principal(), id, f.submission(t, id, "")); err != assessment.ErrForbidden {
			t.Errorf("Submit() error = %v, want %v", err, assessment.ErrForbidden)
		}
	})

	t.Run("empty scores", func(t *testing.T) {
		sub := assessment.ResponseSubmission{Feedback: "no scores"}
		if _, err := f.svc.Submit(ctx, f.alice.Principal(), id, sub); err == nil {
			t.Error("Submit() expected a validation error")
		}
	})

	t.Run("unknown assessment", func(t *testing.T) {
		if _, err := f.svc.Submit(ctx, f.alice.Principal(), "nope", f.submission(t, id, "")); err != assessment.ErrNotFound {
			t.Errorf("Submit() error = %v, want %v", err, assessment.ErrNotFound)
		}
	})

	t.Run("non-members get not-found, not forbidden", func(t *testing.T) {
		if _, err := f.svc.Submit(ctx, f.zoe.Principal(), id, f.submission(t, id, "")); err != assessment.ErrNotFound {
			t.Errorf("Submit() error = %v, want %v", err, assessment.ErrNotFound)
		}
	})

	t.Run("foreign criterion", func(t *testing.T) {
		sub := f.submission(t, id, "")
		sub.Scores[0].CriterionID = "not-a-criterion"
		_, err := f.svc.Submit(ctx, f.alice.Principal(), id, sub)
		if field := validationField(t, err); field != "scores[0].criteria_id" {
			t.Errorf("field = %s, want scores[0].criteria_id", field)
		}
	})

	t.Run("score out of range", func(t *testing.T) {
		sub := f.submission(t, id, "")
		sub.Scores[1].Score = fptr(11)
		_, err := f.svc.Submit(ctx, f.alice.Principal(), id, sub)
		if field := validationField(t, err); field != "scores[1].score" {
			t.Errorf("field = %s, want scores[1].score", field)
		}
	})

	var firstResponseID string

	t.Run("first submission", func(t *testing.T) {
		receipt, err := f.svc.Submit(ctx, f.alice.Principal(), id, f.submission(t, id, "Great team"))
		if err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
		if receipt.ResponseID == "" {
			t.Fatal("ResponseID is empty")
		}
		firstResponseID = receipt.ResponseID

		// per-evaluatee averages, first-seen order
		if len(receipt.AverageScores) != 2 {
			t.Fatalf("len(AverageScores) = %d, want 2", len(receipt.AverageScores))
		}
		if avg := receipt.AverageScores[0]; avg.StudentID != f.bob.ID || avg.Average != 7.5 {
			t.Errorf("AverageScores[0] = %+v, want {%s 7.5}", avg, f.bob.ID)
		}
		if avg := receipt.AverageScores[1]; avg.StudentID != f.eve.ID || avg.Average != 5.5 {
			t.Errorf("AverageScores[1] = %+v, want {%s 5.5}", avg, f.eve.ID)
		}

		detail, err := f.svc.GetDetail(ctx, f.alice.Principal(), id)
		if err != nil {
			t.Fatalf("GetDetail() failed: %v", err)
		}
		if detail.OwnResponse == nil || !detail.OwnResponse.IsSubmitted() {
			t.Fatal("expected a submitted response")
		}
		if len(detail.GivenScores) != 4 {
			t.Errorf("len(GivenScores) = %d, want 4", len(detail.GivenScores))
		}
	})

	t.Run("resubmission replaces all prior results", func(t *testing.T) {
		sub := assessment.ResponseSubmission{
			Feedback: "Changed my mind",
			Scores: []assessment.ScoreEntry{
				{CriterionID: crits[0].ID, StudentID: f.bob.ID, Score: fptr(9)},
				{CriterionID: crits[1].ID, StudentID: f.bob.ID, Score: fptr(9)},
			},
		}
		receipt, err := f.svc.Submit(ctx, f.alice.Principal(), id, sub)
		if err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
		if receipt.ResponseID != firstResponseID {
			t.Errorf("ResponseID = %s, want the original %s", receipt.ResponseID, firstResponseID)
		}

		detail, err := f.svc.GetDetail(ctx, f.alice.Principal(), id)
		if err != nil {
			t.Fatalf("GetDetail() failed: %v", err)
		}
		if detail.OwnResponse.Feedback != "Changed my mind" {
			t.Errorf("Feedback = %q, want the resubmitted text", detail.OwnResponse.Feedback)
		}
		if len(detail.GivenScores) != 2 {
			t.Fatalf("len(GivenScores) = %d, want 2", len(detail.GivenScores))
		}
		for _, res := range detail.GivenScores {
			if res.StudentID != f.bob.ID || res.GivenScore != 9 {
				t.Errorf("unexpected result after replace: %+v", res)
			}
		}
	})

	t.Run("failed resubmission leaves prior results untouched", func(t *testing.T) {
		sub := f.submission(t, id, "out of range")
		sub.Scores[0].Score = fptr(-1)
		if _, err := f.svc.Submit(ctx, f.alice.Principal(), id, sub); err == nil {
			t.Fatal("Submit() expected a validation error")
		}

		detail, err := f.svc.GetDetail(ctx, f.alice.Principal(), id)
		if err != nil {
			t.Fatalf("GetDetail() failed: %v", err)
		}
		if detail.OwnResponse.Feedback != "Changed my mind" {
			t.Errorf("Feedback = %q, want the last accepted text", detail.OwnResponse.Feedback)
		}
		if len(detail.GivenScores) != 2 {
			t.Errorf("len(GivenScores) = %d, want 2", len(detail.GivenScores))
		}
	})
}

func TestService_GetDetail(t *testing.T) {
	f := newFixture(t)
	id := f.createAssessment(t)

	tests := []struct {
		name    string
		prin    user.Principal
		wantErr error
	}{
		{name: "unknown assessment", prin: f.teacher.Principal(), wantErr: assessment.ErrNotFound},
		{name: "teacher of another course", prin: f.outsider.Principal(), wantErr: assessment.ErrForbidden},
		{name: "student outside the group", prin: f.zoe.Principal(), wantErr: assessment.ErrForbidden},
		{name: "group member", prin: f.alice.Principal()},
		{name: "course teacher", prin: f.teacher.Principal()},
		{name: "admin", prin: f.admin.Principal()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookupID := id
			if tt.wantErr == assessment.ErrNotFound {
				lookupID = "nope"
			}
			detail, err := f.svc.GetDetail(ctx, tt.prin, lookupID)
			if err != tt.wantErr {
				t.Fatalf("GetDetail() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(detail.Roster) != 3 {
				t.Errorf("len(Roster) = %d, want 3", len(detail.Roster))
			}
			if detail.Assessment.CourseName != f.crs.Name || detail.Assessment.GroupName != f.grp.Name {
				t.Errorf("missing joined names: %+v", detail.Assessment)
			}
		})
	}

	t.Run("no response state before submission", func(t *testing.T) {
		detail, err := f.svc.GetDetail(ctx, f.alice.Principal(), id)
		if err != nil {
			t.Fatalf("GetDetail() failed: %v", err)
		}
		if detail.OwnResponse != nil {
			t.Errorf("OwnResponse = %+v, want nil", detail.OwnResponse)
		}
	})
}

func TestService_Lists(t *testing.T) {
	f := newFixture(t)
	id := f.createAssessment(t)

	studentItems := func(t *testing.T, got interface{}) []assessment.StudentListItem {
		t.Helper()
		items, ok := got.([]assessment.StudentListItem)
		if !ok {
			t.Fatalf("got %T, want []assessment.StudentListItem", got)
		}
		return items
	}
	teacherItems := func(t *testing.T, got interface{}) []assessment.TeacherListItem {
		t.Helper()
		items, ok := got.([]assessment.TeacherListItem)
		if !ok {
			t.Fatalf("got %T, want []assessment.TeacherListItem", got)
		}
		return items
	}

	t.Run("student pending before submission", func(t *testing.T) {
		got, err := f.svc.ListPending(ctx, f.alice.Principal())
		if err != nil {
			t.Fatalf("ListPending() failed: %v", err)
		}
		items := studentItems(t, got)
		if len(items) != 1 || items[0].ID != id {
			t.Fatalf("pending = %+v, want the one assessment", items)
		}
		if items[0].Progress == nil || *items[0].Progress != 0 {
			t.Errorf("Progress = %v, want 0", items[0].Progress)
		}

		got, err = f.svc.ListCompleted(ctx, f.alice.Principal())
		if err != nil {
			t.Fatalf("ListCompleted() failed: %v", err)
		}
		if items := studentItems(t, got); len(items) != 0 {
			t.Errorf("completed = %+v, want none", items)
		}
	})

	t.Run("non-members see nothing", func(t *testing.T) {
		got, err := f.svc.ListPending(ctx, f.zoe.Principal())
		if err != nil {
			t.Fatalf("ListPending() failed: %v", err)
		}
		if items := studentItems(t, got); len(items) != 0 {
			t.Errorf("pending = %+v, want none", items)
		}
	})

	t.Run("teacher pending while submissions are missing", func(t *testing.T) {
		if _, err := f.svc.Submit(ctx, f.alice.Principal(), id, f.submission(t, id, "nice work")); err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}

		got, err := f.svc.ListPending(ctx, f.teacher.Principal())
		if err != nil {
			t.Fatalf("ListPending() failed: %v", err)
		}
		items := teacherItems(t, got)
		if len(items) != 1 {
			t.Fatalf("pending = %+v, want one item", items)
		}
		if items[0].ResponsesCount != 1 || items[0].StudentsCount != 3 {
			t.Errorf("counts = %d/%d, want 1/3", items[0].ResponsesCount, items[0].StudentsCount)
		}
		if items[0].Progress == nil || *items[0].Progress != 33 {
			t.Errorf("Progress = %v, want 33", items[0].Progress)
		}
	})

	t.Run("student completed after submission", func(t *testing.T) {
		got, err := f.svc.ListPending(ctx, f.alice.Principal())
		if err != nil {
			t.Fatalf("ListPending() failed: %v", err)
		}
		if items := studentItems(t, got); len(items) != 0 {
			t.Errorf("pending = %+v, want none", items)
		}

		got, err = f.svc.ListCompleted(ctx, f.alice.Principal())
		if err != nil {
			t.Fatalf("ListCompleted() failed: %v", err)
		}
		items := studentItems(t, got)
		if len(items) != 1 || items[0].ID != id {
			t.Fatalf("completed = %+v, want the one assessment", items)
		}
		if items[0].CompletedDate == nil {
			t.Error("CompletedDate is nil")
		}
	})

	t.Run("teacher completed once everyone submitted", func(t *testing.T) {
		for _, prin := range []user.Principal{f.bob.Principal(), f.eve.Principal()} {
			if _, err := f.svc.Submit(ctx, prin, id, f.submission(t, id, "")); err != nil {
				t.Fatalf("Submit() failed: %v", err)
			}
		}

		got, err := f.svc.ListPending(ctx, f.teacher.Principal())
		if err != nil {
			t.Fatalf("ListPending() failed: %v", err)
		}
		if items := teacherItems(t, got); len(items) != 0 {
			t.Errorf("pending = %+v, want none", items)
		}

		got, err = f.svc.ListCompleted(ctx, f.teacher.Principal())
		if err != nil {
			t.Fatalf("ListCompleted() failed: %v", err)
		}
		items := teacherItems(t, got)
		if len(items) != 1 {
			t.Fatalf("completed = %+v, want one item", items)
		}
		if items[0].CompletionRate != "100%" {
			t.Errorf("CompletionRate = %s, want 100%%", items[0].CompletionRate)
		}
		if items[0].CompletedDate == nil {
			t.Error("CompletedDate is nil")
		}
	})
}

func TestService_Results(t *testing.T) {
	f := newFixture(t)
	id := f.createAssessment(t)

	if _, err := f.svc.Submit(ctx, f.alice.Principal(), id, f.submission(t, id, "Great team")); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	t.Run("students may not view results", func(t *testing.T) {
		if _, err := f.svc.Results(ctx, f.alice.Principal(), id); err != assessment.ErrForbidden {
			t.Errorf("Results() error = %v, want %v", err, assessment.ErrForbidden)
		}
	})

	t.Run("teacher of another course", func(t *testing.T) {
		if _, err := f.svc.Results(ctx, f.outsider.Principal(), id); err != assessment.ErrForbidden {
			t.Errorf("Results() error = %v, want %v", err, assessment.ErrForbidden)
		}
	})

	t.Run("admins bypass course membership", func(t *testing.T) {
		if _, err := f.svc.Results(ctx, f.admin.Principal(), id); err != nil {
			t.Errorf("Results() failed: %v", err)
		}
	})

	t.Run("aggregates per student", func(t *testing.T) {
		view, err := f.svc.Results(ctx, f.teacher.Principal(), id)
		if err != nil {
			t.Fatalf("Results() failed: %v", err)
		}
		if len(view.Results) != 3 {
			t.Fatalf("len(Results) = %d, want the full roster", len(view.Results))
		}
		if view.MaxScore != 10 {
			t.Errorf("MaxScore = %v, want 10", view.MaxScore)
		}

		byID := make(map[string]assessment.StudentResult, len(view.Results))
		for _, res := range view.Results {
			byID[res.Student.ID] = res
		}

		bob := byID[f.bob.ID]
		if got := bob.CriteriaScores[0]; got.ScoreDisplay != "8.0/10" || got.ScoreColor != assessment.BandExcellent || got.NumberOfRatings != 1 {
			t.Errorf("bob criterion score = %+v", got)
		}
		if bob.OverallAverageDisplay != "7.5/10.0" || bob.OverallScoreColor != assessment.BandGood {
			t.Errorf("bob overall = %s (%s)", bob.OverallAverageDisplay, bob.OverallScoreColor)
		}
		if len(bob.FeedbackReceived) != 1 || bob.FeedbackReceived[0].Feedback != "Great team" {
			t.Errorf("bob feedback received = %+v", bob.FeedbackReceived)
		}

		eve := byID[f.eve.ID]
		if eve.OverallAverageDisplay != "5.5/10.0" || eve.OverallScoreColor != assessment.BandBelowAverage {
			t.Errorf("eve overall = %s (%s)", eve.OverallAverageDisplay, eve.OverallScoreColor)
		}

		// nobody scored alice: N/A, never a zero
		alice := byID[f.alice.ID]
		if alice.OverallAverageDisplay != "N/A" || alice.OverallScoreColor != assessment.BandNeutral {
			t.Errorf("alice overall = %s (%s)", alice.OverallAverageDisplay, alice.OverallScoreColor)
		}
		if alice.FeedbackGiven == nil {
			t.Fatal("alice FeedbackGiven is nil")
		}
		for _, name := range []string{f.bob.FullName(), f.eve.FullName()} {
			if !strings.Contains(alice.FeedbackGiven.EvaluatedStudents, name) {
				t.Errorf("EvaluatedStudents = %q, missing %q", alice.FeedbackGiven.EvaluatedStudents, name)
			}
		}
	})
}

func TestService_Feedback(t *testing.T) {
	f := newFixture(t)
	id := f.createAssessment(t)

	if _, err := f.svc.Submit(ctx, f.alice.Principal(), id, f.submission(t, id, "Great team")); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	// empty feedback is dropped from the view
	if _, err := f.svc.Submit(ctx, f.bob.Principal(), id, f.submission(t, id, "")); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	t.Run("students may not view feedback", func(t *testing.T) {
		if _, err := f.svc.Feedback(ctx, f.alice.Principal(), id); err != assessment.ErrForbidden {
			t.Errorf("Feedback() error = %v, want %v", err, assessment.ErrForbidden)
		}
	})

	t.Run("only non-empty feedback is listed", func(t *testing.T) {
		view, err := f.svc.Feedback(ctx, f.teacher.Principal(), id)
		if err != nil {
			t.Fatalf("Feedback() failed: %v", err)
		}
		if view.Assessment.ID != id {
			t.Errorf("Assessment.ID = %s, want %s", view.Assessment.ID, id)
		}
		if len(view.Feedback) != 1 {
			t.Fatalf("len(Feedback) = %d, want 1", len(view.Feedback))
		}
		item := view.Feedback[0]
		if item.Student.ID != f.alice.ID || item.Feedback != "Great team" {
			t.Errorf("unexpected feedback item: %+v", item)
		}
	})
}
