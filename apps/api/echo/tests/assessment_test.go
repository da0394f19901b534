package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/tathmini/backend/core/assessment"
	"github.com/tathmini/backend/core/user"
	testutil "github.com/tathmini/backend/tests"
)

func Test_assessmentApi(t *testing.T) {
	app := setup(t)

	teacher := createUser(t, "Tess", "Mwalimu", "tess@test.cd", "", user.RoleTeacher, "", true)
	outsider := createUser(t, "Omar", "Okoth", "omar@test.cd", "", user.RoleTeacher, "", true)
	alice := createStudent(t, "Alice", "Abura", "alice@test.cd", "q1", "")
	bob := createStudent(t, "Bob", "Baraka", "bob@test.cd", "q2", "")
	zoe := createStudent(t, "Zoe", "Zuri", "zoe@test.cd", "q4", "")

	crs := testutil.CreateCourse(t, crsRepo, teacher.ID, "Software Engineering", "se101")
	if err := crsRepo.EnrollStudents(ctx, crs.ID, []string{alice.ID, bob.ID, zoe.ID}); err != nil {
		t.Fatalf("EnrollStudents() failed: %v", err)
	}
	grp := testutil.CreateGroup(t, crsRepo, crs.ID, "Group A", alice.ID, bob.ID)

	teacherToken := getToken(t, teacher)
	outsiderToken := getToken(t, outsider)
	aliceToken := getToken(t, alice)
	zoeToken := getToken(t, zoe)

	newAssessment := marchallObj(t, map[string]interface{}{
		"title":     "Sprint 1 peer review",
		"course_id": crs.ID,
		"group_ids": []string{grp.ID},
		"due_date":  time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"criteria": []map[string]interface{}{
			{"name": "Collaboration", "min_score": 0, "max_score": 10},
			{"name": "Communication", "min_score": 0, "max_score": 10},
		},
	})

	t.Run("students may not create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/assessments", aliceToken, newAssessment)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	var id string

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/assessments", teacherToken, newAssessment)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}

		var resp struct {
			IDs []string `json:"ids"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(resp.IDs) != 1 {
			t.Fatalf("ids = %v, want one per group", resp.IDs)
		}
		id = resp.IDs[0]
	})

	var detail assessment.StudentDetail

	t.Run("student detail hides the roster status", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/assessments/"+id, aliceToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(detail.StudentsToEvaluate) != 1 || detail.StudentsToEvaluate[0].ID != bob.ID {
			t.Errorf("StudentsToEvaluate = %+v, want bob only", detail.StudentsToEvaluate)
		}
		if detail.Submitted {
			t.Error("Submitted = true before any submission")
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		for _, key := range []string{"students", "responses_count", "progress"} {
			if _, ok := raw[key]; ok {
				t.Errorf("student payload leaks %q", key)
			}
		}
	})

	t.Run("teacher detail carries progress", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/assessments/"+id, teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var td assessment.TeacherDetail
		if err := json.Unmarshal(rec.Body.Bytes(), &td); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if td.StudentsCount != 2 || td.ResponsesCount != 0 {
			t.Errorf("counts = %d/%d, want 0/2", td.ResponsesCount, td.StudentsCount)
		}
	})

	t.Run("access errors", func(t *testing.T) {
		for _, tt := range []httpTest{
			{
				name: "unknown id", path: "/api/assessments/nope", token: teacherToken,
				wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
			},
			{
				name: "teacher of another course", path: "/api/assessments/" + id, token: outsiderToken,
				wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
			},
			{
				name: "student outside the group", path: "/api/assessments/" + id, token: zoeToken,
				wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
			},
		} {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}
	})

	submission := func(score1, score2 float64) []byte {
		return marchallObj(t, map[string]interface{}{
			"feedback": "Great team",
			"scores": []map[string]interface{}{
				{"criteria_id": detail.Criteria[0].ID, "student_id": bob.ID, "score": score1},
				{"criteria_id": detail.Criteria[1].ID, "student_id": bob.ID, "score": score2},
			},
		})
	}

	t.Run("non-members get not-found on submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/assessments/"+id+"/submit", zoeToken, submission(8, 7))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}, rec)
	})

	t.Run("out-of-range score", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/assessments/"+id+"/submit", aliceToken, submission(8, 11))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("submit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/assessments/"+id+"/submit", aliceToken, submission(8, 7))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var receipt assessment.SubmissionReceipt
		if err := json.Unmarshal(rec.Body.Bytes(), &receipt); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if receipt.ResponseID == "" {
			t.Error("response_id is empty")
		}
		if len(receipt.AverageScores) != 1 || receipt.AverageScores[0].Average != 7.5 {
			t.Errorf("average_scores = %+v, want bob at 7.5", receipt.AverageScores)
		}
	})

	t.Run("pending and completed lists", func(t *testing.T) {
		get := func(t *testing.T, path, token string) []json.RawMessage {
			req, rec := newAuthRequest(http.MethodGet, path, token)
			app.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
			}
			var items []json.RawMessage
			if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
				t.Fatalf("unmarshalling response: %v", err)
			}
			return items
		}

		if items := get(t, "/api/assessments/pending", aliceToken); len(items) != 0 {
			t.Errorf("alice pending = %d items, want 0", len(items))
		}
		if items := get(t, "/api/assessments/completed", aliceToken); len(items) != 1 {
			t.Errorf("alice completed = %d items, want 1", len(items))
		}
		if items := get(t, "/api/assessments/pending", getToken(t, bob)); len(items) != 1 {
			t.Errorf("bob pending = %d items, want 1", len(items))
		}
		if items := get(t, "/api/assessments/pending", teacherToken); len(items) != 1 {
			t.Errorf("teacher pending = %d items, want 1", len(items))
		}
	})

	t.Run("results are teacher-only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/assessments/"+id+"/results", aliceToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)

		req, rec = newAuthRequest(http.MethodGet, "/api/assessments/"+id+"/results", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		// Average marshals to a display string, so decode loosely
		var view struct {
			Results []struct {
				Student               assessment.StudentRef `json:"student"`
				OverallAverageDisplay string                `json:"overall_average_display"`
			} `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(view.Results) != 2 {
			t.Fatalf("len(results) = %d, want the full roster", len(view.Results))
		}
		for _, res := range view.Results {
			switch res.Student.ID {
			case bob.ID:
				if res.OverallAverageDisplay != "7.5/10.0" {
					t.Errorf("bob overall = %s, want 7.5/10.0", res.OverallAverageDisplay)
				}
			case alice.ID:
				if res.OverallAverageDisplay != "N/A" {
					t.Errorf("alice overall = %s, want N/A", res.OverallAverageDisplay)
				}
			}
		}
	})

	t.Run("feedback", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/assessments/"+id+"/feedback", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var view assessment.FeedbackView
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(view.Feedback) != 1 || view.Feedback[0].Feedback != "Great team" {
			t.Errorf("feedback = %+v", view.Feedback)
		}
	})
}
