package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tathmini/backend/core/course"
	"github.com/tathmini/backend/core/user"
)

func Test_courseApi(t *testing.T) {
	app := setup(t)

	teacher := createUser(t, "Tess", "Mwalimu", "tess@test.cd", "", user.RoleTeacher, "", true)
	outsider := createUser(t, "Omar", "Okoth", "omar@test.cd", "", user.RoleTeacher, "", true)
	student := createStudent(t, "Alice", "Abura", "alice@test.cd", "q1", "")
	bob := createStudent(t, "Bob", "Baraka", "bob@test.cd", "q2", "")

	teacherToken := getToken(t, teacher)
	outsiderToken := getToken(t, outsider)

	t.Run("teacher or admin required", func(t *testing.T) {
		for _, tt := range []httpTest{
			{name: "anonymous", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{name: "student", token: getToken(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		} {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodGet, "/api/courses", tt.token)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}
	})

	var crs course.Course

	t.Run("create course", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"name": "Software Engineering", "code": "SE101"})
		req, rec := newAuthRequest(http.MethodPost, "/api/courses", teacherToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &crs); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if crs.ID == "" || crs.Code != "se101" {
			t.Errorf("created = %+v", crs)
		}
	})

	t.Run("duplicate code", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"name": "Another", "code": "SE101"})
		req, rec := newAuthRequest(http.MethodPost, "/api/courses", teacherToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("own courses only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/courses", outsiderToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var courses []course.Course
		if err := json.Unmarshal(rec.Body.Bytes(), &courses); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(courses) != 0 {
			t.Errorf("courses = %+v, want none", courses)
		}
	})

	enrollment := marchallObj(t, map[string][]string{"student_ids": {student.ID, bob.ID}})

	t.Run("enrollment is gated per course", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/courses/"+crs.ID+"/students", outsiderToken, enrollment)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("enroll students", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/courses/"+crs.ID+"/students", teacherToken, enrollment)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("group members must be enrolled", func(t *testing.T) {
		zoe := createStudent(t, "Zoe", "Zuri", "zoe@test.cd", "q4", "")
		body := marchallObj(t, map[string]interface{}{
			"course_id": crs.ID, "name": "Group A", "student_ids": []string{zoe.ID},
		})
		req, rec := newAuthRequest(http.MethodPost, "/api/groups", teacherToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("create group and list it", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"course_id": crs.ID, "name": "Group A", "student_ids": []string{student.ID, bob.ID},
		})
		req, rec := newAuthRequest(http.MethodPost, "/api/groups", teacherToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, "/api/courses/"+crs.ID+"/groups", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var groups []course.GroupDetail
		if err := json.Unmarshal(rec.Body.Bytes(), &groups); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(groups) != 1 || groups[0].Name != "Group A" || len(groups[0].Students) != 2 {
			t.Errorf("groups = %+v", groups)
		}
	})
}
