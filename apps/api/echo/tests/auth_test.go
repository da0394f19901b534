package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tathmini/backend/core/user"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	usr := createStudent(t, "Alice", "Abura", "alice@test.cd", "q1", "s3cr3t")
	createUser(t, "Ina", "Ctive", "ina@test.cd", "", user.RoleTeacher, "s3cr3t", false)

	login := func(email, pwd string) []byte {
		return marchallObj(t, map[string]string{"email": email, "password": pwd})
	}
	errInvalidCreds := marchallObj(t, httpErr{Error: "invalid credentials"})

	tests := []httpTest{
		{name: "email is required", body: login("", "s3cr3t"), wantCode: http.StatusBadRequest},
		{name: "password is required", body: login(usr.Email, ""), wantCode: http.StatusBadRequest},
		{name: "unknown user", body: login("ghost@test.cd", "s3cr3t"), wantCode: http.StatusBadRequest, wantData: errInvalidCreds},
		{name: "wrong password", body: login(usr.Email, "nope"), wantCode: http.StatusBadRequest, wantData: errInvalidCreds},
		{name: "inactive user", body: login("ina@test.cd", "s3cr3t"), wantCode: http.StatusBadRequest, wantData: errInvalidCreds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/auth/login", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("valid credentials", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/auth/login", login(usr.Email, "s3cr3t"))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var resp struct {
			Token string    `json:"token"`
			User  user.User `json:"user"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if resp.Token == "" {
			t.Error("token is empty")
		}
		if resp.User.Email != usr.Email {
			t.Errorf("user.Email = %s, want %s", resp.User.Email, usr.Email)
		}
		if resp.User.LastLogin.IsZero() {
			t.Error("LastLogin was not set")
		}
	})
}

func Test_userApi_azureLogin(t *testing.T) {
	app := setup(t)

	existing := createStudent(t, "Alice", "Abura", "alice@uni.test", "q1", "")
	inactive := createUser(t, "Ina", "Ctive", "ina@uni.test", "", user.RoleTeacher, "", false)

	verifier.Register("student-token", user.Identity{Email: existing.Email, FirstName: "Alice", LastName: "Abura"})
	verifier.Register("inactive-token", user.Identity{Email: inactive.Email, FirstName: "Ina", LastName: "Ctive"})
	verifier.Register("new-teacher-token", user.Identity{Email: "new.teacher@uni.test", FirstName: "New", LastName: "Teacher"})

	payload := func(token string) []byte {
		return marchallObj(t, map[string]string{"token": token})
	}

	tests := []httpTest{
		{name: "token is required", body: payload(""), wantCode: http.StatusBadRequest},
		{
			name: "unverifiable token", body: payload("forged"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "invalid identity token"}),
		},
		{name: "inactive user", body: payload("inactive-token"), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/auth/azure", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	signIn := func(t *testing.T, token string) (string, user.User) {
		req, rec := newRequest(http.MethodPost, "/api/auth/azure", payload(token))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var resp struct {
			Token string    `json:"token"`
			User  user.User `json:"user"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		return resp.Token, resp.User
	}

	t.Run("existing user signs in", func(t *testing.T) {
		token, usr := signIn(t, "student-token")
		if token == "" {
			t.Error("token is empty")
		}
		if usr.ID != existing.ID || usr.Role != user.RoleStudent {
			t.Errorf("resolved user = %+v, want the pre-created student", usr)
		}
	})

	t.Run("unknown teacher is provisioned on first sign-in", func(t *testing.T) {
		_, usr := signIn(t, "new-teacher-token")
		if usr.Email != "new.teacher@uni.test" || usr.Role != user.RoleTeacher {
			t.Errorf("provisioned user = %+v, want a new teacher", usr)
		}
		if _, err := usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID}); err != nil {
			t.Errorf("provisioned user was not persisted: %v", err)
		}
	})
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)
	usr := createStudent(t, "Alice", "Abura", "alice@test.cd", "q1", "s3cr3t")

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "own profile", token: getToken(t, usr), wantCode: http.StatusOK, wantData: marchallObj(t, usr)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/api/auth/me", tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_admin(t *testing.T) {
	app := setup(t)

	student := createStudent(t, "Alice", "Abura", "alice@test.cd", "q1", "")
	admin := createUser(t, "Ada", "Admin", "ada@test.cd", "", user.RoleAdmin, "", true)
	adminToken := getToken(t, admin)

	newUser := marchallObj(t, map[string]string{
		"email":            "bob@test.cd",
		"first_name":       "Bob",
		"last_name":        "Baraka",
		"q_number":         "q2",
		"role":             user.RoleStudent,
		"password":         "s3cr3t!pwd",
		"password_confirm": "s3cr3t!pwd",
	})

	t.Run("admin required", func(t *testing.T) {
		for _, tt := range []httpTest{
			{name: "anonymous", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{name: "student", token: getToken(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		} {
			t.Run(tt.name, func(t *testing.T) {
				req, rec := newAuthRequest(http.MethodGet, "/api/users", tt.token)
				app.ServeHTTP(rec, req)
				checkCodeAndData(t, tt, rec)
			})
		}
	})

	t.Run("create user", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/users", adminToken, newUser)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}

		var created user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if created.Email != "bob@test.cd" || !created.IsActive {
			t.Errorf("created = %+v", created)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/users", adminToken, newUser)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("query users", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/users", adminToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v, want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var users []user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(users) != 3 {
			t.Errorf("len(users) = %d, want 3", len(users))
		}
	})
}
