package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/course"
	"github.com/tathmini/backend/core/user"
	dummydb "github.com/tathmini/backend/storage/database/dummy"
)

// NewConfig returns a self-contained test configuration;
// nothing is read from the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Debug:            false,
		TestMode:         true,
		AppName:          "Tathmini",
		Build:            "test",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Tathmini", Address: "noreply@localhost"},
		Server: core.ServerConfig{
			JWTExpirationDelta:        24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

// PrepareDB sets up a fresh in-memory DB.
func PrepareDB(t *testing.T) *dummydb.DB {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	firstName, lastName, email, qNumber, role, pwd string,
	isActive bool,
) user.User {
	now := time.Now().UTC()
	usr := user.User{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		QNumber:   qNumber,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, teacherID, name, code string) course.Course {
	crs := course.Course{
		ID:        uuid.New().String(),
		Name:      name,
		Code:      code,
		CreatedAt: time.Now().UTC(),
	}
	crs, err := repo.CreateCourse(context.Background(), crs, teacherID)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateGroup(t *testing.T, repo course.Repository, courseID, name string, studentIDs ...string) course.Group {
	grp := course.Group{
		ID:        uuid.New().String(),
		CourseID:  courseID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	grp, err := repo.CreateGroup(context.Background(), grp, studentIDs)
	if err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}
	return grp
}
