package course

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tathmini/backend/core"
)

var (
	// errors
	ErrNotFound   = errors.New("course not found")
	ErrCodeExists = errors.New("a course with this code already exists")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course, teacherID string, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		QueryCoursesForTeacher(ctx context.Context, teacherID string, exec ...core.DBExecutor) ([]Course, error)
		EnrollStudents(ctx context.Context, courseID string, studentIDs []string, exec ...core.DBExecutor) error

		CreateGroup(ctx context.Context, grp Group, studentIDs []string, exec ...core.DBExecutor) (Group, error)
		QueryCourseGroups(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]GroupDetail, error)

		IsGroupMember(ctx context.Context, groupID, userID string, exec ...core.DBExecutor) (bool, error)
		IsCourseTeacher(ctx context.Context, courseID, teacherID string, exec ...core.DBExecutor) (bool, error)
		IsCourseStudent(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (bool, error)
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

// Create inserts the course and its owning teacher link in one transaction.
func (svc *Service) Create(ctx context.Context, teacherID string, nc NewCourse) (Course, error) {
	crs := Course{
		ID:          uuid.New().String(),
		Name:        nc.Name,
		Code:        nc.Code,
		Description: nc.Description,
		CreatedAt:   time.Now().UTC(),
	}
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		var err error
		crs, err = svc.repo.CreateCourse(ctx, crs, teacherID, tx)
		return err
	})
	if err != nil {
		if err == ErrCodeExists {
			return Course{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return Course{}, err
	}
	return crs, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) QueryForTeacher(ctx context.Context, teacherID string) ([]Course, error) {
	return svc.repo.QueryCoursesForTeacher(ctx, teacherID)
}

func (svc *Service) Enroll(ctx context.Context, courseID string, e Enrollment) error {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return err
	}
	return core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		return svc.repo.EnrollStudents(ctx, courseID, e.StudentIDs, tx)
	})
}

// CreateGroup inserts the group and its member links in one transaction.
// Every member must already be enrolled in the group's course.
func (svc *Service) CreateGroup(ctx context.Context, ng NewGroup) (Group, error) {
	if _, err := svc.repo.GetCourse(ctx, ng.CourseID); err != nil {
		return Group{}, err
	}
	for _, sid := range ng.StudentIDs {
		enrolled, err := svc.repo.IsCourseStudent(ctx, ng.CourseID, sid)
		if err != nil {
			return Group{}, err
		}
		if !enrolled {
			return Group{}, core.NewValidationError(nil,
				core.FieldError{Field: "student_ids", Error: "student " + sid + " is not enrolled in this course"})
		}
	}

	grp := Group{
		ID:        uuid.New().String(),
		CourseID:  ng.CourseID,
		Name:      ng.Name,
		CreatedAt: time.Now().UTC(),
	}
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		var err error
		grp, err = svc.repo.CreateGroup(ctx, grp, ng.StudentIDs, tx)
		return err
	})
	if err != nil {
		return Group{}, err
	}
	return grp, nil
}

func (svc *Service) QueryGroups(ctx context.Context, courseID string) ([]GroupDetail, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryCourseGroups(ctx, courseID)
}

// Membership checks backing every authorization decision.
// Admin bypass is the caller's concern; these answer raw membership only.

func (svc *Service) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	return svc.repo.IsGroupMember(ctx, groupID, userID)
}

func (svc *Service) IsCourseTeacher(ctx context.Context, courseID, teacherID string) (bool, error) {
	return svc.repo.IsCourseTeacher(ctx, courseID, teacherID)
}

func (svc *Service) IsCourseStudent(ctx context.Context, courseID, studentID string) (bool, error) {
	return svc.repo.IsCourseStudent(ctx, courseID, studentID)
}
