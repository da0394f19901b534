package course

import (
	"time"

	"github.com/tathmini/backend/core"
)

type Course struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Code        string    `json:"code" db:"code"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
}

type Group struct {
	ID        string    `json:"id" db:"id"`
	CourseID  string    `json:"course_id" db:"course_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// Member is a group/course roster entry.
type Member struct {
	ID        string `json:"id" db:"id"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	QNumber   string `json:"q_number" db:"q_number"`
	Email     string `json:"-" db:"email"`
}

// GroupDetail is a Group with its roster.
type GroupDetail struct {
	Group
	Students []Member `json:"students"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Name        string `json:"name" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Description string `json:"description"`
}

func (nc *NewCourse) Validate() error {
	nc.Name = core.CleanString(nc.Name)
	nc.Code = core.CleanString(nc.Code, true /* lower */)
	nc.Description = core.CleanString(nc.Description)
	return core.Validate.Struct(nc)
}

// NewGroup contains information needed to create a new Group.
type NewGroup struct {
	CourseID   string   `json:"course_id" validate:"required"`
	Name       string   `json:"name" validate:"required"`
	StudentIDs []string `json:"student_ids" validate:"omitempty,dive,required"`
}

func (ng *NewGroup) Validate() error {
	ng.CourseID = core.CleanString(ng.CourseID)
	ng.Name = core.CleanString(ng.Name)
	return core.Validate.Struct(ng)
}

// Enrollment adds students to a course.
type Enrollment struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required"`
}

func (e *Enrollment) Validate() error { return core.Validate.Struct(e) }
