package sqlxrepos

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/course"
)

type courseRepository struct {
	db core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db core.DBExecutor) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course, teacherID string, exec ...core.DBExecutor) (course.Course, error) {
	ex := executor(repo.db, exec)

	_, err := ex.ExecContext(ctx,
		`INSERT INTO course (id, name, code, description, created_at) VALUES ($1, $2, $3, $4, $5)`,
		crs.ID, crs.Name, crs.Code, crs.Description, crs.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return course.Course{}, course.ErrCodeExists
		}
		return course.Course{}, errors.Wrap(err, "creating course")
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO course_teacher (course_id, teacher_id) VALUES ($1, $2)`,
		crs.ID, teacherID,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "linking course teacher")
	}
	return crs, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	ex := executor(repo.db, exec)

	var courses []course.Course
	err := selectCtx(ctx, ex, &courses,
		`SELECT id, name, code, description, created_at FROM course WHERE id = $1`, id)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	if len(courses) == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return courses[0], nil
}

func (repo *courseRepository) QueryCoursesForTeacher(ctx context.Context, teacherID string, exec ...core.DBExecutor) ([]course.Course, error) {
	ex := executor(repo.db, exec)

	var courses []course.Course
	err := selectCtx(ctx, ex, &courses,
		`SELECT c.id, c.name, c.code, c.description, c.created_at
		 FROM course c
		 JOIN course_teacher ct ON ct.course_id = c.id
		 WHERE ct.teacher_id = $1
		 ORDER BY c.code`, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "querying teacher courses")
	}
	return courses, nil
}

func (repo *courseRepository) EnrollStudents(ctx context.Context, courseID string, studentIDs []string, exec ...core.DBExecutor) error {
	ex := executor(repo.db, exec)

	// re-enrolling is a no-op
	_, err := ex.ExecContext(ctx,
		`INSERT INTO course_student (course_id, student_id)
		 SELECT $1, unnest($2::uuid[])
		 ON CONFLICT DO NOTHING`,
		courseID, pq.Array(studentIDs),
	)
	return errors.Wrap(err, "enrolling students")
}

func (repo *courseRepository) CreateGroup(ctx context.Context, grp course.Group, studentIDs []string, exec ...core.DBExecutor) (course.Group, error) {
	ex := executor(repo.db, exec)

	_, err := ex.ExecContext(ctx,
		`INSERT INTO "group" (id, course_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		grp.ID, grp.CourseID, grp.Name, grp.CreatedAt,
	)
	if err != nil {
		return course.Group{}, errors.Wrap(err, "creating group")
	}

	if len(studentIDs) > 0 {
		_, err = ex.ExecContext(ctx,
			`INSERT INTO group_student (group_id, student_id) SELECT $1, unnest($2::uuid[])`,
			grp.ID, pq.Array(studentIDs),
		)
		if err != nil {
			return course.Group{}, errors.Wrap(err, "linking group students")
		}
	}
	return grp, nil
}

func (repo *courseRepository) QueryCourseGroups(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.GroupDetail, error) {
	ex := executor(repo.db, exec)

	var groups []course.Group
	err := selectCtx(ctx, ex, &groups,
		`SELECT id, course_id, name, created_at FROM "group" WHERE course_id = $1 ORDER BY name`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course groups")
	}
	if len(groups) == 0 {
		return []course.GroupDetail{}, nil
	}

	groupIDs := make([]string, 0, len(groups))
	for _, grp := range groups {
		groupIDs = append(groupIDs, grp.ID)
	}

	type memberRow struct {
		GroupID string `db:"group_id"`
		course.Member
	}
	var members []memberRow
	err = selectCtx(ctx, ex, &members,
		`SELECT gs.group_id, u.id, u.first_name, u.last_name, u.q_number, u.email
		 FROM group_student gs
		 JOIN "user" u ON u.id = gs.student_id
		 WHERE gs.group_id = ANY($1::uuid[])
		 ORDER BY u.last_name, u.first_name`, pq.Array(groupIDs))
	if err != nil {
		return nil, errors.Wrap(err, "querying group members")
	}

	byGroup := make(map[string][]course.Member, len(groups))
	for _, m := range members {
		byGroup[m.GroupID] = append(byGroup[m.GroupID], m.Member)
	}

	details := make([]course.GroupDetail, 0, len(groups))
	for _, grp := range groups {
		students := byGroup[grp.ID]
		if students == nil {
			students = []course.Member{}
		}
		details = append(details, course.GroupDetail{Group: grp, Students: students})
	}
	return details, nil
}

func (repo *courseRepository) IsGroupMember(ctx context.Context, groupID, userID string, exec ...core.DBExecutor) (bool, error) {
	return repo.exists(ctx, exec,
		`SELECT EXISTS (SELECT 1 FROM group_student WHERE group_id = $1 AND student_id = $2)`,
		groupID, userID)
}

func (repo *courseRepository) IsCourseTeacher(ctx context.Context, courseID, teacherID string, exec ...core.DBExecutor) (bool, error) {
	return repo.exists(ctx, exec,
		`SELECT EXISTS (SELECT 1 FROM course_teacher WHERE course_id = $1 AND teacher_id = $2)`,
		courseID, teacherID)
}

func (repo *courseRepository) IsCourseStudent(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (bool, error) {
	return repo.exists(ctx, exec,
		`SELECT EXISTS (SELECT 1 FROM course_student WHERE course_id = $1 AND student_id = $2)`,
		courseID, studentID)
}

func (repo *courseRepository) exists(ctx context.Context, exec []core.DBExecutor, query string, args ...interface{}) (bool, error) {
	ex := executor(repo.db, exec)

	var exists bool
	if err := ex.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "checking membership")
	}
	return exists, nil
}
