package dummydb

import (
	"context"
	"sort"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course, teacherID string, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.courses {
		if existing.Code == crs.Code {
			return course.Course{}, course.ErrCodeExists
		}
	}
	repo.db.courses[crs.ID] = &crs
	repo.db.courseTeachers[crs.ID] = map[string]bool{teacherID: true}
	repo.db.courseStudents[crs.ID] = make(map[string]bool)
	return crs, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCoursesForTeacher(ctx context.Context, teacherID string, exec ...core.DBExecutor) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var courses []course.Course
	for id, crs := range repo.db.courses {
		if repo.db.courseTeachers[id][teacherID] {
			courses = append(courses, *crs)
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Code < courses[j].Code })
	return courses, nil
}

func (repo *courseRepository) EnrollStudents(ctx context.Context, courseID string, studentIDs []string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	students, ok := repo.db.courseStudents[courseID]
	if !ok {
		return course.ErrNotFound
	}
	for _, sid := range studentIDs {
		students[sid] = true
	}
	return nil
}

func (repo *courseRepository) CreateGroup(ctx context.Context, grp course.Group, studentIDs []string, exec ...core.DBExecutor) (course.Group, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.groups[grp.ID] = &grp
	repo.db.groupStudents[grp.ID] = append([]string(nil), studentIDs...)
	return grp, nil
}

func (repo *courseRepository) QueryCourseGroups(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.GroupDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var details []course.GroupDetail
	for _, grp := range repo.db.groups {
		if grp.CourseID != courseID {
			continue
		}
		detail := course.GroupDetail{Group: *grp, Students: []course.Member{}}
		for _, sid := range repo.db.groupStudents[grp.ID] {
			if usr, ok := repo.db.users[sid]; ok {
				detail.Students = append(detail.Students, course.Member{
					ID:        usr.ID,
					FirstName: usr.FirstName,
					LastName:  usr.LastName,
					QNumber:   usr.QNumber,
					Email:     usr.Email,
				})
			}
		}
		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Name < details[j].Name })
	return details, nil
}

func (repo *courseRepository) IsGroupMember(ctx context.Context, groupID, userID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sid := range repo.db.groupStudents[groupID] {
		if sid == userID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *courseRepository) IsCourseTeacher(ctx context.Context, courseID, teacherID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.courseTeachers[courseID][teacherID], nil
}

func (repo *courseRepository) IsCourseStudent(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.courseStudents[courseID][studentID], nil
}
