// Package dummydb provides in-memory repositories for tests. All tables
// share one lock; transactions are no-ops since every repository method is
// already atomic here.
package dummydb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/assessment"
	"github.com/tathmini/backend/core/course"
	"github.com/tathmini/backend/core/user"
)

type DB struct {
	noopExecutor
	mu sync.RWMutex

	users map[string]*user.User

	courses        map[string]*course.Course
	courseTeachers map[string]map[string]bool // courseID -> teacher ids
	courseStudents map[string]map[string]bool // courseID -> student ids
	groups         map[string]*course.Group
	groupStudents  map[string][]string // groupID -> student ids, insertion order

	assessments map[string]*assessment.Assessment
	criteria    map[string][]assessment.Criterion // assessmentID -> criteria
	responses   map[string]*assessment.Response
	results     map[string][]assessment.Result // responseID -> results
}

var _ core.DB = (*DB)(nil)

func Open() (*DB, error) {
	return &DB{
		users:          make(map[string]*user.User),
		courses:        make(map[string]*course.Course),
		courseTeachers: make(map[string]map[string]bool),
		courseStudents: make(map[string]map[string]bool),
		groups:         make(map[string]*course.Group),
		groupStudents:  make(map[string][]string),
		assessments:    make(map[string]*assessment.Assessment),
		criteria:       make(map[string][]assessment.Criterion),
		responses:      make(map[string]*assessment.Response),
		results:        make(map[string][]assessment.Result),
	}, nil
}

func (db *DB) Begin() (core.DBTransactor, error) { return noopTx{}, nil }
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	return noopTx{}, nil
}

type noopExecutor struct{}

func (noopExecutor) Exec(query string, args ...interface{}) (sql.Result, error) { return nil, nil }
func (noopExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (noopExecutor) Query(query string, args ...interface{}) (*sql.Rows, error) { return nil, nil }
func (noopExecutor) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (noopExecutor) QueryRow(query string, args ...interface{}) *sql.Row { return nil }
func (noopExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

type noopTx struct{ noopExecutor }

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }
