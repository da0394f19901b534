package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/tathmini/backend/apps/api/echo"
	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/assessment"
	"github.com/tathmini/backend/core/course"
	"github.com/tathmini/backend/core/user"
	emailsvc "github.com/tathmini/backend/services/email"
	identitysvc "github.com/tathmini/backend/services/identity"
	logsvc "github.com/tathmini/backend/services/logger"
	dummydb "github.com/tathmini/backend/storage/database/dummy"
	testutil "github.com/tathmini/backend/tests"
)

var (
	ctx = context.Background()

	conf     *core.Config
	usrRepo  user.Repository
	crsRepo  course.Repository
	verifier *identitysvc.StaticVerifier

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

func setup(t *testing.T) *echoapi.Server {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	conf = testutil.NewConfig()
	usrRepo = dummydb.NewUserRepository(db)
	crsRepo = dummydb.NewCourseRepository(db)

	// set up services
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	crsSvc := course.NewService(db, crsRepo)
	asmtSvc := assessment.NewService(db, dummydb.NewAssessmentRepository(db), crsSvc, mailSvc, conf)
	verifier = identitysvc.NewStaticVerifier()

	// set up server
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       usrSvc,
		CourseSvc:     crsSvc,
		AssessmentSvc: asmtSvc,
		Verifier:      verifier,
	})
}

func createUser(t *testing.T, firstName, lastName, email, qNumber, role, pwd string, isActive bool) user.User {
	return testutil.CreateUser(t, usrRepo, firstName, lastName, email, qNumber, role, pwd, isActive)
}

func createStudent(t *testing.T, firstName, lastName, email, qNumber, pwd string) user.User {
	return createUser(t, firstName, lastName, email, qNumber, user.RoleStudent, pwd, true)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(conf, echoapi.GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
