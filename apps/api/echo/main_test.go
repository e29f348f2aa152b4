package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	identitysvc "github.com/trezcool/shule/services/identity"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

const testSecret = "not-so-secret"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server    *Server
	db        *inmemdb.DB
	userSvc   *user.Service
	schoolSvc *school.Service
	logger    *recLogger
}

func newTestConfig() *core.Config {
	return &core.Config{
		Env:             "TEST",
		TestMode:        true,
		AppName:         "Shule",
		FrontendBaseURL: "http://shule.test",
		RootDomain:      "shule.test",
		Server: core.ServerConfig{
			DisableReqLogs:   true,
			RequestBodyLimit: "1M",
		},
		Identity: core.IdentityConfig{JWTSecret: testSecret},
	}
}

func setup(t *testing.T, opts ...func(*Deps)) testApp {
	t.Helper()

	conf := newTestConfig()
	logger := new(recLogger)
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)

	// set up DB & repos
	db := inmemdb.Open()
	schoolRepo := inmemdb.NewSchoolRepository(db)

	// set up services
	emailsvc.ResetSentMessages()
	usrSvc := user.NewService(inmemdb.NewUserRepository(db), core.Elevated(), logger)
	schSvc := school.NewService(
		school.Deps{
			Repo:       schoolRepo,
			Tenants:    schoolRepo,
			Mailer:     emailsvc.NewConsoleServiceMock(conf, logger),
			Validate:   validate,
			Translator: translator,
			Logger:     logger,
		},
		school.Options{MembershipAttempts: 2, StatsConcurrency: 4, RootDomain: conf.RootDomain},
	)

	deps := Deps{
		UserSvc:    usrSvc,
		SchoolSvc:  schSvc,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	// set up server
	server, err := NewServer(conf, deps)
	require.NoError(t, err)

	return testApp{server: server, db: db, userSvc: usrSvc, schoolSvc: schSvc, logger: logger}
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

func newClaims(subject, email string) identitysvc.Claims {
	return identitysvc.Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   subject,
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		},
		Email:     email,
		FirstName: "Jane",
		LastName:  "Doe",
	}
}

func getToken(t *testing.T, claims identitysvc.Claims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	ss, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return ss
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// recLogger records the entries logged at error level.
type recLogger struct {
	mu     sync.Mutex
	errors []recEntry
}

type recEntry struct {
	msg  string
	args []interface{}
}

var _ core.Logger = (*recLogger)(nil)

func (l *recLogger) Debug(string, ...interface{}) {}
func (l *recLogger) Info(string, ...interface{})  {}
func (l *recLogger) Warn(string, ...interface{})  {}
func (l *recLogger) Fatal(string, ...interface{}) {}

func (l *recLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, recEntry{msg: msg, args: args})
}

func (l *recLogger) errorEntries() []recEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recEntry(nil), l.errors...)
}

// stubSchoolService fails every call with err.
type stubSchoolService struct {
	err error
}

var _ school.ServiceInterface = stubSchoolService{}

func (s stubSchoolService) Provision(context.Context, core.StoreHandle, school.NewSchool, string) (school.School, error) {
	return school.School{}, s.err
}

func (s stubSchoolService) ListTenants(context.Context, core.StoreHandle, string) ([]school.Tenant, error) {
	return nil, s.err
}

func (s stubSchoolService) Reconcile(context.Context, core.StoreHandle) ([]school.School, error) {
	return nil, s.err
}

func (s stubSchoolService) NotifyCreated(user.User, school.School) {}
func (s stubSchoolService) RootDomain() string                     { return "shule.test" }
