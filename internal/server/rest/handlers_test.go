package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// --- fakes ---

type fakeAuth struct {
	password string
	tokens   map[string]string // token -> userID
	users    map[string]bool   // taken logins
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		password: "secret",
		tokens:   map[string]string{"valid-token": "u1"},
		users:    map[string]bool{"alice": true},
	}
}

func (f *fakeAuth) Register(ctx context.Context, login, password string) (*models.User, error) {
	if login == "" || password == "" {
		return nil, common.ErrorInvalidInput
	}
	if f.users[login] {
		return nil, common.ErrorConflict
	}
	f.users[login] = true
	return &models.User{ID: "u-new", Login: login}, nil
}

func (f *fakeAuth) Login(ctx context.Context, login, password string) (string, error) {
	if !f.users[login] || password != f.password {
		return "", common.ErrorUnauthorized
	}
	token := fmt.Sprintf("token-%d", len(f.tokens))
	f.tokens[token] = "u1"
	return token, nil
}

func (f *fakeAuth) Resolve(ctx context.Context, value string) (string, error) {
	if userID, ok := f.tokens[value]; ok {
		return userID, nil
	}
	return "", common.ErrorUnauthorized
}

func (f *fakeAuth) Revoke(ctx context.Context, value string) error {
	delete(f.tokens, value)
	return nil
}

func (f *fakeAuth) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword != f.password {
		return common.ErrorUnauthorized
	}
	f.password = newPassword
	return nil
}

type storedFile struct {
	owner   string
	content string
}

type fakeFiles struct {
	files map[string]*storedFile // "owner/name"
	order []string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: make(map[string]*storedFile)}
}

func (f *fakeFiles) key(userID, name string) string { return userID + "/" + name }

func (f *fakeFiles) Upload(ctx context.Context, userID string, content io.Reader, declaredName, requestedName string) (*models.FileRecord, error) {
	name := requestedName
	if name == "" {
		name = declaredName
	}
	if name == "" {
		return nil, common.ErrorInvalidInput
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, common.ErrorInvalidInput
	}
	k := f.key(userID, name)
	if _, ok := f.files[k]; ok {
		return nil, common.ErrorConflict
	}
	f.files[k] = &storedFile{owner: userID, content: string(data)}
	f.order = append(f.order, k)
	return &models.FileRecord{UserID: userID, Filename: name, Size: int64(len(data))}, nil
}

func (f *fakeFiles) Download(ctx context.Context, userID, filename string) (*models.FileRecord, io.ReadCloser, error) {
	sf, ok := f.files[f.key(userID, filename)]
	if !ok {
		return nil, nil, common.ErrorNotFound
	}
	record := &models.FileRecord{UserID: userID, Filename: filename, Size: int64(len(sf.content))}
	return record, io.NopCloser(strings.NewReader(sf.content)), nil
}

func (f *fakeFiles) List(ctx context.Context, userID string, limit int) ([]models.FileInfo, error) {
	infos := make([]models.FileInfo, 0)
	for _, k := range f.order {
		sf, ok := f.files[k]
		if !ok || sf.owner != userID {
			continue
		}
		infos = append(infos, models.FileInfo{Filename: strings.TrimPrefix(k, userID+"/"), Size: int64(len(sf.content))})
		if limit > 0 && len(infos) == limit {
			break
		}
	}
	return infos, nil
}

func (f *fakeFiles) Rename(ctx context.Context, userID, oldName, newName string) (*models.FileRecord, error) {
	if newName == "" {
		return nil, common.ErrorInvalidInput
	}
	if _, ok := f.files[f.key(userID, newName)]; ok {
		return nil, common.ErrorConflict
	}
	sf, ok := f.files[f.key(userID, oldName)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(f.files, f.key(userID, oldName))
	f.files[f.key(userID, newName)] = sf
	return &models.FileRecord{UserID: userID, Filename: newName, Size: int64(len(sf.content))}, nil
}

func (f *fakeFiles) Delete(ctx context.Context, userID, filename string) error {
	if _, ok := f.files[f.key(userID, filename)]; !ok {
		return common.ErrorNotFound
	}
	delete(f.files, f.key(userID, filename))
	return nil
}

// --- helpers ---

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (nopLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Error(ctx context.Context, msg string, args ...any) {}
func (nopLogger) With(args ...any) logging.Logger                    { return nopLogger{} }

type fixture struct {
	router http.Handler
	auth   *fakeAuth
	files  *fakeFiles
	server *RestServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auth := newFakeAuth()
	files := newFakeFiles()
	s := NewRestServer(":0", nopLogger{}, auth, files)
	t.Cleanup(s.limiter.Stop)
	return &fixture{router: s.Router(), auth: auth, files: files, server: s}
}

func (fx *fixture) do(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set(authTokenHeader, token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, partFilename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", partFilename)
	if err != nil {
		t.Fatalf("CreateFormFile error: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func uploadFile(t *testing.T, fx *fixture, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	return fx.do(t, http.MethodPost, "/file", token, body, contentType)
}

// --- tests ---

func TestLogin(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/login", "", strings.NewReader(`{"login":"alice","password":"secret"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp["auth-token"] == "" {
		t.Fatal("expected auth-token in response")
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/login", "", strings.NewReader(`{"login":"alice","password":"wrong"}`), "application/json")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Message == "" || resp.ID == "" {
		t.Fatalf("expected message and id in error body: %+v", resp)
	}
}

func TestLoginRateLimited(t *testing.T) {
	fx := newFixture(t)

	var last int
	for i := 0; i < DefaultRateLimiterConfig().Burst+1; i++ {
		rec := fx.do(t, http.MethodPost, "/login", "", strings.NewReader(`{"login":"alice","password":"wrong"}`), "application/json")
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}

func TestRegister(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/register", "", strings.NewReader(`{"login":"bob","password":"pw"}`), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	rec = fx.do(t, http.MethodPost, "/register", "", strings.NewReader(`{"login":"bob","password":"pw"}`), "application/json")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for taken login, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	fx := newFixture(t)

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/list"},
		{http.MethodPost, "/logout"},
		{http.MethodGet, "/file?filename=a"},
		{http.MethodDelete, "/file?filename=a"},
	} {
		rec := fx.do(t, tc.method, tc.target, "", nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 without token, got %d", tc.method, tc.target, rec.Code)
		}

		rec = fx.do(t, tc.method, tc.target, "bogus", nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401 with bad token, got %d", tc.method, tc.target, rec.Code)
		}
	}
}

func TestBearerPrefixAccepted(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/list", "Bearer valid-token", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected Bearer-prefixed token to work, got %d", rec.Code)
	}
}

func TestUploadAndDownload(t *testing.T) {
	fx := newFixture(t)

	rec := uploadFile(t, fx, "valid-token", "report.txt", "contents")
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status: %d, body %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodGet, "/file?filename=report.txt", "valid-token", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status: %d", rec.Code)
	}
	if got := rec.Body.String(); got != "contents" {
		t.Errorf("unexpected body: %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("unexpected content type: %q", ct)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "8" {
		t.Errorf("unexpected content length: %q", cl)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "report.txt") {
		t.Errorf("unexpected content disposition: %q", cd)
	}
}

func TestUploadFilenameOverride(t *testing.T) {
	fx := newFixture(t)

	body, contentType := multipartBody(t, "part-name.bin", "x")
	rec := fx.do(t, http.MethodPost, "/file?filename=final.bin", "valid-token", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status: %d", rec.Code)
	}

	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["filename"] != "final.bin" {
		t.Errorf("expected query filename to win, got %v", resp["filename"])
	}
}

func TestUploadErrors(t *testing.T) {
	fx := newFixture(t)

	// Not multipart at all.
	rec := fx.do(t, http.MethodPost, "/file", "valid-token", strings.NewReader("raw"), "text/plain")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-multipart: expected 400, got %d", rec.Code)
	}

	// Empty content.
	rec = uploadFile(t, fx, "valid-token", "empty.txt", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty upload: expected 400, got %d", rec.Code)
	}

	// Duplicate filename.
	uploadFile(t, fx, "valid-token", "dup.txt", "a")
	rec = uploadFile(t, fx, "valid-token", "dup.txt", "b")
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate upload: expected 409, got %d", rec.Code)
	}
}

func TestList(t *testing.T) {
	fx := newFixture(t)

	uploadFile(t, fx, "valid-token", "a.txt", "aa")
	uploadFile(t, fx, "valid-token", "b.txt", "bbb")

	rec := fx.do(t, http.MethodGet, "/list", "valid-token", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: %d", rec.Code)
	}

	var infos []models.FileInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(infos) != 2 || infos[0].Filename != "a.txt" || infos[0].Size != 2 {
		t.Fatalf("unexpected listing: %+v", infos)
	}

	rec = fx.do(t, http.MethodGet, "/list?limit=1", "valid-token", nil, "")
	json.Unmarshal(rec.Body.Bytes(), &infos)
	if len(infos) != 1 {
		t.Fatalf("unexpected limited listing: %+v", infos)
	}

	rec = fx.do(t, http.MethodGet, "/list?limit=abc", "valid-token", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", rec.Code)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/list", "valid-token", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("expected empty JSON array, got %q", got)
	}
}

func TestRename(t *testing.T) {
	fx := newFixture(t)

	uploadFile(t, fx, "valid-token", "old.txt", "data")

	rec := fx.do(t, http.MethodPut, "/file?filename=old.txt", "valid-token", strings.NewReader(`{"name":"new.txt"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status: %d", rec.Code)
	}

	rec = fx.do(t, http.MethodGet, "/file?filename=new.txt", "valid-token", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("download by new name: %d", rec.Code)
	}
	rec = fx.do(t, http.MethodGet, "/file?filename=old.txt", "valid-token", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("download by old name: expected 404, got %d", rec.Code)
	}
}

func TestDelete(t *testing.T) {
	fx := newFixture(t)

	uploadFile(t, fx, "valid-token", "doomed.txt", "bye")

	rec := fx.do(t, http.MethodDelete, "/file?filename=doomed.txt", "valid-token", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status: %d", rec.Code)
	}

	rec = fx.do(t, http.MethodDelete, "/file?filename=doomed.txt", "valid-token", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/logout", "valid-token", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status: %d", rec.Code)
	}

	rec = fx.do(t, http.MethodGet, "/list", "valid-token", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected revoked token to be rejected, got %d", rec.Code)
	}
}

func TestChangePassword(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/password", "valid-token", strings.NewReader(`{"old-password":"secret","new-password":"next"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("change password status: %d", rec.Code)
	}

	rec = fx.do(t, http.MethodPost, "/password", "valid-token", strings.NewReader(`{"old-password":"secret","new-password":"again"}`), "application/json")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("old password must stop working, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newFixture(t)

	// Generate at least one observation so the counter family is exported.
	fx.do(t, http.MethodGet, "/list", "valid-token", nil, "")

	rec := fx.do(t, http.MethodGet, "/metrics", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "filekeeper_http_requests_total") {
		t.Error("expected request counter in scrape output")
	}
}
