package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/onnwee/plaques/internal/auth"
	"github.com/onnwee/plaques/internal/catalog"
	"github.com/onnwee/plaques/internal/events"
	"github.com/onnwee/plaques/internal/middleware"
	"github.com/onnwee/plaques/internal/upload"
	"github.com/onnwee/plaques/internal/viewmodel"
	"github.com/onnwee/plaques/internal/visit"
)

const (
	testEmail    = "walker@example.com"
	testPassword = "blue-plaque"
	testSecret   = "test-secret-at-least-32-characters!!"
)

// apiFixture is the full HTTP stack over in-memory backends.
type apiFixture struct {
	catalog     *catalog.Catalog
	ledger      *visit.InMemoryLedger
	store       *upload.InMemoryStore
	views       *viewmodel.Store
	service     *visit.Service
	sessions    *auth.Manager
	broadcaster *events.Broadcaster
	handler     http.Handler
}

type fixtureOptions struct {
	loginLimit    *middleware.RateLimitConfig
	maxImageBytes int64
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAPIFixture(t *testing.T, opts fixtureOptions) *apiFixture {
	t.Helper()
	logger := quietLogger()

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}

	f := &apiFixture{
		catalog:     cat,
		ledger:      visit.NewInMemoryLedger(),
		store:       upload.NewInMemoryStore("http://localhost:8080/photos"),
		broadcaster: events.NewBroadcaster(logger),
	}
	f.views = viewmodel.NewStore(cat, f.ledger, nil, logger)
	if err := f.views.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	maxBytes := opts.maxImageBytes
	if maxBytes == 0 {
		maxBytes = 1024
	}
	f.service, err = visit.NewService(visit.ServiceConfig{
		Catalog:       cat,
		Ledger:        f.ledger,
		Store:         f.store,
		Logger:        logger,
		MaxImageBytes: maxBytes,
		OnChange: func(ctx context.Context, plaqueID int) {
			_ = f.views.Refresh(ctx)
			f.broadcaster.Broadcast(events.VisitsChanged(plaqueID))
		},
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	users := auth.NewInMemoryUserStore()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := users.AddUserWithHash(auth.User{ID: "walker", Email: testEmail}, string(hash)); err != nil {
		t.Fatalf("AddUserWithHash() error = %v", err)
	}
	f.sessions = auth.NewManager(users, auth.NewJWTService(testSecret, ""), auth.NewInMemoryRevocationStore(), logger)

	cfg := RouterConfig{
		Plaques: NewPlaqueHandlers(f.views, f.service),
		Visits:  NewVisitHandlers(f.service, f.views, maxBytes),
		Auth:    NewAuthHandlers(f.sessions),
		Events:  NewEventHandlers(f.broadcaster, f.sessions, nil),
		Health:  NewHealthHandlers(HealthHandlersConfig{View: f.views}),
		Photos:  NewPhotoHandlers(f.store),
	}
	if opts.loginLimit != nil {
		cfg.LoginLimiter = middleware.RateLimiter(middleware.NewInMemoryRateLimitStore(), *opts.loginLimit, middleware.IPKeyFunc(), nil)
	}

	f.handler = middleware.Authenticate(f.sessions)(NewRouter(cfg))
	return f
}

func (f *apiFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) login(t *testing.T) string {
	t.Helper()
	body := `{"email":"` + testEmail + `","password":"` + testPassword + `"}`
	w := f.do(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	return resp.Session.Token
}

type photoPart struct {
	contentType string
	data        []byte
}

// visitRequest builds a multipart POST; a nil photo omits the image part.
func visitRequest(t *testing.T, path, token string, photo *photoPart, notes string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if photo != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="visit.jpg"`)
		if photo.contentType != "" {
			h.Set("Content-Type", photo.contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart() error = %v", err)
		}
		if _, err := part.Write(photo.data); err != nil {
			t.Fatalf("failed to write photo: %v", err)
		}
	}
	if notes != "" {
		if err := mw.WriteField("notes", notes); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func authed(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func jpeg() *photoPart {
	return &photoPart{contentType: upload.MIMEImageJPEG, data: []byte("\xff\xd8\xff\xe0jpeg-bytes")}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body %q: %v", w.Body.String(), err)
	}
	return resp.Error.Code
}

func TestRouter_VisitLifecycle(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	token := f.login(t)

	w := f.do(t, visitRequest(t, "/plaques/2/visit", token, jpeg(), "Sunny afternoon"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var created PlaqueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode plaque: %v", err)
	}
	if !created.Visited || created.ImageURL == nil || created.UploadedBy == nil || *created.UploadedBy != "walker" {
		t.Errorf("created plaque = %+v", created)
	}
	if created.Notes == nil || *created.Notes != "Sunny afternoon" {
		t.Errorf("notes = %v, want Sunny afternoon", created.Notes)
	}
	if created.State != visit.StateIdle {
		t.Errorf("state = %s, want idle", created.State)
	}
	if f.store.Len() != 1 {
		t.Errorf("store has %d objects, want 1", f.store.Len())
	}

	// The view model was rebuilt by the workflow.
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/plaques?status=visited", nil))
	var list ListPlaquesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Plaques) != 1 || list.Plaques[0].ID != 2 {
		t.Errorf("visited plaques = %+v", list.Plaques)
	}
	if list.Summary.Visited != 1 || list.Summary.Total != f.catalog.Len() {
		t.Errorf("summary = %+v", list.Summary)
	}

	w = f.do(t, visitRequest(t, "/plaques/2/visit", token, jpeg(), ""))
	if w.Code != http.StatusConflict || errorCode(t, w) != ErrCodeAlreadyVisited {
		t.Errorf("second upload = %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, authed(http.MethodDelete, "/plaques/2/visit", token))
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}
	var deleted PlaqueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("failed to decode plaque: %v", err)
	}
	if deleted.Visited || deleted.ImageURL != nil || deleted.Notes != nil {
		t.Errorf("deleted plaque = %+v", deleted)
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d objects after delete, want 0", f.store.Len())
	}

	w = f.do(t, authed(http.MethodDelete, "/plaques/2/visit", token))
	if w.Code != http.StatusConflict || errorCode(t, w) != ErrCodeNotVisited {
		t.Errorf("second delete = %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_ServesInMemoryPhotos(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	token := f.login(t)
	photo := jpeg()

	w := f.do(t, visitRequest(t, "/plaques/3/visit", token, photo, ""))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var created PlaqueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode plaque: %v", err)
	}
	if created.ImageURL == nil {
		t.Fatal("upload returned no image_url")
	}
	imageURL, err := url.Parse(*created.ImageURL)
	if err != nil {
		t.Fatalf("image_url %q: %v", *created.ImageURL, err)
	}

	w = f.do(t, httptest.NewRequest(http.MethodGet, imageURL.Path, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("photo status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != upload.MIMEImageJPEG {
		t.Errorf("Content-Type = %q, want %q", got, upload.MIMEImageJPEG)
	}
	if !bytes.Equal(w.Body.Bytes(), photo.data) {
		t.Errorf("photo body = %q, want %q", w.Body.Bytes(), photo.data)
	}

	w = f.do(t, authed(http.MethodDelete, "/plaques/3/visit", token))
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}
	w = f.do(t, httptest.NewRequest(http.MethodGet, imageURL.Path, nil))
	if w.Code != http.StatusNotFound || errorCode(t, w) != ErrCodeNotFound {
		t.Errorf("removed photo = %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_MutationsRequireAuth(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"upload anonymous", visitRequest(t, "/plaques/1/visit", "", jpeg(), "")},
		{"upload bad token", visitRequest(t, "/plaques/1/visit", "not-a-token", jpeg(), "")},
		{"delete anonymous", authed(http.MethodDelete, "/plaques/1/visit", "")},
		{"logout anonymous", authed(http.MethodPost, "/auth/logout", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if errorCode(t, w) != ErrCodeAuthRequired {
				t.Errorf("code = %s, want %s", errorCode(t, w), ErrCodeAuthRequired)
			}
		})
	}
	if f.store.Len() != 0 {
		t.Error("anonymous upload reached the object store")
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})

	w := f.do(t, httptest.NewRequest(http.MethodPut, "/plaques/1", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /plaques/1 status = %d, want 405", w.Code)
	}
}

func TestRouter_LoginRateLimited(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{
		loginLimit: &middleware.RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute},
	})

	body := `{"email":"` + testEmail + `","password":"wrong"}`
	for i := 0; i < 2; i++ {
		w := f.do(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, w.Code)
		}
	}

	w := f.do(t, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third attempt status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
