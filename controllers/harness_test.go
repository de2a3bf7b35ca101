package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kcbuddy/kcbuddy/config"
	"github.com/kcbuddy/kcbuddy/controllers"
	"github.com/kcbuddy/kcbuddy/models"
	"github.com/kcbuddy/kcbuddy/routes"
	"github.com/kcbuddy/kcbuddy/storage"
	"github.com/kcbuddy/kcbuddy/utils"
)

type recordingMail struct {
	mu   sync.Mutex
	msgs []utils.Message
}

func (m *recordingMail) Enqueue(msg utils.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return true
}

func (m *recordingMail) sent() []utils.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]utils.Message(nil), m.msgs...)
}

type stubPresigner struct {
	err error
}

func (s *stubPresigner) PresignPut(_ context.Context, familyID, kidID uint, contentType string) (storage.PresignedUpload, error) {
	if s.err != nil {
		return storage.PresignedUpload{}, s.err
	}
	key := fmt.Sprintf("families/%d/kids/%d/test", familyID, kidID)
	public := "https://cdn.example/" + key
	return storage.PresignedUpload{UploadURL: "https://s3.example/" + key + "?sig", PublicURL: &public, Key: key}, nil
}

type harnessOptions struct {
	registerLimit int
	loginIPLimit  int
	codeLimit     int
	uploadLimit   int
	maxBytes      int64
	s3Base        string
	presigner     storage.Presigner
}

type harness struct {
	t         *testing.T
	db        *gorm.DB
	router    *gin.Engine
	issuer    *utils.TokenIssuer
	hasher    *utils.CodeHasher
	mail      *recordingMail
	uploadDir string
}

func newHarness(t *testing.T, mods ...func(*harnessOptions)) *harness {
	t.Helper()
	opts := harnessOptions{
		registerLimit: 1000,
		loginIPLimit:  1000,
		codeLimit:     1000,
		uploadLimit:   1000,
		maxBytes:      1 << 20,
	}
	for _, m := range mods {
		m(&opts)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, models.All()...))

	issuer, err := utils.NewTokenIssuer(utils.TokenOptions{
		Secret:     "test-jwt-secret",
		TTLs:       map[string]time.Duration{models.RoleParent: 12 * time.Hour, models.RoleKid: 4 * time.Hour},
		DefaultTTL: time.Hour,
	})
	require.NoError(t, err)
	hasher, err := utils.NewCodeHasher("", "test-jwt-secret")
	require.NoError(t, err)

	uploadDir := t.TempDir()
	store, err := storage.NewLocalStore(uploadDir, opts.maxBytes)
	require.NoError(t, err)

	log := zap.NewNop()
	mail := &recordingMail{}
	r := routes.SetupRouter(routes.Options{
		GinMode:   "test",
		UploadDir: store.Dir(),
		Log:       log,
		Issuer:    issuer,
		Limiters: routes.Limiters{
			LoginPerIP:    utils.NewMemoryLimiter(opts.loginIPLimit, time.Hour),
			RegisterPerIP: utils.NewMemoryLimiter(opts.registerLimit, time.Hour),
			UploadPerKid:  utils.NewMemoryLimiter(opts.uploadLimit, time.Hour),
		},
	}, routes.Controllers{
		Auth:        controllers.NewAuthController(db, issuer, hasher, utils.NewMemoryLimiter(opts.codeLimit, time.Hour), mail, 5, log),
		Kids:        controllers.NewKidController(db, hasher, 5, log),
		Chores:      controllers.NewChoreController(db, log),
		Submissions: controllers.NewSubmissionController(db, opts.s3Base, log),
		Goals:       controllers.NewGoalController(db, log),
		Storage:     controllers.NewStorageController(store, opts.presigner, opts.maxBytes, log),
	})

	return &harness{t: t, db: db, router: r, issuer: issuer, hasher: hasher, mail: mail, uploadDir: store.Dir()}
}

// envelope is the decoded response body.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type response struct {
	*httptest.ResponseRecorder
	env envelope
}

// data decodes the envelope payload into out.
func (r response) data(t *testing.T, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.env.Data, out), r.Body.String())
}

func (h *harness) send(req *http.Request, token string) response {
	h.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	resp := response{ResponseRecorder: rec}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &resp.env), rec.Body.String())
	}
	return resp
}

// do sends body as JSON. Strings are sent verbatim.
func (h *harness) do(method, path, token string, body interface{}) response {
	h.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.send(req, token)
}

type family struct {
	ID          uint
	Code        string
	ParentID    uint
	ParentCode  string
	ParentToken string
}

func (h *harness) register(name string) family {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"familyName": name,
		"parentName": name + " Parent",
		"email":      "parent@" + strings.ToLower(strings.ReplaceAll(name, " ", "")) + ".example",
	})
	require.Equal(h.t, http.StatusCreated, resp.Code, resp.Body.String())

	var out struct {
		Token  string `json:"token"`
		Family struct {
			ID         uint   `json:"id"`
			FamilyCode string `json:"familyCode"`
		} `json:"family"`
		Parent struct {
			ID        uint   `json:"id"`
			LoginCode string `json:"loginCode"`
		} `json:"parent"`
	}
	resp.data(h.t, &out)
	return family{
		ID:          out.Family.ID,
		Code:        out.Family.FamilyCode,
		ParentID:    out.Parent.ID,
		ParentCode:  out.Parent.LoginCode,
		ParentToken: out.Token,
	}
}

type kid struct {
	ID    uint
	Code  string
	Token string
}

func (h *harness) addKid(f family, name string) kid {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/api/kids", f.ParentToken, map[string]interface{}{"name": name})
	require.Equal(h.t, http.StatusCreated, resp.Code, resp.Body.String())
	var out struct {
		ID        uint   `json:"id"`
		LoginCode string `json:"loginCode"`
	}
	resp.data(h.t, &out)

	token, err := h.issuer.Issue(utils.Identity{Role: models.RoleKid, FamilyID: f.ID, UserID: out.ID})
	require.NoError(h.t, err)
	return kid{ID: out.ID, Code: out.LoginCode, Token: token}
}

func (h *harness) addChore(f family, title string, reward string) uint {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/api/chores", f.ParentToken,
		fmt.Sprintf(`{"title": %q, "rewardAmount": %s}`, title, reward))
	require.Equal(h.t, http.StatusCreated, resp.Code, resp.Body.String())
	var out struct {
		ID uint `json:"id"`
	}
	resp.data(h.t, &out)
	return out.ID
}

func (h *harness) submit(k kid, choreID uint) uint {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/api/submissions", k.Token, map[string]interface{}{
		"choreId":  choreID,
		"photoUrl": "/uploads/family-1-kid-1-photo.jpg",
	})
	require.Equal(h.t, http.StatusCreated, resp.Code, resp.Body.String())
	var out struct {
		ID uint `json:"id"`
	}
	resp.data(h.t, &out)
	return out.ID
}
