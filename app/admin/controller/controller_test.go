package controller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/orca-so/sedimentology/app/admin/controller/types"
	admintypes "github.com/orca-so/sedimentology/app/admin/types"
	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const testToken = "test-token"

type fakeAdminStore struct {
	mu         sync.Mutex
	stats      admin.Stats
	queued     map[uint64]admin.QueuedSlot
	backfills  map[uint64]admin.BackfillState
	checkpoint uint64
	lastLimit  int
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{
		queued:    map[uint64]admin.QueuedSlot{},
		backfills: map[uint64]admin.BackfillState{},
	}
}

func (f *fakeAdminStore) Stats(context.Context) (admin.Stats, error) {
	return f.stats, nil
}

func (f *fakeAdminStore) GetQueuedSlot(_ context.Context, slot uint64) (*admin.QueuedSlot, error) {
	if q, ok := f.queued[slot]; ok {
		return &q, nil
	}
	return nil, nil
}

func (f *fakeAdminStore) ListQueuedSlots(_ context.Context, backfill bool, limit int) ([]admin.QueuedSlot, error) {
	f.lastLimit = limit
	var out []admin.QueuedSlot
	for _, q := range f.queued {
		if q.IsBackfillSlot == backfill {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeAdminStore) ListBackfillStates(context.Context) ([]admin.BackfillState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []admin.BackfillState
	for _, b := range f.backfills {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeAdminStore) ReadBackfillState(_ context.Context, maxBlockHeight uint64) (admin.BackfillState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.backfills[maxBlockHeight]
	if !ok {
		return admin.BackfillState{}, fmt.Errorf("%w: %d", admin.ErrBackfillNotFound, maxBlockHeight)
	}
	return b, nil
}

func (f *fakeAdminStore) UpsertBackfillState(_ context.Context, b admin.BackfillState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backfills[b.MaxBlockHeight] = b
	return nil
}

func (f *fakeAdminStore) SetBackfillEnabled(_ context.Context, maxBlockHeight uint64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.backfills[maxBlockHeight]
	if !ok {
		return fmt.Errorf("%w: %d", admin.ErrBackfillNotFound, maxBlockHeight)
	}
	b.Enabled = enabled
	f.backfills[maxBlockHeight] = b
	return nil
}

func (f *fakeAdminStore) AdvanceCheckpoint(context.Context) (uint64, bool, error) {
	f.checkpoint++
	return f.checkpoint, true, nil
}

func (f *fakeAdminStore) Close() {}

type fakeLedger struct {
	slots     map[uint64]chain.Slot
	txs       map[uint64][]chain.TxSummary
	lastLimit int
}

func (f *fakeLedger) GetSlot(_ context.Context, slot uint64) (*chain.Slot, error) {
	if s, ok := f.slots[slot]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeLedger) LatestSlots(_ context.Context, limit int) ([]chain.Slot, error) {
	f.lastLimit = limit
	var out []chain.Slot
	for _, s := range f.slots {
		out = append(out, s)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLedger) TxsBySlot(_ context.Context, slot uint64) ([]chain.TxSummary, error) {
	return f.txs[slot], nil
}

func (f *fakeLedger) Close() {}

type fakeTemporal struct {
	ok bool
}

func (f *fakeTemporal) Health(context.Context) temporal.Health {
	return temporal.Health{ConnectionOK: f.ok, Queues: []temporal.QueueHealth{{Name: temporal.QueueProcessor, Pollers: 2}}}
}

func (f *fakeTemporal) Close() {}

type harness struct {
	store  *fakeAdminStore
	ledger *fakeLedger
	app    *admintypes.App
	ctl    *Controller
	router *mux.Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	adminHash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	viewerHash, err := bcrypt.GenerateFromPassword([]byte("look"), bcrypt.MinCost)
	require.NoError(t, err)

	h := &harness{
		store: newFakeAdminStore(),
		ledger: &fakeLedger{
			slots: map[uint64]chain.Slot{100: {Slot: 100, BlockHeight: 90, BlockTime: 1700000000}},
			txs:   map[uint64][]chain.TxSummary{100: {{TxID: 100 << 24, Signature: "sig", Payer: "payer"}}},
		},
	}
	h.app = &admintypes.App{
		AdminDB:  h.store,
		ChainDB:  h.ledger,
		Temporal: &fakeTemporal{ok: true},
		Logger:   zaptest.NewLogger(t),
	}
	h.ctl = &Controller{
		App:        h.app,
		AdminToken: testToken,
		AuthUser:   "admin",
		Users: map[string]types.User{
			"admin":  {Username: "admin", Hash: adminHash, Role: roleAdmin},
			"viewer": {Username: "viewer", Hash: viewerHash, Role: roleViewer},
		},
		JWTSecret: []byte("test-secret"),
	}
	h.router, err = h.ctl.NewRouter()
	require.NoError(t, err)
	return h
}

func (h *harness) do(method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	WithCORS(h.router).ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (h *harness) login(t *testing.T, user, password string) *http.Cookie {
	t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/login", fmt.Sprintf(`{"username":%q,"password":%q}`, user, password))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRequireAuth(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/status", "", bearer("wrong")).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/status", "", bearer(testToken)).Code)

	forged := &http.Cookie{Name: sessionCookie, Value: "not-a-jwt"}
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/status", "", withCookie(forged)).Code)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	cookie := h.login(t, "admin", "secret")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/status", "", withCookie(cookie)).Code)

	rec := h.do(http.MethodPost, "/api/auth/login", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(http.MethodPost, "/api/auth/login", `{"username":"ghost","password":"secret"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(http.MethodPost, "/api/auth/login", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestRequireAdmin(t *testing.T) {
	h := newHarness(t)
	body := `{"maxBlockHeight":500,"slot":10,"blockHeight":5}`

	viewer := h.login(t, "viewer", "look")
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/backfill", "", withCookie(viewer)).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/backfill", body, withCookie(viewer)).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/backfill", body).Code)

	adminCookie := h.login(t, "admin", "secret")
	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/backfill", body, withCookie(adminCookie)).Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodOptions, "/api/status", "", func(r *http.Request) {
		r.Header.Set("Origin", "https://ops.example")
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", out.Status)
	assert.True(t, out.Temporal)
	assert.Equal(t, "disabled", out.Redis)

	h.app.Temporal = &fakeTemporal{ok: false}
	rec = h.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[HealthResponse](t, rec).Status)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	lowest := uint64(101)
	h.store.stats = admin.Stats{
		State:        &admin.State{Slot: 120, BlockHeight: 110},
		QueuedLive:   20,
		LowestQueued: &lowest,
		Checkpoint:   &admin.Checkpoint{Slot: 100},
	}

	rec := h.do(http.MethodGet, "/api/status", "", bearer(testToken))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[StatusResponse](t, rec)
	require.NotNil(t, out.State)
	assert.Equal(t, uint64(120), out.State.Slot)
	assert.Equal(t, int64(20), out.QueuedLive)
	assert.Equal(t, uint64(100), out.Checkpoint.Slot)
	require.NotNil(t, out.LatestSlot)
	assert.Equal(t, uint64(100), out.LatestSlot.Slot)
	assert.True(t, out.Temporal.ConnectionOK)
	assert.NotNil(t, out.Backfills)
}

func TestHandleSlot(t *testing.T) {
	h := newHarness(t)
	h.store.queued[105] = admin.QueuedSlot{Slot: 105, BlockHeight: 95, QueuedAt: time.Now()}

	rec := h.do(http.MethodGet, "/api/slots/100", "", bearer(testToken))
	require.Equal(t, http.StatusOK, rec.Code)
	committed := decode[SlotResponse](t, rec)
	assert.Equal(t, "committed", committed.Status)
	assert.Equal(t, uint64(90), committed.Slot.BlockHeight)
	require.Len(t, committed.Txs, 1)
	assert.Equal(t, "payer", committed.Txs[0].Payer)

	rec = h.do(http.MethodGet, "/api/slots/105", "", bearer(testToken))
	require.Equal(t, http.StatusOK, rec.Code)
	queued := decode[SlotResponse](t, rec)
	assert.Equal(t, "queued", queued.Status)
	assert.Equal(t, uint64(95), queued.Queued.BlockHeight)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/slots/7", "", bearer(testToken)).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/slots/abc", "", bearer(testToken)).Code)
}

func TestListLimits(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/slots", "", bearer(testToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultListLimit, h.ledger.lastLimit)
	assert.Len(t, decode[[]chain.Slot](t, rec), 1)

	h.do(http.MethodGet, "/api/slots?limit=100000", "", bearer(testToken))
	assert.Equal(t, maxListLimit, h.ledger.lastLimit)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/slots?limit=-1", "", bearer(testToken)).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/queue?limit=x", "", bearer(testToken)).Code)

	h.store.queued[7] = admin.QueuedSlot{Slot: 7, IsBackfillSlot: true}
	rec = h.do(http.MethodGet, "/api/queue?backfill=true&limit=3", "", bearer(testToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, h.store.lastLimit)
	assert.Len(t, decode[[]admin.QueuedSlot](t, rec), 1)

	rec = h.do(http.MethodGet, "/api/queue", "", bearer(testToken))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBackfillCreate(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/backfill", `{"maxBlockHeight":500,"slot":10,"blockHeight":5}`, bearer(testToken))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[admin.BackfillState](t, rec)
	assert.Equal(t, uint64(500), created.MaxBlockHeight)
	assert.True(t, created.Enabled)

	rec = h.do(http.MethodPost, "/api/backfill", `{"maxBlockHeight":500,"slot":20,"blockHeight":15}`, bearer(testToken))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, uint64(10), h.store.backfills[500].Slot)

	rec = h.do(http.MethodPost, "/api/backfill?reset=true", `{"maxBlockHeight":500,"slot":20,"blockHeight":15,"enabled":false}`, bearer(testToken))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, uint64(20), h.store.backfills[500].Slot)
	assert.False(t, h.store.backfills[500].Enabled)

	cases := map[string]string{
		"missing ceiling":     `{"slot":1,"blockHeight":1}`,
		"start above ceiling": `{"maxBlockHeight":5,"slot":1,"blockHeight":6}`,
		"bad json":            `{"maxBlockHeight":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/backfill", body, bearer(testToken)).Code)
		})
	}
}

func TestBackfillPatch(t *testing.T) {
	h := newHarness(t)
	h.store.backfills[500] = admin.BackfillState{MaxBlockHeight: 500, Enabled: true}

	rec := h.do(http.MethodPatch, "/api/backfill/500", `{"enabled":false}`, bearer(testToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[admin.BackfillState](t, rec).Enabled)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPatch, "/api/backfill/9", `{"enabled":true}`, bearer(testToken)).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPatch, "/api/backfill/500", `{}`, bearer(testToken)).Code)
}

func TestCheckpointSweep(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/api/checkpoint", "", bearer(testToken))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[map[string]any](t, rec)
	assert.Equal(t, true, out["moved"])
	assert.Equal(t, uint64(1), h.store.checkpoint)
}

func TestParseUsers(t *testing.T) {
	users, err := parseUsers(`{"ops":{"password":"pw"},"root":{"password":"$2a$10$abcdefghijklmnopqrstuuMRq2r1zjD7P0Z2nL3S8c8xY2sWq6pNq","role":"admin"}}`)
	require.NoError(t, err)
	assert.Equal(t, roleViewer, users["ops"].Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword(users["ops"].Hash, []byte("pw")))
	assert.Equal(t, roleAdmin, users["root"].Role)
	assert.True(t, strings.HasPrefix(string(users["root"].Hash), "$2a$"))

	_, err = parseUsers(`[`)
	assert.Error(t, err)
}

func TestNewControllerReadsEnv(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "from-env")
	t.Setenv("ADMIN_USER", "operator")
	t.Setenv("ADMIN_PASSWORD", "pw")
	t.Setenv("ADMIN_USERS", `{"guest":{"password":"g"}}`)
	t.Setenv("ADMIN_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	ctl := NewController(&admintypes.App{Logger: zaptest.NewLogger(t)})
	assert.Equal(t, "from-env", ctl.AdminToken)
	require.Contains(t, ctl.Users, "operator")
	assert.Equal(t, roleAdmin, ctl.Users["operator"].Role)
	require.Contains(t, ctl.Users, "guest")
	assert.Equal(t, roleViewer, ctl.Users["guest"].Role)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, ctl.AllowedOrigins)
}
