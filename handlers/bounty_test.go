package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bounty-service/models"
	"bounty-service/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubLedger struct {
	mu       sync.Mutex
	balances map[string]float64
}

func (l *stubLedger) GetBalance(userID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *stubLedger) Withdraw(userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] -= amount
	return nil
}

func (l *stubLedger) Credit(userID string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return nil
}

type stubLocations struct{}

func (stubLocations) Locate(userID string) (models.Position, bool) {
	return models.Position{X: 1}, true
}

type stubSink struct{}

func (stubSink) PushIndicator(hunter string, indicator models.TrackingIndicator) {}

type stubRoster struct{ users []string }

func (r *stubRoster) OnlineUsers() []string { return r.users }

type apiFixture struct {
	app    *fiber.App
	ledger *stubLedger
	roster *stubRoster
	db     *gorm.DB
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BountyRecord{}))

	store := services.NewBountyStore()
	expiry, err := services.NewExpiryScheduler(store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = expiry.Shutdown() })

	tracking, err := services.NewTrackingScheduler(store, stubLocations{}, stubSink{}, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracking.Shutdown() })

	ledger := &stubLedger{balances: map[string]float64{"alice": 1000, "carol": 1000}}
	roster := &stubRoster{}
	broadcaster := services.NewEventBroadcaster()

	manager := services.NewBountyManager(store, expiry, tracking, ledger, broadcaster, roster, services.BountyManagerConfig{
		MinReward:     10,
		BoardPageSize: 9,
	})

	app := fiber.New()
	SetupBountyRoutes(app, &BountyHandler{
		Manager: manager,
		Events:  broadcaster,
		Store:   store,
		DB:      db,
	})

	return &apiFixture{app: app, ledger: ledger, roster: roster, db: db}
}

func (f *apiFixture) request(t *testing.T, method, path, userID string, roles string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}

	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestPlaceBountyEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, "POST", "/bounties", "alice", "", fiber.Map{
		"target":   "bob",
		"reward":   100,
		"duration": "1h",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	bounty := decodeBody[models.Bounty](t, resp)
	assert.Equal(t, "bob", bounty.Target)
	assert.Equal(t, "alice", bounty.Placer)
	assert.Equal(t, models.BountyStatusActive, bounty.Status)
}

func TestPlaceBountyRequiresUserContext(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, "POST", "/bounties", "", "", fiber.Map{"target": "bob", "reward": 100})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestPlaceBountyDuplicateConflict(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, "POST", "/bounties", "alice", "", fiber.Map{"target": "bob", "reward": 100})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = f.request(t, "POST", "/bounties", "carol", "", fiber.Map{"target": "bob", "reward": 200})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestPlaceBountyInvalidDuration(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, "POST", "/bounties", "alice", "", fiber.Map{
		"target":   "bob",
		"reward":   100,
		"duration": "soon",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestClaimBountyEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, "POST", "/bounties", "alice", "", fiber.Map{"target": "bob", "reward": 100})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = f.request(t, "POST", "/bounties/bob/claim", "hunter", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	claimed := decodeBody[models.Bounty](t, resp)
	assert.Equal(t, models.BountyStatusCompleted, claimed.Status)

	balance, err := f.ledger.GetBalance("hunter")
	require.NoError(t, err)
	assert.Equal(t, 100.0, balance)

	// A second claim finds nothing active.
	resp = f.request(t, "POST", "/bounties/bob/claim", "hunter", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRemoveBountyEndpointAuthorization(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, "POST", "/bounties", "alice", "", fiber.Map{"target": "bob", "reward": 100})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = f.request(t, "DELETE", "/bounties/bob", "mallory", "", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = f.request(t, "DELETE", "/bounties/bob", "mallory", "admin", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestBoardEndpointClampsPage(t *testing.T) {
	f := newAPIFixture(t)

	for i := 0; i < 12; i++ {
		resp := f.request(t, "POST", "/bounties", "alice", "", fiber.Map{
			"target": fmt.Sprintf("target-%d", i),
			"reward": 100,
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	resp := f.request(t, "GET", "/board?page=5", "", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	view := decodeBody[services.PageView](t, resp)
	assert.Equal(t, 2, view.Page)
	assert.Equal(t, 2, view.TotalPages)
	assert.False(t, view.HasNext)
	assert.Len(t, view.Entries, 3)
}

func TestListAndGetBountyEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, "POST", "/bounties", "alice", "", fiber.Map{"target": "bob", "reward": 100})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = f.request(t, "GET", "/bounties", "", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	list := decodeBody[[]models.Bounty](t, resp)
	require.Len(t, list, 1)

	resp = f.request(t, "GET", "/bounties/bob", "", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = f.request(t, "GET", "/bounties/nobody", "", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTrackingEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, "POST", "/tracking/bob", "hunter", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = f.request(t, "POST", "/bounties", "alice", "", fiber.Map{"target": "bob", "reward": 100})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = f.request(t, "POST", "/tracking/bob", "hunter", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	indicator := decodeBody[models.TrackingIndicator](t, resp)
	assert.Equal(t, "bob", indicator.Target)

	resp = f.request(t, "GET", "/tracking/bob", "hunter", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = f.request(t, "DELETE", "/tracking", "hunter", "", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestRandomBountyEndpointRequiresAdmin(t *testing.T) {
	f := newAPIFixture(t)
	f.roster.users = []string{"bob"}

	resp := f.request(t, "POST", "/admin/bounties/random", "alice", "", fiber.Map{"reward": 100})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = f.request(t, "POST", "/admin/bounties/random", "alice", "admin", fiber.Map{"reward": 100})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	bounty := decodeBody[models.Bounty](t, resp)
	assert.Equal(t, "bob", bounty.Target)

	// bob now has a bounty and nobody else is online.
	resp = f.request(t, "POST", "/admin/bounties/random", "alice", "admin", fiber.Map{"reward": 100})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSaveSnapshotEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.request(t, "POST", "/bounties", "alice", "", fiber.Map{"target": "bob", "reward": 100})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = f.request(t, "POST", "/admin/save", "alice", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var count int64
	require.NoError(t, f.db.Model(&models.BountyRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
