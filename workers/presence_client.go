package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"bounty-service/models"
)

// PresenceClient mirrors the game server's online-player roster and world
// positions. It backs both location lookup for tracking ticks and the online
// roster for random bounties, and pushes refreshed indicators back out.
type PresenceClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	mu        sync.RWMutex
	positions map[string]models.Position
}

type presenceEntry struct {
	UserID string  `json:"user_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

func NewPresenceClient() *PresenceClient {
	baseURL := os.Getenv("PRESENCE_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("PRESENCE_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("BOUNTY_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("BOUNTY_SERVICE_TOKEN environment variable is required for presence calls")
	}

	return &PresenceClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		positions: make(map[string]models.Position),
	}
}

// Locate returns the mirrored position of userID. False means offline.
func (c *PresenceClient) Locate(userID string) (models.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.positions[userID]
	return pos, ok
}

// OnlineUsers returns the ids of every mirrored online user, sorted for
// deterministic iteration.
func (c *PresenceClient) OnlineUsers() []string {
	c.mu.RLock()
	users := make([]string, 0, len(c.positions))
	for userID := range c.positions {
		users = append(users, userID)
	}
	c.mu.RUnlock()

	sort.Strings(users)
	return users
}

// PushIndicator delivers a refreshed tracking indicator to the hunter's
// client via the game server. Best effort: failures are logged and dropped.
func (c *PresenceClient) PushIndicator(hunter string, indicator models.TrackingIndicator) {
	payload, _ := json.Marshal(indicator)

	req, err := http.NewRequest("POST",
		fmt.Sprintf("%s/api/v1/players/%s/indicator", c.BaseURL, url.PathEscape(hunter)),
		bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[PRESENCE] Failed to create indicator request for %s: %v", hunter, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Printf("[PRESENCE] Failed to push indicator to %s: %v", hunter, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[PRESENCE] Indicator push for %s returned status %d: %s", hunter, resp.StatusCode, string(body))
	}
}

// GetOnlinePlayers fetches the current roster with positions.
func (c *PresenceClient) GetOnlinePlayers(ctx context.Context) ([]presenceEntry, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/v1/players/online", c.BaseURL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call presence service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("presence service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Players []presenceEntry `json:"players"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode presence response: %w", err)
	}

	return response.Players, nil
}

// PollPresence keeps the roster mirror fresh until ctx is cancelled. The
// whole mirror is replaced each tick so disconnected players drop out.
func PollPresence(ctx context.Context, client *PresenceClient, pollInterval time.Duration) {
	log.Println("Starting presence polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Presence polling stopped.")
			return
		case <-ticker.C:
			players, err := client.GetOnlinePlayers(ctx)
			if err != nil {
				log.Printf("[PRESENCE] Error polling online players: %v", err)
				continue
			}

			fresh := make(map[string]models.Position, len(players))
			for _, p := range players {
				fresh[p.UserID] = models.Position{X: p.X, Y: p.Y, Z: p.Z}
			}

			client.mu.Lock()
			client.positions = fresh
			client.mu.Unlock()
		}
	}
}
