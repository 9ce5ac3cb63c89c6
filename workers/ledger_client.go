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
	"sync"
	"time"
)

// LedgerClient talks to the external economy service. It also keeps a local
// balance mirror warm via PollBalances so reads stay cheap.
type LedgerClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	mu       sync.RWMutex
	balances map[string]float64
}

// BalanceEntry is one account balance as reported by the economy service.
type BalanceEntry struct {
	UserID    string    `json:"user_id"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewLedgerClient() *LedgerClient {
	baseURL := os.Getenv("LEDGER_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("LEDGER_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("BOUNTY_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("BOUNTY_SERVICE_TOKEN environment variable is required for ledger calls")
	}

	return &LedgerClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		balances: make(map[string]float64),
	}
}

// GetBalance fetches the live balance for userID and refreshes the mirror.
func (c *LedgerClient) GetBalance(userID string) (float64, error) {
	req, err := http.NewRequest("GET", fmt.Sprintf("%s/api/v1/accounts/%s/balance", c.BaseURL, url.PathEscape(userID)), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call ledger service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("ledger service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Balance float64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode ledger response: %w", err)
	}

	c.mu.Lock()
	c.balances[userID] = response.Balance
	c.mu.Unlock()

	return response.Balance, nil
}

// Withdraw debits amount from userID's account.
func (c *LedgerClient) Withdraw(userID string, amount float64) error {
	return c.postAmount(userID, "withdraw", amount)
}

// Credit pays amount into userID's account.
func (c *LedgerClient) Credit(userID string, amount float64) error {
	return c.postAmount(userID, "credit", amount)
}

func (c *LedgerClient) postAmount(userID, action string, amount float64) error {
	payload, _ := json.Marshal(map[string]float64{"amount": amount})

	req, err := http.NewRequest("POST",
		fmt.Sprintf("%s/api/v1/accounts/%s/%s", c.BaseURL, url.PathEscape(userID), action),
		bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call ledger service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ledger %s returned status %d: %s", action, resp.StatusCode, string(body))
	}

	// Mirror is stale after a balance change; drop the cached entry.
	c.mu.Lock()
	delete(c.balances, userID)
	c.mu.Unlock()

	return nil
}

// CachedBalance reads the local mirror without a network round trip.
func (c *LedgerClient) CachedBalance(userID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	balance, ok := c.balances[userID]
	return balance, ok
}

// GetChangedBalances fetches every balance updated since the given time.
func (c *LedgerClient) GetChangedBalances(ctx context.Context, since time.Time) ([]BalanceEntry, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/accounts/balances", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ledger service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ledger service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Balances []BalanceEntry `json:"balances"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode ledger response: %w", err)
	}

	return response.Balances, nil
}

// PollBalances keeps the local balance mirror in sync with the economy
// service until ctx is cancelled.
func PollBalances(ctx context.Context, client *LedgerClient, pollInterval time.Duration) {
	log.Println("Starting ledger balance polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Ledger balance polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			balances, err := client.GetChangedBalances(ctx, lastSyncTime)
			if err != nil {
				log.Printf("[LEDGER] Error polling balances: %v", err)
				// Do NOT advance lastSyncTime on failure — retry same window next tick
				continue
			}

			if len(balances) == 0 {
				lastSyncTime = logTime
				continue
			}

			client.mu.Lock()
			for _, entry := range balances {
				client.balances[entry.UserID] = entry.Balance
			}
			client.mu.Unlock()

			lastSyncTime = logTime
			log.Printf("[LEDGER] Refreshed %d balance(s) in local mirror", len(balances))
		}
	}
}
