package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a critter hub over HTTP for state and wallet calls and
// a websocket for push notifications.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient creates a client for the hub at baseURL (e.g.
// "http://localhost:8420").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (c *Client) FetchPetState(ctx context.Context, ownerID string) (*Envelope, error) {
	u := fmt.Sprintf("%s/v1/state?owner=%s", c.baseURL, url.QueryEscape(ownerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := c.do(req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *Client) PushPetState(ctx context.Context, env *Envelope) (*PushResult, error) {
	req, err := c.jsonRequest(ctx, http.MethodPost, "/v1/state", env)
	if err != nil {
		return nil, err
	}

	var result PushResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type walletRequest struct {
	OwnerID string `json:"ownerId"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

func (c *Client) CreditWallet(ctx context.Context, ownerID string, amount int64, reason string) error {
	req, err := c.jsonRequest(ctx, http.MethodPost, "/v1/wallet/credit", walletRequest{ownerID, amount, reason})
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) DebitWallet(ctx context.Context, ownerID string, amount int64, reason string) error {
	req, err := c.jsonRequest(ctx, http.MethodPost, "/v1/wallet/debit", walletRequest{ownerID, amount, reason})
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) LogInteraction(ctx context.Context, rec InteractionRecord) error {
	req, err := c.jsonRequest(ctx, http.MethodPost, "/v1/interactions", rec)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Subscribe dials the hub's websocket endpoint and delivers change
// envelopes until the connection drops or the returned unsubscribe
// function is called. A deliberate unsubscribe never reaches onDrop.
func (c *Client) Subscribe(ctx context.Context, ownerID string, onChange func(*Envelope), onDrop func(error)) (func(), error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) +
		"/v1/subscribe?owner=" + url.QueryEscape(ownerID)

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial subscribe: %v", ErrNetworkUnavailable, err)
	}

	var once sync.Once
	closed := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			close(closed)
			conn.Close()
		})
	}

	go func() {
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				select {
				case <-closed:
					// Deliberate unsubscribe.
				default:
					unsubscribe()
					if onDrop != nil {
						onDrop(fmt.Errorf("%w: %v", ErrSubscriptionLost, err))
					}
				}
				return
			}
			if onChange != nil {
				onChange(&env)
			}
		}
	}()

	return unsubscribe, nil
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do executes the request, mapping transport failures to
// ErrNetworkUnavailable and non-2xx statuses to errors carrying the hub's
// message. A nil out discards the body.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("hub returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
