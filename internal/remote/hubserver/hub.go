// Package hubserver is the authoritative remote store: versioned pet
// snapshots in SQLite, optimistic-concurrency writes, and per-owner
// change fan-out over websockets. It exists so the engine can run end to
// end against a real collaborator, including from other open sessions.
package hubserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/pwillett/critter/internal/quest"
	"github.com/pwillett/critter/internal/remote"
	"github.com/pwillett/critter/internal/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS owners (
	owner_id TEXT PRIMARY KEY,
	version  INTEGER NOT NULL,
	data     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	action     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// starterCoins seeds a brand-new owner's wallet.
const starterCoins = 100

// Hub serves the remote-store protocol over HTTP and websockets.
type Hub struct {
	db       *sql.DB
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes to the connection
}

// Open creates (or reopens) the hub database at path and prepares the
// schema. Use ":memory:" for tests.
func Open(path string) (*Hub, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Hub{
		db:   db,
		subs: make(map[string]map[*subscriber]struct{}),
	}, nil
}

// Close releases the database.
func (h *Hub) Close() error {
	return h.db.Close()
}

// Handler returns the hub's HTTP routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/state", h.handleFetch)
	mux.HandleFunc("POST /v1/state", h.handlePush)
	mux.HandleFunc("POST /v1/wallet/credit", h.handleCredit)
	mux.HandleFunc("POST /v1/wallet/debit", h.handleDebit)
	mux.HandleFunc("POST /v1/interactions", h.handleInteraction)
	mux.HandleFunc("GET /v1/subscribe", h.handleSubscribe)
	return mux
}

// loadOwner reads an owner's snapshot, seeding a starter pet, wallet, and
// daily quest set the first time an owner appears.
func (h *Hub) loadOwner(ownerID string) (state.Data, int64, error) {
	var (
		version int64
		blob    string
	)
	err := h.db.QueryRow(`SELECT version, data FROM owners WHERE owner_id = ?`, ownerID).
		Scan(&version, &blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		data := state.Data{
			Pet:    state.NewPet(ownerID, uuid.NewString(), "Scout", "gecko"),
			Wallet: state.Wallet{Coins: starterCoins},
			Quests: quest.DefaultDailyQuests(),
		}
		if err := h.saveOwner(ownerID, data, 1); err != nil {
			return state.Data{}, 0, err
		}
		slog.Info("hub: seeded new owner", "owner", ownerID)
		return data, 1, nil
	case err != nil:
		return state.Data{}, 0, fmt.Errorf("load owner: %w", err)
	}

	var data state.Data
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return state.Data{}, 0, fmt.Errorf("decode owner %s: %w", ownerID, err)
	}
	return data, version, nil
}

func (h *Hub) saveOwner(ownerID string, data state.Data, version int64) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode owner: %w", err)
	}
	_, err = h.db.Exec(`
		INSERT INTO owners (owner_id, version, data) VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET version = excluded.version, data = excluded.data`,
		ownerID, version, blob)
	if err != nil {
		return fmt.Errorf("save owner: %w", err)
	}
	return nil
}

func (h *Hub) handleFetch(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		http.Error(w, "missing owner", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	data, version, err := h.loadOwner(ownerID)
	h.mu.Unlock()
	if err != nil {
		slog.Error("hub: fetch failed", "owner", ownerID, "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, remote.Envelope{
		OwnerID: ownerID,
		PetID:   data.Pet.ID,
		Version: version,
		State:   &data,
	})
}

// handlePush applies a versioned write. The envelope's version must match
// the authoritative version exactly; otherwise the write is rejected and
// the current version returned so the client can re-fetch.
func (h *Hub) handlePush(w http.ResponseWriter, r *http.Request) {
	var env remote.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}
	if env.OwnerID == "" {
		http.Error(w, "missing owner", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	data, version, err := h.loadOwner(env.OwnerID)
	if err != nil {
		slog.Error("hub: push load failed", "owner", env.OwnerID, "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	if env.Version != version {
		slog.Info("hub: rejected stale push", "owner", env.OwnerID,
			"pushed", env.Version, "current", version)
		writeJSON(w, remote.PushResult{Accepted: false, CurrentVersion: version})
		return
	}

	if err := state.ApplyFields(&data, env.Fields); err != nil {
		http.Error(w, fmt.Sprintf("bad fields: %v", err), http.StatusBadRequest)
		return
	}

	version++
	if err := h.saveOwner(env.OwnerID, data, version); err != nil {
		slog.Error("hub: push save failed", "owner", env.OwnerID, "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	h.broadcastLocked(env.OwnerID, remote.Envelope{
		OwnerID: env.OwnerID,
		PetID:   data.Pet.ID,
		Version: version,
		Fields:  env.Fields,
	})

	writeJSON(w, remote.PushResult{Accepted: true, CurrentVersion: version})
}

type walletRequest struct {
	OwnerID string `json:"ownerId"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

func (h *Hub) handleCredit(w http.ResponseWriter, r *http.Request) {
	h.handleWallet(w, r, false)
}

func (h *Hub) handleDebit(w http.ResponseWriter, r *http.Request) {
	h.handleWallet(w, r, true)
}

// handleWallet is the atomic balance primitive used by out-of-session
// reward sources. The balance change bumps the version and fans out like
// any other write, so open sessions pick it up as a change notification.
func (h *Hub) handleWallet(w http.ResponseWriter, r *http.Request, debit bool) {
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" || req.Amount < 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	data, version, err := h.loadOwner(req.OwnerID)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	if debit {
		if data.Wallet.Coins < req.Amount {
			http.Error(w, "insufficient funds", http.StatusConflict)
			return
		}
		data.Wallet.Coins -= req.Amount
	} else {
		data.Wallet.Coins += req.Amount
	}

	version++
	if err := h.saveOwner(req.OwnerID, data, version); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	slog.Info("hub: wallet updated", "owner", req.OwnerID, "debit", debit,
		"amount", req.Amount, "reason", req.Reason, "balance", data.Wallet.Coins)

	coins, err := json.Marshal(data.Wallet.Coins)
	if err == nil {
		h.broadcastLocked(req.OwnerID, remote.Envelope{
			OwnerID: req.OwnerID,
			PetID:   data.Pet.ID,
			Version: version,
			Fields:  map[state.Field]json.RawMessage{state.FieldCoins: coins},
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var rec remote.InteractionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "bad record", http.StatusBadRequest)
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	payload, _ := json.Marshal(rec)
	_, err := h.db.Exec(`
		INSERT OR IGNORE INTO interactions (id, owner_id, action, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.Action, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		slog.Error("hub: interaction insert failed", "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Hub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		http.Error(w, "missing owner", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("hub: upgrade failed", "err", err)
		return
	}

	sub := &subscriber{conn: conn}
	h.mu.Lock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[*subscriber]struct{})
	}
	h.subs[ownerID][sub] = struct{}{}
	h.mu.Unlock()

	slog.Info("hub: subscriber connected", "owner", ownerID)

	// Read loop only detects the close; subscribers never send data.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.removeSubscriber(ownerID, sub)
	slog.Info("hub: subscriber disconnected", "owner", ownerID)
}

func (h *Hub) removeSubscriber(ownerID string, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[ownerID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, ownerID)
		}
	}
	h.mu.Unlock()
	sub.conn.Close()
}

// broadcastLocked fans an envelope out to every subscriber of an owner.
// Callers hold h.mu. A failed write drops that subscriber; the client
// recovers with a re-subscribe plus full fetch.
func (h *Hub) broadcastLocked(ownerID string, env remote.Envelope) {
	for sub := range h.subs[ownerID] {
		sub.mu.Lock()
		err := sub.conn.WriteJSON(env)
		sub.mu.Unlock()
		if err != nil {
			slog.Debug("hub: dropping dead subscriber", "owner", ownerID, "err", err)
			delete(h.subs[ownerID], sub)
			sub.conn.Close()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("hub: response write failed", "err", err)
	}
}
