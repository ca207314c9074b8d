// Package ledgertest provides an in-process ledger sync server for tests.
package ledgertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/ledger"
)

// Server is a fake ledger server holding budgets in memory. Pushed
// changesets are applied, so a later snapshot sees earlier pushes.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	password  string
	keys      map[string]string
	budgets   map[string]*ledger.Snapshot
	tokens    map[string]bool
	unhealthy bool

	snapshotKeys []string
	pushes       []ledger.Changeset
}

// NewServer starts a server. password, when set, is required by login and
// every budget request needs the resulting token.
func NewServer(password string) *Server {
	s := &Server{
		password: password,
		keys:     map[string]string{},
		budgets:  map[string]*ledger.Snapshot{},
		tokens:   map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /account/login", s.login)
	mux.HandleFunc("GET /budgets/{id}/snapshot", s.snapshot)
	mux.HandleFunc("POST /budgets/{id}/changes", s.changes)
	s.Server = httptest.NewServer(mux)
	return s
}

// AddBudget stores a budget. encryptionKey, when set, must accompany every
// snapshot request; when empty, a request that sends a key is refused.
func (s *Server) AddBudget(snap ledger.Snapshot, encryptionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := snap
	s.budgets[snap.BudgetID] = &cp
	s.keys[snap.BudgetID] = encryptionKey
}

// Budget returns a copy of a stored budget.
func (s *Server) Budget(id string) (ledger.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok {
		return ledger.Snapshot{}, false
	}
	return copySnapshot(b), true
}

// SetHealthy toggles the health endpoint.
func (s *Server) SetHealthy(ok bool) {
	s.mu.Lock()
	s.unhealthy = !ok
	s.mu.Unlock()
}

// SnapshotKeys returns the encryption key sent with each snapshot request.
func (s *Server) SnapshotKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.snapshotKeys...)
}

// Pushes returns every changeset received.
func (s *Server) Pushes() []ledger.Changeset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Changeset(nil), s.pushes...)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	unhealthy := s.unhealthy
	s.mu.Unlock()
	if unhealthy {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "")
		return
	}
	writeOK(w, map[string]string{"status": "healthy"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad-request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.password != "" && req.Password != s.password {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid password")
		return
	}
	token := fmt.Sprintf("token-%d", len(s.tokens)+1)
	s.tokens[token] = true
	writeOK(w, map[string]string{"token": token})
}

func (s *Server) authorised(r *http.Request) bool {
	return s.password == "" || s.tokens[r.Header.Get("X-Ledger-Token")]
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := r.Header.Get("X-Ledger-Encryption-Key")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotKeys = append(s.snapshotKeys, key)

	if !s.authorised(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "token required")
		return
	}
	b, ok := s.budgets[id]
	if !ok {
		writeError(w, http.StatusNotFound, "file-not-found", "budget "+id+" does not exist")
		return
	}
	want := s.keys[id]
	switch {
	case want == "" && key != "":
		writeError(w, http.StatusBadRequest, "invalid-key", "budget is not encrypted")
		return
	case want != "" && key == "":
		writeError(w, http.StatusBadRequest, "missing-key", "budget is encrypted")
		return
	case want != "" && key != want:
		writeError(w, http.StatusBadRequest, "decrypt-failure", "wrong key")
		return
	}
	writeOK(w, copySnapshot(b))
}

func (s *Server) changes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var cs ledger.Changeset
	if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
		writeError(w, http.StatusBadRequest, "bad-request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorised(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "token required")
		return
	}
	b, ok := s.budgets[id]
	if !ok {
		writeError(w, http.StatusNotFound, "file-not-found", "budget "+id+" does not exist")
		return
	}

	s.pushes = append(s.pushes, cs)
	b.Accounts = append(b.Accounts, cs.Accounts...)
	for _, g := range cs.Groups {
		b.Groups = append(b.Groups, domain.CategoryGroup{ID: g.ID, Name: g.Name})
	}
	for _, c := range cs.Categories {
		for i := range b.Groups {
			if b.Groups[i].ID == c.GroupID {
				b.Groups[i].Categories = append(b.Groups[i].Categories, c)
			}
		}
	}
	for _, t := range cs.Transactions {
		if t.Op == ledger.OpUpdate {
			for i := range b.Transactions {
				if b.Transactions[i].ID == t.ID {
					b.Transactions[i] = t.Transaction
				}
			}
			continue
		}
		b.Transactions = append(b.Transactions, t.Transaction)
	}

	writeOK(w, ledger.PushResult{Applied: cs.Size()})
}

func copySnapshot(b *ledger.Snapshot) ledger.Snapshot {
	out := ledger.Snapshot{
		BudgetID:     b.BudgetID,
		Accounts:     append([]domain.LedgerAccount(nil), b.Accounts...),
		Transactions: append([]ledger.Transaction(nil), b.Transactions...),
	}
	for _, g := range b.Groups {
		g.Categories = append([]domain.Category(nil), g.Categories...)
		out.Groups = append(out.Groups, g)
	}
	return out
}

func writeOK(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "data": data})
}

func writeError(w http.ResponseWriter, status int, reason, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "reason": reason, "details": details})
}
