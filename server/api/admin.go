package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"layeredge/server/account"
	"layeredge/server/market"
	"layeredge/server/metrics"
	"layeredge/server/srv"
	"layeredge/server/surge"
	"layeredge/server/viral"
	"layeredge/shared/protocol"
)

// Authenticator guards operator endpoints.
type Authenticator interface {
	HandleLogin(w http.ResponseWriter, r *http.Request)
	RequireAuth(next http.Handler) http.Handler
}

type SurgeView struct {
	Active     bool   `json:"active"`
	DurationMs int64  `json:"durationMs"`
	Target     int64  `json:"target"`
	StartedAt  string `json:"startedAt,omitempty"`
	Pending    bool   `json:"pending"`
}

type StatusResponse struct {
	Connections int                   `json:"connections"`
	Sessions    int                   `json:"sessions"`
	Memes       []protocol.MemeStatus `json:"memes"`
	Surge       SurgeView             `json:"surge"`
	Counters    map[string]int64      `json:"counters"`
	Uptime      string                `json:"uptime"`
}

type ViralResponse struct {
	Viral         bool     `json:"viral"`
	MemeID        string   `json:"memeId,omitempty"`
	MemeName      string   `json:"memeName,omitempty"`
	Score         float64  `json:"score"`
	Beneficiaries []string `json:"beneficiaries"`
}

type ToggleResponse struct {
	Changed bool      `json:"changed"`
	Surge   SurgeView `json:"surge"`
}

// Admin exposes operator controls. Every handler that touches game state
// runs its work on the event loop.
type Admin struct {
	Hub      *srv.Hub
	Loop     *srv.Loop
	Accounts *account.Registry
	Market   *market.Market
	Surge    *surge.Scheduler
	Viral    *viral.Engine
	Started  time.Time
	Timeout  time.Duration
}

// Register mounts the admin routes on mux.
func (a *Admin) Register(mux *http.ServeMux, authn Authenticator) {
	mux.HandleFunc("/admin/login", authn.HandleLogin)
	mux.Handle("/admin/status", authn.RequireAuth(http.HandlerFunc(a.HandleStatus)))
	mux.Handle("/admin/surge/start", authn.RequireAuth(http.HandlerFunc(a.HandleSurgeStart)))
	mux.Handle("/admin/surge/end", authn.RequireAuth(http.HandlerFunc(a.HandleSurgeEnd)))
	mux.Handle("/admin/viral/run", authn.RequireAuth(http.HandlerFunc(a.HandleViralRun)))
}

func (a *Admin) do(r *http.Request, fn func()) error {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	return a.Loop.Do(ctx, fn)
}

// HandleStatus handles GET /admin/status
func (a *Admin) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var resp StatusResponse
	err := a.do(r, func() {
		resp.Sessions = a.Accounts.Len()
		resp.Memes = a.Market.SnapshotAll()
		resp.Surge = surgeView(a.Surge.State())
	})
	if err != nil {
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}
	resp.Connections = a.Hub.Online()
	resp.Counters = metrics.Snapshot()
	resp.Uptime = time.Since(a.Started).Round(time.Second).String()
	writeJSON(w, resp)
}

// HandleSurgeStart handles POST /admin/surge/start
func (a *Admin) HandleSurgeStart(w http.ResponseWriter, r *http.Request) {
	a.toggle(w, r, "start", a.Surge.Start)
}

// HandleSurgeEnd handles POST /admin/surge/end
func (a *Admin) HandleSurgeEnd(w http.ResponseWriter, r *http.Request) {
	a.toggle(w, r, "end", a.Surge.End)
}

func (a *Admin) toggle(w http.ResponseWriter, r *http.Request, name string, op func() bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var resp ToggleResponse
	err := a.do(r, func() {
		resp.Changed = op()
		resp.Surge = surgeView(a.Surge.State())
	})
	if err != nil {
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}
	log.Printf("ADMIN: surge %s requested, changed=%v", name, resp.Changed)
	writeJSON(w, resp)
}

// HandleViralRun handles POST /admin/viral/run
func (a *Admin) HandleViralRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var out viral.Outcome
	if err := a.do(r, func() { out = a.Viral.Run() }); err != nil {
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}
	log.Printf("ADMIN: viral cycle run by operator, viral=%v", out.Viral)
	resp := ViralResponse{
		Viral:         out.Viral,
		MemeID:        out.MemeID,
		MemeName:      out.MemeName,
		Score:         out.Score,
		Beneficiaries: out.Beneficiaries,
	}
	if resp.Beneficiaries == nil {
		resp.Beneficiaries = []string{}
	}
	writeJSON(w, resp)
}

func surgeView(s surge.State) SurgeView {
	v := SurgeView{
		Active:     s.Active,
		DurationMs: s.Duration.Milliseconds(),
		Target:     s.Target,
		Pending:    s.Pending,
	}
	if !s.StartedAt.IsZero() {
		v.StartedAt = protocol.Timestamp(s.StartedAt)
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ADMIN: write response: %v", err)
	}
}
