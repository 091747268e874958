package board_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BearBump/DelayBoard/internal/models"
	"github.com/BearBump/DelayBoard/internal/services/pipeline"
	"github.com/BearBump/DelayBoard/internal/services/snapshots"
	"github.com/BearBump/DelayBoard/internal/stores"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/pkg/errors"
)

type Refresher interface {
	Refresh(ctx context.Context, accountID string) (*models.Snapshot, error)
	Stage(accountID string) pipeline.Stage
	Accounts() []string
	HasAccount(id string) bool
}

type SnapshotReader interface {
	Get(ctx context.Context, accountID string) (*models.Snapshot, error)
}

// DefaultRefreshTimeout bounds a refresh started over REST.
const DefaultRefreshTimeout = 2 * time.Minute

// BoardAPI serves the delay board over REST. Refreshes of one account never
// overlap; a second request while one runs gets 409.
type BoardAPI struct {
	orch      Refresher
	snapshots SnapshotReader
	directory *stores.Directory

	refreshTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(orch Refresher, snaps SnapshotReader, directory *stores.Directory) *BoardAPI {
	return &BoardAPI{
		orch:      orch,
		snapshots: snaps,
		directory: directory,
		locks:     make(map[string]*sync.Mutex),

		refreshTimeout: DefaultRefreshTimeout,
	}
}

// WithRefreshTimeout bounds each refresh. Zero keeps the default.
func (a *BoardAPI) WithRefreshTimeout(d time.Duration) *BoardAPI {
	if d > 0 {
		a.refreshTimeout = d
	}
	return a
}

// Register adds every route to mux.
func (a *BoardAPI) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, path string
		h            runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/accounts", a.listAccounts},
		{http.MethodGet, "/v1/stores", a.listStores},
		{http.MethodPost, "/v1/accounts/{account}/refresh", a.refresh},
		{http.MethodGet, "/v1/accounts/{account}/snapshot", a.snapshot},
		{http.MethodGet, "/v1/accounts/{account}/orders", a.orders},
		{http.MethodGet, "/v1/accounts/{account}/unresolved", a.unresolved},
		{http.MethodGet, "/v1/accounts/{account}/uninvoiced-micro", a.uninvoicedMicro},
		{http.MethodGet, "/v1/accounts/{account}/stage", a.stage},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.path, rt.h); err != nil {
			return errors.Wrapf(err, "register %s %s", rt.method, rt.path)
		}
	}
	return nil
}

type accountView struct {
	ID    string         `json:"id"`
	Stage pipeline.Stage `json:"stage"`
}

func (a *BoardAPI) listAccounts(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	out := make([]accountView, 0)
	for _, id := range a.orch.Accounts() {
		out = append(out, accountView{ID: id, Stage: a.orch.Stage(id)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

type storeView struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (a *BoardAPI) listStores(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	out := make([]storeView, 0, a.directory.Len())
	for _, code := range a.directory.Codes() {
		name, ok := a.directory.Lookup(code)
		if !ok {
			continue
		}
		out = append(out, storeView{Code: code, Name: name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": out})
}

func (a *BoardAPI) refresh(w http.ResponseWriter, r *http.Request, p map[string]string) {
	account := p["account"]
	if !a.orch.HasAccount(account) {
		writeError(w, http.StatusNotFound, pipeline.ErrUnknownAccount.Error())
		return
	}
	mu := a.lockFor(account)
	if !mu.TryLock() {
		writeError(w, http.StatusConflict, "refresh already running")
		return
	}
	defer mu.Unlock()

	// A dropped client must not abort a half-written snapshot.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), a.refreshTimeout)
	defer cancel()

	snap, err := a.orch.Refresh(ctx, account)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownAccount) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *BoardAPI) lockFor(account string) *sync.Mutex {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()
	mu, ok := a.locks[account]
	if !ok {
		mu = &sync.Mutex{}
		a.locks[account] = mu
	}
	return mu
}

// load writes the error response itself and returns nil when the snapshot
// cannot be served.
func (a *BoardAPI) load(w http.ResponseWriter, r *http.Request, account string) *models.Snapshot {
	if !a.orch.HasAccount(account) {
		writeError(w, http.StatusNotFound, pipeline.ErrUnknownAccount.Error())
		return nil
	}
	snap, err := a.snapshots.Get(r.Context(), account)
	switch {
	case errors.Is(err, snapshots.ErrNotFound):
		writeError(w, http.StatusNotFound, "no snapshot yet, refresh first")
		return nil
	case err != nil:
		slog.Error("load snapshot", "account", account, "error", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	return snap
}

func (a *BoardAPI) snapshot(w http.ResponseWriter, r *http.Request, p map[string]string) {
	if snap := a.load(w, r, p["account"]); snap != nil {
		writeJSON(w, http.StatusOK, snap)
	}
}

func (a *BoardAPI) orders(w http.ResponseWriter, r *http.Request, p map[string]string) {
	var bucket *models.Bucket
	if q := r.URL.Query().Get("bucket"); q != "" {
		b, err := models.ParseBucket(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		bucket = &b
	}
	snap := a.load(w, r, p["account"])
	if snap == nil {
		return
	}
	orders := snap.Orders
	if bucket != nil {
		orders = snap.ByBucket(*bucket)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"takenAt": snap.TakenAt,
		"counts":  snap.Counts,
		"orders":  orders,
	})
}

func (a *BoardAPI) unresolved(w http.ResponseWriter, r *http.Request, p map[string]string) {
	if snap := a.load(w, r, p["account"]); snap != nil {
		writeJSON(w, http.StatusOK, map[string]any{"unresolved": snap.Unresolved})
	}
}

func (a *BoardAPI) uninvoicedMicro(w http.ResponseWriter, r *http.Request, p map[string]string) {
	if snap := a.load(w, r, p["account"]); snap != nil {
		writeJSON(w, http.StatusOK, map[string]any{"orders": snap.UninvoicedMicro()})
	}
}

func (a *BoardAPI) stage(w http.ResponseWriter, r *http.Request, p map[string]string) {
	account := p["account"]
	if !a.orch.HasAccount(account) {
		writeError(w, http.StatusNotFound, pipeline.ErrUnknownAccount.Error())
		return
	}
	writeJSON(w, http.StatusOK, accountView{ID: account, Stage: a.orch.Stage(account)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
