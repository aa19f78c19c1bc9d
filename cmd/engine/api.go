package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"stratify/internal/execution"
	"stratify/internal/logger"
	"stratify/internal/store/sqlite"
	"stratify/internal/types"
)

// api is the minimal operator surface: start, stop, inspect. The
// user-facing application sits elsewhere; this is the engine boundary.
type api struct {
	mgr    *execution.Manager
	store  *sqlite.Store
	router *mux.Router
	srv    *http.Server
}

func newAPI(mgr *execution.Manager, store *sqlite.Store) *api {
	a := &api{mgr: mgr, store: store, router: mux.NewRouter()}

	a.router.HandleFunc("/executions", a.handleCreate).Methods("POST")
	a.router.HandleFunc("/executions/{id}", a.handleGet).Methods("GET")
	a.router.HandleFunc("/executions/{id}/stop", a.handleStop).Methods("POST")
	a.router.HandleFunc("/executions/{id}/trades", a.handleTrades).Methods("GET")

	a.srv = &http.Server{Handler: a.router}
	return a
}

func (a *api) start(addr string) {
	a.srv.Addr = addr
	go func() {
		logger.Info(context.Background(), "api listening", "addr", addr)
		if err := a.srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.ErrorWithErr(context.Background(), "api server error", err)
		}
	}()
}

func (a *api) stop(ctx context.Context) {
	a.srv.Shutdown(ctx)
}

func (a *api) handleCreate(w http.ResponseWriter, r *http.Request) {
	var e types.Execution
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.mgr.Start(r.Context(), &e); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int64{"id": e.ID})
}

func (a *api) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := executionID(w, r)
	if !ok {
		return
	}
	e, err := a.store.GetExecution(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(e)
}

func (a *api) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := executionID(w, r)
	if !ok {
		return
	}
	if err := a.mgr.Stop(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) handleTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := executionID(w, r)
	if !ok {
		return
	}
	trades, err := a.store.ListTrades(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(trades)
}

func executionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "bad execution id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
