package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"stratify/internal/execution"
	"stratify/internal/store/sqlite"
	"stratify/internal/types"
)

func testAPI(t *testing.T) (*api, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	mgr := execution.NewManager(store, store, nil, nil, nil, nil, execution.Options{})
	return newAPI(mgr, store), store
}

func seedExecution(t *testing.T, store *sqlite.Store) *types.Execution {
	t.Helper()
	e := &types.Execution{
		Kind: types.KindBacktest, Symbol: "BTC/USDT", Timeframe: "1h",
		Leverage: 1, InitialTradableValue: 1000, Running: true,
		StartTs: 1, EndTs: 2,
	}
	if err := store.CreateExecution(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestGetExecutionRoute(t *testing.T) {
	a, store := testAPI(t)
	e := seedExecution(t, store)

	req := httptest.NewRequest(http.MethodGet, "/executions/"+itoa(e.ID), nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var got types.Execution
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != e.ID || got.Symbol != "BTC/USDT" {
		t.Errorf("execution: got %+v", got)
	}
}

func TestTradesRoute(t *testing.T) {
	a, store := testAPI(t)
	e := seedExecution(t, store)
	trades := []types.Trade{
		{ID: 1, Type: types.OrderMarket, Side: types.SideBuy, Price: 100, Amount: 1},
		{ID: 2, Type: types.OrderMarket, Side: types.SideSell, Price: 110, Amount: 1},
	}
	if err := store.AppendTrades(context.Background(), e.ID, trades); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/executions/"+itoa(e.ID)+"/trades", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got []types.Trade
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Side != types.SideBuy || got[1].Side != types.SideSell {
		t.Errorf("trades: got %+v", got)
	}
}

func TestStopRoute(t *testing.T) {
	a, store := testAPI(t)
	e := seedExecution(t, store)

	req := httptest.NewRequest(http.MethodPost, "/executions/"+itoa(e.ID)+"/stop", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	running, err := store.IsRunning(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if running {
		t.Error("execution still flagged as running after stop")
	}
}

func TestBadExecutionID(t *testing.T) {
	a, _ := testAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/executions/nope", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestMethodMismatch(t *testing.T) {
	a, store := testAPI(t)
	e := seedExecution(t, store)

	req := httptest.NewRequest(http.MethodPost, "/executions/"+itoa(e.ID)+"/trades", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
