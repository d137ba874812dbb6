package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smc-scanner/internal/bus"
	"smc-scanner/internal/models"
	"smc-scanner/internal/store"
)

func testRouter() (http.Handler, *store.SignalStore, *bus.Bus) {
	s := store.New(time.Hour, nil)
	b := bus.New()
	r := NewRouter(Deps{Store: s, Bus: b})
	return r, s, b
}

func TestGetSignal_NotFoundForUntrackedSymbol(t *testing.T) {
	r, _, _ := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/signals/UNKNOWN", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetSignal_ReturnsStoredSignal(t *testing.T) {
	r, s, _ := testRouter()
	s.Put("NIFTY50", models.InstrumentSignal{Symbol: "NIFTY50", GeneratedAt: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/signals/NIFTY50", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSearchSignals_RequiresQueryParam(t *testing.T) {
	r, _, _ := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/signals/search", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q param, got %d", rec.Code)
	}
}

func TestRescan_ServiceUnavailableWithoutHook(t *testing.T) {
	r, _, _ := testRouter()
	req := httptest.NewRequest(http.MethodPost, "/rescan", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a rescan hook, got %d", rec.Code)
	}
}

func TestRescan_AcceptedWithHook(t *testing.T) {
	s := store.New(time.Hour, nil)
	b := bus.New()
	called := make(chan struct{}, 1)
	r := NewRouter(Deps{Store: s, Bus: b, Rescan: func() { called <- struct{}{} }})

	req := httptest.NewRequest(http.MethodPost, "/rescan", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected rescan hook to be invoked")
	}
}

func TestRecentAlerts_ReturnsPublishedAlerts(t *testing.T) {
	r, _, b := testRouter()
	b.Publish(models.Alert{ID: "a1", Symbol: "X", Type: models.AlertBOSEntry})

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMarkAlertRead_ReturnsNoContent(t *testing.T) {
	r, _, b := testRouter()
	b.Publish(models.Alert{ID: "a1", Symbol: "X"})

	req := httptest.NewRequest(http.MethodPost, "/alerts/a1/read", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestStats_ReportsTrackedSymbolCount(t *testing.T) {
	r, s, _ := testRouter()
	s.Put("A", models.InstrumentSignal{Symbol: "A", GeneratedAt: time.Now()})
	s.Put("B", models.InstrumentSignal{Symbol: "B", GeneratedAt: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStats_BreaksDownByDirectionAndFavorites(t *testing.T) {
	s := store.New(time.Hour, nil)
	s.Put("A", models.InstrumentSignal{Symbol: "A", GeneratedAt: time.Now(), OverallStructure: models.StructureBullish})
	s.Put("B", models.InstrumentSignal{Symbol: "B", GeneratedAt: time.Now(), OverallStructure: models.StructureBearishCHOCH})
	s.Put("C", models.InstrumentSignal{Symbol: "C", GeneratedAt: time.Now(), OverallStructure: models.StructureNeutral})
	b := bus.New()
	r := NewRouter(Deps{Store: s, Bus: b, Favorites: []string{"a"}})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if resp.Total != 3 || resp.Upper != 1 || resp.Lower != 1 || resp.Favorites != 1 {
		t.Fatalf("unexpected stats breakdown: %+v", resp)
	}
}

func TestListSignals_FiltersByDirectionFamily(t *testing.T) {
	s := store.New(time.Hour, nil)
	s.Put("A", models.InstrumentSignal{Symbol: "A", GeneratedAt: time.Now(), OverallStructure: models.StructureBullish})
	s.Put("B", models.InstrumentSignal{Symbol: "B", GeneratedAt: time.Now(), OverallStructure: models.StructureBearish})
	b := bus.New()
	r := NewRouter(Deps{Store: s, Bus: b})

	req := httptest.NewRequest(http.MethodGet, "/signals?direction=upper", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var signals []models.InstrumentSignal
	if err := json.Unmarshal(rec.Body.Bytes(), &signals); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(signals) != 1 || signals[0].Symbol != "A" {
		t.Fatalf("expected direction=upper to match only bullish-family signals, got %+v", signals)
	}
}

func TestSearchSignals_CapsResultsAtTwenty(t *testing.T) {
	s := store.New(time.Hour, nil)
	for i := 0; i < 30; i++ {
		symbol := fmt.Sprintf("SYM%d", i)
		s.Put(symbol, models.InstrumentSignal{Symbol: symbol, GeneratedAt: time.Now()})
	}
	b := bus.New()
	r := NewRouter(Deps{Store: s, Bus: b})

	req := httptest.NewRequest(http.MethodGet, "/signals/search?q=SYM", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var signals []models.InstrumentSignal
	if err := json.Unmarshal(rec.Body.Bytes(), &signals); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(signals) != maxSearchResults {
		t.Fatalf("expected search results capped at %d, got %d", maxSearchResults, len(signals))
	}
}
