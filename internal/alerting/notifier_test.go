package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testNote() Notification {
	return Notification{
		RunID:          "run-1",
		EvaluatedAt:    time.Now(),
		PolicyName:     "ota",
		Evaluated:      10,
		TierCounts:     map[string]int{"L1": 6, "Restricted": 4},
		GrossValue:     decimal.NewFromInt(1000),
		ImpactedValue:  decimal.NewFromInt(760),
		ImpactDeltaPct: decimal.NewFromInt(-24),
		ThresholdPct:   decimal.NewFromInt(5),
		RestrictedPct:  decimal.NewFromInt(40),
		MaxRestricted:  decimal.NewFromInt(20),
		Reasons:        []string{"restricted share 40.00% exceeds 20.00%"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	text := received["text"]
	for _, want := range []string{"Policy: ota", "Impact: -24.00%", "L1=6 Restricted=4", "restricted share"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message should contain %q:\n%s", want, text)
		}
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("ok=false should be reported as an error")
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("non-2xx status should be reported as an error")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
