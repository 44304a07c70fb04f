package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgard/ohirun/internal/commands"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(t *testing.T, db Pinger) *Server {
	t.Helper()

	reg, err := commands.NewRegistry(commands.Command{
		Name:        "ohiru",
		Description: "お昼を決めます",
		Handler:     func(context.Context, *commands.Invocation, commands.Responder) error { return nil },
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	s := New(":0", db, reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "database down", err: errors.New("database is closed"), wantStatus: http.StatusServiceUnavailable, wantBody: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			newTestServer(t, fakePinger{err: tt.err}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON body: %v", err)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("status field = %q, want %q", body["status"], tt.wantBody)
			}
		})
	}
}

func TestCommands(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t, fakePinger{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/commands", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []commandInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(got) != 1 || got[0].Name != "ohiru" || got[0].Usage != "/ohiru" {
		t.Errorf("commands = %+v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, fakePinger{})
	s.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
