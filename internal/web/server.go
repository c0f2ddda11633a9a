package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"deadreckon/internal/eventlog"
	"deadreckon/internal/failsafe"
)

// StatusFunc returns the current failsafe snapshot.
type StatusFunc func() failsafe.Snapshot

// Handler serves the ground-station API: current failsafe status, the live
// tick feed over WebSocket and the persisted event journal.
func Handler(status StatusFunc, feed *Feed, events *eventlog.Store) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		b, err := json.MarshalIndent(status(), "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	if feed != nil {
		mux.Handle("/api/feed", feed.Handler())
	}

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if events == nil {
			http.Error(w, "event log unavailable", http.StatusNotFound)
			return
		}
		session := r.URL.Query().Get("session")
		if session == "" {
			session = events.SessionID()
		}
		rows, err := events.Events(r.Context(), session)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		type eventJSON struct {
			At        string `json:"at_utc"`
			Kind      string `json:"kind"`
			StageFrom string `json:"stage_from,omitempty"`
			StageTo   string `json:"stage_to,omitempty"`
			Mode      string `json:"mode,omitempty"`
			Detail    string `json:"detail,omitempty"`
		}
		resp := struct {
			Session string      `json:"session"`
			Events  []eventJSON `json:"events"`
		}{Session: session, Events: make([]eventJSON, 0, len(rows))}
		for _, row := range rows {
			resp.Events = append(resp.Events, eventJSON{
				At:        row.At.UTC().Format(time.RFC3339Nano),
				Kind:      row.Kind,
				StageFrom: row.StageFrom,
				StageTo:   row.StageTo,
				Mode:      row.Mode,
				Detail:    row.Detail,
			})
		}

		b, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	return mux
}

// Serve runs the API server until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, status StatusFunc, feed *Feed, events *eventlog.Store) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status, feed, events),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
