package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/reportbot/reportbot/internal/core"
)

// Server receives Slack Events API callbacks and slash commands, plus a local
// admin trigger endpoint for the CLI.
type Server struct {
	addr      string
	collector *Collector
	engine    core.AggregationEngine
	transport Transport
	events    core.EventLogger

	httpServer *http.Server
}

// NewServer creates the inbound event server.
func NewServer(addr string, collector *Collector, engine core.AggregationEngine, transport Transport, events core.EventLogger) *Server {
	return &Server{
		addr:      addr,
		collector: collector,
		engine:    engine,
		transport: transport,
		events:    events,
	}
}

// Run starts the HTTP listener and blocks until ctx is cancelled, then
// drains in-flight handlers.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /slack/events", s.handleEvents)
	mux.HandleFunc("POST /slack/command", s.handleCommand)
	mux.HandleFunc("POST /admin/trigger", s.handleAdminTrigger)
	mux.HandleFunc("POST /admin/start", s.handleAdminStart)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("event server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// eventEnvelope is the Events API outer payload.
type eventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge,omitempty"`
	Event     struct {
		Type     string `json:"type"`
		Channel  string `json:"channel"`
		User     string `json:"user"`
		Text     string `json:"text"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
		BotID    string `json:"bot_id"`
	} `json:"event"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var envelope eventEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, envelope.Challenge)
	case "event_callback":
		if envelope.Event.Type == "message" {
			s.collector.HandleMessage(r.Context(), MessageEvent{
				ChannelID: envelope.Event.Channel,
				UserID:    envelope.Event.User,
				Text:      envelope.Event.Text,
				TS:        envelope.Event.TS,
				ThreadTS:  envelope.Event.ThreadTS,
				BotID:     envelope.Event.BotID,
			})
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// handleCommand serves the slash commands: /trigger_report runs an immediate
// cycle, /start_report opens collection windows. Completion or failure is
// reported back to the invoker as an ephemeral message.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	command := r.FormValue("command")
	channelID := r.FormValue("channel_id")
	userID := r.FormValue("user_id")

	switch command {
	case "/trigger_report":
		// Slash commands must be acknowledged within 3 seconds; the cycle
		// runs in the background and reports via ephemeral message.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			record, err := s.engine.RunCycle(ctx)
			switch {
			case errors.Is(err, core.ErrCycleRunning):
				s.postEphemeral(ctx, channelID, userID, "⚠️ A report cycle is already running.")
			case err != nil:
				s.postEphemeral(ctx, channelID, userID, fmt.Sprintf("❌ Error triggering report: %v", err))
			default:
				s.postEphemeral(ctx, channelID, userID,
					fmt.Sprintf("✅ Report generated: %d contribution(s) across %d team(s).",
						record.TotalContributions, len(record.PerChannel)))
			}
		}()
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "\U0001f504 Report generation triggered...")
	case "/start_report":
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if opened, err := s.collector.StartCollection(ctx); err != nil {
				s.postEphemeral(ctx, channelID, userID, fmt.Sprintf("❌ Error starting collection: %v", err))
			} else {
				s.postEphemeral(ctx, channelID, userID, fmt.Sprintf("✅ Collection started in %d channel(s).", opened))
			}
		}()
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "\U0001f4dd Starting daily report collection...")
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
	}
}

// handleAdminTrigger runs a cycle synchronously for the local CLI.
func (s *Server) handleAdminTrigger(w http.ResponseWriter, r *http.Request) {
	record, err := s.engine.RunCycle(r.Context())
	switch {
	case errors.Is(err, core.ErrCycleRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(record)
	}
}

// handleAdminStart opens collection windows for the local CLI.
func (s *Server) handleAdminStart(w http.ResponseWriter, r *http.Request) {
	opened, err := s.collector.StartCollection(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"opened": opened})
}

func (s *Server) postEphemeral(ctx context.Context, channelID, userID, text string) {
	if err := s.transport.PostEphemeral(ctx, channelID, userID, text); err != nil && s.events != nil {
		s.events.LogEvent("ephemeral.failed", map[string]any{"channel": channelID, "error": err.Error()})
	}
}
