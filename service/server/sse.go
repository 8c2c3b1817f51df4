package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/tokensmith/service/metrics"
	natspkg "github.com/brojonat/tokensmith/service/nats"
)

// sseKeepaliveInterval is how often a comment line is written to idle streams.
var sseKeepaliveInterval = 10 * time.Second

// handleStreamSubmissions handles SSE streaming of submission events.
// GET /api/v1/stream/submissions?wallet={address}
// Without a wallet filter every submission is streamed.
func handleStreamSubmissions(subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.URL.Query().Get("wallet")
		walletDesc := "all wallets"
		if wallet != "" {
			if err := validateAddress(wallet); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			walletDesc = wallet
		}

		events, err := subscriber.Subscribe(r.Context(), wallet)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to subscribe to submissions",
				"wallet", walletDesc,
				"error", err,
			)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		// Streams outlive the server's write timeout.
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
			logger.DebugContext(r.Context(), "could not clear write deadline", "error", err)
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flush := func() {
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}

		m.RecordSSEConnectionChange(1)
		defer m.RecordSSEConnectionChange(-1)

		logger.DebugContext(r.Context(), "SSE client connected",
			"wallet", walletDesc,
			"remote_addr", r.RemoteAddr,
		)

		// Send initial connection event
		connected, _ := json.Marshal(map[string]string{"wallet": walletDesc})
		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
		flush()

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal event", "error", err)
					continue
				}

				fmt.Fprintf(w, "event: submission\ndata: %s\n\n", data)
				flush()
				m.RecordSSEEventSent("submission")

				logger.DebugContext(r.Context(), "sent submission event",
					"wallet", event.WalletAddress,
					"signature", event.Signature,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"wallet", walletDesc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
