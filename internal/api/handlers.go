package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"pulsecoach/internal/models"
	"pulsecoach/internal/whoop"
)

const linkedPage = `<!DOCTYPE html>
<html>
<head><title>WHOOP Linked</title></head>
<body>
<h1>WHOOP authorization successful!</h1>
<p>Your account is now linked. You can close this page and return to Telegram.</p>
</body>
</html>`

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("PulseCoach up and running.", nil))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// whoopCallbackHandler receives the browser redirect from WHOOP, exchanges the
// code, and tells the user on Telegram. It is the only endpoint rendered for a
// human, so failures come back as plain text rather than JSON.
func (s *Server) whoopCallbackHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.whoopCallbackHandler: processing callback", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.whoopCallbackHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		slog.Warn("Server.whoopCallbackHandler: missing code or state")
		http.Error(w, "Missing code or state parameter.", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), whoop.DefaultTimeout)
	defer cancel()
	userID, err := s.oauth.CompleteLink(ctx, code, state)
	if err != nil {
		switch whoop.KindOf(err) {
		case whoop.KindInvalidState:
			slog.Warn("Server.whoopCallbackHandler: invalid state", "error", err)
			http.Error(w, "Invalid or expired state. Cannot link WHOOP account.", http.StatusBadRequest)
		default:
			slog.Error("Server.whoopCallbackHandler: link failed", "error", err)
			http.Error(w, "Failed to exchange token with WHOOP.", http.StatusBadGateway)
		}
		return
	}

	// The link already succeeded; a missed notification is not worth a retry
	// from the browser.
	if err := s.notifier.NotifyLinked(userID); err != nil {
		slog.Warn("Server.whoopCallbackHandler: notification failed", "error", err, "userID", userID)
	}

	slog.Info("Server.whoopCallbackHandler: account linked", "userID", userID)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, linkedPage)
}

func (s *Server) updateHealthDataHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.updateHealthDataHandler: processing sweep request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.updateHealthDataHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.syncer.Today()
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()
	report, err := s.syncer.SyncAll(ctx, date)
	if err != nil {
		slog.Error("Server.updateHealthDataHandler: sweep failed", "error", err, "date", date)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update health data"))
		return
	}

	slog.Info("Server.updateHealthDataHandler: sweep complete", "date", date,
		"total", report.Total, "synced", report.Synced, "failed", report.Failed)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Health data update completed", report))
}

func (s *Server) checkInHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.checkInHandler: processing check-in request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.checkInHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()
	if err := s.checkIn.CheckInAll(ctx); err != nil {
		slog.Error("Server.checkInHandler: sweep failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to run check-in"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Proactive check completed", nil))
}
