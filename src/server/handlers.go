package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"github.com/fjr-software/flinkbot-bot/src/model"
	"github.com/fjr-software/flinkbot-bot/src/processor"
)

type supervisor interface {
	Snapshot() []processor.Status
	TimeExecution() time.Duration
	CloseProcess(botID uint, symbol string, force bool)
	CloseAllProcess(force bool)
}

type logTailer interface {
	FindSince(ctx context.Context, botID uint, afterID uint, limit int) ([]model.BotLog, error)
}

// StatusHandler returns a handler that reports every tracked worker.
func StatusHandler(sup supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			Workers       []processor.Status `json:"workers"`
			TimeExecution string             `json:"time_execution"`
		}{
			Workers:       sup.Snapshot(),
			TimeExecution: sup.TimeExecution().String(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.WithError(err).Error("failed to encode status response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

type closeRequest struct {
	BotID  uint   `json:"bot_id"`
	Symbol string `json:"symbol"`
	Force  bool   `json:"force"`
}

// CloseProcessHandler returns a handler that requests one worker to stop.
func CloseProcessHandler(sup supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request closeRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if request.BotID == 0 || request.Symbol == "" {
			http.Error(w, "bot_id and symbol are required", http.StatusBadRequest)
			return
		}

		sup.CloseProcess(request.BotID, request.Symbol, request.Force)
		w.WriteHeader(http.StatusAccepted)
	}
}

// CloseAllProcessHandler returns a handler that requests every worker to stop.
func CloseAllProcessHandler(sup supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Force bool `json:"force"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		sup.CloseAllProcess(request.Force)
		w.WriteHeader(http.StatusAccepted)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LogStreamHandler returns a websocket handler that tails one bot's log
// records, pushing each new record as a JSON message.
func LogStreamHandler(logs logTailer, poll time.Duration) http.HandlerFunc {
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		botID64, err := strconv.ParseUint(r.URL.Query().Get("bot"), 10, 64)
		if err != nil || botID64 == 0 {
			http.Error(w, "invalid bot", http.StatusBadRequest)
			return
		}
		botID := uint(botID64)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Error("log stream upgrade failed")
			return
		}
		defer conn.Close()

		// Drain client frames so close frames are handled.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(poll)
		defer ticker.Stop()

		var lastID uint
		for {
			entries, err := logs.FindSince(r.Context(), botID, lastID, 100)
			if err != nil {
				return
			}

			for _, entry := range entries {
				if err := conn.WriteJSON(entry); err != nil {
					return
				}
				lastID = entry.ID
			}

			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
	}
}
