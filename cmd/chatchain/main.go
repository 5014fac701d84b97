package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"chatchain/internal/config"
	"chatchain/internal/conversation"
	"chatchain/internal/history"
	"chatchain/internal/logger"
	"chatchain/internal/models"
	"chatchain/internal/tools"

	"github.com/google/uuid"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	model, err := models.NewChatOpenAI(cfg.LLM)
	if err != nil {
		logger.L.Error("failed to configure chat model", "error", err)
		os.Exit(1)
	}

	store := history.Open(cfg.History.DBPath)
	defer store.Close()

	registry := tools.Connect(context.Background(), cfg.MCPServers)
	defer registry.Close()

	runner := conversation.New(model, registry, store, cfg.LLM)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Input == "" {
			http.Error(w, "input is required", http.StatusBadRequest)
			return
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}
		logger.L.Info("chat request", "session_id", req.SessionID)

		reply, err := runner.Run(r.Context(), req.SessionID, req.Input)
		if err != nil {
			logger.L.Error("chat turn failed", "session_id", req.SessionID, "error", err)
			http.Error(w, "failed to process request", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(chatResponse{SessionID: req.SessionID, Reply: reply}); err != nil {
			logger.L.Warn("failed to write response", "error", err)
		}
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.L.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
