package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type executeRequest struct {
	Action     string         `json:"action"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type executeResponse struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/execute", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, executeResponse{Status: "error", Error: "invalid JSON: " + err.Error()})
			return
		}
		if req.Action == "" || req.Target == "" {
			writeJSON(w, executeResponse{Status: "error", Error: "action and target are required"})
			return
		}

		result := map[string]any{
			"action":       req.Action,
			"target":       req.Target,
			"completed_at": time.Now().UTC().Format(time.RFC3339),
		}
		switch req.Action {
		case "scale_up", "scale_down":
			result["replicas"] = req.Parameters["replicas"]
		case "block_ip":
			result["blocked_ip"] = req.Parameters["ip"]
		case "custom_script":
			result["script"] = req.Parameters["script"]
		}
		writeJSON(w, executeResponse{Status: "ok", Result: result})
	})

	logger := log.New(log.Writer(), "executor-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
