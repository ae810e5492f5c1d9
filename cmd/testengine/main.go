// testengine starts a stub compute engine for E2E testing. It speaks the
// engine's multipart/camelCase wire protocol and fabricates deterministic
// analysis and run results without any real computation.
// Usage: go run ./cmd/testengine
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func analysisFields(targetCol string) map[string]any {
	if targetCol == "" {
		targetCol = "target"
	}
	return map[string]any{
		"type":            "binary",
		"targetCol":       targetCol,
		"imbalanceRatios": map[string]float64{"0": 0.85, "1": 0.15},
		"anomalies":       []string{"3 rows with missing values"},
		"rowCount":        1000,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "error", err)
	}
}

func handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer file.Close()
	size, err := io.Copy(io.Discard, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "read failed"})
		return
	}

	resp := analysisFields(r.FormValue("targetCol"))
	resp["fileName"] = header.Filename
	resp["storagePath"] = fmt.Sprintf("http://localhost:8000/uploads/%d_%s", time.Now().Unix(), header.Filename)
	resp["sizeBytes"] = size
	writeJSON(w, http.StatusOK, resp)
}

func handleReanalyze(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("fileName") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fileName is required"})
		return
	}
	writeJSON(w, http.StatusOK, analysisFields(r.FormValue("targetCol")))
}

func handleRun(w http.ResponseWriter, r *http.Request) {
	fileName := r.FormValue("fileName")
	if fileName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fileName is required"})
		return
	}
	var config map[string]any
	if err := json.Unmarshal([]byte(r.FormValue("config")), &config); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "config must be JSON"})
		return
	}

	// Simulate pipeline work so in-flight statuses are observable.
	time.Sleep(500 * time.Millisecond)

	writeJSON(w, http.StatusOK, map[string]any{
		"results": map[string]float64{
			"accuracy":        0.91,
			"f1":              0.89,
			"precision":       0.90,
			"recall":          0.88,
			"execTimeSeconds": 0.5,
		},
		"artifacts": map[string]string{
			"processedPath": "processed/" + fileName,
			"balancedPath":  "balanced/" + fileName,
			"modelPath":     "models/" + fileName + ".pkl",
			"reportUrl":     "http://localhost:8000/reports/" + fileName + ".html",
		},
	})
}

func handleSamples(w http.ResponseWriter, r *http.Request) {
	iris := analysisFields("species")
	iris["type"] = "multiclass"
	iris["fileName"] = "iris.csv"
	iris["storagePath"] = "http://localhost:8000/samples/iris.csv"
	iris["sizeBytes"] = 4551

	churn := analysisFields("churned")
	churn["fileName"] = "telecom_churn.csv"
	churn["storagePath"] = "http://localhost:8000/samples/telecom_churn.csv"
	churn["sizeBytes"] = 977501

	writeJSON(w, http.StatusOK, []any{iris, churn})
}

func handleDetails(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"fileName": r.FormValue("fileName"),
		"columns":  []string{"age", "tenure", "charges", "target"},
		"dtypes":   map[string]string{"age": "int64", "tenure": "int64", "charges": "float64", "target": "int64"},
	})
}

func handleEDA(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"fileName": r.FormValue("fileName"),
		"charts": []map[string]string{
			{"kind": "class_distribution", "image": "data:image/png;base64,"},
			{"kind": "correlation_matrix", "image": "data:image/png;base64,"},
		},
	})
}

func main() {
	addr := ":8000"
	if v := os.Getenv("TESTENGINE_LISTEN_ADDR"); v != "" {
		addr = v
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/upload", handleUpload)
	r.Post("/reanalyze", handleReanalyze)
	r.Post("/run", handleRun)
	r.Get("/samples", handleSamples)
	r.Post("/dataset-details", handleDetails)
	r.Post("/perform-eda", handleEDA)

	logger.Info("testengine: starting", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
