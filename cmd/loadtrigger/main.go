// loadtrigger is the HTTP endpoint for Cloud Storage object-finalize events.
// Each event becomes one idempotent BigQuery load job plus an audit row.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/audreydng/glamira-end-to-end-data-pipeline/config"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/logging"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/metrics"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/trigger"
	"github.com/audreydng/glamira-end-to-end-data-pipeline/warehouse"
)

const version = "1.0.0"

func main() {
	logger := logging.NewComponentLogger("loadtrigger", version)

	cfg, err := config.TriggerFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("Configuration error")
		os.Exit(1)
	}

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	m := metrics.New(metrics.Config{
		Enabled: os.Getenv("METRICS_ENABLED") == "true",
		Address: metricsAddr,
	})
	if m.IsEnabled() {
		go func() {
			if err := m.StartServer(metricsAddr); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	ctx := context.Background()
	wh, err := warehouse.New(ctx, cfg.ProjectID, cfg.CredentialsFile)
	if err != nil {
		logger.Error().Err(err).Msg("BigQuery client failed")
		os.Exit(1)
	}
	defer wh.Close()

	handler := trigger.NewHandler(wh, cfg.Trigger, logger, m)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}

		var ev trigger.StorageEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, "bad event payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		if ev.Bucket == "" || ev.Name == "" {
			http.Error(w, "event must carry bucket and name", http.StatusBadRequest)
			return
		}

		res := handler.Handle(r.Context(), ev)

		// Failed loads return 500 so the event delivery is retried; the
		// stable job id keeps the retry from double-loading.
		code := http.StatusOK
		if res.Status == trigger.StatusFailed {
			code = http.StatusInternalServerError
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status": res.Status,
			"reason": res.Reason,
			"table":  res.Table,
			"job_id": res.JobID,
			"rows":   strconv.FormatInt(res.Rows, 10),
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	logger.Info().Str("addr", cfg.ListenAddr).Str("dataset", cfg.Trigger.Dataset).Msg("Load trigger listening")
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		logger.Error().Err(err).Msg("HTTP server stopped")
		os.Exit(1)
	}
}
