package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"notion-helper/lib/batch"
	"notion-helper/lib/telemetry"
	"notion-helper/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "The port to listen on, overrides server.port.")
	rootCmd.AddCommand(serveCmd)
}

type jobResponse struct {
	Job       string   `json:"job"`
	Accepted  bool     `json:"accepted,omitempty"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

// jobHandler runs a job by the {name} path value. Unknown names get a 404
// before anything runs. With ?async=1 it answers 202 immediately and runs
// the job on background, which outlives the request.
func jobHandler(background context.Context, known func(name string) bool, run runFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if !known(name) {
			err := fmt.Errorf("%w: %q", errUnknownJob, name)
			writeJSON(w, http.StatusNotFound, jobResponse{Job: name, Errors: []string{err.Error()}})
			return
		}

		if r.URL.Query().Get("async") == "1" {
			go func() {
				report, err := run(background, name)
				if err != nil {
					slog.ErrorContext(background, "background job failed", "job", name, "err", err)
					return
				}
				slog.InfoContext(background, "background job finished",
					"job", name,
					"succeeded", report.Succeeded,
					"failed", len(report.Failures),
				)
			}()
			writeJSON(w, http.StatusAccepted, jobResponse{Job: name, Accepted: true})
			return
		}

		report, err := run(r.Context(), name)
		if errors.Is(err, errUnknownJob) {
			writeJSON(w, http.StatusNotFound, jobResponse{Job: name, Errors: []string{err.Error()}})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, jobResponse{Job: name, Errors: []string{err.Error()}})
			return
		}
		writeJSON(w, http.StatusOK, reportResponse(name, report))
	}
}

func reportResponse(name string, report batch.Report) jobResponse {
	res := jobResponse{
		Job:       name,
		Succeeded: report.Succeeded,
		Failed:    len(report.Failures),
	}
	for _, f := range report.Failures {
		res.Errors = append(res.Errors, f.ID+": "+f.Err.Error())
	}
	return res
}

func newMux(background context.Context, jobs jobRunner, accessToken string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /jobs/sync/{name}", jobHandler(background, jobs.HasSync, jobs.RunSync))
	mux.Handle("POST /jobs/daily/{name}", jobHandler(background, jobs.HasDaily, jobs.RunDaily))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return serviceutil.RequireBearer(accessToken, mux)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--port <port>]",
	Short: "Serves an http api that triggers sync and daily jobs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		port := servePort
		if port == 0 {
			port = state.cfg.Server.Port
		}
		if port == 0 {
			port = 8089
		}
		if state.cfg.Server.PerfStats {
			telemetry.InstrumentPerfStats(ctx, 30*time.Second)
		}
		return serviceutil.StartHttpServer(ctx, port, newMux(ctx, state, state.cfg.Server.AccessToken))
	},
}
