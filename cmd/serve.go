package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talent-ops/intake-cli/internal/conflict"
	"github.com/talent-ops/intake-cli/internal/schema"
	"github.com/talent-ops/intake-cli/internal/tabular"
	"github.com/talent-ops/intake-cli/internal/workflow"
)

var (
	servePort int
	serveSync bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if serveSync {
			if e.Mirror == nil {
				return eris.New("--sync needs a configured sheets mirror")
			}
			snap, err := e.Mirror.Pull(ctx)
			if err != nil {
				zap.L().Warn("startup pull failed, serving local data", zap.Error(err))
			} else if err := e.Store.Replace(ctx, snap); err != nil {
				return eris.Wrap(err, "replace local table")
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(e.Engine, e.Store),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the JSON API. One route per workflow entry point, plus
// record listing and health.
func newRouter(engine *workflow.Engine, store tabular.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/records", func(w http.ResponseWriter, req *http.Request) {
		snap, err := store.Snapshot(req.Context())
		if err != nil {
			writeError(w, workflow.WrapError(workflow.KindStoreUnavailable, err, "snapshot"))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Text string `json:"text"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, workflow.NewError(workflow.KindValidation, "invalid request body"))
				return
			}
			sess, err := engine.BeginRun(req.Context(), body.Text)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, sess)
		})

		r.Post("/{id}/identity", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, workflow.NewError(workflow.KindValidation, "invalid request body"))
				return
			}
			sess, err := engine.ConfirmIdentity(req.Context(), chi.URLParam(req, "id"), body.Name)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, sess)
		})

		r.Post("/{id}/target", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				RecordID int `json:"record_id"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, workflow.NewError(workflow.KindValidation, "invalid request body"))
				return
			}
			sess, err := engine.ChooseMergeTarget(req.Context(), chi.URLParam(req, "id"), body.RecordID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, sess)
		})

		r.Post("/{id}/schema", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Decisions map[string]schema.Decision `json:"decisions"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, workflow.NewError(workflow.KindValidation, "invalid request body"))
				return
			}
			sess, err := engine.ResolveSchema(req.Context(), chi.URLParam(req, "id"), body.Decisions)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, sess)
		})

		r.Post("/{id}/conflicts", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				FieldName string `json:"field_name"`
				Action    string `json:"action"`
				Value     string `json:"value"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, workflow.NewError(workflow.KindValidation, "invalid request body"))
				return
			}
			sess, err := engine.ResolveConflict(req.Context(), chi.URLParam(req, "id"),
				body.FieldName, conflict.Action(body.Action), body.Value)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, sess)
		})

		r.Post("/{id}/commit", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Force bool `json:"force"`
			}
			// An empty body means a plain commit.
			_ = json.NewDecoder(req.Body).Decode(&body)

			rec, warnings, err := engine.Commit(req.Context(), chi.URLParam(req, "id"), body.Force)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"record":   rec,
				"warnings": warnings,
			})
		})

		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			engine.Sessions().Delete(chi.URLParam(req, "id"))
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError maps workflow error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := workflow.KindOf(err)
	switch kind {
	case workflow.KindValidation:
		status = http.StatusBadRequest
	case workflow.KindSessionNotFound:
		status = http.StatusNotFound
	case workflow.KindInvalidTransition:
		status = http.StatusConflict
	case workflow.KindExtractionFailure:
		status = http.StatusBadGateway
	case workflow.KindStoreUnavailable:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveSync, "sync", false, "pull the sheets mirror into the local table on startup")
	rootCmd.AddCommand(serveCmd)
}
