package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/AngelCh415/dealpipe/internal/catalog"
	"github.com/AngelCh415/dealpipe/internal/dashboard"
	"github.com/AngelCh415/dealpipe/internal/metrics"
	"github.com/AngelCh415/dealpipe/internal/models"
	"github.com/AngelCh415/dealpipe/internal/utils"
	"github.com/AngelCh415/dealpipe/internal/workflow"
)

type Deps struct {
	Log            *slog.Logger
	Dashboards     *dashboard.Service
	Actions        *workflow.Actions
	Catalog        *catalog.Catalog
	Metrics        *metrics.Metrics
	AllowedOrigins []string
}

// workflowRequest is the payload a CRM workflow posts to an action.
type workflowRequest struct {
	PropertiesToSend workflow.Input `json:"propertiesToSend"`
}

type workflowResponse struct {
	OutputFields workflow.Result `json:"outputFields"`
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log, d.Metrics))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", utils.RequestIDHeader},
		ExposedHeaders: []string{utils.RequestIDHeader},
		MaxAge:         300,
	}))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) })
	mux.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	mux.Get("/catalog", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Catalog.Tables())
	})

	mux.Get("/dashboards/{view}", func(w http.ResponseWriter, r *http.Request) {
		view, ok := dashboard.ParseView(chi.URLParam(r, "view"))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown dashboard")
			return
		}
		today := d.Dashboards.Today()
		if q := r.URL.Query().Get("today"); q != "" {
			t, err := time.Parse(models.DateLayout, q)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad today (YYYY-MM-DD)")
				return
			}
			today = models.DateOf(t)
		}
		report, err := d.Dashboards.Build(r.Context(), view, today)
		if err != nil {
			var fe *dashboard.FetchError
			if errors.As(err, &fe) {
				writeError(w, http.StatusBadGateway, fe.Message)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, report)
	})

	mux.Post("/workflows/follow-up-task", workflowHandler(d.Actions.FollowUpTask))
	mux.Post("/workflows/reengagement-deal", workflowHandler(d.Actions.ReengagementDeal))

	return mux
}

func workflowHandler(run func(ctx context.Context, in workflow.Input) workflow.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workflowRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if req.PropertiesToSend.DealID == "" {
			writeError(w, http.StatusBadRequest, "propertiesToSend.hs_object_id required")
			return
		}
		// el resultado lleva su propio status; HTTP siempre 200
		writeJSON(w, workflowResponse{OutputFields: run(r.Context(), req.PropertiesToSend)})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, map[string]string{"error": msg})
}
