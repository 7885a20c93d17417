package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	appanalysis "github.com/bryanwahyu/fusioncloud/internal/application/analysis"
	"github.com/bryanwahyu/fusioncloud/internal/config"
	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
	"github.com/bryanwahyu/fusioncloud/internal/middleware"
)

// Prober reports which credentials are missing. *config.Config implements it.
type Prober interface {
	Probe() config.Probe
}

// Options tune the router. Zero values disable rate limiting and use a 1 MiB body limit.
type Options struct {
	AllowedOrigins  []string
	MaxBodyBytes    int64
	RateLimit       int
	RateLimitRefill int
	Checkers        map[string]middleware.HealthChecker
}

type Router struct {
	svc     *appanalysis.Service
	prober  Prober
	log     zerolog.Logger
	maxBody int64
}

func NewRouter(svc *appanalysis.Service, prober Prober, log zerolog.Logger, opts Options) http.Handler {
	r := &Router{svc: svc, prober: prober, log: log, maxBody: opts.MaxBodyBytes}
	if r.maxBody <= 0 {
		r.maxBody = 1 << 20
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestLogger(log))
	mux.Use(middleware.MetricsMiddleware)

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/api", func(rt chi.Router) {
		rt.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		rt.Use(middleware.RateLimitMiddleware(opts.RateLimit, opts.RateLimitRefill))

		rt.Post("/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/check-env", r.wrap(r.handleCheckEnv))
		rt.Post("/notify", r.wrap(r.handleNotify))
		rt.Post("/slack", r.wrap(r.handleNotify))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps pipeline errors onto status codes and an {error, details} body.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(w, req.Body, r.maxBody)
		err := h(w, req)
		if err == nil {
			return
		}

		var tooLarge *http.MaxBytesError
		var notifyErr *domain.NotificationError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
		case errors.Is(err, domain.ErrInvalidDocument):
			writeError(w, http.StatusBadRequest, "invalid document", err)
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, "validation failed", err)
		case domain.IsAnalyzerFailure(err):
			writeError(w, http.StatusBadGateway, "analysis failed", err)
		case errors.Is(err, domain.ErrSinkNotConfigured):
			writeError(w, http.StatusInternalServerError, "webhook not configured", err)
		case errors.As(err, &notifyErr):
			writeError(w, http.StatusBadGateway, "notification failed", err)
		default:
			r.log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
			writeError(w, http.StatusInternalServerError, "internal error", err)
		}
	}
}

// POST /api/analyze
// JSON: {"logText": "...", "sendNotification": true}
// multipart: file=<json document>, sendNotification=true
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	payload, notify, err := r.readAnalyzeRequest(req)
	if err != nil {
		return err
	}
	request, err := domain.NewRequest(payload, notify)
	if err != nil {
		return err
	}

	middleware.IncrementAnalyses()
	middleware.IncrementAnalysesRunning()
	out, err := r.svc.Analyze(req.Context(), request)
	middleware.DecrementAnalysesRunning()
	if err != nil {
		return err
	}
	if out.Cause != nil {
		middleware.IncrementFallbacks()
	}
	if out.NotificationRequested {
		middleware.RecordNotification(out.NotifyErr)
	}

	resp := resultBody(out.Result)
	if payload.FileName != "" {
		resp["fileName"] = payload.FileName
	}
	if out.NotificationRequested {
		resp["notified"] = out.Notified
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (r *Router) readAnalyzeRequest(req *http.Request) (domain.Payload, bool, error) {
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.readUpload(req)
	}

	var body struct {
		LogText          *string `json:"logText"`
		SendNotification bool    `json:"sendNotification"`
		SendToSlack      bool    `json:"sendToSlack"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Payload{}, false, err
		}
		return domain.Payload{}, false, fmt.Errorf("%w: malformed request body: %v", domain.ErrValidation, err)
	}
	if body.LogText == nil {
		return domain.Payload{}, false, fmt.Errorf("%w: logText is required", domain.ErrValidation)
	}
	return domain.FromText(*body.LogText), body.SendNotification || body.SendToSlack, nil
}

// readUpload handles the document upload form. A plain logText field is
// accepted when no file is attached.
func (r *Router) readUpload(req *http.Request) (domain.Payload, bool, error) {
	if err := req.ParseMultipartForm(r.maxBody); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Payload{}, false, err
		}
		return domain.Payload{}, false, fmt.Errorf("%w: malformed form: %v", domain.ErrValidation, err)
	}
	notify := formBool(req.FormValue("sendNotification")) || formBool(req.FormValue("sendToSlack"))

	file, header, err := req.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return domain.FromText(req.FormValue("logText")), notify, nil
	}
	if err != nil {
		return domain.Payload{}, false, fmt.Errorf("%w: read file: %v", domain.ErrValidation, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Payload{}, false, fmt.Errorf("%w: read file: %v", domain.ErrValidation, err)
	}
	p, err := domain.FromDocument(middleware.SanitizeFileName(header.Filename), data)
	return p, notify, err
}

func formBool(v string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b || strings.EqualFold(strings.TrimSpace(v), "on")
}

// resultBody renders a result. Structured analyzer output is passed through,
// with threatLevel, timestamp and cveExcerpt filled in only when missing.
func resultBody(res domain.Result) map[string]any {
	if res.Structured != nil {
		body := make(map[string]any, len(res.Structured)+3)
		for k, v := range res.Structured {
			body[k] = v
		}
		if _, ok := body["threatLevel"]; !ok {
			body["threatLevel"] = res.ThreatLevel
		}
		if _, ok := body["timestamp"]; !ok {
			body["timestamp"] = res.Timestamp
		}
		if _, ok := body["cveExcerpt"]; !ok {
			body["cveExcerpt"] = res.CVEExcerpt
		}
		return body
	}

	body := map[string]any{
		"analysis":    res.Narrative,
		"threatLevel": res.ThreatLevel,
		"timestamp":   res.Timestamp,
		"cveExcerpt":  res.CVEExcerpt,
	}
	if res.Synthetic {
		body["synthetic"] = true
	}
	return body
}

// GET /api/check-env
func (r *Router) handleCheckEnv(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, r.prober.Probe())
}

// POST /api/notify (and /api/slack)
// Body: {"message": "..."}
func (r *Router) handleNotify(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrValidation, err)
	}
	if err := middleware.ValidateMessage(body.Message); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	err := r.svc.Relay(req.Context(), body.Message)
	middleware.RecordNotification(err)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	writeJSON(w, status, map[string]string{
		"error":   msg,
		"details": err.Error(),
	})
}
