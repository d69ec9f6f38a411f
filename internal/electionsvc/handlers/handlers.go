package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/electionday-services/internal/electionsvc/formats"
	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/service"
)

const maxUploadMemory = 32 << 20

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	imports   *service.ImportService
	results   *service.ResultService
	gatherer  prometheus.Gatherer
}

func NewHandler(imports *service.ImportService, results *service.ResultService, gatherer prometheus.Gatherer) *Handler {
	return &Handler{imports: imports, results: results, gatherer: gatherer}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

// errorResponse maps service errors to status codes.
func (h *Handler) errorResponse(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrUnknownPrincipal):
		code = http.StatusForbidden
	case errors.Is(err, service.ErrUnknownFormat), errors.Is(err, service.ErrInvalid):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	h.CreateResponse(w, Response{Message: http.StatusText(code), Code: code, Error: err.Error()})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "election service is running at port " + os.Getenv("ELECTION_SERVICE_PORT"),
		Code:    http.StatusOK,
	})
}

// principalID reads the principal claim of the verified token.
func principalID(r *http.Request) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", err
	}
	id, _ := claims["principal"].(string)
	if id == "" {
		return "", fmt.Errorf("%w: token without principal claim", service.ErrUnknownPrincipal)
	}
	return id, nil
}

func (h *Handler) UploadVoteHandler(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.imports.ImportVote)
}

func (h *Handler) UploadElectionHandler(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.imports.ImportElection)
}

type importFunc func(ctx context.Context, req service.ImportRequest) ([]formats.FileImportError, error)

func (h *Handler) upload(w http.ResponseWriter, r *http.Request, run importFunc) {
	principal, err := principalID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.CreateResponse(w, Response{Message: "invalid upload", Code: http.StatusBadRequest, Error: err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	ignoreExtra, _ := strconv.ParseBool(r.FormValue("ignore_extra"))
	req := service.ImportRequest{
		Principal:   principal,
		ID:          chi.URLParam(r, "id"),
		Format:      r.FormValue("format"),
		Number:      r.FormValue("number"),
		District:    r.FormValue("district"),
		IgnoreExtra: ignoreExtra,
		Files:       map[string]formats.Upload{},
	}

	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			h.CreateResponse(w, Response{Message: "invalid upload", Code: http.StatusBadRequest, Error: err.Error()})
			return
		}
		opened = append(opened, f)
		req.Files[name] = formats.Upload{Body: f, Mimetype: headers[0].Header.Get("Content-Type")}
	}

	errs, err := run(r.Context(), req)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	if len(errs) > 0 {
		h.CreateResponse(w, Response{
			Message: "the import failed",
			Code:    http.StatusUnprocessableEntity,
			Data:    errs,
			Error:   fmt.Sprintf("%d errors found", len(errs)),
		})
		return
	}

	log.Infof("%s imported %s results for %s", principal, req.Format, req.ID)
	h.CreateResponse(w, Response{Message: "results imported", Code: http.StatusOK})
}

func (h *Handler) CreateVoteHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := principalID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	var def service.VoteDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.CreateResponse(w, Response{Message: "invalid request body", Code: http.StatusBadRequest, Error: err.Error()})
		return
	}
	vote, err := h.results.CreateVote(r.Context(), principal, def)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "vote created", Code: http.StatusCreated, Data: vote})
}

func (h *Handler) CreateElectionHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := principalID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	var def service.ElectionDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		h.CreateResponse(w, Response{Message: "invalid request body", Code: http.StatusBadRequest, Error: err.Error()})
		return
	}
	election, err := h.results.CreateElection(r.Context(), principal, def)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "election created", Code: http.StatusCreated, Data: election})
}

func (h *Handler) SummariesHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := principalID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	summaries, err := h.results.Summaries(r.Context(), principal)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: summaries})
}

func (h *Handler) VoteSummaryHandler(w http.ResponseWriter, r *http.Request) {
	h.summary(w, r, models.KindVote)
}

func (h *Handler) ElectionSummaryHandler(w http.ResponseWriter, r *http.Request) {
	h.summary(w, r, models.KindElection)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request, kind string) {
	principal, err := principalID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	summary, err := h.results.Summary(r.Context(), principal, kind, chi.URLParam(r, "id"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: summary})
}

func (h *Handler) VoteExportHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := principalID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	rows, err := h.results.VoteExport(r.Context(), principal, chi.URLParam(r, "id"))
	h.export(w, r, rows, err)
}

func (h *Handler) ElectionExportHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := principalID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	rows, err := h.results.ElectionExport(r.Context(), principal, chi.URLParam(r, "id"))
	h.export(w, r, rows, err)
}

// export writes the rows as JSON, or as CSV with ?format=csv.
func (h *Handler) export(w http.ResponseWriter, r *http.Request, rows []models.Row, err error) {
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	if r.URL.Query().Get("format") != "csv" {
		h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: rows})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+chi.URLParam(r, "id")+`.csv"`)
	w.WriteHeader(http.StatusOK)

	out := csv.NewWriter(w)
	if len(rows) > 0 {
		keys := rows[0].Keys()
		out.Write(keys)
		for _, row := range rows {
			record := make([]string, len(keys))
			for i, key := range keys {
				if v, ok := row.Get(key); ok {
					record[i] = csvValue(v)
				}
			}
			out.Write(record)
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		log.Errorf("failed to write csv export: %v", err)
	}
}

func csvValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case *int:
		if v == nil {
			return ""
		}
		return strconv.Itoa(*v)
	case *string:
		if v == nil {
			return ""
		}
		return *v
	}
	return fmt.Sprint(v)
}
