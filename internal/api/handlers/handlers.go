package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akovalev/expenso/internal/api/middleware"
	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/extract"
	"github.com/akovalev/expenso/internal/gcsupload"
	"github.com/akovalev/expenso/internal/jobs"
	"github.com/akovalev/expenso/internal/media"
	"github.com/akovalev/expenso/internal/pipeline"
	"github.com/akovalev/expenso/internal/store"
)

// maxUploadBytes caps the multipart body one notch above the media size
// ceiling so oversize files reach the pipeline and fail with a clean
// validation error rather than a connection reset.
const maxUploadBytes = media.MaxFileSizeBytes + 1*1024*1024

// PipelineRunner runs one extraction end to end.
type PipelineRunner interface {
	Run(ctx context.Context, raw media.RawMedia, kind media.Kind, userID string) (domain.DraftTransaction, error)
}

// ExtractHandler handles receipt and voice extraction endpoints.
type ExtractHandler struct {
	runner    PipelineRunner
	publisher jobs.Publisher
	jobStore  jobs.JobStore
	log       zerolog.Logger
}

// NewExtractHandler creates a new extraction handler.
func NewExtractHandler(runner PipelineRunner, publisher jobs.Publisher, jobStore jobs.JobStore, log zerolog.Logger) *ExtractHandler {
	return &ExtractHandler{
		runner:    runner,
		publisher: publisher,
		jobStore:  jobStore,
		log:       log,
	}
}

// ExtractReceipt handles POST /api/extract/receipt
func (h *ExtractHandler) ExtractReceipt(w http.ResponseWriter, r *http.Request) {
	h.extract(w, r, media.KindImage)
}

// ExtractVoice handles POST /api/extract/voice
func (h *ExtractHandler) ExtractVoice(w http.ResponseWriter, r *http.Request) {
	h.extract(w, r, media.KindAudio)
}

func (h *ExtractHandler) extract(w http.ResponseWriter, r *http.Request, kind media.Kind) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	raw, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	draft, err := h.runner.Run(ctx, raw, kind, userID)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, draft)
}

// EnqueueExtraction handles POST /api/extract/jobs
func (h *ExtractHandler) EnqueueExtraction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	kind := media.KindImage
	if r.URL.Query().Get("kind") == string(media.KindAudio) {
		kind = media.KindAudio
	}

	raw, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	job := &jobs.ExtractionJob{
		UserID:  userID,
		Kind:    kind,
		Payload: raw,
	}

	if err := h.publisher.PublishExtraction(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue extraction job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue extraction job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("kind", string(kind)).Msg("Extraction job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/extract/jobs/{id}
func (h *ExtractHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.jobStore.GetJob(ctx, jobID)
	if err != nil || job.UserID != middleware.UserID(ctx) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/extract/jobs
func (h *ExtractHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: middleware.UserID(ctx),
		Status: jobs.JobStatus(query.Get("status")),
	}
	filter.Limit, filter.Offset = parsePage(query.Get("limit"), query.Get("offset"))

	list, err := h.jobStore.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// readUpload pulls the "file" part out of the multipart body.
func (h *ExtractHandler) readUpload(w http.ResponseWriter, r *http.Request) (media.RawMedia, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart body")
		return media.RawMedia{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "A file part named \"file\" is required")
		return media.RawMedia{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return media.RawMedia{}, false
	}

	return media.RawMedia{
		Data:     data,
		MIMEType: strings.ToLower(header.Header.Get("Content-Type")),
	}, true
}

// writePipelineError maps pipeline failures onto HTTP status codes. The
// caller can fix 4xx responses; 502 means an upstream dependency failed.
func writePipelineError(w http.ResponseWriter, err error) {
	var verr *media.ValidationError
	if errors.As(err, &verr) {
		middleware.WriteError(w, http.StatusBadRequest, verr.Error())
		return
	}
	if errors.Is(err, pipeline.ErrNoTransactionDetected) {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "No transaction detected")
		return
	}
	var cerr *media.ConversionError
	var perr *media.CompressionError
	if errors.As(err, &cerr) || errors.As(err, &perr) {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "File could not be processed")
		return
	}
	var uerr *gcsupload.UploadError
	var ierr *extract.InferenceError
	if errors.As(err, &uerr) || errors.As(err, &ierr) {
		middleware.WriteError(w, http.StatusBadGateway, "Extraction failed, please retry")
		return
	}
	middleware.WriteError(w, http.StatusInternalServerError, "Extraction failed")
}

// CategoriesHandler handles category-related endpoints.
type CategoriesHandler struct {
	store store.CategoryStore
	log   zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(s store.CategoryStore, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{store: s, log: log}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	categories, err := h.store.ListCategories(ctx, middleware.UserID(ctx))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// CreateCategory handles POST /api/categories
func (h *CategoriesHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Name is required")
		return
	}

	category := domain.Category{
		ID:    uuid.New().String(),
		Name:  req.Name,
		Color: req.Color,
	}
	if err := h.store.CreateCategory(ctx, middleware.UserID(ctx), category); err != nil {
		h.log.Error().Err(err).Msg("Failed to create category")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create category")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, category)
}

// DeleteCategory handles DELETE /api/categories/{id}
func (h *CategoriesHandler) DeleteCategory(w http.ResponseWriter, r *http.Request, categoryID string) {
	ctx := r.Context()

	// The fallback category anchors unresolved extractions and is never
	// deletable.
	if categoryID == domain.FallbackCategoryID {
		middleware.WriteError(w, http.StatusBadRequest, "The general category cannot be deleted")
		return
	}

	if err := h.store.DeleteCategory(ctx, middleware.UserID(ctx), categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Category not found")
			return
		}
		h.log.Error().Err(err).Msg("Failed to delete category")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete category")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store store.TransactionStore
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(s store.TransactionStore, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: s, log: log}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, offset := parsePage(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if limit == 0 {
		limit = 50
	}

	transactions, err := h.store.ListTransactions(ctx, middleware.UserID(ctx), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// CreateTransaction handles POST /api/transactions
// The body is the confirmed draft from a prior extraction, possibly edited.
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var draft domain.DraftTransaction
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(draft.Name) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if !draft.PaymentType.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "Unknown payment type")
		return
	}

	tx := &domain.Transaction{
		ID:          uuid.New().String(),
		UserID:      middleware.UserID(ctx),
		Name:        draft.Name,
		Description: draft.Description,
		Amount:      draft.Amount,
		Date:        draft.Date,
		ReceiptURL:  draft.ReceiptURL,
		CategoryID:  draft.CategoryID,
		PaymentType: draft.PaymentType,
		CreatedTS:   time.Now(),
	}
	if err := h.store.InsertTransaction(ctx, tx); err != nil {
		h.log.Error().Err(err).Msg("Failed to insert transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, transactionID string) {
	ctx := r.Context()

	if err := h.store.DeleteTransaction(ctx, middleware.UserID(ctx), transactionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Msg("Failed to delete transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete transaction")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SummarizeTransactions handles GET /api/transactions/summary
func (h *TransactionsHandler) SummarizeTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	now := civil.DateOf(time.Now())
	from := civil.Date{Year: now.Year, Month: now.Month, Day: 1}
	to := now

	var err error
	if s := query.Get("from"); s != "" {
		if from, err = civil.ParseDate(s); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid from date")
			return
		}
	}
	if s := query.Get("to"); s != "" {
		if to, err = civil.ParseDate(s); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid to date")
			return
		}
	}

	summary, err := h.store.SummarizeByCategory(ctx, middleware.UserID(ctx), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to summarize transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to summarize transactions")
		return
	}

	if summary == nil {
		summary = []domain.CategorySummary{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"from":    from.String(),
		"to":      to.String(),
		"summary": summary,
	})
}

// SettingsHandler handles user settings endpoints.
type SettingsHandler struct {
	store store.CurrencyStore
	log   zerolog.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(s store.CurrencyStore, log zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{store: s, log: log}
}

// GetCurrency handles GET /api/settings/currency
func (h *SettingsHandler) GetCurrency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	setting, err := h.store.GetCurrencySetting(ctx, middleware.UserID(ctx))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get currency setting")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get currency setting")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, setting)
}

// PutCurrency handles PUT /api/settings/currency
func (h *SettingsHandler) PutCurrency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var setting domain.CurrencySetting
	if err := json.NewDecoder(r.Body).Decode(&setting); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(setting.Currency) != 3 {
		middleware.WriteError(w, http.StatusBadRequest, "Currency must be a 3-letter ISO code")
		return
	}
	setting.Currency = strings.ToUpper(setting.Currency)

	if err := h.store.SetCurrencySetting(ctx, middleware.UserID(ctx), setting); err != nil {
		h.log.Error().Err(err).Msg("Failed to set currency setting")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to set currency setting")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, setting)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parsePage(limitStr, offsetStr string) (limit, offset int) {
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}
	if offsetStr != "" {
		if n, err := strconv.Atoi(offsetStr); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}
