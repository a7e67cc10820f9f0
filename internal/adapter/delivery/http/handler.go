package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
)

// throttledRetryAfter is the Retry-After value, in seconds, sent with 503 responses caused by store throttling.
const throttledRetryAfter = "1"

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "pong")
}

type linkUseCase interface {
	Create(ctx context.Context, p usecase.CreateParams) (*entity.Link, error)
	Resolve(ctx context.Context, shortCode string) (string, error)
	Lookup(ctx context.Context, shortCode string) (*entity.Link, error)
	Stats(ctx context.Context, shortCode string) (*entity.Link, error)
}

type linkHandler struct {
	useCase  linkUseCase
	validate *validator.Validate
	baseURL  string
}

func newLinkHandler(useCase linkUseCase, validate *validator.Validate, baseURL string) *linkHandler {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &linkHandler{
		useCase:  useCase,
		validate: validate,
		baseURL:  baseURL,
	}
}

func (h *linkHandler) createLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, emptyRequestBodyResponse)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidRequestBodyResponse)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, validationErrorResponse(err))
		return
	}

	link, err := h.useCase.Create(r.Context(), req.toParams())
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toLinkResponse(link, h.baseURL))
}

func (h *linkHandler) redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	originalURL, err := h.useCase.Resolve(r.Context(), shortCode)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, originalURL, http.StatusMovedPermanently)
}

// checkLink answers HEAD like redirect does, without counting a click.
func (h *linkHandler) checkLink(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	link, err := h.useCase.Lookup(r.Context(), shortCode)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, link.OriginalURL, http.StatusMovedPermanently)
}

func (h *linkHandler) getLinkStats(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	link, err := h.useCase.Stats(r.Context(), shortCode)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toLinkStatsResponse(link))
}

func (h *linkHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidURL):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidURLResponse)
	case errors.Is(err, entity.ErrInvalidCode):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidCodeResponse)
	case errors.Is(err, entity.ErrInvalidTTL):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidTTLResponse)
	case errors.Is(err, entity.ErrCodeTaken):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, codeTakenResponse)
	case errors.Is(err, entity.ErrLinkNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, linkNotFoundResponse)
	case errors.Is(err, entity.ErrLinkExpired):
		render.Status(r, http.StatusGone)
		render.JSON(w, r, linkExpiredResponse)
	case errors.Is(err, entity.ErrThrottled):
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		w.Header().Set("Retry-After", throttledRetryAfter)
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, serviceUnavailableResponse)
	case errors.Is(err, entity.ErrUnavailable):
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, serviceUnavailableResponse)
	default:
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, serverErrorResponse)
	}
}
