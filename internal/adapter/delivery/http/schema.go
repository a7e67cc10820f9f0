package http

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
)

const statusError = "error"

// createLinkRequest represents the body of a link creation request.
type createLinkRequest struct {
	OriginalURL string `json:"original_url" validate:"required,max=2048,http_url"`
	CustomCode  string `json:"custom_code,omitempty" validate:"omitempty,min=3,max=20"`
	TTLHours    *int   `json:"ttl_hours,omitempty" validate:"omitempty,min=1,max=87600"`
}

func (req createLinkRequest) toParams() usecase.CreateParams {
	p := usecase.CreateParams{
		OriginalURL: req.OriginalURL,
		CustomCode:  req.CustomCode,
	}
	if req.TTLHours != nil {
		p.TTLHours = *req.TTLHours
	}
	return p
}

// linkResponse represents a created (or already existing) link.
type linkResponse struct {
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	ShortURL    string     `json:"short_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func toLinkResponse(link *entity.Link, baseURL string) linkResponse {
	return linkResponse{
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		ShortURL:    baseURL + "/" + link.ShortCode,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
	}
}

// linkStatsResponse represents the click statistics of a link.
type linkStatsResponse struct {
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	ClickCount  uint64     `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CustomCode  bool       `json:"custom_code"`
}

func toLinkStatsResponse(link *entity.Link) linkStatsResponse {
	return linkStatsResponse{
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		ClickCount:  link.ClickCount,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
		CustomCode:  link.CustomCode,
	}
}

type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  []validationError `json:"errors,omitempty"`
}

var (
	emptyRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "empty request body",
	}

	invalidRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "invalid request body",
	}

	invalidURLResponse = errorResponse{
		Status:  statusError,
		Message: "original_url must be an absolute http or https url",
	}

	invalidCodeResponse = errorResponse{
		Status:  statusError,
		Message: "custom_code must be 3-20 characters of letters, digits, '_' or '-' and not a reserved word",
	}

	invalidTTLResponse = errorResponse{
		Status:  statusError,
		Message: "ttl_hours must be a positive number of hours",
	}

	codeTakenResponse = errorResponse{
		Status:  statusError,
		Message: "custom_code is already taken",
	}

	linkNotFoundResponse = errorResponse{
		Status:  statusError,
		Message: "link not found",
	}

	linkExpiredResponse = errorResponse{
		Status:  statusError,
		Message: "link has expired",
	}

	serviceUnavailableResponse = errorResponse{
		Status:  statusError,
		Message: "service temporarily unavailable, retry later",
	}

	serverErrorResponse = errorResponse{
		Status:  statusError,
		Message: "server error occurred",
	}
)

func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "http_url":
		return "must be an absolute http or https url"
	case "min":
		return "value is too small or too short"
	case "max":
		return "value is too large or too long"
	default:
		return "invalid value"
	}
}

func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	errs, ok := err.(validator.ValidationErrors)
	if ok {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

// validationErrorResponse constructs an errorResponse for validation errors.
func validationErrorResponse(err error) errorResponse {
	return errorResponse{
		Status:  statusError,
		Message: "validation error",
		Errors:  getValidationErrors(err),
	}
}
