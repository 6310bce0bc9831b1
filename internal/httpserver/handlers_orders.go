package httpserver

import (
	"errors"
	"net/http"

	"github.com/coursepay/server/internal/catalog"
	apierrors "github.com/coursepay/server/internal/errors"
	"github.com/coursepay/server/internal/gateway"
	"github.com/coursepay/server/pkg/responders"
)

type createOrderRequest struct {
	CourseID string `json:"course_id"`
}

// createOrder creates a payment order at the gateway for a catalog course.
// The amount comes from the catalog, never from the request.
func (h handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "Invalid JSON body")
		return
	}
	if req.CourseID == "" {
		apierrors.WriteError(w, apierrors.ErrCodeMissingField, "course_id is required", map[string]interface{}{
			"field": "course_id",
		})
		return
	}

	order, err := h.orders.Create(r.Context(), req.CourseID)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrCourseNotFound):
			apierrors.WriteError(w, apierrors.ErrCodeCourseNotFound, "Unknown course", map[string]interface{}{
				"course_id": req.CourseID,
			})
		case gateway.IsUnavailable(err):
			apierrors.WriteSimpleError(w, apierrors.ErrCodeGatewayUnavailable, "Payment gateway unavailable, please retry")
		default:
			apierrors.WriteSimpleError(w, apierrors.ErrCodeGatewayError, "Failed to create payment order")
		}
		return
	}

	responders.JSON(w, http.StatusCreated, order)
}

// listCourses returns the purchasable course catalog.
func (h handlers) listCourses(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]any{
		"courses": h.catalog.List(),
	})
}
