package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/OliveiraNt/kmt/internal/application"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/registry"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/invopop/ctxi18n/i18n"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// mapErrorToHTTPStatus maps the application and domain error taxonomy to a status code.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, application.ErrBrokerNotFound),
		errors.Is(err, application.ErrTopicConfigNotFound),
		errors.Is(err, application.ErrSenderNotFound),
		errors.Is(err, application.ErrListenerNotFound),
		errors.Is(err, application.ErrSessionNotFound),
		errors.Is(err, domain.ErrUnknownTopic),
		errors.Is(err, registry.ErrNotConnected):
		return http.StatusNotFound
	case errors.Is(err, application.ErrInvalidBrokerConfig),
		errors.Is(err, application.ErrInvalidTopicName),
		errors.Is(err, application.ErrInvalidPartitionCount),
		errors.Is(err, application.ErrInvalidReplicationFactor),
		errors.Is(err, application.ErrWrongSessionKind):
		return http.StatusBadRequest
	case domain.IsConnectivity(err):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, application.ErrCoordinatorClosed):
		return http.StatusServiceUnavailable
	case domain.IsProtocol(err),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrSessionNotRunning),
		errors.Is(err, application.ErrTopicDeletionDisabled),
		errors.Is(err, domain.ErrTopicRemoved):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func messageKey(status int) string {
	switch status {
	case http.StatusNotFound:
		return "errors.not_found"
	case http.StatusBadRequest:
		return "errors.invalid"
	case http.StatusBadGateway:
		return "errors.unreachable"
	case http.StatusGatewayTimeout:
		return "errors.timeout"
	case http.StatusServiceUnavailable:
		return "errors.cancelled"
	case http.StatusConflict:
		return "errors.protocol"
	default:
		return "errors.internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, mapErrorToHTTPStatus(err), err)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, errorBody{
		Error:   err.Error(),
		Message: i18n.T(r.Context(), messageKey(status)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Logger.Error("encode response failed", "err", err)
	}
}
