package http

import (
	"net/http"

	"golang-prediction-engine/internal/engine/dispatch"
	"golang-prediction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ActionRequest is the wire shape of one dispatched operation.
type ActionRequest struct {
	Action  string                    `json:"action"`
	Params  dispatch.Params           `json:"params"`
	Context dispatch.ExecutionContext `json:"context"`
}

// ActionHandler exposes the action dispatcher over HTTP. Every response is
// the uniform envelope with status 200; failures live inside the envelope.
type ActionHandler struct {
	dispatcher *dispatch.Dispatcher
	logger     *logger.Logger
}

// NewActionHandler creates a new ActionHandler.
func NewActionHandler(dispatcher *dispatch.Dispatcher, log *logger.Logger) *ActionHandler {
	return &ActionHandler{dispatcher: dispatcher, logger: log}
}

// RegisterRoutes registers the action routes to the Echo group.
func (h *ActionHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/actions", h.DispatchAction)
	g.GET("/actions", h.ListActions)
}

// DispatchAction decodes one action request and runs it.
func (h *ActionHandler) DispatchAction(c echo.Context) error {
	var req ActionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusOK, dispatch.Fail("INVALID_DATA", "invalid request payload"))
	}
	if req.Action == "" {
		return c.JSON(http.StatusOK, dispatch.Fail("MISSING_ACTION", "parameter \"action\" is required"))
	}

	resp := h.dispatcher.Dispatch(c.Request().Context(), req.Action, req.Params, req.Context)
	if !resp.Success {
		h.logger.Warn("Action failed",
			logger.StringField("action", req.Action),
			logger.StringField("code", resp.Error.Code))
	}
	return c.JSON(http.StatusOK, resp)
}

// ListActions returns the canonical action names.
func (h *ActionHandler) ListActions(c echo.Context) error {
	return c.JSON(http.StatusOK, dispatch.OK(map[string]interface{}{
		"actions": h.dispatcher.SupportedActions(),
	}))
}
