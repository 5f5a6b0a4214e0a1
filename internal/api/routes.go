// Package api exposes the HTTP surface: the processing trigger, lecture
// retrieval and deletion, and a websocket stream of processing status.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"lectura/domain/entities"
	"lectura/domain/repositories"
	"lectura/internal/auth"
	"lectura/internal/events"
	"lectura/internal/pipeline"
)

// Processor runs the lecture processing pipeline for a session.
type Processor interface {
	Process(ctx context.Context, userID, sessionID string) error
}

// Deps carries the handler dependencies.
type Deps struct {
	Processor Processor
	Lectures  repositories.LectureRepository
	Objects   repositories.ObjectStore
	Bus       *events.Bus
	Verifier  *auth.Verifier
	Logger    *zap.Logger
}

type handlers struct {
	Deps
	upgrader websocket.Upgrader
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Deps) {
	h := &handlers{
		Deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "lectura-server",
		})
	})

	v1 := e.Group("/api/v1")
	v1.POST("/process", h.process)
	v1.GET("/lectures/:id", h.getLecture)
	v1.DELETE("/lectures/:id", h.deleteLecture)
	v1.GET("/lectures/:id/watch", h.watchLecture)
}

// process triggers the full pipeline for an uploaded session and responds
// when it finishes.
func (h *handlers) process(c echo.Context) error {
	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.SessionID == "" || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "sessionId and userId required"})
	}
	if err := h.authorize(c, req.UserID); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	}

	err := h.Processor.Process(c.Request().Context(), req.UserID, req.SessionID)
	if err != nil {
		if errors.Is(err, pipeline.ErrProcessingInFlight) {
			return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, ProcessResponse{
		Success:   true,
		SessionID: req.SessionID,
		Status:    string(entities.LectureStatusCompleted),
	})
}

func (h *handlers) getLecture(c echo.Context) error {
	sessionID := c.Param("id")
	userID := c.QueryParam("userId")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId required"})
	}
	if err := h.authorize(c, userID); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	}

	lecture, err := h.Lectures.Get(c.Request().Context(), userID, sessionID)
	if err != nil {
		h.Logger.Error("lecture lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "lecture lookup failed"})
	}
	if lecture == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "lecture not found"})
	}
	return c.JSON(http.StatusOK, lecture)
}

// deleteLecture removes the lecture record and every uploaded chunk.
func (h *handlers) deleteLecture(c echo.Context) error {
	sessionID := c.Param("id")
	userID := c.QueryParam("userId")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId required"})
	}
	if err := h.authorize(c, userID); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	}

	ctx := c.Request().Context()
	if err := h.Lectures.Delete(ctx, userID, sessionID); err != nil {
		h.Logger.Error("lecture deletion failed", zap.String("session_id", sessionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "lecture deletion failed"})
	}
	if err := h.Objects.DeletePrefix(ctx, entities.SessionPrefix(userID, sessionID)); err != nil {
		h.Logger.Error("chunk deletion failed", zap.String("session_id", sessionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "chunk deletion failed"})
	}

	return c.JSON(http.StatusOK, DeleteResponse{Success: true, SessionID: sessionID})
}

// watchLecture streams processing status updates for a session over a
// websocket until the client disconnects or processing reaches a terminal
// status.
func (h *handlers) watchLecture(c echo.Context) error {
	sessionID := c.Param("id")
	userID := c.QueryParam("userId")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId required"})
	}
	if err := h.authorize(c, userID); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	}

	updates, cancel := h.Bus.Subscribe(sessionID)
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Replay the current status so late subscribers see where processing
	// stands.
	if lecture, err := h.Lectures.Get(c.Request().Context(), userID, sessionID); err == nil && lecture != nil {
		if err := conn.WriteJSON(events.StatusUpdate{
			UserID:    userID,
			SessionID: sessionID,
			Status:    lecture.Status,
			Error:     lecture.Error,
		}); err != nil {
			return nil
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := conn.WriteJSON(update); err != nil {
				return nil
			}
			if update.Status == entities.LectureStatusCompleted || update.Status == entities.LectureStatusFailed {
				return nil
			}
		}
	}
}

// authorize checks the bearer token against the acting user. With no
// verifier configured all requests pass.
func (h *handlers) authorize(c echo.Context, userID string) error {
	token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	return h.Verifier.VerifyForUser(strings.TrimSpace(token), userID)
}
