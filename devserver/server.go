// Package devserver is an in-process GO-Panel backend stub: the REST surface
// the client packages talk to plus the board chat hub, backed by in-memory
// state. It exists for local development and integration tests; production
// clients point at the real deployment instead.
package devserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"gopanel/domain"
)

// Server hosts the dev backend.
type Server struct {
	echo   *echo.Echo
	store  *MemStore
	hub    *Hub
	auth   *Auth
	logger *log.Logger
}

// New assembles the dev server around the given auth. The logger may be nil.
func New(auth *Auth, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	store := NewMemStore()
	s := &Server{
		echo:   echo.New(),
		store:  store,
		hub:    NewHub(store, logger),
		auth:   auth,
		logger: logger,
	}
	s.echo.HideBanner = true
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.register()
	return s
}

// Store exposes the backing state for test seeding.
func (s *Server) Store() *MemStore { return s.store }

// Handler returns the root http handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks serving on addr.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

func (s *Server) register() {
	e := s.echo
	e.GET("/api/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e.GET("/api/tasks", s.getTasks)
	e.POST("/api/tasks", s.postTask)
	e.PATCH("/api/tasks", s.patchTask)
	e.DELETE("/api/tasks", s.deleteTasks)

	e.POST("/api/subtasks", s.postSubtask)
	e.PATCH("/api/subtasks", s.patchSubtask)
	e.DELETE("/api/subtasks", s.deleteSubtask)

	e.GET("/api/boards", s.getBoards)
	e.POST("/api/boards", s.postBoard)
	e.DELETE("/api/boards", s.deleteBoard)
	e.POST("/api/boards/join", s.joinBoard)

	e.GET("/api/chat", s.hub.handleWebSocket(s.auth))
}

func (s *Server) userID(c echo.Context) (string, error) {
	return s.auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
}

func storeStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) getTasks(c echo.Context) error {
	userID, err := s.userID(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	tasks, err := s.store.ListTasks(userID, c.QueryParam("board_id"))
	if err != nil {
		return c.String(storeStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) postTask(c echo.Context) error {
	userID, err := s.userID(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var t domain.Task
	if err := c.Bind(&t); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if t.Title == "" {
		return c.String(http.StatusBadRequest, "title is required")
	}
	created, err := s.store.CreateTask(userID, t)
	if err != nil {
		return c.String(storeStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) patchTask(c echo.Context) error {
	if _, err := s.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	id := c.QueryParam("id")
	if id == "" {
		return c.String(http.StatusBadRequest, "id is required")
	}
	var p domain.TaskPatch
	if err := c.Bind(&p); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	updated, err := s.store.PatchTask(id, p)
	if err != nil {
		return c.String(storeStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

// deleteTasks handles both single delete (?id=) and bulk delete by column
// (?status=&board_id=).
func (s *Server) deleteTasks(c echo.Context) error {
	if _, err := s.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if id := c.QueryParam("id"); id != "" {
		if err := s.store.DeleteTask(id); err != nil {
			return c.String(storeStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "task deleted"})
	}
	status := c.QueryParam("status")
	if status == "" {
		return c.String(http.StatusBadRequest, "id or status is required")
	}
	n := s.store.DeleteTasksByStatus(c.QueryParam("board_id"), status)
	s.logger.WithFields(log.Fields{"status": status, "deleted": n}).Debug("bulk task delete")
	return c.JSON(http.StatusOK, map[string]string{"message": "tasks deleted"})
}

func (s *Server) postSubtask(c echo.Context) error {
	if _, err := s.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var sub domain.Subtask
	if err := c.Bind(&sub); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if sub.TaskID == "" {
		return c.String(http.StatusBadRequest, "task_id is required")
	}
	created, err := s.store.CreateSubtask(sub)
	if err != nil {
		return c.String(storeStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) patchSubtask(c echo.Context) error {
	if _, err := s.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var sub domain.Subtask
	if err := c.Bind(&sub); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if sub.ID == "" {
		sub.ID = c.QueryParam("id")
	}
	if sub.ID == "" {
		return c.String(http.StatusBadRequest, "id is required")
	}
	if err := s.store.UpdateSubtask(sub); err != nil {
		return c.String(storeStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) deleteSubtask(c echo.Context) error {
	if _, err := s.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	id := c.QueryParam("id")
	if id == "" {
		return c.String(http.StatusBadRequest, "id is required")
	}
	if err := s.store.DeleteSubtask(id); err != nil {
		return c.String(storeStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "subtask deleted"})
}

func (s *Server) getBoards(c echo.Context) error {
	userID, err := s.userID(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	return c.JSON(http.StatusOK, s.store.ListBoards(userID))
}

func (s *Server) postBoard(c echo.Context) error {
	userID, err := s.userID(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var b domain.Board
	if err := c.Bind(&b); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if b.Title == "" {
		return c.String(http.StatusBadRequest, "title is required")
	}
	return c.JSON(http.StatusCreated, s.store.CreateBoard(userID, b))
}

func (s *Server) deleteBoard(c echo.Context) error {
	userID, err := s.userID(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	id := c.QueryParam("id")
	if id == "" {
		return c.String(http.StatusBadRequest, "id is required")
	}
	if err := s.store.DeleteBoard(userID, id); err != nil {
		return c.String(storeStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "board deleted"})
}

func (s *Server) joinBoard(c echo.Context) error {
	userID, err := s.userID(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req struct {
		InviteCode string `json:"invite_code"`
	}
	if err := c.Bind(&req); err != nil || req.InviteCode == "" {
		return c.String(http.StatusBadRequest, "invite_code is required")
	}
	board, err := s.store.JoinBoard(userID, req.InviteCode)
	if err != nil {
		return c.String(storeStatus(err), "invalid invite code")
	}
	return c.JSON(http.StatusOK, board)
}
