package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/service"
	"kanban-api/storage"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	requestBodyMaxSize   = 1 << 20
)

// Services groups the application services the handlers dispatch to.
type Services struct {
	Boards    *service.BoardService
	Columns   *service.ColumnService
	Tasks     *service.TaskService
	BoardData *service.BoardDataService
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/api/me", getMe(auth))

	e.GET("/api/boards", listBoards(svc, auth))
	e.POST("/api/boards", createBoard(svc, auth, deduper))
	e.GET("/api/boards/:id", getBoardView(svc, auth, logger))
	e.PATCH("/api/boards/:id", updateBoard(svc, auth))
	e.DELETE("/api/boards/:id", deleteBoard(svc, auth))
	e.POST("/api/boards/bulk-delete", bulkDeleteBoards(svc, auth))
	e.GET("/api/boards/:id/tasks", listBoardTasks(svc, auth))

	e.POST("/api/boards/:id/columns", createColumn(svc, auth))
	e.PATCH("/api/columns/:id", updateColumn(svc, auth))
	e.DELETE("/api/columns/:id", deleteColumn(svc, auth))

	e.POST("/api/columns/:id/tasks", createTask(svc, auth))
	e.PATCH("/api/tasks/:id", updateTask(svc, auth))
	e.DELETE("/api/tasks/:id", deleteTask(svc, auth))
	e.POST("/api/tasks/:id/move", moveTask(svc, auth))
	e.POST("/api/tasks/reorder", reorderTasks(svc, auth, deduper))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Backend messages are passed through to the client as plain text.
func writeServiceError(c echo.Context, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.String(http.StatusBadRequest, ve.Error())
	}
	if storage.IsNotFound(err) {
		return c.String(http.StatusNotFound, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

func authenticate(c echo.Context, auth Authenticator) (domain.Identity, bool) {
	ident, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		_ = c.String(http.StatusUnauthorized, err.Error())
		return domain.Identity{}, false
	}
	return ident, true
}

// withIdempotency guards a mutating handler with the Idempotency-Key
// header. A replayed key is rejected with 409; when the guarded handler
// ends in a server error the key is released so the client may retry.
func withIdempotency(c echo.Context, deduper Deduper, userID string, next func() error) error {
	key := c.Request().Header.Get(headerIdempotencyKey)
	if key == "" || deduper == nil {
		return next()
	}
	ctx := c.Request().Context()
	added, err := deduper.Add(ctx, userID, key)
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, "idempotency check failed")
	}
	if !added {
		return c.String(http.StatusConflict, "duplicate request")
	}
	handlerErr := next()
	if handlerErr != nil || c.Response().Status >= http.StatusInternalServerError {
		if rerr := deduper.Remove(ctx, userID, key); rerr != nil {
			c.Logger().Errorf("idempotency rollback failed: %v", rerr)
		}
	}
	return handlerErr
}

func getMe(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		return c.JSON(http.StatusOK, ident)
	}
}

func listBoards(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		boards, err := svc.Boards.List(c.Request().Context(), ident.UserID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, boards)
	}
}

type createBoardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

func createBoard(svc Services, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		return withIdempotency(c, deduper, ident.UserID, func() error {
			board, err := svc.BoardData.CreateBoardWithDefaultColumns(
				c.Request().Context(), ident.UserID, req.Title, req.Description, req.Color)
			if err != nil {
				return writeServiceError(c, err)
			}
			return c.JSON(http.StatusCreated, board)
		})
	}
}

func getBoardView(svc Services, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newBoardViewMetrics(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		ident, authErr := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		view, fetchErr := svc.BoardData.GetBoardWithColumns(ctx, ident.UserID, c.Param("id"))
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			if storage.IsNotFound(fetchErr) {
				metrics.SetErrorStage("not_found")
				err = c.String(http.StatusNotFound, fetchErr.Error())
				return err
			}
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetColumnsReturned(len(view.ColumnsWithTasks))
		total := 0
		for _, col := range view.ColumnsWithTasks {
			total += len(col.Tasks)
		}
		metrics.SetTasksReturned(total)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, view)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func updateBoard(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var patch domain.BoardPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		board, err := svc.Boards.Update(c.Request().Context(), ident.UserID, c.Param("id"), patch)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, board)
	}
}

func deleteBoard(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		if err := svc.BoardData.DeleteBoardCascade(c.Request().Context(), ident.UserID, c.Param("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func bulkDeleteBoards(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var req bulkDeleteRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := svc.Boards.BulkDelete(c.Request().Context(), ident.UserID, req.IDs); err != nil {
			return writeServiceError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listBoardTasks(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		tasks, err := svc.Tasks.ListByBoard(c.Request().Context(), ident.UserID, c.Param("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, tasks)
	}
}

type createColumnRequest struct {
	Title     string `json:"title"`
	SortOrder int    `json:"sortOrder"`
}

func createColumn(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var req createColumnRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col, err := svc.Columns.Create(c.Request().Context(), ident.UserID, c.Param("id"), req.Title, req.SortOrder)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusCreated, col)
	}
}

func updateColumn(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var patch domain.ColumnPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col, err := svc.Columns.Update(c.Request().Context(), ident.UserID, c.Param("id"), patch)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, col)
	}
}

func deleteColumn(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		if err := svc.BoardData.DeleteColumnWithTasks(c.Request().Context(), ident.UserID, c.Param("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type createTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Assignee    string          `json:"assignee"`
	DueDate     *time.Time      `json:"dueDate"`
	Priority    domain.Priority `json:"priority"`
	SortOrder   int             `json:"sortOrder"`
}

func createTask(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := svc.Tasks.Create(c.Request().Context(), ident.UserID, c.Param("id"), service.TaskInput{
			Title:       req.Title,
			Description: req.Description,
			Assignee:    req.Assignee,
			DueDate:     req.DueDate,
			Priority:    req.Priority,
			SortOrder:   req.SortOrder,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := svc.Tasks.Update(c.Request().Context(), ident.UserID, c.Param("id"), patch)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		if err := svc.Tasks.Delete(c.Request().Context(), ident.UserID, c.Param("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type moveTaskRequest struct {
	ColumnID  string `json:"columnId"`
	SortOrder int    `json:"sortOrder"`
}

func moveTask(svc Services, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := svc.Tasks.Move(c.Request().Context(), ident.UserID, c.Param("id"), req.ColumnID, req.SortOrder)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func reorderTasks(svc Services, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		moves := make([]domain.TaskMove, 0, 8)
		if err := decodeBody(c, &moves); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		return withIdempotency(c, deduper, ident.UserID, func() error {
			if err := svc.Tasks.UpdateOrder(c.Request().Context(), ident.UserID, moves); err != nil {
				return writeServiceError(c, err)
			}
			return c.NoContent(http.StatusNoContent)
		})
	}
}
