package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	"github.com/bookden/library-service/library/internal/errs"
	"github.com/bookden/library-service/library/internal/model"
	"github.com/bookden/library-service/pkg/auth"
	md "github.com/bookden/library-service/pkg/middleware"
	"github.com/bookden/library-service/pkg/validate"
	_ "github.com/bookden/library-service/swagger"
)

type Handler struct {
	borrowSvc     BorrowService
	catalogSvc    CatalogService
	membershipSvc MembershipService
	enqueuer      Enqueuer
	log           *zap.Logger
}

func New(borrowSvc BorrowService, catalogSvc CatalogService, membershipSvc MembershipService, enqueuer Enqueuer, log *zap.Logger) *Handler {
	return &Handler{
		borrowSvc:     borrowSvc,
		catalogSvc:    catalogSvc,
		membershipSvc: membershipSvc,
		enqueuer:      enqueuer,
		log:           log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.HTTPErrorHandler = httpErrorHandler(e)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.POST("/users/signup", h.Register)
	api.POST("/users/login", h.Login)
	api.GET("/books", h.ListBooks)
	api.GET("/books/:bookId", h.GetBook)

	authed := api.Group("", md.JwtAuthentication)
	authed.GET("/users/session/validate", h.SessionValidate)
	authed.PUT("/users/:userId", h.UpdateUser)
	authed.DELETE("/users/:userId", h.DeleteUser)

	readers := authed.Group("", md.RequireRole(string(model.RoleReader)))
	readers.POST("/books/borrow", h.Borrow)
	readers.POST("/books/return", h.Return)
	readers.GET("/readers/:userId/books", h.MyBooks)

	authors := authed.Group("", md.RequireRole(string(model.RoleAuthor)))
	authors.POST("/books", h.CreateBook)
	authors.PUT("/books/:bookId", h.UpdateBook)
	authors.DELETE("/books/:bookId", h.DeleteBook)
	authors.GET("/authors/:authorId/books", h.AuthorBooks)
	authors.GET("/books/:bookId/history", h.BookHistory)

	admins := authed.Group("", md.RequireRole(string(model.RoleAdmin)))
	admins.PATCH("/books/:bookId/discontinued", h.SetDiscontinued)

	return e
}

// httpErrorHandler keeps echo's status mapping but renders every failure
// as {"status":"fail","message":...}.
func httpErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		message := err.Error()
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			code = httpErr.Code
			if msg, ok := httpErr.Message.(string); ok {
				message = msg
			}
		}
		if c.Request().Method == http.MethodHead {
			if err := c.NoContent(code); err != nil {
				e.Logger.Error(err)
			}
			return
		}
		if err := c.JSON(code, echo.Map{"status": "fail", "message": message}); err != nil {
			e.Logger.Error(err)
		}
	}
}

// httpError maps the error taxonomy to status codes: absent entities 404,
// ownership 403, credentials 401, business-rule and concurrency conflicts 409.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errs.IsConflict(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) Register(c echo.Context) error {
	var req model.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if !req.PasswordOK() {
		return echo.NewHTTPError(http.StatusBadRequest,
			"password must contain at least one uppercase letter, one lowercase letter, one number, and one special character")
	}

	resp, err := h.membershipSvc.Register(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c echo.Context) error {
	var req model.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	resp, err := h.membershipSvc.Login(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SessionValidate(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := h.membershipSvc.GetUser(ctx, auth.UserID(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateUser(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userId")
	if userID != auth.UserID(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "you can only update your own account")
	}
	type updateRequest struct {
		Name  string `json:"name" validate:"omitempty,max=50"`
		Email string `json:"email" validate:"omitempty,email"`
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.membershipSvc.UpdateUser(ctx, userID, req.Name, req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userId")
	if userID != auth.UserID(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "you can only delete your own account")
	}
	if err := h.membershipSvc.DeleteUser(ctx, userID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Borrow(c echo.Context) error {
	var req model.BorrowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID := auth.UserID(ctx)

	resp, err := h.borrowSvc.Borrow(ctx, userID, req.BookID)
	if err != nil {
		return httpError(err)
	}

	h.publish(model.BorrowEvent{
		BookID:     req.BookID,
		UserID:     userID,
		Action:     model.ActionBorrow,
		DueDate:    &resp.DueDate,
		OccurredAt: time.Now().UTC(),
	})
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Return(c echo.Context) error {
	var req model.BorrowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID := auth.UserID(ctx)

	if err := h.borrowSvc.Return(ctx, userID, req.BookID); err != nil {
		return httpError(err)
	}

	h.publish(model.BorrowEvent{
		BookID:     req.BookID,
		UserID:     userID,
		Action:     model.ActionReturn,
		OccurredAt: time.Now().UTC(),
	})
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": "Book returned successfully"})
}

// publish is best effort: the borrow already committed, a dead broker must
// not fail the request.
func (h *Handler) publish(event model.BorrowEvent) {
	if err := h.enqueuer.Enqueue(event); err != nil {
		h.log.Warn("enqueue borrow event", zap.Error(err))
	}
}

func (h *Handler) MyBooks(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userId")
	if userID != auth.UserID(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "you can only view your own borrowed books")
	}
	books, err := h.borrowSvc.MyBooks(ctx, userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) CreateBook(c echo.Context) error {
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if !model.GenreOK(req.Genre) {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported genre")
	}
	ctx := c.Request().Context()

	book, err := h.catalogSvc.CreateBook(ctx, auth.UserID(ctx), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) GetBook(c echo.Context) error {
	book, err := h.catalogSvc.GetBook(c.Request().Context(), c.Param("bookId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) ListBooks(c echo.Context) error {
	filter := model.ListBooksFilter{
		Title:  c.QueryParam("title"),
		Genre:  c.QueryParam("genre"),
		Author: c.QueryParam("author"),
	}
	books, err := h.catalogSvc.ListBooks(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) AuthorBooks(c echo.Context) error {
	ctx := c.Request().Context()
	authorID := c.Param("authorId")
	if authorID != auth.UserID(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "you can only view your own books")
	}
	books, err := h.catalogSvc.AuthorBooks(ctx, authorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) UpdateBook(c echo.Context) error {
	var req model.UpdateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Genre != nil && !model.GenreOK(*req.Genre) {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported genre")
	}
	ctx := c.Request().Context()

	book, err := h.catalogSvc.UpdateBook(ctx, auth.UserID(ctx), c.Param("bookId"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) DeleteBook(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.catalogSvc.DeleteBook(ctx, auth.UserID(ctx), c.Param("bookId")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) BookHistory(c echo.Context) error {
	ctx := c.Request().Context()
	records, err := h.catalogSvc.BookHistory(ctx, auth.UserID(ctx), c.Param("bookId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) SetDiscontinued(c echo.Context) error {
	type discontinueRequest struct {
		Discontinued bool `json:"discontinued"`
	}
	var req discontinueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.catalogSvc.SetDiscontinued(c.Request().Context(), c.Param("bookId"), req.Discontinued); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}
