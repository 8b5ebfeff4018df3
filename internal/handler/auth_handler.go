package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"storefront/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	refreshCookieName = "refresh"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
)

type AuthHandler struct {
	auth         *usecase.AuthUsecase
	registration *usecase.RegistrationUsecase
	refreshTTL   time.Duration // refresh/csrf cookie の有効期限
	cookieSecure bool
}

// DIコンストラクタ
func NewAuthHandler(auth *usecase.AuthUsecase, registration *usecase.RegistrationUsecase, refreshTTL time.Duration, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		registration: registration,
		refreshTTL:   refreshTTL,
		cookieSecure: cookieSecure,
	}
}

// publicは未ログインで叩ける（レート制限付き）、authedはログイン必須
func (h *AuthHandler) RegisterRoutes(e *echo.Echo, limit echo.MiddlewareFunc, authed ...echo.MiddlewareFunc) {
	g := e.Group("/auth", limit)
	g.POST("/register", h.register)
	g.POST("/otp/verify", h.verifyOTP)
	g.POST("/otp/resend", h.resendOTP)
	g.POST("/login", h.login)
	g.POST("/refresh", h.refresh)

	e.POST("/auth/logout", h.logout, authed...)
	e.GET("/me", h.me, authed...)
	e.PATCH("/me", h.updateMe, authed...)
}

type registerRequest struct {
	Email      string `json:"email" validate:"required,email,max=255"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"required,phone"`
	Address    string `json:"address" validate:"max=255"`
	City       string `json:"city" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,otp"`
}

type resendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"required,phone"`
	Address    string `json:"address" validate:"max=255"`
	City       string `json:"city" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
}

// POST /auth/register 仮登録してOTPを送る
func (h *AuthHandler) register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.registration.Register(c.Request().Context(), usecase.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, out)
}

// POST /auth/otp/verify 確認できたらユーザー作成
func (h *AuthHandler) verifyOTP(c echo.Context) error {
	var req verifyOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.registration.VerifyOTP(c.Request().Context(), usecase.VerifyOTPInput{Email: req.Email, Code: req.OTP})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AuthHandler) resendOTP(c echo.Context) error {
	var req resendOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.registration.ResendOTP(c.Request().Context(), req.Email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, out)
}

// POST /auth/login
func (h *AuthHandler) login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.auth.Login(c.Request().Context(), usecase.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return writeError(c, err)
	}

	h.setSessionCookies(c, out.RefreshTokenPlain)
	return c.JSON(http.StatusOK, out.Body)
}

// POST /auth/refresh refresh cookie + CSRFヘッダ（double submit）
func (h *AuthHandler) refresh(c echo.Context) error {
	rc, err := c.Cookie(refreshCookieName)
	if err != nil || rc.Value == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Kind: usecase.KindUnauthorized})
	}

	cc, err := c.Cookie(csrfCookieName)
	header := c.Request().Header.Get(csrfHeaderName)
	if err != nil || cc.Value == "" || subtle.ConstantTimeCompare([]byte(cc.Value), []byte(header)) != 1 {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "csrf token mismatch", Kind: usecase.KindForbidden})
	}

	out, err := h.auth.Refresh(c.Request().Context(), rc.Value, c.Request().UserAgent())
	if err != nil {
		if ae, ok := usecase.AsAppError(err); ok && ae.Kind == usecase.KindUnauthorized {
			h.clearSessionCookies(c)
		}
		return writeError(c, err)
	}

	h.setSessionCookies(c, out.RefreshTokenPlain)
	return c.JSON(http.StatusOK, out.Body)
}

func (h *AuthHandler) logout(c echo.Context) error {
	if err := h.auth.Logout(c.Request().Context(), actorFrom(c)); err != nil {
		return writeError(c, err)
	}
	h.clearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) me(c echo.Context) error {
	out, err := h.auth.Me(c.Request().Context(), actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) updateMe(c echo.Context) error {
	var req profileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.auth.UpdateProfile(c.Request().Context(), actorFrom(c), usecase.ProfileInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// refreshはHttpOnly、csrfはJSから読めるように
func (h *AuthHandler) setSessionCookies(c echo.Context, plainRefresh string) {
	exp := time.Now().Add(h.refreshTTL)
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    plainRefresh,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
	c.SetCookie(&http.Cookie{
		Name:     csrfCookieName,
		Value:    uuid.NewString(),
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
}

func (h *AuthHandler) clearSessionCookies(c echo.Context) {
	for _, name := range []string{refreshCookieName, csrfCookieName} {
		p := "/"
		if name == refreshCookieName {
			p = "/auth"
		}
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     p,
			HttpOnly: name == refreshCookieName,
			Secure:   h.cookieSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}
