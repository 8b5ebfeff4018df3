package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey       = "user_id"       // int64
	CtxUserRoleKey     = "user_role"     // model.Role
	CtxTokenVersionKey = "token_version" // int
)

var errInvalidToken = errors.New("invalid access token")

// アクセストークンから取り出す値
type accessClaims struct {
	UserID       int64
	Role         model.Role
	TokenVersion int
}

// Authorization: Bearer <jwt> を検証してcontextに積む
func AuthJWT(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get("Authorization"))
			if !ok {
				return unauthorized(c)
			}
			claims, err := parseAccessToken(raw, key)
			if err != nil {
				return unauthorized(c)
			}

			c.Set(CtxUserIDKey, claims.UserID)
			c.Set(CtxUserRoleKey, claims.Role)
			c.Set(CtxTokenVersionKey, claims.TokenVersion)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HS256以外は拒否。sub / role / tv が揃っていること
func parseAccessToken(raw string, key []byte) (accessClaims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errInvalidToken
		}
		return key, nil
	})
	if err != nil || token == nil || !token.Valid {
		return accessClaims{}, errInvalidToken
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return accessClaims{}, errInvalidToken
	}

	userID, err := claimInt64(mc["sub"])
	if err != nil || userID <= 0 {
		return accessClaims{}, errInvalidToken
	}
	rawRole, _ := mc["role"].(string)
	role, ok := model.ParseRole(rawRole)
	if !ok {
		return accessClaims{}, errInvalidToken
	}
	tv, err := claimInt64(mc["tv"])
	if err != nil || tv < 0 {
		return accessClaims{}, errInvalidToken
	}

	return accessClaims{UserID: userID, Role: role, TokenVersion: int(tv)}, nil
}

// JSONの数値はfloat64で来る。文字列のsubも受ける
func claimInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	}
	return 0, errInvalidToken
}

// AuthJWTが入れた値からActorを組み立てる
func ActorFrom(c echo.Context) usecase.Actor {
	userID, _ := c.Get(CtxUserIDKey).(int64)
	role, _ := c.Get(CtxUserRoleKey).(model.Role)
	return usecase.Actor{UserID: userID, Role: role, IP: c.RealIP()}
}

type errorResponse struct {
	Error string            `json:"error"`
	Kind  usecase.ErrorKind `json:"kind"`
}

func errorJSON(kind usecase.ErrorKind, msg string) errorResponse {
	return errorResponse{Error: msg, Kind: kind}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorJSON(usecase.KindUnauthorized, "unauthorized"))
}
