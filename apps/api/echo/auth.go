package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/user"
)

const currentUserKey = "currentUser"

type Claims struct {
	jwt.StandardClaims
	Role string `json:"role"`
}

// GenerateToken signs a JWT for usr per the configured expiration delta.
func GenerateToken(conf *core.Config, usr user.User) (string, error) {
	now := time.Now()
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   usr.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
		},
		Role: string(usr.Role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(conf.SecretKey))
}

func (s *server) jwtMiddleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		Claims:     &Claims{},
		SigningKey: []byte(s.conf.SecretKey),
	})
}

// loadUser resolves the authenticated user from the verified token claims so
// handlers always work with a fresh record. A token whose subject no longer
// exists is treated as unauthorized.
func (s *server) loadUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get("user").(*jwt.Token)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		claims, ok := token.Claims.(*Claims)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized)
		}

		usr, err := s.usrSvc.GetByID(c.Request().Context(), claims.Subject)
		if err != nil {
			if core.IsNotFound(err) {
				return echo.NewHTTPError(http.StatusUnauthorized)
			}
			return err
		}
		c.Set(currentUserKey, usr)
		return next(c)
	}
}

func currentUser(c echo.Context) user.User {
	usr, _ := c.Get(currentUserKey).(user.User)
	return usr
}

func requireRoles(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			usr := currentUser(c)
			for _, role := range roles {
				if usr.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden)
		}
	}
}
