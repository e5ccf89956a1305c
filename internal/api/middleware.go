package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// authMiddleware validates HS256 bearer tokens. Browsers cannot set headers
// on websocket upgrades, so a token query parameter is accepted too.
func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.config.Security.AuthRequired {
			return c.Next()
		}

		tokenString := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return apperrors.ErrUnauthorized.Withf("missing authorization header")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.Security.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return apperrors.ErrUnauthorized.Withf("invalid token")
		}

		if sub, err := token.Claims.GetSubject(); err == nil {
			c.Locals("subject", sub)
		}
		return c.Next()
	}
}

// metricsMiddleware counts requests by final status. Errors are rendered
// here so the recorded status is the one sent.
func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			if herr := s.errorHandler(c, err); herr != nil {
				return herr
			}
		}
		s.metrics.RecordRequest(c.Method(), c.Response().StatusCode())
		return nil
	}
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	resp := errorResponse{Error: err.Error(), Code: apperrors.GetCode(err)}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		resp = errorResponse{Error: fe.Message}
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		if !apperrors.IsAppError(err) {
			resp.Error = "internal error"
		}
	}
	return c.Status(status).JSON(resp)
}
