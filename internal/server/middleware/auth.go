// Package middleware provides HTTP middleware for authentication, logging, and request processing.
package middleware

import (
	"context"

	pkglog "github.com/muudzo/moometrics2/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/auth/jwt"
	"github.com/go-kratos/kratos/v2/transport"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ErrMissingSubject is returned for a valid token without a "sub" claim.
var ErrMissingSubject = errors.Unauthorized("UNAUTHORIZED", "token has no subject")

// KeyFunc returns the HS256 verification key for the given secret.
func KeyFunc(secret string) jwtv5.Keyfunc {
	key := []byte(secret)
	return func(*jwtv5.Token) (interface{}, error) {
		return key, nil
	}
}

// Authenticate verifies the bearer token and records the caller.
// 必须放在 Logging 之后，调用方 ID 会写入 Logging 注入的 Request Context
func Authenticate(secret string, logger *pkglog.LogHelper) middleware.Middleware {
	verify := jwt.Server(KeyFunc(secret), jwt.WithSigningMethod(jwtv5.SigningMethodHS256))
	return func(handler middleware.Handler) middleware.Handler {
		return verify(Identity(logger)(handler))
	}
}

// Identity 从已验证的 JWT 中提取 subject 作为调用方 ID
//
// 日志输出示例:
//
//	Authenticated request | {"type":"auth","user_id":"farmer@example.com","operation":"/moometrics.v1.TaskService/GetTask"}
func Identity(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			claims, ok := jwt.FromContext(ctx)
			if !ok {
				return nil, jwt.ErrMissingJwtToken
			}
			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				return nil, ErrMissingSubject
			}

			pkglog.SetUserID(ctx, subject)

			var operation string
			if tr, ok := transport.FromServerContext(ctx); ok {
				operation = tr.Operation()
			}
			logger.Auth("Authenticated request",
				"user_id", subject,
				"operation", operation,
				"request_id", pkglog.GetRequestID(ctx),
			)

			return handler(ctx, req)
		}
	}
}
