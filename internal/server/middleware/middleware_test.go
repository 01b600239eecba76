package middleware

import (
	"context"
	"net/http"
	"testing"

	pkglog "github.com/muudzo/moometrics2/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/auth/jwt"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(ctx context.Context, _ interface{}) (interface{}, error) {
	return pkglog.GetUserID(ctx), nil
}

func TestIdentity_SetsCaller(t *testing.T) {
	logger := pkglog.NewLogHelper(log.DefaultLogger)
	ctx := pkglog.WithRequestContext(context.Background(), "abc", "op")
	ctx = jwt.NewContext(ctx, jwtv5.MapClaims{"sub": "farmer@example.com"})

	reply, err := Identity(logger)(okHandler)(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "farmer@example.com", reply)
	assert.Equal(t, "farmer@example.com", pkglog.GetUserID(ctx))
}

func TestIdentity_Rejects(t *testing.T) {
	logger := pkglog.NewLogHelper(log.DefaultLogger)

	_, err := Identity(logger)(okHandler)(context.Background(), nil)
	assert.True(t, errors.IsUnauthorized(err))

	ctx := jwt.NewContext(context.Background(), jwtv5.MapClaims{"role": "admin"})
	_, err = Identity(logger)(okHandler)(ctx, nil)
	assert.Equal(t, ErrMissingSubject, err)
}

func TestExtractHTTPStatus(t *testing.T) {
	assert.Equal(t, 200, extractHTTPStatus(nil))
	assert.Equal(t, 404, extractHTTPStatus(errors.NotFound("TASK_NOT_FOUND", "gone")))
	assert.Equal(t, 503, extractHTTPStatus(errors.ServiceUnavailable("TASK_QUEUE_UNAVAILABLE", "down")))
	assert.Equal(t, 500, extractHTTPStatus(assert.AnError))
}

func TestExtractClientIP(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "/api/weather", nil)
	require.NoError(t, err)
	req.RemoteAddr = "10.0.0.9:5123"
	assert.Equal(t, "10.0.0.9:5123", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", extractClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", extractClientIP(req))
}
