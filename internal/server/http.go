package server

import (
	"context"

	v1 "github.com/muudzo/moometrics2/api/v1"
	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/server/middleware"
	"github.com/muudzo/moometrics2/internal/service"
	"github.com/muudzo/moometrics2/pkg/metrics"
	pkglog "github.com/muudzo/moometrics2/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/rs/cors"
)

const metricsPath = "/metrics"

// protectedOperations 需要 Bearer Token 的接口，其余接口匿名可用
var protectedOperations = map[string]bool{
	v1.OperationTaskServiceSubmitReport:     true,
	v1.OperationTaskServiceSubmitPrediction: true,
	v1.OperationTaskServiceGetTask:          true,
	v1.OperationTaskServiceRevokeTask:       true,
	v1.OperationOpsServiceListDeadLetters:   true,
}

func requiresAuth(_ context.Context, operation string) bool {
	return protectedOperations[operation]
}

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Server,
	auth *conf.Auth,
	weather *service.WeatherService,
	prediction *service.PredictionService,
	tasks *service.TaskService,
	ops *service.OpsService,
	m *metrics.Metrics,
	logger log.Logger,
) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper), // 请求日志中间件：Request ID、耗时、慢请求
			selector.Server(
				middleware.Authenticate(auth.Jwt.Secret, logHelper), // JWT 认证：只作用于任务和死信接口
			).Match(requiresAuth).Build(),
		),
		http.Filter(cors.New(cors.Options{
			AllowedOrigins:   c.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader, service.DataSourceHeader},
			AllowCredentials: true,
		}).Handler),
	}
	if c.HTTP.Network != "" {
		opts = append(opts, http.Network(c.HTTP.Network))
	}
	if c.HTTP.Addr != "" {
		opts = append(opts, http.Address(c.HTTP.Addr))
	}
	if c.HTTP.Timeout > 0 {
		opts = append(opts, http.Timeout(c.HTTP.Timeout))
	}
	srv := http.NewServer(opts...)

	v1.RegisterWeatherServiceHTTPServer(srv, weather)
	v1.RegisterPredictionServiceHTTPServer(srv, prediction)
	v1.RegisterTaskServiceHTTPServer(srv, tasks)
	v1.RegisterOpsServiceHTTPServer(srv, ops)

	srv.Handle(metricsPath, m.Handler())

	return srv
}
