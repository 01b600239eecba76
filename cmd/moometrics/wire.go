//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/muudzo/moometrics2/internal/biz"
	"github.com/muudzo/moometrics2/internal/conf"
	"github.com/muudzo/moometrics2/internal/data"
	"github.com/muudzo/moometrics2/internal/server"
	"github.com/muudzo/moometrics2/internal/service"
	"github.com/muudzo/moometrics2/pkg/metrics"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		wire.FieldsOf(new(*conf.Bootstrap), "Server", "Data", "Auth", "Weather", "Prediction", "Task"),
		metrics.NewMetrics,
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newMaintenanceCron,
		newApp,
	))
}
