// Package service adapts the biz usecases to the v1 HTTP API.
package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(
	NewWeatherService,
	NewPredictionService,
	NewTaskService,
	NewOpsService,
)

// DataSourceHeader tells clients where a reply came from: live, cache or fallback.
const DataSourceHeader = "X-Data-Source"

func setReplyHeader(ctx context.Context, key, value string) {
	if tr, ok := transport.FromServerContext(ctx); ok {
		tr.ReplyHeader().Set(key, value)
	}
}
