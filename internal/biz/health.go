package biz

import (
	"context"
	"sort"

	pkglog "github.com/muudzo/moometrics2/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Health status values.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

// HealthProbe pings the backing stores, keyed by store name.
type HealthProbe interface {
	Ping(ctx context.Context) map[string]error
}

// HealthUsecase summarizes store health. The service keeps serving with stores
// down, so an unreachable store degrades the status instead of failing it.
type HealthUsecase struct {
	probe HealthProbe
	log   *pkglog.LogHelper
}

// NewHealthUsecase creates a HealthUsecase.
func NewHealthUsecase(probe HealthProbe, logger log.Logger) *HealthUsecase {
	return &HealthUsecase{probe: probe, log: pkglog.NewLogHelper(logger)}
}

// Check returns the overall status and "up" or "down" per store.
func (uc *HealthUsecase) Check(ctx context.Context) (string, map[string]string) {
	results := uc.probe.Ping(ctx)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	status := HealthHealthy
	checks := make(map[string]string, len(results))
	for _, name := range names {
		if err := results[name]; err != nil {
			status = HealthDegraded
			checks[name] = "down"
			uc.log.Degraded("health check failed", "store", name, "error", err)
			continue
		}
		checks[name] = "up"
	}
	return status, checks
}
