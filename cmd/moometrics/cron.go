package main

import (
	"context"
	"time"

	"github.com/muudzo/moometrics2/internal/biz"
	"github.com/muudzo/moometrics2/internal/model"
	pkglog "github.com/muudzo/moometrics2/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

const (
	// 每分钟回收租约过期的任务（秒 分 时 日 月 周）
	leaseRecoverySpec = "0 * * * * *"
	// 每 30 秒刷新队列深度指标
	queueStatsSpec = "*/30 * * * * *"
	// 每 5 分钟输出一次非 CLOSED 熔断器
	breakerReportSpec = "0 */5 * * * *"

	jobTimeout = 30 * time.Second
)

// maintenanceCron runs periodic housekeeping for the task queue and breakers.
// It implements transport.Server so the kratos App starts and stops it.
type maintenanceCron struct {
	cron     *cron.Cron
	exec     *biz.TaskExecutor
	breakers *biz.BreakerRegistry
	log      *pkglog.LogHelper
}

func newMaintenanceCron(exec *biz.TaskExecutor, breakers *biz.BreakerRegistry, logger log.Logger) *maintenanceCron {
	return &maintenanceCron{
		cron:     cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		exec:     exec,
		breakers: breakers,
		log:      pkglog.NewLogHelper(logger),
	}
}

// Start registers the jobs and starts the scheduler. It does not block.
func (m *maintenanceCron) Start(context.Context) error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context)
	}{
		{leaseRecoverySpec, "lease_recovery", m.recoverLeases},
		{queueStatsSpec, "queue_stats", m.refreshQueueStats},
		{breakerReportSpec, "breaker_report", m.reportBreakers},
	}
	for _, job := range jobs {
		run := job.run
		if _, err := m.cron.AddFunc(job.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			run(ctx)
		}); err != nil {
			m.log.Errorw("msg", "failed to register cron job", "job", job.name, "error", err)
			return err
		}
	}

	m.cron.Start()
	m.log.Startup("maintenance cron started", "jobs", len(jobs))
	return nil
}

// Stop stops scheduling and waits for running jobs.
func (m *maintenanceCron) Stop(ctx context.Context) error {
	select {
	case <-m.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *maintenanceCron) recoverLeases(ctx context.Context) {
	if _, err := m.exec.RecoverLeases(ctx); err != nil {
		m.log.Degraded("lease recovery skipped", "error", err)
	}
}

func (m *maintenanceCron) refreshQueueStats(ctx context.Context) {
	if _, err := m.exec.QueueStats(ctx); err != nil {
		m.log.Degraded("queue stats unavailable", "error", err)
	}
}

func (m *maintenanceCron) reportBreakers(context.Context) {
	for _, snap := range m.breakers.Snapshots() {
		if snap.State == model.BreakerClosed {
			continue
		}
		m.log.Breaker(snap.State == model.BreakerOpen, "breaker not closed",
			"dependency", snap.Name,
			"state", string(snap.State),
			"failures_in_window", snap.FailuresInWindow,
		)
	}
}
