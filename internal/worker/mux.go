// Package worker hosts the asynq handler mux for this engine's background
// tasks. The only task type registered today is tasks.TaskTypeScrape,
// handled by the queue service; handler errors are logged here once,
// centrally, before asynq schedules the redelivery.
package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"autoapply/internal/logger"
)

type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

func NewMux() *Mux {
	m := &Mux{mux: asynq.NewServeMux(), log: logger.New("Worker")}
	m.mux.Use(m.logErrors)
	return m
}

func (m *Mux) logErrors(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		err := next.ProcessTask(ctx, t)
		if err != nil {
			m.log.LogWarnf("%s handler returned %v, asynq will redeliver", t.Type(), err)
		}
		return err
	})
}

func (m *Mux) HandleFunc(t string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(t, h)
}

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }
