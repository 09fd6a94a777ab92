package metrics

import (
	"expvar"
	"time"
)

var (
	Ticks         = expvar.NewInt("keeper_ticks")
	TickErrors    = expvar.NewInt("keeper_tick_errors")
	LastTickMs    = expvar.NewInt("keeper_last_tick_ms")
	LastTickUnix  = expvar.NewInt("keeper_last_tick_unix")
	CancelAlls    = expvar.NewInt("keeper_cancel_all")
	OrdersCancel  = expvar.NewInt("orders_cancelled")
	CancelErrors  = expvar.NewInt("orders_cancel_errors")
	OrdersCreated = expvar.NewInt("orders_created")
	CreateErrors  = expvar.NewInt("orders_create_errors")
	TxSent        = expvar.NewInt("tx_sent")
	TxReplaced    = expvar.NewInt("tx_replaced")
	TxFailed      = expvar.NewInt("tx_failed")
	LivePrice     = expvar.NewString("price_last")
)

// ObserveTick 记录一次 tick（供 lifecycle.OnTick 使用）
func ObserveTick(elapsed time.Duration, err error) {
	Ticks.Add(1)
	LastTickMs.Set(elapsed.Milliseconds())
	LastTickUnix.Set(time.Now().Unix())
	if err != nil {
		TickErrors.Add(1)
	}
}
