package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var depositCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "paystream_deposits_total",
	Help: "number of treasury deposits settled",
})

var withdrawalCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "paystream_withdrawals_total",
	Help: "number of salary withdrawals settled",
})

var bonusCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "paystream_bonuses_total",
	Help: "number of one-time bonuses settled",
})

var taxWithdrawalCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "paystream_tax_withdrawals_total",
	Help: "number of tax vault withdrawals settled",
})

var streamOpCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "paystream_stream_ops_total",
	Help: "stream lifecycle operations by type",
}, []string{"op"})

var errorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "paystream_op_errors_total",
	Help: "rejected operations by reason",
}, []string{"reason"})

func RecordDeposit()       { depositCounter.Inc() }
func RecordWithdrawal()    { withdrawalCounter.Inc() }
func RecordBonus()         { bonusCounter.Inc() }
func RecordTaxWithdrawal() { taxWithdrawalCounter.Inc() }

func RecordStreamOp(op string) { streamOpCounter.WithLabelValues(op).Inc() }

func RecordError(reason string) { errorCounter.WithLabelValues(reason).Inc() }

// StartPromServer exposes /metrics on its own port, off the API mux.
func StartPromServer(port string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("prometheus server stopped", zap.Error(err))
		}
	}()
}
