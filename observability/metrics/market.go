package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type MarketMetrics struct {
	purchases         *prometheus.CounterVec
	purchaseRejected  *prometheus.CounterVec
	withdrawals       prometheus.Counter
	treasuryBalance   prometheus.Gauge
	reserveBalance    prometheus.Gauge
	oracleReadFailure *prometheus.CounterVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_purchases_total",
				Help: "Count of successful shard purchases by payment currency.",
			}, []string{"currency"}),
			purchaseRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_purchase_rejected_total",
				Help: "Count of rejected purchase attempts by reason.",
			}, []string{"reason"}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_withdrawals_total",
				Help: "Count of successful treasury withdrawals.",
			}),
			treasuryBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "market_treasury_balance",
				Help: "Current native currency balance held by the treasury.",
			}),
			reserveBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "market_reserve_balance",
				Help: "Shards currently held by the market and available for sale.",
			}),
			oracleReadFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_oracle_read_failures_total",
				Help: "Count of failed oracle reads by feed.",
			}, []string{"feed"}),
		}
		prometheus.MustRegister(
			marketRegistry.purchases,
			marketRegistry.purchaseRejected,
			marketRegistry.withdrawals,
			marketRegistry.treasuryBalance,
			marketRegistry.reserveBalance,
			marketRegistry.oracleReadFailure,
		)
	})
	return marketRegistry
}

func (m *MarketMetrics) ObservePurchase(currency string) {
	if m == nil {
		return
	}
	if currency == "" {
		currency = "unknown"
	}
	m.purchases.WithLabelValues(currency).Inc()
}

func (m *MarketMetrics) ObservePurchaseRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.purchaseRejected.WithLabelValues(reason).Inc()
}

func (m *MarketMetrics) ObserveWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

func (m *MarketMetrics) SetTreasuryBalance(balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	value, _ := new(big.Float).SetInt(balance).Float64()
	m.treasuryBalance.Set(value)
}

func (m *MarketMetrics) SetReserveBalance(balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	value, _ := new(big.Float).SetInt(balance).Float64()
	m.reserveBalance.Set(value)
}

func (m *MarketMetrics) ObserveOracleReadFailure(feed string) {
	if m == nil {
		return
	}
	if feed == "" {
		feed = "unknown"
	}
	m.oracleReadFailure.WithLabelValues(feed).Inc()
}
