package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tickTotal        *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	acChargeDemand   prometheus.Gauge
	dischargeAllowed prometheus.Gauge
	modeValue        prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge, prometheus.Gauge, prometheus.Gauge) {
	ticks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "control_ticks_total",
			Help: "Number of reconciliation ticks by result",
		},
		[]string{"result"},
	)
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "control_decisions_total",
			Help: "Number of applied decision changes by source",
		},
		[]string{"source"},
	)
	ac := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "control_ac_charge_demand_watts",
		Help: "AC charge demand of the decision in force",
	})
	dis := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "control_discharge_allowed",
		Help: "1 when the decision in force allows discharging",
	})
	mode := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "control_mode",
		Help: "Inverter mode value of the decision in force",
	})
	return ticks, decisions, ac, dis, mode
}

func init() {
	tickTotal, decisionsTotal, acChargeDemand, dischargeAllowed, modeValue = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers reconciler metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tickTotal, decisionsTotal, acChargeDemand, dischargeAllowed, modeValue)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	tickTotal, decisionsTotal, acChargeDemand, dischargeAllowed, modeValue = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
