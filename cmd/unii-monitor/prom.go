package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "unii",
	Subsystem: "panel",
	Name:      "connected",
	Help:      "1 while the panel session is established.",
})

var sectionStatusGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "unii",
	Subsystem: "section",
	Name:      "status",
	Help:      "Section status code as reported by the panel.",
}, []string{"name"})

var inputOpenGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "unii",
	Subsystem: "input",
	Name:      "open",
	Help:      "1 while the input is open.",
}, []string{"name"})

var inputTamperGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "unii",
	Subsystem: "input",
	Name:      "tamper",
	Help:      "1 while the input reports tamper or masking.",
}, []string{"name"})

var inputBypassedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "unii",
	Subsystem: "input",
	Name:      "bypassed",
	Help:      "1 while the input is bypassed.",
}, []string{"name"})

var alarmCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "unii",
	Subsystem: "panel",
	Name:      "alarms_total",
	Help:      "Alarms raised by the panel since start.",
}, []string{"section"})

var reconnectCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "unii",
	Subsystem: "panel",
	Name:      "reconnects_total",
	Help:      "Sessions re-established after a fault.",
})

var eventCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "unii",
	Subsystem: "panel",
	Name:      "events_total",
	Help:      "Events received from the panel.",
})
