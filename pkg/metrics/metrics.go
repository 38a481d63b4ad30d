package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	LogtailLinesReadMetricName     = "srcexec_logtail_lines_total"
	WatcherEventsHandledMetricName = "srcexec_watcher_events_total"
	ConsoleCommandsSentMetricName  = "srcexec_console_commands_total"
	WatcherSuccessEventsMetricName = "srcexec_watcher_successes_total"
)

var LogtailLinesRead = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: LogtailLinesReadMetricName,
		Help: "Total log lines that were read.",
	},
	[]string{"source"},
)

var WatcherEventsHandled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: WatcherEventsHandledMetricName,
		Help: "Filesystem events dispatched to a handler, per kind.",
	},
	[]string{"source", "kind"},
)

var WatcherSuccessEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: WatcherSuccessEventsMetricName,
		Help: "Handler invocations that counted toward the stop threshold.",
	},
	[]string{"source"},
)

var ConsoleCommandsSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: ConsoleCommandsSentMetricName,
		Help: "Commands sent to the game console, per channel backend.",
	},
	[]string{"backend"},
)

// Collectors returns every collector of the library, for callers that
// expose them on their own registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		LogtailLinesRead,
		WatcherEventsHandled,
		WatcherSuccessEvents,
		ConsoleCommandsSent,
	}
}
