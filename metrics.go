package warren

import (
	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Store)(nil)

var (
	bucketsDesc = prometheus.NewDesc(
		"warren_buckets",
		"Number of live buckets",
		nil, nil)

	keysDesc = prometheus.NewDesc(
		"warren_keys",
		"Number of keys stored per bucket",
		[]string{"bucket"}, nil)

	tableOpsDesc = prometheus.NewDesc(
		"warren_table_ops_total",
		"Table operations per bucket and operation",
		[]string{"bucket", "op"}, nil)

	watchersDesc = prometheus.NewDesc(
		"warren_watchers",
		"Number of active watchers",
		nil, nil)

	eventsPublishedDesc = prometheus.NewDesc(
		"warren_events_published_total",
		"Change events published after successful mutations",
		nil, nil)

	eventsDeliveredDesc = prometheus.NewDesc(
		"warren_events_delivered_total",
		"Event deliveries into watcher buffers",
		nil, nil)

	eventsDroppedDesc = prometheus.NewDesc(
		"warren_events_dropped_total",
		"Event deliveries dropped on full watcher buffers",
		nil, nil)
)

// Describe returns all descriptions of the collector.
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	ch <- bucketsDesc
	ch <- keysDesc
	ch <- tableOpsDesc
	ch <- watchersDesc
	ch <- eventsPublishedDesc
	ch <- eventsDeliveredDesc
	ch <- eventsDroppedDesc
}

// Collect reads the current counters out of the registry, the tables and
// the bus. No caching; collection cost is one registry scan.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	st := s.Stats()

	ch <- prometheus.MustNewConstMetric(bucketsDesc, prometheus.GaugeValue, float64(st.Buckets))
	ch <- prometheus.MustNewConstMetric(watchersDesc, prometheus.GaugeValue, float64(st.Watchers))
	ch <- prometheus.MustNewConstMetric(eventsPublishedDesc, prometheus.CounterValue, float64(st.EventsPublished))
	ch <- prometheus.MustNewConstMetric(eventsDeliveredDesc, prometheus.CounterValue, float64(st.EventsDelivered))
	ch <- prometheus.MustNewConstMetric(eventsDroppedDesc, prometheus.CounterValue, float64(st.EventsDropped))

	for name, ts := range st.Tables {
		ch <- prometheus.MustNewConstMetric(keysDesc, prometheus.GaugeValue, float64(ts.Keys), name)
		ch <- prometheus.MustNewConstMetric(tableOpsDesc, prometheus.CounterValue, float64(ts.Gets), name, "get")
		ch <- prometheus.MustNewConstMetric(tableOpsDesc, prometheus.CounterValue, float64(ts.Puts), name, "put")
		ch <- prometheus.MustNewConstMetric(tableOpsDesc, prometheus.CounterValue, float64(ts.PutNews), name, "put_new")
		ch <- prometheus.MustNewConstMetric(tableOpsDesc, prometheus.CounterValue, float64(ts.Deletes), name, "delete")
	}
}
