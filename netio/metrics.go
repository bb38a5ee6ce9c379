package netio

import "github.com/prometheus/client_golang/prometheus"

// metrics 汇总 I/O 核心的可观测性计数器。§1 把 logging sink 列为外部协作者，
// 但把度量指标当成 ambient stack 的一部分保留下来（Non-goals 只排除了
// CLI/配置加载/落盘格式，没有排除可观测性）。
type metrics struct {
	connsOpened   prometheus.Counter
	connsClosed   prometheus.Counter
	bytesRead     prometheus.Counter
	bytesWritten  prometheus.Counter
	acceptErrors  prometheus.Counter
	writeToggles  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, namespace string) *metrics {
	m := &metrics{
		connsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "conns_opened_total",
			Help: "Connections accepted or otherwise constructed.",
		}),
		connsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "conns_closed_total",
			Help: "Connections that finished duplex shutdown and were closed.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_read_total",
			Help: "Bytes read from connection descriptors by read_exact/read_buffered.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_written_total",
			Help: "Bytes successfully drained by write_exact.",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "accept_errors_total",
			Help: "Non-transient errors observed while draining the accept loop.",
		}),
		writeToggles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "write_interest_toggles_total",
			Help: "Times writable poller interest was added to resume a blocked write_exact.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connsOpened, m.connsClosed, m.bytesRead, m.bytesWritten, m.acceptErrors, m.writeToggles)
	}
	return m
}

// noopMetrics 让 metrics 字段在未提供 Registerer 时永远非 nil，调用点不必判空。
func noopMetrics() *metrics { return newMetrics(nil, "netio_noop") }
