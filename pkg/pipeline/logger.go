package pipeline

// Logger is the logging interface used by this package. It is out of
// the box compatible with `log.Log` in `apex/log`.
type Logger interface {
	Debug(msg string)
	Debugf(format string, v ...interface{})
	Info(msg string)
	Infof(format string, v ...interface{})
	Warn(msg string)
	Warnf(format string, v ...interface{})
}

// DiscardLogger is the default logger that discards its input.
var DiscardLogger Logger = logDiscarder{}

type logDiscarder struct{}

func (logDiscarder) Debug(msg string)                       {}
func (logDiscarder) Debugf(format string, v ...interface{}) {}
func (logDiscarder) Info(msg string)                        {}
func (logDiscarder) Infof(format string, v ...interface{})  {}
func (logDiscarder) Warn(msg string)                        {}
func (logDiscarder) Warnf(format string, v ...interface{})  {}

// validLoggerOrDefault returns logger if not nil, DiscardLogger otherwise.
func validLoggerOrDefault(logger Logger) Logger {
	if logger != nil {
		return logger
	}
	return DiscardLogger
}

// Observer receives connection and queue events. The health package
// implements it on top of Prometheus.
type Observer interface {
	// ConnectAttempt is called before every dial.
	ConnectAttempt()

	// ConnectFailed is called when resolving, dialing or the TLS
	// handshake fails.
	ConnectFailed(err error)

	// ConnectionOpened is called when a session attaches.
	ConnectionOpened()

	// ConnectionClosed is called when a session detaches, with the number
	// of in-flight queries that went back to the pending queue.
	ConnectionClosed(requeued int)

	// QueueChanged reports the pending and in-flight sizes after a change.
	QueueChanged(pending, inflight int)
}

// NopObserver ignores every event.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) ConnectAttempt()                    {}
func (NopObserver) ConnectFailed(err error)            {}
func (NopObserver) ConnectionOpened()                  {}
func (NopObserver) ConnectionClosed(requeued int)      {}
func (NopObserver) QueueChanged(pending, inflight int) {}
