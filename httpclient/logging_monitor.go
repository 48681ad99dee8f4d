package httpclient

import (
	"github.com/rs/zerolog"
)

// LoggingMonitorConfig configures NewLoggingMonitor.
type LoggingMonitorConfig struct {
	Logger zerolog.Logger

	// LogCurl adds the cURL command of the request to resume and parse logs.
	// The command includes the Authorization header.
	LogCurl bool

	// LogAllEvents logs every event at debug level, not only resume,
	// retry, parse and terminal events.
	LogAllEvents bool
}

// LoggingMonitor logs request lifecycle events.
//
// Example:
//
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithMonitors(httpclient.NewLoggingMonitor(httpclient.LoggingMonitorConfig{
//	        Logger:  logger,
//	        LogCurl: true,
//	    })),
//	)
type LoggingMonitor struct {
	cfg LoggingMonitorConfig
}

// NewLoggingMonitor returns a monitor writing to cfg.Logger.
func NewLoggingMonitor(cfg LoggingMonitorConfig) *LoggingMonitor {
	return &LoggingMonitor{cfg: cfg}
}

// OnEvent implements Monitor.
func (m *LoggingMonitor) OnEvent(e Event) {
	switch e.Kind {
	case EventResumed:
		ev := m.base(m.cfg.Logger.Info(), e)
		if m.cfg.LogCurl && e.Request != nil {
			ev = ev.Str("curl", e.Request.CurlCommand())
		}
		ev.Msg("request resumed")

	case EventParsedResponse:
		parsed, ok := e.Value.(ParsedResponse)
		if !ok {
			return
		}
		var ev *zerolog.Event
		if err := parsed.ResponseError(); err != nil {
			ev = m.base(m.cfg.Logger.Warn(), e).Err(err)
		} else {
			ev = m.base(m.cfg.Logger.Info(), e).Interface("value", parsed.ResponseValue())
		}
		if m.cfg.LogCurl && e.Request != nil {
			ev = ev.Str("curl", e.Request.CurlCommand())
		}
		ev.Msg("request parsed response")

	case EventRetrying:
		m.base(m.cfg.Logger.Info(), e).Err(e.Err).Msg("request retrying")

	case EventFinished:
		level := m.cfg.Logger.Info()
		if e.Err != nil {
			level = m.cfg.Logger.Warn().Err(e.Err)
		}
		m.base(level, e).Msg("request finished")

	case EventCancelled:
		m.base(m.cfg.Logger.Info(), e).Err(e.Err).Msg("request cancelled")

	default:
		if m.cfg.LogAllEvents {
			m.base(m.cfg.Logger.Debug(), e).Err(e.Err).Msg("request event")
		}
	}
}

func (m *LoggingMonitor) base(ev *zerolog.Event, e Event) *zerolog.Event {
	ev = ev.Str("event", e.Kind.String())
	if e.Request != nil {
		ev = ev.Str("request_id", e.Request.ID().String()).
			Int("retries", e.Request.RetryCount())
	}
	if e.Response != nil {
		ev = ev.Int("status", e.Response.StatusCode)
	}
	return ev
}
