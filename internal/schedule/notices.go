package schedule

import (
	"log/slog"
	"sync"
	"time"
)

// Severity classifies a UI notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is one throttled UI notice. Count includes occurrences that
// were coalesced into this delivery.
type Notice struct {
	Severity Severity
	Message  string
	Count    int
	At       time.Time
}

// NoticeConfig holds notice throttle windows.
type NoticeConfig struct {
	Window    time.Duration // Coalescing window for identical notices
	AckWindow time.Duration // Separate, shorter window for acknowledgements
	OutBuffer int
}

// DefaultNoticeConfig returns sensible defaults.
func DefaultNoticeConfig() NoticeConfig {
	return NoticeConfig{
		Window:    2 * time.Second,
		AckWindow: 500 * time.Millisecond,
		OutBuffer: 32,
	}
}

type noticeKey struct {
	severity Severity
	message  string
}

type noticeState struct {
	lastEmit   time.Time
	suppressed int
}

// NoticeThrottle coalesces identical (severity, message) pairs within
// a window into one delivery. Acknowledgement notices are rate-limited
// on their own shorter window so they never crowd out fault notices.
type NoticeThrottle struct {
	cfg    NoticeConfig
	logger *slog.Logger

	mu      sync.Mutex
	seen    map[noticeKey]*noticeState
	stopped bool
	out     chan Notice
}

// NewNoticeThrottle creates a NoticeThrottle.
func NewNoticeThrottle(cfg NoticeConfig, logger *slog.Logger) *NoticeThrottle {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultNoticeConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.AckWindow <= 0 {
		cfg.AckWindow = def.AckWindow
	}
	if cfg.OutBuffer <= 0 {
		cfg.OutBuffer = def.OutBuffer
	}

	return &NoticeThrottle{
		cfg:    cfg,
		logger: logger,
		seen:   make(map[noticeKey]*noticeState),
		out:    make(chan Notice, cfg.OutBuffer),
	}
}

// Notices returns the delivery channel.
func (n *NoticeThrottle) Notices() <-chan Notice {
	return n.out
}

// Push submits a notice, subject to the coalescing window.
func (n *NoticeThrottle) Push(severity Severity, message string) {
	n.push(severity, message, n.cfg.Window)
}

// PushAck submits an acknowledgement notice on the shorter window.
func (n *NoticeThrottle) PushAck(message string) {
	n.push(SeveritySuccess, message, n.cfg.AckWindow)
}

// Stop closes the delivery channel.
func (n *NoticeThrottle) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	n.stopped = true
	close(n.out)
}

func (n *NoticeThrottle) push(severity Severity, message string, window time.Duration) {
	now := time.Now()
	key := noticeKey{severity: severity, message: message}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}

	st := n.seen[key]
	if st != nil && now.Sub(st.lastEmit) < window {
		st.suppressed++
		return
	}

	count := 1
	if st != nil {
		count += st.suppressed
	}
	n.seen[key] = &noticeState{lastEmit: now}
	n.pruneLocked(now)

	select {
	case n.out <- Notice{Severity: severity, Message: message, Count: count, At: now}:
	default:
		n.logger.Warn("notice dropped, consumer behind", "message", message)
	}
}

// pruneLocked bounds the seen map when many distinct messages pass
// through. Caller must hold the lock.
func (n *NoticeThrottle) pruneLocked(now time.Time) {
	if len(n.seen) <= 256 {
		return
	}
	stale := 2 * n.cfg.Window
	for key, st := range n.seen {
		if now.Sub(st.lastEmit) > stale {
			delete(n.seen, key)
		}
	}
}
