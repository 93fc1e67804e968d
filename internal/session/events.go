package session

// event is the sum type funneled through Engine.events. Transport callbacks
// and the public Disconnect API both produce events; only the worker
// goroutine consumes them, so no mutation races against in-flight handling.
type event interface{ isEvent() }

type connectedEvent struct{}

func (connectedEvent) isEvent() {}

type textEvent struct{ data []byte }

func (textEvent) isEvent() {}

type binaryEvent struct{ data []byte }

func (binaryEvent) isEvent() {}

type closingEvent struct {
	code   int
	reason string
}

func (closingEvent) isEvent() {}

type closedEvent struct {
	code   int
	reason string
}

func (closedEvent) isEvent() {}

type failureEvent struct {
	err         error
	recoverable bool
}

func (failureEvent) isEvent() {}

type handshakeTimeoutEvent struct{}

func (handshakeTimeoutEvent) isEvent() {}

type disconnectEvent struct{ reason string }

func (disconnectEvent) isEvent() {}

type setVolumeEvent struct{ volume int }

func (setVolumeEvent) isEvent() {}

type setMutedEvent struct{ muted bool }

func (setMutedEvent) isEvent() {}

// transportListener adapts transport.Listener's callback methods onto the
// engine's event channel, so every one of these runs on the transport's own
// goroutine(s) and only touches the engine by enqueueing — never by
// mutating engine state directly.
type transportListener struct {
	e *Engine
}

// NewTransportListener returns the transport.Listener the caller must pass
// to the Transport constructor before calling Engine.Start. Splitting this
// from Engine itself keeps Transport's callback contract ("implementers
// must not block") from being satisfied by code that also holds e.mu.
func NewTransportListener(e *Engine) *transportListener {
	return &transportListener{e: e}
}

func (l *transportListener) OnConnected() {
	l.e.enqueue(connectedEvent{})
}

func (l *transportListener) OnText(data []byte) {
	cp := append([]byte(nil), data...)
	l.e.enqueue(textEvent{data: cp})
}

func (l *transportListener) OnBinary(data []byte) {
	cp := append([]byte(nil), data...)
	l.e.enqueue(binaryEvent{data: cp})
}

func (l *transportListener) OnClosing(code int, reason string) {
	l.e.enqueue(closingEvent{code: code, reason: reason})
}

func (l *transportListener) OnClosed(code int, reason string) {
	l.e.enqueue(closedEvent{code: code, reason: reason})
}

func (l *transportListener) OnFailure(err error, recoverable bool) {
	l.e.enqueue(failureEvent{err: err, recoverable: recoverable})
}
