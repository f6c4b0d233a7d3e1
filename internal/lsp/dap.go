package lsp

import "sync"

// dapRelay forwards debug-adapter messages between the editor and
// whatever's driving each debug session, without interpreting the DAP
// protocol itself. spec.md §1 Non-goals excludes "a debugger protocol
// implementation (only the forwarding shape is described)" — the
// original's debug_adapter.py runs a full PDB-backed DAP server, which
// is exactly the piece the specification carves out.
type dapRelay struct {
	mu    sync.Mutex
	sinks map[string]func(DapNotification)
}

func newDapRelay() *dapRelay {
	return &dapRelay{sinks: map[string]func(DapNotification){}}
}

// Register opens a relay for sessionID: messages handed to handle are
// delivered synchronously to sink until Unregister is called. Wired from
// Server.ensureSession (registration) and Server.DidClose/Shutdown
// (deregistration), keyed by the owning Session's InitializationID.
func (d *dapRelay) Register(sessionID string, sink func(DapNotification)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks[sessionID] = sink
}

// Unregister removes a session's relay. Idempotent.
func (d *dapRelay) Unregister(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sinks, sessionID)
}

// handle implements the `dap` marimo.api method: opaque forwarding of
// {sessionId, message} to that session's registered sink.
func (d *dapRelay) handle(c *DapCommand) (any, error) {
	d.mu.Lock()
	sink, ok := d.sinks[c.SessionID]
	d.mu.Unlock()
	if !ok {
		return map[string]any{"delivered": false}, nil
	}
	sink(DapNotification{SessionID: c.SessionID, Message: c.Message})
	return map[string]any{"delivered": true}, nil
}
