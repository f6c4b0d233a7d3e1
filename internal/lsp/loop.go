package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// textDocuments tracks the plain (non-notebook) documents the editor has
// open — the .py/.ipynb files textDocument/codeAction and
// textDocument/completion look at, and the source marimo.convert
// transforms. Kept separate from workspace's notebook cell documents,
// matching the editor's own split between "text documents" and
// "notebook documents".
type textDocuments struct {
	mu   sync.Mutex
	text map[string]string
}

func newTextDocuments() *textDocuments {
	return &textDocuments{text: map[string]string{}}
}

func (t *textDocuments) set(uri, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text[uri] = text
}

func (t *textDocuments) get(uri string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text[uri]
}

func (t *textDocuments) close(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.text, uri)
}

// Serve runs the main read-dispatch-write loop against a Content-Length
// framed stream until the peer closes it or ctx is cancelled (spec.md
// §4.G / §6). One goroutine; handlers run serially, matching §5's
// "Graph Manager is accessed from the async dispatch thread only".
func (s *Server) Serve(ctx context.Context, r *Reader) error {
	docs := newTextDocuments()
	for {
		msg, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.dispatch(ctx, msg, docs)
	}
}

func (s *Server) dispatch(ctx context.Context, msg *RawMessage, docs *textDocuments) {
	result, err := s.handle(ctx, msg, docs)
	if msg.ID == nil {
		// Notification: no response, even on error — log and move on.
		if err != nil {
			s.log.Warn("lsp: notification handler failed", "method", msg.Method, "error", err)
		}
		return
	}
	if err != nil {
		werr := s.out.WriteError(msg.ID, toRPCError(err))
		if werr != nil {
			s.log.Warn("lsp: write error response", "error", werr)
		}
		return
	}
	if werr := s.out.WriteResult(msg.ID, result); werr != nil {
		s.log.Warn("lsp: write result response", "error", werr)
	}
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var unknown *UnknownMethodError
	if errors.As(err, &unknown) {
		return &RPCError{Code: ErrCodeMethodNotFound, Message: err.Error()}
	}
	return &RPCError{Code: ErrCodeInternal, Message: err.Error()}
}

func (s *Server) handle(ctx context.Context, msg *RawMessage, docs *textDocuments) (any, error) {
	switch msg.Method {
	case "initialize":
		return map[string]any{"capabilities": map[string]any{}}, nil
	case "shutdown":
		s.Shutdown(ctx)
		return nil, nil
	case "notebookDocument/didOpen":
		var p DidOpenNotebookParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.DidOpen(p)
	case "notebookDocument/didChange":
		var p DidChangeNotebookParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.DidChange(p)
	case "notebookDocument/didSave":
		var p DidSaveNotebookParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.DidSave(p)
	case "notebookDocument/didClose":
		var p DidCloseNotebookParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.DidClose(ctx, p)
	case "textDocument/didOpen":
		var p struct {
			TextDocument struct {
				URI  string `json:"uri"`
				Text string `json:"text"`
			} `json:"textDocument"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		docs.set(p.TextDocument.URI, p.TextDocument.Text)
		return nil, nil
	case "textDocument/didChange":
		var p struct {
			TextDocument struct {
				URI string `json:"uri"`
			} `json:"textDocument"`
			ContentChanges []struct {
				Text string `json:"text"`
			} `json:"contentChanges"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		if len(p.ContentChanges) > 0 {
			docs.set(p.TextDocument.URI, p.ContentChanges[len(p.ContentChanges)-1].Text)
		}
		return nil, nil
	case "textDocument/didClose":
		var p struct {
			TextDocument struct {
				URI string `json:"uri"`
			} `json:"textDocument"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		docs.close(p.TextDocument.URI)
		return nil, nil
	case "textDocument/diagnostic":
		var p DiagnosticParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		return s.Diagnostic(p)
	case "textDocument/codeAction":
		var p CodeActionParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		return s.CodeAction(p)
	case "textDocument/completion":
		var p CompletionParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		return s.Completion(p, docs.get(string(p.TextDocument.URI)))
	case "marimo.api":
		cmd, err := DecodeCommand(msg.Params)
		if err != nil {
			var unknown *UnknownMethodError
			if errors.As(err, &unknown) {
				s.log.Warn("lsp: unknown marimo.api method", "method", unknown.Method)
				return nil, &RPCError{Code: ErrCodeInvalidRequest, Message: err.Error()}
			}
			return nil, err
		}
		return s.Execute(ctx, cmd)
	case "marimo.convert":
		var p struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, err
		}
		return s.Convert(p.Path, docs.get(p.Path))
	default:
		return nil, &UnknownMethodError{Method: msg.Method}
	}
}
