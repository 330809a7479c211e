package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Server is one running analysis-server process speaking JSON-RPC over
// stdio. All exported methods are safe for concurrent use; the server
// itself may still serialize work internally.
type Server struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[int]chan *Response
	closed  bool

	done chan struct{}
}

// Start launches the server command and completes the initialize handshake.
func Start(ctx context.Context, command []string, rootDir string) (*Server, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty server command")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stderr = io.Discard
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command[0], err)
	}

	s := newServer(stdin, stdout)
	s.cmd = cmd

	if err := s.initialize(ctx, rootDir); err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize %s: %w", command[0], err)
	}
	slog.Debug("lsp.server.ready", "command", command[0], "root", rootDir)
	return s, nil
}

// Connect wraps an existing transport. The caller owns the process, if any.
func Connect(w io.WriteCloser, r io.Reader) *Server {
	return newServer(w, r)
}

func newServer(w io.WriteCloser, r io.Reader) *Server {
	s := &Server{
		stdin:   w,
		reader:  bufio.NewReader(r),
		pending: make(map[int]chan *Response),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// readLoop dispatches responses to waiting callers by request id.
// Server-initiated notifications (diagnostics, progress) are dropped.
func (s *Server) readLoop() {
	defer close(s.done)
	for {
		body, err := ReadMessage(s.reader)
		if err != nil {
			s.failPending(err)
			return
		}
		var resp Response
		if err := json.Unmarshal(body, &resp); err != nil || resp.ID == 0 {
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		delete(s.pending, resp.ID)
		s.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

func (s *Server) failPending(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.pending {
		delete(s.pending, id)
		ch <- &Response{ID: id, Error: &RPCError{Code: -32603, Message: err.Error()}}
	}
}

// call sends a request and waits for its response or context expiry.
func (s *Server) call(ctx context.Context, method string, params any, result any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("server closed")
	}
	s.nextID++
	id := s.nextID
	ch := make(chan *Response, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := s.write(req); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return err
	}

	select {
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (s *Server) notify(method string, params any) error {
	return s.write(Notification{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *Server) write(msg any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteMessage(s.stdin, msg)
}

func (s *Server) initialize(ctx context.Context, rootDir string) error {
	var result InitializeResult
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   PathToURI(rootDir),
	}
	if err := s.call(ctx, "initialize", params, &result); err != nil {
		return err
	}
	return s.notify("initialized", struct{}{})
}

// OpenFile announces a document to the server. Must precede any query
// against that document.
func (s *Server) OpenFile(path, languageID, text string) error {
	return s.notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        PathToURI(path),
			LanguageID: languageID,
			Version:    1,
			Text:       text,
		},
	})
}

// CloseFile retracts a previously opened document.
func (s *Server) CloseFile(path string) error {
	return s.notify("textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: PathToURI(path)},
	})
}

// Definition resolves the definition site for the symbol at a position.
// An empty slice means the server knows the position but has no target.
func (s *Server) Definition(ctx context.Context, path string, line, character int) ([]Location, error) {
	params := DefinitionParams{
		TextDocument: TextDocumentIdentifier{URI: PathToURI(path)},
		Position:     Position{Line: line, Character: character},
	}

	// Servers return Location, []Location, or []LocationLink.
	var raw json.RawMessage
	if err := s.call(ctx, "textDocument/definition", params, &raw); err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

func decodeLocations(raw json.RawMessage) ([]Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var locs []Location
	if err := json.Unmarshal(raw, &locs); err == nil {
		// LocationLink arrays also satisfy []Location but leave URI empty.
		if len(locs) == 0 || locs[0].URI != "" {
			return locs, nil
		}
	}
	var single Location
	if err := json.Unmarshal(raw, &single); err == nil && single.URI != "" {
		return []Location{single}, nil
	}
	var links []struct {
		TargetURI   string `json:"targetUri"`
		TargetRange Range  `json:"targetRange"`
	}
	if err := json.Unmarshal(raw, &links); err == nil {
		out := make([]Location, 0, len(links))
		for _, l := range links {
			out = append(out, Location{URI: l.TargetURI, Range: l.TargetRange})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unrecognized definition result: %s", string(raw))
}

// Close shuts the server down. The shutdown request is best effort; the
// process is killed if it does not exit.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.call(ctx, "shutdown", nil, nil)
	_ = s.notify("exit", nil)
	_ = s.stdin.Close()

	if s.cmd != nil {
		waited := make(chan error, 1)
		go func() { waited <- s.cmd.Wait() }()
		select {
		case <-waited:
		case <-ctx.Done():
			_ = s.cmd.Process.Kill()
			<-waited
		}
	}
	<-s.done
	return nil
}
