package lsp

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/codemind/codegraph/internal/lang"
)

const shutdownTimeout = 5 * time.Second

// ErrDegraded means the language's server is out of service for the rest of
// the run. Callers fall back to heuristic resolution.
var ErrDegraded = errors.New("analysis server degraded")

// PoolConfig controls server lifecycle and the failure circuit breaker.
type PoolConfig struct {
	RootDir      string
	QueryTimeout time.Duration
	// BreakerThreshold is the count of consecutive timed-out queries after
	// which the language is marked degraded. No restart happens within a run.
	BreakerThreshold int
	StartTimeout     time.Duration
	// IdleTimeout closes a server unused for this long. The language is not
	// degraded; the next query starts a fresh server.
	IdleTimeout time.Duration
}

func (c *PoolConfig) withDefaults() *PoolConfig {
	out := *c
	if out.QueryTimeout <= 0 {
		out.QueryTimeout = 5 * time.Second
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 3
	}
	if out.StartTimeout <= 0 {
		out.StartTimeout = 30 * time.Second
	}
	if out.IdleTimeout <= 0 {
		out.IdleTimeout = 2 * time.Minute
	}
	return &out
}

type poolEntry struct {
	server   *Server
	degraded bool
	timeouts int
	lastUse  time.Time
}

// Pool maintains at most one analysis server per language, started lazily
// on first query and kept for the whole run.
type Pool struct {
	cfg *PoolConfig

	mu      sync.Mutex
	entries map[lang.Language]*poolEntry

	stop     chan struct{}
	stopOnce sync.Once

	// starter is swapped in tests to avoid spawning real processes.
	starter func(ctx context.Context, command []string, rootDir string) (*Server, error)
}

func NewPool(cfg *PoolConfig) *Pool {
	p := &Pool{
		cfg:     cfg.withDefaults(),
		entries: make(map[lang.Language]*poolEntry),
		stop:    make(chan struct{}),
		starter: Start,
	}
	go p.reapIdle()
	return p
}

// reapIdle closes servers that sit unused past the idle threshold.
func (p *Pool) reapIdle() {
	t := time.NewTicker(p.cfg.IdleTimeout / 2)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			p.closeIdle(time.Now())
		}
	}
}

func (p *Pool) closeIdle(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for l, e := range p.entries {
		if e.server == nil || e.degraded {
			continue
		}
		if now.Sub(e.lastUse) < p.cfg.IdleTimeout {
			continue
		}
		slog.Info("lsp.pool.idle.close", "lang", l)
		go e.server.Close()
		delete(p.entries, l)
	}
}

// get returns the language's server, starting it on first use. A language
// with no configured command, a failed start, or a tripped breaker yields
// ErrDegraded.
func (p *Pool) get(ctx context.Context, l lang.Language) (*Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[l]
	if ok {
		if e.degraded {
			return nil, ErrDegraded
		}
		e.lastUse = time.Now()
		return e.server, nil
	}

	e = &poolEntry{lastUse: time.Now()}
	p.entries[l] = e

	spec := lang.ForLanguage(l)
	if spec == nil || len(spec.ServerCommand) == 0 {
		e.degraded = true
		return nil, ErrDegraded
	}

	startCtx, cancel := context.WithTimeout(ctx, p.cfg.StartTimeout)
	defer cancel()
	srv, err := p.starter(startCtx, spec.ServerCommand, p.cfg.RootDir)
	if err != nil {
		slog.Warn("lsp.pool.start.err", "lang", l, "err", err)
		e.degraded = true
		return nil, ErrDegraded
	}
	e.server = srv
	return srv, nil
}

// OpenFile opens a document on the language's server.
func (p *Pool) OpenFile(ctx context.Context, l lang.Language, path, text string) error {
	srv, err := p.get(ctx, l)
	if err != nil {
		return err
	}
	return srv.OpenFile(path, string(l), text)
}

// CloseFile closes a previously opened document.
func (p *Pool) CloseFile(ctx context.Context, l lang.Language, path string) error {
	srv, err := p.get(ctx, l)
	if err != nil {
		return err
	}
	return srv.CloseFile(path)
}

// Definition queries a definition with the pool's per-query timeout. A
// timeout feeds the breaker; any response, including an error or an empty
// result, resets it.
func (p *Pool) Definition(ctx context.Context, l lang.Language, path string, line, character int) ([]Location, error) {
	srv, err := p.get(ctx, l)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()
	locs, err := srv.Definition(queryCtx, path, line, character)

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		p.recordTimeout(l)
		return nil, err
	}
	p.resetTimeouts(l)
	return locs, err
}

func (p *Pool) recordTimeout(l lang.Language) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[l]
	if e == nil || e.degraded {
		return
	}
	e.timeouts++
	slog.Debug("lsp.pool.timeout", "lang", l, "consecutive", e.timeouts)
	if e.timeouts >= p.cfg.BreakerThreshold {
		e.degraded = true
		slog.Warn("lsp.pool.degraded", "lang", l, "timeouts", e.timeouts)
		if e.server != nil {
			go e.server.Close()
			e.server = nil
		}
	}
}

func (p *Pool) resetTimeouts(l lang.Language) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e := p.entries[l]; e != nil {
		e.timeouts = 0
	}
}

// Degraded lists the languages whose breaker tripped or whose server never
// started, sorted for stable reporting.
func (p *Pool) Degraded() []lang.Language {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []lang.Language
	for l, e := range p.entries {
		if e.degraded {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CloseAll shuts down every live server. Called once at end of run.
func (p *Pool) CloseAll() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.mu.Lock()
	defer p.mu.Unlock()
	for l, e := range p.entries {
		if e.server != nil {
			if err := e.server.Close(); err != nil {
				slog.Warn("lsp.pool.close.err", "lang", l, "err", err)
			}
			e.server = nil
		}
	}
}
