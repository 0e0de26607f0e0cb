// Package registry implements the Connection Registry (spec.md §4.4): a
// process-wide mapping from server name to live Client, with per-name
// serialization of start/stop/temporary-connect.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/mcpclient"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/settings"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/transport"
)

// ErrAlreadyRunning is returned by Start when a Client for the name is
// already registered.
var ErrAlreadyRunning = errors.New("registry: server is already running")

const defaultConnectTimeout = 30 * time.Second

// Status is one row of Snapshot's result.
type Status struct {
	Name         string
	Running      bool
	Capabilities []byte
}

// Registry is the process-wide server-name to Client mapping.
type Registry struct {
	validator mcpclient.Validator
	log       logging.Logger

	mu      sync.Mutex
	clients map[string]*mcpclient.Client

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex
}

func New(validator mcpclient.Validator) *Registry {
	return &Registry{
		validator: validator,
		log:       logging.GetDefault().With("component", "registry"),
		clients:   make(map[string]*mcpclient.Client),
		keyLocks:  make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockFor(name string) *sync.Mutex {
	r.keyLocksMu.Lock()
	defer r.keyLocksMu.Unlock()
	l, ok := r.keyLocks[name]
	if !ok {
		l = &sync.Mutex{}
		r.keyLocks[name] = l
	}
	return l
}

// Get returns the live Client for name, if any.
func (r *Registry) Get(name string) (*mcpclient.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[name]
	return c, ok
}

// Start constructs an adapter and Client from entry, runs the handshake,
// and registers it. Fails with ErrAlreadyRunning if name is already
// registered; on any other error the partially-constructed Client is
// fully torn down and nothing is inserted.
func (r *Registry) Start(ctx context.Context, entry settings.ServerEntry) (*mcpclient.Client, error) {
	lock := r.lockFor(entry.Name)
	lock.Lock()
	defer lock.Unlock()
	return r.startLocked(ctx, entry)
}

func (r *Registry) startLocked(ctx context.Context, entry settings.ServerEntry) (*mcpclient.Client, error) {
	r.mu.Lock()
	_, exists := r.clients[entry.Name]
	r.mu.Unlock()
	if exists {
		return nil, ErrAlreadyRunning
	}

	adapter, err := transport.New(transport.Config{
		Kind:    transport.Kind(entry.Type),
		Command: entry.Command,
		Args:    entry.Args,
		Env:     entry.Env,
		URL:     entry.URL,
	})
	if err != nil {
		return nil, err
	}

	timeout := entry.Timeout(defaultConnectTimeout)
	client := mcpclient.New(entry.Name, adapter,
		mcpclient.WithValidator(r.validator),
		mcpclient.WithRequestTimeout(timeout),
	)

	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Start(startCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}

	r.mu.Lock()
	r.clients[entry.Name] = client
	r.mu.Unlock()
	return client, nil
}

// Stop is a no-op if name is absent; otherwise it removes and closes the
// Client.
func (r *Registry) Stop(ctx context.Context, name string) error {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()
	return r.stopLocked(ctx, name)
}

func (r *Registry) stopLocked(ctx context.Context, name string) error {
	r.mu.Lock()
	client, ok := r.clients[name]
	if ok {
		delete(r.clients, name)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return client.Close(ctx)
}

// TemporaryConnect starts entry only if it is not already running, runs
// action against the resulting Client, and stops it on the way out iff
// this call started it. Cleanup runs on both the success and failure
// paths of action.
func (r *Registry) TemporaryConnect(
	ctx context.Context,
	entry settings.ServerEntry,
	action func(*mcpclient.Client) error,
) error {
	lock := r.lockFor(entry.Name)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	client, exists := r.clients[entry.Name]
	r.mu.Unlock()

	startedHere := false
	if !exists {
		c, err := r.startLocked(ctx, entry)
		if err != nil {
			return err
		}
		client = c
		startedHere = true
	}

	actionErr := action(client)
	if startedHere {
		_ = r.stopLocked(ctx, entry.Name)
	}
	return actionErr
}

// Snapshot returns a (name, is_running, capabilities) row for every
// currently registered Client, read concurrently.
func (r *Registry) Snapshot(ctx context.Context) []Status {
	r.mu.Lock()
	names := make([]string, 0, len(r.clients))
	clients := make(map[string]*mcpclient.Client, len(r.clients))
	for name, c := range r.clients {
		names = append(names, name)
		clients[name] = c
	}
	r.mu.Unlock()

	statuses := make([]Status, len(names))
	g, _ := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			c := clients[name]
			statuses[i] = Status{
				Name:         name,
				Running:      c.State() == mcpclient.StateReady,
				Capabilities: c.Capabilities(),
			}
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

// Shutdown stops every registered Client concurrently, used at process
// teardown.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return r.Stop(gctx, name)
		})
	}
	return g.Wait()
}
