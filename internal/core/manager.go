package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/devconfig"
	"github.com/nerrad567/keygrid-core/internal/driver"
	"github.com/nerrad567/keygrid-core/internal/events"
	"github.com/nerrad567/keygrid-core/internal/module"
	"github.com/nerrad567/keygrid-core/internal/render"
	"github.com/nerrad567/keygrid-core/internal/session"
	"github.com/nerrad567/keygrid-core/internal/store"
)

// Default tuning values applied by New.
const (
	DefaultReconnectInterval = 5 * time.Second

	// reconnectParallelism bounds concurrent driver connects per tick.
	reconnectParallelism = 4
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ImageStore is the per-device image library.
type ImageStore interface {
	store.ImageRepository
	Source(serial string) render.ImageSource
}

// AddResult is the outcome of AddDevice.
type AddResult string

const (
	AddAlreadyRegistered AddResult = "AlreadyRegistered"
	AddNotFound          AddResult = "NotFound"
	AddAdded             AddResult = "Added"
)

// RemoveResult is the outcome of RemoveDevice.
type RemoveResult string

const (
	RemoveNotRegistered RemoveResult = "NotRegistered"
	RemoveRemoved       RemoveResult = "Removed"
)

// Options configures a Manager.
type Options struct {
	Drivers *driver.Manager
	Modules *module.Manager
	Configs *devconfig.Store

	// Optional stores.
	Images  ImageStore
	History store.HistoryRepository
	Metrics session.RenderRecorder

	// HistoryRetention prunes older action history when positive.
	HistoryRetention time.Duration

	ReconnectInterval time.Duration
	PollRate          float64
	QueueSize         int

	// Watch reloads devices whose config file is edited externally.
	Watch bool

	Logger Logger
}

// Manager supervises device sessions.
type Manager struct {
	opts   Options
	logger Logger

	hub       *events.Dispatcher[module.Event]
	clipboard button.Clipboard

	mu       sync.RWMutex
	sessions map[string]*session.Session
	// pending holds configured serials no driver has reported yet.
	pending map[string]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a Manager. Call Start to adopt configured devices.
func New(opts Options) (*Manager, error) {
	if opts.Drivers == nil || opts.Modules == nil || opts.Configs == nil {
		return nil, fmt.Errorf("%w: drivers, modules and configs are required", ErrInvalidOptions)
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	hub := events.New[module.Event]()
	hub.SetLogger(opts.Logger)
	return &Manager{
		opts:     opts,
		logger:   opts.Logger,
		hub:      hub,
		sessions: make(map[string]*session.Session),
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Events returns the hub every session event is published on.
func (m *Manager) Events() *events.Dispatcher[module.Event] { return m.hub }

// Modules returns the module manager.
func (m *Manager) Modules() *module.Manager { return m.opts.Modules }

// Start adopts every device with an active config and starts the
// reconnection routine and, if enabled, the config watcher.
func (m *Manager) Start(ctx context.Context) error {
	var err error
	m.startOnce.Do(func() {
		var serials []string
		serials, err = m.opts.Configs.List()
		if err != nil {
			err = fmt.Errorf("listing device configs: %w", err)
			return
		}

		m.mu.Lock()
		for _, serial := range serials {
			m.pending[serial] = struct{}{}
		}
		m.mu.Unlock()
		m.adoptPending(ctx)

		if m.opts.Watch {
			if werr := m.startWatcher(); werr != nil {
				m.logger.Warn("config watcher disabled", "error", werr)
			}
		}

		m.wg.Add(1)
		go m.reconnectLoop()

		m.logger.Info("device manager started", "configured", len(serials), "live", m.liveCount())
	})
	return err
}

// Stop ends background work and closes every session.
func (m *Manager) Stop(ctx context.Context) {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()

		for _, s := range m.sessionList() {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("closing session", "serial", s.Serial(), "error", err)
			}
		}
		m.logger.Info("device manager stopped")
	})
}

func (m *Manager) startWatcher() error {
	w, err := devconfig.NewWatcher(m.opts.Configs, m.configChanged)
	if err != nil {
		return err
	}
	w.SetLogger(m.logger)

	ctx, cancel := context.WithCancel(context.Background())
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-m.done
		cancel()
		_ = w.Close()
	}()
	go w.Run(ctx)
	return nil
}

// configChanged reloads a managed device or adopts a newly configured one.
func (m *Manager) configChanged(serial string) {
	if s, ok := m.lookup(serial); ok {
		if err := s.Reload(context.Background()); err != nil {
			m.logger.Warn("reloading externally edited config", "serial", serial, "error", err)
			return
		}
		m.logger.Info("reloaded externally edited config", "serial", serial)
		return
	}
	if !m.opts.Configs.Exists(serial) {
		return
	}
	m.mu.Lock()
	m.pending[serial] = struct{}{}
	m.mu.Unlock()
	m.adoptPending(context.Background())
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.ReconnectInterval)
	defer ticker.Stop()

	var lastPrune time.Time
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.opts.ReconnectInterval)
		m.reconnect(ctx)
		if m.opts.History != nil && m.opts.HistoryRetention > 0 && time.Since(lastPrune) > time.Hour {
			lastPrune = time.Now()
			m.pruneHistory(ctx)
		}
		cancel()
	}
}

// reconnect re-attaches closed sessions and adopts pending serials.
func (m *Manager) reconnect(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconnectParallelism)
	for _, s := range m.sessionList() {
		if st := s.State(); st == session.StateLive || st == session.StateConnecting {
			continue
		}
		s := s
		g.Go(func() error {
			if err := m.connect(gctx, s); err == nil {
				m.logger.Info("device reconnected", "serial", s.Serial())
			}
			return nil
		})
	}
	_ = g.Wait()
	m.adoptPending(ctx)
}

func (m *Manager) pruneHistory(ctx context.Context) {
	n, err := m.opts.History.Prune(ctx, time.Now().Add(-m.opts.HistoryRetention))
	if err != nil {
		m.logger.Warn("pruning action history", "error", err)
		return
	}
	if n > 0 {
		m.logger.Debug("pruned action history", "rows", n)
	}
}

// adoptPending creates sessions for pending serials a driver can now see.
func (m *Manager) adoptPending(ctx context.Context) {
	m.mu.RLock()
	if len(m.pending) == 0 {
		m.mu.RUnlock()
		return
	}
	m.mu.RUnlock()

	for _, id := range m.opts.Drivers.Discover(ctx) {
		m.mu.Lock()
		_, wanted := m.pending[id.Serial]
		_, exists := m.sessions[id.Serial]
		if !wanted || exists {
			m.mu.Unlock()
			continue
		}
		s, err := m.newSession(id)
		if err != nil {
			m.mu.Unlock()
			m.logger.Error("creating session", "serial", id.Serial, "error", err)
			continue
		}
		delete(m.pending, id.Serial)
		m.sessions[id.Serial] = s
		m.mu.Unlock()

		_ = m.connect(ctx, s)
	}
}

func (m *Manager) newSession(id driver.Identifier) (*session.Session, error) {
	opts := session.Options{
		Identifier: id,
		Configs:    m.opts.Configs,
		Sink:       m,
		PollRate:   m.opts.PollRate,
		QueueSize:  m.opts.QueueSize,
		Logger:     m.logger,
	}
	if m.opts.Images != nil {
		opts.Images = m.opts.Images.Source(id.Serial)
	}
	if m.opts.Metrics != nil {
		opts.Metrics = m.opts.Metrics
	}
	return session.New(opts)
}

func (m *Manager) connect(ctx context.Context, s *session.Session) error {
	dev, err := m.opts.Drivers.Connect(ctx, s.Identifier())
	if err != nil {
		m.logger.Debug("device not connectable", "serial", s.Serial(), "error", err)
		return err
	}
	if err := s.Attach(dev); err != nil {
		switch {
		case errors.Is(err, session.ErrClosed):
			m.logger.Debug("dropped connection of removed device", "serial", s.Serial())
		case !errors.Is(err, session.ErrAlreadyAttached):
			m.logger.Error("attaching device", "serial", s.Serial(), "error", err)
		}
		return err
	}
	return nil
}

// AddDevice starts managing serial. A previously removed device gets its
// disabled config back; otherwise a blank config is seeded on connect.
func (m *Manager) AddDevice(ctx context.Context, serial string) (AddResult, error) {
	if m.managed(serial) {
		return AddAlreadyRegistered, nil
	}
	id, ok := m.opts.Drivers.Find(ctx, serial)
	if !ok {
		return AddNotFound, nil
	}
	if _, err := m.opts.Configs.Restore(serial); err != nil && !errors.Is(err, devconfig.ErrNotDisabled) {
		return "", fmt.Errorf("restoring config: %w", err)
	}

	s, err := m.newSession(id)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	if _, exists := m.sessions[serial]; exists {
		m.mu.Unlock()
		return AddAlreadyRegistered, nil
	}
	m.sessions[serial] = s
	m.mu.Unlock()

	if err := m.connect(ctx, s); err != nil {
		m.logger.Warn("added device not yet connected", "serial", serial, "error", err)
	}
	m.logger.Info("device added", "serial", serial, "driver", id.Driver)
	return AddAdded, nil
}

// RemoveDevice stops managing serial and disables its config file.
func (m *Manager) RemoveDevice(ctx context.Context, serial string) (RemoveResult, error) {
	m.mu.Lock()
	s, live := m.sessions[serial]
	_, pending := m.pending[serial]
	delete(m.sessions, serial)
	delete(m.pending, serial)
	m.mu.Unlock()

	if !live && !pending {
		return RemoveNotRegistered, nil
	}
	if live {
		if err := s.Close(ctx); err != nil {
			m.logger.Warn("closing removed session", "serial", serial, "error", err)
		}
	}
	if err := m.opts.Configs.Disable(serial); err != nil && !errors.Is(err, devconfig.ErrNotFound) {
		return RemoveRemoved, fmt.Errorf("disabling config: %w", err)
	}
	m.logger.Info("device removed", "serial", serial)
	return RemoveRemoved, nil
}

func (m *Manager) managed(serial string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, live := m.sessions[serial]
	_, pending := m.pending[serial]
	return live || pending
}

func (m *Manager) lookup(serial string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[serial]
	return s, ok
}

// Session returns the session of serial.
func (m *Manager) Session(serial string) (*session.Session, error) {
	s, ok := m.lookup(serial)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	return s, nil
}

func (m *Manager) sessionList() []*session.Session {
	m.mu.RLock()
	out := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Serial() < out[j].Serial() })
	return out
}

func (m *Manager) liveCount() int {
	n := 0
	for _, s := range m.sessionList() {
		if s.Live() {
			n++
		}
	}
	return n
}

// Devices describes every managed device, sorted by serial.
func (m *Manager) Devices() []session.Info {
	list := m.sessionList()
	out := make([]session.Info, len(list))
	for i, s := range list {
		out[i] = s.Info()
	}
	return out
}

// Pending returns configured serials no driver has reported yet.
func (m *Manager) Pending() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.pending))
	for serial := range m.pending {
		out = append(out, serial)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Available lists discovered devices that are neither managed nor have
// an active config file.
func (m *Manager) Available(ctx context.Context) []driver.Identifier {
	var out []driver.Identifier
	for _, id := range m.opts.Drivers.Discover(ctx) {
		if m.managed(id.Serial) || m.opts.Configs.Exists(id.Serial) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// ReloadDevice replaces the in-memory state of serial with its config.
func (m *Manager) ReloadDevice(ctx context.Context, serial string) error {
	s, err := m.Session(serial)
	if err != nil {
		return err
	}
	return s.Reload(ctx)
}

// ReloadDevices reloads every managed device and returns the failures.
func (m *Manager) ReloadDevices(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for _, s := range m.sessionList() {
		if err := s.Reload(ctx); err != nil {
			failed[s.Serial()] = err
		}
	}
	return failed
}

// SaveDevice commits and persists the stack of serial.
func (m *Manager) SaveDevice(serial string) error {
	s, err := m.Session(serial)
	if err != nil {
		return err
	}
	return s.Save()
}

// SaveDevices saves every managed device and returns the failures.
func (m *Manager) SaveDevices() map[string]error {
	failed := make(map[string]error)
	for _, s := range m.sessionList() {
		if err := s.Save(); err != nil {
			failed[s.Serial()] = err
		}
	}
	return failed
}
