package external

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/component"
	"github.com/nerrad567/keygrid-core/internal/module"
	"github.com/nerrad567/keygrid-core/internal/process"
)

// DefaultRequestTimeout bounds a host request when none is configured.
const DefaultRequestTimeout = 5 * time.Second

// Methods sent by the host.
const (
	MethodEvent              = "event"
	MethodAddComponent       = "add_component"
	MethodRemoveComponent    = "remove_component"
	MethodComponentValues    = "component_values"
	MethodSetComponentValues = "set_component_values"
)

// Methods sent by a plugin.
const (
	MethodLog           = "log"
	MethodPress         = "press"
	MethodSetBrightness = "set_brightness"
)

// Transport carries protocol lines to the plugin process.
type Transport interface {
	WriteLine(line []byte) error
}

// Controller performs device operations a plugin asks for.
type Controller interface {
	Press(serial string, key uint8) error
	SetBrightness(serial string, percent uint8) error
}

// Logger defines the logging interface used by plugins.
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

// envelope is one protocol line in either direction.
type envelope struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type componentParams struct {
	Component string              `json:"component"`
	Button    button.Button       `json:"button"`
	Values    []component.UIValue `json:"values,omitempty"`
}

type valueResult struct {
	Value json.RawMessage `json:"value"`
}

type logParams struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type pressParams struct {
	Serial string `json:"serial"`
	Key    uint8  `json:"key"`
}

type brightnessParams struct {
	Serial  string `json:"serial"`
	Percent uint8  `json:"percent"`
}

// Plugin is an external plugin seen as a module.
type Plugin struct {
	module.Base

	manifest *Manifest
	timeout  time.Duration
	control  Controller
	logger   Logger

	transport Transport
	proc      *process.Manager

	mu      sync.Mutex
	pending map[string]chan envelope
	stopped bool
}

// Options configures a Plugin.
type Options struct {
	RequestTimeout time.Duration
	Controller     Controller
	Logger         Logger

	// Transport overrides the plugin process. Used by tests.
	Transport Transport
}

// New creates a plugin from its manifest. Call Start to launch it.
func New(m *Manifest, opts Options) *Plugin {
	p := &Plugin{
		manifest: m,
		timeout:  opts.RequestTimeout,
		control:  opts.Controller,
		logger:   opts.Logger,
		pending:  make(map[string]chan envelope),
	}
	if p.timeout <= 0 {
		p.timeout = DefaultRequestTimeout
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}

	if opts.Transport != nil {
		p.transport = opts.Transport
		return p
	}

	cfg := process.DefaultConfig(m.Name, m.Binary(), m.Args)
	cfg.Env = m.Env
	cfg.WorkDir = m.Dir
	cfg.OnLine = p.HandleLine
	cfg.OnStop = func(error) { p.failPending() }
	p.proc = process.NewManager(cfg)
	p.proc.SetLogger(p.logger)
	p.transport = p.proc
	return p
}

// Module returns the value to register with the module manager. Plugins
// with custom_editor get their component edits routed to the process.
func (p *Plugin) Module() module.Module {
	if p.manifest.CustomEditor {
		return &editingPlugin{p}
	}
	return p
}

// Manifest returns the plugin's manifest.
func (p *Plugin) Manifest() *Manifest { return p.manifest }

// Start launches the plugin process.
func (p *Plugin) Start(ctx context.Context) error {
	if p.proc == nil {
		return nil
	}
	return p.proc.Start(ctx)
}

// Stop stops the plugin process and fails outstanding requests.
func (p *Plugin) Stop() error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.failPending()
	if p.proc == nil {
		return nil
	}
	return p.proc.Stop()
}

// Stats reports the plugin process state.
func (p *Plugin) Stats() process.Stats {
	if p.proc == nil {
		return process.Stats{Name: p.manifest.Name, Status: process.StatusRunning}
	}
	return p.proc.Stats()
}

// Name implements module.Module.
func (p *Plugin) Name() string { return p.manifest.Name }

// Metadata implements module.Module.
func (p *Plugin) Metadata() module.Metadata { return p.manifest.Metadata() }

// Components implements module.Module.
func (p *Plugin) Components() map[string]component.Definition {
	return p.manifest.Definitions()
}

// ListeningFor implements module.Module.
func (p *Plugin) ListeningFor() []module.EventType {
	return p.manifest.EventTypes()
}

// HandleEvent implements module.Module by forwarding ev to the process.
func (p *Plugin) HandleEvent(_ context.Context, ev module.Event) {
	if err := p.notify(MethodEvent, ev); err != nil {
		p.logger.Warn("forwarding event to plugin", "plugin", p.Name(), "type", ev.Type, "error", err)
	}
}

func (p *Plugin) notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", method, err)
	}
	line, err := json.Marshal(envelope{Method: method, Params: raw})
	if err != nil {
		return err
	}
	return p.transport.WriteLine(line)
}

// call sends a request and decodes the result into out.
func (p *Plugin) call(method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", method, err)
	}
	id := uuid.NewString()
	ch := make(chan envelope, 1)

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	line, err := json.Marshal(envelope{ID: id, Method: method, Params: raw})
	if err != nil {
		return err
	}
	if err := p.transport.WriteLine(line); err != nil {
		return err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrStopped
		}
		if resp.Error != "" {
			return fmt.Errorf("%w: %s: %s", ErrPluginError, p.Name(), resp.Error)
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%w: %s: bad %s result: %w", ErrPluginError, p.Name(), method, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s %s after %v", ErrTimeout, p.Name(), method, p.timeout)
	}
}

func (p *Plugin) failPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
}

// HandleLine processes one line from the plugin process.
func (p *Plugin) HandleLine(line []byte) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		p.logger.Debug("plugin output", "plugin", p.Name(), "line", string(line))
		return
	}

	if env.ID != "" && env.Method == "" {
		p.mu.Lock()
		ch, ok := p.pending[env.ID]
		if ok {
			delete(p.pending, env.ID)
		}
		p.mu.Unlock()
		if !ok {
			p.logger.Warn("response for unknown request", "plugin", p.Name(), "id", env.ID)
			return
		}
		ch <- env
		return
	}

	if err := p.handleNotification(env); err != nil {
		p.logger.Warn("plugin notification failed", "plugin", p.Name(), "method", env.Method, "error", err)
	}
}

func (p *Plugin) handleNotification(env envelope) error {
	switch env.Method {
	case MethodLog:
		var lp logParams
		if err := json.Unmarshal(env.Params, &lp); err != nil {
			return err
		}
		switch lp.Level {
		case "debug":
			p.logger.Debug(lp.Message, "plugin", p.Name())
		case "warn":
			p.logger.Warn(lp.Message, "plugin", p.Name())
		case "error":
			p.logger.Error(lp.Message, "plugin", p.Name())
		default:
			p.logger.Info(lp.Message, "plugin", p.Name())
		}
		return nil
	case MethodPress:
		if p.control == nil {
			return fmt.Errorf("no controller")
		}
		var pp pressParams
		if err := json.Unmarshal(env.Params, &pp); err != nil {
			return err
		}
		// Presses dispatch events back to this plugin; never block its reader.
		go func() {
			if err := p.control.Press(pp.Serial, pp.Key); err != nil {
				p.logger.Warn("plugin press failed", "plugin", p.Name(), "serial", pp.Serial, "error", err)
			}
		}()
		return nil
	case MethodSetBrightness:
		if p.control == nil {
			return fmt.Errorf("no controller")
		}
		var bp brightnessParams
		if err := json.Unmarshal(env.Params, &bp); err != nil {
			return err
		}
		return p.control.SetBrightness(bp.Serial, bp.Percent)
	default:
		return fmt.Errorf("unknown method %q", env.Method)
	}
}

// editingPlugin routes component edits to the plugin process.
type editingPlugin struct {
	*Plugin
}

func (e *editingPlugin) AddComponent(b button.Button, name string) error {
	var res valueResult
	if err := e.call(MethodAddComponent, componentParams{Component: name, Button: b}, &res); err != nil {
		return err
	}
	if len(res.Value) == 0 {
		res.Value = json.RawMessage(`{}`)
	}
	b.SetRaw(name, res.Value)
	return nil
}

func (e *editingPlugin) RemoveComponent(b button.Button, name string) error {
	if err := e.call(MethodRemoveComponent, componentParams{Component: name, Button: b}, nil); err != nil {
		return err
	}
	b.Remove(name)
	return nil
}

func (e *editingPlugin) ComponentValues(b button.Button, name string) ([]component.UIValue, error) {
	var values []component.UIValue
	err := e.call(MethodComponentValues, componentParams{Component: name, Button: b}, &values)
	return values, err
}

func (e *editingPlugin) SetComponentValues(b button.Button, name string, values []component.UIValue) error {
	var res valueResult
	if err := e.call(MethodSetComponentValues, componentParams{Component: name, Button: b, Values: values}, &res); err != nil {
		return err
	}
	if len(res.Value) > 0 {
		b.SetRaw(name, res.Value)
	}
	return nil
}
