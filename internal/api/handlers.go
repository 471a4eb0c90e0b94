package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/component"
	"github.com/nerrad567/keygrid-core/internal/module"
	"github.com/nerrad567/keygrid-core/internal/render"
	"github.com/nerrad567/keygrid-core/internal/session"
)

// sourceSocket tags presses made through the control protocol.
const sourceSocket = "socket"

// call is one request being handled.
type call struct {
	ctx    context.Context
	req    Request
	client *wsClient // nil over HTTP
}

type handlerFunc func(c *call) reply

// reply is what a handler produces; dispatch turns it into a Response.
type reply struct {
	result  Result
	message string
	data    any
}

func ok(data any) reply { return reply{result: ResultOK, data: data} }

func failed(err error) reply {
	return reply{result: resultFor(err), message: err.Error()}
}

func with(result Result, message string) reply {
	return reply{result: result, message: message}
}

// decode unmarshals the request data into a T.
func decode[T any](c *call) (T, error) {
	var v T
	if len(c.req.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(c.req.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return v, nil
}

// Request payloads.
type (
	deviceData struct {
		Serial string `json:"serial"`
	}
	keyData struct {
		Serial string `json:"serial"`
		Key    uint8  `json:"key"`
	}
	componentData struct {
		Serial    string `json:"serial"`
		Key       uint8  `json:"key"`
		Component string `json:"component"`
	}
	valuesData struct {
		Serial    string              `json:"serial"`
		Key       uint8               `json:"key"`
		Component string              `json:"component"`
		Values    []component.UIValue `json:"values"`
	}
	brightnessData struct {
		Serial  string `json:"serial"`
		Percent uint8  `json:"percent"`
	}
	buttonData struct {
		Serial string        `json:"serial"`
		Key    uint8         `json:"key"`
		Button button.Button `json:"button"`
	}
	pasteData struct {
		Serial string `json:"serial"`
		Key    uint8  `json:"key"`
		Link   bool   `json:"link"`
	}
	screenData struct {
		Serial string           `json:"serial"`
		Screen *button.RawPanel `json:"screen"`
	}
	imageData struct {
		Serial string `json:"serial"`
		// Image is base64 encoded.
		Image string `json:"image"`
	}
	imageIDData struct {
		Serial string `json:"serial"`
		ID     string `json:"id"`
	}
	historyData struct {
		Serial string `json:"serial"`
		Limit  int    `json:"limit"`
	}
	subscribeData struct {
		Events []string `json:"events"`
	}
)

// handlerTable maps every request type to its handler.
func (s *Server) handlerTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		"socket_version":            s.socketVersion,
		"ping":                      s.ping,
		"list_devices":              s.listDevices,
		"get_device":                s.getDevice,
		"add_device":                s.addDevice,
		"remove_device":             s.removeDevice,
		"reload_device_config":      s.reloadDevice,
		"reload_device_configs":     s.reloadDevices,
		"save_device_config":        s.saveDevice,
		"save_device_configs":       s.saveDevices,
		"set_brightness":            s.setBrightness,
		"list_modules":              s.listModules,
		"list_components":           s.listComponents,
		"list_images":               s.listImages,
		"add_image":                 s.addImage,
		"remove_image":              s.removeImage,
		"get_stack":                 s.getStack,
		"get_current_screen":        s.getCurrentScreen,
		"get_button":                s.getButton,
		"set_button":                s.setButton,
		"clear_button":              s.clearButton,
		"new_button":                s.newButton,
		"new_button_from_component": s.newButtonFromComponent,
		"add_component":             s.addComponent,
		"remove_component":          s.removeComponent,
		"get_component_values":      s.getComponentValues,
		"set_component_values":      s.setComponentValues,
		"copy_button":               s.copyButton,
		"paste_button":              s.pasteButton,
		"push_screen":               s.pushScreen,
		"pop_screen":                s.popScreen,
		"forcibly_pop_screen":       s.forciblyPopScreen,
		"replace_screen":            s.replaceScreen,
		"reset_stack":               s.resetStack,
		"do_button_action":          s.doButtonAction,
		"commit_changes":            s.commitChanges,
		"get_action_history":        s.getActionHistory,
		"subscribe":                 s.subscribe,
		"unsubscribe":               s.unsubscribe,
	}
}

// dispatch runs the handler for req. It reports false for unknown types.
func (s *Server) dispatch(ctx context.Context, req Request, client *wsClient) (resp Response, handled bool) {
	h, found := s.handlers[req.Type]
	if !found {
		return Response{}, false
	}
	resp = Response{Type: req.Type, ID: req.ID}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered in request handler", "type", req.Type, "error", r)
			resp.Result = ResultError
			resp.Message = "internal error"
			resp.Data = nil
			handled = true
		}
	}()

	out := h(&call{ctx: ctx, req: req, client: client})
	resp.Result = out.result
	resp.Message = out.message
	resp.Data = out.data
	if out.result == ResultError {
		s.logger.Warn("request failed", "type", req.Type, "error", out.message)
	}
	return resp, true
}

// keyed resolves serial and checks key against the device layout.
func (s *Server) keyed(serial string, key uint8) (*session.Session, error) {
	sess, err := s.core.Session(serial)
	if err != nil {
		return nil, err
	}
	if !sess.Layout().ValidKey(key) {
		return nil, fmt.Errorf("%w: %d", session.ErrKeyOutOfRange, key)
	}
	return sess, nil
}

func (s *Server) socketVersion(*call) reply {
	return ok(map[string]string{
		module.FeatureSocketAPI: module.ContractVersion,
		"version":               s.version,
	})
}

func (s *Server) ping(*call) reply { return ok("pong") }

func (s *Server) listDevices(c *call) reply {
	return ok(map[string]any{
		"devices":   s.core.Devices(),
		"pending":   s.core.Pending(),
		"available": s.core.Available(c.ctx),
	})
}

func (s *Server) getDevice(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return failed(err)
	}
	return ok(sess.Info())
}

func (s *Server) addDevice(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	res, err := s.core.AddDevice(c.ctx, d.Serial)
	if err != nil {
		return failed(err)
	}
	return ok(map[string]any{"outcome": res})
}

func (s *Server) removeDevice(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	res, err := s.core.RemoveDevice(c.ctx, d.Serial)
	if err != nil {
		return failed(err)
	}
	return ok(map[string]any{"outcome": res})
}

func (s *Server) reloadDevice(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	if err := s.core.ReloadDevice(c.ctx, d.Serial); err != nil {
		return failed(err)
	}
	return with(ResultReloaded, "")
}

func (s *Server) reloadDevices(c *call) reply {
	out := with(ResultReloaded, "")
	if failures := s.core.ReloadDevices(c.ctx); len(failures) > 0 {
		out.data = map[string]any{"failed": errorMessages(failures)}
	}
	return out
}

func (s *Server) saveDevice(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	if err := s.core.SaveDevice(d.Serial); err != nil {
		return failed(err)
	}
	return with(ResultSaved, "")
}

func (s *Server) saveDevices(*call) reply {
	out := with(ResultSaved, "")
	if failures := s.core.SaveDevices(); len(failures) > 0 {
		out.data = map[string]any{"failed": errorMessages(failures)}
	}
	return out
}

func errorMessages(errs map[string]error) map[string]string {
	out := make(map[string]string, len(errs))
	for serial, err := range errs {
		out[serial] = err.Error()
	}
	return out
}

func (s *Server) setBrightness(c *call) reply {
	d, err := decode[brightnessData](c)
	if err != nil {
		return failed(err)
	}
	if err := s.core.Controller(sourceSocket).SetBrightness(d.Serial, d.Percent); err != nil {
		return failed(err)
	}
	return ok(nil)
}

func (s *Server) listModules(*call) reply {
	return ok(s.core.Modules().List())
}

func (s *Server) listComponents(*call) reply {
	return ok(s.core.Modules().Components().List())
}

func (s *Server) listImages(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	images, err := s.core.ListImages(c.ctx, d.Serial)
	if err != nil {
		return failed(err)
	}
	return ok(images)
}

func (s *Server) addImage(c *call) reply {
	d, err := decode[imageData](c)
	if err != nil {
		return failed(err)
	}
	if _, err := s.core.Session(d.Serial); err != nil {
		return failed(err)
	}
	raw, err := base64.StdEncoding.DecodeString(d.Image)
	if err != nil {
		return failed(fmt.Errorf("%w: %v", render.ErrInvalidImage, err))
	}
	info, err := s.core.AddImage(c.ctx, d.Serial, raw)
	if err != nil {
		return failed(err)
	}
	return ok(info)
}

func (s *Server) removeImage(c *call) reply {
	d, err := decode[imageIDData](c)
	if err != nil {
		return failed(err)
	}
	if err := s.core.RemoveImage(c.ctx, d.Serial, d.ID); err != nil {
		return failed(err)
	}
	return ok(nil)
}

func (s *Server) getStack(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return failed(err)
	}
	return ok(sess.Stack().Snapshot())
}

func (s *Server) getCurrentScreen(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return failed(err)
	}
	return ok(sess.Stack().Top().Raw())
}

func (s *Server) getButton(c *call) reply {
	d, err := decode[keyData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.keyed(d.Serial, d.Key)
	if err != nil {
		return failed(err)
	}
	u, found := sess.Button(d.Key)
	if !found {
		return with(ResultButtonNotFound, fmt.Sprintf("no button at key %d", d.Key))
	}
	return ok(u.Snapshot())
}

func (s *Server) setButton(c *call) reply {
	d, err := decode[buttonData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return failed(err)
	}
	if d.Button == nil {
		d.Button = button.New()
	}
	if err := sess.SetButton(d.Key, d.Button); err != nil {
		return failed(err)
	}
	return ok(nil)
}

func (s *Server) clearButton(c *call) reply {
	d, err := decode[keyData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return failed(err)
	}
	cleared, err := sess.ClearButton(d.Key)
	if err != nil {
		return failed(err)
	}
	if !cleared {
		return with(ResultButtonNotFound, fmt.Sprintf("no button at key %d", d.Key))
	}
	return ok(nil)
}

func (s *Server) newButton(c *call) reply {
	d, err := decode[keyData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return failed(err)
	}
	u, err := sess.NewButton(d.Key)
	if err != nil {
		return failed(err)
	}
	return ok(u.Snapshot())
}

func componentNotFound(name string) reply {
	return with(ResultComponentNotFound, fmt.Sprintf("unknown component %q", name))
}

func (s *Server) newButtonFromComponent(c *call) reply {
	d, err := decode[componentData](c)
	if err != nil {
		return failed(err)
	}
	added, err := s.core.NewButtonFromComponent(d.Serial, d.Key, d.Component)
	if err != nil {
		return failed(err)
	}
	if !added {
		return componentNotFound(d.Component)
	}
	return ok(nil)
}

func (s *Server) addComponent(c *call) reply {
	d, err := decode[componentData](c)
	if err != nil {
		return failed(err)
	}
	if _, err := s.keyed(d.Serial, d.Key); err != nil {
		return failed(err)
	}
	added, err := s.core.AddComponent(d.Serial, d.Key, d.Component)
	if err != nil {
		return failed(err)
	}
	if !added {
		return componentNotFound(d.Component)
	}
	return ok(nil)
}

func (s *Server) removeComponent(c *call) reply {
	d, err := decode[componentData](c)
	if err != nil {
		return failed(err)
	}
	if _, err := s.keyed(d.Serial, d.Key); err != nil {
		return failed(err)
	}
	removed, err := s.core.RemoveComponent(d.Serial, d.Key, d.Component)
	if err != nil {
		return failed(err)
	}
	if !removed {
		return componentNotFound(d.Component)
	}
	return ok(nil)
}

func (s *Server) getComponentValues(c *call) reply {
	d, err := decode[componentData](c)
	if err != nil {
		return failed(err)
	}
	if _, err := s.keyed(d.Serial, d.Key); err != nil {
		return failed(err)
	}
	values, found, err := s.core.ComponentValues(d.Serial, d.Key, d.Component)
	if err != nil {
		return failed(err)
	}
	if !found {
		return componentNotFound(d.Component)
	}
	return ok(values)
}

func (s *Server) setComponentValues(c *call) reply {
	d, err := decode[valuesData](c)
	if err != nil {
		return failed(err)
	}
	if _, err := s.keyed(d.Serial, d.Key); err != nil {
		return failed(err)
	}
	found, err := s.core.SetComponentValues(d.Serial, d.Key, d.Component, d.Values)
	if err != nil {
		return failed(err)
	}
	if !found {
		return componentNotFound(d.Component)
	}
	return ok(nil)
}

func (s *Server) copyButton(c *call) reply {
	d, err := decode[keyData](c)
	if err != nil {
		return failed(err)
	}
	if _, err := s.keyed(d.Serial, d.Key); err != nil {
		return failed(err)
	}
	if err := s.core.Copy(d.Serial, d.Key); err != nil {
		return failed(err)
	}
	return ok(nil)
}

func (s *Server) pasteButton(c *call) reply {
	d, err := decode[pasteData](c)
	if err != nil {
		return failed(err)
	}
	if err := s.core.Paste(d.Serial, d.Key, d.Link); err != nil {
		return failed(err)
	}
	return ok(nil)
}

// screen resolves the session and the panel carried by a screen request.
// A missing screen yields an empty unnamed panel.
func (s *Server) screen(c *call) (*session.Session, *button.Panel, error) {
	d, err := decode[screenData](c)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return nil, nil, err
	}
	raw := button.NewRawPanel("")
	if d.Screen != nil {
		raw = *d.Screen
	}
	if raw.Buttons == nil {
		raw.Buttons = map[uint8]button.Button{}
	}
	return sess, button.NewPanel(raw), nil
}

func (s *Server) pushScreen(c *call) reply {
	sess, p, err := s.screen(c)
	if err != nil {
		return failed(err)
	}
	sess.Push(p)
	return ok(map[string]int{"depth": sess.Stack().Depth()})
}

func (s *Server) popScreen(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return failed(err)
	}
	return ok(map[string]any{"popped": sess.Pop(), "depth": sess.Stack().Depth()})
}

func (s *Server) forciblyPopScreen(c *call) reply {
	d, err := decode[deviceData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return failed(err)
	}
	sess.ForcePop()
	return ok(map[string]int{"depth": sess.Stack().Depth()})
}

func (s *Server) replaceScreen(c *call) reply {
	sess, p, err := s.screen(c)
	if err != nil {
		return failed(err)
	}
	sess.Replace(p)
	return ok(nil)
}

// resetStack makes the given screen the only panel. Without a screen the
// current root is kept and everything above it dropped.
func (s *Server) resetStack(c *call) reply {
	d, err := decode[screenData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.core.Session(d.Serial)
	if err != nil {
		return failed(err)
	}
	root := sess.Stack().Root()
	if d.Screen != nil {
		raw := *d.Screen
		if raw.Buttons == nil {
			raw.Buttons = map[uint8]button.Button{}
		}
		root = button.NewPanel(raw)
	}
	sess.ResetStack(root)
	return ok(nil)
}

func (s *Server) doButtonAction(c *call) reply {
	d, err := decode[keyData](c)
	if err != nil {
		return failed(err)
	}
	sess, err := s.keyed(d.Serial, d.Key)
	if err != nil {
		return failed(err)
	}
	pressed, err := sess.Press(c.ctx, d.Key, sourceSocket)
	if err != nil {
		return failed(err)
	}
	if !pressed {
		return with(ResultButtonNotFound, fmt.Sprintf("no button at key %d", d.Key))
	}
	return ok(nil)
}

// commitChanges folds pushed panels back into their buttons and saves.
func (s *Server) commitChanges(c *call) reply {
	return s.saveDevice(c)
}

func (s *Server) getActionHistory(c *call) reply {
	d, err := decode[historyData](c)
	if err != nil {
		return failed(err)
	}
	actions, err := s.core.History(c.ctx, d.Serial, d.Limit)
	if err != nil {
		return failed(err)
	}
	return ok(actions)
}

func (s *Server) subscribe(c *call) reply {
	if c.client == nil {
		return with(ResultUnsupported, "subscriptions need a websocket connection")
	}
	d, err := decode[subscribeData](c)
	if err != nil {
		return failed(err)
	}
	c.client.subscribe(d.Events)
	return ok(map[string][]string{"subscribed": c.client.subscribed()})
}

func (s *Server) unsubscribe(c *call) reply {
	if c.client == nil {
		return with(ResultUnsupported, "subscriptions need a websocket connection")
	}
	d, err := decode[subscribeData](c)
	if err != nil {
		return failed(err)
	}
	c.client.unsubscribe(d.Events)
	return ok(map[string][]string{"subscribed": c.client.subscribed()})
}
