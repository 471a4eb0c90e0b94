package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeDaemon answers every request with Ok and echoes the request data,
// pushing one event before each response. Type "mystery" gets no answer.
func fakeDaemon(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "kgc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "ctl.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				Type string          `json:"type"`
				ID   string          `json:"id"`
				Data json.RawMessage `json:"data"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Type == "mystery" {
				continue
			}
			conn.WriteJSON(map[string]any{
				"type": "event",
				"data": map[string]string{"type": "panel_changed", "serial": "VIRT1"},
			})
			result := "Ok"
			if req.Type == "get_device" && strings.Contains(string(req.Data), "MISSING") {
				result = "DeviceNotFound"
			}
			conn.WriteJSON(map[string]any{
				"type":   req.Type,
				"id":     req.ID,
				"result": result,
				"data":   req.Data,
			})
		}
	}))
	srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return path
}

func TestClient_DoMatchesResponseAndBuffersEvents(t *testing.T) {
	path := fakeDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, path)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	for i := 0; i < 2; i++ {
		resp, err := c.Do(ctx, "get_button", map[string]any{"serial": "VIRT1", "key": 3})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if resp.Result != "Ok" || resp.Type != "get_button" {
			t.Errorf("resp = %+v", resp)
		}
		if err := resp.Err(); err != nil {
			t.Errorf("Err() = %v", err)
		}
	}
	if len(c.events) != 2 {
		t.Errorf("buffered events = %d, want 2", len(c.events))
	}
}

func TestClient_UnknownTypeTimesOut(t *testing.T) {
	path := fakeDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	c, err := Dial(ctx, path)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Do(ctx, "mystery", nil); !errors.Is(err, ErrNoResponse) {
		t.Errorf("Do() error = %v, want ErrNoResponse", err)
	}
}

func TestClient_DialMissingSocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, filepath.Join(t.TempDir(), "none.sock")); err == nil {
		t.Error("Dial() should fail without a daemon")
	}
}

func TestResponseErr(t *testing.T) {
	tests := []struct {
		resp    Response
		wantErr string
	}{
		{Response{Result: "Ok"}, ""},
		{Response{Result: "Saved"}, ""},
		{Response{Result: "Reloaded"}, ""},
		{Response{Result: "DeviceNotFound"}, "DeviceNotFound"},
		{Response{Result: "BadRequest", Message: "missing serial"}, "BadRequest: missing serial"},
	}
	for _, tt := range tests {
		err := tt.resp.Err()
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("%s: Err() = %v", tt.resp.Result, err)
			}
			continue
		}
		if err == nil || err.Error() != tt.wantErr {
			t.Errorf("%s: Err() = %v, want %q", tt.resp.Result, err, tt.wantErr)
		}
	}
}

func TestParseUint8(t *testing.T) {
	tests := []struct {
		in      string
		want    uint8
		wantErr bool
	}{
		{"0", 0, false},
		{"14", 14, false},
		{"255", 255, false},
		{"256", 0, true},
		{"-1", 0, true},
		{"seven", 0, true},
	}
	for _, tt := range tests {
		got, err := parseUint8("key", tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseUint8(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_SendRequestData(t *testing.T) {
	path := fakeDaemon(t)

	out, err := execute(t, "--socket", path, "button", "paste", "VIRT1", "4", "--link")
	if err != nil {
		t.Fatalf("button paste error = %v", err)
	}
	for _, want := range []string{`"serial": "VIRT1"`, `"key": 4`, `"link": true`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}

	if _, err := execute(t, "--socket", path, "device", "MISSING"); err == nil ||
		!strings.Contains(err.Error(), "DeviceNotFound") {
		t.Errorf("device MISSING error = %v", err)
	}

	if _, err := execute(t, "--socket", path, "brightness", "VIRT1", "120"); !errors.Is(err, errPercent) {
		t.Errorf("brightness 120 error = %v, want errPercent", err)
	}

	if _, err := execute(t, "--socket", path, "press", "VIRT1", "999"); err == nil {
		t.Error("press with key 999 should fail")
	}
}
