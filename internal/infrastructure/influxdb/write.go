package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by Keygrid.
const (
	MeasurementButtonPress  = "button_press"
	MeasurementSessionState = "session_state"
	MeasurementRender       = "render_pass"
)

// WriteButtonPress records one activation of a key.
//
// Parameters:
//   - serial: Device serial number
//   - key: Key index on the device
//   - components: Number of components on the pressed button
func (c *Client) WriteButtonPress(serial string, key uint8, components int) {
	c.WritePoint(MeasurementButtonPress,
		map[string]string{
			"serial": serial,
			"key":    strconv.Itoa(int(key)),
		},
		map[string]interface{}{
			"components": components,
		})
}

// WriteSessionState records a session lifecycle transition
// (e.g. "live", "closed").
func (c *Client) WriteSessionState(serial, state string) {
	c.WritePoint(MeasurementSessionState,
		map[string]string{
			"serial": serial,
		},
		map[string]interface{}{
			"state": state,
		})
}

// WriteRenderPass records statistics for one screen redraw.
//
// Parameters:
//   - serial: Device serial number
//   - keys: Keys drawn in this pass
//   - uploaded: Images newly sent to the device (cache misses)
//   - took: Wall time of the pass
func (c *Client) WriteRenderPass(serial string, keys, uploaded int, took time.Duration) {
	c.WritePoint(MeasurementRender,
		map[string]string{
			"serial": serial,
		},
		map[string]interface{}{
			"keys":        keys,
			"uploaded":    uploaded,
			"duration_ms": float64(took.Microseconds()) / 1000,
		})
}

// WritePoint writes a point with the current time.
//
// Example:
//
//	client.WritePoint("plugin_requests",
//	    map[string]string{"plugin": "obs"},
//	    map[string]interface{}{"latency_ms": 4.2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.written.Add(1)
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
