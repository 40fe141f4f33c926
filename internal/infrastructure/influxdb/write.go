package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/ovms-bridge/internal/entity"
)

// Measurement is the measurement name of every exported point.
const Measurement = "ovms_metrics"

// WriteObject queues the object's current value as a point. It reports
// whether a point was queued; values without a numeric form are skipped.
func (c *Client) WriteObject(obj *entity.Object) bool {
	if obj == nil || !c.IsConnected() {
		return false
	}
	ts := obj.UpdatedAt
	if ts.IsZero() {
		ts = c.now()
	}
	p, ok := PointFor(c.vehicle, obj, ts)
	if !ok {
		return false
	}
	c.writer.WritePoint(p)
	c.written.Add(1)
	return true
}

// PointFor builds the point for an object value.
//
// Numbers are written as field "value"; booleans as 1 or 0; positional
// fixes as "latitude" and "longitude" plus "gps_accuracy" when known.
//
// Returns:
//   - *write.Point: The point, tagged vehicle/category/path/type
//   - bool: false when the value has no numeric form
func PointFor(vehicleID string, obj *entity.Object, ts time.Time) (*write.Point, bool) {
	fields := fieldsFor(obj)
	if len(fields) == 0 {
		return nil, false
	}

	path := obj.Metric.Path
	if path == "" {
		path = obj.ID
	}
	tags := map[string]string{
		"vehicle":  vehicleID,
		"category": obj.Category,
		"path":     path,
		"type":     string(obj.Type),
	}
	return write.NewPoint(Measurement, tags, fields, ts), true
}

func fieldsFor(obj *entity.Object) map[string]any {
	switch v := obj.Value.(type) {
	case float64:
		return map[string]any{"value": v}
	case int:
		return map[string]any{"value": float64(v)}
	case bool:
		if v {
			return map[string]any{"value": 1.0}
		}
		return map[string]any{"value": 0.0}
	case map[string]float64:
		lat, okLat := v["latitude"]
		lon, okLon := v["longitude"]
		if !okLat || !okLon {
			return nil
		}
		fields := map[string]any{"latitude": lat, "longitude": lon}
		if acc, ok := obj.Attributes["gps_accuracy"].(float64); ok {
			fields["gps_accuracy"] = acc
		}
		return fields
	default:
		return nil
	}
}
