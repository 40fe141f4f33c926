package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/ovms-bridge/internal/entity"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/config"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	w.points = append(w.points, p)
	w.mu.Unlock()
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func tagsOf(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fieldsOf(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

var ts = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(context.Background(), config.InfluxDBConfig{Enabled: false}, "car1")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1", Token: "t", Org: "o", Bucket: "b"}
	_, err := Connect(ctx, cfg, "car1")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPointForScalar(t *testing.T) {
	obj := &entity.Object{
		ID: "car1_v_b_soc", Type: entity.TypeScalar, Category: "battery", Value: 76.5,
		Metric: entity.Metric{Path: "v.b.soc"},
	}

	p, ok := PointFor("car1", obj, ts)
	if !ok {
		t.Fatal("PointFor() ok = false")
	}
	if p.Name() != Measurement {
		t.Errorf("Name() = %q", p.Name())
	}
	tags := tagsOf(p)
	want := map[string]string{"vehicle": "car1", "category": "battery", "path": "v.b.soc", "type": "scalar"}
	for k, v := range want {
		if tags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, tags[k], v)
		}
	}
	if fieldsOf(p)["value"] != 76.5 {
		t.Errorf("fields = %v", fieldsOf(p))
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v", p.Time())
	}
}

func TestPointForValues(t *testing.T) {
	tests := []struct {
		name   string
		obj    *entity.Object
		ok     bool
		fields map[string]any
	}{
		{"bool true", &entity.Object{ID: "a", Type: entity.TypeBoolean, Value: true}, true, map[string]any{"value": 1.0}},
		{"bool false", &entity.Object{ID: "a", Type: entity.TypeBoolean, Value: false}, true, map[string]any{"value": 0.0}},
		{"text skipped", &entity.Object{ID: "a", Value: "3.3.004"}, false, nil},
		{"nil skipped", &entity.Object{ID: "a"}, false, nil},
		{
			"fix with accuracy",
			&entity.Object{
				ID: "car1_location", Type: entity.TypePositionalFix,
				Value:      map[string]float64{"latitude": 52.1, "longitude": 5.3},
				Attributes: map[string]any{"gps_accuracy": 6.0},
			},
			true,
			map[string]any{"latitude": 52.1, "longitude": 5.3, "gps_accuracy": 6.0},
		},
		{
			"incomplete fix skipped",
			&entity.Object{ID: "x", Type: entity.TypePositionalFix, Value: map[string]float64{"latitude": 52.1}},
			false, nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := PointFor("car1", tt.obj, ts)
			if ok != tt.ok {
				t.Fatalf("PointFor() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			got := fieldsOf(p)
			if len(got) != len(tt.fields) {
				t.Fatalf("fields = %v, want %v", got, tt.fields)
			}
			for k, v := range tt.fields {
				if got[k] != v {
					t.Errorf("field %s = %v, want %v", k, got[k], v)
				}
			}
			if tagsOf(p)["path"] != tt.obj.ID {
				t.Errorf("path tag = %q, want object id fallback", tagsOf(p)["path"])
			}
		})
	}
}

func TestWriteObject(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(w, "car1")
	c.now = func() time.Time { return ts }

	if !c.WriteObject(&entity.Object{ID: "a", Value: 1.5}) {
		t.Error("WriteObject(number) = false")
	}
	if c.WriteObject(&entity.Object{ID: "b", Value: "text"}) {
		t.Error("WriteObject(text) = true")
	}
	if c.WriteObject(nil) {
		t.Error("WriteObject(nil) = true")
	}
	if c.Written() != 1 || len(w.points) != 1 {
		t.Fatalf("Written() = %d, points = %d", c.Written(), len(w.points))
	}
	if !w.points[0].Time().Equal(ts) {
		t.Error("zero UpdatedAt must fall back to now")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
	if c.WriteObject(&entity.Object{ID: "a", Value: 2.0}) {
		t.Error("WriteObject after Close = true")
	}
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes after close = %d, want 1", w.flushes)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c := newClient(&fakeWriter{}, "car1")
	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	ch := make(chan error, 1)
	ch <- errors.New("write failed")
	close(ch)
	c.handleWriteErrors(ch)

	select {
	case err := <-got:
		if err.Error() != "write failed" {
			t.Errorf("callback error = %v", err)
		}
	default:
		t.Error("callback not invoked")
	}
}
