// Package influxdb exports object updates as time-series points.
//
// It wraps the official influxdb-client-go v2 non-blocking write API. Every
// numeric, boolean or positional update becomes one point in the
// ovms_metrics measurement, tagged with the vehicle, the object's category,
// metric path and type. Text and structured values are not exported.
//
// Writes are batched according to influxdb.batch_size and
// influxdb.flush_interval; asynchronous write failures are delivered to the
// callback registered with SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Vehicle.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // export turned off
//	}
//	defer client.Close()
//
//	client.WriteObject(obj)
package influxdb
