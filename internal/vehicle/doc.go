// Package vehicle is the host-facing session for one OVMS vehicle module.
//
// A Session owns one instance of every moving part: the connection manager,
// the classifier, registry and factory, the object store, the dispatcher
// and the command correlator. Nothing is shared between sessions.
//
// # Inbound path
//
// The transport delivers messages on its router goroutine. The session
// offers each one to the correlator first (command replies), then enqueues
// it on a bounded channel drained by a single worker that calls Dispatch.
// Per-topic ordering is arrival order. A full queue drops the message and
// counts it.
//
// # Shutdown
//
// Shutdown sets the closing flag, expires pending commands, stops the
// reconnect timer, publishes a best-effort "offline", closes the transport
// and finally stops the worker.
//
// # Usage
//
//	sess, err := vehicle.New(vehicle.ConfigFrom(cfg), vehicle.Deps{
//	    Dialer: connection.MQTTDialer(cfg.MQTT, log),
//	    Logger: log,
//	}, vehicle.Callbacks{Updated: hub.Broadcast})
//	if err != nil {
//	    return err
//	}
//	if err := sess.Start(ctx); errors.Is(err, connection.ErrAuth) {
//	    return err
//	}
//	defer sess.Shutdown(context.Background())
//
//	res := sess.SendCommand(ctx, "stat", "", 0)
package vehicle
