// Package connection supervises the broker session for one vehicle.
//
// The Manager wraps a single-session transport (internal/infrastructure/mqtt)
// with the reconnect policy, presence announcements and the subscription
// set. Each session is configured with a retained "offline" last will on the
// vehicle status topic and announces "online" once connected.
//
// # Reconnect policy
//
// Transport failures are retried with exponential backoff and jitter,
// starting at InitialDelay and capped at MaxDelay. After MaxAttempts
// consecutive failures the manager enters StateFailed and reports
// ErrRetriesExhausted through Handlers.OnFatal. Authentication refusals skip
// the retry loop entirely and are reported as ErrAuth.
//
// # Usage
//
//	mgr := connection.New(connection.ConfigFromMQTT(cfg.MQTT, topics),
//	    connection.MQTTDialer(cfg.MQTT, log),
//	    connection.Handlers{OnMessage: session.Enqueue})
//	if err := mgr.Connect(ctx); errors.Is(err, connection.ErrAuth) {
//	    return err
//	}
//	defer mgr.Shutdown(context.Background())
package connection
