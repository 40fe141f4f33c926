// Package command implements the vehicle command channel.
//
// Commands are fire-and-forget publishes on the wire. The Correlator gives
// each one a short ID, publishes it on a per-ID command topic, and suspends
// the caller until the reply arrives on the matching response topic, the
// timeout elapses, or the caller gives up. A RateLimiter bounds how many
// commands can be issued per window, and a periodic sweep fails anything
// left pending past a fixed age.
//
// Usage:
//
//	limiter := command.NewRateLimiter(5, time.Minute)
//	c := command.NewCorrelator(command.Config{BaseTopic: base}, conn, limiter)
//	c.Start(ctx)
//	defer c.Shutdown()
//
//	res := c.SendCommand(ctx, "stat", "", 10*time.Second)
//	if !res.Success {
//	    log.Println(res.Error)
//	}
package command
