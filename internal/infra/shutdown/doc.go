// Package shutdown runs ordered cleanup hooks when sessiond is asked to stop.
//
// Hooks run in reverse registration order under a shared deadline, so
// components registered last (the metrics listener, the rotator) stop before
// the ones they depend on (the handler, storage).
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("storage", store.Close)
//	err := h.Wait(ctx)
package shutdown
