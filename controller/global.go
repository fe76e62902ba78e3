package controller

import "sync"

var (
	globalLock sync.Mutex
	global     *Controller
)

// SetGlobal sets the process-wide default controller.
//
// Library code should take a *Controller explicitly; the
// global controller is meant for application wiring.
func SetGlobal(c *Controller) {
	globalLock.Lock()
	defer globalLock.Unlock()
	global = c
}

// Global returns the process-wide default controller, or
// nil if none was set.
func Global() *Controller {
	globalLock.Lock()
	defer globalLock.Unlock()
	return global
}
