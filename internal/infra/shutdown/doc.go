// Package shutdown coordinates graceful process termination.
//
// Hooks run in reverse registration order under a shared deadline once
// SIGINT/SIGTERM arrives, the parent context ends, or Trigger is called.
package shutdown
