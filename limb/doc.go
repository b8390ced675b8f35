// Package limb coordinates real-time actuation of a pneumatically driven
// robotic limb.
//
// An Env owns two worker goroutines: the comm worker streams per-muscle
// contraction readings from the hardware bridge into a lock-guarded shared
// buffer, and the control worker drains a capacity-1 command channel and
// forwards each action vector to the actuation path. On top of that
// machinery the Env exposes a synchronous observe/act surface: Connect,
// GetObs, Step, KeepStep, LooseAll, Reset, Close and ForceClose.
//
// Workers never crash the process. A worker that hits an unrecoverable
// failure records it in its fault slot and stops; the next GetObs or Step
// call detects the fault, tears both workers down and returns a *Fault
// wrapping the original cause. There are no automatic retries; the caller
// decides whether to Connect again.
package limb
