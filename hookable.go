package mailcore

// HookableCommandHandler is a command whose behavior is extended by an
// ordered list of hooks of a single capability type H (HeloHook, MailHook,
// RcptHook, MessageHook, AuthHook, QuitHook, ...). Each SMTP/LMTP/POP3
// command handler embeds the HookableCommandHandler for the one hook
// capability it cares about, instead of a single fixed callback interface,
// so adding a new extension point never touches the handlers that don't
// use it.
type HookableCommandHandler[H Hook] struct {
	hooks []H

	// Metrics, if set, records a HookDenials observation for the hook that
	// terminates the chain. A nil Metrics is a valid no-op.
	Metrics *Metrics
}

// RegisterHook appends a hook to the chain. Hooks run in registration
// order.
func (c *HookableCommandHandler[H]) RegisterHook(h H) {
	c.hooks = append(c.hooks, h)
}

// Hooks returns the registered hooks in registration order.
func (c *HookableCommandHandler[H]) Hooks() []H {
	return c.hooks
}

// RunHooks invokes each registered hook in turn via the supplied adapter
// (which closes over the command-specific arguments and calls the hook's
// typed method), folding results with the standard merge rule: the first
// hook returning DENY, DENYSOFT, or DISCONNECT is the last hook invoked,
// and its denial is recorded against Metrics by that hook's name.
func (c *HookableCommandHandler[H]) RunHooks(invoke func(H) HookResult) HookResult {
	tentative := Declined()
	for _, h := range c.hooks {
		r := invoke(h)
		if r.Terminates() {
			c.Metrics.ObserveHookDenial(h.HookName(), r.Action)
			return r
		}
		if r.Action == HookOK {
			tentative = r
		}
	}
	return tentative
}

// Execute runs the hook chain first and only calls core (the state
// mutation plus default response for the command) if no hook terminated
// the chain with DENY, DENYSOFT, or DISCONNECT, matching the documented
// HookResult contract (hook.go). A terminating hook's own Response is
// returned as-is, without ever invoking core, so a denied MAIL/RCPT/etc.
// never mutates session or envelope state. An OK result continues to core
// (OK doesn't stop the chain) but its Response, if set, overrides core's
// default reply text.
func (c *HookableCommandHandler[H]) Execute(core func() Response, invoke func(H) HookResult) Response {
	result := c.RunHooks(invoke)
	if result.Terminates() {
		if result.Response != nil {
			return *result.Response
		}
		return Response{}
	}
	coreResp := core()
	if result.Action == HookOK && result.Response != nil {
		return *result.Response
	}
	return coreResp
}
