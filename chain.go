package mailcore

import "context"

// ConnectHandler runs once per accepted connection, before any command is
// read, and may reject the connection outright (an IP reputation check, a
// concurrent-connection-per-IP limit). Handlers run in registration order
// and are folded with the same DECLINED/OK/DENY/DENYSOFT/DISCONNECT merge
// rule as command hooks.
type ConnectHandler interface {
	Hook
	HandleConnect(ctx context.Context, sess *Session) HookResult
}

// CommandHandler implements one or more protocol command verbs. Most
// handlers implement exactly one verb (e.g. "MAIL"); a handler may
// register for several when they share implementation (e.g. HELO/EHLO).
type CommandHandler interface {
	// Verbs returns the command verbs this handler answers for, matched
	// case-insensitively by the dispatcher.
	Verbs() []string

	// HandleCommand runs the command: filter checks, core behavior, and
	// (for hookable commands) the hook chain, in that order.
	HandleCommand(ctx context.Context, sess *Session, verb string, args string) (Response, error)
}

// ExtensibleHandler is implemented by a CommandHandler that needs to wire
// itself into another handler once the full chain is assembled, e.g.
// STARTTLS registering its capability string into the EHLO handler's
// advertised extension list. WireExtensions runs exactly once, after every
// handler has been registered with the chain, so wiring order never
// depends on registration order.
type ExtensibleHandler interface {
	WireExtensions(chain *HandlerChain) error
}

// HandlerChain is the per-listener set of connect and command handlers
// shared by every session the listener accepts. It is built once at
// startup and is read-only thereafter, so it is safe to share across the
// goroutines/workers serving concurrent connections.
type HandlerChain struct {
	connectHandlers []ConnectHandler
	commands        map[string]CommandHandler
	wired           bool
}

// NewHandlerChain creates an empty chain.
func NewHandlerChain() *HandlerChain {
	return &HandlerChain{commands: make(map[string]CommandHandler)}
}

// RegisterConnect adds a ConnectHandler, run in registration order. It
// returns a WiringError if the chain has already been wired, rather than
// silently accepting a handler that will never be consulted.
func (c *HandlerChain) RegisterConnect(h ConnectHandler) error {
	if c.wired {
		return &WiringError{Component: "HandlerChain", Reason: "RegisterConnect called after WireExtensibleHandlers"}
	}
	c.connectHandlers = append(c.connectHandlers, h)
	return nil
}

// RegisterCommand registers a CommandHandler for every verb it reports.
// Registering two handlers for the same verb, or registering after the
// chain has been wired, is a server configuration bug, never client
// input; both return a WiringError instead of serving the verb.
func (c *HandlerChain) RegisterCommand(h CommandHandler) error {
	if c.wired {
		return &WiringError{Component: "HandlerChain", Reason: "RegisterCommand called after WireExtensibleHandlers"}
	}
	for _, verb := range h.Verbs() {
		if _, exists := c.commands[verb]; exists {
			return &WiringError{Component: "HandlerChain", Reason: "duplicate command handler for verb " + verb}
		}
	}
	for _, verb := range h.Verbs() {
		c.commands[verb] = h
	}
	return nil
}

// Lookup returns the handler registered for a verb.
func (c *HandlerChain) Lookup(verb string) (CommandHandler, bool) {
	h, ok := c.commands[verb]
	return h, ok
}

// WireExtensibleHandlers calls WireExtensions on every registered command
// handler that implements ExtensibleHandler. It must run once, after all
// RegisterCommand calls, and before the chain serves any connection;
// calling it twice is a no-op.
func (c *HandlerChain) WireExtensibleHandlers() error {
	if c.wired {
		return nil
	}
	seen := make(map[CommandHandler]struct{})
	for _, h := range c.commands {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if ext, ok := h.(ExtensibleHandler); ok {
			if err := ext.WireExtensions(c); err != nil {
				return err
			}
		}
	}
	c.wired = true
	return nil
}

// RunConnectHandlers evaluates registered ConnectHandlers in order and
// folds the results with the standard hook merge rule: the first
// terminating result stops the walk, so a handler after a DENY never runs.
func (c *HandlerChain) RunConnectHandlers(ctx context.Context, sess *Session) HookResult {
	tentative := Declined()
	for _, h := range c.connectHandlers {
		r := h.HandleConnect(ctx, sess)
		if r.Terminates() {
			return r
		}
		if r.Action == HookOK {
			tentative = r
		}
	}
	return tentative
}
