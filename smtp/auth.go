package smtp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/mailforge/mailcore"
)

var errAuthDenied = errors.New("smtp: authentication denied")

// AUTHHandler implements AUTH (RFC 4954) for the PLAIN and LOGIN SASL
// mechanisms, driving go-sasl's server-side state machines and an AuthHook
// chain before consulting the configured mailcore.AuthBackend.
type AUTHHandler struct {
	mailcore.HookableCommandHandler[AuthHook]
	Backend mailcore.AuthBackend
}

// NewAUTHHandler builds an AUTHHandler against backend.
func NewAUTHHandler(backend mailcore.AuthBackend) *AUTHHandler {
	return &AUTHHandler{Backend: backend}
}

func (h *AUTHHandler) Verbs() []string { return []string{"AUTH"} }

// WireExtensions registers "AUTH PLAIN LOGIN" into the EHLO handler's
// capability list once the chain is fully assembled.
func (h *AUTHHandler) WireExtensions(chain *mailcore.HandlerChain) error {
	handler, ok := chain.Lookup("EHLO")
	if !ok {
		return nil
	}
	ehlo, ok := handler.(*EHLOHandler)
	if !ok {
		return &mailcore.WiringError{Component: "AUTHHandler", Reason: "EHLO handler is not *smtp.EHLOHandler"}
	}
	ehlo.AddExtension("AUTH PLAIN LOGIN")
	return nil
}

// authExchange tracks the identity produced by a successful SASL exchange,
// threaded through to whichever goroutine/line finishes it (the initial
// HandleCommand call, or a later authLineHandler continuation).
type authExchange struct {
	handler   *AUTHHandler
	sess      *mailcore.Session
	mechanism string
	identity  mailcore.Identity
}

func (e *authExchange) runHooks(ctx context.Context, username, password string) error {
	result := e.handler.RunHooks(func(hook AuthHook) mailcore.HookResult {
		return hook.Auth(ctx, e.sess, e.mechanism, username, password)
	})
	if result.Terminates() {
		return errAuthDenied
	}

	id, err := e.handler.Backend.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}
	e.identity = id
	return nil
}

func (h *AUTHHandler) HandleCommand(ctx context.Context, sess *mailcore.Session, verb, args string) (mailcore.Response, error) {
	if _, authenticated := sess.ConnState(keyIdentity); authenticated {
		return RespBadSequence, nil
	}

	fields := strings.SplitN(args, " ", 2)
	if fields[0] == "" {
		return RespSyntaxErrorParams, nil
	}
	mechanism := strings.ToUpper(fields[0])

	var initial []byte
	haveInitial := len(fields) == 2
	if haveInitial {
		if fields[1] == "=" {
			initial = []byte{}
		} else {
			decoded, err := base64.StdEncoding.DecodeString(fields[1])
			if err != nil {
				return RespSyntaxErrorParams, nil
			}
			initial = decoded
		}
	}

	exchange := &authExchange{handler: h, sess: sess, mechanism: mechanism}

	var srv sasl.Server
	switch mechanism {
	case "PLAIN":
		srv = sasl.NewPlainServer(func(identity, username, password string) error {
			return exchange.runHooks(ctx, username, password)
		})
	case "LOGIN":
		srv = sasl.NewLoginServer(func(username, password string) error {
			return exchange.runHooks(ctx, username, password)
		})
	default:
		return NewResponse(Reply504ParamNotImplemented, "Unrecognized authentication mechanism"), nil
	}

	var next []byte
	if haveInitial {
		next = initial
	}
	challenge, done, err := srv.Next(next)
	if done {
		return h.finish(sess, exchange, err), nil
	}

	sess.Lines.Push(&authLineHandler{handler: h, srv: srv, exchange: exchange})
	return NewResponse(Reply334AuthContinue, base64.StdEncoding.EncodeToString(challenge)), nil
}

func (h *AUTHHandler) finish(sess *mailcore.Session, exchange *authExchange, err error) mailcore.Response {
	if err != nil {
		return RespAuthFailed
	}
	sess.SetConnState(keyIdentity, exchange.identity)
	return RespAuthSucceeded
}

var _ mailcore.CommandHandler = (*AUTHHandler)(nil)
var _ mailcore.ExtensibleHandler = (*AUTHHandler)(nil)

// authLineHandler drives the continuation lines of a multi-step SASL
// exchange (every LOGIN exchange, and any PLAIN exchange started without
// an initial response).
type authLineHandler struct {
	handler  *AUTHHandler
	srv      sasl.Server
	exchange *authExchange
}

func (a *authLineHandler) Name() string { return "AUTH" }

func (a *authLineHandler) HandleLine(ctx context.Context, sess *mailcore.Session, line []byte) (bool, mailcore.Response, error) {
	trimmed := bytes.TrimRight(bytes.TrimRight(line, "\n"), "\r")
	if string(trimmed) == "*" {
		return true, NewResponse(Reply501SyntaxErrorParams, "Authentication cancelled"), nil
	}

	decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return true, RespSyntaxErrorParams, nil
	}

	challenge, done, err := a.srv.Next(decoded)
	if done {
		return true, a.handler.finish(sess, a.exchange, err), nil
	}
	return false, NewResponse(Reply334AuthContinue, base64.StdEncoding.EncodeToString(challenge)), nil
}

var _ mailcore.LineHandler = (*authLineHandler)(nil)
