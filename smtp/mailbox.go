package smtp

import (
	"context"
	"strings"
	"sync"

	"github.com/mailforge/mailcore"
)

// SessionInfo is the read-only view of session state handed to policy
// implementations (Mailbox, SenderPolicy, DomainPolicy) so they don't need
// the full mailcore.Session API, and can't mutate session state.
type SessionInfo interface {
	ID() mailcore.SessionID
	State() State
	ClientHostname() string
	ClientIP() string
	TLSActive() bool
	Authenticated() bool
	AuthenticatedUser() string
	CurrentMailFrom() *MailPath
	CurrentRecipientCount() int
}

type sessionInfo struct{ sess *mailcore.Session }

func newSessionInfo(sess *mailcore.Session) SessionInfo { return sessionInfo{sess: sess} }

func (s sessionInfo) ID() mailcore.SessionID { return s.sess.ID }
func (s sessionInfo) State() State           { return State(s.sess.State()) }

func (s sessionInfo) ClientHostname() string {
	v, _ := s.sess.ConnState(keyHostname)
	h, _ := v.(string)
	return h
}

func (s sessionInfo) ClientIP() string {
	if s.sess.RemoteAddr == nil {
		return ""
	}
	return s.sess.RemoteAddr.String()
}

func (s sessionInfo) TLSActive() bool { return s.sess.TLSState() != nil }

func (s sessionInfo) Authenticated() bool {
	_, ok := s.sess.ConnState(keyIdentity)
	return ok
}

func (s sessionInfo) AuthenticatedUser() string {
	v, _ := s.sess.ConnState(keyIdentity)
	id, _ := v.(mailcore.Identity)
	return id.Username
}

func (s sessionInfo) CurrentMailFrom() *MailPath {
	env := currentEnvelope(s.sess)
	if env == nil {
		return nil
	}
	return &env.From
}

func (s sessionInfo) CurrentRecipientCount() int {
	env := currentEnvelope(s.sess)
	if env == nil {
		return 0
	}
	return len(env.Recipients)
}

// Mailbox validates RCPT TO recipients. Implementations may back this with
// a database, LDAP, an API, or static configuration.
type Mailbox interface {
	ValidateRecipient(ctx context.Context, recipient MailPath, session SessionInfo) RecipientResult
}

// RecipientResult is the outcome of validating one recipient.
type RecipientResult struct {
	Path     MailPath
	Status   RecipientStatus
	Response mailcore.Response
}

type RecipientStatus int

const (
	RecipientAccepted RecipientStatus = iota
	RecipientRejected
)

// MailboxExtended adds operations beyond RCPT-time validation.
type MailboxExtended interface {
	Mailbox

	// Exists checks whether a mailbox exists, without full delivery
	// validation; used to answer VRFY when a deployment chooses to.
	Exists(ctx context.Context, address string) (bool, error)

	// CanReceive reports whether a mailbox can currently accept mail
	// (quota, account status).
	CanReceive(ctx context.Context, address string) (bool, MailboxStatus, error)
}

// MailboxStatus describes why a mailbox can or can't receive mail.
type MailboxStatus int

const (
	MailboxStatusOK MailboxStatus = iota
	MailboxStatusNotFound
	MailboxStatusDisabled
	MailboxStatusOverQuota
	MailboxStatusTemporarilyUnavailable
)

// ToReplyCode maps a MailboxStatus to the SMTP reply code a RCPT rejection
// should carry.
func (s MailboxStatus) ToReplyCode() ReplyCode {
	switch s {
	case MailboxStatusOK:
		return Reply250OK
	case MailboxStatusNotFound, MailboxStatusDisabled:
		return Reply550MailboxUnavailable
	case MailboxStatusOverQuota:
		return Reply552ExceededStorage
	case MailboxStatusTemporarilyUnavailable:
		return Reply450MailboxUnavailable
	default:
		return Reply451LocalError
	}
}

// SenderPolicy validates MAIL FROM, kept separate from Mailbox since a
// sender check (SPF-style domain reputation, auth requirement) is a
// different concern from recipient existence.
type SenderPolicy interface {
	ValidateSender(ctx context.Context, sender MailPath, session SessionInfo) SenderResult
}

// SenderResult is the outcome of validating a sender.
type SenderResult struct {
	Accepted    bool
	Response    mailcore.Response
	RequireAuth bool
}

func SenderResultAccepted() SenderResult {
	return SenderResult{Accepted: true, Response: RespOK}
}

func SenderResultRejected(response mailcore.Response) SenderResult {
	return SenderResult{Response: response}
}

// DomainPolicy answers domain-level routing questions: which domains this
// server accepts mail for, and whether a given session may relay to an
// off-server domain.
type DomainPolicy interface {
	IsLocalDomain(ctx context.Context, domain string) (bool, error)
	AcceptedDomains(ctx context.Context) ([]string, error)
	RelayAllowed(ctx context.Context, domain string, session SessionInfo) (bool, error)
}

// AcceptAllMailbox accepts every recipient. Useful for tests and open-relay
// development configurations; never for production.
type AcceptAllMailbox struct{}

func (AcceptAllMailbox) ValidateRecipient(_ context.Context, recipient MailPath, _ SessionInfo) RecipientResult {
	return RecipientResult{Path: recipient, Status: RecipientAccepted, Response: RespOK}
}

// RejectAllMailbox rejects every recipient. Useful in tests exercising the
// rejection path.
type RejectAllMailbox struct{}

func (RejectAllMailbox) ValidateRecipient(_ context.Context, recipient MailPath, _ SessionInfo) RecipientResult {
	return RecipientResult{
		Path:     recipient,
		Status:   RecipientRejected,
		Response: NewResponse(Reply550MailboxUnavailable, "Mailbox unavailable"),
	}
}

// StaticMailbox is a registry-backed Mailbox/DomainPolicy: a fixed address
// list plus an optional catch-all per accepted domain.
type StaticMailbox struct {
	mu        sync.RWMutex
	addresses map[string]bool
	domains   map[string]bool
	catchAll  bool
}

func NewStaticMailbox(domains ...string) *StaticMailbox {
	m := &StaticMailbox{addresses: make(map[string]bool), domains: make(map[string]bool)}
	for _, d := range domains {
		m.AddDomain(d)
	}
	return m
}

func (m *StaticMailbox) AddAddress(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[strings.ToLower(address)] = true
}

func (m *StaticMailbox) AddDomain(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[strings.ToLower(domain)] = true
}

func (m *StaticMailbox) SetCatchAll(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catchAll = enabled
}

func (m *StaticMailbox) ValidateRecipient(_ context.Context, recipient MailPath, _ SessionInfo) RecipientResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addr := strings.ToLower(recipient.Address)
	domain := domainOf(addr)

	if m.addresses[addr] {
		return RecipientResult{Path: recipient, Status: RecipientAccepted, Response: RespOK}
	}
	if m.catchAll && m.domains[domain] {
		return RecipientResult{Path: recipient, Status: RecipientAccepted, Response: RespOK}
	}
	if !m.domains[domain] {
		return RecipientResult{
			Path:     recipient,
			Status:   RecipientRejected,
			Response: NewResponse(Reply550MailboxUnavailable, "Domain not handled by this server"),
		}
	}
	return RecipientResult{
		Path:     recipient,
		Status:   RecipientRejected,
		Response: NewResponse(Reply550MailboxUnavailable, "No such user"),
	}
}

func (m *StaticMailbox) Exists(_ context.Context, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.addresses[strings.ToLower(address)], nil
}

func (m *StaticMailbox) CanReceive(_ context.Context, address string) (bool, MailboxStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.addresses[strings.ToLower(address)] {
		return false, MailboxStatusNotFound, nil
	}
	return true, MailboxStatusOK, nil
}

func (m *StaticMailbox) IsLocalDomain(_ context.Context, domain string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.domains[strings.ToLower(domain)], nil
}

func (m *StaticMailbox) AcceptedDomains(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.domains))
	for d := range m.domains {
		out = append(out, d)
	}
	return out, nil
}

func (m *StaticMailbox) RelayAllowed(ctx context.Context, domain string, session SessionInfo) (bool, error) {
	if session.Authenticated() {
		return true, nil
	}
	return m.IsLocalDomain(ctx, domain)
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}

// MailboxHook adapts a Mailbox and optional SenderPolicy into the MailHook/
// RcptHook capabilities the command handlers dispatch through, so policy
// implementations stay decoupled from the hookable-command machinery.
type MailboxHook struct {
	Mailbox Mailbox
	Sender  SenderPolicy
}

func (MailboxHook) HookName() string { return "mailbox" }

func (h MailboxHook) Mail(ctx context.Context, sess *mailcore.Session, from MailPath, params ESMTPParams) mailcore.HookResult {
	if h.Sender == nil {
		return mailcore.Declined()
	}
	result := h.Sender.ValidateSender(ctx, from, newSessionInfo(sess))
	if !result.Accepted {
		return mailcore.Deny(result.Response)
	}
	return mailcore.OK()
}

func (h MailboxHook) Rcpt(ctx context.Context, sess *mailcore.Session, to MailPath, params ESMTPParams) mailcore.HookResult {
	if h.Mailbox == nil {
		return mailcore.Declined()
	}
	result := h.Mailbox.ValidateRecipient(ctx, to, newSessionInfo(sess))
	if result.Status == RecipientRejected {
		return mailcore.Deny(result.Response)
	}
	return mailcore.OK()
}

var (
	_ MailHook = MailboxHook{}
	_ RcptHook = MailboxHook{}
)
