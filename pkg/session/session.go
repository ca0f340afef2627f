package session

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pion/logging"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/exauth"
	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/pake"
	"github.com/backkem/hichain/pkg/status"
	"github.com/backkem/hichain/pkg/sts"
)

// Config configures a Session.
type Config struct {
	Role      Role
	Operation Operation

	// GroupID is the trust group the session binds into or authenticates
	// against. It doubles as the service id of the self key alias.
	GroupID string

	SelfAuthID   []byte
	SelfUserType keystore.UserType

	// PeerAuthID is required for a centre auth. For a bind it is optional
	// and, when set, the peer must present it.
	PeerAuthID []byte

	// PIN is required for a bind.
	PIN []byte

	// KeyLength is the session key length. Zero means 32.
	KeyLength int

	// Versions is the supported protocol version range. Zero means
	// message.DefaultVersionRange().
	Versions message.VersionRange

	Keystore keystore.Adapter
	Store    identity.Store

	// Capabilities gates the operations. The zero value disables all of
	// them; use AllCapabilities for a full build.
	Capabilities Capabilities

	// TraceID tags log lines.
	TraceID string

	// Rand is the randomness source. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) validate() error {
	switch {
	case c.Keystore == nil, c.Store == nil:
		return fmt.Errorf("%w: keystore and store are required", ErrMissingConfig)
	case c.GroupID == "":
		return fmt.Errorf("%w: group id", ErrMissingConfig)
	case len(c.SelfAuthID) == 0:
		return fmt.Errorf("%w: self auth id", ErrMissingConfig)
	case c.Role != RoleCentre && c.Role != RoleAccessory:
		return ErrInvalidRole
	}
	if !c.Capabilities.Allows(c.Operation) {
		return fmt.Errorf("%w: %s", status.ErrUnsupportedOperation, c.Operation)
	}
	return nil
}

// Session is one bind or auth. It is not safe for concurrent use; the host
// serializes calls per session.
type Session struct {
	cfg   Config
	state State
	err   error

	pakeClient *pake.Client
	pakeServer *pake.Server
	exchanger  *exauth.Exchanger
	initiator  *sts.Initiator
	responder  *sts.Responder

	peer       *identity.AuthInfoCache
	sessionKey []byte

	log logging.LeveledLogger
}

// New creates a session in Init. It fails with status.ErrUnsupportedOperation
// when the operation is disabled or no credential in the store can carry it.
func New(cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.PIN = bytes.Clone(cfg.PIN)
	s := &Session{cfg: cfg, state: StateInit}
	if cfg.LoggerFactory != nil {
		s.log = cfg.LoggerFactory.NewLogger("session")
	}
	if err := s.checkProtocol(); err != nil {
		return nil, err
	}

	var err error
	switch cfg.Operation {
	case OperationBind:
		err = s.setupBind()
	case OperationAuth:
		err = s.setupAuth()
	}
	if err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// checkProtocol resolves the identities the operation relies on and
// confirms one of them supports the operation's protocol.
func (s *Session) checkProtocol() error {
	keyType, trustType, proto := identity.KeyTypeSymmetric, identity.TrustTypePin, identity.ProtocolPake
	if s.cfg.Operation == OperationAuth {
		keyType, trustType, proto = identity.KeyTypeAsymmetric, identity.TrustTypeDevice, identity.ProtocolSTS
	}
	list, err := s.cfg.Store.ResolveIdentityInfo(keyType, trustType, s.cfg.GroupID)
	if err != nil {
		return err
	}
	defer list.Destroy()

	for _, info := range list.Items() {
		if !info.Supports(proto) {
			continue
		}
		// A centre auth needs the record of the device it targets.
		if proto == identity.ProtocolSTS && s.cfg.Role == RoleCentre && !bytes.Equal(info.AuthID, s.cfg.PeerAuthID) {
			continue
		}
		return nil
	}
	if proto == identity.ProtocolSTS {
		return fmt.Errorf("%w: no bound device in group %.16s", status.ErrPeerNotTrusted, s.cfg.GroupID)
	}
	return fmt.Errorf("%w: no %s identity", status.ErrUnsupportedOperation, proto)
}

func (s *Session) setupBind() error {
	pc := pake.Config{
		PIN:           s.cfg.PIN,
		KeyLength:     s.cfg.KeyLength,
		Versions:      s.cfg.Versions,
		OperationCode: int(s.cfg.Operation),
	}
	var err error
	if s.cfg.Role == RoleCentre {
		s.pakeClient, err = pake.NewClient(pc, s.cfg.Rand)
	} else {
		s.pakeServer, err = pake.NewServer(pc, s.cfg.Rand)
	}
	if err != nil {
		return err
	}
	s.exchanger, err = exauth.New(exauth.Config{
		Keystore:   s.cfg.Keystore,
		ServiceID:  s.cfg.GroupID,
		SelfAuthID: s.cfg.SelfAuthID,
		Centre:     s.cfg.Role == RoleCentre,
		PeerAuthID: s.cfg.PeerAuthID,
	})
	return err
}

func (s *Session) setupAuth() error {
	sc := sts.Config{
		Keystore:      s.cfg.Keystore,
		Store:         s.cfg.Store,
		GroupID:       s.cfg.GroupID,
		SelfAuthID:    s.cfg.SelfAuthID,
		SelfUserType:  s.cfg.SelfUserType,
		PeerAuthID:    s.cfg.PeerAuthID,
		KeyLength:     s.cfg.KeyLength,
		Versions:      s.cfg.Versions,
		OperationCode: int(s.cfg.Operation),
		Rand:          s.cfg.Rand,
	}
	var err error
	if s.cfg.Role == RoleCentre {
		s.initiator, err = sts.NewInitiator(sc)
	} else {
		s.responder, err = sts.NewResponder(sc)
	}
	return err
}

// StartBind returns the centre's PAKE request.
func (s *Session) StartBind() (*message.Message, error) {
	if s.cfg.Role != RoleCentre || s.cfg.Operation != OperationBind {
		return nil, ErrInvalidRole
	}
	if s.state.Terminal() {
		return nil, ErrSessionTerminated
	}
	if s.state != StateInit {
		return nil, ErrAlreadyStarted
	}
	req, err := s.pakeClient.BuildRequest()
	if err != nil {
		return s.fail(err)
	}
	s.setState(StatePakeRequestSent)
	return message.New(req), nil
}

// StartAuth returns the centre's auth start.
func (s *Session) StartAuth() (*message.Message, error) {
	if s.cfg.Role != RoleCentre || s.cfg.Operation != OperationAuth {
		return nil, ErrInvalidRole
	}
	if s.state.Terminal() {
		return nil, ErrSessionTerminated
	}
	if s.state != StateInit {
		return nil, ErrAlreadyStarted
	}
	start, err := s.initiator.Start()
	if err != nil {
		return s.fail(err)
	}
	s.setState(StateAuthStarted)
	return message.New(start), nil
}

// OnReceive processes one inbound message and returns the message to send,
// if any.
//
// On failure the session moves to Failed and the returned message is the
// inform to send to the peer, alongside the error. An inbound inform fails
// the session with a *status.PeerError and nothing to send. Messages after
// termination return ErrSessionTerminated.
func (s *Session) OnReceive(msg *message.Message) (*message.Message, error) {
	if s.state.Terminal() {
		return nil, ErrSessionTerminated
	}
	if msg == nil || msg.Payload == nil {
		return s.fail(fmt.Errorf("%w: empty message", status.ErrMalformedPayload))
	}
	if inform, ok := msg.Payload.(*message.Inform); ok {
		err := &status.PeerError{Code: status.Code(inform.ErrorCode)}
		s.markFailed(err)
		return nil, err
	}
	if !legal(s.cfg.Role, s.cfg.Operation, s.state, msg.Code) {
		return s.fail(fmt.Errorf("%w: %s in %s/%s", status.ErrUnexpectedMessage, msg.Code, s.cfg.Role, s.state))
	}

	out, err := s.dispatch(msg)
	if err != nil {
		return s.fail(err)
	}
	return out, nil
}

// Abort fails the session with err and returns the inform reporting it. It
// returns nil when the session has already terminated.
func (s *Session) Abort(err error) *message.Message {
	if s.state.Terminal() {
		return nil
	}
	out, _ := s.fail(err)
	return out
}

func (s *Session) dispatch(msg *message.Message) (*message.Message, error) {
	switch p := msg.Payload.(type) {
	case *message.PakeRequest:
		return s.onPakeRequest(p)
	case *message.PakeResponse:
		return s.onPakeResponse(p)
	case *message.PakeClientConfirm:
		return s.onPakeClientConfirm(p)
	case *message.PakeServerConfirm:
		return nil, s.onPakeServerConfirm(p)
	case *message.AuthStart:
		return s.onAuthStart(p)
	case *message.AuthStartResponse:
		return s.onAuthStartResponse(p)
	case *message.AuthAck:
		return nil, s.onAuthAck(p)
	default:
		return nil, fmt.Errorf("%w: %T", status.ErrUnexpectedMessage, p)
	}
}

// fail moves to Failed and returns the inform reporting err.
func (s *Session) fail(err error) (*message.Message, error) {
	s.markFailed(err)
	return message.NewInform(status.FromError(err)), err
}

func (s *Session) markFailed(err error) {
	if s.log != nil {
		s.log.Warnf("[%s] %s %s failed in %s: %v", s.cfg.TraceID, s.cfg.Role, s.cfg.Operation, s.state, err)
	}
	s.state = StateFailed
	s.err = err
	s.wipe()
}

func (s *Session) setState(next State) {
	if s.log != nil {
		s.log.Debugf("[%s] %s: %s -> %s", s.cfg.TraceID, s.cfg.Role, s.state, next)
	}
	s.state = next
}

func (s *Session) establish(key []byte) {
	s.sessionKey = bytes.Clone(key)
	s.setState(StateEstablished)
	if s.log != nil {
		s.log.Infof("[%s] %s %s established", s.cfg.TraceID, s.cfg.Role, s.cfg.Operation)
	}
	s.wipe()
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Role returns the session's role.
func (s *Session) Role() Role { return s.cfg.Role }

// Operation returns the operation the session carries out.
func (s *Session) Operation() Operation { return s.cfg.Operation }

// Err returns the error that failed the session, or nil.
func (s *Session) Err() error { return s.err }

// SessionKey returns the agreed key once Established, nil otherwise.
func (s *Session) SessionKey() []byte {
	if s.state != StateEstablished {
		return nil
	}
	return s.sessionKey
}

// PeerAuthID returns the auth id of the authenticated peer once Established.
func (s *Session) PeerAuthID() []byte {
	if s.state != StateEstablished {
		return nil
	}
	if s.peer != nil {
		return s.peer.AuthID
	}
	return s.cfg.PeerAuthID
}

// wipe releases the protocol objects. The session key survives until Destroy.
func (s *Session) wipe() {
	if s.pakeClient != nil {
		s.pakeClient.Destroy()
		s.pakeClient = nil
	}
	if s.pakeServer != nil {
		s.pakeServer.Destroy()
		s.pakeServer = nil
	}
	if s.initiator != nil {
		s.initiator.Destroy()
		s.initiator = nil
	}
	if s.responder != nil {
		s.responder.Destroy()
		s.responder = nil
	}
	s.exchanger = nil
}

// Destroy wipes all key material. It is safe to call in any state and more
// than once. A session destroyed before it terminated is left Failed with
// ErrSessionTerminated.
func (s *Session) Destroy() {
	if !s.state.Terminal() {
		s.state = StateFailed
		s.err = ErrSessionTerminated
	}
	s.wipe()
	crypto.Wipe(s.sessionKey, s.cfg.PIN)
	s.sessionKey = nil
	s.cfg.PIN = nil
}
