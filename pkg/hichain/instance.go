package hichain

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/backkem/hichain/pkg/exauth"
	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/session"
	"github.com/backkem/hichain/pkg/status"
)

// Instance is one engine with its own registry, keys and store. There is no
// package-level state; several instances can share a process.
//
// All methods are safe for concurrent use. Calls for one session id are
// serialized; distinct sessions run in parallel.
type Instance struct {
	config   Config
	sessions *registry
	metrics  *metrics
	log      logging.LeveledLogger

	mu     sync.RWMutex
	closed bool
}

// New creates an Instance.
func New(config Config) (*Instance, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	i := &Instance{
		config:   config,
		sessions: newRegistry(config.MaxSessions),
		metrics:  newMetrics(config.Registerer),
	}
	if config.LoggerFactory != nil {
		i.log = config.LoggerFactory.NewLogger("hichain")
	}
	return i, nil
}

// NextSessionID returns a session id that is not in use.
func (i *Instance) NextSessionID() uint64 {
	return i.sessions.nextFreeID()
}

// ActiveSessions returns the number of sessions in progress.
func (i *Instance) ActiveSessions() int {
	return i.sessions.count()
}

// StartBind opens a bind as the centre and transmits the PAKE request.
func (i *Instance) StartBind(id Identity) error {
	id.OperationCode = session.OperationBind
	return i.start(id, func(s *session.Session) (*message.Message, error) { return s.StartBind() })
}

// StartAuth opens an auth as the centre and transmits the auth start.
func (i *Instance) StartAuth(id Identity) error {
	id.OperationCode = session.OperationAuth
	return i.start(id, func(s *session.Session) (*message.Message, error) { return s.StartAuth() })
}

func (i *Instance) start(id Identity, first func(*session.Session) (*message.Message, error)) error {
	if i.isClosed() {
		return ErrClosed
	}
	e, err := i.newEntry(id, session.RoleCentre)
	if err != nil {
		i.report(id, status.FromError(err), nil)
		return err
	}
	if err := i.sessions.add(e); err != nil {
		e.sess.Destroy()
		i.report(id, status.FromError(err), nil)
		return err
	}
	i.metrics.active.Set(float64(i.sessions.count()))

	e.mu.Lock()
	out, err := first(e.sess)
	e.mu.Unlock()
	if err != nil {
		i.finish(e)
		return err
	}
	if err := i.transmit(id, out); err != nil {
		e.mu.Lock()
		e.sess.Abort(err)
		e.mu.Unlock()
		i.finish(e)
		return err
	}
	return nil
}

// ReceiveData processes one inbound message for the session id.SessionID.
//
// The first message of a bind or auth creates the accessory session, after
// the host accepted it through ConfirmReceiveRequest. Failures are reported
// to the peer with an inform and to the host through SetServiceResult; the
// returned error is for logging only.
func (i *Instance) ReceiveData(id Identity, data []byte) error {
	if i.isClosed() {
		return ErrClosed
	}

	msg, decodeErr := message.Unmarshal(data)
	e := i.sessions.find(id.SessionID)

	if decodeErr != nil {
		i.metrics.messages.WithLabelValues("in", "malformed").Inc()
		if e == nil {
			i.transmit(id, message.NewInform(status.FromError(decodeErr)))
			return decodeErr
		}
		e.mu.Lock()
		out := e.sess.Abort(decodeErr)
		e.mu.Unlock()
		i.transmit(e.id, out)
		i.finish(e)
		return decodeErr
	}
	i.metrics.messages.WithLabelValues("in", msg.Code.String()).Inc()

	if e == nil {
		var err error
		e, err = i.accept(id, msg)
		if err != nil || e == nil {
			return err
		}
	}

	e.mu.Lock()
	out, err := e.sess.OnReceive(msg)
	terminal := e.sess.State().Terminal()
	e.mu.Unlock()

	if out != nil {
		if txErr := i.transmit(e.id, out); txErr != nil && err == nil {
			e.mu.Lock()
			e.sess.Abort(txErr)
			e.mu.Unlock()
			terminal, err = true, txErr
		}
	}
	if terminal {
		i.finish(e)
	}
	return err
}

// accept creates the accessory session for an unsolicited message. It
// returns a nil entry and nil error for messages that are dropped.
func (i *Instance) accept(id Identity, msg *message.Message) (*entry, error) {
	var op session.Operation
	switch msg.Code {
	case message.CodePakeRequest:
		op = session.OperationBind
	case message.CodeAuthStart:
		op = session.OperationAuth
	case message.CodeInform:
		// Nothing to abort.
		return nil, nil
	default:
		err := fmt.Errorf("%w: %s without a session", status.ErrUnexpectedMessage, msg.Code)
		i.transmit(id, message.NewInform(status.CodeUnexpectedMessage))
		return nil, err
	}
	id.OperationCode = op

	if !i.config.Callbacks.ConfirmReceiveRequest(id, op) {
		err := fmt.Errorf("%w: %s", status.ErrPeerRejected, op)
		i.reject(id, err)
		return nil, err
	}
	e, err := i.newEntry(id, session.RoleAccessory)
	if err != nil {
		i.reject(id, err)
		return nil, err
	}
	if err := i.sessions.add(e); err != nil {
		e.sess.Destroy()
		i.reject(id, err)
		return nil, err
	}
	i.metrics.active.Set(float64(i.sessions.count()))
	return e, nil
}

// reject answers a request that never got a session.
func (i *Instance) reject(id Identity, err error) {
	code := status.FromError(err)
	if i.log != nil {
		i.log.Warnf("rejecting %s request on session %d: %v", id.OperationCode, id.SessionID, err)
	}
	i.transmit(id, message.NewInform(code))
	i.metrics.failed.WithLabelValues(code.String()).Inc()
	i.report(id, code, nil)
}

func (i *Instance) newEntry(id Identity, role session.Role) (*entry, error) {
	groupID, err := keystore.ServiceID(id.PackageName, id.ServiceType)
	if err != nil {
		return nil, err
	}
	params, err := i.config.Callbacks.GetProtocolParams(id, id.OperationCode)
	if err != nil {
		return nil, err
	}
	if params == nil {
		return nil, ErrNoProtocolParams
	}
	keyLength := i.config.KeyLength
	if params.KeyLength != 0 {
		keyLength = params.KeyLength
	}

	traceID := uuid.NewString()
	s, err := session.New(session.Config{
		Role:          role,
		Operation:     id.OperationCode,
		GroupID:       groupID,
		SelfAuthID:    params.SelfAuthID,
		SelfUserType:  params.SelfUserType,
		PeerAuthID:    params.PeerAuthID,
		PIN:           params.PIN,
		KeyLength:     keyLength,
		Versions:      i.config.Versions,
		Keystore:      i.config.Keystore,
		Store:         i.config.Store,
		Capabilities:  *i.config.Capabilities,
		TraceID:       traceID,
		Rand:          i.config.Rand,
		LoggerFactory: i.config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	i.metrics.started.WithLabelValues(role.String(), id.OperationCode.String()).Inc()
	if i.log != nil {
		i.log.Debugf("[%s] session %d: %s %s in group %.16s", traceID, id.SessionID, role, id.OperationCode, groupID)
	}
	return &entry{id: id, groupID: groupID, traceID: traceID, params: params, sess: s}, nil
}

// finish removes a terminated session and reports its outcome.
func (i *Instance) finish(e *entry) {
	if i.sessions.remove(e.id.SessionID) == nil {
		return
	}
	i.metrics.active.Set(float64(i.sessions.count()))

	e.mu.Lock()
	established := e.sess.State() == session.StateEstablished
	sessErr := e.sess.Err()
	key := bytes.Clone(e.sess.SessionKey())
	peer := bytes.Clone(e.sess.PeerAuthID())
	e.sess.Destroy()
	e.mu.Unlock()

	if !established {
		code := status.FromError(sessErr)
		i.metrics.failed.WithLabelValues(code.String()).Inc()
		i.report(e.id, code, nil)
		return
	}

	i.metrics.established.WithLabelValues(e.id.OperationCode.String()).Inc()
	if e.id.OperationCode == session.OperationBind {
		if err := i.registerSelf(e); err != nil && i.log != nil {
			i.log.Warnf("[%s] self entry: %v", e.traceID, err)
		}
	}
	if err := i.config.Callbacks.SetSessionKey(e.id, key); err != nil && i.log != nil {
		i.log.Warnf("[%s] set session key: %v", e.traceID, err)
	}
	i.report(e.id, status.CodeOK, peer)
}

// registerSelf records the local device in the group after its first bind.
func (i *Instance) registerSelf(e *entry) error {
	if _, err := i.config.Store.ResolveSelfDeviceEntry(identity.AccountUnrelated, e.groupID); err == nil {
		return nil
	} else if !errors.Is(err, identity.ErrDeviceNotFound) {
		return err
	}
	alias, err := exauth.GetSelfKeyID(i.config.Keystore, e.groupID, e.params.SelfAuthID)
	if err != nil {
		return err
	}
	pk, err := i.config.Keystore.ExportPublicKey(alias)
	if err != nil {
		return err
	}
	return i.config.Store.SaveSelfDeviceEntry(&identity.DeviceEntry{
		GroupID:  e.groupID,
		AuthID:   e.params.SelfAuthID,
		UserType: e.params.SelfUserType,
		LTPK:     pk,
		PairType: identity.PairTypeBind,
	})
}

func (i *Instance) report(id Identity, code status.Code, peer []byte) {
	if err := i.config.Callbacks.SetServiceResult(id, Result{Code: code, PeerAuthID: peer}); err != nil && i.log != nil {
		i.log.Warnf("session %d: set service result: %v", id.SessionID, err)
	}
}

func (i *Instance) transmit(id Identity, m *message.Message) error {
	if m == nil {
		return nil
	}
	data, err := message.Marshal(m)
	if err != nil {
		return err
	}
	i.metrics.messages.WithLabelValues("out", m.Code.String()).Inc()
	if err := i.config.Callbacks.Transmit(id, data); err != nil {
		if i.log != nil {
			i.log.Warnf("session %d: transmit %s: %v", id.SessionID, m.Code, err)
		}
		return err
	}
	return nil
}

// Unbind removes the trust record of the peer named by the host's protocol
// params. It is local: nothing is sent to the peer.
func (i *Instance) Unbind(id Identity) error {
	if i.isClosed() {
		return ErrClosed
	}
	id.OperationCode = session.OperationUnbind
	groupID, err := keystore.ServiceID(id.PackageName, id.ServiceType)
	if err != nil {
		return err
	}
	params, err := i.config.Callbacks.GetProtocolParams(id, session.OperationUnbind)
	if err != nil {
		return err
	}
	if params == nil || len(params.PeerAuthID) == 0 {
		return ErrNoProtocolParams
	}
	err = i.config.Store.DeleteDevice(groupID, params.PeerAuthID)
	code := status.FromError(err)
	if errors.Is(err, identity.ErrDeviceNotFound) {
		code = status.CodePeerNotTrusted
	}
	i.report(id, code, nil)
	if err == nil && i.log != nil {
		i.log.Infof("unbound %x from group %.16s", params.PeerAuthID, groupID)
	}
	return err
}

// TrustedDevices lists the peers bound for the package and service.
func (i *Instance) TrustedDevices(packageName, serviceType string) ([]*identity.DeviceEntry, error) {
	groupID, err := keystore.ServiceID(packageName, serviceType)
	if err != nil {
		return nil, err
	}
	return i.config.Store.ListDevices(groupID)
}

// IsTrusted reports whether authID is bound for the package and service.
func (i *Instance) IsTrusted(packageName, serviceType string, authID []byte) bool {
	groupID, err := keystore.ServiceID(packageName, serviceType)
	if err != nil {
		return false
	}
	return i.config.Store.IsTrusted(groupID, authID)
}

// CloseSession aborts a session in progress. The peer is sent an inform
// and the host a failure result.
func (i *Instance) CloseSession(sessionID uint64) error {
	e := i.sessions.find(sessionID)
	if e == nil {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, sessionID)
	}
	e.mu.Lock()
	out := e.sess.Abort(fmt.Errorf("%w: closed by host", status.ErrPeerRejected))
	e.mu.Unlock()
	i.transmit(e.id, out)
	i.finish(e)
	return nil
}

// Close destroys every session. Sessions in progress are dropped without
// reporting.
func (i *Instance) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	i.mu.Unlock()

	for _, e := range i.sessions.drain() {
		e.mu.Lock()
		e.sess.Destroy()
		e.mu.Unlock()
	}
	i.metrics.active.Set(0)
	return nil
}

func (i *Instance) isClosed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.closed
}
