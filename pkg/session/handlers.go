package session

import (
	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/message"
)

// Accessory, bind: answer the PAKE request with the accessory share.
func (s *Session) onPakeRequest(req *message.PakeRequest) (*message.Message, error) {
	s.setState(StatePakeRequestReceived)
	resp, err := s.pakeServer.HandleRequest(req)
	if err != nil {
		return nil, err
	}
	s.setState(StatePakeResponseExchanged)
	return message.New(resp), nil
}

// Centre, bind: finish the PAKE locally and send the confirmation together
// with the encrypted exchange request.
func (s *Session) onPakeResponse(resp *message.PakeResponse) (*message.Message, error) {
	confirm, err := s.pakeClient.HandleResponse(resp)
	if err != nil {
		return nil, err
	}
	s.setState(StatePakeResponseExchanged)

	st := s.pakeClient.State()
	confirm.ExAuthInfo, err = s.exchanger.BuildExchangeRequest(st.SessionKey, st.SelfChallenge, st.PeerChallenge)
	if err != nil {
		return nil, err
	}
	s.setState(StateExchangeRequested)
	return message.New(confirm), nil
}

// Accessory, bind: verify the centre's confirmation and identity, record the
// centre and answer with the accessory's confirmation and identity.
func (s *Session) onPakeClientConfirm(confirm *message.PakeClientConfirm) (*message.Message, error) {
	if err := s.pakeServer.HandleConfirm(confirm); err != nil {
		return nil, err
	}
	s.setState(StatePakeConfirmed)

	st := s.pakeServer.State()
	peer, err := s.exchanger.ReceiveExchangeRequest(st.SessionKey, st.SelfChallenge, st.PeerChallenge, confirm.ExAuthInfo)
	if err != nil {
		return nil, err
	}
	exResp, err := s.exchanger.BuildExchangeResponse(st.SessionKey, st.SelfChallenge, st.PeerChallenge)
	if err != nil {
		return nil, err
	}
	kcf, err := s.pakeServer.ServerConfirmation()
	if err != nil {
		return nil, err
	}
	s.setState(StateExchangeResponded)

	if err := s.cfg.Store.SaveAuthInfo(identity.PairTypeBind, s.cfg.GroupID, peer); err != nil {
		return nil, err
	}
	s.peer = peer
	s.establish(st.SessionKey)
	return message.New(&message.PakeServerConfirm{KcfData: kcf, ExAuthInfo: exResp}), nil
}

// Centre, bind: verify the accessory's confirmation and identity and record
// the accessory.
func (s *Session) onPakeServerConfirm(confirm *message.PakeServerConfirm) error {
	if err := s.pakeClient.VerifyServerConfirm(confirm.KcfData); err != nil {
		return err
	}
	s.setState(StatePakeConfirmed)

	st := s.pakeClient.State()
	peer, err := s.exchanger.ReceiveExchangeResponse(st.SessionKey, st.SelfChallenge, st.PeerChallenge, confirm.ExAuthInfo)
	if err != nil {
		return err
	}
	if err := s.cfg.Store.SaveAuthInfo(identity.PairTypeBind, s.cfg.GroupID, peer); err != nil {
		return err
	}
	s.peer = peer
	s.establish(st.SessionKey)
	return nil
}

// Accessory, auth.
func (s *Session) onAuthStart(start *message.AuthStart) (*message.Message, error) {
	resp, err := s.responder.HandleStart(start)
	if err != nil {
		return nil, err
	}
	s.setState(StateAuthStarted)
	return message.New(resp), nil
}

// Centre, auth.
func (s *Session) onAuthStartResponse(resp *message.AuthStartResponse) (*message.Message, error) {
	ack, err := s.initiator.HandleResponse(resp)
	if err != nil {
		return nil, err
	}
	s.establish(s.initiator.SessionKey())
	return message.New(ack), nil
}

// Accessory, auth.
func (s *Session) onAuthAck(ack *message.AuthAck) error {
	if err := s.responder.HandleAck(ack); err != nil {
		return err
	}
	s.cfg.PeerAuthID = s.responder.PeerAuthID()
	s.establish(s.responder.SessionKey())
	return nil
}
