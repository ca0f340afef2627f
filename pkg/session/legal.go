package session

import "github.com/backkem/hichain/pkg/message"

type stateKey struct {
	role  Role
	op    Operation
	state State
}

// legalCodes lists the inbound codes each (role, operation, state) accepts.
// Inform is accepted in every non-terminal state and is handled before this
// table is consulted.
var legalCodes = map[stateKey][]message.Code{
	{RoleAccessory, OperationBind, StateInit}:                  {message.CodePakeRequest},
	{RoleCentre, OperationBind, StatePakeRequestSent}:          {message.CodePakeResponse},
	{RoleAccessory, OperationBind, StatePakeResponseExchanged}: {message.CodePakeClientConfirm},
	{RoleCentre, OperationBind, StateExchangeRequested}:        {message.CodePakeServerConfirm},
	{RoleAccessory, OperationAuth, StateInit}:                  {message.CodeAuthStart},
	{RoleCentre, OperationAuth, StateAuthStarted}:              {message.CodeAuthStartResponse},
	{RoleAccessory, OperationAuth, StateAuthStarted}:           {message.CodeAuthAck},
}

func legal(role Role, op Operation, state State, code message.Code) bool {
	for _, c := range legalCodes[stateKey{role, op, state}] {
		if c == code {
			return true
		}
	}
	return false
}
