// Package hichain is the host-facing engine for device binding and
// authentication.
//
// An Instance owns a session registry, a crypto adapter and a credential
// store. The host moves bytes: it calls StartBind or StartAuth on the centre,
// hands every inbound message to ReceiveData, and sends whatever the Instance
// passes to Callbacks.Transmit. Results, session keys and the decision to
// accept an inbound request all go through Callbacks.
//
// Usage (centre):
//
//	inst, _ := hichain.New(hichain.Config{Keystore: ks, Store: store, Callbacks: cb})
//	_ = inst.StartBind(hichain.Identity{SessionID: 1, PackageName: "pkg", ServiceType: "svc"})
//	// for every message received on the link:
//	_ = inst.ReceiveData(id, data)
//
// The accessory runs the same Instance and only calls ReceiveData; a session
// is created when the first message of a bind or auth arrives.
package hichain
