package spake2p

import "math/big"

// ReduceScalar reduces a PBKDF2 output half modulo the group order and returns
// it as a fixed-width scalar.
func ReduceScalar(ws []byte) []byte {
	k := new(big.Int).SetBytes(ws)
	k.Mod(k, p256.Params().N)
	out := make([]byte, GroupSizeBytes)
	k.FillBytes(out)
	k.SetInt64(0)
	return out
}

// ComputeL returns the registration point L = w1*P.
func ComputeL(w1 []byte) []byte {
	x, y := p256.ScalarBaseMult(w1)
	return encodePoint(&point{x: x, y: y})
}
