package fake

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/crypto"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
)

// Library is a fake implementation of the history library. A signature is the
// concatenation of the key and the message, and the public and private keys
// of a pair are the same.
//
// - implements history.Library
type Library struct {
	sync.Mutex

	counter   int
	Signs     *Call
	Proves    *Call
	Verifies  *Call
	ErrSign   error
	ErrProve  error
	ErrHash   error
	ErrKey    error
	Forgeries map[string]struct{}
}

// NewLibrary returns a fake library that records the calls.
func NewLibrary() *Library {
	return &Library{
		Signs:    &Call{},
		Proves:   &Call{},
		Verifies: &Call{},
	}
}

// NewBadLibrary returns a fake library that fails to sign and prove.
func NewBadLibrary() *Library {
	lib := NewLibrary()
	lib.ErrSign = fakeErr
	lib.ErrProve = fakeErr

	return lib
}

// NewSchnorrKeyPair implements history.Library.
func (l *Library) NewSchnorrKeyPair() (types.SchnorrKeyPair, error) {
	if l.ErrKey != nil {
		return types.SchnorrKeyPair{}, l.ErrKey
	}

	l.Lock()
	l.counter++
	key := []byte(fmt.Sprintf("key-%d", l.counter))
	l.Unlock()

	return KeyPair(key), nil
}

// HashAddressBook implements history.Library.
func (l *Library) HashAddressBook(book types.AddressBook) ([]byte, error) {
	if l.ErrHash != nil {
		return nil, l.ErrHash
	}

	return crypto.Digest(crypto.NewBlake3Factory(), book)
}

// HashHintsVerificationKey implements history.Library.
func (l *Library) HashHintsVerificationKey(key []byte) ([]byte, error) {
	if l.ErrHash != nil {
		return nil, l.ErrHash
	}

	return append([]byte("meta:"), key...), nil
}

// SignSchnorr implements history.Library.
func (l *Library) SignSchnorr(message, privateKey []byte) ([]byte, error) {
	l.Signs.Add(message, privateKey)

	if l.ErrSign != nil {
		return nil, l.ErrSign
	}

	return Sign(privateKey, message), nil
}

// VerifySchnorr implements history.Library. The signatures of the keys marked
// as forged are rejected.
func (l *Library) VerifySchnorr(publicKey, message, signature []byte) bool {
	l.Verifies.Add(publicKey, message, signature)

	l.Lock()
	_, forged := l.Forgeries[string(publicKey)]
	l.Unlock()

	return !forged && bytes.Equal(signature, Sign(publicKey, message))
}

// ProveChainOfTrust implements history.Library. The proof is the list of the
// signers and the history.
func (l *Library) ProveChainOfTrust(req types.ProofRequest) (types.ChainOfTrustProof, error) {
	l.Proves.Add(req)

	if l.ErrProve != nil {
		return types.ChainOfTrustProof{}, l.ErrProve
	}

	signers := make([]uint64, 0, len(req.Signatures))
	for nodeID := range req.Signatures {
		signers = append(signers, nodeID)
	}

	sort.Slice(signers, func(i, j int) bool { return signers[i] < signers[j] })

	kind := types.ListProof
	if req.LedgerID != nil && req.SourceProof != nil {
		kind = types.LedgerProof
	}

	data := fmt.Sprintf("%x|%v|%x", req.LedgerID, signers, req.TargetHistory.Bytes())

	return types.ChainOfTrustProof{Kind: kind, Data: []byte(data)}, nil
}

// Forge marks the key so that its signatures are rejected.
func (l *Library) Forge(publicKey []byte) {
	l.Lock()
	defer l.Unlock()

	if l.Forgeries == nil {
		l.Forgeries = make(map[string]struct{})
	}

	l.Forgeries[string(publicKey)] = struct{}{}
}

// KeyPair returns the fake key pair of the key.
func KeyPair(key []byte) types.SchnorrKeyPair {
	return types.SchnorrKeyPair{PrivateKey: key, PublicKey: key}
}

// Sign returns the fake signature of the message.
func Sign(key, message []byte) []byte {
	sig := append([]byte{}, key...)
	sig = append(sig, '|')

	return append(sig, message...)
}

// KeysAccessor is a fake proof keys accessor that returns the same pair for
// every construction.
//
// - implements history.ProofKeysAccessor
type KeysAccessor struct {
	KeyPair types.SchnorrKeyPair
	Err     error
}

// GetOrCreateSchnorrKeyPair implements history.ProofKeysAccessor.
func (a KeysAccessor) GetOrCreateSchnorrKeyPair(uint64) (types.SchnorrKeyPair, error) {
	return a.KeyPair, a.Err
}
