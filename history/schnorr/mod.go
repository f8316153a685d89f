// Package schnorr implements the cryptographic library of the history proofs
// with Schnorr signatures over the Edwards 25519 curve.
//
// A chain-of-trust proof is the list of the signatures of the source roster
// over the target history. When the ledger id and the proof of the source
// roster are known, the proof is also bound to both of them so that the
// proofs form a chain up to the genesis roster.
package schnorr

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/key"
	"golang.org/x/xerrors"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/crypto"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

var suite = suites.MustFind("Ed25519")

// hintsDomain separates the metadata hashes from the other digests.
var hintsDomain = []byte("hints-verification-key")

// Library is the Schnorr implementation of the history library.
//
// - implements history.Library
type Library struct {
	hashFactory crypto.HashFactory

	// verified remembers the digests of the valid signatures. It is nil when
	// the cache is disabled.
	verified *lru.Cache
}

// Option is the type of the options to create a library.
type Option func(*Library)

// WithHashFactory sets the hash used for the address books and the proofs.
// The default is blake3.
func WithHashFactory(fac crypto.HashFactory) Option {
	return func(l *Library) {
		l.hashFactory = fac
	}
}

// WithVerificationCache keeps the last valid signatures so that the ones
// already checked are not verified again. The cache is shared by the copies
// of the library.
func WithVerificationCache(size int) Option {
	return func(l *Library) {
		cache, err := lru.New(size)
		if err == nil {
			l.verified = cache
		}
	}
}

// NewLibrary creates a new library.
func NewLibrary(opts ...Option) Library {
	l := Library{
		hashFactory: crypto.NewBlake3Factory(),
	}

	for _, opt := range opts {
		opt(&l)
	}

	return l
}

// NewSchnorrKeyPair implements history.Library. It returns a random key pair.
func (l Library) NewSchnorrKeyPair() (types.SchnorrKeyPair, error) {
	kp := key.NewKeyPair(suite)

	privateKey, err := kp.Private.MarshalBinary()
	if err != nil {
		return types.SchnorrKeyPair{}, xerrors.Errorf("couldn't marshal private key: %v", err)
	}

	publicKey, err := kp.Public.MarshalBinary()
	if err != nil {
		return types.SchnorrKeyPair{}, xerrors.Errorf("couldn't marshal public key: %v", err)
	}

	return types.SchnorrKeyPair{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

// HashAddressBook implements history.Library.
func (l Library) HashAddressBook(book types.AddressBook) ([]byte, error) {
	digest, err := crypto.Digest(l.hashFactory, book)
	if err != nil {
		return nil, xerrors.Errorf("couldn't hash address book: %v", err)
	}

	return digest, nil
}

// HashHintsVerificationKey implements history.Library.
func (l Library) HashHintsVerificationKey(verificationKey []byte) ([]byte, error) {
	h := l.hashFactory.New()

	_, err := h.Write(hintsDomain)
	if err != nil {
		return nil, xerrors.Errorf("couldn't write domain: %v", err)
	}

	_, err = h.Write(verificationKey)
	if err != nil {
		return nil, xerrors.Errorf("couldn't write key: %v", err)
	}

	return h.Sum(nil), nil
}

// SignSchnorr implements history.Library.
func (l Library) SignSchnorr(message, privateKey []byte) ([]byte, error) {
	scalar := suite.Scalar()

	err := scalar.UnmarshalBinary(privateKey)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal private key: %v", err)
	}

	signature, err := schnorr.Sign(suite, scalar, message)
	if err != nil {
		return nil, xerrors.Errorf("couldn't sign: %v", err)
	}

	return signature, nil
}

// VerifySchnorr implements history.Library.
func (l Library) VerifySchnorr(publicKey, message, signature []byte) bool {
	var digest string
	if l.verified != nil {
		digest = l.signatureDigest(publicKey, message, signature)

		if l.verified.Contains(digest) {
			return true
		}
	}

	point := suite.Point()

	err := point.UnmarshalBinary(publicKey)
	if err != nil {
		return false
	}

	if schnorr.Verify(suite, point, message, signature) != nil {
		return false
	}

	if l.verified != nil {
		l.verified.Add(digest, struct{}{})
	}

	return true
}

// CachedVerifications returns the number of signatures in the verification
// cache.
func (l Library) CachedVerifications() int {
	if l.verified == nil {
		return 0
	}

	return l.verified.Len()
}

func (l Library) signatureDigest(publicKey, message, signature []byte) string {
	h := l.hashFactory.New()

	for _, data := range [][]byte{publicKey, message, signature} {
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], uint64(len(data)))

		h.Write(size[:])
		h.Write(data)
	}

	return string(h.Sum(nil))
}

// ProveChainOfTrust implements history.Library. The signatures must be valid
// and carry a super-majority of the weight of the source address book.
func (l Library) ProveChainOfTrust(req types.ProofRequest) (types.ChainOfTrustProof, error) {
	sourceHash, err := l.HashAddressBook(req.SourceAddressBook)
	if err != nil {
		return types.ChainOfTrustProof{}, err
	}

	signers := make([]uint64, 0, len(req.Signatures))
	for nodeID := range req.Signatures {
		signers = append(signers, nodeID)
	}

	sort.Slice(signers, func(i, j int) bool { return signers[i] < signers[j] })

	list := signatureList{sourceHash: sourceHash}
	for _, nodeID := range signers {
		list.entries = append(list.entries, signatureEntry{
			nodeID:    nodeID,
			signature: req.Signatures[nodeID],
		})
	}

	err = l.checkSignatures(req.SourceAddressBook, req.TargetHistory, list)
	if err != nil {
		return types.ChainOfTrustProof{}, xerrors.Errorf("invalid signatures: %v", err)
	}

	buffer := new(bytes.Buffer)
	kind := types.ListProof

	if req.LedgerID != nil && req.SourceProof != nil {
		kind = types.LedgerProof

		link, err := l.linkOf(*req.SourceProof)
		if err != nil {
			return types.ChainOfTrustProof{}, err
		}

		writeBytes(buffer, req.LedgerID)
		writeBytes(buffer, link)
	}

	list.encode(buffer)

	return types.ChainOfTrustProof{Kind: kind, Data: buffer.Bytes()}, nil
}

// VerifyChainOfTrust returns nil if the proof is a valid chain-of-trust proof
// of the target history of the request by its source address book. A ledger
// proof must also be bound to the ledger id and the source proof of the
// request.
func (l Library) VerifyChainOfTrust(req types.ProofRequest, proof types.ChainOfTrustProof) error {
	reader := bytes.NewReader(proof.Data)

	switch proof.Kind {
	case types.ListProof:
	case types.LedgerProof:
		ledgerID, err := readBytes(reader)
		if err != nil {
			return xerrors.Errorf("couldn't read ledger id: %v", err)
		}

		if !bytes.Equal(ledgerID, req.LedgerID) {
			return xerrors.Errorf("ledger id mismatch: %x != %x", ledgerID, req.LedgerID)
		}

		link, err := readBytes(reader)
		if err != nil {
			return xerrors.Errorf("couldn't read link: %v", err)
		}

		if req.SourceProof == nil {
			return xerrors.New("missing source proof")
		}

		expected, err := l.linkOf(*req.SourceProof)
		if err != nil {
			return err
		}

		if !bytes.Equal(link, expected) {
			return xerrors.New("proof is not linked to the source proof")
		}
	default:
		return xerrors.Errorf("unknown proof kind %d", proof.Kind)
	}

	list, err := decodeSignatureList(reader)
	if err != nil {
		return xerrors.Errorf("couldn't decode signatures: %v", err)
	}

	sourceHash, err := l.HashAddressBook(req.SourceAddressBook)
	if err != nil {
		return err
	}

	if !bytes.Equal(sourceHash, list.sourceHash) {
		return xerrors.New("source address book mismatch")
	}

	err = l.checkSignatures(req.SourceAddressBook, req.TargetHistory, list)
	if err != nil {
		return xerrors.Errorf("invalid signatures: %v", err)
	}

	return nil
}

func (l Library) checkSignatures(book types.AddressBook, history types.History,
	list signatureList) error {

	message := history.Bytes()
	weights := make([]uint64, 0, len(list.entries))

	for _, entry := range list.entries {
		publicKey := book.KeyOf(entry.nodeID)
		if len(publicKey) == 0 {
			return xerrors.Errorf("no key for node %d", entry.nodeID)
		}

		if !l.VerifySchnorr(publicKey, message, entry.signature) {
			return xerrors.Errorf("wrong signature of node %d", entry.nodeID)
		}

		weights = append(weights, book.WeightOf(entry.nodeID))
	}

	total := make([]uint64, book.Len())
	for i, entry := range book.Entries {
		total[i] = entry.Weight
	}

	totalWeight, err := roster.SumWeights(total...)
	if err != nil {
		return err
	}

	weight, err := roster.SumWeights(weights...)
	if err != nil {
		return err
	}

	if !roster.SuperMajority.IsSatisfiedBy(weight, totalWeight) {
		return xerrors.Errorf("weight %d is below %d", weight,
			roster.SuperMajority.MinWeight(totalWeight))
	}

	return nil
}

// linkOf returns the digest of the source proof that a ledger proof embeds.
func (l Library) linkOf(proof types.ChainOfTrustProof) ([]byte, error) {
	h := l.hashFactory.New()

	buffer := new(bytes.Buffer)
	buffer.WriteByte(byte(proof.Kind))
	writeBytes(buffer, proof.Data)

	_, err := h.Write(buffer.Bytes())
	if err != nil {
		return nil, xerrors.Errorf("couldn't hash source proof: %v", err)
	}

	return h.Sum(nil), nil
}

type signatureEntry struct {
	nodeID    uint64
	signature []byte
}

type signatureList struct {
	sourceHash []byte
	entries    []signatureEntry
}

func (list signatureList) encode(buffer *bytes.Buffer) {
	writeBytes(buffer, list.sourceHash)
	writeUint64(buffer, uint64(len(list.entries)))

	for _, entry := range list.entries {
		writeUint64(buffer, entry.nodeID)
		writeBytes(buffer, entry.signature)
	}
}

func decodeSignatureList(reader *bytes.Reader) (signatureList, error) {
	sourceHash, err := readBytes(reader)
	if err != nil {
		return signatureList{}, err
	}

	count, err := readUint64(reader)
	if err != nil {
		return signatureList{}, err
	}

	if count > uint64(reader.Len()) {
		return signatureList{}, xerrors.Errorf("invalid count %d", count)
	}

	list := signatureList{sourceHash: sourceHash}

	for i := uint64(0); i < count; i++ {
		nodeID, err := readUint64(reader)
		if err != nil {
			return signatureList{}, err
		}

		signature, err := readBytes(reader)
		if err != nil {
			return signatureList{}, err
		}

		list.entries = append(list.entries, signatureEntry{nodeID: nodeID, signature: signature})
	}

	if reader.Len() > 0 {
		return signatureList{}, xerrors.Errorf("%d trailing bytes", reader.Len())
	}

	return list, nil
}

func writeBytes(buffer *bytes.Buffer, data []byte) {
	writeUint64(buffer, uint64(len(data)))
	buffer.Write(data)
}

func writeUint64(buffer *bytes.Buffer, value uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], value)
	buffer.Write(tmp[:])
}

func readUint64(reader *bytes.Reader) (uint64, error) {
	var tmp [8]byte

	_, err := io.ReadFull(reader, tmp[:])
	if err != nil {
		return 0, xerrors.Errorf("couldn't read integer: %v", err)
	}

	return binary.BigEndian.Uint64(tmp[:]), nil
}

func readBytes(reader *bytes.Reader) ([]byte, error) {
	length, err := readUint64(reader)
	if err != nil {
		return nil, err
	}

	if length > uint64(reader.Len()) {
		return nil, xerrors.Errorf("length %d exceeds the remaining %d bytes", length, reader.Len())
	}

	data := make([]byte, length)

	_, err = io.ReadFull(reader, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read bytes: %v", err)
	}

	return data, nil
}
