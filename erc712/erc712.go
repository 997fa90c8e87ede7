// Package erc712 implements typed structured data hashing and signature
// verification with replay protection.
package erc712

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/dual-governance/interfaces"
	"github.com/ruteri/dual-governance/ledger"
)

// DomainType is the canonical type string of the signing domain.
const DomainType = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(DomainType))

	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)

	domainArgs = Arguments("bytes32", "bytes32", "bytes32", "uint256", "address")
)

// Arguments builds an abi.Arguments list from solidity type names.
// It panics on unknown types and is meant for package-level declarations.
func Arguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, name := range types {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(fmt.Sprintf("erc712: bad abi type %q: %v", name, err))
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// TypeHash returns keccak256 of an encoded struct type.
func TypeHash(encodedType string) common.Hash {
	return crypto.Keccak256Hash([]byte(encodedType))
}

// HashStruct returns keccak256(abi.encode(values...)) for the given layout.
// The first value is conventionally the type hash.
func HashStruct(layout abi.Arguments, values ...interface{}) (common.Hash, error) {
	packed, err := layout.Pack(values...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding struct: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// Domain scopes signatures to one verifying component on one chain.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Separator returns the domain separator hash.
func (d Domain) Separator() common.Hash {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	h, err := HashStruct(domainArgs,
		domainTypeHash,
		crypto.Keccak256Hash([]byte(d.Name)),
		crypto.Keccak256Hash([]byte(d.Version)),
		chainID,
		d.VerifyingContract,
	)
	if err != nil {
		// all argument types are fixed above
		panic(err)
	}
	return h
}

// Digest returns keccak256("\x19\x01" || separator || structHash).
func Digest(separator, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, separator.Bytes(), structHash.Bytes())
}

// Sign produces a 65-byte [R || S || V] signature with V in {27, 28}.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the signer of digest. Only v of 27 or 28 and a low S value
// are accepted, so each message has exactly one valid encoding.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", interfaces.ErrInvalidSignature, len(sig))
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := sig[crypto.RecoveryIDOffset]
	if v != 27 && v != 28 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id %d", interfaces.ErrInvalidSignature, v)
	}
	v -= 27
	if r.Sign() == 0 || s.Sign() == 0 || r.Cmp(secp256k1N) >= 0 {
		return common.Address{}, fmt.Errorf("%w: bad r or s", interfaces.ErrInvalidSignature)
	}
	if s.Cmp(secp256k1HalfN) > 0 {
		return common.Address{}, interfaces.ErrMalleableSignature
	}

	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	normalized[crypto.RecoveryIDOffset] = v

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verifier checks signatures for one domain and tracks per-account nonces.
type Verifier struct {
	domain    Domain
	separator common.Hash
	nonces    *ledger.Map[common.Address, uint64]
}

// NewVerifier creates a verifier for domain with all nonces at zero.
func NewVerifier(domain Domain) *Verifier {
	return &Verifier{
		domain:    domain,
		separator: domain.Separator(),
		nonces:    ledger.NewMap[common.Address, uint64](),
	}
}

func (v *Verifier) Domain() Domain { return v.domain }

// DomainSeparator returns the cached domain separator.
func (v *Verifier) DomainSeparator() common.Hash { return v.separator }

// Nonces returns the next nonce account must sign with.
func (v *Verifier) Nonces(account common.Address) uint64 {
	n, _ := v.nonces.Get(account)
	return n
}

// Digest returns the digest to sign for structHash in this domain.
func (v *Verifier) Digest(structHash common.Hash) common.Hash {
	return Digest(v.separator, structHash)
}

// Verify implements interfaces.SignatureVerifier. The deadline is a unix
// timestamp, inclusive.
func (v *Verifier) Verify(tx *ledger.Tx, account common.Address, structHash common.Hash, nonce, deadline uint64, sig []byte) error {
	now := tx.Time()
	if uint64(now.Unix()) > deadline {
		return &interfaces.SignatureExpiredError{Deadline: time.Unix(int64(deadline), 0), Timestamp: now}
	}

	signer, err := Recover(v.Digest(structHash), sig)
	if err != nil {
		return err
	}
	if signer != account {
		return &interfaces.SignerMismatchError{Account: account, Signer: signer}
	}

	current := v.Nonces(account)
	if nonce != current {
		return &interfaces.ReusedNonceError{Nonce: nonce, Current: current}
	}
	v.nonces.Set(tx, account, current+1)
	return nil
}

var _ interfaces.SignatureVerifier = (*Verifier)(nil)
