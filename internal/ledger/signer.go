package ledger

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var (
	ErrMalformedToken     = errors.New("malformed signed transaction token")
	ErrDescriptorMismatch = errors.New("signed transaction does not match the operation")
	ErrBadSignature       = errors.New("signed transaction signature is invalid")
)

// Signer turns a descriptor into an opaque signed transaction token.
type Signer interface {
	Sign(ctx context.Context, d Descriptor) (string, error)
}

// Envelope is the decoded form of a token. Consumers outside this package
// treat tokens as opaque strings.
type Envelope struct {
	Descriptor Descriptor `json:"d"`
	Nonce      string     `json:"n"`
	Signer     string     `json:"a"`
	Sig        string     `json:"s"`
}

func (e Envelope) signingHash() []byte {
	return crypto.Keccak256(e.Descriptor.Canonical(), []byte("|"+e.Nonce))
}

// LocalSigner signs with a secp256k1 key held in process.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := parsePrivateKeyHex(hexKey)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{key: key, address: strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())}, nil
}

func (s *LocalSigner) Address() string { return s.address }

func (s *LocalSigner) Sign(ctx context.Context, d Descriptor) (string, error) {
	if s == nil || s.key == nil {
		return "", errors.New("signer has no key")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	env := Envelope{Descriptor: d, Nonce: uuid.NewString(), Signer: s.address}
	sig, err := crypto.Sign(env.signingHash(), s.key)
	if err != nil {
		return "", err
	}
	env.Sig = "0x" + hex.EncodeToString(sig)
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SignMessage signs an arbitrary message, used for the login challenge.
func (s *LocalSigner) SignMessage(msg []byte) (string, error) {
	sig, err := crypto.Sign(messageHash(msg), s.key)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func messageHash(msg []byte) []byte {
	return crypto.Keccak256([]byte(fmt.Sprintf("\x19tradeflow signed message:\n%d", len(msg))), msg)
}

func parsePrivateKeyHex(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// GenerateKey returns a new hex private key and its address.
func GenerateKey() (string, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(crypto.FromECDSA(key)), strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()), nil
}
