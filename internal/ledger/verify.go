package ledger

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

func Decode(token string) (Envelope, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Envelope{}, ErrMalformedToken
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ErrMalformedToken
	}
	if env.Nonce == "" || env.Sig == "" {
		return Envelope{}, ErrMalformedToken
	}
	return env, nil
}

// Verify checks that token signs exactly want and was produced by address.
// It returns the decoded envelope and the transaction hash to record.
func Verify(token string, want Descriptor, address string) (Envelope, string, error) {
	env, err := Decode(token)
	if err != nil {
		return Envelope{}, "", err
	}
	if env.Descriptor != want {
		return env, "", ErrDescriptorMismatch
	}
	sig, err := decodeSig(env.Sig)
	if err != nil {
		return env, "", err
	}
	if err := checkSigner(env.signingHash(), sig, address); err != nil {
		return env, "", err
	}
	return env, TxHash(token), nil
}

// VerifyMessage checks a SignMessage signature against address.
func VerifyMessage(msg []byte, sigHex, address string) error {
	sig, err := decodeSig(sigHex)
	if err != nil {
		return err
	}
	return checkSigner(messageHash(msg), sig, address)
}

func TxHash(token string) string {
	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(token)))
}

func decodeSig(v string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(v), "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return nil, ErrMalformedToken
	}
	return sig, nil
}

func checkSigner(hash, sig []byte, address string) error {
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return ErrBadSignature
	}
	got := strings.ToLower(crypto.PubkeyToAddress(*pub).Hex())
	if address == "" || got != strings.ToLower(strings.TrimSpace(address)) {
		return ErrBadSignature
	}
	return nil
}
