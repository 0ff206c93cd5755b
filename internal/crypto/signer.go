package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer authenticates requests against dex-style venues that accept a
// secp256k1 signature over the request payload instead of an API key. The
// venue recovers the address from the signature and matches it against the
// registered account.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key (with
// or without 0x prefix).
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the hex address derived from the signer's private key.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignRequest signs the canonical request digest
//
//	keccak256(timestamp | method | path | body)
//
// and returns a hex-encoded 65-byte signature (r || s || v) with v in
// {27, 28}.
func (s *Signer) SignRequest(unixTS int64, method, path string, body []byte) (string, error) {
	digest := requestDigest(unixTS, method, path, body)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; venues expect v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverRequestSigner recovers the address that produced sigHex over the
// given request parts. Used in tests and by venue-side verification.
func RecoverRequestSigner(unixTS int64, method, path string, body []byte, sigHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto/signer: decoding signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("crypto/signer: expected 65-byte signature, got %d", len(sig))
	}

	// Undo the v offset for go-ethereum's recovery.
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}

	digest := requestDigest(unixTS, method, path, body)
	pub, err := ethcrypto.SigToPub(digest, cp)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: recovering signer: %w", err)
	}

	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}

// requestDigest builds the canonical digest the venue verifies.
func requestDigest(unixTS int64, method, path string, body []byte) []byte {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(unixTS, 10))
	b.WriteByte('|')
	b.WriteString(method)
	b.WriteByte('|')
	b.WriteString(path)
	b.WriteByte('|')
	b.Write(body)
	return ethcrypto.Keccak256([]byte(b.String()))
}
