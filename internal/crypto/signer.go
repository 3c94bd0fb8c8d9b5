package crypto

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Signer signs transactions with the trading wallet. The key never leaves
// this type.
type Signer struct {
	key solana.PrivateKey
	pub solana.PublicKey
}

// NewSigner wraps key.
func NewSigner(key solana.PrivateKey) *Signer {
	return &Signer{key: key, pub: key.PublicKey()}
}

// PublicKey returns the wallet address.
func (s *Signer) PublicKey() solana.PublicKey {
	return s.pub
}

// Sign adds the wallet signature to tx. The wallet must be the only required
// signer.
func (s *Signer) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(s.pub) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("crypto: sign transaction: %w", err)
	}
	return nil
}
