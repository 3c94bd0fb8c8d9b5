// Package pump encodes instructions for the pump.fun bonding-curve program.
package pump

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Program and global accounts of the bonding-curve market.
var (
	ProgramID      = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	GlobalAccount  = solana.MustPublicKeyFromBase58("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	FeeRecipient   = solana.MustPublicKeyFromBase58("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM")
	EventAuthority = solana.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
)

// Instruction discriminators, little-endian u64 prefixes of the data.
const (
	BuyDiscriminator  uint64 = 16927863322537952870
	SellDiscriminator uint64 = 12502976635542562355
)

const bondingCurveSeed = "bonding-curve"

// Accounts are the per-trade addresses derived from a mint and the trader.
type Accounts struct {
	Mint                   solana.PublicKey
	BondingCurve           solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
	UserTokenAccount       solana.PublicKey
	User                   solana.PublicKey
}

// DeriveAccounts computes the bonding curve PDA, its token vault, and the
// user's associated token account for mint.
func DeriveAccounts(mint, user solana.PublicKey) (Accounts, error) {
	curve, _, err := solana.FindProgramAddress([][]byte{[]byte(bondingCurveSeed), mint.Bytes()}, ProgramID)
	if err != nil {
		return Accounts{}, fmt.Errorf("pump: derive bonding curve: %w", err)
	}
	vault, _, err := solana.FindAssociatedTokenAddress(curve, mint)
	if err != nil {
		return Accounts{}, fmt.Errorf("pump: derive curve vault: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(user, mint)
	if err != nil {
		return Accounts{}, fmt.Errorf("pump: derive user token account: %w", err)
	}
	return Accounts{
		Mint:                   mint,
		BondingCurve:           curve,
		AssociatedBondingCurve: vault,
		UserTokenAccount:       ata,
		User:                   user,
	}, nil
}

// NewBuyInstruction buys tokenAmount base units paying at most maxSolCost
// lamports.
func NewBuyInstruction(acc Accounts, tokenAmount, maxSolCost uint64) solana.Instruction {
	return solana.NewInstruction(ProgramID, acc.metas(), encode(BuyDiscriminator, tokenAmount, maxSolCost))
}

// NewSellInstruction sells tokenAmount base units for at least minSolOutput
// lamports.
func NewSellInstruction(acc Accounts, tokenAmount, minSolOutput uint64) solana.Instruction {
	return solana.NewInstruction(ProgramID, acc.metas(), encode(SellDiscriminator, tokenAmount, minSolOutput))
}

func encode(discriminator, amount, bound uint64) []byte {
	data := make([]byte, 24)
	binary.LittleEndian.PutUint64(data[0:8], discriminator)
	binary.LittleEndian.PutUint64(data[8:16], amount)
	binary.LittleEndian.PutUint64(data[16:24], bound)
	return data
}

func (a Accounts) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(GlobalAccount, false, false),
		solana.NewAccountMeta(FeeRecipient, true, false),
		solana.NewAccountMeta(a.Mint, false, false),
		solana.NewAccountMeta(a.BondingCurve, true, false),
		solana.NewAccountMeta(a.AssociatedBondingCurve, true, false),
		solana.NewAccountMeta(a.UserTokenAccount, true, false),
		solana.NewAccountMeta(a.User, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(EventAuthority, false, false),
		solana.NewAccountMeta(ProgramID, false, false),
	}
}
