package solana

import (
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

const (
	// LamportsPerSOL is the number of lamports in one SOL.
	LamportsPerSOL uint64 = 1_000_000_000

	// MintAccountSize is the byte size of an SPL token mint account.
	MintAccountSize uint64 = 82

	// DefaultMintDecimals is the decimals a new mint gets unless configured otherwise.
	DefaultMintDecimals uint8 = 9

	// metadataSeed is the fixed first seed of a token metadata account address.
	metadataSeed = "metadata"
)

// Well-known Solana program IDs
var (
	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.TokenProgramID

	// AssociatedTokenProgramID is the SPL Associated Token Account program
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID

	// TokenMetadataProgramID is the Metaplex Token Metadata program
	TokenMetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// ProgramIDs are the on-chain programs a Builder emits instructions for.
type ProgramIDs struct {
	Token           solana.PublicKey
	AssociatedToken solana.PublicKey
	Metadata        solana.PublicKey
}

// DefaultProgramIDs returns the mainnet/devnet program deployments.
func DefaultProgramIDs() ProgramIDs {
	return ProgramIDs{
		Token:           TokenProgramID,
		AssociatedToken: AssociatedTokenProgramID,
		Metadata:        TokenMetadataProgramID,
	}
}

// FindMetadataAddress derives the metadata account of mint under the given
// metadata program. The result depends only on its inputs.
func FindMetadataAddress(metadataProgram, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{
		[]byte(metadataSeed),
		metadataProgram[:],
		mint[:],
	},
		metadataProgram,
	)
}

// FindAssociatedTokenAddress derives owner's token account for mint under the
// configured token and associated token programs.
func FindAssociatedTokenAddress(programs ProgramIDs, owner, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{
		owner[:],
		programs.Token[:],
		mint[:],
	},
		programs.AssociatedToken,
	)
}

// scaleAmount multiplies amount by 10^decimals, failing on overflow.
func scaleAmount(amount uint64, decimals uint8) (uint64, error) {
	scaled := amount
	for i := uint8(0); i < decimals; i++ {
		hi, lo := bits.Mul64(scaled, 10)
		if hi != 0 {
			return 0, fmt.Errorf("amount %d overflows with %d decimals", amount, decimals)
		}
		scaled = lo
	}
	return scaled, nil
}

// solToLamports converts whole SOL to lamports, failing on overflow.
func solToLamports(amount uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, LamportsPerSOL)
	if hi != 0 {
		return 0, fmt.Errorf("amount %d SOL overflows lamports", amount)
	}
	return lo, nil
}
