package solana

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Token Metadata program instruction types
const (
	MetadataCreateMetadataAccountV3Instruction = uint8(33)
)

// Field limits enforced by the Token Metadata program.
const (
	MaxNameLength           = 32
	MaxSymbolLength         = 10
	MaxURILength            = 200
	MaxSellerFeeBasisPoints = 10000
)

// TokenMetadata is the descriptive record attached to every mint this service creates.
type TokenMetadata struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	IsMutable            bool
}

// Validate checks the metadata against the program's field limits.
func (m TokenMetadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("token name is required")
	}
	if len(m.Name) > MaxNameLength {
		return fmt.Errorf("token name %q exceeds %d bytes", m.Name, MaxNameLength)
	}
	if len(m.Symbol) > MaxSymbolLength {
		return fmt.Errorf("token symbol %q exceeds %d bytes", m.Symbol, MaxSymbolLength)
	}
	if len(m.URI) > MaxURILength {
		return fmt.Errorf("token uri exceeds %d bytes", MaxURILength)
	}
	if m.SellerFeeBasisPoints > MaxSellerFeeBasisPoints {
		return fmt.Errorf("seller fee %d exceeds %d basis points", m.SellerFeeBasisPoints, MaxSellerFeeBasisPoints)
	}
	return nil
}

// CreateMetadataAccounts are the accounts of a CreateMetadataAccountV3 instruction.
type CreateMetadataAccounts struct {
	Metadata        solana.PublicKey
	Mint            solana.PublicKey
	MintAuthority   solana.PublicKey
	Payer           solana.PublicKey
	UpdateAuthority solana.PublicKey
}

// NewCreateMetadataAccountV3Instruction builds the instruction that creates a
// mint's metadata record. Creators, collection, uses and collection details
// are always empty.
func NewCreateMetadataAccountV3Instruction(programID solana.PublicKey, accounts CreateMetadataAccounts, md TokenMetadata) (solana.Instruction, error) {
	if err := md.Validate(); err != nil {
		return nil, err
	}

	data, err := encodeCreateMetadataAccountV3(md)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata instruction: %w", err)
	}

	acctMeta := solana.AccountMetaSlice{
		// 0. metadata (writable)
		{PublicKey: accounts.Metadata, IsSigner: false, IsWritable: true},
		// 1. mint
		{PublicKey: accounts.Mint, IsSigner: false, IsWritable: false},
		// 2. mint_authority (signer)
		{PublicKey: accounts.MintAuthority, IsSigner: true, IsWritable: false},
		// 3. payer (signer, writable)
		{PublicKey: accounts.Payer, IsSigner: true, IsWritable: true},
		// 4. update_authority
		{PublicKey: accounts.UpdateAuthority, IsSigner: false, IsWritable: false},
		// 5. system_program
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}

	return solana.NewInstruction(programID, acctMeta, data), nil
}

// encodeCreateMetadataAccountV3 Borsh-encodes the instruction arguments:
// discriminator, DataV2, is_mutable, collection_details.
func encodeCreateMetadataAccountV3(md TokenMetadata) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteUint8(MetadataCreateMetadataAccountV3Instruction); err != nil {
		return nil, err
	}
	for _, s := range []string{md.Name, md.Symbol, md.URI} {
		if err := writeBorshString(enc, s); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint16(md.SellerFeeBasisPoints, binary.LittleEndian); err != nil {
		return nil, err
	}
	// creators, collection, uses: None
	for i := 0; i < 3; i++ {
		if err := enc.WriteBool(false); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteBool(md.IsMutable); err != nil {
		return nil, err
	}
	// collection_details: None
	if err := enc.WriteBool(false); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeBorshString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}
