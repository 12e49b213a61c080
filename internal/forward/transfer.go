package forward

import (
	"encoding/base64"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"solana-sweeper/internal/keys"
)

// Transfer is a signed, wire encoded SystemProgram transfer.
type Transfer struct {
	// Encoded is the base64 wire form accepted by sendTransaction.
	Encoded string
	// Signature is the fee payer signature, which identifies the transaction.
	Signature string
}

// BuildTransfer builds a single instruction transfer of lamports from the
// credential's account to dest, paid and signed by the sender.
func BuildTransfer(cred keys.Credential, dest solanago.PublicKey, lamports uint64, blockhash string) (*Transfer, error) {
	secret := cred.SecretBytes()
	if len(secret) != keys.KeypairSize {
		return nil, errors.New("credential has no keypair")
	}

	priv := solanago.PrivateKey(secret)
	from := priv.PublicKey()

	recent, err := solanago.HashFromBase58(blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}

	ix := system.NewTransferInstruction(lamports, from, dest).Build()

	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{ix},
		recent,
		solanago.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	sigs, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(from) {
			return &priv
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	return &Transfer{
		Encoded:   base64.StdEncoding.EncodeToString(raw),
		Signature: sigs[0].String(),
	}, nil
}
