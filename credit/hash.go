package credit

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// CreditHash is the 32-byte key of a credit.
type CreditHash [32]byte

func (h CreditHash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// Short is the first 8 hex digits, for logs and error messages.
func (h CreditHash) Short() string { return hex.EncodeToString(h[:4]) }

func (h CreditHash) IsZero() bool { return h == CreditHash{} }

// ParseCreditHash accepts the form produced by String, with or without 0x.
func ParseCreditHash(s string) (CreditHash, error) {
	var h CreditHash
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("parse credit hash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("parse credit hash: want %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func (h CreditHash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *CreditHash) UnmarshalText(b []byte) error {
	parsed, err := ParseCreditHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// =============================================================================
// HASH STRATEGIES
// =============================================================================

// HashStrategy derives the key a credit is stored under.
type HashStrategy interface {
	CreditHash(borrower string, receivableID ReceivableID) CreditHash
}

// BorrowerLevelHash keys one credit per (contract, borrower).
type BorrowerLevelHash struct {
	Contract string
}

func (s BorrowerLevelHash) CreditHash(borrower string, _ ReceivableID) CreditHash {
	return keccak([]byte(s.Contract), []byte(borrower))
}

// ReceivableLevelHash keys one credit per (contract, borrower, receivable).
type ReceivableLevelHash struct {
	Contract string
}

func (s ReceivableLevelHash) CreditHash(borrower string, receivableID ReceivableID) CreditHash {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(receivableID))
	return keccak([]byte(s.Contract), []byte(borrower), id[:])
}

// StrategyFor picks the strategy matching cc.BorrowerLevelCredit.
func StrategyFor(contract string, cc CreditConfig) HashStrategy {
	if cc.BorrowerLevelCredit {
		return BorrowerLevelHash{Contract: contract}
	}
	return ReceivableLevelHash{Contract: contract}
}

func keccak(parts ...[]byte) CreditHash {
	hasher := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		// length-prefix each part so ("ab","c") and ("a","bc") differ
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		hasher.Write(n[:])
		hasher.Write(p)
	}
	var h CreditHash
	copy(h[:], hasher.Sum(nil))
	return h
}
