package models

import (
	"time"

	"github.com/google/uuid"
)

// TxType is the kind of balance-affecting event a transaction row records.
type TxType string

const (
	TxStarterGrant          TxType = "starter_grant"
	TxEscrowLock            TxType = "escrow_lock"
	TxPayment               TxType = "payment"
	TxPlatformFee           TxType = "platform_fee"
	TxEscrowRelease         TxType = "escrow_release"
	TxActivityMiningBonus   TxType = "activity_mining_bonus"
	TxReferralBonusNew      TxType = "referral_bonus_new"
	TxReferralBonusReferrer TxType = "referral_bonus_referrer"
	TxReputationDecay       TxType = "reputation_decay"
)

// Transaction is one row of the append-only ledger. Amount is signed: debits are negative.
// AgentID is nil only for platform_fee rows, which settle into the platform sink.
type Transaction struct {
	ID          uuid.UUID  `json:"id"`
	AgentID     *uuid.UUID `json:"agentId,omitempty"`
	Type        TxType     `json:"type"`
	Amount      int64      `json:"amount"`
	JobID       *uuid.UUID `json:"jobId,omitempty"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
}
