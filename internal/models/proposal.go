package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"ibrl/internal/intent"
)

const (
	ProposalStatusPending = "PENDING_APPROVAL"
	ProposalStatusSent    = "SENT"
	ProposalStatusDenied  = "DENIED"

	CreatedByAgent = "agent"
	CreatedByUser  = "user"

	OriginUser       = "user"
	OriginAutomation = "automation"
)

// PayloadSchemaVersion is written into every JSON blob stored on a proposal.
const PayloadSchemaVersion = 1

// Proposal is a built and simulated swap transaction awaiting the owner's decision.
type Proposal struct {
	ID    string `gorm:"type:varchar(36);primaryKey"`
	Owner string `gorm:"type:varchar(64);not null;index:idx_proposals_owner_created,priority:1"`

	// IntentID references the automation that fired this proposal. It is nulled when the
	// automation is deleted.
	IntentID   *string     `gorm:"type:varchar(36);index"`
	Automation *Automation `gorm:"foreignKey:IntentID;references:ID;constraint:OnDelete:SET NULL"`

	Kind      string `gorm:"type:varchar(32);not null"`
	Origin    string `gorm:"type:varchar(32);not null;default:'user';index"`
	CreatedBy string `gorm:"type:varchar(16);not null;default:'user'"`
	Summary   string `gorm:"type:text;not null"`
	Prompt    string `gorm:"type:text"`

	IntentSnapshot   datatypes.JSON `gorm:"type:jsonb;not null"`
	QuoteSnapshot    datatypes.JSON `gorm:"type:jsonb"`
	TxPayload        datatypes.JSON `gorm:"type:jsonb"`
	SimulationResult datatypes.JSON `gorm:"type:jsonb"`
	DecisionReport   datatypes.JSON `gorm:"type:jsonb"`

	Status    string  `gorm:"type:varchar(24);not null;default:'PENDING_APPROVAL';index"`
	Signature *string `gorm:"type:varchar(128)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index:idx_proposals_owner_created,priority:2"`
	UpdatedAt time.Time `gorm:"type:timestamptz"`
}

func (Proposal) TableName() string {
	return "proposals"
}

func (p Proposal) Pending() bool {
	return p.Status == ProposalStatusPending
}

// RouteSummary condenses the router's route plan.
type RouteSummary struct {
	HopCount int      `json:"hopCount"`
	Venues   []string `json:"venues"`
}

type QuoteSnapshot struct {
	SchemaVersion        int          `json:"schema_version"`
	InputMint            string       `json:"inputMint"`
	OutputMint           string       `json:"outputMint"`
	InAmount             string       `json:"inAmount"`
	OutAmount            string       `json:"outAmount"`
	OtherAmountThreshold string       `json:"otherAmountThreshold,omitempty"`
	PriceImpactPct       string       `json:"priceImpactPct,omitempty"`
	SlippageBps          int          `json:"slippageBps"`
	Route                RouteSummary `json:"route"`
	QuotedAt             time.Time    `json:"quotedAt"`
}

type TxPayload struct {
	SchemaVersion        int    `json:"schema_version"`
	TxBase64             string `json:"txBase64"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight,omitempty"`
}

type SimulationSnapshot struct {
	SchemaVersion int             `json:"schema_version"`
	OK            bool            `json:"ok"`
	Err           json.RawMessage `json:"err,omitempty"`
	Logs          []string        `json:"logs,omitempty"`
	UnitsConsumed *uint64         `json:"unitsConsumed,omitempty"`
	Slot          uint64          `json:"slot,omitempty"`
	SimulatedAt   time.Time       `json:"simulatedAt"`
}

// ErrString renders the simulation error for humans.
func (s SimulationSnapshot) ErrString() string {
	if len(s.Err) == 0 || string(s.Err) == "null" {
		return ""
	}
	return string(s.Err)
}

func (p Proposal) Intent() (intent.Intent, error) {
	return intent.Unmarshal(p.IntentSnapshot)
}

func (p Proposal) Quote() (*QuoteSnapshot, error) {
	var out QuoteSnapshot
	ok, err := decodePayload(p.QuoteSnapshot, &out, &out.SchemaVersion)
	if !ok || err != nil {
		return nil, err
	}
	return &out, nil
}

func (p Proposal) Tx() (*TxPayload, error) {
	var out TxPayload
	ok, err := decodePayload(p.TxPayload, &out, &out.SchemaVersion)
	if !ok || err != nil {
		return nil, err
	}
	return &out, nil
}

func (p Proposal) Simulation() (*SimulationSnapshot, error) {
	var out SimulationSnapshot
	ok, err := decodePayload(p.SimulationResult, &out, &out.SchemaVersion)
	if !ok || err != nil {
		return nil, err
	}
	return &out, nil
}

// SetPayloads encodes the built transaction artifacts onto p.
func (p *Proposal) SetPayloads(q QuoteSnapshot, tx TxPayload, sim SimulationSnapshot) error {
	q.SchemaVersion = PayloadSchemaVersion
	tx.SchemaVersion = PayloadSchemaVersion
	sim.SchemaVersion = PayloadSchemaVersion
	qb, err := json.Marshal(q)
	if err != nil {
		return err
	}
	tb, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	sb, err := json.Marshal(sim)
	if err != nil {
		return err
	}
	p.QuoteSnapshot = datatypes.JSON(qb)
	p.TxPayload = datatypes.JSON(tb)
	p.SimulationResult = datatypes.JSON(sb)
	return nil
}

// decodePayload returns ok=false for an empty column and rejects unknown newer versions.
// Rows written before versioning carry no schema_version and are read as version 1.
func decodePayload(raw datatypes.JSON, out any, version *int) (bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	if *version == 0 {
		*version = PayloadSchemaVersion
	}
	if *version > PayloadSchemaVersion {
		return false, fmt.Errorf("payload schema_version %d not supported", *version)
	}
	return true, nil
}
