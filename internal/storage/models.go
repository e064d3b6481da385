package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EvaluationRun is the persisted audit record of one evaluation pass.
type EvaluationRun struct {
	ID                 uuid.UUID
	PolicyName         string
	Policy             json.RawMessage
	Filter             string
	Evaluated          int
	Failed             int
	MeanScore          float64
	TotalGrossValue    decimal.Decimal
	TotalImpactedValue decimal.Decimal
	ImpactDeltaPct     *decimal.Decimal
	TierCounts         map[string]int
	CreatedAt          time.Time
}
