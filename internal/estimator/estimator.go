// Package estimator turns a puzzle snapshot into per-market resale price
// estimates using a vision-capable Claude model.
package estimator

import (
	"context"

	"github.com/piececount/puzzledex/internal/model"
)

// Request carries everything the estimator may consider when pricing a
// puzzle: the five snapshot fields plus title, free-text notes, and an
// optional reference to the primary photo.
type Request struct {
	Title       string
	Author      string
	PiecesCount int
	Condition   model.Condition
	Complete    bool
	HasBox      bool
	Notes       string
	ImageURL    string
}

// Estimation is a successful estimator response: a non-empty, validated list
// of per-market estimates and the model tag that produced them.
type Estimation struct {
	Prices  []model.PriceEstimate
	Version string
}

// Estimator is the external price oracle. Implementations must return a
// ContractError when the upstream responds with unusable data, and any other
// error for transport-level failures.
type Estimator interface {
	Estimate(ctx context.Context, req Request) (*Estimation, error)
}

// ContractError means the upstream answered but outside its contract:
// missing structured payload, empty price list, or malformed entries.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return "estimator response outside contract: " + e.Reason
}
