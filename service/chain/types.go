package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Project is the on-chain project tuple. Field names follow the ABI
// component names so the tuple decodes straight into this struct. The
// client treats it as a read-only projection: every field is overwritten
// wholesale on each refresh and never mutated locally.
type Project struct {
	Id           *big.Int
	Title        string
	Description  string
	Creator      common.Address
	GoalAmount   *big.Int
	RaisedAmount *big.Int
	Deadline     *big.Int
	IsActive     bool
	GoalReached  bool
}

// DeadlineUnix returns the project deadline as a unix timestamp.
func (p Project) DeadlineUnix() int64 {
	if p.Deadline == nil {
		return 0
	}
	return p.Deadline.Int64()
}

// ProjectCreatedEvent is the decoded ProjectCreated contract log.
type ProjectCreatedEvent struct {
	ProjectId  *big.Int
	Title      string
	Creator    common.Address
	GoalAmount *big.Int
	Deadline   *big.Int
	Raw        types.Log
}

// ContributionMadeEvent is the decoded ContributionMade contract log.
type ContributionMadeEvent struct {
	ProjectId   *big.Int
	Contributor common.Address
	Amount      *big.Int
	Raw         types.Log
}
