// Package view holds the pure functions the presentation layer derives
// display facts from. Nothing here performs IO or mutates state; every
// function is a projection of (project, account, now).
package view

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fundlift/fundlift/service/chain"
)

// ErrZeroGoal indicates a project whose goal amount is zero. Creation
// validation makes this unreachable through this client; seeing it means
// the snapshot is internally inconsistent.
var ErrZeroGoal = errors.New("project has zero goal amount")

// IsExpired reports whether the project deadline has passed at now.
// A project is expired at the exact deadline instant.
func IsExpired(p chain.Project, now time.Time) bool {
	return now.Unix() >= p.DeadlineUnix()
}

// ProgressPercent returns the funding progress as a percentage capped at
// 100, regardless of how far past the goal contributions went.
func ProgressPercent(p chain.Project) (float64, error) {
	if p.GoalAmount == nil || p.GoalAmount.Sign() == 0 {
		return 0, ErrZeroGoal
	}
	raised := new(big.Float).SetInt(p.RaisedAmount)
	goal := new(big.Float).SetInt(p.GoalAmount)
	ratio, _ := new(big.Float).Quo(raised, goal).Float64()
	percent := ratio * 100
	if percent > 100 {
		percent = 100
	}
	return percent, nil
}

// TimeRemainingLabel formats the time left before the deadline as whole
// days and whole remaining hours, or "Expired" once the deadline passes.
func TimeRemainingLabel(p chain.Project, now time.Time) string {
	if IsExpired(p, now) {
		return "Expired"
	}
	remaining := p.DeadlineUnix() - now.Unix()
	days := remaining / (24 * 3600)
	hours := (remaining % (24 * 3600)) / 3600
	return fmt.Sprintf("%dd %dh remaining", days, hours)
}

// CanContribute reports whether the contribute control is offered to
// account. The contract permits creators to contribute to their own
// projects; this client does not offer it.
func CanContribute(p chain.Project, account common.Address, now time.Time) bool {
	return account != p.Creator && !IsExpired(p, now)
}

// CanWithdraw reports whether the withdraw control is offered to account.
func CanWithdraw(p chain.Project, account common.Address, now time.Time) bool {
	return account == p.Creator && p.GoalReached && p.RaisedAmount != nil && p.RaisedAmount.Sign() > 0
}

// CanRefund reports whether the refund control is offered to account.
func CanRefund(p chain.Project, account common.Address, now time.Time) bool {
	return account != p.Creator && IsExpired(p, now) && !p.GoalReached
}
