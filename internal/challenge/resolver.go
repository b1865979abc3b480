// Package challenge implements the two geetest-challenge solving
// strategies the acquisition engine can be configured with: an automatic
// black-box solver and a manual browser-driven one.
package challenge

import "context"

// Resolver is the capability the FSM consumes: challenge-in, validate-out.
// It mirrors internal/ticket.ChallengeResolver so either provider here can
// be injected into a ticket.Engine without that package importing this one.
type Resolver interface {
	Solve(ctx context.Context, gt, challenge string) (validate string, err error)
}
