package distributor

import (
	"distributor/internal/core"
	"distributor/pkg/domain"
)

// TopicClaim is published once per successful claim, keyed by the claimant
// with the claimed amount as payload.
const TopicClaim = "dist_claim"

func publishClaim(env *core.Env, user domain.Address, amount domain.Amount) {
	env.Publish(TopicClaim, user, amount)
}
