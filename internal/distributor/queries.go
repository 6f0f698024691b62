package distributor

import "distributor/pkg/domain"

// Phase names the lifecycle state of a distribution.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseConfiguring   Phase = "configuring"
	PhaseFinalized     Phase = "finalized"
)

// Status summarizes a distribution at the view's height.
type Status struct {
	Contract domain.Address `json:"contract"`
	Phase    Phase          `json:"phase"`
	Token    domain.Address `json:"token"`
	Admin    domain.Address `json:"admin"`
	Deadline domain.Height  `json:"deadline"`
	Height   domain.Height  `json:"height"`
	Expired  bool           `json:"expired"`
}

// GetClaimed reports whether user has claimed.
func GetClaimed(view domain.TransactionView, contract, user domain.Address) (bool, error) {
	r := reader{view: view, contract: contract}
	if !r.initialized() {
		return false, ErrNotInitialized
	}
	return r.claimed(user), nil
}

// GetDeadline returns the last height at which claims are accepted.
func GetDeadline(view domain.TransactionView, contract domain.Address) (domain.Height, error) {
	cfg, err := reader{view: view, contract: contract}.config()
	return cfg.Deadline, err
}

// GetAdmin returns the current admin.
func GetAdmin(view domain.TransactionView, contract domain.Address) (domain.Address, error) {
	cfg, err := reader{view: view, contract: contract}.config()
	return cfg.Admin, err
}

// GetToken returns the token being distributed.
func GetToken(view domain.TransactionView, contract domain.Address) (domain.Address, error) {
	cfg, err := reader{view: view, contract: contract}.config()
	return cfg.Token, err
}

// GetAllocation returns the amount allocated to user, zero if none.
func GetAllocation(view domain.TransactionView, contract, user domain.Address) (domain.Amount, error) {
	r := reader{view: view, contract: contract}
	if !r.initialized() {
		return 0, ErrNotInitialized
	}
	return r.allocation(user)
}

// GetStatus reports the phase and configuration. It does not fail before
// initialization.
func GetStatus(view domain.TransactionView, contract domain.Address) (Status, error) {
	st := Status{Contract: contract, Phase: PhaseUninitialized, Height: view.Height()}
	r := reader{view: view, contract: contract}
	if !r.initialized() {
		return st, nil
	}
	cfg, err := r.config()
	if err != nil {
		return st, err
	}
	st.Phase = PhaseConfiguring
	if cfg.Finalized {
		st.Phase = PhaseFinalized
	}
	st.Token = cfg.Token
	st.Admin = cfg.Admin
	st.Deadline = cfg.Deadline
	st.Expired = cfg.Expired(view.Height())
	return st, nil
}
