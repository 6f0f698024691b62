package distributor

import "distributor/pkg/domain"

// Distributor error codes. Codes below 100 are shared with the host and the
// token (see domain.ErrAlreadyInit and domain.ErrUnauthorized).
var (
	ErrDeadlineOutOfRange = domain.ContractError{Code: 100, Name: "DeadlineOutOfRange"}
	ErrNotFinalized       = domain.ContractError{Code: 101, Name: "NotFinalized"}
	ErrAlreadyClaimed     = domain.ContractError{Code: 102, Name: "AlreadyClaimed"}
	ErrAlreadyFinalized   = domain.ContractError{Code: 103, Name: "AlreadyFinalized"}
	ErrNoDistribution     = domain.ContractError{Code: 104, Name: "NoDistribution"}
	ErrDeadlinePassed     = domain.ContractError{Code: 105, Name: "DeadlinePassed"}
	ErrDeadlineNotPassed  = domain.ContractError{Code: 106, Name: "DeadlineNotPassed"}
	ErrNotInitialized     = domain.ContractError{Code: 107, Name: "NotInitialized"}
)

// Errors lists every contract error the distributor can return, host codes included.
func Errors() []domain.ContractError {
	return []domain.ContractError{
		domain.ErrInternal,
		domain.ErrInvalidArgument,
		domain.ErrAlreadyInit,
		domain.ErrUnauthorized,
		ErrDeadlineOutOfRange,
		ErrNotFinalized,
		ErrAlreadyClaimed,
		ErrAlreadyFinalized,
		ErrNoDistribution,
		ErrDeadlinePassed,
		ErrDeadlineNotPassed,
		ErrNotInitialized,
	}
}
