package domain

import (
	"errors"
	"fmt"
)

// ContractError is a coded contract failure. Values are comparable, so callers
// match them with errors.Is against the exported variables of each contract.
type ContractError struct {
	Code uint32
	Name string
}

func (e ContractError) Error() string {
	return fmt.Sprintf("contract error #%d (%s)", e.Code, e.Name)
}

// Codes shared by every contract on the host.
var (
	ErrInternal        = ContractError{Code: 1, Name: "InternalError"}
	ErrInvalidArgument = ContractError{Code: 2, Name: "InvalidArgument"}
	ErrAlreadyInit     = ContractError{Code: 3, Name: "AlreadyInitialized"}
	ErrUnauthorized    = ContractError{Code: 4, Name: "Unauthorized"}
)

// AsContractError extracts the first ContractError in err's chain.
func AsContractError(err error) (ContractError, bool) {
	var ce ContractError
	if errors.As(err, &ce) {
		return ce, true
	}
	return ContractError{}, false
}
