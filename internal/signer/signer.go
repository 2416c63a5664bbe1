package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer is the agent identity used for every vault, swap and fee transfer the
// engine submits. Address doubles as the stats "agent" field.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// Verify reports whether tx was signed by s for chainID.
func Verify(s Signer, chainID *big.Int, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return err
	}
	if from != s.Address() {
		return errSignerMismatch{want: s.Address(), got: from}
	}
	return nil
}

type errSignerMismatch struct {
	want common.Address
	got  common.Address
}

func (e errSignerMismatch) Error() string {
	return "signed by " + e.got.Hex() + ", expected " + e.want.Hex()
}
