package txorch

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ERC20TransferData encodes transfer(to, amount) calldata for token sends.
func ERC20TransferData(to common.Address, amount *big.Int) []byte {
	selector := common.FromHex("0xa9059cbb")
	arg1 := common.LeftPadBytes(to.Bytes(), 32)
	arg2 := common.LeftPadBytes(amount.Bytes(), 32)
	return append(selector, append(arg1, arg2...)...)
}
