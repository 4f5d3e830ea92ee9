package wallet

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Normalize returns the EIP-55 checksummed form of an address.
// The second return value is false when the input is not a 20-byte hex address.
func Normalize(address string) (string, bool) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", false
	}
	return common.HexToAddress(address).Hex(), true
}

// IsValid reports whether the input parses as a 20-byte hex address
func IsValid(address string) bool {
	_, ok := Normalize(address)
	return ok
}

// Short shortens an address for display (0x1234...abcd)
func Short(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
