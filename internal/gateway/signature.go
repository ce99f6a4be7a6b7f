package gateway

import (
	"crypto/hmac"
	"encoding/hex"
	"hash"

	"github.com/shopspring/decimal"
)

// verifyHexHMAC compares a hex-encoded HMAC of payload with signature in
// constant time.
func verifyHexHMAC(h func() hash.Hash, key, payload []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(h, key)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}

// toMinorUnits converts a major-unit amount to the currency's minor unit.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
