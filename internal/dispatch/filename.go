package dispatch

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Filename returns logpack-<yyyyMMdd-HHmmss>-<status>-<6 random>.logpack
// with the timestamp rendered in loc.
func Filename(now time.Time, status int, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return fmt.Sprintf("logpack-%s-%d-%s.logpack", now.In(loc).Format("20060102-150405"), status, randomSuffix(6))
}

func randomSuffix(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(suffixAlphabet)))
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			out[i] = suffixAlphabet[time.Now().UnixNano()%int64(len(suffixAlphabet))]
			continue
		}
		out[i] = suffixAlphabet[v.Int64()]
	}
	return string(out)
}
