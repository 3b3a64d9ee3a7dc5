package identity

import (
	"strings"

	masker "github.com/goliatone/go-masker"
)

// maskType は先頭と末尾の2文字だけを残すマスク方式。
const maskType = "preserveEnds(2,2)"

// Mask は身元トークンをdebugログに出力できる形に伏せ字にする。
func Mask(token string) string {
	if token == "" {
		return ""
	}
	if masked, err := masker.Default.String(maskType, token); err == nil {
		return masked
	}
	return strings.Repeat("*", len([]rune(token)))
}
