package wire

import (
	"github.com/keepmind9/wirebot/pkg/constants"
)

// maskSecret masks long tokens for logging. Anything up to
// MinSecretLengthForMasking characters is hidden completely.
func maskSecret(s string) string {
	if len(s) <= constants.MinSecretLengthForMasking {
		return "***"
	}
	return s[:constants.SecretMaskPrefixLength] + "***" + s[len(s)-constants.SecretMaskSuffixLength:]
}
