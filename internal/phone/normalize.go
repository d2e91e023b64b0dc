// Package phone converts heterogeneous user-entered phone strings into the
// canonical 12-digit form the gateway accepts.
package phone

import (
	"strings"

	"bulk-sms-dispatch/internal/domain"
)

// Real-world input mixes country-code-included, local-with-leading-zero, and
// bare-subscriber-number formats. The patterns below are tried in a fixed
// order so ambiguous input resolves deterministically instead of by guess.

// Normalize returns the canonical form of raw, or an InvalidPhoneError when
// no recognized pattern matches.
func Normalize(raw string) (domain.PhoneNumber, error) {
	digits := stripNonDigits(raw)

	if len(digits) < 9 {
		return "", &domain.InvalidPhoneError{Raw: raw, Digits: len(digits)}
	}
	// Tolerate extraneous trailing digits (copy-paste artifacts).
	if len(digits) > 13 {
		digits = digits[:13]
	}

	switch n := len(digits); {
	case n == 12 && strings.HasPrefix(digits, "905"):
		return domain.PhoneNumber(digits), nil
	case n == 13 && strings.HasPrefix(digits, "905"):
		return domain.PhoneNumber(digits[:12]), nil
	case n == 11 && strings.HasPrefix(digits, "05"):
		return domain.PhoneNumber("90" + digits[1:]), nil
	case n == 10 && strings.HasPrefix(digits, "05"):
		// Subscriber part is one digit short; reinsert the mobile "5".
		return domain.PhoneNumber("905" + digits[1:]), nil
	case n == 11 && strings.HasPrefix(digits, "90") && !strings.HasPrefix(digits, "905"):
		// Leading "90" without the mobile "5": reinterpret as a local
		// number and reinsert it. An 11-digit "905" sequence is a canonical
		// number with a digit missing; guessing which one would dispatch to
		// the wrong subscriber, so it is rejected instead.
		return domain.PhoneNumber("905" + digits[2:]), nil
	case n == 10 && strings.HasPrefix(digits, "5"):
		return domain.PhoneNumber("90" + digits), nil
	case n == 11 && strings.HasPrefix(digits, "5"):
		return domain.PhoneNumber("90" + digits[:10]), nil
	case n == 9 && strings.HasPrefix(digits, "5"):
		return domain.PhoneNumber("905" + digits), nil
	}

	return "", &domain.InvalidPhoneError{Raw: raw, Digits: len(digits)}
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
