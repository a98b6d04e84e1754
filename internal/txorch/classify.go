package txorch

import "strings"

// classify maps provider error text to a SimulationRevertError when it looks
// like a chain-level execution failure. Providers phrase the same failure
// differently, so this is substring matching on the lowercased message.
// Anything else, dial failures and timeouts included, passes through
// unchanged: an endpoint outage must never be reported as a revert.
func classify(err error) error {
	s := err.Error()
	ls := strings.ToLower(s)

	switch {
	case strings.Contains(ls, "insufficient funds"),
		strings.Contains(ls, "insufficient balance"):
		return &SimulationRevertError{Reason: ReasonInsufficientFunds, Detail: s}
	case strings.Contains(ls, "intrinsic gas too low"),
		strings.Contains(ls, "out of gas"),
		strings.Contains(ls, "gas limit reached"),
		strings.Contains(ls, "gas required exceeds"):
		return &SimulationRevertError{Reason: ReasonGasTooLow, Detail: s}
	case strings.Contains(ls, "nonce too low"),
		strings.Contains(ls, "nonce too high"),
		strings.Contains(ls, "invalid nonce"),
		strings.Contains(ls, "already known"):
		return &SimulationRevertError{Reason: ReasonNonceConflict, Detail: s}
	case strings.Contains(ls, "replacement transaction underpriced"),
		strings.Contains(ls, "transaction underpriced"):
		return &SimulationRevertError{Reason: ReasonReplacementUnderpriced, Detail: s}
	case strings.Contains(ls, "execution reverted"),
		strings.Contains(ls, "vm exception"),
		strings.Contains(ls, "revert"):
		return &SimulationRevertError{Reason: ReasonGeneric, Detail: revertDetail(s)}
	}

	return err
}

// revertDetail extracts the human-readable revert reason when the provider
// embedded one ("execution reverted: ERC20: transfer amount exceeds balance").
func revertDetail(s string) string {
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		d := s[i:]
		if j := strings.Index(d, ":"); j >= 0 && j+1 < len(d) {
			if reason := strings.TrimSpace(d[j+1:]); reason != "" {
				return reason
			}
		}
		return "execution reverted"
	}
	return s
}
