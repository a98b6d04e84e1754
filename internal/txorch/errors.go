package txorch

import "fmt"

// RevertReason is the closed set of outcomes the simulation classifier can
// report. Classification is heuristic string matching on provider error text;
// it only shapes the user-facing message, never control flow beyond
// "refuse to broadcast".
type RevertReason string

const (
	ReasonInsufficientFunds      RevertReason = "insufficient_funds"
	ReasonGasTooLow              RevertReason = "gas_too_low"
	ReasonNonceConflict          RevertReason = "nonce_conflict"
	ReasonReplacementUnderpriced RevertReason = "replacement_underpriced"
	ReasonGeneric                RevertReason = "will_revert"
)

// SimulationRevertError is raised before any gas is spent: the dry-run call
// predicted the transaction would fail on-chain.
type SimulationRevertError struct {
	Reason RevertReason
	Detail string
}

func (e *SimulationRevertError) Error() string {
	switch e.Reason {
	case ReasonInsufficientFunds:
		return "simulation failed: insufficient balance"
	case ReasonGasTooLow:
		return "simulation failed: gas too low"
	case ReasonNonceConflict:
		return "simulation failed: nonce conflict"
	case ReasonReplacementUnderpriced:
		return "simulation failed: replacement transaction underpriced"
	}
	if e.Detail != "" {
		return fmt.Sprintf("simulation failed: %s", e.Detail)
	}
	return "simulation failed: transaction would revert"
}

// SubmissionError wraps a broadcast rejected by every attempted endpoint.
// The original chain error text is preserved for classification upstream.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("broadcast rejected: %s", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
