package ledger

// ChainFailure classifies why chain verification failed. These are expected,
// frequent outcomes reported as values, never as errors thrown across the
// verification boundary.
type ChainFailure string

const (
	FailureNone            ChainFailure = ""
	FailureUnknownChain    ChainFailure = "unknown_chain"
	FailureMissingUnit     ChainFailure = "missing_unit"
	FailureChainBroken     ChainFailure = "chain_broken"
	FailureContentMismatch ChainFailure = "content_mismatch"
)

// ChainResult is the outcome of VerifyChain. UnitID names the first failing
// unit when Valid is false and the failure is unit-scoped.
type ChainResult struct {
	Valid   bool         `json:"valid"`
	Failure ChainFailure `json:"failure,omitempty"`
	UnitID  string       `json:"unit_id,omitempty"`
}

// VerifyChain walks the chain's unit sequence in order, checking that every
// unit exists, that each unit's previous pointer matches the prior unit in
// sequence (nil for the first), and that each unit's ID still equals its
// content hash. Verification short-circuits on the first failure and is
// total: there is no partial-chain-valid result. It is side-effect free and
// re-runnable.
func (l *Ledger) VerifyChain(chainID string) ChainResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chain, ok := l.chains[chainID]
	if !ok {
		return ChainResult{Failure: FailureUnknownChain}
	}

	var expectedPrevious *string
	for _, unitID := range chain.Contexts {
		unit, ok := l.units[unitID]
		if !ok {
			return ChainResult{Failure: FailureMissingUnit, UnitID: unitID}
		}

		if !previousMatches(unit.Previous, expectedPrevious) {
			return ChainResult{Failure: FailureChainBroken, UnitID: unitID}
		}

		hash, err := ContentHash(unit)
		if err != nil || hash != unit.ID {
			return ChainResult{Failure: FailureContentMismatch, UnitID: unitID}
		}

		id := unit.ID
		expectedPrevious = &id
	}

	return ChainResult{Valid: true}
}

func previousMatches(got, want *string) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	return *got == *want
}
