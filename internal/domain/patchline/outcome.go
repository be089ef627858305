package patchline

// Outcome is the result of processing one region in a cycle.
type Outcome string

const (
	// OutcomeUpdated means a snapshot with a new build was written.
	OutcomeUpdated Outcome = "updated"
	// OutcomeUnchanged means the snapshot was rewritten with the same build.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeRetrievalFailed means the retrieval tool failed or timed out.
	OutcomeRetrievalFailed Outcome = "retrieval_failed"
	// OutcomeExtractionFailed means the binary held no usable version record.
	OutcomeExtractionFailed Outcome = "extraction_failed"
	// OutcomeStoreFailed means the snapshot could not be written.
	OutcomeStoreFailed Outcome = "store_failed"
)

// Succeeded reports whether the region snapshot is current after the cycle.
func (o Outcome) Succeeded() bool {
	return o == OutcomeUpdated || o == OutcomeUnchanged
}

// CycleResult is the result of one cycle as a whole.
type CycleResult string

const (
	// CycleCompleted means every region was attempted.
	CycleCompleted CycleResult = "completed"
	// CycleConfigFailed means the region list could not be fetched.
	CycleConfigFailed CycleResult = "config_failed"
	// CycleSetupFailed means the working directories could not be prepared.
	CycleSetupFailed CycleResult = "setup_failed"
)
