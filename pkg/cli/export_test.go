package cli

// Exported for testing
var (
	ResolveRef          = resolveRef
	PrintSweepResult    = printSweepResult
	PrintEvaluateResult = printEvaluateResult
)
