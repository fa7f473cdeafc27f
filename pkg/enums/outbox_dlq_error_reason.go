package enums

type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts        OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable       OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMissingCashAccount OutboxDLQErrorReason = "missing_cash_account"
	OutboxDLQReasonMissingTechnician  OutboxDLQErrorReason = "missing_technician"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonMissingCashAccount,
	OutboxDLQReasonMissingTechnician,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
