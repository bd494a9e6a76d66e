package errutil

// CoreStatus is a transport-agnostic status code attached to BaseError.
type CoreStatus string

const (
	StatusBadRequest         CoreStatus = "bad_request"
	StatusNotFound           CoreStatus = "not_found"
	StatusConflict           CoreStatus = "conflict"
	StatusUnprocessable      CoreStatus = "unprocessable_entity"
	StatusNotReady           CoreStatus = "not_ready"
	StatusFailedPrecondition CoreStatus = "failed_precondition"
	StatusExhausted          CoreStatus = "resource_exhausted"
	StatusUnavailable        CoreStatus = "unavailable"
	StatusTimeout            CoreStatus = "timeout"
	StatusInternal           CoreStatus = "internal"
)
