package handler

const (
	errInternalServer  = "Internal server error"
	errTriggerNotFound = "Trigger not found"
	errEventNotFound   = "Scheduled event not found"
	errDuplicateName   = "Trigger with this name already exists"
	errInvalidRequest  = "Request failed validation"
)
