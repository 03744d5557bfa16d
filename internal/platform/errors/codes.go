// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Trigger configuration errors
	CodeTriggerStartSetEmpty           Code = "TRIGGER_START_SET_EMPTY"
	CodeTriggerStopSetEmpty            Code = "TRIGGER_STOP_SET_EMPTY"
	CodeTriggerSameNFCRequiresNFCStart Code = "TRIGGER_SAME_NFC_REQUIRES_NFC_START"
	CodeTriggerSameQRRequiresQRStart   Code = "TRIGGER_SAME_QR_REQUIRES_QR_START"
	CodeTriggerChoiceRequired          Code = "TRIGGER_CHOICE_REQUIRED"
	CodeTriggerScheduleOnly            Code = "TRIGGER_SCHEDULE_ONLY"
	CodeTriggerNotAccepted             Code = "TRIGGER_NOT_ACCEPTED"

	// Profile errors
	CodeProfileNotFound Code = "PROFILE_NOT_FOUND"
	CodeProfileLocked   Code = "PROFILE_LOCKED"

	// Session lifecycle errors
	CodeSessionAlreadyActive   Code = "SESSION_ALREADY_ACTIVE"
	CodeSessionNotActive       Code = "SESSION_NOT_ACTIVE"
	CodeSessionBreaksDisabled  Code = "SESSION_BREAKS_DISABLED"
	CodeSessionBreakExhausted  Code = "SESSION_BREAK_EXHAUSTED"
	CodeSessionGraceExhausted  Code = "SESSION_GRACE_EXHAUSTED"
	CodeSessionAlreadyEnded    Code = "SESSION_ALREADY_ENDED"
	CodeSessionEmptyProfileID  Code = "SESSION_EMPTY_PROFILE_ID"
	CodeSessionStartReconciled Code = "SESSION_START_RECONCILED"

	// Geofence errors
	CodeGeofenceNotSatisfied Code = "GEOFENCE_NOT_SATISFIED"
	CodeGeofenceUnavailable  Code = "GEOFENCE_UNAVAILABLE"

	// Emergency override errors
	CodeOverrideExhausted Code = "OVERRIDE_EXHAUSTED"
	CodeOverrideForbidden Code = "OVERRIDE_FORBIDDEN"

	// Sync/ledger errors
	CodeSyncConflict  Code = "SYNC_CONFLICT"
	CodeLedgerChanged Code = "LEDGER_CHANGED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeTriggerStartSetEmpty,
		CodeTriggerStopSetEmpty,
		CodeTriggerSameNFCRequiresNFCStart,
		CodeTriggerSameQRRequiresQRStart,
		CodeSessionEmptyProfileID:
		return codes.InvalidArgument

	// FailedPrecondition - guard refusals, illegal transitions
	case CodeTriggerChoiceRequired,
		CodeTriggerScheduleOnly,
		CodeTriggerNotAccepted,
		CodeProfileLocked,
		CodeSessionAlreadyActive,
		CodeSessionNotActive,
		CodeSessionBreaksDisabled,
		CodeSessionBreakExhausted,
		CodeSessionGraceExhausted,
		CodeSessionAlreadyEnded,
		CodeSessionStartReconciled,
		CodeGeofenceNotSatisfied,
		CodeOverrideForbidden:
		return codes.FailedPrecondition

	// ResourceExhausted - rate limits
	case CodeOverrideExhausted:
		return codes.ResourceExhausted

	// Aborted - optimistic concurrency losses
	case CodeSyncConflict, CodeLedgerChanged:
		return codes.Aborted

	// Unavailable - collaborator faults
	case CodeGeofenceUnavailable:
		return codes.Unavailable

	case CodeNotFound, CodeProfileNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}
