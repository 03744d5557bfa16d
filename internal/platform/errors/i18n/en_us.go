package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeTriggerStartSetEmpty           = "TRIGGER_START_SET_EMPTY"
	CodeTriggerStopSetEmpty            = "TRIGGER_STOP_SET_EMPTY"
	CodeTriggerSameNFCRequiresNFCStart = "TRIGGER_SAME_NFC_REQUIRES_NFC_START"
	CodeTriggerSameQRRequiresQRStart   = "TRIGGER_SAME_QR_REQUIRES_QR_START"
	CodeTriggerChoiceRequired          = "TRIGGER_CHOICE_REQUIRED"
	CodeTriggerScheduleOnly            = "TRIGGER_SCHEDULE_ONLY"
	CodeTriggerNotAccepted             = "TRIGGER_NOT_ACCEPTED"
	CodeProfileNotFound                = "PROFILE_NOT_FOUND"
	CodeProfileLocked                  = "PROFILE_LOCKED"
	CodeSessionAlreadyActive           = "SESSION_ALREADY_ACTIVE"
	CodeSessionNotActive               = "SESSION_NOT_ACTIVE"
	CodeSessionBreaksDisabled          = "SESSION_BREAKS_DISABLED"
	CodeSessionBreakExhausted          = "SESSION_BREAK_EXHAUSTED"
	CodeSessionGraceExhausted          = "SESSION_GRACE_EXHAUSTED"
	CodeSessionAlreadyEnded            = "SESSION_ALREADY_ENDED"
	CodeSessionEmptyProfileID          = "SESSION_EMPTY_PROFILE_ID"
	CodeSessionStartReconciled         = "SESSION_START_RECONCILED"
	CodeGeofenceNotSatisfied           = "GEOFENCE_NOT_SATISFIED"
	CodeGeofenceUnavailable            = "GEOFENCE_UNAVAILABLE"
	CodeOverrideExhausted              = "OVERRIDE_EXHAUSTED"
	CodeOverrideForbidden              = "OVERRIDE_FORBIDDEN"
	CodeSyncConflict                   = "SYNC_CONFLICT"
	CodeLedgerChanged                  = "LEDGER_CHANGED"
	CodeNotFound                       = "NOT_FOUND"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Trigger configuration errors
		CodeTriggerStartSetEmpty:           "At least one start trigger must be enabled",
		CodeTriggerStopSetEmpty:            "At least one stop condition must be enabled",
		CodeTriggerSameNFCRequiresNFCStart: "Stopping with the same NFC tag requires an NFC start trigger",
		CodeTriggerSameQRRequiresQRStart:   "Stopping with the same QR code requires a QR start trigger",
		CodeTriggerChoiceRequired:          "Multiple start triggers are enabled; choose how to start",
		CodeTriggerScheduleOnly:            "This profile only starts on its schedule",
		CodeTriggerNotAccepted:             "{{.Trigger}} cannot start this profile",

		// Profile errors
		CodeProfileNotFound: "No active profile was found",
		CodeProfileLocked:   "This profile is managed and must be unlocked before stopping",

		// Session lifecycle errors
		CodeSessionAlreadyActive:   "A blocking session is already running",
		CodeSessionNotActive:       "No blocking session is running",
		CodeSessionBreaksDisabled:  "Breaks are not enabled for this profile",
		CodeSessionBreakExhausted:  "The break for this session has already been used",
		CodeSessionGraceExhausted:  "One more minute has already been used for this session",
		CodeSessionAlreadyEnded:    "This session has already ended",
		CodeSessionEmptyProfileID:  "Profile ID is required for session",
		CodeSessionStartReconciled: "The session start time has already been reconciled",

		// Geofence errors
		CodeGeofenceNotSatisfied: "You need to be at {{.Location}} to stop this session",
		CodeGeofenceUnavailable:  "Your location could not be checked: {{.Reason}}",

		// Emergency override errors
		CodeOverrideExhausted: "No emergency overrides remaining until {{.ResetsAt}}",
		CodeOverrideForbidden: "Emergency override is not allowed for this profile",

		// Sync/ledger errors
		CodeSyncConflict:  "Another device changed this session; retrying",
		CodeLedgerChanged: "The shared session record changed underneath this device",

		// Storage errors
		CodeNotFound: "The requested resource was not found",
	},
}
