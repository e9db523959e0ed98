package models

import "time"

// Audit actions written for every intervention and re-entry transition.
const (
	AuditActionLevelACreate        = "LEVEL_A_CREATE"
	AuditActionLevelBCreate        = "LEVEL_B_CREATE"
	AuditActionLevelBStep          = "LEVEL_B_STEP"
	AuditActionLevelBMonitoring    = "LEVEL_B_MONITORING"
	AuditActionLevelBDailyRate     = "LEVEL_B_DAILY_RATE"
	AuditActionLevelBClose         = "LEVEL_B_CLOSE"
	AuditActionLevelBCancel        = "LEVEL_B_CANCEL"
	AuditActionLevelCCreate        = "LEVEL_C_CREATE"
	AuditActionLevelCContextPacket = "LEVEL_C_CONTEXT_PACKET"
	AuditActionLevelCAdminResponse = "LEVEL_C_ADMIN_RESPONSE"
	AuditActionLevelCSupportPlan   = "LEVEL_C_SUPPORT_PLAN"
	AuditActionLevelCChecklist     = "LEVEL_C_CHECKLIST"
	AuditActionLevelCMonitoring    = "LEVEL_C_MONITORING"
	AuditActionLevelCCheckIn       = "LEVEL_C_CHECK_IN"
	AuditActionLevelCClose         = "LEVEL_C_CLOSE"
	AuditActionReentryCreate       = "REENTRY_CREATE"
	AuditActionReentryChecklist    = "REENTRY_CHECKLIST"
	AuditActionReentryActivate     = "REENTRY_ACTIVATE"
	AuditActionReentryDailyLog     = "REENTRY_DAILY_LOG"
	AuditActionReentryComplete     = "REENTRY_COMPLETE"

	AuditResourceLevelA  = "level_a_interventions"
	AuditResourceLevelB  = "level_b_interventions"
	AuditResourceLevelC  = "level_c_cases"
	AuditResourceReentry = "reentry_protocols"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
