package access

// Reason is a stable identifier explaining an access verdict. Reasons are
// persisted in decision logs and referenced by UI translation keys, so the
// string values never change.
type Reason string

const (
	ReasonGranted            Reason = "GRANTED"
	ReasonNotAMember         Reason = "NOT_A_MEMBER"
	ReasonEntityDisabled     Reason = "ENTITY_DISABLED"
	ReasonRoleInsufficient   Reason = "ROLE_INSUFFICIENT"
	ReasonPlanFeatureMissing Reason = "PLAN_FEATURE_MISSING"
	ReasonQuotaExceeded      Reason = "QUOTA_EXCEEDED"
	ReasonUnknownPermission  Reason = "UNKNOWN_PERMISSION"
)

// Decision is the structured outcome of an authorization check. Denial is a
// normal result, never an error: the reason and metadata let the caller
// render an actionable message ("upgrade to Pro" vs "ask an admin").
type Decision struct {
	Allowed bool           `json:"allowed"`
	Reason  Reason         `json:"reason"`
	Message string         `json:"message,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func allow(meta map[string]any) Decision {
	return Decision{Allowed: true, Reason: ReasonGranted, Meta: meta}
}

func deny(reason Reason, message string, meta map[string]any) Decision {
	return Decision{Allowed: false, Reason: reason, Message: message, Meta: meta}
}
