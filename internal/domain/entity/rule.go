package entity

import (
	"strconv"
	"time"

	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// RuleTarget selects which collaborating entity a rule status applies to.
type RuleTarget string

const (
	RuleTargetOrder        RuleTarget = "order"
	RuleTargetSubscription RuleTarget = "subscription"
)

// RuleRecipient selects which email template a rule refers to.
type RuleRecipient string

const (
	RuleRecipientCustomer RuleRecipient = "customer"
	RuleRecipientAdmin    RuleRecipient = "admin"
)

// Raw data keys used when a rule is snapshotted alongside a retry record.
const (
	rawKeyRetryAfterInterval          = "retry_after_interval"
	rawKeyEmailTemplateCustomer       = "email_template_customer"
	rawKeyEmailTemplateAdmin          = "email_template_admin"
	rawKeyStatusToApplyToOrder        = "status_to_apply_to_order"
	rawKeyStatusToApplyToSubscription = "status_to_apply_to_subscription"
)

// RetryRule describes one stage of a retry schedule. It is constructed once
// and never mutated; records store a snapshot of its raw data so historical
// retries replay with the rule that was active when they were created.
type RetryRule struct {
	retryAfter                  time.Duration
	emailTemplateCustomer       string
	emailTemplateAdmin          string
	statusToApplyToOrder        valueobject.OrderStatus
	statusToApplyToSubscription valueobject.SubscriptionStatus
}

// NewRetryRule creates an immutable retry rule.
func NewRetryRule(
	retryAfter time.Duration,
	emailTemplateCustomer string,
	emailTemplateAdmin string,
	orderStatus valueobject.OrderStatus,
	subscriptionStatus valueobject.SubscriptionStatus,
) RetryRule {
	return RetryRule{
		retryAfter:                  retryAfter,
		emailTemplateCustomer:       emailTemplateCustomer,
		emailTemplateAdmin:          emailTemplateAdmin,
		statusToApplyToOrder:        orderStatus,
		statusToApplyToSubscription: subscriptionStatus,
	}
}

// RetryInterval returns the delay before the retry generated by this rule fires.
func (r RetryRule) RetryInterval() time.Duration {
	return r.retryAfter
}

// StatusToApplyToOrder returns the order status to force when the rule is
// applied; the none sentinel means "leave unchanged".
func (r RetryRule) StatusToApplyToOrder() valueobject.OrderStatus {
	return r.statusToApplyToOrder
}

// StatusToApplyToSubscription returns the subscription status to force when
// the rule is applied; the none sentinel means "leave unchanged".
func (r RetryRule) StatusToApplyToSubscription() valueobject.SubscriptionStatus {
	return r.statusToApplyToSubscription
}

// HasEmailTemplate returns true if the rule fires a notification for the recipient.
func (r RetryRule) HasEmailTemplate(recipient RuleRecipient) bool {
	return r.EmailTemplate(recipient) != ""
}

// EmailTemplate returns the template identifier for the recipient, or empty.
func (r RetryRule) EmailTemplate(recipient RuleRecipient) string {
	switch recipient {
	case RuleRecipientCustomer:
		return r.emailTemplateCustomer
	case RuleRecipientAdmin:
		return r.emailTemplateAdmin
	}
	return ""
}

// Raw returns the storage-agnostic key/value snapshot of the rule.
func (r RetryRule) Raw() map[string]string {
	return map[string]string{
		rawKeyRetryAfterInterval:          strconv.FormatInt(int64(r.retryAfter/time.Second), 10),
		rawKeyEmailTemplateCustomer:       r.emailTemplateCustomer,
		rawKeyEmailTemplateAdmin:          r.emailTemplateAdmin,
		rawKeyStatusToApplyToOrder:        r.statusToApplyToOrder.String(),
		rawKeyStatusToApplyToSubscription: r.statusToApplyToSubscription.String(),
	}
}

// RuleFromRaw rebuilds a rule from a stored snapshot. Unknown keys are
// ignored; missing keys fall back to zero values so records written by older
// schedules still load.
func RuleFromRaw(raw map[string]string) RetryRule {
	seconds, _ := strconv.ParseInt(raw[rawKeyRetryAfterInterval], 10, 64)
	if seconds < 0 {
		seconds = 0
	}
	return RetryRule{
		retryAfter:                  time.Duration(seconds) * time.Second,
		emailTemplateCustomer:       raw[rawKeyEmailTemplateCustomer],
		emailTemplateAdmin:          raw[rawKeyEmailTemplateAdmin],
		statusToApplyToOrder:        valueobject.OrderStatus(raw[rawKeyStatusToApplyToOrder]),
		statusToApplyToSubscription: valueobject.SubscriptionStatus(raw[rawKeyStatusToApplyToSubscription]),
	}
}

// DefaultRetrySchedule returns the built-in five stage schedule: 12h, 12h,
// 24h, 48h, 72h, with customer-facing emails escalating from the second
// stage onwards and the order/subscription held pending/on-hold throughout.
func DefaultRetrySchedule() []RetryRule {
	return []RetryRule{
		NewRetryRule(12*time.Hour, "", "payment_retry_admin",
			valueobject.OrderStatusPending, valueobject.SubscriptionStatusOnHold),
		NewRetryRule(12*time.Hour, "customer_payment_retry", "payment_retry_admin",
			valueobject.OrderStatusPending, valueobject.SubscriptionStatusOnHold),
		NewRetryRule(24*time.Hour, "", "payment_retry_admin",
			valueobject.OrderStatusPending, valueobject.SubscriptionStatusOnHold),
		NewRetryRule(48*time.Hour, "customer_payment_retry", "payment_retry_admin",
			valueobject.OrderStatusPending, valueobject.SubscriptionStatusOnHold),
		NewRetryRule(72*time.Hour, "customer_payment_retry_final", "payment_retry_admin",
			valueobject.OrderStatusPending, valueobject.SubscriptionStatusOnHold),
	}
}
