package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

func TestRuleRawRoundtrip(t *testing.T) {
	rule := entity.NewRetryRule(
		48*time.Hour,
		"customer_payment_retry",
		"payment_retry_admin",
		valueobject.OrderStatusPending,
		valueobject.SubscriptionStatusOnHold,
	)

	rebuilt := entity.RuleFromRaw(rule.Raw())

	assert.Equal(t, 48*time.Hour, rebuilt.RetryInterval())
	assert.Equal(t, "customer_payment_retry", rebuilt.EmailTemplate(entity.RuleRecipientCustomer))
	assert.Equal(t, "payment_retry_admin", rebuilt.EmailTemplate(entity.RuleRecipientAdmin))
	assert.Equal(t, valueobject.OrderStatusPending, rebuilt.StatusToApplyToOrder())
	assert.Equal(t, valueobject.SubscriptionStatusOnHold, rebuilt.StatusToApplyToSubscription())
}

func TestRuleFromRawTolerance(t *testing.T) {
	t.Run("missing keys fall back to zero values", func(t *testing.T) {
		rule := entity.RuleFromRaw(map[string]string{})
		assert.Equal(t, time.Duration(0), rule.RetryInterval())
		assert.False(t, rule.HasEmailTemplate(entity.RuleRecipientCustomer))
		assert.False(t, rule.HasEmailTemplate(entity.RuleRecipientAdmin))
		assert.True(t, rule.StatusToApplyToOrder().IsNone())
		assert.True(t, rule.StatusToApplyToSubscription().IsNone())
	})

	t.Run("negative interval clamps to zero", func(t *testing.T) {
		rule := entity.RuleFromRaw(map[string]string{"retry_after_interval": "-60"})
		assert.Equal(t, time.Duration(0), rule.RetryInterval())
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		rule := entity.RuleFromRaw(map[string]string{
			"retry_after_interval": "3600",
			"some_future_field":    "whatever",
		})
		assert.Equal(t, time.Hour, rule.RetryInterval())
	})
}

func TestDefaultRetrySchedule(t *testing.T) {
	schedule := entity.DefaultRetrySchedule()
	require.Len(t, schedule, 5)

	intervals := []time.Duration{12 * time.Hour, 12 * time.Hour, 24 * time.Hour, 48 * time.Hour, 72 * time.Hour}
	customerTemplates := []string{"", "customer_payment_retry", "", "customer_payment_retry", "customer_payment_retry_final"}

	for i, rule := range schedule {
		assert.Equal(t, intervals[i], rule.RetryInterval(), "stage %d interval", i)
		assert.Equal(t, customerTemplates[i], rule.EmailTemplate(entity.RuleRecipientCustomer), "stage %d customer template", i)
		assert.Equal(t, "payment_retry_admin", rule.EmailTemplate(entity.RuleRecipientAdmin), "stage %d admin template", i)
		assert.Equal(t, valueobject.OrderStatusPending, rule.StatusToApplyToOrder(), "stage %d order status", i)
		assert.Equal(t, valueobject.SubscriptionStatusOnHold, rule.StatusToApplyToSubscription(), "stage %d subscription status", i)
	}
}
