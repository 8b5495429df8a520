package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "gatekeeper/pkg/domain"
)

func TestCandidates(t *testing.T) {
	t.Run("override bypasses all tiers", func(t *testing.T) {
		override := id.PolicyReference("custom.exception.q3_audit")
		got := Candidates("payment-gateway", "payments", "production", override)
		assert.Equal(t, []id.PolicyReference{override}, got)
	})

	t.Run("full hierarchy is app then vertical then global", func(t *testing.T) {
		got := Candidates("payment-gateway", "payments", "production", "")
		assert.Equal(t, []id.PolicyReference{
			"appsec.apps.payment_gateway.production",
			"appsec.verticals.payments.production",
			"appsec.global.production",
		}, got)
	})

	t.Run("no vertical skips the middle tier", func(t *testing.T) {
		got := Candidates("payment-gateway", "", "production", "")
		assert.Equal(t, []id.PolicyReference{
			"appsec.apps.payment_gateway.production",
			"appsec.global.production",
		}, got)
	})

	t.Run("global default always terminates the probe list", func(t *testing.T) {
		for _, vertical := range []string{"", "payments"} {
			got := Candidates("api", vertical, "staging", "")
			require.NotEmpty(t, got)
			assert.Equal(t, id.PolicyReference("appsec.global.staging"), got[len(got)-1])
		}
	})

	t.Run("hyphenated names become package segments", func(t *testing.T) {
		got := Candidates("My-App", "Fin-Tech", "Pre-Prod", "")
		assert.Equal(t, []id.PolicyReference{
			"appsec.apps.my_app.pre_prod",
			"appsec.verticals.fin_tech.pre_prod",
			"appsec.global.pre_prod",
		}, got)
	})
}

func TestGlobalDefault(t *testing.T) {
	assert.Equal(t, id.PolicyReference("appsec.global.production"), GlobalDefault("production"))
}
