package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/xerrors"
)

func TestPolicyFor_Defaults(t *testing.T) {
	p := DefaultConfig().PolicyFor(KindCRMStageUpdate)
	assert.Equal(t, DefaultPolicy(), p)

	bs := p.BreakerSettings()
	assert.Equal(t, 50.0, bs.FailureRateThreshold)
	assert.Equal(t, 10, bs.WindowSize)
	assert.Equal(t, 60*time.Second, bs.OpenWait)

	rp := p.RetryPolicy()
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}, rp.Schedule())
}

func TestPolicyFor_BuiltinOverrides(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		kind     OperationKind
		timeout  time.Duration
		wait     time.Duration
		base     time.Duration
		attempts int
	}{
		{KindDataWarehouse, 45 * time.Second, 120 * time.Second, 10 * time.Second, 3},
		{KindTasyERP, 45 * time.Second, 120 * time.Second, 10 * time.Second, 3},
		{KindOCRProcessing, 60 * time.Second, 60 * time.Second, 10 * time.Second, 3},
		{KindS3DocumentStorage, 60 * time.Second, 60 * time.Second, 5 * time.Second, 3},
		{KindLeadEnrichment, 120 * time.Second, 60 * time.Second, 5 * time.Minute, 3},
		{KindProposalGeneration, 30 * time.Second, 60 * time.Second, 5 * time.Second, 2},
		{KindCRMReporting, 30 * time.Second, 60 * time.Second, 5 * time.Second, 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p := cfg.PolicyFor(tt.kind)
			assert.Equal(t, tt.timeout, p.PerAttemptTimeout)
			assert.Equal(t, tt.wait, p.OpenStateWait)
			assert.Equal(t, tt.base, p.RetryBaseDelay)
			assert.Equal(t, tt.attempts, p.MaxRetryAttempts)
			require.NoError(t, p.Validate())
		})
	}

	lead := cfg.PolicyFor(KindLeadEnrichment).RetryPolicy()
	assert.Equal(t, []time.Duration{5 * time.Minute, 5 * time.Minute, 5 * time.Minute}, lead.Schedule())
}

func TestPolicyFor_ConfigOverrides(t *testing.T) {
	cfg := Config{
		Default: Policy{PerAttemptTimeout: 20 * time.Second, MaxRetryAttempts: 4},
		Kinds: map[string]Policy{
			"DATA-WAREHOUSE": {PerAttemptTimeout: 90 * time.Second},
		},
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20*time.Second, cfg.PolicyFor(KindDocuSign).PerAttemptTimeout)
	assert.Equal(t, 4, cfg.PolicyFor(KindDocuSign).MaxRetryAttempts)

	dw := cfg.PolicyFor(KindDataWarehouse)
	assert.Equal(t, 90*time.Second, dw.PerAttemptTimeout)
	assert.Equal(t, 120*time.Second, dw.OpenStateWait)
	assert.Equal(t, 4, dw.MaxRetryAttempts)

	// 未知类型使用默认策略
	assert.False(t, OperationKind("fax-gateway").Known())
	assert.Equal(t, 20*time.Second, cfg.PolicyFor("fax-gateway").PerAttemptTimeout)
}

func TestConfig_Validate(t *testing.T) {
	for name, cfg := range map[string]Config{
		"driver":    {Driver: "resilience4j"},
		"threshold": {Default: Policy{FailureRateThreshold: 101}},
		"window":    {Kinds: map[string]Policy{"docusign": {SlidingWindowSize: -1}}},
		"timeout":   {Kinds: map[string]Policy{"docusign": {PerAttemptTimeout: -time.Second}}},
		"empty":     {Kinds: map[string]Policy{" ": {}}},
	} {
		t.Run(name, func(t *testing.T) {
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, xerrors.IsValidation(err))
		})
	}
}

func TestCatalogue(t *testing.T) {
	kinds := Catalogue()
	assert.Len(t, kinds, 36)
	assert.Contains(t, kinds, KindCRMStageUpdate)
	assert.Contains(t, kinds, KindROICalculation)
	for i := 1; i < len(kinds); i++ {
		assert.Less(t, kinds[i-1], kinds[i])
	}
	assert.True(t, OperationKind(" CRM-Stage-Update").Known())
}
