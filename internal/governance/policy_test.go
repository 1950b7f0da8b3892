package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Allow by default
	res, err := engine.Evaluate(ctx, Request{Capability: "file_read"})
	require.NoError(t, err)
	assert.Equal(t, EffectAllow, res.Effect)
	assert.True(t, res.Allowed())

	engine.DenyCapability("vcs_pull")
	res, err = engine.Evaluate(ctx, Request{Capability: "vcs_pull"})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, res.Effect)
	assert.Contains(t, res.Reason, "vcs_pull")
}

func TestDefaultPolicyEngine_DenyArguments(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	require.NoError(t, engine.DenyArguments(`rm\s+-rf`))

	res, err := engine.Evaluate(context.Background(), Request{
		Capability: "build_run",
		Arguments:  `{"command":"rm -rf /"}`,
	})
	require.NoError(t, err)
	assert.False(t, res.Allowed())

	assert.Error(t, engine.DenyArguments(`(unclosed`))
}

func TestDefaultPolicyEngine_DenyWhen(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	require.NoError(t, engine.DenyWhen(`capability == "vcs_commit" && task.message == "wip"`))

	tests := []struct {
		name    string
		req     Request
		allowed bool
	}{
		{
			name:    "matching rule denies",
			req:     Request{Capability: "vcs_commit", Task: map[string]any{"message": "wip"}},
			allowed: false,
		},
		{
			name:    "other message allowed",
			req:     Request{Capability: "vcs_commit", Task: map[string]any{"message": "fix parser"}},
			allowed: true,
		},
		{
			name:    "other capability allowed",
			req:     Request{Capability: "file_write", Task: map[string]any{"message": "wip"}},
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Evaluate(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, res.Allowed(), res.Reason)
		})
	}
}

func TestDefaultPolicyEngine_DenyWhenInvalid(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	assert.Error(t, engine.DenyWhen(`capability ==`))
	assert.Error(t, engine.DenyWhen(`"not a bool"`))
}
