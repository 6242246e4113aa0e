package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parkwise/parkwise/internal/app"
	"github.com/parkwise/parkwise/internal/fees"
	_ "github.com/parkwise/parkwise/testing"
)

func TestFeeOptionsFollowConfig(t *testing.T) {
	opts := feeOptions(&app.Config{PricingResolveAt: app.ResolveAtExit, PricingMissingRule: app.MissingRuleFree}, nil, nil)
	require.Equal(t, fees.ResolveAtExit, opts.ReferenceTime)
	require.Equal(t, fees.ChargeNothing, opts.MissingRule)

	opts = feeOptions(&app.Config{PricingResolveAt: app.ResolveAtEntry, PricingMissingRule: app.MissingRuleReject}, nil, nil)
	require.Equal(t, fees.ResolveAtEntry, opts.ReferenceTime)
	require.Equal(t, fees.RejectMissing, opts.MissingRule)
}

func TestRunCommandRejectsBadUsage(t *testing.T) {
	cfg := &app.Config{RedisAddr: "127.0.0.1:0"}
	require.Equal(t, 2, runCommand(context.Background(), cfg, []string{"bogus"}))
	require.Equal(t, 2, runCommand(context.Background(), cfg, []string{"recalc"}))
	require.Equal(t, 2, runCommand(context.Background(), cfg, []string{"recalc", "abc"}))
}

func TestTestModeFlagSet(t *testing.T) {
	require.True(t, app.InTestMode())
}
