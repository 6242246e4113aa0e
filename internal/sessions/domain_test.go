package sessions

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/parkwise/parkwise/internal/shared"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from  Status
		event Event
		want  Status
		err   error
	}{
		{StatusInParking, EventExit, StatusExited, nil},
		{StatusInParking, EventLostTicket, StatusLostTicket, nil},
		{StatusInParking, EventCancel, StatusCancelled, nil},
		{StatusExited, EventExit, "", ErrInvalidTransition},
		{StatusExited, EventCancel, "", ErrInvalidTransition},
		{StatusLostTicket, EventExit, "", ErrInvalidTransition},
		{StatusCancelled, EventLostTicket, "", ErrInvalidTransition},
		{StatusInParking, Event("REOPEN"), "", ErrUnknownEvent},
	}
	for _, tc := range cases {
		got, err := Transition(Session{Status: tc.from}, tc.event)
		if tc.err != nil {
			require.ErrorIs(t, err, tc.err, "%s on %s", tc.event, tc.from)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
		require.True(t, got.IsTerminal())
	}
	_, err := Transition(Session{Status: StatusExited}, EventExit)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCloseInputValidate(t *testing.T) {
	fee := decimal.NewFromInt(5)
	neg := decimal.NewFromInt(-1)

	require.NoError(t, CloseInput{}.Validate())
	require.NoError(t, CloseInput{ManualFee: &fee}.Validate())
	require.NoError(t, CloseInput{ManualFee: &fee, DiscountReason: ReasonPromo}.Validate())
	require.NoError(t, CloseInput{DiscountReason: ReasonStaffFree}.Validate())

	require.ErrorIs(t, CloseInput{ManualFee: &neg}.Validate(), ErrNegativeManualFee)
	fine := decimal.RequireFromString("1.005")
	require.ErrorIs(t, CloseInput{ManualFee: &fine}.Validate(), ErrManualFeeScale)
	require.ErrorIs(t, CloseInput{DiscountReason: "VIP"}.Validate(), ErrUnknownReason)
	require.ErrorIs(t, CloseInput{ManualFee: &fee, DiscountReason: ReasonSubscription}.Validate(), ErrReservedReason)
	require.ErrorIs(t, CloseInput{DiscountReason: ReasonPromo}.Validate(), ErrReasonNeedsFee)
	require.ErrorIs(t, CloseInput{DiscountReason: ReasonPromo}.Validate(), shared.ErrValidation)
}

func TestStatusIsValid(t *testing.T) {
	require.True(t, StatusInParking.IsValid())
	require.False(t, StatusInParking.IsTerminal())
	require.False(t, Status("PARKED").IsValid())
	require.False(t, Status("PARKED").IsTerminal())
}
