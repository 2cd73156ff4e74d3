package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateColumns(t *testing.T) {
	cases := []struct {
		state     State
		status    Status
		approval  ApprovalStatus
		confirmed bool
	}{
		{CashState{}, StatusSuccess, ApprovalApproved, true},
		{WaiverState{}, StatusSuccess, ApprovalApproved, true},
		{OnlineState{Phase: OnlinePending}, StatusPending, ApprovalPending, false},
		{OnlineState{Phase: OnlineSucceeded}, StatusSuccess, ApprovalApproved, true},
		{OnlineState{Phase: OnlineFailed}, StatusFailed, ApprovalRejected, false},
		{TransferState{Phase: TransferPendingApproval}, StatusPending, ApprovalPending, false},
		{TransferState{Phase: TransferApproved}, StatusSuccess, ApprovalApproved, true},
		{TransferState{Phase: TransferRejected}, StatusFailed, ApprovalRejected, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.state.Status(), "%#v", tc.state)
		assert.Equal(t, tc.approval, tc.state.Approval(), "%#v", tc.state)
		assert.Equal(t, tc.confirmed, tc.state.Confirmed(), "%#v", tc.state)

		decoded, err := DecodeState(tc.state.Method(), tc.status, tc.approval)
		require.NoError(t, err)
		assert.Equal(t, tc.state, decoded)
	}
}

func TestDecodeRejectsIllegalPairs(t *testing.T) {
	illegal := []struct {
		method   Method
		status   Status
		approval ApprovalStatus
	}{
		{MethodCash, StatusPending, ApprovalPending},
		{MethodWaiver, StatusFailed, ApprovalRejected},
		{MethodTransfer, StatusSuccess, ApprovalPending},
		{MethodOnline, StatusReversed, ApprovalApproved},
		{Method("cheque"), StatusSuccess, ApprovalApproved},
	}
	for _, tc := range illegal {
		_, err := DecodeState(tc.method, tc.status, tc.approval)
		assert.ErrorIs(t, err, ErrCorruptState, "%v", tc)
	}
}

func TestTransitions(t *testing.T) {
	online := OnlineState{Phase: OnlinePending}
	confirmed, err := online.Confirm()
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed())
	_, err = confirmed.Confirm()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = confirmed.Fail()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	failed, err := online.Fail()
	require.NoError(t, err)
	_, err = failed.Confirm()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	transfer := TransferState{Phase: TransferPendingApproval}
	approved, err := transfer.Approve()
	require.NoError(t, err)
	_, err = approved.Reject()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rejected, err := transfer.Reject()
	require.NoError(t, err)
	_, err = rejected.Approve()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyWritesColumns(t *testing.T) {
	var p Payment
	p.Apply(TransferState{Phase: TransferPendingApproval})
	assert.Equal(t, MethodTransfer, p.PaymentMethod)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, ApprovalPending, p.ApprovalStatus)
	assert.False(t, p.Counts())

	p.Apply(TransferState{Phase: TransferApproved})
	assert.True(t, p.Counts())
	p.IsVoided = true
	assert.False(t, p.Counts())
}
