package domain

import "errors"

var (
	// ErrCorruptState means a stored (method, status, approval_status)
	// triple that no state variant can produce.
	ErrCorruptState      = errors.New("corrupt_payment_state")
	ErrInvalidTransition = errors.New("invalid_payment_transition")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusReversed Status = "reversed"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending_approval"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// State is the lifecycle of one payment. Each method family has its own
// variant and only a variant can produce the persisted status pair.
type State interface {
	Method() Method
	Status() Status
	Approval() ApprovalStatus
	// Confirmed reports money that counts toward the invoice.
	Confirmed() bool
}

// CashState is collected at the bursary and confirmed on entry.
type CashState struct{}

func (CashState) Method() Method           { return MethodCash }
func (CashState) Status() Status           { return StatusSuccess }
func (CashState) Approval() ApprovalStatus { return ApprovalApproved }
func (CashState) Confirmed() bool          { return true }

// WaiverState is an admin credit and confirmed on entry.
type WaiverState struct{}

func (WaiverState) Method() Method           { return MethodWaiver }
func (WaiverState) Status() Status           { return StatusSuccess }
func (WaiverState) Approval() ApprovalStatus { return ApprovalApproved }
func (WaiverState) Confirmed() bool          { return true }

type OnlinePhase string

const (
	OnlinePending   OnlinePhase = "pending"
	OnlineSucceeded OnlinePhase = "succeeded"
	OnlineFailed    OnlinePhase = "failed"
)

// OnlineState is a gateway checkout. Approval is implied by the gateway and
// only recorded once the charge succeeds.
type OnlineState struct {
	Phase OnlinePhase
}

func (OnlineState) Method() Method { return MethodOnline }

func (s OnlineState) Status() Status {
	switch s.Phase {
	case OnlineSucceeded:
		return StatusSuccess
	case OnlineFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

func (s OnlineState) Approval() ApprovalStatus {
	switch s.Phase {
	case OnlineSucceeded:
		return ApprovalApproved
	case OnlineFailed:
		return ApprovalRejected
	default:
		return ApprovalPending
	}
}

func (s OnlineState) Confirmed() bool { return s.Phase == OnlineSucceeded }

func (s OnlineState) Confirm() (OnlineState, error) {
	if s.Phase != OnlinePending {
		return s, ErrInvalidTransition
	}
	return OnlineState{Phase: OnlineSucceeded}, nil
}

func (s OnlineState) Fail() (OnlineState, error) {
	if s.Phase != OnlinePending {
		return s, ErrInvalidTransition
	}
	return OnlineState{Phase: OnlineFailed}, nil
}

type TransferPhase string

const (
	TransferPendingApproval TransferPhase = "pending_approval"
	TransferApproved        TransferPhase = "approved"
	TransferRejected        TransferPhase = "rejected"
)

// TransferState is a bank transfer waiting on a bursar's review.
type TransferState struct {
	Phase TransferPhase
}

func (TransferState) Method() Method { return MethodTransfer }

func (s TransferState) Status() Status {
	switch s.Phase {
	case TransferApproved:
		return StatusSuccess
	case TransferRejected:
		return StatusFailed
	default:
		return StatusPending
	}
}

func (s TransferState) Approval() ApprovalStatus {
	switch s.Phase {
	case TransferApproved:
		return ApprovalApproved
	case TransferRejected:
		return ApprovalRejected
	default:
		return ApprovalPending
	}
}

func (s TransferState) Confirmed() bool { return s.Phase == TransferApproved }

func (s TransferState) Approve() (TransferState, error) {
	if s.Phase != TransferPendingApproval {
		return s, ErrInvalidTransition
	}
	return TransferState{Phase: TransferApproved}, nil
}

func (s TransferState) Reject() (TransferState, error) {
	if s.Phase != TransferPendingApproval {
		return s, ErrInvalidTransition
	}
	return TransferState{Phase: TransferRejected}, nil
}

// DecodeState rebuilds the variant from persisted columns.
func DecodeState(method Method, status Status, approval ApprovalStatus) (State, error) {
	candidates := map[Method][]State{
		MethodCash:     {CashState{}},
		MethodWaiver:   {WaiverState{}},
		MethodOnline:   {OnlineState{Phase: OnlinePending}, OnlineState{Phase: OnlineSucceeded}, OnlineState{Phase: OnlineFailed}},
		MethodTransfer: {TransferState{Phase: TransferPendingApproval}, TransferState{Phase: TransferApproved}, TransferState{Phase: TransferRejected}},
	}
	for _, candidate := range candidates[method] {
		if candidate.Status() == status && candidate.Approval() == approval {
			return candidate, nil
		}
	}
	return nil, ErrCorruptState
}
