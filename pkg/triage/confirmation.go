package triage

import (
	"time"
)

// Approvals carries one batch of human decisions for the confirmation
// gate. Any break identifier not present in Decisions is treated as
// not approved and remains pending.
type Approvals struct {
	// By names the approver recorded on each decided classification.
	By string `json:"accepted_by"`

	// Decisions maps break IDs to approve (true) or reject (false).
	Decisions map[string]bool `json:"decisions"`
}

// ApplyConfirmations returns a new Result with the batch applied. Only
// auto candidates can be approved; approving a manual candidate is
// ignored. The original Result is left untouched so an aborted gate
// can be retried against unchanged state.
func ApplyConfirmations(r *Result, approvals Approvals, now time.Time) *Result {
	auto := make(map[string]bool, len(r.AutoCandidates))
	for _, id := range r.AutoCandidates {
		auto[id] = true
	}

	out := &Result{
		Classifications:  make([]Classification, len(r.Classifications)),
		AutoCandidates:   append([]string{}, r.AutoCandidates...),
		ManualCandidates: append([]string{}, r.ManualCandidates...),
	}
	copy(out.Classifications, r.Classifications)

	for i := range out.Classifications {
		c := &out.Classifications[i]
		decision, decided := approvals.Decisions[c.BreakID]
		if !decided || !auto[c.BreakID] {
			continue
		}
		ts := now
		c.AcceptedAt = &ts
		c.AcceptedBy = approvals.By
		c.ApprovedForAutoCorrection = decision
	}

	// The batch stays pending while any auto candidate lacks a ruling.
	out.AwaitingUserConfirmation = false
	for i := range out.Classifications {
		c := &out.Classifications[i]
		if auto[c.BreakID] && !c.Decided() {
			out.AwaitingUserConfirmation = true
			break
		}
	}

	return out
}

// RejectAll returns a new Result with every pending auto candidate
// explicitly rejected. Used when a run is abandoned at the gate.
func RejectAll(r *Result, by string, now time.Time) *Result {
	decisions := make(map[string]bool, len(r.AutoCandidates))
	for _, id := range r.AutoCandidates {
		decisions[id] = false
	}
	return ApplyConfirmations(r, Approvals{By: by, Decisions: decisions}, now)
}
