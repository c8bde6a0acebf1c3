package domain

import "time"

// Outcome is the payment result reported by the gateway.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// OutcomeOf maps a gateway success flag to an Outcome.
func OutcomeOf(succeeded bool) Outcome {
	if succeeded {
		return OutcomeSucceeded
	}
	return OutcomeFailed
}

// ApplyOutcome transitions a pending rental and its vehicle together.
// Callers must hold both rows for the duration of the write.
func ApplyOutcome(r *Rental, v *Vehicle, outcome Outcome, reference string, at time.Time) {
	switch outcome {
	case OutcomeSucceeded:
		r.Confirm(reference, at)
		v.MarkRented(r.ID, r.RenterID, at)
	default:
		r.Cancel(at)
		v.Release(at)
	}
}

// Problem describes one way a rental and its vehicle disagree.
type Problem string

const (
	ProblemInvalidRentalPair  Problem = "rental status and payment status do not pair"
	ProblemInvalidVehicleFlag Problem = "vehicle flags contradict each other"
	ProblemVehicleNotRented   Problem = "rental confirmed but vehicle not approved for it"
	ProblemVehicleNotReleased Problem = "rental cancelled but vehicle still held for it"
	ProblemHoldMissing        Problem = "rental pending but vehicle not held for it"
	ProblemVehicleMissing     Problem = "vehicle record does not exist"
)

// CheckConsistency returns every problem found between a rental and its vehicle.
// An empty result means the pair is consistent.
func CheckConsistency(r *Rental, v *Vehicle) []Problem {
	var problems []Problem

	if !r.ValidPair() {
		problems = append(problems, ProblemInvalidRentalPair)
	}
	if !v.ValidFlags() {
		problems = append(problems, ProblemInvalidVehicleFlag)
	}

	switch r.Status {
	case RentalStatusConfirmed:
		if !v.RentedFor(r) {
			problems = append(problems, ProblemVehicleNotRented)
		}
	case RentalStatusCancelled:
		if v.RentalID == r.ID {
			problems = append(problems, ProblemVehicleNotReleased)
		}
	case RentalStatusPending:
		if v.RentalID != r.ID || v.Status != VehicleStatusPending {
			problems = append(problems, ProblemHoldMissing)
		}
	}

	return problems
}

// ResyncVehicle re-derives the vehicle's rentability from the rental, which is
// the source of truth. ok is false when the vehicle is bound to a different
// rental that this one cannot displace.
func ResyncVehicle(r *Rental, v *Vehicle, at time.Time) (changed, ok bool) {
	owned := v.RentalID == r.ID
	free := v.RentalID == ""

	switch r.Status {
	case RentalStatusConfirmed:
		if !owned && !free {
			return false, false
		}
		if v.RentedFor(r) && v.ValidFlags() && v.HeldUntil.IsZero() {
			return false, true
		}
		v.MarkRented(r.ID, r.RenterID, at)
		return true, true

	case RentalStatusCancelled:
		if owned || (free && !v.ValidFlags()) {
			v.Release(at)
			return true, true
		}
		return false, true

	case RentalStatusPending:
		if !owned && !free {
			return false, false
		}
		if owned && v.Status == VehicleStatusPending && v.ValidFlags() && v.HeldUntil.Equal(r.ReservedUntil) {
			return false, true
		}
		if free && v.IsRented {
			return false, false
		}
		v.Release(at)
		v.Hold(r.ID, r.ReservedUntil, at)
		return true, true
	}

	return false, false
}
