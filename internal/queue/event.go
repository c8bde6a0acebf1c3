// Package queue publishes rental outcome events to RabbitMQ.
package queue

import "time"

// RentalOutcomeQueue is the durable queue outcome events are routed to.
const RentalOutcomeQueue = "rental.outcome"

// RentalOutcomeEvent is emitted once a payment outcome has been committed
// to a rental and its vehicle.
type RentalOutcomeEvent struct {
	RentalID   string    `json:"rental_id"`
	VehicleID  string    `json:"vehicle_id"`
	RenterID   string    `json:"renter_id"`
	Outcome    string    `json:"outcome"`
	Reference  string    `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
