package models

// Command kinds the decision model may produce. The set is closed: anything
// outside it is rejected as invalid input, never executed.
const (
	CommandListServices      = "list_services"
	CommandListProviders     = "list_providers"
	CommandProviderSchedule  = "provider_schedule"
	CommandCheckAvailability = "check_availability"
	CommandCreateBooking     = "create_booking"
	CommandUpdateBooking     = "update_booking"
	CommandCancelBooking     = "cancel_booking"
	CommandGetAppointments   = "get_appointments"
	CommandReply             = "reply"
)

// Command is the validated output of the decision model. Exactly the fields
// for its Kind are meaningful; the executor matches exhaustively on Kind.
type Command struct {
	Kind string `json:"action"`

	// reply
	Text string `json:"text,omitempty"`

	// provider_schedule, check_availability, create/update booking
	ProviderName string `json:"provider_name,omitempty"`

	// check_availability, create_booking, update_booking
	Date string `json:"date,omitempty"` // YYYY-MM-DD
	Time string `json:"time,omitempty"` // HH:MM

	// create_booking, update_booking
	Services   []string `json:"services,omitempty"`
	ClientName string   `json:"client_name,omitempty"`
	Notes      string   `json:"notes,omitempty"`

	// cancel_booking
	Reason string `json:"reason,omitempty"`
}

// KnownCommand reports whether kind belongs to the closed command set.
func KnownCommand(kind string) bool {
	switch kind {
	case CommandListServices, CommandListProviders, CommandProviderSchedule,
		CommandCheckAvailability, CommandCreateBooking, CommandUpdateBooking,
		CommandCancelBooking, CommandGetAppointments, CommandReply:
		return true
	}
	return false
}
