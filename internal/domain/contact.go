package domain

// Contact is the user directory's view of a person.
type Contact struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// UnknownContact is the placeholder used when the directory has no record
// for userID or cannot be reached. A booking is never refused because a
// profile lookup failed.
func UnknownContact(userID string) Contact {
	return Contact{
		ID:    userID,
		Name:  "Unknown user",
		Email: "no email",
		Phone: "no phone",
	}
}

// NotificationKind groups notifications for the client's inbox.
type NotificationKind string

const (
	KindPayment      NotificationKind = "payment"
	KindBooking      NotificationKind = "booking"
	KindReceipt      NotificationKind = "receipt"
	KindCancellation NotificationKind = "cancellation"
)

// NotificationData is the structured payload attached to a notification.
type NotificationData struct {
	BookingID    string  `json:"bookingId,omitempty"`
	PaymentID    string  `json:"paymentId,omitempty"`
	VehicleID    string  `json:"vehicleId,omitempty"`
	VehicleInfo  string  `json:"vehicleInfo,omitempty"`
	BookingDates string  `json:"bookingDates,omitempty"`
	Amount       float64 `json:"amount"`
	Counterparty string  `json:"counterparty,omitempty"`
}

// Notification is a message for one user, delivered by an external sink.
type Notification struct {
	UserID  string           `json:"userId"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Kind    NotificationKind `json:"type"`
	Data    NotificationData `json:"data"`
}
