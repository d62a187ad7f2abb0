package service

import (
	"fmt"
	"strings"

	"github.com/carbnb/availability/internal/domain"
)

// Message builders for the notifications and chat posts sent after a
// booking changes state. They are pure so tests can assert on content.

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// shortRef returns the last 8 characters of a payment id for display.
func shortRef(paymentID string) string {
	if len(paymentID) <= 8 {
		return paymentID
	}
	return paymentID[len(paymentID)-8:]
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func bookingData(b domain.Booking, counterparty string) domain.NotificationData {
	return domain.NotificationData{
		BookingID:    b.ID,
		PaymentID:    b.PaymentID,
		VehicleID:    b.VehicleID,
		VehicleInfo:  b.Vehicle.Info(),
		BookingDates: b.Range().String(),
		Amount:       b.TotalPrice,
		Counterparty: counterparty,
	}
}

func ownerPaymentNotification(b domain.Booking, fees domain.Fees) domain.Notification {
	title := "Payment received"
	msg := fmt.Sprintf("You received a payment of %s for your %s. %s booked it for %s.",
		money(fees.Total), b.Vehicle.Info(), b.RenterName, b.Range())
	if fees.Free() {
		title = "New reservation"
		msg = fmt.Sprintf("%s reserved your %s for %s at no charge.", b.RenterName, b.Vehicle.Info(), b.Range())
	}
	return domain.Notification{
		UserID:  b.OwnerID,
		Title:   title,
		Message: msg,
		Kind:    domain.KindPayment,
		Data:    bookingData(b, b.RenterName),
	}
}

func renterConfirmedNotification(b domain.Booking, fees domain.Fees) domain.Notification {
	return domain.Notification{
		UserID: b.RenterID,
		Title:  "Booking confirmed",
		Message: fmt.Sprintf("Your booking of the %s with %s is confirmed for %s. Total paid: %s.",
			b.Vehicle.Info(), b.OwnerName, b.Range(), money(fees.Total)),
		Kind: domain.KindBooking,
		Data: bookingData(b, b.OwnerName),
	}
}

func renterReceipt(b domain.Booking, fees domain.Fees) domain.Notification {
	var sb strings.Builder
	fmt.Fprintf(&sb, "RECEIPT\n\n")
	fmt.Fprintf(&sb, "Vehicle: %s\n", b.Vehicle.Info())
	fmt.Fprintf(&sb, "Dates: %s (%s)\n\n", b.Range(), plural(b.Range().Days(), "day"))
	fmt.Fprintf(&sb, "Subtotal: %s\nFees: %s\nTotal paid: %s\n\n", money(fees.Subtotal), money(fees.Fees), money(fees.Total))
	fmt.Fprintf(&sb, "Owner: %s\nEmail: %s\nPhone: %s\n\n", b.OwnerName, b.OwnerEmail, b.OwnerContact)
	fmt.Fprintf(&sb, "Transaction: %s", shortRef(b.PaymentID))

	return domain.Notification{
		UserID:  b.RenterID,
		Title:   "Receipt: payment successful",
		Message: sb.String(),
		Kind:    domain.KindReceipt,
		Data:    bookingData(b, b.OwnerName),
	}
}

func ownerReceipt(b domain.Booking, fees domain.Fees) domain.Notification {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PAYMENT RECEIVED\n\n")
	fmt.Fprintf(&sb, "Vehicle: %s\n", b.Vehicle.Info())
	fmt.Fprintf(&sb, "Dates: %s (%s)\n\n", b.Range(), plural(b.Range().Days(), "day"))
	fmt.Fprintf(&sb, "Subtotal: %s\nFees: %s\nTotal: %s\n\n", money(fees.Subtotal), money(fees.Fees), money(fees.Total))
	fmt.Fprintf(&sb, "Renter: %s\nEmail: %s\nPhone: %s\n\n", b.RenterName, b.RenterEmail, b.RenterContact)
	fmt.Fprintf(&sb, "Transaction: %s\n", shortRef(b.PaymentID))
	fmt.Fprintf(&sb, "Your vehicle is reserved for these dates.")

	return domain.Notification{
		UserID:  b.OwnerID,
		Title:   "Receipt: you received a payment",
		Message: sb.String(),
		Kind:    domain.KindReceipt,
		Data:    bookingData(b, b.RenterName),
	}
}

func chatConfirmation(b domain.Booking, fees domain.Fees) string {
	return fmt.Sprintf("Booking confirmed.\n\nVehicle: %s\nDates: %s\nTotal: %s\nPayment ref: %s",
		b.Vehicle.Info(), b.Range(), money(fees.Total), shortRef(b.PaymentID))
}

func cancellationNotifications(b domain.Booking) []domain.Notification {
	msg := fmt.Sprintf("The booking of the %s for %s was cancelled.", b.Vehicle.Info(), b.Range())
	return []domain.Notification{
		{UserID: b.OwnerID, Title: "Booking cancelled", Message: msg, Kind: domain.KindCancellation, Data: bookingData(b, b.RenterName)},
		{UserID: b.RenterID, Title: "Booking cancelled", Message: msg, Kind: domain.KindCancellation, Data: bookingData(b, b.OwnerName)},
	}
}
