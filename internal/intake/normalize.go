// Package intake validates generic webhook payloads and turns them into
// canonical inbound messages.
package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wolfman30/guestpilot/internal/rental"
)

// Payload is the JSON body accepted by the generic webhook.
type Payload struct {
	PropertyID   string `json:"propertyId" validate:"notblank"`
	GuestName    string `json:"guestName" validate:"notblank"`
	GuestEmail   string `json:"guestEmail" validate:"required,email"`
	CheckInDate  string `json:"checkInDate" validate:"omitempty,staydate"`
	CheckOutDate string `json:"checkOutDate" validate:"omitempty,staydate"`
	Message      string `json:"message" validate:"notblank"`
	Platform     string `json:"platform" validate:"omitempty,oneof=whatsapp sms email airbnb booking direct"`
	Timestamp    string `json:"timestamp" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// Inbound is a validated guest message ready for resolution.
type Inbound struct {
	PropertyID string
	// Identity is the guest key conversations are matched on.
	Identity  string
	GuestName string
	CheckIn   string
	CheckOut  string
	Platform  rental.Platform
	Message   rental.Message
}

var messages = map[string]string{
	"propertyId":   "Property ID is required",
	"guestName":    "Guest Name is required",
	"guestEmail":   "A valid email is required",
	"checkInDate":  "Check-in Date must be a date (YYYY-MM-DD)",
	"checkOutDate": "Check-out Date must be a date (YYYY-MM-DD)",
	"message":      "Message cannot be empty",
	"platform":     "Platform must be one of whatsapp, sms, email, airbnb, booking, direct",
	"timestamp":    "Timestamp must be an RFC 3339 date-time",
}

// Normalizer validates payloads. It is safe for concurrent use.
type Normalizer struct {
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// NewNormalizer builds a Normalizer with UUIDv7 message IDs.
func NewNormalizer() *Normalizer {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("staydate", func(fl validator.FieldLevel) bool {
		_, ok := ParseStayDate(fl.Field().String())
		return ok
	})
	return &Normalizer{
		validate: v,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newMessageID,
	}
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Decode parses body and normalizes it.
func (n *Normalizer) Decode(body []byte) (Inbound, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Inbound{}, rental.NewValidationError(typeErr.Field, fieldMessage(typeErr.Field))
		}
		return Inbound{}, rental.NewValidationError("body", "Invalid JSON body")
	}
	return n.Normalize(p)
}

// Normalize validates p and returns the canonical message. Failures are a
// *rental.ValidationError naming the first invalid field.
func (n *Normalizer) Normalize(p Payload) (Inbound, error) {
	if err := n.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0].Field()
			return Inbound{}, rental.NewValidationError(field, fieldMessage(field))
		}
		return Inbound{}, rental.NewValidationError("body", err.Error())
	}

	ts := n.now()
	if p.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, p.Timestamp)
		if err != nil {
			return Inbound{}, rental.NewValidationError("timestamp", fieldMessage("timestamp"))
		}
		ts = parsed.UTC()
	}
	platform := rental.Platform(p.Platform)
	if platform == "" {
		platform = rental.PlatformWhatsApp
	}
	guestName := strings.TrimSpace(p.GuestName)

	return Inbound{
		PropertyID: strings.TrimSpace(p.PropertyID),
		Identity:   strings.TrimSpace(p.GuestEmail),
		GuestName:  guestName,
		CheckIn:    strings.TrimSpace(p.CheckInDate),
		CheckOut:   strings.TrimSpace(p.CheckOutDate),
		Platform:   platform,
		Message: rental.Message{
			ID:        n.newID(),
			Text:      p.Message,
			IsUser:    false,
			Timestamp: ts,
			Sender:    guestName,
		},
	}, nil
}

func fieldMessage(field string) string {
	if msg, ok := messages[field]; ok {
		return msg
	}
	return field + " is invalid"
}
