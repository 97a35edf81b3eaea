package rental

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field names of the external record store. Conversations and Properties
// live in separate tables; messages are a JSON array stored as text.
const (
	FieldProperties = "Properties"
	FieldGuestName  = "Guest Name"
	FieldGuestEmail = "Guest Email"
	FieldCheckIn    = "Check-in Date"
	FieldCheckOut   = "Check-out Date"
	FieldStatus     = "Status"
	FieldPlatform   = "Platform"
	FieldMessages   = "Messages"
	FieldRevision   = "Revision"
	FieldUpdatedAt  = "Updated At"

	FieldName              = "Name"
	FieldAddress           = "Address"
	FieldDescription       = "Description"
	FieldWiFiName          = "WiFi Name"
	FieldWiFiPassword      = "WiFi Password"
	FieldDoorCode          = "Door Code"
	FieldHouseRules        = "House Rules"
	FieldAmenities         = "Amenities"
	FieldCheckInTime       = "Check-in Time"
	FieldCheckOutTime      = "Check-out Time"
	FieldMaxGuests         = "Max Guests"
	FieldParkingInfo       = "Parking Info"
	FieldRestaurants       = "Restaurants"
	FieldFastFood          = "Fast Food"
	FieldEmergencyContacts = "Emergency Contacts"
	FieldAutoPilot         = "Auto Pilot"
	FieldHostEmail         = "Host Email"
	FieldAIInstructions    = "AI Instructions"
	FieldFAQ               = "FAQ"
)

// Record is a schemaless row as the external store returns it.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// MessagesDecodeError is returned alongside an empty thread when a stored
// Messages blob cannot be parsed.
type MessagesDecodeError struct {
	RecordID string
	Err      error
}

func (e *MessagesDecodeError) Error() string {
	return fmt.Sprintf("rental: invalid messages for record %s: %v", e.RecordID, e.Err)
}

func (e *MessagesDecodeError) Unwrap() error { return e.Err }

// EncodeMessages serializes a thread into the stored text form.
func EncodeMessages(msgs []Message) (string, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("rental: encode messages: %w", err)
	}
	return string(data), nil
}

// DecodeMessages parses the stored text form. Blank input is an empty thread.
func DecodeMessages(raw string) ([]Message, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []Message{}, nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return []Message{}, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// ConversationFromRecord is the single decoding boundary for conversation
// rows. A malformed Messages blob yields an empty thread together with a
// *MessagesDecodeError so callers can log it and carry on.
func ConversationFromRecord(rec Record) (Conversation, error) {
	conv := Conversation{
		ID:         rec.ID,
		PropertyID: firstLink(rec.Fields[FieldProperties]),
		GuestName:  stringField(rec.Fields, FieldGuestName),
		GuestEmail: stringField(rec.Fields, FieldGuestEmail),
		CheckIn:    stringField(rec.Fields, FieldCheckIn),
		CheckOut:   stringField(rec.Fields, FieldCheckOut),
		Status:     stringField(rec.Fields, FieldStatus),
		Platform:   Platform(stringField(rec.Fields, FieldPlatform)),
		Revision:   int64(intField(rec.Fields, FieldRevision)),
		Messages:   []Message{},
	}
	if conv.Status == "" {
		conv.Status = StatusActive
	}
	if ts, err := time.Parse(time.RFC3339, rec.CreatedTime); err == nil {
		conv.UpdatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringField(rec.Fields, FieldUpdatedAt)); err == nil && ts.After(conv.UpdatedAt) {
		conv.UpdatedAt = ts
	}

	var decodeErr error
	switch raw := rec.Fields[FieldMessages].(type) {
	case nil:
	case string:
		msgs, err := DecodeMessages(raw)
		if err != nil {
			decodeErr = &MessagesDecodeError{RecordID: rec.ID, Err: err}
		}
		conv.Messages = msgs
	default:
		data, err := json.Marshal(raw)
		if err == nil {
			conv.Messages, err = DecodeMessages(string(data))
		}
		if err != nil {
			conv.Messages = []Message{}
			decodeErr = &MessagesDecodeError{RecordID: rec.ID, Err: err}
		}
	}
	if last, ok := conv.LastMessage(); ok && last.Timestamp.After(conv.UpdatedAt) {
		conv.UpdatedAt = last.Timestamp
	}
	return conv, decodeErr
}

// ConversationFields encodes a conversation into store fields.
func ConversationFields(c Conversation) (map[string]any, error) {
	msgs, err := EncodeMessages(c.Messages)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		FieldGuestName:  c.GuestName,
		FieldGuestEmail: c.GuestEmail,
		FieldStatus:     c.Status,
		FieldPlatform:   string(c.Platform),
		FieldMessages:   msgs,
	}
	if c.PropertyID != "" {
		fields[FieldProperties] = []string{c.PropertyID}
	}
	// Date fields reject empty strings, so they are only sent when set.
	if c.CheckIn != "" {
		fields[FieldCheckIn] = c.CheckIn
	}
	if c.CheckOut != "" {
		fields[FieldCheckOut] = c.CheckOut
	}
	return fields, nil
}

// PropertyFromRecord is the single decoding boundary for property rows.
func PropertyFromRecord(rec Record) (Property, error) {
	f := rec.Fields
	p := Property{
		ID:                rec.ID,
		Name:              stringField(f, FieldName),
		Address:           stringField(f, FieldAddress),
		Description:       stringField(f, FieldDescription),
		WiFiName:          stringField(f, FieldWiFiName),
		WiFiPassword:      stringField(f, FieldWiFiPassword),
		DoorCode:          stringField(f, FieldDoorCode),
		HouseRules:        listField(f, FieldHouseRules),
		Amenities:         listField(f, FieldAmenities),
		CheckInTime:       stringField(f, FieldCheckInTime),
		CheckOutTime:      stringField(f, FieldCheckOutTime),
		MaxGuests:         intField(f, FieldMaxGuests),
		ParkingInfo:       stringField(f, FieldParkingInfo),
		Restaurants:       listField(f, FieldRestaurants),
		FastFood:          listField(f, FieldFastFood),
		EmergencyContacts: listField(f, FieldEmergencyContacts),
		AutoPilot:         boolField(f, FieldAutoPilot),
		HostEmail:         stringField(f, FieldHostEmail),
	}
	if raw := stringField(f, FieldAIInstructions); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Instructions); err != nil {
			return p, fmt.Errorf("rental: invalid AI instructions for property %s: %w", rec.ID, err)
		}
	}
	if raw := stringField(f, FieldFAQ); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.FAQ); err != nil {
			return p, fmt.Errorf("rental: invalid FAQ for property %s: %w", rec.ID, err)
		}
	}
	return p, nil
}

// PropertyFields encodes a property into store fields.
func PropertyFields(p Property) (map[string]any, error) {
	fields := map[string]any{
		FieldName:              p.Name,
		FieldAddress:           p.Address,
		FieldDescription:       p.Description,
		FieldWiFiName:          p.WiFiName,
		FieldWiFiPassword:      p.WiFiPassword,
		FieldDoorCode:          p.DoorCode,
		FieldHouseRules:        strings.Join(p.HouseRules, "\n"),
		FieldAmenities:         strings.Join(p.Amenities, "\n"),
		FieldCheckInTime:       p.CheckInTime,
		FieldCheckOutTime:      p.CheckOutTime,
		FieldMaxGuests:         p.MaxGuests,
		FieldParkingInfo:       p.ParkingInfo,
		FieldRestaurants:       strings.Join(p.Restaurants, "\n"),
		FieldFastFood:          strings.Join(p.FastFood, "\n"),
		FieldEmergencyContacts: strings.Join(p.EmergencyContacts, "\n"),
		FieldAutoPilot:         p.AutoPilot,
		FieldHostEmail:         p.HostEmail,
	}
	instructions, err := json.Marshal(nonNil(p.Instructions))
	if err != nil {
		return nil, fmt.Errorf("rental: encode AI instructions: %w", err)
	}
	faq, err := json.Marshal(nonNil(p.FAQ))
	if err != nil {
		return nil, fmt.Errorf("rental: encode FAQ: %w", err)
	}
	fields[FieldAIInstructions] = string(instructions)
	fields[FieldFAQ] = string(faq)
	return fields, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func stringField(f map[string]any, key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func intField(f map[string]any, key string) int {
	switch v := f[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}

func boolField(f map[string]any, key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

// listField accepts either an array or a newline-separated string.
func listField(f map[string]any, key string) []string {
	var out []string
	switch v := f[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, line := range strings.Split(v, "\n") {
			if strings.TrimSpace(line) != "" {
				out = append(out, strings.TrimSpace(line))
			}
		}
	}
	return out
}

func firstLink(v any) string {
	switch links := v.(type) {
	case []any:
		if len(links) > 0 {
			if s, ok := links[0].(string); ok {
				return s
			}
		}
	case []string:
		if len(links) > 0 {
			return links[0]
		}
	case string:
		return links
	}
	return ""
}
