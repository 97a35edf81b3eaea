// Package rental holds the typed entities shared by intake, resolution and
// reply generation: properties, conversations and their messages.
package rental

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Platform tags the channel a conversation originated from.
type Platform string

const (
	PlatformWhatsApp Platform = "whatsapp"
	PlatformSMS      Platform = "sms"
	PlatformEmail    Platform = "email"
	PlatformAirbnb   Platform = "airbnb"
	PlatformBooking  Platform = "booking"
	PlatformDirect   Platform = "direct"
)

// StatusActive is the status given to every conversation created by intake.
const StatusActive = "Active"

// Message is one entry of a conversation thread. IsUser is true for host- or
// AI-authored messages and false for guest-authored ones.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
}

// UnmarshalJSON accepts RFC 3339 strings, unix-millisecond numbers and null
// timestamps, all of which appear in older message blobs.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Text      string          `json:"text"`
		IsUser    bool            `json:"isUser"`
		Timestamp json.RawMessage `json:"timestamp"`
		Sender    string          `json:"sender"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := decodeLooseString(raw.ID)
	if err != nil {
		return fmt.Errorf("rental: message id: %w", err)
	}
	ts, err := decodeTimestamp(raw.Timestamp)
	if err != nil {
		return fmt.Errorf("rental: message timestamp: %w", err)
	}
	*m = Message{ID: id, Text: raw.Text, IsUser: raw.IsUser, Timestamp: ts, Sender: raw.Sender}
	return nil
}

func decodeLooseString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return time.Time{}, nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Conversation is the thread between a property and one guest for one stay.
// GuestEmail is the identity key used for matching; for channels without an
// email it carries the channel-native sender address.
type Conversation struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"propertyId"`
	GuestName  string    `json:"guestName"`
	GuestEmail string    `json:"guestEmail"`
	CheckIn    string    `json:"checkIn"`
	CheckOut   string    `json:"checkOut"`
	Status     string    `json:"status"`
	Platform   Platform  `json:"platform"`
	Messages   []Message `json:"messages"`
	Revision   int64     `json:"revision"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HasMessage reports whether a message with the given ID is already in the thread.
func (c Conversation) HasMessage(id string) bool {
	if id == "" {
		return false
	}
	for _, m := range c.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// WithMessage returns the thread with msg appended. The receiver's slice is
// never shared with the result.
func (c Conversation) WithMessage(msg Message) []Message {
	out := make([]Message, 0, len(c.Messages)+1)
	out = append(out, c.Messages...)
	return append(out, msg)
}

// LastMessage returns the newest message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// InstructionType classifies an AI instruction.
type InstructionType string

const (
	InstructionTone      InstructionType = "tone"
	InstructionKnowledge InstructionType = "knowledge"
	InstructionRules     InstructionType = "rules"
)

// AIInstruction is a host-authored directive injected into the reply prompt.
type AIInstruction struct {
	ID       string          `json:"id"`
	Type     InstructionType `json:"type"`
	Content  string          `json:"content"`
	Active   bool            `json:"isActive"`
	Priority int             `json:"priority"`
}

// FAQCategory groups FAQ entries in the console.
type FAQCategory string

const (
	FAQCheckIn    FAQCategory = "check-in"
	FAQCheckOut   FAQCategory = "check-out"
	FAQWiFi       FAQCategory = "wifi"
	FAQParking    FAQCategory = "parking"
	FAQHouseRules FAQCategory = "house-rules"
	FAQGeneral    FAQCategory = "general"
)

// FAQItem is a canned question/answer pair for a property.
type FAQItem struct {
	ID       string      `json:"id"`
	Question string      `json:"question"`
	Answer   string      `json:"answer"`
	Category FAQCategory `json:"category"`
	Active   bool        `json:"isActive"`
	UseCount int         `json:"useCount"`
}

// Property is a rental unit and everything the assistant may tell guests about it.
type Property struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Address           string          `json:"address"`
	Description       string          `json:"description,omitempty"`
	WiFiName          string          `json:"wifiName"`
	WiFiPassword      string          `json:"wifiPassword"`
	DoorCode          string          `json:"doorCode"`
	HouseRules        []string        `json:"houseRules"`
	Amenities         []string        `json:"amenities"`
	CheckInTime       string          `json:"checkInTime"`
	CheckOutTime      string          `json:"checkOutTime"`
	MaxGuests         int             `json:"maxGuests"`
	ParkingInfo       string          `json:"parkingInfo,omitempty"`
	Restaurants       []string        `json:"restaurants,omitempty"`
	FastFood          []string        `json:"fastFood,omitempty"`
	EmergencyContacts []string        `json:"emergencyContacts,omitempty"`
	AutoPilot         bool            `json:"autoPilot"`
	HostEmail         string          `json:"hostEmail,omitempty"`
	Instructions      []AIInstruction `json:"aiInstructions,omitempty"`
	FAQ               []FAQItem       `json:"faq,omitempty"`
}

// ActiveInstructions returns the enabled instructions ordered by ascending priority.
func (p Property) ActiveInstructions() []AIInstruction {
	out := make([]AIInstruction, 0, len(p.Instructions))
	for _, in := range p.Instructions {
		if in.Active && strings.TrimSpace(in.Content) != "" {
			out = append(out, in)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// ActiveFAQ returns the enabled FAQ entries, most used first.
func (p Property) ActiveFAQ() []FAQItem {
	out := make([]FAQItem, 0, len(p.FAQ))
	for _, f := range p.FAQ {
		if f.Active {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UseCount > out[j].UseCount })
	return out
}

// NormalizeIdentity canonicalizes a guest identity key for comparison.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
