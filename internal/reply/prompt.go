package reply

import (
	"fmt"
	"strings"

	"github.com/wolfman30/guestpilot/internal/rental"
)

const noneAvailable = "None available"

var instructionSections = []struct {
	kind  rental.InstructionType
	title string
}{
	{rental.InstructionTone, "Tone"},
	{rental.InstructionKnowledge, "Property knowledge"},
	{rental.InstructionRules, "Rules you must follow"},
}

// BuildSystemPrompt renders the property context the model answers from.
// conv may be the zero value when there is no guest thread (sandbox).
func BuildSystemPrompt(p rental.Property, conv rental.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the guest-messaging assistant for %s, a short-term rental.\n\n", orNone(p.Name))

	b.WriteString("Property details:\n")
	fmt.Fprintf(&b, "- Address: %s\n", orNone(p.Address))
	fmt.Fprintf(&b, "- Check-in time: %s\n", orNone(p.CheckInTime))
	fmt.Fprintf(&b, "- Check-out time: %s\n", orNone(p.CheckOutTime))
	if p.MaxGuests > 0 {
		fmt.Fprintf(&b, "- Maximum guests: %d\n", p.MaxGuests)
	}
	fmt.Fprintf(&b, "- WiFi: %s / %s\n", orNone(p.WiFiName), orNone(p.WiFiPassword))
	fmt.Fprintf(&b, "- Door code: %s\n", orNone(p.DoorCode))
	if p.ParkingInfo != "" {
		fmt.Fprintf(&b, "- Parking: %s\n", p.ParkingInfo)
	}
	if d := strings.TrimSpace(p.Description); d != "" {
		fmt.Fprintf(&b, "\n%s\n", d)
	}

	if conv.ID != "" {
		b.WriteString("\nCurrent guest:\n")
		fmt.Fprintf(&b, "- Name: %s\n", orNone(conv.GuestName))
		if conv.CheckIn != "" || conv.CheckOut != "" {
			fmt.Fprintf(&b, "- Stay: %s to %s\n", orNone(conv.CheckIn), orNone(conv.CheckOut))
		}
	}

	active := p.ActiveInstructions()
	for _, section := range instructionSections {
		var lines []string
		for _, in := range active {
			if in.Type == section.kind {
				lines = append(lines, strings.TrimSpace(in.Content))
			}
		}
		if len(lines) > 0 {
			writeList(&b, section.title, lines)
		}
	}

	b.WriteString("\nFrequently asked questions:\n")
	faq := p.ActiveFAQ()
	if len(faq) == 0 {
		b.WriteString(noneAvailable + "\n")
	}
	for i, item := range faq {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", item.Question, item.Answer)
	}

	writeList(&b, "House rules", p.HouseRules)
	writeList(&b, "Amenities", p.Amenities)
	writeList(&b, "Recommended restaurants", p.Restaurants)
	writeList(&b, "Fast food nearby", p.FastFood)
	writeList(&b, "Emergency contacts", p.EmergencyContacts)

	b.WriteString("\nGive concise, friendly answers to guest questions. Be professional and welcoming. ")
	b.WriteString("If you do not know an answer, say the host will follow up rather than guessing.")
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "\n%s:\n", title)
	if len(items) == 0 {
		b.WriteString(noneAvailable + "\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not provided"
	}
	return s
}

// guestTurn wraps the inbound text as the final user message.
func guestTurn(text string) string {
	return fmt.Sprintf("Guest message: %q\n\nWrite a helpful reply as the property manager.", text)
}
