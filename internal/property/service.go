// Package property manages property profiles for the host console:
// details, auto-pilot, AI instructions and FAQ entries.
package property

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfman30/guestpilot/internal/lock"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/store"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// Update is a partial property update. Nil fields are left untouched.
type Update struct {
	Name              *string  `json:"name,omitempty"`
	Address           *string  `json:"address,omitempty"`
	Description       *string  `json:"description,omitempty"`
	WiFiName          *string  `json:"wifiName,omitempty"`
	WiFiPassword      *string  `json:"wifiPassword,omitempty"`
	DoorCode          *string  `json:"doorCode,omitempty"`
	HouseRules        []string `json:"houseRules,omitempty"`
	Amenities         []string `json:"amenities,omitempty"`
	CheckInTime       *string  `json:"checkInTime,omitempty"`
	CheckOutTime      *string  `json:"checkOutTime,omitempty"`
	MaxGuests         *int     `json:"maxGuests,omitempty"`
	ParkingInfo       *string  `json:"parkingInfo,omitempty"`
	Restaurants       []string `json:"restaurants,omitempty"`
	FastFood          []string `json:"fastFood,omitempty"`
	EmergencyContacts []string `json:"emergencyContacts,omitempty"`
	AutoPilot         *bool    `json:"autoPilot,omitempty"`
	HostEmail         *string  `json:"hostEmail,omitempty"`
}

// InstructionUpdate is a partial AI instruction update.
type InstructionUpdate struct {
	Type     *rental.InstructionType `json:"type,omitempty"`
	Content  *string                 `json:"content,omitempty"`
	Active   *bool                   `json:"isActive,omitempty"`
	Priority *int                    `json:"priority,omitempty"`
}

// FAQUpdate is a partial FAQ entry update.
type FAQUpdate struct {
	Question *string             `json:"question,omitempty"`
	Answer   *string             `json:"answer,omitempty"`
	Category *rental.FAQCategory `json:"category,omitempty"`
	Active   *bool               `json:"isActive,omitempty"`
	UseCount *int                `json:"useCount,omitempty"`
}

// Service edits properties. Every read-modify-write holds the property's
// lock so concurrent console edits do not drop each other.
type Service struct {
	store  store.PropertyStore
	locker lock.Locker
	logger *logging.Logger
	newID  func() string
}

func NewService(st store.PropertyStore, locker lock.Locker, logger *logging.Logger) *Service {
	if st == nil {
		panic("property: store cannot be nil")
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: st, locker: locker, logger: logger, newID: uuid.NewString}
}

func (s *Service) List(ctx context.Context) ([]rental.Property, error) {
	return s.store.ListProperties(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (rental.Property, error) {
	return s.store.GetProperty(ctx, id)
}

// Update applies u to the property.
func (s *Service) Update(ctx context.Context, id string, u Update) (rental.Property, error) {
	if u.MaxGuests != nil && *u.MaxGuests < 0 {
		return rental.Property{}, rental.NewValidationError("maxGuests", "Max guests cannot be negative")
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return rental.Property{}, rental.NewValidationError("name", "Name cannot be empty")
	}
	return s.modify(ctx, id, func(p *rental.Property) error {
		setString(&p.Name, u.Name)
		setString(&p.Address, u.Address)
		setString(&p.Description, u.Description)
		setString(&p.WiFiName, u.WiFiName)
		setString(&p.WiFiPassword, u.WiFiPassword)
		setString(&p.DoorCode, u.DoorCode)
		setString(&p.CheckInTime, u.CheckInTime)
		setString(&p.CheckOutTime, u.CheckOutTime)
		setString(&p.ParkingInfo, u.ParkingInfo)
		setString(&p.HostEmail, u.HostEmail)
		setList(&p.HouseRules, u.HouseRules)
		setList(&p.Amenities, u.Amenities)
		setList(&p.Restaurants, u.Restaurants)
		setList(&p.FastFood, u.FastFood)
		setList(&p.EmergencyContacts, u.EmergencyContacts)
		if u.MaxGuests != nil {
			p.MaxGuests = *u.MaxGuests
		}
		if u.AutoPilot != nil {
			p.AutoPilot = *u.AutoPilot
		}
		return nil
	})
}

// SetAutoPilot toggles AI replies for a property.
func (s *Service) SetAutoPilot(ctx context.Context, id string, enabled bool) (rental.Property, error) {
	p, err := s.modify(ctx, id, func(p *rental.Property) error {
		p.AutoPilot = enabled
		return nil
	})
	if err == nil {
		s.logger.Info("auto-pilot changed", "property_id", id, "enabled", enabled)
	}
	return p, err
}

// AddInstruction appends an AI instruction, assigning its ID.
func (s *Service) AddInstruction(ctx context.Context, id string, in rental.AIInstruction) (rental.AIInstruction, error) {
	if err := validateInstruction(in); err != nil {
		return rental.AIInstruction{}, err
	}
	in.Content = strings.TrimSpace(in.Content)
	in.ID = s.newID()
	_, err := s.modify(ctx, id, func(p *rental.Property) error {
		p.Instructions = append(p.Instructions, in)
		return nil
	})
	return in, err
}

// UpdateInstruction applies u to one instruction and returns the result.
func (s *Service) UpdateInstruction(ctx context.Context, id, instructionID string, u InstructionUpdate) (rental.AIInstruction, error) {
	var out rental.AIInstruction
	_, err := s.modify(ctx, id, func(p *rental.Property) error {
		for i := range p.Instructions {
			if p.Instructions[i].ID != instructionID {
				continue
			}
			in := p.Instructions[i]
			if u.Type != nil {
				in.Type = *u.Type
			}
			setString(&in.Content, u.Content)
			if u.Active != nil {
				in.Active = *u.Active
			}
			if u.Priority != nil {
				in.Priority = *u.Priority
			}
			if err := validateInstruction(in); err != nil {
				return err
			}
			p.Instructions[i] = in
			out = in
			return nil
		}
		return fmt.Errorf("instruction %s: %w", instructionID, rental.ErrNotFound)
	})
	return out, err
}

// DeleteInstruction removes an instruction by ID.
func (s *Service) DeleteInstruction(ctx context.Context, id, instructionID string) error {
	_, err := s.modify(ctx, id, func(p *rental.Property) error {
		for i, in := range p.Instructions {
			if in.ID == instructionID {
				p.Instructions = append(p.Instructions[:i:i], p.Instructions[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("instruction %s: %w", instructionID, rental.ErrNotFound)
	})
	return err
}

// AddFAQ appends a FAQ entry, assigning its ID. Category defaults to general.
func (s *Service) AddFAQ(ctx context.Context, id string, item rental.FAQItem) (rental.FAQItem, error) {
	if item.Category == "" {
		item.Category = rental.FAQGeneral
	}
	if err := validateFAQ(item); err != nil {
		return rental.FAQItem{}, err
	}
	item.Question = strings.TrimSpace(item.Question)
	item.Answer = strings.TrimSpace(item.Answer)
	item.UseCount = 0
	item.ID = s.newID()
	_, err := s.modify(ctx, id, func(p *rental.Property) error {
		p.FAQ = append(p.FAQ, item)
		return nil
	})
	return item, err
}

// UpdateFAQ applies u to one FAQ entry and returns the result.
func (s *Service) UpdateFAQ(ctx context.Context, id, faqID string, u FAQUpdate) (rental.FAQItem, error) {
	if u.UseCount != nil && *u.UseCount < 0 {
		return rental.FAQItem{}, rental.NewValidationError("useCount", "Use count cannot be negative")
	}
	return s.modifyFAQ(ctx, id, faqID, func(item *rental.FAQItem) error {
		setString(&item.Question, u.Question)
		setString(&item.Answer, u.Answer)
		if u.Category != nil {
			item.Category = *u.Category
		}
		if u.Active != nil {
			item.Active = *u.Active
		}
		if u.UseCount != nil {
			item.UseCount = *u.UseCount
		}
		return validateFAQ(*item)
	})
}

// RecordFAQUse counts one more use of a FAQ entry. Prompts list the most
// used entries first.
func (s *Service) RecordFAQUse(ctx context.Context, id, faqID string) (rental.FAQItem, error) {
	return s.modifyFAQ(ctx, id, faqID, func(item *rental.FAQItem) error {
		item.UseCount++
		return nil
	})
}

func (s *Service) modifyFAQ(ctx context.Context, id, faqID string, apply func(*rental.FAQItem) error) (rental.FAQItem, error) {
	var out rental.FAQItem
	_, err := s.modify(ctx, id, func(p *rental.Property) error {
		for i := range p.FAQ {
			if p.FAQ[i].ID != faqID {
				continue
			}
			item := p.FAQ[i]
			if err := apply(&item); err != nil {
				return err
			}
			p.FAQ[i] = item
			out = item
			return nil
		}
		return fmt.Errorf("faq %s: %w", faqID, rental.ErrNotFound)
	})
	return out, err
}

// DeleteFAQ removes a FAQ entry by ID.
func (s *Service) DeleteFAQ(ctx context.Context, id, faqID string) error {
	_, err := s.modify(ctx, id, func(p *rental.Property) error {
		for i, f := range p.FAQ {
			if f.ID == faqID {
				p.FAQ = append(p.FAQ[:i:i], p.FAQ[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("faq %s: %w", faqID, rental.ErrNotFound)
	})
	return err
}

func (s *Service) modify(ctx context.Context, id string, apply func(*rental.Property) error) (rental.Property, error) {
	release, err := s.locker.Lock(ctx, "property:"+id)
	if err != nil {
		return rental.Property{}, fmt.Errorf("property: lock: %w", err)
	}
	defer release()

	p, err := s.store.GetProperty(ctx, id)
	if err != nil {
		return rental.Property{}, err
	}
	if err := apply(&p); err != nil {
		return rental.Property{}, err
	}
	return s.store.SaveProperty(ctx, p)
}

func validateInstruction(in rental.AIInstruction) error {
	switch in.Type {
	case rental.InstructionTone, rental.InstructionKnowledge, rental.InstructionRules:
	default:
		return rental.NewValidationError("type", "Type must be one of tone, knowledge, rules")
	}
	if strings.TrimSpace(in.Content) == "" {
		return rental.NewValidationError("content", "Content cannot be empty")
	}
	return nil
}

func validateFAQ(item rental.FAQItem) error {
	if strings.TrimSpace(item.Question) == "" {
		return rental.NewValidationError("question", "Question cannot be empty")
	}
	if strings.TrimSpace(item.Answer) == "" {
		return rental.NewValidationError("answer", "Answer cannot be empty")
	}
	switch item.Category {
	case rental.FAQCheckIn, rental.FAQCheckOut, rental.FAQWiFi, rental.FAQParking, rental.FAQHouseRules, rental.FAQGeneral:
		return nil
	default:
		return rental.NewValidationError("category", "Unknown FAQ category")
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setList(dst *[]string, v []string) {
	if v == nil {
		return
	}
	out := make([]string, 0, len(v))
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}
