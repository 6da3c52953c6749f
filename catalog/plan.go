package catalog

import (
	"fmt"
	"time"
)

type PlanType string

const (
	Daily   PlanType = "daily"
	Weekly  PlanType = "weekly"
	Monthly PlanType = "monthly"
)

// Plan is an immutable catalog entry. PriceUGX is what the customer pays; DiscountPercent
// is the discount already applied to it.
type Plan struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	DurationHours   int      `yaml:"duration_hours" json:"duration_hours"`
	PriceUGX        int64    `yaml:"price_ugx" json:"price_ugx"`
	DiscountPercent int      `yaml:"discount_percent" json:"discount_percent"`
	Type            PlanType `yaml:"type" json:"type"`
	Description     string   `yaml:"description" json:"description"`
	Inactive        bool     `yaml:"inactive" json:"inactive,omitempty"`
}

func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationHours) * time.Hour
}

// ListPrice is the undiscounted price, rounded to the nearest shilling.
func (p Plan) ListPrice() int64 {
	if p.DiscountPercent == 0 {
		return p.PriceUGX
	}
	den := int64(100 - p.DiscountPercent)
	return (p.PriceUGX*100 + den/2) / den
}

func (p Plan) validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("plan %q: id is required", p.Name)
	case p.Name == "":
		return fmt.Errorf("plan %s: name is required", p.ID)
	case p.DurationHours <= 0:
		return fmt.Errorf("plan %s: duration must be positive", p.ID)
	case p.PriceUGX < 0:
		return fmt.Errorf("plan %s: price must not be negative", p.ID)
	case p.DiscountPercent < 0 || p.DiscountPercent >= 100:
		return fmt.Errorf("plan %s: discount must be in [0,100)", p.ID)
	}

	switch p.Type {
	case Daily, Weekly, Monthly:
	default:
		return fmt.Errorf("plan %s: unknown type %q", p.ID, p.Type)
	}
	return nil
}

func defaultPlans() []Plan {
	return []Plan{
		{
			ID:            "1",
			Name:          "Instant Surf",
			DurationHours: 24,
			PriceUGX:      1500,
			Type:          Daily,
			Description:   "Perfect for daily browsing and social media",
		},
		{
			ID:              "2",
			Name:            "Flexi Surf",
			DurationHours:   168,
			PriceUGX:        9975,
			DiscountPercent: 5,
			Type:            Weekly,
			Description:     "Best value for students and regular users",
		},
		{
			ID:              "3",
			Name:            "Endless Surf",
			DurationHours:   720,
			PriceUGX:        40500,
			DiscountPercent: 10,
			Type:            Monthly,
			Description:     "Unlimited access for power users",
		},
	}
}
