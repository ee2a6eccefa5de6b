package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cowaramupagencies/gas/bottles"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

// normalizeInput trims every free-text field in place.
func normalizeInput(in *OrderInput) {
	in.Customer.Name = strings.TrimSpace(in.Customer.Name)
	in.Customer.Mobile = strings.TrimSpace(in.Customer.Mobile)
	in.Customer.Address = strings.TrimSpace(in.Customer.Address)
	in.PreferredDay = strings.TrimSpace(in.PreferredDay)
	in.Notes = strings.TrimSpace(in.Notes)
	in.DeliveryDate = strings.TrimSpace(in.DeliveryDate)
	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	in.RunID = strings.TrimSpace(in.RunID)
	if in.PreferredDay == "" {
		in.PreferredDay = DefaultPreferredDay
	}
}

// validateOrderInput normalises in and returns its canonical bottle map, or a
// ValidationError listing every problem found.
func validateOrderInput(in *OrderInput) (bottles.Quantities, error) {
	normalizeInput(in)
	var problems []string
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validate order input: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeField(fe))
		}
	}
	q := bottles.FromAny(in.Bottles)
	if q.Total() < 1 {
		problems = append(problems, "at least one bottle is required")
	}
	if in.RunID != "" && in.RunID != RunNone && in.DeliveryDate == "" {
		problems = append(problems, "a delivery date is required to assign a run")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return q, nil
}

func describeField(fe validator.FieldError) string {
	name := strings.TrimPrefix(fe.Namespace(), "OrderInput.")
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD form", name)
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}

// ParseDate checks that s is a real calendar day in YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(dateLayout, s)
	if err != nil || t.Format(dateLayout) != s {
		return time.Time{}, &InvalidDateError{Value: s}
	}
	return t, nil
}
