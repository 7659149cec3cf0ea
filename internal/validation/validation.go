package validation

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/issuance"
	"ticket-validation-api/internal/location"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/records"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Calypso DF names are ISO 7816 application identifiers.
const (
	minDFNameLen = 5
	maxDFNameLen = 16
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateIssueCardRequest checks a personalization request.
func ValidateIssueCardRequest(req models.IssueCardRequest) error {
	if req.Product == "" {
		return &ValidationError{Field: "product", Message: "is required"}
	}
	product, err := card.ParseProduct(req.Product)
	if err != nil {
		return &ValidationError{Field: "product", Message: err.Error()}
	}

	if req.DFName != "" {
		if product.Family() != card.FamilyCalypso {
			return &ValidationError{Field: "df_name", Message: "is only supported on Calypso cards"}
		}
		name, err := hex.DecodeString(req.DFName)
		if err != nil {
			return &ValidationError{Field: "df_name", Message: "must be hexadecimal"}
		}
		if len(name) < minDFNameLen || len(name) > maxDFNameLen {
			return &ValidationError{
				Field:   "df_name",
				Message: fmt.Sprintf("must be %d to %d bytes long", minDFNameLen, maxDFNameLen),
			}
		}
	}

	if err := validateDate(req.EnvironmentEndDate, "environment_end_date"); err != nil {
		return err
	}

	if limit := issuance.MaxContracts(product); len(req.Contracts) > limit {
		return &ValidationError{
			Field:   "contracts",
			Message: fmt.Sprintf("%s holds at most %d contracts", product.DisplayName(), limit),
		}
	}

	for i, c := range req.Contracts {
		if err := validateContract(c, fmt.Sprintf("contracts[%d]", i)); err != nil {
			return err
		}
	}

	return nil
}

func validateContract(c models.ContractSpec, prefix string) error {
	if c.Tariff == "" {
		return &ValidationError{Field: prefix + ".tariff", Message: "is required"}
	}
	tariff, err := issuance.ParseTariff(c.Tariff)
	if err != nil {
		return &ValidationError{
			Field:   prefix + ".tariff",
			Message: "must be one of MULTI_TRIP, STORED_VALUE, SEASON_PASS",
		}
	}

	if err := validateDate(c.ValidityEndDate, prefix+".validity_end_date"); err != nil {
		return err
	}

	if c.Counter < 0 {
		return &ValidationError{Field: prefix + ".counter", Message: "must be non-negative"}
	}
	if c.Counter > records.MaxCounterValue {
		return &ValidationError{
			Field:   prefix + ".counter",
			Message: fmt.Sprintf("cannot exceed %d", records.MaxCounterValue),
		}
	}
	if tariff == compact.PrioritySeasonPass && c.Counter != 0 {
		return &ValidationError{Field: prefix + ".counter", Message: "is not used by season passes"}
	}

	return nil
}

func validateDate(s, field string) error {
	if s == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if _, err := issuance.ParseDate(s); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be a YYYY-MM-DD date between 2010-01-02 and 2189-06-06",
		}
	}
	return nil
}

// ValidateValidateRequest checks a tap request against the known locations.
func ValidateValidateRequest(req models.ValidateRequest, locations *location.Repository) error {
	if req.Amount != nil {
		if *req.Amount < 0 {
			return &ValidationError{Field: "amount", Message: "must be non-negative"}
		}
		if *req.Amount > records.MaxCounterValue {
			return &ValidationError{
				Field:   "amount",
				Message: fmt.Sprintf("cannot exceed %d", records.MaxCounterValue),
			}
		}
	}

	if req.LocationID != nil {
		if _, err := locations.Get(*req.LocationID); err != nil {
			return &ValidationError{Field: "location_id", Message: "is not a known location"}
		}
	}

	if req.Now != nil {
		if _, err := compact.NewDate(*req.Now); err != nil {
			return &ValidationError{Field: "now", Message: "is outside the card calendar"}
		}
	}

	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateUUID checks an identifier minted by this service.
func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a valid UUID v4",
		}
	}

	return nil
}
