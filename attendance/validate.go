package attendance

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// BOUNDARY VALIDATION
// =============================================================================
// The engine trusts its inputs. These functions run at the edge (service,
// HTTP handlers, the Reconciler Check hook) and report every failed field.

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ist is the zone in which "today" is evaluated for attendance dates.
var ist = time.FixedZone("IST", 5*3600+30*60)

// now is replaced in tests.
var now = time.Now

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	must("calendardate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	})
	must("notfuture", func(fl validator.FieldLevel) bool {
		d, err := time.Parse(DateLayout, fl.Field().String())
		if err != nil {
			return true // reported by calendardate
		}
		return d.Format(DateLayout) <= today()
	})
	must("status", func(fl validator.FieldLevel) bool {
		s := Status(fl.Field().String())
		for _, known := range KnownStatuses {
			if s == known {
				return true
			}
		}
		return false
	})
	must("scope", func(fl validator.FieldLevel) bool {
		s := Scope(fl.Field().String())
		return s == ScopeSelf || s == ScopeStudent
	})
	must("sortorder", func(fl validator.FieldLevel) bool {
		o := strings.ToLower(fl.Field().String())
		return o == string(SortAsc) || o == string(SortDesc)
	})
	return v
}

func today() string {
	return now().In(ist).Format(DateLayout)
}

// ValidateEntry checks a single mark.
func ValidateEntry(e Entry) error {
	return toValidationError(validate.Struct(e))
}

// ValidateBulk checks the shared envelope of a batch. Items are checked one
// by one during resolution so a bad item fails alone.
func ValidateBulk(b BulkRequest) error {
	return toValidationError(validate.Struct(b))
}

type searchShape struct {
	Limit     int    `json:"limit" validate:"gte=0"`
	Page      int    `json:"page" validate:"gte=0"`
	SortField string `json:"sort" validate:"required_with=SortOrder"`
	SortOrder string `json:"sortOrder" validate:"omitempty,sortorder"`
}

// ValidateSearch checks pagination and the sort order. Key names are
// checked later against the schema.
func ValidateSearch(r SearchRequest) error {
	shape := searchShape{Limit: r.Limit, Page: r.Page}
	if r.Sort != nil {
		shape.SortField, shape.SortOrder = r.Sort.Field, string(r.Sort.Order)
		if shape.SortOrder == "" {
			return &ValidationError{Fields: map[string]string{"sort": "sort must be [column, asc|desc]"}}
		}
	}
	return toValidationError(validate.Struct(shape))
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return &ValidationError{Fields: map[string]string{"input": err.Error()}}
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = message(fe)
	}
	return &ValidationError{Fields: fields}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with":
		return fmt.Sprintf("%s should not be empty", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", fe.Field())
	case "calendardate":
		if !datePattern.MatchString(fmt.Sprint(fe.Value())) {
			return "Please provide a valid date in the format yyyy-mm-dd"
		}
		return "The date provided is not a valid calendar date"
	case "notfuture":
		return "Attendance date must not be after today"
	case "status":
		return "Please enter valid enum values for attendance [present, absent,on-leave]"
	case "scope":
		return "Please enter valid enum values for scope [self, student]"
	case "sortorder":
		return "sort must be [column, asc|desc]"
	case "gte":
		return fmt.Sprintf("%s must not be less than %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must contain at least %s elements", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
}
