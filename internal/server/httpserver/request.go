package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type signupRequest struct {
	Username        string `json:"username" validate:"required,max=64"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,max=1024"`
	ConfirmPassword string `json:"confirmPassword" validate:"max=1024"`
}

// loginRequest.Username is a username or an email. Presence is checked by
// the service after the attempt is counted.
type loginRequest struct {
	Username string `json:"username" validate:"max=254"`
	Password string `json:"password" validate:"max=1024"`
}

type badgeRequest struct {
	ID          string    `json:"id" validate:"required,max=64"`
	Name        string    `json:"name" validate:"max=128"`
	Description string    `json:"description" validate:"max=512"`
	Icon        string    `json:"icon" validate:"max=64"`
	EarnedAt    time.Time `json:"earnedAt"`
}

// progressRequest is a progression snapshot. Rank is accepted but ignored:
// the server derives it.
type progressRequest struct {
	Rank            string         `json:"rank"`
	XP              int            `json:"xp"`
	Level           int            `json:"level" validate:"gte=0"`
	CompletedLevels []int          `json:"completedLevels" validate:"max=1000,dive,gte=1"`
	Badges          []badgeRequest `json:"badges" validate:"max=100,dive"`
}

func (p progressRequest) snapshot() model.Snapshot {
	badges := make([]model.Badge, len(p.Badges))
	for i, b := range p.Badges {
		badges[i] = model.Badge{ID: b.ID, Name: b.Name, Description: b.Description, Icon: b.Icon, EarnedAt: b.EarnedAt}
	}
	return model.Snapshot{
		XP:              p.XP,
		Level:           p.Level,
		CompletedLevels: append([]int{}, p.CompletedLevels...),
		Badges:          badges,
	}
}

// decodeJSON reads one JSON document into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return validationError(validate.Struct(dst))
}

// validationError converts validator output into sentinels. A missing
// required field wins over other failures.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	var parts []string
	for _, fe := range ves {
		if fe.Tag() == "required" {
			return fmt.Errorf("%w: %s", errs.ErrMissingFields, fe.Namespace())
		}
		parts = append(parts, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(parts, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s long", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
}
