package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// UncategorizedName labels expenses whose category is missing or no longer resolves.
	UncategorizedName = "Uncategorized"
	// DefaultIcon is shown for uncategorized expenses and new categories without an icon.
	DefaultIcon = "📁"

	MaxDescriptionLength  = 200
	MaxCategoryNameLength = 50
)

type (
	Money struct {
		Cents int64
	}

	// TimeRange is an inclusive [Start, End] interval.
	TimeRange struct {
		Start time.Time
		End   time.Time
	}

	Category struct {
		ID        string
		OwnerID   string
		Name      string
		Icon      string
		Color     string
		IsDefault bool
		Limit     *Money // nil means unlimited
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// CategorySnapshot is the category as joined onto an expense at read time.
	CategorySnapshot struct {
		ID    string
		Name  string
		Icon  string
		Color string
		Limit *Money
	}

	Expense struct {
		ID          string
		OwnerID     string
		Amount      Money
		Description string
		CategoryID  *string
		CreatedAt   time.Time
		Metadata    map[string]any
		Category    *CategorySnapshot // nil when uncategorized or unresolvable
	}

	NewExpense struct {
		OwnerID     string
		Amount      Money
		Description string
		CategoryID  *string
		Metadata    map[string]any
		CreatedAt   time.Time
	}

	NewCategory struct {
		OwnerID   string
		Name      string
		Icon      string
		Color     string
		IsDefault bool
		Limit     *Money
	}
)

var (
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrCategoryRequired   = errors.New("no category selected")
	ErrInvalidLimit       = errors.New("invalid limit")
	ErrEmptyName          = errors.New("empty category name")
	ErrNameTooLong        = errors.New("category name too long (max 50 characters)")
	ErrInvalidIcon        = errors.New("invalid icon")
	ErrInvalidColor       = errors.New("invalid color")
	ErrMissingOwner       = errors.New("missing owner")
	ErrNotFound           = errors.New("not found")
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// IsValidationError reports whether err was raised by input validation.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidMonth, ErrInvalidAmount, ErrEmptyDescription, ErrDescriptionTooLong,
		ErrCategoryRequired, ErrInvalidLimit, ErrEmptyName, ErrNameTooLong,
		ErrInvalidIcon, ErrInvalidColor,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

// Contains reports whether t lies within the inclusive range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Snapshot returns the read-time projection of c.
func (c Category) Snapshot() CategorySnapshot {
	return CategorySnapshot{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color, Limit: c.Limit}
}

// Normalize trims text fields and fills in defaults.
func (e NewExpense) Normalize() NewExpense {
	e.Description = strings.TrimSpace(e.Description)
	if e.CategoryID != nil {
		id := strings.TrimSpace(*e.CategoryID)
		if id == "" {
			e.CategoryID = nil
		} else {
			e.CategoryID = &id
		}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return e
}

func (e NewExpense) Validate() error {
	if e.OwnerID == "" {
		return ErrMissingOwner
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// Normalize trims the name and fills in the default icon.
func (c NewCategory) Normalize() NewCategory {
	c.Name = strings.TrimSpace(c.Name)
	c.Icon = strings.TrimSpace(c.Icon)
	c.Color = strings.TrimSpace(c.Color)
	if c.Icon == "" {
		c.Icon = DefaultIcon
	}
	return c
}

func (c NewCategory) Validate() error {
	if c.OwnerID == "" {
		return ErrMissingOwner
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxCategoryNameLength {
		return ErrNameTooLong
	}
	if err := ValidateIcon(c.Icon); err != nil {
		return err
	}
	if !IsValidColor(c.Color) {
		return ErrInvalidColor
	}
	return ValidateLimit(c.Limit)
}

// ValidateLimit accepts nil (unlimited) or a strictly positive amount.
func ValidateLimit(limit *Money) error {
	if limit != nil && limit.Cents <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

// ValidateIcon accepts a short icon name or a single emoji glyph.
func ValidateIcon(icon string) error {
	icon = strings.TrimSpace(icon)
	if icon == "" || utf8.RuneCountInString(icon) > 32 || strings.ContainsAny(icon, " \t\n") {
		return ErrInvalidIcon
	}
	return nil
}

// IsValidColor reports whether s is a #RRGGBB hex color.
func IsValidColor(s string) bool {
	return colorPattern.MatchString(s)
}
