package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Recipient is one certificate's worth of data, supplied by the course system
// for each generation run.
type Recipient struct {
	Name     string            `json:"name" yaml:"name"`
	Email    string            `json:"email,omitempty" yaml:"email,omitempty"`
	Team     string            `json:"team,omitempty" yaml:"team,omitempty"`
	Category string            `json:"category,omitempty" yaml:"category,omitempty"`
	Course   string            `json:"course,omitempty" yaml:"course,omitempty"`
	Message  string            `json:"message,omitempty" yaml:"message,omitempty"`
	Date     string            `json:"date,omitempty" yaml:"date,omitempty"`
	Folio    string            `json:"folio,omitempty" yaml:"folio,omitempty"`
	Role     string            `json:"role,omitempty" yaml:"role,omitempty"`
	Extra    map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Course is the course-level data shared by every recipient of a run.
type Course struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Date     string `json:"date,omitempty" yaml:"date,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Team is the group a recipient registered with, if any.
type Team struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Context is the surrounding data a field may fall back to.
type Context struct {
	Course *Course
	Team   *Team
}

// Validate reports malformed recipient data. A certificate without a name
// cannot be issued, and text that is not valid UTF-8 cannot be encoded.
func (r Recipient) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRecipient)
	}
	for _, v := range []string{r.Name, r.Email, r.Team, r.Category, r.Course, r.Message, r.Date, r.Folio, r.Role} {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidRecipient)
		}
	}
	for k, v := range r.Extra {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: extra %q is not valid UTF-8", ErrInvalidRecipient, k)
		}
	}
	return nil
}

// property returns a recipient attribute by its JSON name, then by Extra.
func (r *Recipient) property(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "name":
		return r.Name, r.Name != ""
	case "email":
		return r.Email, r.Email != ""
	case "team":
		return r.Team, r.Team != ""
	case "category":
		return r.Category, r.Category != ""
	case "course":
		return r.Course, r.Course != ""
	case "message":
		return r.Message, r.Message != ""
	case "date":
		return r.Date, r.Date != ""
	case "folio":
		return r.Folio, r.Folio != ""
	case "role":
		return r.Role, r.Role != ""
	}
	if v, ok := r.Extra[name]; ok && v != "" {
		return v, true
	}
	for k, v := range r.Extra {
		if strings.EqualFold(k, name) && v != "" {
			return v, true
		}
	}
	return "", false
}

type resolveFunc func(r *Recipient, course *Course, team *Team) string

var resolvers = map[FieldKey]resolveFunc{
	KeyNombre: func(r *Recipient, _ *Course, _ *Team) string { return r.Name },
	KeyCorreo: func(r *Recipient, _ *Course, _ *Team) string { return r.Email },
	KeyFolio:  func(r *Recipient, _ *Course, _ *Team) string { return r.Folio },
	KeyCurso: func(r *Recipient, c *Course, _ *Team) string {
		return first(r.Course, c.Name)
	},
	KeyFecha: func(r *Recipient, c *Course, _ *Team) string {
		return first(r.Date, c.Date)
	},
	KeyEquipo: func(r *Recipient, _ *Course, t *Team) string {
		return first(r.Team, t.Name)
	},
	KeyCategoria: func(r *Recipient, c *Course, t *Team) string {
		return first(r.Category, t.Category, c.Category)
	},
	KeyMensaje: func(r *Recipient, c *Course, t *Team) string {
		return first(r.Message, t.Message, c.Message)
	},
}

// Lookup resolves key strictly, returning ErrFieldResolutionMiss when no data
// backs the field. Nil recipient or context are treated as empty.
func Lookup(key string, r *Recipient, ctx *Context) (string, error) {
	if r == nil {
		r = &Recipient{}
	}
	course, team := &Course{}, &Team{}
	if ctx != nil {
		if ctx.Course != nil {
			course = ctx.Course
		}
		if ctx.Team != nil {
			team = ctx.Team
		}
	}

	var v string
	if fn, ok := resolvers[ParseFieldKey(key)]; ok {
		v = fn(r, course, team)
	} else {
		v, _ = r.property(key)
	}
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrFieldResolutionMiss, key)
	}
	return v, nil
}

// Resolve is the total form of Lookup: any miss becomes an empty string so a
// missing value renders as a blank slot.
func Resolve(key string, r *Recipient, ctx *Context) string {
	v, err := Lookup(key, r, ctx)
	if err != nil {
		return ""
	}
	return v
}

func first(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
