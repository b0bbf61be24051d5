package domain

// Board template types. The template influences the default column set a new
// board starts with.
const (
	TemplateStandard     = "standard"
	TemplateProfessional = "professional"
	TemplateSmart        = "smart"
	TemplateMinimal      = "minimal"
)

// Board is a shared kanban board. Membership is server-owned; joining happens
// by invite code.
type Board struct {
	ID         string   `json:"id,omitempty"`
	Title      string   `json:"title"`
	Type       string   `json:"type"`
	UserID     string   `json:"user_id,omitempty"`
	InviteCode string   `json:"invite_code,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
	Members    []string `json:"members,omitempty"`
}

// ValidTemplate reports whether t is one of the known board templates.
func ValidTemplate(t string) bool {
	switch t {
	case TemplateStandard, TemplateProfessional, TemplateSmart, TemplateMinimal:
		return true
	}
	return false
}

// TemplateColumns returns the default column set for a board template. Every
// template keeps the terminal Done column last; only Done may be bulk-cleared.
func TemplateColumns(template string) []string {
	switch template {
	case TemplateProfessional:
		return []string{StatusTodo, StatusDoing, "Review", StatusDone}
	case TemplateSmart:
		return []string{StatusTodo, StatusDoing, "Blocked", StatusDone}
	case TemplateMinimal:
		return []string{StatusTodo, StatusDone}
	default:
		return []string{StatusTodo, StatusDoing, StatusDone}
	}
}
