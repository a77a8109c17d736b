package external

import (
	"context"
	"fmt"
	"strings"

	"coursepulse/internal/types"
)

// ModuleContentSource fetches the intro content of an activity module,
// appended to the body when a dynamic module is configured.
type ModuleContentSource interface {
	ModuleIntro(ctx context.Context, moduleID int64) (string, error)
}

// TemplateRenderer implements types.ContentRenderer by substituting
// placeholders into the configured subject and body sections.
//
// Supported placeholders: {{user_fullname}}, {{user_email}},
// {{course_fullname}}.
type TemplateRenderer struct {
	modules ModuleContentSource
	logger  types.Logger
}

func NewTemplateRenderer(modules ModuleContentSource, logger types.Logger) *TemplateRenderer {
	return &TemplateRenderer{modules: modules, logger: logger}
}

// Render assembles the final subject and HTML body from the header, static
// and footer sections, substituting placeholders in each. A configured
// dynamic module's intro is appended between the static content and the
// footer; a failed intro lookup degrades to omitting it rather than
// failing the send.
func (r *TemplateRenderer) Render(ctx context.Context, cfg types.NotificationConfig, user types.Recipient, course types.Course) (string, string, error) {
	if cfg.Subject == "" {
		return "", "", types.NewAppError(types.ErrCodeValidationMissingField,
			"notification subject is empty", nil)
	}

	replacer := strings.NewReplacer(
		"{{user_fullname}}", user.FullName,
		"{{user_email}}", user.Email,
		"{{course_fullname}}", course.FullName,
	)

	subject := replacer.Replace(cfg.Subject)

	var body strings.Builder
	for _, section := range []string{cfg.HeaderContent, cfg.StaticContent} {
		if section != "" {
			body.WriteString(replacer.Replace(section))
		}
	}

	if cfg.DynamicModuleID != 0 && r.modules != nil {
		intro, err := r.modules.ModuleIntro(ctx, cfg.DynamicModuleID)
		if err != nil {
			r.logger.Warn("failed to load dynamic module content, omitting",
				"module_id", cfg.DynamicModuleID,
				"error", err,
			)
		} else if intro != "" {
			body.WriteString(fmt.Sprintf("<div class=\"module-intro\">%s</div>", intro))
		}
	}

	if cfg.FooterContent != "" {
		body.WriteString(replacer.Replace(cfg.FooterContent))
	}

	return subject, body.String(), nil
}

var _ types.ContentRenderer = (*TemplateRenderer)(nil)
