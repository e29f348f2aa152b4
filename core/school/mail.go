package school

import (
	"net/mail"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type schoolCreatedData struct {
	Name     string
	School   string
	Plan     PlanType
	URL      string
	MaxUsers int
}

// NewSchoolCreatedMessage returns the welcome email sent to the creator of sch, or nil if they have no email.
func NewSchoolCreatedMessage(usr user.User, sch School, rootDomain string) *core.EmailMessage {
	if usr.Email == "" {
		return nil
	}
	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      sch.Name + " is ready",
		TemplateName: "school_created",
		TemplateData: schoolCreatedData{
			Name:     usr.DisplayName(),
			School:   sch.Name,
			Plan:     sch.PlanType,
			URL:      sch.Host(rootDomain),
			MaxUsers: sch.MaxUsers,
		},
	}
}

// NotifyCreated emails the creator of a freshly provisioned school.
func (svc *Service) NotifyCreated(usr user.User, sch School) {
	if svc.Mailer == nil {
		return
	}
	if msg := NewSchoolCreatedMessage(usr, sch, svc.opts.RootDomain); msg != nil {
		svc.Mailer.SendMessages(msg)
	}
}
