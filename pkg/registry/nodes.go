// Package registry provides node handler registration for the registry system.
package registry

import (
	"github.com/orchestrix/orchestrix/pkg/expression"
	"github.com/orchestrix/orchestrix/pkg/nodes/aichat"
	"github.com/orchestrix/orchestrix/pkg/nodes/apicall"
	"github.com/orchestrix/orchestrix/pkg/nodes/condition"
	"github.com/orchestrix/orchestrix/pkg/nodes/email"
	"github.com/orchestrix/orchestrix/pkg/nodes/trigger"
	"github.com/orchestrix/orchestrix/pkg/notification"
)

// RegisterDefaultNodes registers all built-in node handler factories.
func (r *Registry) RegisterDefaultNodes(evaluator *expression.Evaluator, mailer notification.Mailer) {
	r.Register(trigger.NewTriggerNodeFactory())
	r.Register(condition.NewConditionNodeFactory(evaluator))
	r.Register(apicall.NewAPICallNodeFactory())
	r.Register(email.NewEmailNodeFactory(mailer))
	r.Register(aichat.NewChatNodeFactory())
	r.Register(aichat.NewCompletionNodeFactory())
}
