package notify

import (
	"context"

	"github.com/gen2brain/beeep"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Desktop shows error notifications as native desktop notifications.
// Warnings and info messages only go to the other targets.
type Desktop struct {
	// Send displays a notification. Defaults to beeep.Notify.
	Send func(title, message, icon string) error
}

func (d Desktop) Notify(_ context.Context, n Notification) error {
	if n.Level != LevelError {
		return nil
	}
	send := d.Send
	if send == nil {
		send = beeep.Notify
	}

	message := n.Message
	if where := n.Where(); where != "" {
		message = where + "\n" + message
	}
	if err := send(n.Title, message, ""); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to show desktop notification").Build()
	}
	return nil
}
