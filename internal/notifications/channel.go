package notifications

import "context"

// ChannelType identifies a delivery channel.
type ChannelType string

// Channel types.
const (
	ChannelTypeEmail      ChannelType = "email"
	ChannelTypeMattermost ChannelType = "mattermost"
)

// IsValid reports whether the channel type is known.
func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelTypeEmail, ChannelTypeMattermost:
		return true
	}
	return false
}

// Notification is a rendered message ready for delivery.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers notifications over a single channel type.
type Sender interface {
	Type() ChannelType
	Send(ctx context.Context, notification Notification) error
}
