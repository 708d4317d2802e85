package messaging

import "errors"

const TopicOrderPlaced = "order.placed"

var errPermanent = errors.New("permanent failure")

// Permanent marks a handler error as not worth redelivering. The consumer
// commits the message and moves on instead of stopping.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(errPermanent, err)
}

func IsPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}
