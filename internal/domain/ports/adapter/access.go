package adapter

import "context"

// AccessUpdate tells the access cache whether an executor phone may see orders.
type AccessUpdate struct {
	Phone     string
	IsBlocked bool
}

// AccessRefresher is invoked after every plan status transition.
type AccessRefresher interface {
	Refresh(ctx context.Context, chatID int64, upd AccessUpdate) error
}
