package application

import "context"

type Injector interface {
	Inject(ctx context.Context, text string) error
}
