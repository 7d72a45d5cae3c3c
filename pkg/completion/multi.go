package completion

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// MultiComplete fans the same prompt out to every client concurrently. Each
// client keeps its own retry sequence, so one backend backing off does not
// delay the others. Results are returned in client order; a failed backend
// leaves a nil entry and contributes to the joined error.
func MultiComplete(ctx context.Context, clients []*Client, prompt, system string) ([]*Result, error) {
	results := make([]*Result, len(clients))
	errs := make([]error, len(clients))

	var g errgroup.Group
	for i, client := range clients {
		i, client := i, client
		g.Go(func() error {
			res, err := client.Complete(ctx, prompt, system)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
