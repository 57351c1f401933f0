package fixture

import (
	"context"
	stderrors "errors"
	"fmt"
)

var (
	errNoYield    = stderrors.New("producer returned without yielding a value")
	errYieldTwice = stderrors.New("producer yielded more than once")
)

type producerSetup struct {
	value any
	err   error
}

// startProducer runs p on its own goroutine until it yields. The returned
// resume function hands the producer its teardown context, lets it run to
// completion and reports its result.
func startProducer(ctx context.Context, p Producer, req *Request) (any, func(context.Context) error, error) {
	setupCh := make(chan producerSetup, 1)
	resumeCh := make(chan context.Context, 1)
	doneCh := make(chan error, 1)

	go func() {
		yielded := false
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
			if !yielded {
				if err == nil {
					err = errNoYield
				}
				setupCh <- producerSetup{err: err}
				return
			}
			doneCh <- err
		}()

		err = p(ctx, req, func(value any) context.Context {
			if yielded {
				panic(errYieldTwice)
			}
			yielded = true
			setupCh <- producerSetup{value: value}
			return <-resumeCh
		})
	}()

	select {
	case s := <-setupCh:
		if s.err != nil {
			return nil, nil, s.err
		}
		resume := func(tctx context.Context) error {
			resumeCh <- tctx
			select {
			case err := <-doneCh:
				return err
			case <-tctx.Done():
				return fmt.Errorf("producer teardown did not finish: %w", tctx.Err())
			}
		}
		return s.value, resume, nil

	case <-ctx.Done():
		// Setup was abandoned. If the producer still yields, resume it
		// straight away so its teardown phase runs.
		go func() {
			if s := <-setupCh; s.err == nil {
				resumeCh <- context.WithoutCancel(ctx)
				<-doneCh
			}
		}()
		return nil, nil, ctx.Err()
	}
}
