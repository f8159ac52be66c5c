package system

import (
	"context"
	"errors"
	"time"
)

// Close releases resources held by the services. Safe on a partially built
// instance.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}

	var errs []error

	if s.Browser != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.Browser.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
		s.Browser = nil
	}

	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, err)
		}
		s.Store = nil
	}

	if s.Tracker != nil {
		if err := s.Tracker.Save(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
