package imap

import (
	"errors"

	retry "github.com/StirlingMarketingGroup/go-retry"
)

// DialRetry is Dial with caller-chosen connect retries. Only connection
// failures are retried; an authentication or configuration error returns
// immediately. Nothing else in the package retries on its own.
func DialRetry(cfg Config, retries int) (d *Dialer, err error) {
	var permanent, last error
	err = retry.Retry(func() error {
		d, last = Dial(cfg)
		if last != nil && !errors.Is(last, ErrConnectionFailed) {
			permanent = last
			return nil
		}
		return last
	}, retries, func(err error) error {
		connectionLogger(-1, "").Warn("failed to connect, retrying shortly", "host", cfg.Host, "error", err)
		return nil
	}, func() error {
		if cfg.Debug {
			connectionLogger(-1, "").Debug("retrying connection now", "host", cfg.Host)
		}
		return nil
	})
	if permanent != nil {
		return nil, permanent
	}
	if err != nil {
		connectionLogger(-1, "").Error("failed to establish connection", "host", cfg.Host, "error", err)
		if last != nil {
			// the final attempt's error keeps ErrConnectionFailed matchable
			return nil, last
		}
		return nil, err
	}
	return d, nil
}
