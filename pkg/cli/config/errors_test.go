package config_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/ackbot/pkg/cli/config"
)

func TestConfigErrors_SentinelIdentification(t *testing.T) {
	sentinels := []error{
		config.ErrConfigNotFound,
		config.ErrInvalidConfig,
		config.ErrMissingRequired,
		config.ErrInvalidBackend,
	}

	for _, sentinel := range sentinels {
		t.Run(sentinel.Error(), func(t *testing.T) {
			wrapped := goerr.Wrap(sentinel, "wrapped", goerr.V(config.OptionKey, "x"))
			gt.Bool(t, errors.Is(wrapped, sentinel)).True()

			for _, other := range sentinels {
				if other == sentinel {
					continue
				}
				gt.Bool(t, errors.Is(wrapped, other)).False()
			}
		})
	}
}
