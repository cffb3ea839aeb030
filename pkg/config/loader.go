package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into cfg using `env` / `envDefault` tags.
// Every offending variable is reported, not just the first one.
//
//	type Config struct {
//	    Port    int           `env:"CART_HTTP_PORT" envDefault:"8080"`
//	    Timeout time.Duration `env:"CART_OPERATION_TIMEOUT" envDefault:"10s"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		var agg env.AggregateError
		if errors.As(err, &agg) {
			msgs := make([]string, 0, len(agg.Errors))
			for _, e := range agg.Errors {
				msgs = append(msgs, e.Error())
			}
			return fmt.Errorf("parse config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
