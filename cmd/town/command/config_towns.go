package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-town/internal/annotation"
	"github.com/pixil98/go-town/internal/registry"
)

type TownsConfig struct {
	Capacity      int    `json:"capacity"`
	PostTTL       string `json:"post_ttl"`
	TTLExtension  string `json:"ttl_extension"`
	SweepInterval string `json:"sweep_interval"`
	StoreTimeout  string `json:"store_timeout"`
}

func (c *TownsConfig) validate() error {
	el := errors.NewErrorList()

	if c.Capacity < 0 {
		el.Add(fmt.Errorf("capacity must not be negative"))
	}
	for name, raw := range map[string]string{
		"post_ttl":       c.PostTTL,
		"ttl_extension":  c.TTLExtension,
		"sweep_interval": c.SweepInterval,
		"store_timeout":  c.StoreTimeout,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			el.Add(fmt.Errorf("parsing %s: %w", name, err))
		}
	}

	return el.Err()
}

func (c *TownsConfig) buildRegistry(store annotation.Store) *registry.Registry {
	var opts []annotation.CoordinatorOpt
	if d, err := time.ParseDuration(c.PostTTL); err == nil && c.PostTTL != "" {
		opts = append(opts, annotation.WithPostTTL(d))
	}
	if d, err := time.ParseDuration(c.TTLExtension); err == nil && c.TTLExtension != "" {
		opts = append(opts, annotation.WithTTLExtension(d))
	}
	if d, err := time.ParseDuration(c.StoreTimeout); err == nil && c.StoreTimeout != "" {
		opts = append(opts, annotation.WithStoreTimeout(d))
	}

	return registry.NewRegistry(store, c.Capacity, opts...)
}

func (c *TownsConfig) sweepInterval() time.Duration {
	if c.SweepInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		return 0
	}
	return d
}
