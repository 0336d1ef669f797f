package command

import (
	"fmt"

	"github.com/pixil98/go-service"
	"github.com/pixil98/go-town/internal/driver"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	// Embedded broker carrying event frames to the websocket writers
	broker, err := cfg.Nats.buildNatsServer()
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}

	// Durable post/comment store
	store, err := cfg.Storage.buildStore()
	if err != nil {
		return nil, fmt.Errorf("creating annotation store: %w", err)
	}

	// Process-wide town table
	reg := cfg.Towns.buildRegistry(store)

	// Periodic post expiry sweep
	var driverOpts []driver.TownDriverOpt
	if d := cfg.Towns.sweepInterval(); d > 0 {
		driverOpts = append(driverOpts, driver.WithTickLength(d))
	}
	townDriver := driver.NewTownDriver([]driver.Manager{reg}, driverOpts...)

	return service.WorkerList{
		"nats":     broker,
		"listener": cfg.Listener.buildListener(reg, broker),
		"driver":   townDriver,
	}, nil
}
