package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-town/internal/listener"
	"github.com/pixil98/go-town/internal/messaging"
	"github.com/pixil98/go-town/internal/registry"
)

type ListenerConfig struct {
	Port uint16 `json:"port"`
}

func (cl *ListenerConfig) validate() error {
	el := errors.NewErrorList()

	if cl.Port == 0 {
		el.Add(fmt.Errorf("port must be set to a positive integer"))
	}

	return el.Err()
}

func (cl *ListenerConfig) buildListener(reg *registry.Registry, broker *messaging.NatsServer) *listener.WsListener {
	return listener.NewWsListener(cl.Port, reg, broker)
}
