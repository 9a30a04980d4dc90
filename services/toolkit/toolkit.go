// Package toolkit adapts the project's external-service clients into
// tools the graph engine can dispatch by name. Each tool follows the
// registry.Func contract: it reads its inputs out of the shared state
// map and writes its result back in, the same state → state shape
// every tool in the system uses (spec.md §4.1, §9).
package toolkit

import (
	"context"
	"fmt"

	"github.com/flowlattice/workflow-engine/pkg/clients/email"
	"github.com/flowlattice/workflow-engine/pkg/clients/weather"
	"github.com/flowlattice/workflow-engine/services/registry"
)

// Register wires the weather and email tools into reg. Production
// wires these into the process-wide registry at startup; tests
// construct their own registry and call Register selectively (or
// register hand-rolled stand-ins) to avoid real network calls.
func Register(reg *registry.Registry, weatherClient weather.Client, emailClient email.Client) error {
	if err := reg.Register("weather.get_temperature", getTemperatureTool(weatherClient), false,
		registry.WithAsync(),
		registry.WithDoc("Reads state['lat'] and state['lon'], writes state['temperature'] in Celsius.")); err != nil {
		return err
	}

	if err := reg.Register("email.send", sendEmailTool(emailClient), false,
		registry.WithDoc("Reads state['to'], state['from'], state['subject'], state['body']; writes state['email_sent'] and state['email_status'].")); err != nil {
		return err
	}

	return nil
}

func getTemperatureTool(client weather.Client) registry.Func {
	return func(ctx context.Context, state map[string]any) (map[string]any, error) {
		lat, ok := state["lat"].(float64)
		if !ok {
			return nil, fmt.Errorf("weather.get_temperature: state['lat'] must be a number")
		}
		lon, ok := state["lon"].(float64)
		if !ok {
			return nil, fmt.Errorf("weather.get_temperature: state['lon'] must be a number")
		}

		temp, err := client.GetTemperature(ctx, lat, lon)
		if err != nil {
			return nil, fmt.Errorf("weather.get_temperature: %w", err)
		}

		state["temperature"] = temp
		return state, nil
	}
}

func sendEmailTool(client email.Client) registry.Func {
	return func(ctx context.Context, state map[string]any) (map[string]any, error) {
		msg := email.Message{
			To:      stringField(state, "to"),
			From:    stringField(state, "from"),
			Subject: stringField(state, "subject"),
			Body:    stringField(state, "body"),
		}
		if msg.To == "" {
			return nil, fmt.Errorf("email.send: state['to'] is required")
		}

		result, err := client.Send(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("email.send: %w", err)
		}

		state["email_sent"] = result.Sent
		state["email_status"] = result.DeliveryStatus
		return state, nil
	}
}

func stringField(state map[string]any, key string) string {
	v, _ := state[key].(string)
	return v
}
