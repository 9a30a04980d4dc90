package toolkit

import (
	"context"
	"errors"
	"testing"

	"github.com/flowlattice/workflow-engine/pkg/clients/email"
	"github.com/flowlattice/workflow-engine/services/registry"
)

type stubWeather struct {
	temp float64
	err  error
}

func (s stubWeather) GetTemperature(ctx context.Context, lat, lon float64) (float64, error) {
	return s.temp, s.err
}

type stubEmail struct {
	result *email.Result
	err    error
}

func (s stubEmail) Send(ctx context.Context, msg email.Message) (*email.Result, error) {
	return s.result, s.err
}

func TestRegister_WiresBothTools(t *testing.T) {
	reg := registry.New()
	if err := Register(reg, stubWeather{temp: 21}, stubEmail{result: &email.Result{Sent: true, DeliveryStatus: "sent"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.Exists("weather.get_temperature") {
		t.Fatal("expected weather.get_temperature to be registered")
	}
	if !reg.Exists("email.send") {
		t.Fatal("expected email.send to be registered")
	}
}

func TestGetTemperatureTool(t *testing.T) {
	reg := registry.New()
	if err := Register(reg, stubWeather{temp: 21.5}, stubEmail{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	fn, err := reg.Get("weather.get_temperature")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	out, err := fn(context.Background(), map[string]any{"lat": 10.0, "lon": 20.0})
	if err != nil {
		t.Fatalf("tool call: %v", err)
	}
	if out["temperature"] != 21.5 {
		t.Fatalf("temperature = %v, want 21.5", out["temperature"])
	}
}

func TestGetTemperatureTool_MissingLat(t *testing.T) {
	reg := registry.New()
	Register(reg, stubWeather{}, stubEmail{})
	fn, _ := reg.Get("weather.get_temperature")

	if _, err := fn(context.Background(), map[string]any{"lon": 20.0}); err == nil {
		t.Fatal("expected error when lat is missing")
	}
}

func TestGetTemperatureTool_ClientError(t *testing.T) {
	reg := registry.New()
	Register(reg, stubWeather{err: errors.New("upstream down")}, stubEmail{})
	fn, _ := reg.Get("weather.get_temperature")

	if _, err := fn(context.Background(), map[string]any{"lat": 1.0, "lon": 2.0}); err == nil {
		t.Fatal("expected error to propagate from client")
	}
}

func TestSendEmailTool(t *testing.T) {
	reg := registry.New()
	Register(reg, stubWeather{}, stubEmail{result: &email.Result{Sent: true, DeliveryStatus: "sent"}})
	fn, _ := reg.Get("email.send")

	out, err := fn(context.Background(), map[string]any{
		"to": "ops@example.com", "from": "alerts@example.com", "subject": "hot", "body": "it's hot",
	})
	if err != nil {
		t.Fatalf("tool call: %v", err)
	}
	if out["email_sent"] != true {
		t.Fatal("expected email_sent=true")
	}
	if out["email_status"] != "sent" {
		t.Fatalf("email_status = %v, want sent", out["email_status"])
	}
}

func TestSendEmailTool_MissingTo(t *testing.T) {
	reg := registry.New()
	Register(reg, stubWeather{}, stubEmail{result: &email.Result{}})
	fn, _ := reg.Get("email.send")

	if _, err := fn(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error when 'to' is missing")
	}
}
