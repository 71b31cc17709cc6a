package handler_test

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/handler"
	"github.com/RoGogDBD/sparkplug-b/internal/host"
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/RoGogDBD/sparkplug-b/internal/repository"
	"github.com/RoGogDBD/sparkplug-b/internal/transport/transporttest"
)

// ExampleHandler_HandleUpdate демонстрирует запись значения метрики консюмера.
//
// Значение разбирается по типу метрики и применяется в такте хоста; команда NCMD
// уйдёт производителю при следующей агрегации.
func ExampleHandler_HandleUpdate() {
	b := transporttest.NewBroker()
	h, _ := host.NewHostAgent(host.Config{HostID: "scada"}, b.Client("host"))
	c, _ := h.AddNode("Plant", "Boiler")
	_ = c.Registry().AddMetric("setpoint", models.Double, repository.WithValue(60.0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx, time.Second) }()

	hd := handler.NewHandler(h, nil, nil)
	req := httptest.NewRequest("POST", "/update", strings.NewReader(`{"producer":"Plant/Boiler","name":"setpoint","value":"65.5"}`))
	w := httptest.NewRecorder()
	hd.HandleUpdate(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	m, _ := c.Registry().GetMetric("setpoint")
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Value: %s\n", m.ValueString())
	// Output:
	// Status: 200 OK
	// Value: 65.5
}

// ExampleHandler_HandleGetMetricValue демонстрирует чтение значения метрики консюмера.
func ExampleHandler_HandleGetMetricValue() {
	b := transporttest.NewBroker()
	h, _ := host.NewHostAgent(host.Config{HostID: "scada"}, b.Client("host"))
	c, _ := h.AddNode("Plant", "Boiler")
	_ = c.Registry().AddMetric("pressure", models.Float, repository.WithValue(float32(1.5)))

	hd := handler.NewHandler(h, nil, nil)
	req := httptest.NewRequest("GET", "/value?producer=Plant/Boiler&name=pressure", nil)
	w := httptest.NewRecorder()
	hd.HandleGetMetricValue(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Value: %s\n", body)
	// Output:
	// Status: 200 OK
	// Value: 1.5
}
