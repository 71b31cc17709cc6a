package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/handler"
	"github.com/RoGogDBD/sparkplug-b/internal/host"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

// apiClient — клиент HTTP API хоста.
type apiClient struct {
	client *resty.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Second),
	}
}

func (c *apiClient) consumers() ([]host.ConsumerStatus, error) {
	var out []host.ConsumerStatus
	resp, err := c.client.R().SetResult(&out).Get("/api/consumers")
	if err := checkResponse(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) metrics(producer string) ([]handler.MetricView, error) {
	var out []handler.MetricView
	resp, err := c.client.R().
		SetQueryParam("producer", producer).
		SetResult(&out).
		Get("/api/metrics")
	if err := checkResponse(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) set(producer, name, value string) (handler.MetricView, error) {
	var out handler.MetricView
	resp, err := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(handler.UpdateRequest{Producer: producer, Name: name, Value: value}).
		SetResult(&out).
		Post("/update")
	if err := checkResponse(resp, err, http.StatusOK); err != nil {
		return handler.MetricView{}, err
	}
	return out, nil
}

func (c *apiClient) rebirth(producer string) error {
	resp, err := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(handler.RebirthRequest{Producer: producer}).
		Post("/rebirth")
	return checkResponse(resp, err, http.StatusAccepted)
}

func checkResponse(resp *resty.Response, err error, want int) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != want {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func newConsumersCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "consumers",
		Short: "List consumers known to the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := api().consumers()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCER\tONLINE\tBDSEQ\tSEQ\tMETRICS")
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\n", c.ID, c.Online, c.BdSeq, c.LastSeq, c.Metrics)
			}
			return w.Flush()
		},
	}
}

func newMetricsCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <group/node[/device]>",
		Short: "List metrics of a consumer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := api().metrics(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tALIAS\tTYPE\tVALUE")
			for _, m := range list {
				alias := "-"
				if m.Alias != nil {
					alias = fmt.Sprint(*m.Alias)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name, alias, m.Datatype, m.Value)
			}
			return w.Flush()
		},
	}
}

func newSetCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "set <group/node[/device]> <metric> <value>",
		Short: "Queue a command value for a consumer metric",
		Long: `Set writes the value into the host's copy of the metric. The host sends
the change to the producer with its next command aggregation.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := api().set(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", m.Name, m.Value, m.Datatype)
			return nil
		},
	}
}

func newRebirthCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "rebirth <group/node[/device]>",
		Short: "Request a new birth from a producer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api().rebirth(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rebirth requested for %s\n", args[0])
			return nil
		},
	}
}
