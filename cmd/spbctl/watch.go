package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RoGogDBD/sparkplug-b/internal/codec"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
	"github.com/RoGogDBD/sparkplug-b/internal/transport"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		broker string
		group  string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print decoded Sparkplug B traffic from the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			mq := transport.NewMQTT(transport.MQTTOptions{
				Broker:   broker,
				ClientID: "spbctl-" + uuid.NewString(),
			}, nil)
			return watch(ctx, mq, watchFilters(group), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&broker, "broker", "b", "tcp://localhost:1883", "MQTT broker URL")
	cmd.Flags().StringVarP(&group, "group", "g", "", "Only show this group (STATE is always shown)")
	return cmd
}

// watchFilters возвращает фильтры подписки для группы; пустая группа — всё пространство имён.
func watchFilters(group string) []string {
	if group == "" {
		return []string{topic.Namespace + "/#"}
	}
	return []string{
		topic.Namespace + "/" + group + "/#",
		topic.BuildHostStatusTopic(topic.Namespace, "+"),
	}
}

// watch подключается к брокеру и печатает входящие сообщения до отмены ctx или потери соединения.
func watch(ctx context.Context, t transport.Transport, filters []string, out io.Writer) error {
	q := transport.NewQueue()
	if err := t.Connect(nil, q); err != nil {
		return err
	}
	defer t.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.Ready():
		}
		for _, ev := range q.Drain() {
			switch ev.Kind {
			case transport.EventConnected:
				if err := t.Subscribe(filters, transport.AtMostOnce); err != nil {
					return err
				}
			case transport.EventSubscribed:
				if ev.Err != nil {
					return fmt.Errorf("subscribe: %w", ev.Err)
				}
				fmt.Fprintf(out, "watching %s\n", strings.Join(ev.Topics, ", "))
			case transport.EventMessage:
				fmt.Fprintln(out, formatMessage(ev.Topic, ev.Payload))
			case transport.EventConnectionLost:
				return fmt.Errorf("connection lost: %w", ev.Err)
			}
		}
	}
}

// formatMessage декодирует сообщение Sparkplug B в одну строку.
func formatMessage(t string, payload []byte) string {
	if hostID, err := topic.ParseHostStatusTopic(t); err == nil {
		s, err := codec.DecodeHostState(payload)
		if err != nil {
			return fmt.Sprintf("STATE %s: %v", hostID, err)
		}
		return fmt.Sprintf("STATE %s online=%t timestamp=%d", hostID, s.Online, s.Timestamp)
	}

	parsed, err := topic.ParseTopic(t)
	if err != nil {
		return fmt.Sprintf("%s: %v", t, err)
	}
	p, err := codec.DecodePayload(payload)
	if err != nil {
		return fmt.Sprintf("%s %s: %v", parsed.Type, parsed.Identity(), err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", parsed.Type, parsed.Identity())
	if p.HasSeq {
		fmt.Fprintf(&b, " seq=%d", p.Seq)
	}
	for i := range p.Metrics {
		m := &p.Metrics[i]
		name := m.Name
		if name == "" && m.HasAlias {
			name = fmt.Sprintf("#%d", m.Alias)
		}
		fmt.Fprintf(&b, " %s=%s", name, m.ValueString())
	}
	return b.String()
}
