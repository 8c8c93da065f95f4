package main

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"snaptrigger/internal/config"
	ingestmqtt "snaptrigger/internal/ingester/mqtt"
	"snaptrigger/internal/notifier"
	"snaptrigger/internal/source"
)

func newSourcesCmd(opts *options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.load(false)
			if err != nil {
				return err
			}
			reg, err := env.cfg.Registry()
			if err != nil {
				return err
			}

			p := newPrinter(format, cmd.OutOrStdout())
			type row struct {
				Name    string `json:"name"`
				Kind    string `json:"kind"`
				Address string `json:"address"`
			}
			rows := make([]row, 0, reg.Len())
			for _, s := range reg.All() {
				rows = append(rows, row{Name: s.Name, Kind: string(s.Kind), Address: source.RedactAddress(s.Address)})
			}
			if p.format == "json" {
				return p.json(rows)
			}
			table := make([][]string, len(rows))
			for i, r := range rows {
				table[i] = []string{r.Name, r.Kind, r.Address}
			}
			p.table([]string{"NAME", "KIND", "ADDRESS"}, table)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table or json")
	return cmd
}

func newCaptureCmd(opts *options) *cobra.Command {
	var (
		outPath string
		notify  bool
	)
	cmd := &cobra.Command{
		Use:   "capture <source>",
		Short: "Capture one frame now, bypassing triggers and rate limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.load(false)
			if err != nil {
				return err
			}
			reg, err := env.cfg.Registry()
			if err != nil {
				return err
			}
			src, err := reg.Lookup(args[0])
			if err != nil {
				return err
			}

			ctx := contextOrBackground(cmd)
			pool := buildPool(env.cfg.Capture, env.logger)
			res, err := pool.Capture(ctx, src)
			if err != nil {
				return err
			}

			p := newPrinter("table", cmd.OutOrStdout())
			pairs := [][2]string{
				{"source", res.Source},
				{"result", res.Outcome()},
				{"duration", res.Duration.Round(time.Millisecond).String()},
			}

			if notify {
				sink, err := buildSink(env.cfg.Notify, env.logger)
				if err != nil {
					return err
				}
				n := notifier.New(notifier.Config{Sink: sink, Timeout: env.cfg.Notify.Timeout, Logger: env.logger})
				if err := n.Deliver(ctx, res); err != nil {
					return err
				}
				pairs = append(pairs, [2]string{"notified", sink.Name()})
			}

			if !res.OK() {
				p.kv(append(pairs, [2]string{"error", res.Err.Error()}))
				return res.Err
			}

			outPath = cmp.Or(outPath, defaultCapturePath(src.Name, res.Started))
			if err := os.WriteFile(outPath, res.Image, 0o600); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
			p.kv(append(pairs,
				[2]string{"bytes", strconv.Itoa(len(res.Image))},
				[2]string{"file", outPath},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default: <source>-<time>.jpg)")
	cmd.Flags().BoolVar(&notify, "notify", false, "also deliver the result through the configured sink")
	return cmd
}

func defaultCapturePath(name string, at time.Time) string {
	return filepath.Clean(name + "-" + at.Format("20060102-150405") + ".jpg")
}

func newTriggerCmd(opts *options) *cobra.Command {
	var (
		broker string
		topic  string
		wait   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "trigger <source>",
		Short: "Publish a capture trigger to the MQTT broker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.load(false)
			if err != nil {
				return err
			}

			params := mqttParams(env.cfg)
			broker = cmp.Or(broker, params["broker"])
			topic = cmp.Or(topic, params["topic"], ingestmqtt.DefaultTopic)
			if broker == "" {
				return errors.New("no broker: pass --broker or configure an mqtt ingester")
			}

			copts := paho.NewClientOptions().
				AddBroker(broker).
				SetClientID(ingestmqtt.ClientID()).
				SetConnectTimeout(wait)
			if u := params["username"]; u != "" {
				copts.SetUsername(u)
				copts.SetPassword(params["password"])
			}
			client := paho.NewClient(copts)
			if tok := client.Connect(); !tok.WaitTimeout(wait) || tok.Error() != nil {
				return fmt.Errorf("connect %s: %w", broker, cmp.Or(tok.Error(), errors.New("timed out")))
			}
			defer client.Disconnect(250)

			tok := client.Publish(topic, 0, false, args[0])
			if !tok.WaitTimeout(wait) {
				return fmt.Errorf("publish to %s: timed out", topic)
			}
			if err := tok.Error(); err != nil {
				return fmt.Errorf("publish to %s: %w", topic, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %q to %s\n", args[0], topic)
			return nil
		},
	}
	cmd.Flags().StringVar(&broker, "broker", "", "broker URL (default: first mqtt ingester)")
	cmd.Flags().StringVar(&topic, "topic", "", "topic (default: first mqtt ingester's topic)")
	cmd.Flags().DurationVar(&wait, "timeout", 10*time.Second, "connect and publish timeout")
	return cmd
}

// mqttParams returns the params of the first mqtt ingester, or nil.
func mqttParams(cfg *config.Config) map[string]string {
	for _, ic := range cfg.Ingesters {
		if ic.Type == "mqtt" {
			return ic.Params
		}
	}
	return nil
}
