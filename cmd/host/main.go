// Command host is the host-node binary: it reads framed lines off the
// UART, re-decodes raw-pulse captures in software, matches decoded
// frames against a rule table, and relays matches to external
// subscribers (spec §2, §4.10).
package main

import (
	"bufio"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/hostdecode"
	"github.com/n8kb/rfbridge/internal/logx"
	"github.com/n8kb/rfbridge/internal/relay"
	"github.com/n8kb/rfbridge/internal/rules"
	"github.com/n8kb/rfbridge/internal/serialio"
)

func main() {
	device := pflag.StringP("uart", "u", "/dev/ttyAMA0", "Serial device the radio node is attached to")
	baud := pflag.IntP("baud", "b", 9600, "Serial port speed")
	readTimeout := pflag.Duration("read-timeout", time.Second, "Per-byte UART read timeout")
	rulesPath := pflag.StringP("rules", "r", "", "Path to the YAML rule table")
	mqttBroker := pflag.String("mqtt-broker", "", "MQTT broker URL (empty disables MQTT relay)")
	mqttTopic := pflag.String("mqtt-topic", "rfbridge/decoded", "MQTT topic for decoded-frame envelopes")
	metricsAddr := pflag.String("metrics-addr", ":9100", "Address to serve /metrics and the websocket hub on")
	help := pflag.Bool("help", false, "Display help text")
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	log := logx.New("host")

	var table *rules.Table
	if *rulesPath != "" {
		var err error
		table, err = rules.Load(*rulesPath)
		if err != nil {
			logx.Event(log, logx.Error, "load rule table failed", "err", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	r := &relay.Relay{Metrics: relay.NewMetrics(reg), Hub: relay.NewHub()}
	if *mqttBroker != "" {
		pub, err := relay.NewMQTTPublisher(relay.MQTTConfig{Broker: *mqttBroker, Topic: *mqttTopic})
		if err != nil {
			logx.Event(log, logx.Error, "connect MQTT broker failed", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		r.MQTT = pub
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/ws", r.Hub)
	go func() {
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logx.Event(log, logx.Error, "metrics/websocket server stopped", "err", err)
		}
	}()

	port, err := serialio.Open(*device, *baud, *readTimeout)
	if err != nil {
		logx.Event(log, logx.Error, "open UART failed", "err", err)
		os.Exit(1)
	}
	defer port.Close()

	logx.Event(log, logx.Info, "host node started", "uart", *device, "metrics", *metricsAddr)
	if err := run(port, table, r); err != nil {
		logx.Event(log, logx.Error, "host node stopped", "err", err)
		os.Exit(1)
	}
}

// byteScanner adapts anything with ReadByte (internal/serialio.Port)
// into a line reader via bufio, the same blocking-stdio-reader model
// spec §5 describes for the host node.
type byteScanner struct{ src interface{ ReadByte() (byte, error) } }

func (b byteScanner) Read(p []byte) (int, error) {
	c, err := b.src.ReadByte()
	if err != nil {
		return 0, err
	}
	p[0] = c
	return 1, nil
}

// run reads decoded/raw-pulse frames two lines at a time, re-decoding
// raw-pulse captures and matching every frame against the rule table
// before relaying it (spec §2, §4.10).
func run(port *serialio.Port, table *rules.Table, r *relay.Relay) error {
	reader := bufio.NewScanner(byteScanner{src: port})
	reader.Buffer(make([]byte, 4096), 4096)

	for {
		if !reader.Scan() {
			return reader.Err()
		}
		header := reader.Text()
		if header == "" {
			continue
		}
		if !reader.Scan() {
			return reader.Err()
		}
		trailer := reader.Text()

		decoded, err := parseOrRedecode(header, trailer)
		if err != nil {
			r.NoteChecksumError()
			continue
		}
		if !decoded.Valid() {
			r.NoteChecksumError()
			continue
		}

		ruleName, action := "", ""
		if table != nil {
			if rule, ok := table.Match(decoded); ok {
				ruleName, action = rule.Name, rule.Action
			}
		}
		_ = r.Publish(decoded, ruleName, action)
	}
}

func parseOrRedecode(header, trailer string) (frame.DecodedFrame, error) {
	typ, _, err := frame.ParseHeaderLine(header)
	if err != nil {
		return frame.DecodedFrame{}, err
	}
	if typ != frame.RawPulses {
		return frame.ParseDecodedFrame(header, trailer)
	}

	line, err := hostdecode.RedecodeLine(header)
	if err != nil {
		return frame.DecodedFrame{}, err
	}
	lines := splitTwoLines(line)
	return frame.ParseDecodedFrame(lines[0], lines[1])
}

func splitTwoLines(s string) [2]string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return [2]string{s[:i], s[i+1:]}
		}
	}
	return [2]string{s, ""}
}
