package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/speedhud/gohud/internal/domain"
)

// fix-replay feeds a recorded JSONL fix log into a running daemon, either
// by printing it (pipe into whatever you like) or by publishing each fix to
// the MQTT topic a mqttfeed-sourced daemon subscribes to. Delays between
// fixes follow the recorded timestamps, scaled by -pace.

const maxGap = 5 * time.Second

func main() {
	logPath := flag.String("log", "", "JSONL fix log to replay (required)")
	pace := flag.Float64("pace", 1.0, "time multiplier, 2.0 = double speed")
	broker := flag.String("mqtt", "", "MQTT broker (tcp://host:1883); empty prints to stdout")
	topic := flag.String("topic", "gohud/fix", "MQTT topic for fixes")
	loop := flag.Bool("loop", false, "restart the log from the top when it ends")
	flag.Parse()

	if *logPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *pace <= 0 {
		*pace = 1.0
	}

	var publish func(raw []byte)
	if *broker != "" {
		opts := mqtt.NewClientOptions().
			AddBroker(*broker).
			SetClientID(fmt.Sprintf("fix-replay-%d", os.Getpid())).
			SetConnectTimeout(10 * time.Second)
		client := mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			fmt.Fprintf(os.Stderr, "mqtt connect: %v\n", token.Error())
			os.Exit(1)
		}
		defer client.Disconnect(250)
		publish = func(raw []byte) {
			client.Publish(*topic, 0, false, raw)
		}
		fmt.Fprintf(os.Stderr, "publishing to %s %s\n", *broker, *topic)
	} else {
		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()
		publish = func(raw []byte) {
			out.Write(raw)
			out.WriteByte('\n')
			out.Flush()
		}
	}

	for {
		n, err := replayOnce(*logPath, *pace, publish)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "replayed %d fixes\n", n)
		if !*loop {
			return
		}
	}
}

func replayOnce(path string, pace float64, publish func(raw []byte)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var prev time.Time
	lineNo, emitted := 0, 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var fix domain.Fix
		if err := json.Unmarshal(raw, &fix); err != nil {
			fmt.Fprintf(os.Stderr, "line %d unparseable, skipped: %v\n", lineNo, err)
			continue
		}
		if !fix.IsValid() {
			fmt.Fprintf(os.Stderr, "line %d invalid fix, skipped\n", lineNo)
			continue
		}

		if !prev.IsZero() {
			gap := fix.Time.Sub(prev)
			if gap < 0 {
				gap = 0
			}
			if gap > maxGap {
				gap = maxGap
			}
			time.Sleep(time.Duration(float64(gap) / pace))
		}
		prev = fix.Time

		// re-marshal so malformed extra fields in hand-edited logs do not
		// reach the daemon
		out, err := json.Marshal(fix)
		if err != nil {
			continue
		}
		publish(out)
		emitted++
	}
	return emitted, scanner.Err()
}
