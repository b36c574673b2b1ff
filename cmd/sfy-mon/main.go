package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/buoy.go/pkg/framework"
	"github.com/robotalks/buoy.go/pkg/ingest"
	"github.com/robotalks/buoy.go/pkg/relay/mqtt"
	"github.com/robotalks/buoy.go/pkg/relay/wire"
)

var (
	mqttURL = "mqtt://localhost:1883/sfy/"
	influx  ingest.Options
)

func init() {
	if val := os.Getenv("SFY_MQTT_URL"); val != "" {
		mqttURL = val
	}
	influx.Token = os.Getenv("SFY_INFLUX_TOKEN")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&influx.URL, "influx", influx.URL, "InfluxDB URL, stores relayed messages when set.")
	flag.StringVar(&influx.Org, "influx-org", influx.Org, "InfluxDB organization.")
	flag.StringVar(&influx.Bucket, "influx-bucket", "sfy", "InfluxDB bucket.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	var sink *ingest.Sink
	if influx.URL != "" {
		sink = ingest.NewSink(influx)
		defer sink.Close()
	}

	q.Sub("+/"+mqtt.TopicMeta, mqtt.Handler(func(topic string, payload []byte) {
		if len(payload) == 0 {
			log.Printf("%s: offline", topic)
		}
	}))
	q.SubMsgs("+/+", mqtt.MsgHandler(func(device string, msg proto.Message) {
		log.Printf("%s: %s", device, wire.Describe(msg))
		if sink != nil {
			if err := sink.Handle(context.Background(), device, msg); err != nil {
				log.Printf("%s: ingest: %v", device, err)
			}
		}
	}))
	q.Connect()
	defer q.Close()

	runner := fx.NewRunner().HandleSignals()
	<-runner.Context.Done()
}
