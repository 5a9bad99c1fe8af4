package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/influxdata/tdigest"
	"github.com/rs/xid"
)

var (
	client         *http.Client
	sourceIDs      []string
	lastFrameSent  map[string]time.Time
	sendTimesMutex sync.Mutex
	latencyDigest  *tdigest.TDigest
	eventCount     int
	eventCond      *sync.Cond
)

const (
	pipelineBaseURL  = "http://sentinel-pipeline:8080"
	streamURL        = "ws://sentinel-pipeline:8080/stream"
	sourceCount      = 5
	framePayload     = `{"snapshot":"aGVsbG8gd29ybGQ=","width":640,"height":480}`
	contentType      = "application/json"
	headerContentKey = "Content-Type"
	// batches close on the time window, so every source flooded within one
	// window yields at least one assessment event per window
	batchWindowSlack = 90 * time.Second
)

type streamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type assessmentEvent struct {
	BatchID     string `json:"batchId"`
	SourceID    string `json:"sourceId"`
	RiskScore   uint   `json:"riskScore"`
	RiskLevel   string `json:"riskLevel"`
	MemberCount uint   `json:"memberCount"`
	Fallback    bool   `json:"fallback"`
}

func waitForService() bool {
	for attempt := 0; attempt < 30; attempt++ {
		resp, err := client.Get(pipelineBaseURL + "/_status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(1 * time.Second)
	}
	return false
}

func streamListener(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			log.Println("stream closed", err)
			return
		}
		var message streamMessage
		if jsonErr := json.Unmarshal(payload, &message); jsonErr != nil {
			log.Println("could not decode stream message", jsonErr)
			continue
		}
		if message.Type != "event" {
			log.Println("stream message", message.Type)
			continue
		}
		var event assessmentEvent
		if jsonErr := json.Unmarshal(message.Data, &event); jsonErr != nil {
			log.Println("could not decode assessment event", jsonErr)
			continue
		}
		if event.MemberCount == 0 || len(event.RiskLevel) == 0 {
			log.Println("malformed assessment event", event.BatchID)
			os.Exit(3)
		}
		sendTimesMutex.Lock()
		if sentAt, ok := lastFrameSent[event.SourceID]; ok {
			latencyDigest.Add(time.Since(sentAt).Seconds(), 1)
		}
		eventCount++
		eventCond.Broadcast()
		sendTimesMutex.Unlock()
	}
}

func sendFrame(sourceID string) (err error) {
	req, _ := http.NewRequest(http.MethodPost, pipelineBaseURL+"/ingest/"+sourceID, strings.NewReader(framePayload))
	req.Header.Add(headerContentKey, contentType)
	var resp *http.Response
	resp, err = client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// 429 under backpressure is part of the contract, retry once after the hint
	if resp.StatusCode == http.StatusTooManyRequests {
		time.Sleep(1 * time.Second)
		return sendFrame(sourceID)
	}
	if resp.StatusCode != http.StatusAccepted {
		log.Println("unexpected ingest status", resp.Status)
		os.Exit(3)
	}
	sendTimesMutex.Lock()
	lastFrameSent[sourceID] = time.Now()
	sendTimesMutex.Unlock()
	return nil
}

func floodFrames(sendCount int) {
	sendFn := func(index int) {
		sourceID := sourceIDs[index%sourceCount]
		if err := sendFrame(sourceID); err != nil {
			log.Println("error sending frame", err)
			os.Exit(3)
		}
	}
	switch {
	case sendCount <= 10:
		for index := 0; index < sendCount; index++ {
			sendFn(index)
		}
	default:
		sendChan := make(chan int, sendCount)
		var wg sync.WaitGroup
		for worker := 0; worker < 50; worker++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for index := range sendChan {
					sendFn(index)
				}
			}()
		}
		for index := 0; index < sendCount; index++ {
			sendChan <- index
		}
		close(sendChan)
		wg.Wait()
	}
}

func waitForEvents(expected int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timedOut := false
	wakeStop := make(chan struct{})
	defer close(wakeStop)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				eventCond.Broadcast()
			case <-wakeStop:
				return
			}
		}
	}()
	sendTimesMutex.Lock()
	defer sendTimesMutex.Unlock()
	for eventCount < expected {
		if time.Now().After(deadline) {
			timedOut = true
			break
		}
		eventCond.Wait()
	}
	return timedOut
}

func main() {
	client = &http.Client{Timeout: 10 * time.Second}
	lastFrameSent = make(map[string]time.Time)
	latencyDigest = tdigest.NewWithCompression(100)
	eventCond = sync.NewCond(&sendTimesMutex)
	sourceIDs = make([]string, sourceCount)
	for index := 0; index < sourceCount; index++ {
		sourceIDs[index] = "integration-camera-" + xid.New().String()
	}
	if !waitForService() {
		log.Println("service not reachable")
		os.Exit(1)
	}
	conn, _, err := websocket.DefaultDialer.Dial(streamURL, nil)
	if err != nil {
		log.Println("could not subscribe to stream", err)
		os.Exit(1)
	}
	defer conn.Close()
	go streamListener(conn)
	log.Println("Starting frame flood", time.Now())
	steps := []int{10, 100, 1000, 5000}
	expected := 0
	for _, step := range steps {
		floodFrames(step)
		// one batch per flooded source per window at minimum
		expected += sourceCount
		if waitForEvents(expected, batchWindowSlack) {
			log.Println("Timed out waiting for assessment events at step", step)
			os.Exit(2)
		}
		log.Println("Step finished", step, time.Now())
	}
	log.Println("ingest to verdict latency quantiles (seconds)")
	for _, quantile := range []float64{0.5, 0.9, 0.99} {
		log.Println("q"+strconv.FormatFloat(quantile, 'f', -1, 64), latencyDigest.Quantile(quantile))
	}
}
