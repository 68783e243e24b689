package audio

import (
	"context"
	"testing"
	"time"

	"github.com/yegors/livecap/pkg/logger"
)

func encoderTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestEncoderProducesPayload(t *testing.T) {
	enc := NewEncoder(context.Background(), encoderTestLogger(t))
	enc.Start()
	defer enc.Stop()

	samples := make([]float32, 480)
	for i := range samples {
		samples[i] = 0.25
	}
	if !enc.Submit(EncodeRequest{TaskID: "task-1", Samples: samples, SampleRate: 48000}) {
		t.Fatal("Submit rejected while running")
	}

	select {
	case res := <-enc.Results():
		if res.TaskID != "task-1" {
			t.Errorf("result task id = %q", res.TaskID)
		}
		if res.Err != nil {
			t.Fatalf("encode error: %v", res.Err)
		}
		decoded, rate, err := DecodeWAV(res.Payload)
		if err != nil {
			t.Fatalf("payload not decodable: %v", err)
		}
		if rate != 48000 || len(decoded) != len(samples) {
			t.Errorf("decoded %d samples at %d Hz", len(decoded), rate)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no encode result")
	}
}

func TestEncoderReportsFailure(t *testing.T) {
	enc := NewEncoder(context.Background(), encoderTestLogger(t))
	enc.Start()
	defer enc.Stop()

	enc.Submit(EncodeRequest{TaskID: "bad", Samples: nil, SampleRate: 48000})
	select {
	case res := <-enc.Results():
		if res.Err == nil {
			t.Error("empty window encoded without error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no encode result")
	}
}

func TestEncoderSubmitAfterStop(t *testing.T) {
	enc := NewEncoder(context.Background(), encoderTestLogger(t))
	enc.Start()
	enc.Stop()

	if enc.Submit(EncodeRequest{TaskID: "late", Samples: []float32{0}, SampleRate: 48000}) {
		t.Error("Submit accepted after Stop")
	}
}
