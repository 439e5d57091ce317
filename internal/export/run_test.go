package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"telescribe/internal/ledger"
	"telescribe/internal/model"
)

func TestRunAndWriteRecordsPartialRun(t *testing.T) {
	led, err := ledger.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer led.Close()

	src := &fakeSource{steps: []fakeStep{msgStep(30, 0), msgStep(20, 0), {err: errors.New("connection reset")}}}
	p := newPipeline(src, &fakeLookup{})
	opts := Options{Budget: 10, Format: "json", Dir: t.TempDir()}

	res, runErr := RunAndWrite(context.Background(), p, led, model.Conversation{ID: 5, Name: "flaky chat"}, opts)
	if runErr == nil {
		t.Fatal("expected the stream failure to surface")
	}
	if res.Messages != 2 || !res.Partial {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(res.File); err != nil {
		t.Fatalf("partial export not written: %v", err)
	}

	runs, err := led.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ChatID != 5 || !runs[0].Partial || runs[0].Messages != 2 {
		t.Fatalf("ledger row wrong: %+v", runs)
	}
}

func TestRunAndWriteEndToEnd(t *testing.T) {
	src := &fakeSource{steps: []fakeStep{msgStep(30, 0), msgStep(20, 0), msgStep(10, 0)}}
	dir := t.TempDir()
	conv := model.Conversation{ID: 7, Name: "e2e chat"}

	jres, err := RunAndWrite(context.Background(), newPipeline(src, &fakeLookup{}),
		nil, conv, Options{Budget: 2, Format: "json", Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(jres.File)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Messages []struct {
			ID int64 `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Messages) != 2 || doc.Messages[0].ID != 30 || doc.Messages[1].ID != 20 {
		t.Fatalf("structured output wrong: %+v", doc.Messages)
	}

	src = &fakeSource{steps: []fakeStep{msgStep(30, 0), msgStep(20, 0), msgStep(10, 0)}}
	mres, err := RunAndWrite(context.Background(), newPipeline(src, &fakeLookup{}),
		nil, conv, Options{Budget: 2, Format: "md", Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	md, err := os.ReadFile(mres.File)
	if err != nil {
		t.Fatal(err)
	}
	i20 := strings.Index(string(md), "[ID: 20]")
	i30 := strings.Index(string(md), "[ID: 30]")
	if i20 < 0 || i30 < 0 || i20 > i30 {
		t.Fatalf("narrative order wrong (20 at %d, 30 at %d):\n%s", i20, i30, md)
	}
	if strings.Contains(string(md), "[ID: 10]") {
		t.Fatal("budget-excluded message leaked into narrative output")
	}
}

func TestRunAndWriteCleanRun(t *testing.T) {
	src := &fakeSource{steps: []fakeStep{msgStep(2, 0), msgStep(1, 0)}}
	p := newPipeline(src, &fakeLookup{})
	opts := Options{Budget: 10, Format: "md", Dir: t.TempDir()}

	res, err := RunAndWrite(context.Background(), p, nil, model.Conversation{ID: 6, Name: "ok chat"}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Messages != 2 || res.Partial {
		t.Fatalf("result = %+v", res)
	}
}
