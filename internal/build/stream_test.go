package build

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/tools"
)

func callLine(t *testing.T, call tools.ToolCall) string {
	t.Helper()
	b, err := json.Marshal(call)
	if err != nil {
		t.Fatal(err)
	}
	return string(b) + "\n"
}

func TestStreamAgentRunsCallsUntilBlankLine(t *testing.T) {
	in := callLine(t, writeCall("/a.ts", "a")) + callLine(t, writeCall("/b.ts", "b")) + "\n"
	var out bytes.Buffer
	agent := NewStreamAgent(strings.NewReader(in), &out)
	r, svc, target := setupRunner(t, 0, agent)

	list := pending("1.1")
	res, err := r.Step(context.Background(), list)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.ToolCalls != 2 || list[0].Status != models.StatusDone {
		t.Errorf("Step = %+v, status %q", res, list[0].Status)
	}
	if _, err := svc.Read(context.Background(), target, "/b.ts"); err != nil {
		t.Errorf("Read /b.ts: %v", err)
	}

	output := out.String()
	sc := bufio.NewScanner(strings.NewReader(output))
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) < 2 || !strings.Contains(output, "Implement story 1.1") {
		t.Fatalf("output = %q", output)
	}
	var last tools.ToolResult
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("result line: %v", err)
	}
	if last.IsError || last.Name != "write_file" {
		t.Errorf("last result = %+v", last)
	}
}

func TestStreamAgentEOF(t *testing.T) {
	agent := NewStreamAgent(strings.NewReader(callLine(t, writeCall("/a.ts", "a"))), io.Discard)
	r, _, _ := setupRunner(t, 0, agent)

	list := pending("1.1", "1.2")
	_, err := r.Step(context.Background(), list)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Step err = %v, want io.EOF", err)
	}
	if list[0].Status != models.StatusError || list[1].Status != models.StatusPending {
		t.Errorf("statuses = %q, %q", list[0].Status, list[1].Status)
	}
}

func TestStreamAgentBadLine(t *testing.T) {
	agent := NewStreamAgent(strings.NewReader("not json\n"), io.Discard)
	r, _, _ := setupRunner(t, 0, agent)

	_, err := r.Step(context.Background(), pending("1.1"))
	if err == nil || !strings.Contains(err.Error(), "decode tool call") {
		t.Errorf("Step err = %v", err)
	}
}
