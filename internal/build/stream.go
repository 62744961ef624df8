package build

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ItachiCrypto/appforge-sub001/internal/tools"
)

// StreamAgent drives turns from a line protocol: the directive is written to
// out, then each input line holds one JSON tool call whose result is written
// back as one JSON line. A blank line ends the turn. It lets an external
// process or a person play the model.
type StreamAgent struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewStreamAgent(in io.Reader, out io.Writer) *StreamAgent {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 8<<20)
	return &StreamAgent{in: sc, out: out}
}

// Turn returns io.EOF when the input ends before the turn does.
func (a *StreamAgent) Turn(ctx context.Context, directive string, run ToolFunc) error {
	if _, err := fmt.Fprintf(a.out, "%s\n\n", directive); err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	for a.in.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(a.in.Bytes())
		if len(line) == 0 {
			return nil
		}
		var call tools.ToolCall
		if err := json.Unmarshal(line, &call); err != nil {
			return fmt.Errorf("decode tool call: %w", err)
		}
		if err := enc.Encode(run(ctx, call)); err != nil {
			return err
		}
	}
	if err := a.in.Err(); err != nil {
		return err
	}
	return io.EOF
}
