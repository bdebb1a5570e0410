// Package catalog provides the built-in node types wired into the default
// registry: simple test fixtures (Calculator, Expander, SyncAV) and nodes
// adapting the runtime's audio and speech stacks (VAD, Resample,
// Transcription, Synthesis).
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mediarun/runtime/node"
	"github.com/mediarun/runtime/wire"
)

// CalculatorOp is the arithmetic operation a Calculator node applies.
type CalculatorOp string

const (
	OpAdd      CalculatorOp = "add"
	OpSubtract CalculatorOp = "subtract"
	OpMultiply CalculatorOp = "multiply"
	OpDivide   CalculatorOp = "divide"
)

// CalculatorParams is the params JSON for a Calculator node.
type CalculatorParams struct {
	Op    CalculatorOp `json:"op"`
	Value float64      `json:"value"`
}

type calculatorInput struct {
	Value float64 `json:"value"`
}

type calculatorOutput struct {
	Result float64 `json:"result"`
}

// Calculator is a unary node that applies a fixed arithmetic operation to
// the "value" field of a JSON input buffer. It exists to give the compiler
// and scheduler a minimal, deterministic node for end-to-end exercises.
type Calculator struct {
	node.BaseNode
	params CalculatorParams
}

// NewCalculator is a node.Constructor for the "calculator" node type.
func NewCalculator(params []byte) (node.Node, error) {
	var p CalculatorParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("catalog: invalid calculator params: %w", err)
		}
	}
	if p.Op == "" {
		p.Op = OpAdd
	}
	return &Calculator{params: p}, nil
}

func (c *Calculator) Process(ctx context.Context, chunk node.Chunk) (<-chan node.Output, error) {
	if chunk.Buffer == nil || chunk.Buffer.JSON == nil {
		return nil, fmt.Errorf("catalog: calculator requires a json input buffer")
	}

	var in calculatorInput
	if err := json.Unmarshal(chunk.Buffer.JSON.Payload, &in); err != nil {
		return nil, fmt.Errorf("catalog: calculator input decode: %w", err)
	}

	result, err := c.apply(in.Value)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(calculatorOutput{Result: result})
	if err != nil {
		return nil, err
	}

	out := make(chan node.Output, 1)
	out <- node.Output{Buffer: wire.NewJSONBuffer(wire.JSON{Payload: payload})}
	close(out)
	return out, nil
}

func (c *Calculator) apply(value float64) (float64, error) {
	switch c.params.Op {
	case OpAdd:
		return value + c.params.Value, nil
	case OpSubtract:
		return value - c.params.Value, nil
	case OpMultiply:
		return value * c.params.Value, nil
	case OpDivide:
		if c.params.Value == 0 {
			return 0, fmt.Errorf("catalog: calculator divide by zero")
		}
		return value / c.params.Value, nil
	default:
		return 0, fmt.Errorf("catalog: unknown calculator op %q", c.params.Op)
	}
}

func (c *Calculator) Capabilities() node.Capabilities {
	return node.Capabilities{
		InputKinds:  node.SingleKind(wire.KindJSON),
		OutputKinds: node.SingleKind(wire.KindJSON),
	}
}
