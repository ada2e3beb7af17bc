package tools

import (
	"github.com/mcpguard/toolgate/internal/mcp"
)

// DivideByZeroMessage is returned by calculate when the divisor is zero.
const DivideByZeroMessage = "Error: Cannot divide by zero"

func (t *Toolbox) add(a *AddArgs) *mcp.CallToolResult {
	return mcp.NewTextResult(FormatNumber(*a.A + *a.B))
}

func (t *Toolbox) calculate(a *CalculateArgs) *mcp.CallToolResult {
	x, y := *a.A, *a.B

	var result float64
	switch a.Operation {
	case OpAdd:
		result = x + y
	case OpSubtract:
		result = x - y
	case OpMultiply:
		result = x * y
	case OpDivide:
		if y == 0 {
			return mcp.NewTextResult(DivideByZeroMessage)
		}
		result = x / y
	}
	return mcp.NewTextResult(FormatNumber(result))
}
