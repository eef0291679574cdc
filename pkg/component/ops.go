package component

// Operation types understood by the reference executor.
const (
	OpLabelCrossEntropy = "LabelCrossEntropy"
	OpMeanSquaredError  = "MeanSquaredError"
)

// Operation is a named node added to a network graph.
type Operation struct {
	Type   string
	Name   string
	Inputs []string
}

// LossFactory builds a loss operation over inputs (prediction, label).
type LossFactory func(inputs []string, name string) Operation

// LabelCrossEntropy is the classification loss: softmax cross entropy against
// an integer class label.
func LabelCrossEntropy(inputs []string, name string) Operation {
	return Operation{Type: OpLabelCrossEntropy, Name: name, Inputs: append([]string(nil), inputs...)}
}

// MeanSquaredError is the regression loss.
func MeanSquaredError(inputs []string, name string) Operation {
	return Operation{Type: OpMeanSquaredError, Name: name, Inputs: append([]string(nil), inputs...)}
}

// FindOperation returns the operation called name, if the network has one.
func FindOperation(net Network, name string) (Operation, bool) {
	for _, op := range net.Operations() {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}
