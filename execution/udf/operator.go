package udf

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/graph"
	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
	"github.com/cube2222/octoudf/serialization"
)

type State int

const (
	StateCreated State = iota
	StateOpen
	StateProcessing
	StateDraining
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateOpen:
		return "OPEN"
	case StateProcessing:
		return "PROCESSING"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type OutputSource int

const (
	OutputSourceForwarded OutputSource = iota
	OutputSourceUDF
)

func (s OutputSource) String() string {
	switch s {
	case OutputSourceForwarded:
		return "forwarded"
	case OutputSourceUDF:
		return "udf"
	}
	return fmt.Sprintf("OutputSource(%d)", int(s))
}

// OutputField says where an output field comes from.
// Index points into the forwarded values or into the function results.
type OutputField struct {
	Source OutputSource
	Index  int
}

func (f OutputField) String() string {
	return fmt.Sprintf("%s:%d", f.Source, f.Index)
}

// ParseOutputField parses the forwarded:N or udf:N form.
func ParseOutputField(text string) (OutputField, error) {
	parts := strings.SplitN(strings.TrimSpace(text), ":", 2)
	if len(parts) != 2 {
		return OutputField{}, errors.Errorf("expected output field in source:index form, got '%s'", text)
	}
	var source OutputSource
	switch strings.ToLower(parts[0]) {
	case "forwarded":
		source = OutputSourceForwarded
	case "udf":
		source = OutputSourceUDF
	default:
		return OutputField{}, errors.Errorf("unknown output field source '%s'", parts[0])
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return OutputField{}, errors.Wrapf(err, "couldn't parse output field index in '%s'", text)
	}
	return OutputField{Source: source, Index: index}, nil
}

// DefaultOutputMapping places forwarded values first, followed by function results.
func DefaultOutputMapping(forwarded, results int) []OutputField {
	mapping := make([]OutputField, 0, forwarded+results)
	for i := 0; i < forwarded; i++ {
		mapping = append(mapping, OutputField{Source: OutputSourceForwarded, Index: i})
	}
	for i := 0; i < results; i++ {
		mapping = append(mapping, OutputField{Source: OutputSourceUDF, Index: i})
	}
	return mapping
}

type Config struct {
	InputSchema  physical.Schema
	OutputSchema physical.Schema
	// UDFInputOffsets are the input fields passed to the function, in the order it expects them.
	UDFInputOffsets []int
	// ForwardedFields are the input fields copied into the output unchanged.
	ForwardedFields []int
	// OutputMapping places every output field. Empty means DefaultOutputMapping.
	OutputMapping []OutputField
	Format        serialization.Format
	RunnerOptions map[string]string
}

// ScalarFunctionOperator sends the function inputs of each record to a FunctionRunner
// and recombines every result with the forwarded fields of the oldest pending record.
//
// Buffer mutation and result delivery are serialized by mu. submitMu is held from the push of
// a record until its Submit returns, so concurrent callers submit in buffer order.
// Any fatal error moves the operator to StateFailed; all later calls return that error.
type ScalarFunctionOperator struct {
	config        Config
	mapping       []OutputField
	inputCodec    serialization.Codec
	resultCodec   serialization.Codec
	runnerFactory RunnerFactory

	// submitMu is always taken before mu. receive takes only mu.
	submitMu   sync.Mutex
	mu         sync.Mutex
	state      State
	failure    error
	runner     FunctionRunner
	pending    pendingBuffer
	produce    execution.ProduceFn
	produceCtx execution.ProduceContext
	logger     *zap.Logger
}

func NewScalarFunctionOperator(config Config, runnerFactory RunnerFactory) (*ScalarFunctionOperator, error) {
	if runnerFactory == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "no runner factory")
	}
	inputSchema, err := config.InputSchema.Project(config.UDFInputOffsets)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "invalid function input offsets: %s", err)
	}
	forwardedSchema, err := config.InputSchema.Project(config.ForwardedFields)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "invalid forwarded fields: %s", err)
	}

	mapping := config.OutputMapping
	if len(mapping) == 0 {
		results := config.OutputSchema.Len() - forwardedSchema.Len()
		if results < 0 {
			return nil, errors.Wrapf(ErrInvalidConfig, "output schema has %d fields, fewer than the %d forwarded ones", config.OutputSchema.Len(), forwardedSchema.Len())
		}
		mapping = DefaultOutputMapping(forwardedSchema.Len(), results)
	}
	resultSchema, err := resultSchemaFromMapping(forwardedSchema, config.OutputSchema, mapping)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}

	if config.Format == "" {
		config.Format = serialization.FormatRowBinary
	}
	inputCodec, err := serialization.NewCodec(config.Format, inputSchema)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "couldn't create function input codec: %s", err)
	}
	resultCodec, err := serialization.NewCodec(config.Format, resultSchema)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "couldn't create function result codec: %s", err)
	}

	return &ScalarFunctionOperator{
		config:        config,
		mapping:       mapping,
		inputCodec:    inputCodec,
		resultCodec:   resultCodec,
		runnerFactory: runnerFactory,
		state:         StateCreated,
		logger:        zap.NewNop(),
	}, nil
}

// resultSchemaFromMapping checks that the mapping covers the output schema
// and derives the function result row type from it.
func resultSchemaFromMapping(forwarded, output physical.Schema, mapping []OutputField) (physical.Schema, error) {
	if len(mapping) != output.Len() {
		return physical.Schema{}, errors.Errorf("output mapping has %d fields, output schema has %d", len(mapping), output.Len())
	}

	var results int
	for _, field := range mapping {
		if field.Source == OutputSourceUDF {
			results++
		}
	}
	resultFields := make([]physical.SchemaField, results)
	used := make([]bool, results)

	for i, field := range mapping {
		outputField := output.Fields[i]
		switch field.Source {
		case OutputSourceForwarded:
			if field.Index < 0 || field.Index >= forwarded.Len() {
				return physical.Schema{}, errors.Errorf("output field '%s' refers to forwarded field %d, but there are %d", outputField.Name, field.Index, forwarded.Len())
			}
			if forwarded.Fields[field.Index].Type.Is(outputField.Type) != octosql.TypeRelationIs {
				return physical.Schema{}, errors.Errorf("output field '%s' of type %s can't hold forwarded field '%s' of type %s", outputField.Name, outputField.Type, forwarded.Fields[field.Index].Name, forwarded.Fields[field.Index].Type)
			}
		case OutputSourceUDF:
			if field.Index < 0 || field.Index >= results {
				return physical.Schema{}, errors.Errorf("output field '%s' refers to function result %d, but there are %d", outputField.Name, field.Index, results)
			}
			if used[field.Index] {
				return physical.Schema{}, errors.Errorf("function result %d is mapped more than once", field.Index)
			}
			used[field.Index] = true
			resultFields[field.Index] = outputField
		default:
			return physical.Schema{}, errors.Errorf("output field '%s' has invalid source %s", outputField.Name, field.Source)
		}
	}

	return physical.NewSchema(resultFields), nil
}

// Open creates and opens the runner. Results are emitted through produce.
func (o *ScalarFunctionOperator) Open(ctx execution.ExecutionContext, produce execution.ProduceFn) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateCreated {
		return errors.Wrapf(ErrInvalidState, "can't open operator in state %s", o.state)
	}
	if ctx.Logger != nil {
		o.logger = ctx.Logger
	}
	o.produce = produce
	o.produceCtx = execution.ProduceFromExecutionContext(ctx)

	runner, err := o.runnerFactory(o.config.RunnerOptions, o.receive)
	if err != nil {
		return o.fail(AsRunnerFailure(errors.Wrap(err, "couldn't create function runner")))
	}
	// Nothing is submitted yet, so the receiver can't be called while opening.
	if err := runner.Open(ctx); err != nil {
		return o.fail(AsRunnerFailure(errors.Wrap(err, "couldn't open function runner")))
	}
	o.runner = runner
	o.setState(StateOpen)

	return nil
}

// ProcessRecord submits the function inputs of the record to the runner.
// It may block if the runner applies backpressure.
func (o *ScalarFunctionOperator) ProcessRecord(ctx context.Context, record execution.Record) error {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()
	o.mu.Lock()

	if o.failure != nil {
		o.mu.Unlock()
		return o.failure
	}
	switch o.state {
	case StateOpen:
		o.setState(StateProcessing)
	case StateProcessing:
	default:
		err := errors.Wrapf(ErrInvalidState, "can't accept records in state %s", o.state)
		o.mu.Unlock()
		return err
	}

	if err := o.config.InputSchema.CheckValues(record.Values); err != nil {
		err = o.fail(errors.Wrap(ErrSchemaMismatch, err.Error()))
		o.mu.Unlock()
		return err
	}

	forwarded := make([]octosql.Value, len(o.config.ForwardedFields))
	for i, index := range o.config.ForwardedFields {
		forwarded[i] = record.Values[index]
	}
	o.pending.Push(pendingEntry{
		forwarded:  forwarded,
		changeKind: record.ChangeKind,
	})

	input := make([]octosql.Value, len(o.config.UDFInputOffsets))
	for i, index := range o.config.UDFInputOffsets {
		input[i] = record.Values[index]
	}
	data, err := o.inputCodec.Encode(input)
	if err != nil {
		err = o.fail(errors.Wrap(err, "couldn't encode function input"))
		o.mu.Unlock()
		return err
	}
	runner := o.runner
	o.mu.Unlock()

	// mu isn't held, so that the runner may deliver results while Submit blocks.
	if err := runner.Submit(ctx, data); err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.fail(AsRunnerFailure(errors.Wrap(err, "couldn't submit function input")))
	}

	return nil
}

// receive is the ResultReceiver handed to the runner.
func (o *ScalarFunctionOperator) receive(result []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.failure != nil {
		return o.failure
	}
	if o.state == StateClosed {
		// Results racing an Abort are dropped.
		return errors.Wrap(ErrInvalidState, "function result delivered to closed operator")
	}

	values, err := o.resultCodec.Decode(result)
	if err != nil {
		return o.fail(errors.Wrap(err, "couldn't decode function result"))
	}
	entry, err := o.pending.PopOldest()
	if err != nil {
		return o.fail(err)
	}

	out := make([]octosql.Value, len(o.mapping))
	for i, field := range o.mapping {
		if field.Source == OutputSourceForwarded {
			out[i] = entry.forwarded[field.Index]
		} else {
			out[i] = values[field.Index]
		}
	}

	if err := o.produce(o.produceCtx, execution.NewRecord(out, entry.changeKind)); err != nil {
		return o.fail(errors.Wrap(err, "couldn't produce record"))
	}

	return nil
}

// Finish stops accepting records, waits for all outstanding results and closes the runner.
func (o *ScalarFunctionOperator) Finish(ctx context.Context) error {
	// Waits for an in-flight Submit, so that Close comes after it.
	o.submitMu.Lock()
	o.mu.Lock()
	o.submitMu.Unlock()
	if o.failure != nil {
		err := o.failure
		runner := o.runner
		o.runner = nil
		o.mu.Unlock()
		closeQuietly(ctx, runner, o.logger)
		return err
	}
	if o.state != StateOpen && o.state != StateProcessing {
		err := errors.Wrapf(ErrInvalidState, "can't finish operator in state %s", o.state)
		o.mu.Unlock()
		return err
	}
	o.setState(StateDraining)
	runner := o.runner
	o.mu.Unlock()

	// Close delivers the outstanding results through receive, which takes the lock.
	closeErr := runner.Close(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.runner = nil

	if o.failure != nil {
		return o.failure
	}
	if closeErr != nil {
		return o.fail(AsRunnerFailure(errors.Wrap(closeErr, "couldn't close function runner")))
	}
	if o.pending.Len() != 0 {
		return o.fail(errors.Wrapf(ErrBufferNotDrained, "%d records still pending", o.pending.Len()))
	}

	o.pending.Reset()
	o.setState(StateClosed)
	return nil
}

// Abort closes the runner without requiring the pending records to drain.
// It returns the recorded failure, if any.
func (o *ScalarFunctionOperator) Abort(ctx context.Context) error {
	o.mu.Lock()
	runner := o.runner
	o.runner = nil
	if o.state != StateFailed {
		o.setState(StateClosed)
	}
	o.mu.Unlock()

	closeQuietly(ctx, runner, o.logger)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending.Len() > 0 {
		o.logger.Debug("discarding pending records", zap.Int("pending", o.pending.Len()))
	}
	o.pending.Reset()
	return o.failure
}

func (o *ScalarFunctionOperator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pending returns the number of records submitted whose results haven't been emitted yet.
func (o *ScalarFunctionOperator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending.Len()
}

// fail records the first fatal error and returns it. Must be called with the lock held.
func (o *ScalarFunctionOperator) fail(err error) error {
	if o.failure != nil {
		return o.failure
	}
	o.failure = err
	o.state = StateFailed
	o.logger.Error("scalar function failed",
		zap.Stringer("state", o.state),
		zap.Int("pending", o.pending.Len()),
		zap.Error(err),
	)
	return err
}

// Must be called with the lock held.
func (o *ScalarFunctionOperator) setState(state State) {
	o.logger.Debug("scalar function state change",
		zap.Stringer("from", o.state),
		zap.Stringer("state", state),
		zap.Int("pending", o.pending.Len()),
	)
	o.state = state
}

func closeQuietly(ctx context.Context, runner FunctionRunner, logger *zap.Logger) {
	if runner == nil {
		return
	}
	if err := runner.Close(ctx); err != nil {
		logger.Debug("couldn't close function runner", zap.Error(err))
	}
}

func (o *ScalarFunctionOperator) Visualize() *graph.Node {
	n := graph.NewNode("scalar function")
	n.AddField("format", string(o.config.Format))
	n.AddField("function input", fieldNames(o.config.InputSchema, o.config.UDFInputOffsets))
	n.AddField("forwarded", fieldNames(o.config.InputSchema, o.config.ForwardedFields))
	mapping := make([]string, len(o.mapping))
	for i := range o.mapping {
		mapping[i] = fmt.Sprintf("%s=%s", o.config.OutputSchema.Fields[i].Name, o.mapping[i])
	}
	n.AddField("output", strings.Join(mapping, ", "))
	return n
}

func fieldNames(schema physical.Schema, indices []int) string {
	names := make([]string, len(indices))
	for i, index := range indices {
		names[i] = schema.Fields[index].Name
	}
	return strings.Join(names, ", ")
}
