package executor

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/davecgh/go-spew/spew"
	"github.com/kr/text"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cube2222/octoudf/config"
	"github.com/cube2222/octoudf/execution/udf"
	"github.com/cube2222/octoudf/plugins/internal/plugins"
)

var ErrIncompatibleRuntime = errors.New("incompatible function runtime")

// Runner is a FunctionRunner evaluating inputs in an external function runtime over gRPC.
// The runtime is either already running at address, or spawned from executable.
//
// Submit and Close must not be called concurrently with each other.
type Runner struct {
	receiver udf.ResultReceiver
	logger   *zap.Logger

	address           string
	executable        string
	args              []string
	startupTimeout    time.Duration
	versionConstraint *semver.Constraints
	constraintText    string
	maxInFlight       int

	tmpDir    string
	cmd       *exec.Cmd
	conn      *grpc.ClientConn
	stream    plugins.FunctionRuntime_EvaluateClient
	cancel    context.CancelFunc
	group     *errgroup.Group
	groupCtx  context.Context
	inFlight  chan struct{}
	submitted int
	received  int

	closeOnce sync.Once
	closeErr  error
}

func NewFactory(logger *zap.Logger) udf.RunnerFactory {
	return func(options map[string]string, receiver udf.ResultReceiver) (udf.FunctionRunner, error) {
		return New(options, receiver, logger)
	}
}

func New(options map[string]string, receiver udf.ResultReceiver, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		receiver: receiver,
		logger:   logger,
	}

	var err error
	if r.address, err = config.GetString(options, "address", config.WithDefault("")); err != nil {
		return nil, errors.Wrap(err, "couldn't get address")
	}
	if r.executable, err = config.GetString(options, "executable", config.WithDefault("")); err != nil {
		return nil, errors.Wrap(err, "couldn't get executable")
	}
	if (r.address == "") == (r.executable == "") {
		return nil, errors.New("exactly one of address and executable must be set")
	}
	if r.args, err = config.GetStringList(options, "args", config.WithDefault([]string{})); err != nil {
		return nil, errors.Wrap(err, "couldn't get args")
	}
	if r.startupTimeout, err = config.GetDuration(options, "startup_timeout", config.WithDefault(10*time.Second)); err != nil {
		return nil, errors.Wrap(err, "couldn't get startup timeout")
	}
	if r.maxInFlight, err = config.GetPositiveInt(options, "max_in_flight", config.WithDefault(1024)); err != nil {
		return nil, errors.Wrap(err, "couldn't get max in flight")
	}
	constraint, err := config.GetString(options, "version_constraint", config.WithDefault(""))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get version constraint")
	}
	if constraint != "" {
		r.constraintText = constraint
		if r.versionConstraint, err = semver.NewConstraint(constraint); err != nil {
			return nil, errors.Wrapf(err, "couldn't parse version constraint '%s'", constraint)
		}
	}

	return r, nil
}

func (r *Runner) Open(ctx context.Context) error {
	if err := r.open(ctx); err != nil {
		r.teardown()
		return err
	}
	return nil
}

func (r *Runner) open(ctx context.Context) error {
	startupCtx, cancel := context.WithTimeout(ctx, r.startupTimeout)
	defer cancel()

	target := r.address
	if r.executable != "" {
		socket, err := r.startRuntime(startupCtx)
		if err != nil {
			return err
		}
		target = fmt.Sprintf("unix://%s", socket)
	}

	conn, err := grpc.DialContext(
		startupCtx,
		target,
		grpc.WithBlock(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return errors.Wrapf(err, "couldn't connect to function runtime at %s", target)
	}
	r.conn = conn
	client := plugins.NewFunctionRuntimeClient(conn)

	info, err := plugins.GetRuntimeInfo(startupCtx, client)
	if err != nil {
		return err
	}
	r.logger.Debug("function runtime info", zap.String("info", spew.Sdump(info)))
	if err := r.checkVersion(info); err != nil {
		return err
	}
	r.logger.Info("connected to function runtime",
		zap.String("address", target),
		zap.String("version", info.Version),
		zap.String("function", info.Function),
	)

	// The stream outlives Open, so it doesn't use its context.
	streamCtx, cancelStream := context.WithCancel(context.Background())
	r.cancel = cancelStream
	r.group, r.groupCtx = errgroup.WithContext(streamCtx)
	stream, err := client.Evaluate(r.groupCtx)
	if err != nil {
		return errors.Wrap(err, "couldn't start evaluation stream")
	}
	r.stream = stream
	r.inFlight = make(chan struct{}, r.maxInFlight)
	r.group.Go(r.receive)

	return nil
}

func (r *Runner) checkVersion(info plugins.RuntimeInfo) error {
	if r.versionConstraint == nil {
		return nil
	}
	version, err := semver.NewVersion(info.Version)
	if err != nil {
		return errors.Wrapf(ErrIncompatibleRuntime, "invalid runtime version '%s': %s", info.Version, err)
	}
	if !r.versionConstraint.Check(version) {
		return errors.Wrapf(ErrIncompatibleRuntime, "runtime version %s doesn't satisfy constraint '%s'", info.Version, r.constraintText)
	}
	return nil
}

// startRuntime spawns the runtime process and waits for its socket to appear.
func (r *Runner) startRuntime(ctx context.Context) (string, error) {
	tmpDir, err := os.MkdirTemp("", "octoudf-")
	if err != nil {
		return "", errors.Wrap(err, "couldn't create tempdir")
	}
	r.tmpDir = tmpDir

	socketName := ulid.MustNew(ulid.Now(), rand.Reader).String() + ".sock"
	socketPath, err := filepath.Abs(filepath.Join(tmpDir, socketName))
	if err != nil {
		return "", errors.Wrap(err, "couldn't get absolute path to runtime socket")
	}
	r.logger.Debug("function runtime socket", zap.String("path", socketPath))

	cmd := exec.Command(r.executable, append([]string{socketPath}, r.args...)...)
	// Stdout is reserved for query output.
	cmd.Stdout = text.NewIndentWriter(os.Stderr, []byte("[runtime] "))
	cmd.Stderr = text.NewIndentWriter(os.Stderr, []byte("[runtime] "))
	if err := cmd.Start(); err != nil {
		return "", errors.Wrapf(err, "couldn't start function runtime %s", r.executable)
	}
	r.cmd = cmd

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		_, err := os.Stat(socketPath)
		if err == nil {
			return socketPath, nil
		} else if !os.IsNotExist(err) {
			return "", errors.Wrap(err, "couldn't check if runtime socket exists")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", errors.Wrapf(ctx.Err(), "function runtime didn't create its socket in %s", r.startupTimeout)
		}
	}
}

// receive delivers results to the receiver one at a time, in arrival order.
func (r *Runner) receive() error {
	for {
		msg, err := r.stream.Recv()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return udf.AsRunnerFailure(errors.Wrap(err, "couldn't receive function result"))
		}
		select {
		case <-r.inFlight:
		default:
			return &udf.RunnerFailure{Err: errors.New("function runtime returned a result for no input")}
		}
		r.received++
		if err := r.receiver(msg.Value); err != nil {
			return err
		}
	}
}

// Submit blocks while max_in_flight inputs are awaiting results.
func (r *Runner) Submit(ctx context.Context, input []byte) error {
	if r.stream == nil {
		return errors.New("runner not opened")
	}

	select {
	case r.inFlight <- struct{}{}:
	case <-r.groupCtx.Done():
		return r.failure()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := r.stream.Send(wrapperspb.Bytes(input)); err != nil {
		if err == io.EOF {
			// The stream is broken, the reason is returned by Recv.
			return r.failure()
		}
		return udf.AsRunnerFailure(errors.Wrap(err, "couldn't send function input"))
	}
	r.submitted++
	return nil
}

func (r *Runner) failure() error {
	if err := r.group.Wait(); err != nil {
		return err
	}
	return &udf.RunnerFailure{Err: errors.New("function runtime closed the evaluation stream")}
}

// Close waits for all in-flight results, then stops the connection and the runtime process.
func (r *Runner) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.closeErr = r.drain(ctx)
		r.teardown()
	})
	return r.closeErr
}

func (r *Runner) drain(ctx context.Context) error {
	if r.stream == nil {
		return nil
	}
	if err := r.stream.CloseSend(); err != nil && r.groupCtx.Err() == nil {
		return udf.AsRunnerFailure(errors.Wrap(err, "couldn't close evaluation stream"))
	}

	done := make(chan error, 1)
	go func() {
		done <- r.group.Wait()
	}()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		r.cancel()
		if err = <-done; err == nil {
			err = ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	if r.received != r.submitted {
		return &udf.RunnerFailure{Err: errors.Errorf("function runtime returned %d results for %d inputs", r.received, r.submitted)}
	}
	return nil
}

const shutdownGracePeriod = 5 * time.Second

func (r *Runner) teardown() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Debug("couldn't close function runtime connection", zap.Error(err))
		}
		r.conn = nil
	}
	if r.cmd != nil {
		r.stopRuntime()
		r.cmd = nil
	}
	if r.tmpDir != "" {
		if err := os.RemoveAll(r.tmpDir); err != nil {
			r.logger.Debug("couldn't remove runtime tempdir", zap.Error(err))
		}
		r.tmpDir = ""
	}
}

func (r *Runner) stopRuntime() {
	exited := make(chan error, 1)
	go func() {
		exited <- r.cmd.Wait()
	}()

	if err := r.cmd.Process.Signal(os.Interrupt); err != nil {
		r.cmd.Process.Kill()
	}
	select {
	case err := <-exited:
		r.logger.Info("function runtime exited", zap.Error(err))
	case <-time.After(shutdownGracePeriod):
		r.cmd.Process.Kill()
		r.logger.Info("function runtime killed", zap.Error(<-exited))
	}
}
