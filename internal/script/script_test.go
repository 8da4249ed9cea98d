package script

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nslaift/nslaift/internal/backend/recorder"
	"github.com/nslaift/nslaift/internal/core/protocol"
	"github.com/nslaift/nslaift/internal/core/scene"
	"github.com/nslaift/nslaift/internal/imageout"
)

const commandFile = `# demo scene
createObject;cam1;camera

createObject;sphere1;sphere
createObject;light;pointLight
   # indented comment
manipulateObject;sphere1;translate; 0.3, 0.0, 2.0
manipulateObject;ghost;reset
render
`

const lispScript = `
// demo scene
(create "cam1" "camera" "320x240")
(create "ball" "sphere" 0.5)
(create "sun" "pointLight")
(manipulate "ball" "translate" "0.3, 0.0, 2.0")
(material "ball" "normal")
(background 0.1 0.2 0.3)
(render 2)
`

type fixture struct {
	scene  *scene.Scene
	sink   *imageout.Memory
	runner *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sink := &imageout.Memory{}
	s, err := scene.New(scene.Config{Backend: recorder.New(), Sink: sink})
	require.NoError(t, err)
	exec := protocol.NewExecutor(s, protocol.ReplyStatus, nil)
	return &fixture{scene: s, sink: sink, runner: NewRunner(exec, nil)}
}

func TestRunLines(t *testing.T) {
	f := newFixture(t)
	report, err := f.runner.RunLines(context.Background(), strings.NewReader(commandFile))
	require.NoError(t, err)

	assert.Equal(t, 6, report.Executed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, Failure{Line: 8, Command: "manipulateObject;ghost;reset", Code: protocol.ErrorCodeNotFound}, report.Failures[0])
	assert.False(t, report.OK())
	assert.Len(t, f.sink.Frames(), 1)
}

func TestRunLinesStopOnError(t *testing.T) {
	f := newFixture(t)
	f.runner.StopOnError = true

	report, err := f.runner.RunLines(context.Background(), strings.NewReader(commandFile))
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Equal(t, 5, report.Executed)
	assert.Empty(t, f.sink.Frames(), "render after the failure must not run")
}

func TestRunLinesCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.runner.RunLines(ctx, strings.NewReader(commandFile))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Executed)
}

func TestRunLisp(t *testing.T) {
	f := newFixture(t)
	report, err := f.runner.RunLisp(context.Background(), lispScript)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 7, report.Executed)

	ball := f.scene.FindEntity("ball")
	require.NotNil(t, ball)
	assert.Equal(t, 0.5, ball.Behavior().(*scene.Sphere).Radius)
	assert.Equal(t, scene.MaterialNormal, ball.Material().Type)
	pos := ball.Position()
	assert.InDeltaSlice(t, []float64{0.3, 0, 2}, pos[:], 1e-9)
	assert.Equal(t, mgl64.Vec3{0.1, 0.2, 0.3}, f.scene.BackgroundColor())

	w, h := f.scene.FindEntity("cam1").Behavior().(*scene.Camera).Resolution()
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
	assert.Len(t, f.sink.Frames(), 1)
	assert.Equal(t, uint64(1), f.scene.RenderCount())
}

func TestRunLispAbortsOnFailure(t *testing.T) {
	f := newFixture(t)
	report, err := f.runner.RunLisp(context.Background(), `
(create "s" "sphere")
(manipulate "ghost" "reset")
(create "t" "sphere")
`)
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Equal(t, 2, report.Executed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, protocol.ErrorCodeNotFound, report.Failures[0].Code)
	assert.Nil(t, f.scene.FindEntity("t"))
}

func TestRunLispArgumentErrors(t *testing.T) {
	for _, src := range []string{
		`(create "only-name")`,
		`(render 0)`,
		`(render "many")`,
		`(background 1 2)`,
		`(clear 1)`,
		`(delete 1 2)`,
	} {
		f := newFixture(t)
		_, err := f.runner.RunLisp(context.Background(), src)
		assert.Error(t, err, src)
	}

	f := newFixture(t)
	report, err := f.runner.RunLisp(context.Background(), "   ")
	require.NoError(t, err)
	assert.Zero(t, report.Executed)
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "scene.txt")
	zy := filepath.Join(dir, "scene.zy")
	require.NoError(t, os.WriteFile(txt, []byte(commandFile), 0o600))
	require.NoError(t, os.WriteFile(zy, []byte(lispScript), 0o600))

	f := newFixture(t)
	report, err := f.runner.RunFile(context.Background(), txt)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Executed)

	f = newFixture(t)
	report, err = f.runner.RunFile(context.Background(), zy)
	require.NoError(t, err)
	assert.Equal(t, 7, report.Executed)

	_, err = f.runner.RunFile(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
