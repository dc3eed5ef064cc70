package renderer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

func testMesh() *metadata.Mesh {
	return &metadata.Mesh{
		Name: "quad",
		Vertices: []metadata.Vertex{
			{Pos: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec3{1, 0, 0}},
			{Pos: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec3{0, 1, 0}},
			{Pos: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec3{0, 0, 1}},
			{Pos: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec3{1, 1, 1}},
		},
		Indices: []uint16{0, 1, 2, 2, 3, 0},
	}
}

func testConfig(n int) Config {
	return Config{
		MaxFramesInFlight: n,
		PauseInterval:     time.Millisecond,
		ClearColor:        [4]float32{0, 0, 0, 1},
		UseUniforms:       true,
		DebugReadback:     true,
	}
}

func newTestRenderer(t *testing.T, m *mockDriver, n int) *Renderer {
	t.Helper()
	r, err := New(m, testConfig(n))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Initialize(testMesh()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return r
}

func assertTornDown(t *testing.T, m *mockDriver) {
	t.Helper()
	if m.live() != 0 {
		t.Errorf("live objects after teardown = %d, want 0", m.live())
	}
	if len(m.violations) != 0 {
		t.Errorf("violations: %v", m.violations)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	m := newMockDriver()
	if _, err := New(m, Config{MaxFramesInFlight: 0}); err == nil {
		t.Errorf("New() with zero frames in flight succeeded, want error")
	}
	if _, err := New(m, Config{MaxFramesInFlight: 2, FenceTimeout: -time.Second}); err == nil {
		t.Errorf("New() with negative fence timeout succeeded, want error")
	}
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Errorf("New() without driver succeeded, want error")
	}
	r, err := New(m, Config{MaxFramesInFlight: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if r.Config().PauseInterval != DefaultPauseInterval {
		t.Errorf("PauseInterval = %s, want %s", r.Config().PauseInterval, DefaultPauseInterval)
	}
}

func TestInitializeUploadsMesh(t *testing.T) {
	m := newMockDriver()
	r := newTestRenderer(t, m, 2)
	mesh := testMesh()

	g := r.Geometry()
	if g.IndexCount != 6 {
		t.Errorf("IndexCount = %d, want 6", g.IndexCount)
	}
	vertices, err := r.Uploader().Readback(g.Vertices)
	if err != nil {
		t.Fatalf("Readback(vertices) error = %v", err)
	}
	if !bytes.Equal(vertices, mesh.VertexBytes()) {
		t.Errorf("vertex buffer does not hold the mesh vertices")
	}
	indices, err := r.Uploader().Readback(g.Indices)
	if err != nil {
		t.Fatalf("Readback(indices) error = %v", err)
	}
	if !bytes.Equal(indices, mesh.IndexBytes()) {
		t.Errorf("index buffer does not hold the mesh indices")
	}
	if len(r.Frames()) != 2 {
		t.Errorf("frames = %d, want 2", len(r.Frames()))
	}

	if err := r.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll() error = %v", err)
	}
	assertTornDown(t, m)
}

func TestInitializeFailureReleasesEverything(t *testing.T) {
	// Two uniform blocks, then vertex staging, then the vertex destination fails.
	m := newMockDriver()
	m.failAllocateAt = 4
	r, err := New(m, testConfig(2))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Initialize(testMesh()); !errors.Is(err, core.ErrAllocationFailure) {
		t.Fatalf("Initialize() error = %v, want %v", err, core.ErrAllocationFailure)
	}
	assertTornDown(t, m)
	if err := r.ReleaseAll(); err != nil {
		t.Errorf("ReleaseAll() after failed Initialize error = %v", err)
	}
}

func TestDrawFrameSlotSequence(t *testing.T) {
	m := newMockDriver()
	m.images = 2
	r := newTestRenderer(t, m, 2)
	s := r.Scheduler()
	frames := r.Frames()

	for i, wantSlot := range []int{0, 1, 0, 1, 0} {
		if s.CurrentFrame != wantSlot {
			t.Fatalf("frame %d: CurrentFrame = %d, want %d", i, s.CurrentFrame, wantSlot)
		}
		start := len(m.events)
		if err := r.DrawFrame(); err != nil {
			t.Fatalf("frame %d: DrawFrame() error = %v", i, err)
		}
		wait := eventIndex(m.events, "wait", start)
		if wait < 0 {
			t.Fatalf("frame %d: no fence wait", i)
		}
		if got := metadata.FenceHandle(m.events[wait].Handle); got != frames[wantSlot].InFlight {
			t.Errorf("frame %d: waited on fence %d, want slot %d fence %d", i, got, wantSlot, frames[wantSlot].InFlight)
		}
		record := eventIndex(m.events, "record", start)
		if got := metadata.CommandBufferHandle(m.events[record].Handle); got != frames[wantSlot].CommandBuffer {
			t.Errorf("frame %d: recorded command buffer %d, want %d", i, got, frames[wantSlot].CommandBuffer)
		}
		if draw := eventIndex(m.events, "draw", start); draw < 0 || m.events[draw].Handle != 6 {
			t.Errorf("frame %d: missing indexed draw of 6 indices", i)
		}
		if s.State != FRAME_STATE_ADVANCE {
			t.Errorf("frame %d: State = %s, want %s", i, s.State, FRAME_STATE_ADVANCE)
		}
	}
	if s.FrameNumber != 5 {
		t.Errorf("FrameNumber = %d, want 5", s.FrameNumber)
	}

	if err := r.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll() error = %v", err)
	}
	assertTornDown(t, m)
}

func TestFenceResetOnlyAfterAcquire(t *testing.T) {
	m := newMockDriver()
	r := newTestRenderer(t, m, 2)
	start := len(m.events)
	if err := r.DrawFrame(); err != nil {
		t.Fatalf("DrawFrame() error = %v", err)
	}
	wait := eventIndex(m.events, "wait", start)
	acquire := eventIndex(m.events, "acquire", start)
	reset := eventIndex(m.events, "reset", start)
	record := eventIndex(m.events, "record", start)
	submit := eventIndex(m.events, "submit", start)
	present := eventIndex(m.events, "present", start)
	if !(wait < acquire && acquire < reset && reset < record && record < submit && submit < present) {
		t.Errorf("event order wait=%d acquire=%d reset=%d record=%d submit=%d present=%d", wait, acquire, reset, record, submit, present)
	}
	r.ReleaseAll()
}

func TestInFlightNeverExceedsMax(t *testing.T) {
	tests := []struct {
		frames int
		images uint32
	}{
		{1, 1},
		{2, 2},
		{3, 3},
		{2, 3},
		{3, 2},
	}
	for _, tt := range tests {
		m := newMockDriver()
		m.deferred = true
		m.images = tt.images
		r := newTestRenderer(t, m, tt.frames)

		for i := 0; i < 20; i++ {
			if err := r.DrawFrame(); err != nil {
				t.Fatalf("N=%d images=%d frame %d: DrawFrame() error = %v", tt.frames, tt.images, i, err)
			}
			if got := r.Scheduler().InFlight(); got > tt.frames {
				t.Errorf("N=%d images=%d frame %d: InFlight() = %d", tt.frames, tt.images, i, got)
			}
		}
		if m.maxInFlight > tt.frames {
			t.Errorf("N=%d images=%d: GPU saw %d submissions in flight", tt.frames, tt.images, m.maxInFlight)
		}
		if tt.images == uint32(tt.frames) && m.maxInFlight != tt.frames {
			t.Errorf("N=%d images=%d: max in flight = %d, want %d", tt.frames, tt.images, m.maxInFlight, tt.frames)
		}
		if err := r.ReleaseAll(); err != nil {
			t.Fatalf("ReleaseAll() error = %v", err)
		}
		assertTornDown(t, m)
	}
}

func TestUniformWrittenForSlot(t *testing.T) {
	m := newMockDriver()
	m.deferred = true
	r := newTestRenderer(t, m, 2)

	ubo := metadata.IdentityTransform()
	ubo.Model = mgl32.HomogRotate3D(mgl32.DegToRad(45), mgl32.Vec3{0, 0, 1})
	r.SetTransform(ubo)
	if err := r.DrawFrame(); err != nil {
		t.Fatalf("DrawFrame() error = %v", err)
	}

	slot0 := r.Frames()[0].Uniform
	if !bytes.Equal(m.memory[slot0.Memory][:metadata.UniformBufferObjectSize], ubo.Bytes()) {
		t.Errorf("slot 0 uniform buffer does not hold the transform")
	}
	slot1 := r.Frames()[1].Uniform
	if bytes.Equal(m.memory[slot1.Memory][:metadata.UniformBufferObjectSize], ubo.Bytes()) {
		t.Errorf("slot 1 uniform buffer written before its frame")
	}
	r.ReleaseAll()
	assertTornDown(t, m)
}

func TestAcquireFailureStopsLoop(t *testing.T) {
	m := newMockDriver()
	m.failAcquireAt = 3
	r := newTestRenderer(t, m, 2)

	polls := 0
	err := r.Run(context.Background(), func() LoopSignal {
		polls++
		if polls > 5 {
			return LOOP_STOP
		}
		return LOOP_CONTINUE
	})
	if !errors.Is(err, core.ErrCommandSubmissionFailure) {
		t.Fatalf("Run() error = %v, want %v", err, core.ErrCommandSubmissionFailure)
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}
	if m.acquires != 3 || m.presents != 2 {
		t.Errorf("acquires, presents = %d, %d, want 3, 2", m.acquires, m.presents)
	}
	if got := r.Scheduler().State; got != FRAME_STATE_ACQUIRE_IMAGE {
		t.Errorf("State = %s, want %s", got, FRAME_STATE_ACQUIRE_IMAGE)
	}
	if m.events[len(m.events)-1].Kind != "device_idle" {
		t.Errorf("last event = %q, want device_idle", m.events[len(m.events)-1].Kind)
	}

	if err := r.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll() error = %v", err)
	}
	assertTornDown(t, m)
	if err := r.DrawFrame(); !errors.Is(err, core.ErrRendererDestroyed) {
		t.Errorf("DrawFrame() after ReleaseAll error = %v, want %v", err, core.ErrRendererDestroyed)
	}
	if got := r.Scheduler().State; got != FRAME_STATE_DESTROYED {
		t.Errorf("State = %s, want %s", got, FRAME_STATE_DESTROYED)
	}
	if err := r.ReleaseAll(); err != nil {
		t.Errorf("second ReleaseAll() error = %v", err)
	}
}

func TestFenceTimeoutIsFatal(t *testing.T) {
	m := newMockDriver()
	m.deferred = true
	m.hang = true
	r, err := New(m, Config{MaxFramesInFlight: 1, FenceTimeout: time.Millisecond, UseUniforms: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Initialize(testMesh()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := r.DrawFrame(); err != nil {
		t.Fatalf("first DrawFrame() error = %v", err)
	}
	if err := r.DrawFrame(); !errors.Is(err, core.ErrFenceTimeout) {
		t.Fatalf("second DrawFrame() error = %v, want %v", err, core.ErrFenceTimeout)
	}
	if r.Scheduler().State != FRAME_STATE_WAIT_FENCE {
		t.Errorf("State = %s, want %s", r.Scheduler().State, FRAME_STATE_WAIT_FENCE)
	}
	if err := r.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll() error = %v", err)
	}
	assertTornDown(t, m)
}

func TestSubmitFailureIsFatal(t *testing.T) {
	m := newMockDriver()
	r := newTestRenderer(t, m, 2)
	// Initialize already submitted the two uploads.
	m.failSubmitAt = m.submits + 2
	if err := r.DrawFrame(); err != nil {
		t.Fatalf("DrawFrame() error = %v", err)
	}
	if err := r.DrawFrame(); !errors.Is(err, core.ErrCommandSubmissionFailure) {
		t.Fatalf("DrawFrame() error = %v, want %v", err, core.ErrCommandSubmissionFailure)
	}
	if r.Scheduler().FrameNumber != 1 {
		t.Errorf("FrameNumber = %d, want 1", r.Scheduler().FrameNumber)
	}
	r.ReleaseAll()
	assertTornDown(t, m)
}

func TestRunStopsOnSignal(t *testing.T) {
	m := newMockDriver()
	m.deferred = true
	r := newTestRenderer(t, m, 2)

	signals := []LoopSignal{LOOP_CONTINUE, LOOP_PAUSE, LOOP_PAUSE, LOOP_CONTINUE, LOOP_CONTINUE, LOOP_STOP}
	i := 0
	err := r.Run(context.Background(), func() LoopSignal {
		s := signals[i]
		i++
		return s
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if m.presents != 3 {
		t.Errorf("presents = %d, want 3", m.presents)
	}
	if len(m.pending) != 0 {
		t.Errorf("pending submissions after Run = %d, want 0", len(m.pending))
	}
	r.ReleaseAll()
	assertTornDown(t, m)
}

func TestRunStopsOnContext(t *testing.T) {
	m := newMockDriver()
	r := newTestRenderer(t, m, 2)

	ctx, cancel := context.WithCancel(context.Background())
	frames := 0
	err := r.Run(ctx, func() LoopSignal {
		frames++
		if frames == 4 {
			cancel()
		}
		return LOOP_CONTINUE
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if m.presents != 4 {
		t.Errorf("presents = %d, want 4", m.presents)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := r.Run(cancelled, func() LoopSignal { return LOOP_PAUSE }); err != nil {
		t.Errorf("Run() on cancelled context error = %v", err)
	}
	r.ReleaseAll()
	assertTornDown(t, m)
}

func TestReleaseAllWaitsForIdle(t *testing.T) {
	m := newMockDriver()
	m.deferred = true
	r := newTestRenderer(t, m, 3)
	for i := 0; i < 4; i++ {
		if err := r.DrawFrame(); err != nil {
			t.Fatalf("DrawFrame() error = %v", err)
		}
	}
	start := len(m.events)
	if err := r.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll() error = %v", err)
	}
	if m.events[start].Kind != "device_idle" {
		t.Errorf("first teardown event = %q, want device_idle", m.events[start].Kind)
	}
	assertTornDown(t, m)
}

func TestFrameStateString(t *testing.T) {
	tests := []struct {
		s    FrameState
		want string
	}{
		{FRAME_STATE_WAIT_FENCE, "WAIT_FENCE"},
		{FRAME_STATE_ACQUIRE_IMAGE, "ACQUIRE_IMAGE"},
		{FRAME_STATE_RECORD, "RECORD"},
		{FRAME_STATE_SUBMIT, "SUBMIT"},
		{FRAME_STATE_PRESENT, "PRESENT"},
		{FRAME_STATE_ADVANCE, "ADVANCE"},
		{FRAME_STATE_DESTROYED, "DESTROYED"},
		{FrameState(42), "FrameState(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("FrameState(%d).String() = %q, want %q", uint8(tt.s), got, tt.want)
		}
	}
}
