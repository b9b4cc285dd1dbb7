package media

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPort = 45873

// Loopback: a send pipeline streams synthetic JPEG over RTP/UDP to a
// receive pipeline on localhost; the appsink must deliver decoded frames
// with the negotiated geometry.
func TestPipeline_UDPLoopback(t *testing.T) {
	recv, err := Parse("udpsrc name=udpsrc" +
		" ! capsfilter name=rtp_capsfilter" +
		" ! rtpdepay name=depay" +
		" ! jpegdec name=dec" +
		" ! queue name=q" +
		" ! appsink name=appsink")
	require.NoError(t, err)
	recv.SetName("pipeline_left")

	udpsrc, err := recv.ByName("udpsrc")
	require.NoError(t, err)
	udpsrc.Set("port", testPort)

	capsfilter, err := recv.ByName("rtp_capsfilter")
	require.NoError(t, err)
	capsfilter.Set("encoding-name", "JPEG")
	capsfilter.Set("payload", 26)
	capsfilter.Set("x-dimensions", "64,48")

	samples := make(chan *Sample, 8)
	appsink, err := recv.ByName("appsink")
	require.NoError(t, err)
	require.NoError(t, appsink.Connect("new-sample", SampleFunc(func(el *Element, s *Sample) {
		select {
		case samples <- s:
		default:
		}
	})))

	require.NoError(t, recv.SetState(StatePlaying))
	defer recv.SetState(StateNull)

	send, err := Parse("camsrc sensor-id=0" +
		" ! video/x-raw,width=(int)64,height=(int)48,framerate=(fraction)30/1,format=(string)RGB" +
		" ! jpegenc name=encoder quality=60" +
		" ! rtppay mtu=1300 pt=26" +
		fmt.Sprintf(" ! udpsink host=127.0.0.1 port=%d sync=false", testPort))
	require.NoError(t, err)
	send.SetName("pipeline_send")

	require.NoError(t, send.SetState(StatePlaying))
	defer send.SetState(StateNull)

	select {
	case s := <-samples:
		assert.Equal(t, 64, s.Caps.Width)
		assert.Equal(t, 48, s.Caps.Height)
		assert.Equal(t, "system", s.Caps.Memory)
		assert.Len(t, s.Buffer.Data, 64*48*3)
	case <-time.After(5 * time.Second):
		t.Fatal("no decoded sample arrived over loopback")
	}
}

func TestPipeline_SetStateNullStopsWorkers(t *testing.T) {
	pipe, err := Parse("camsrc" +
		" ! video/x-raw,width=(int)32,height=(int)24,framerate=(fraction)60/1" +
		" ! identity name=probe ! appsink name=appsink")
	require.NoError(t, err)

	var mu sync.Mutex
	count := 0
	probe, err := pipe.ByName("probe")
	require.NoError(t, err)
	probe.AddProbe(func(el *Element, buf *Buffer) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, pipe.SetState(StatePlaying))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, pipe.SetState(StateNull))

	mu.Lock()
	stopped := count
	mu.Unlock()
	assert.Greater(t, stopped, 0, "probe should have seen frames while playing")

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, stopped, count, "no frames may flow after null")
	mu.Unlock()
}

func TestPipeline_BusReportsStateChanges(t *testing.T) {
	pipe, err := Parse("camsrc" +
		" ! video/x-raw,width=(int)32,height=(int)24,framerate=(fraction)30/1" +
		" ! appsink name=appsink")
	require.NoError(t, err)

	require.NoError(t, pipe.SetState(StatePlaying))
	msg := pipe.Bus().TimedPop(time.Second, MessageStateChanged)
	require.NotNil(t, msg)
	assert.Equal(t, StatePlaying, msg.New)

	require.NoError(t, pipe.SetState(StateNull))
}

func TestPipeline_PlayFailsWithoutCaps(t *testing.T) {
	pipe, err := Parse("camsrc ! appsink name=appsink")
	require.NoError(t, err)
	assert.Error(t, pipe.SetState(StatePlaying), "camsrc without geometry must refuse to start")
}

func TestSelector_ForwardsOnlyActivePad(t *testing.T) {
	pipe, err := Parse(
		"camsrc name=cam0 sensor-id=0 ! video/x-raw,width=(int)16,height=(int)12,framerate=(fraction)60/1 ! sel. " +
			"camsrc name=cam1 sensor-id=1 ! video/x-raw,width=(int)16,height=(int)12,framerate=(fraction)60/1 ! sel. " +
			"input-selector name=sel ! appsink name=appsink")
	require.NoError(t, err)

	var mu sync.Mutex
	count := 0
	appsink, err := pipe.ByName("appsink")
	require.NoError(t, err)
	require.NoError(t, appsink.Connect("new-sample", SampleFunc(func(el *Element, s *Sample) {
		mu.Lock()
		count++
		mu.Unlock()
	})))

	require.NoError(t, pipe.SetState(StatePlaying))
	defer pipe.SetState(StateNull)

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	beforeSwitch := count
	mu.Unlock()
	// Both sources run at 60 fps but only one pad forwards: the sink
	// must see roughly one source's rate, not two.
	assert.Greater(t, beforeSwitch, 0)
	assert.Less(t, beforeSwitch, 16)

	sel, err := pipe.ByName("sel")
	require.NoError(t, err)
	sel.Set("active-pad", "sink_1")
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, count, beforeSwitch, "frames keep flowing after the switch")
}

func TestForceKeyUnit_ReachesEncoderUpstream(t *testing.T) {
	pipe, err := Parse("camsrc" +
		" ! video/x-raw,width=(int)16,height=(int)12,framerate=(fraction)60/1" +
		" ! h264enc name=encoder bitrate=400000 ! identity name=tap ! appsink name=appsink")
	require.NoError(t, err)

	keyFrames := make(chan uint64, 64)
	tap, err := pipe.ByName("tap")
	require.NoError(t, err)
	tap.AddProbe(func(el *Element, buf *Buffer) {
		if buf.KeyFrame {
			select {
			case keyFrames <- buf.FrameID:
			default:
			}
		}
	})

	require.NoError(t, pipe.SetState(StatePlaying))
	defer pipe.SetState(StateNull)

	// First frame of a GOP is always a key frame; drain it.
	select {
	case <-keyFrames:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial key frame")
	}

	encoder, err := pipe.ByName("encoder")
	require.NoError(t, err)
	require.True(t, encoder.SendUpstreamEvent(ForceKeyUnit{}))

	select {
	case <-keyFrames:
		// Forced key frame arrived well before the next GOP boundary
		// (GOP is 30 frames at 60 fps = 500 ms).
	case <-time.After(400 * time.Millisecond):
		t.Fatal("forced key frame did not arrive")
	}
}

func TestSequenceUnwrapper(t *testing.T) {
	var u sequenceUnwrapper
	assert.EqualValues(t, 65534, u.unwrap(65534))
	assert.EqualValues(t, 65535, u.unwrap(65535))
	assert.EqualValues(t, 65536, u.unwrap(0))
	assert.EqualValues(t, 65537, u.unwrap(1))
}
