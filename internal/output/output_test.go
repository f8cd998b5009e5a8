package output

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/amimof/huego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/sunlamp/internal/schedule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChannel struct {
	name   string
	levels []schedule.Level
	err    error
	closed int
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Set(ctx context.Context, level schedule.Level) error {
	f.levels = append(f.levels, level)
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

func TestDriver_Apply(t *testing.T) {
	a := &fakeChannel{name: "a"}
	b := &fakeChannel{name: "b"}
	d := NewDriver(testLogger(), a, b)

	_, ok := d.Applied()
	assert.False(t, ok)

	require.NoError(t, d.Apply(context.Background(), schedule.LevelDim))
	assert.Equal(t, []schedule.Level{schedule.LevelDim}, a.levels)
	assert.Equal(t, []schedule.Level{schedule.LevelDim}, b.levels)

	level, ok := d.Applied()
	assert.True(t, ok)
	assert.Equal(t, schedule.LevelDim, level)
	assert.Equal(t, 2, d.Channels())
}

func TestDriver_ApplyClamps(t *testing.T) {
	a := &fakeChannel{name: "a"}
	d := NewDriver(testLogger(), a)

	require.NoError(t, d.Apply(context.Background(), schedule.Level(5000)))
	require.NoError(t, d.Apply(context.Background(), schedule.Level(-3)))
	assert.Equal(t, []schedule.Level{schedule.MaxLevel, schedule.LevelOff}, a.levels)
}

func TestDriver_ApplyAttemptsAllChannels(t *testing.T) {
	failing := &fakeChannel{name: "bad", err: errors.New("bus error")}
	ok := &fakeChannel{name: "good"}
	d := NewDriver(testLogger(), failing, ok)

	err := d.Apply(context.Background(), schedule.LevelFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel bad")
	assert.Equal(t, []schedule.Level{schedule.LevelFull}, ok.levels)
}

func TestDriver_Close(t *testing.T) {
	a := &fakeChannel{name: "a"}
	d := NewDriver(testLogger(), a, NewLogChannel("stub", testLogger()))

	require.NoError(t, d.Apply(context.Background(), schedule.LevelFull))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, schedule.LevelOff, a.levels[len(a.levels)-1])
	assert.Equal(t, 1, a.closed)
}

func TestDriver_ApplyAfterClose(t *testing.T) {
	a := &fakeChannel{name: "a"}
	d := NewDriver(testLogger(), a)

	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, a.closed)

	err := d.Apply(context.Background(), schedule.LevelFull)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []schedule.Level{schedule.LevelOff}, a.levels)

	level, _ := d.Applied()
	assert.Equal(t, schedule.LevelOff, level)
}

func TestLogChannel(t *testing.T) {
	c := NewLogChannel("led0", testLogger())
	assert.Equal(t, "led0", c.Name())

	require.NoError(t, c.Set(context.Background(), schedule.LevelDim))
	assert.Equal(t, schedule.LevelDim, c.Level())
}

type fakePin struct {
	pwm   bool
	freq  int
	duty  uint32
	cycle uint32
}

func (p *fakePin) Pwm()          { p.pwm = true }
func (p *fakePin) Freq(freq int) { p.freq = freq }
func (p *fakePin) DutyCycle(dutyLen, cycleLen uint32) {
	p.duty = dutyLen
	p.cycle = cycleLen
}

func stubGPIO(t *testing.T) (map[int]*fakePin, *int, *int) {
	t.Helper()

	pins := map[int]*fakePin{}
	opens, closes := 0, 0

	origOpen, origClose, origPin := gpioOpen, gpioClose, newPin
	gpioOpen = func() error { opens++; return nil }
	gpioClose = func() error { closes++; return nil }
	newPin = func(n int) pwmPin {
		p := &fakePin{}
		pins[n] = p
		return p
	}
	t.Cleanup(func() {
		gpioOpen, gpioClose, newPin = origOpen, origClose, origPin
		gpioUsers = 0
	})

	return pins, &opens, &closes
}

func TestPWMChannel(t *testing.T) {
	pins, opens, closes := stubGPIO(t)

	ch0, err := NewPWMChannel(18, 1000, testLogger())
	require.NoError(t, err)
	ch1, err := NewPWMChannel(19, 1000, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, *opens, "GPIO memory is mapped once")
	assert.Equal(t, "gpio18", ch0.Name())

	p := pins[18]
	assert.True(t, p.pwm)
	assert.Equal(t, 1000*1024, p.freq)
	assert.Equal(t, uint32(0), p.duty, "pins start de-energized")

	require.NoError(t, ch0.Set(context.Background(), schedule.LevelFull))
	assert.Equal(t, uint32(1023), p.duty)
	assert.Equal(t, uint32(1024), p.cycle)

	require.NoError(t, ch0.Set(context.Background(), schedule.LevelDim))
	assert.Equal(t, uint32(60), p.duty)

	require.NoError(t, ch0.Close())
	assert.Equal(t, 0, *closes)
	assert.Error(t, ch0.Set(context.Background(), schedule.LevelDim))

	require.NoError(t, ch1.Close())
	require.NoError(t, ch1.Close())
	assert.Equal(t, 1, *closes, "GPIO memory is released after the last channel")
}

func TestPWMChannel_OpenFailure(t *testing.T) {
	stubGPIO(t)
	gpioOpen = func() error { return errors.New("permission denied") }

	_, err := NewPWMChannel(18, 1000, testLogger())
	assert.Error(t, err)
	assert.Equal(t, 0, gpioUsers)
}

func TestPWMChannel_NoHardwarePWM(t *testing.T) {
	_, opens, _ := stubGPIO(t)

	_, err := NewPWMChannel(5, 1000, testLogger())
	assert.Error(t, err)
	assert.Equal(t, 0, *opens)
}

func TestPWMChannels_UnwindsOnFailure(t *testing.T) {
	_, opens, closes := stubGPIO(t)
	gpioClose = func() error { *closes++; return errors.New("munmap failed") }

	channels, err := NewPWMChannels([]int{18, 19, 5}, 1000, testLogger())
	require.Error(t, err)
	assert.Nil(t, channels)
	assert.Contains(t, err.Error(), "gpio 5 has no hardware PWM")
	assert.Contains(t, err.Error(), "munmap failed")

	assert.Equal(t, 1, *opens)
	assert.Equal(t, 1, *closes)
	assert.Equal(t, 0, gpioUsers)
}

func TestPWMChannels(t *testing.T) {
	stubGPIO(t)

	channels, err := NewPWMChannels([]int{18, 19}, 1000, testLogger())
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "gpio19", channels[1].Name())
	assert.Equal(t, 2, gpioUsers)
}

func TestPWMChannel_ConcurrentSetAndClose(t *testing.T) {
	stubGPIO(t)

	ch, err := NewPWMChannel(18, 1000, testLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = ch.Set(context.Background(), schedule.LevelDim)
		}
	}()
	require.NoError(t, ch.Close())
	wg.Wait()

	assert.Error(t, ch.Set(context.Background(), schedule.LevelDim))
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	connected  bool
	connectErr error
	messages   []published
}

func (f *fakeMQTT) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeMQTT) Disconnect() { f.connected = false }

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.messages = append(f.messages, published{topic, qos, retained, payload})
	return nil
}

func (f *fakeMQTT) IsConnected() bool { return f.connected }

func TestMQTTChannel(t *testing.T) {
	client := &fakeMQTT{}
	ch := NewMQTTChannel("porch", "sunlamp/command/light/0", client, testLogger())
	assert.Equal(t, "porch", ch.Name())

	require.NoError(t, ch.Set(context.Background(), schedule.LevelDim))
	assert.True(t, client.connected, "connects on demand")
	require.Len(t, client.messages, 1)

	msg := client.messages[0]
	assert.Equal(t, "sunlamp/command/light/0", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	assert.Equal(t, "on", body["state"])
	assert.Equal(t, float64(60), body["level"])
	assert.Equal(t, float64(5), body["brightness"])

	require.NoError(t, ch.Set(context.Background(), schedule.LevelOff))
	require.NoError(t, json.Unmarshal(client.messages[1].payload, &body))
	assert.Equal(t, "off", body["state"])
}

func TestMQTTChannel_ConnectFailure(t *testing.T) {
	client := &fakeMQTT{connectErr: errors.New("broker unreachable")}
	ch := NewMQTTChannel("porch", "t", client, testLogger())

	assert.Error(t, ch.Set(context.Background(), schedule.LevelFull))
	assert.Empty(t, client.messages)
}

func TestBrightnessPercent(t *testing.T) {
	assert.Equal(t, 0, brightnessPercent(schedule.LevelOff))
	assert.Equal(t, 1, brightnessPercent(schedule.Level(1)))
	assert.Equal(t, 5, brightnessPercent(schedule.LevelDim))
	assert.Equal(t, 100, brightnessPercent(schedule.LevelFull))
}

type fakeBridge struct {
	lights map[int]huego.State
	err    error
}

func (f *fakeBridge) SetLightStateContext(ctx context.Context, i int, l huego.State) (*huego.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lights[i] = l
	return &huego.Response{}, nil
}

func TestHueChannel(t *testing.T) {
	bridge := &fakeBridge{lights: map[int]huego.State{}}
	ch := &HueChannel{lightID: 3, bridge: bridge, logger: testLogger()}
	assert.Equal(t, "hue3", ch.Name())

	require.NoError(t, ch.Set(context.Background(), schedule.LevelFull))
	assert.True(t, bridge.lights[3].On)
	assert.Equal(t, uint8(254), bridge.lights[3].Bri)

	require.NoError(t, ch.Set(context.Background(), schedule.LevelOff))
	assert.False(t, bridge.lights[3].On)

	bridge.err = errors.New("bridge offline")
	assert.Error(t, ch.Set(context.Background(), schedule.LevelDim))
}

func TestHueState(t *testing.T) {
	assert.Equal(t, huego.State{On: false}, hueState(schedule.LevelOff))
	assert.Equal(t, huego.State{On: true, Bri: 14}, hueState(schedule.LevelDim))
	assert.Equal(t, huego.State{On: true, Bri: 1}, hueState(schedule.Level(1)))
}
